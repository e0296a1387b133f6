package database

import (
	"sort"
	"strings"
)

// DefaultGuildID - Guild id of the canonical empty settings value
const DefaultGuildID = "0"

// CoreModule - Module every guild has enabled
const CoreModule = "core"

// GlobalConfig - Process wide config record
type GlobalConfig struct {
	// Operators with unrestricted access
	Gods []string `json:"gods"`
	// Module paths loaded at startup
	Modules []string `json:"modules"`
}

// DefaultModules - Modules loaded at startup when the config record does not say otherwise
var DefaultModules = []string{
	"handlers/prefixes.go",
	"reactionroles/reactionroles.go",
}

// DefaultConfig - Config record used when none is stored
func DefaultConfig() GlobalConfig {
	return GlobalConfig{
		Gods:    []string{},
		Modules: append([]string(nil), DefaultModules...),
	}
}

// GuildSettings - DB record for guild settings
type GuildSettings struct {
	GuildID              string                `json:"guildId"`
	Prefix               string                `json:"prefix"`
	EnabledModules       []string              `json:"enabledModules"`
	ReactionRoleMessages []ReactionRoleMessage `json:"reactionRoleMessages"`
	ModulePrivileges     map[string]Privilege  `json:"modulePrivileges"`
}

// DefaultGuildSettings - A fresh settings value for a guild with no record
func DefaultGuildSettings(gid string) GuildSettings {
	return GuildSettings{
		GuildID:              gid,
		EnabledModules:       []string{CoreModule},
		ReactionRoleMessages: []ReactionRoleMessage{},
		ModulePrivileges:     make(map[string]Privilege),
	}
}

// ReactionRoleMessage - A message whose reactions grant roles
type ReactionRoleMessage struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	// map[emoji]roleID
	Roles map[string]string `json:"roles"`
}

// Privilege - Roles allowed and denied access to a module's sensitive commands
type Privilege struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

// AllowRole - Add a role to Allow, removing it from Deny. Returns false if nothing changed
func (p *Privilege) AllowRole(roleID string) bool {
	if sliceContains(p.Allow, roleID) {
		return false
	}
	p.Deny = sliceRemove(p.Deny, roleID)
	p.Allow = append(p.Allow, roleID)
	return true
}

// DenyRole - Add a role to Deny, removing it from Allow. Returns false if nothing changed
func (p *Privilege) DenyRole(roleID string) bool {
	if sliceContains(p.Deny, roleID) {
		return false
	}
	p.Allow = sliceRemove(p.Allow, roleID)
	p.Deny = append(p.Deny, roleID)
	return true
}

// RemoveRole - Drop a role from both sets. Returns false if it was in neither
func (p *Privilege) RemoveRole(roleID string) bool {
	if !sliceContains(p.Allow, roleID) && !sliceContains(p.Deny, roleID) {
		return false
	}
	p.Allow = sliceRemove(p.Allow, roleID)
	p.Deny = sliceRemove(p.Deny, roleID)
	return true
}

// IsAllowed - Check if any of the roles is in Allow
func (p Privilege) IsAllowed(roles []string) bool {
	for _, r := range roles {
		if sliceContains(p.Allow, r) {
			return true
		}
	}
	return false
}

// Empty - No roles in either set
func (p Privilege) Empty() bool {
	return len(p.Allow) == 0 && len(p.Deny) == 0
}

func (p Privilege) copy() Privilege {
	return Privilege{
		Allow: append([]string{}, p.Allow...),
		Deny:  append([]string{}, p.Deny...),
	}
}

func (rr ReactionRoleMessage) copy() ReactionRoleMessage {
	roles := make(map[string]string, len(rr.Roles))
	for k, v := range rr.Roles {
		roles[k] = v
	}
	rr.Roles = roles
	return rr
}

func (gs GuildSettings) copy() GuildSettings {
	out := gs
	out.EnabledModules = append([]string{}, gs.EnabledModules...)
	out.ReactionRoleMessages = make([]ReactionRoleMessage, 0, len(gs.ReactionRoleMessages))
	for _, rr := range gs.ReactionRoleMessages {
		out.ReactionRoleMessages = append(out.ReactionRoleMessages, rr.copy())
	}
	out.ModulePrivileges = make(map[string]Privilege, len(gs.ModulePrivileges))
	for k, v := range gs.ModulePrivileges {
		out.ModulePrivileges[k] = v.copy()
	}
	return out
}

// normalize - Fill in defaults for fields missing from a decoded record
func (gs *GuildSettings) normalize(gid string) {
	gs.GuildID = gid
	if gs.EnabledModules == nil {
		gs.EnabledModules = []string{CoreModule}
	}
	gs.EnabledModules = lowerSet(gs.EnabledModules)
	if gs.ReactionRoleMessages == nil {
		gs.ReactionRoleMessages = []ReactionRoleMessage{}
	}
	if gs.ModulePrivileges == nil {
		gs.ModulePrivileges = make(map[string]Privilege)
	}
}

func (c *GlobalConfig) normalize() {
	if c.Gods == nil {
		c.Gods = []string{}
	}
	if c.Modules == nil {
		c.Modules = append([]string(nil), DefaultModules...)
	}
}

// lowerSet - Lower case and dedupe names, keeping first-seen order
func lowerSet(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || sliceContains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func sortedKeys(m map[string]*GuildSettings) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sliceContains(slice []string, val string) bool {
	for _, item := range slice {
		if item == val {
			return true
		}
	}
	return false
}

func sliceRemove(slice []string, val string) []string {
	out := slice[:0:0]
	for _, item := range slice {
		if item != val {
			out = append(out, item)
		}
	}
	return out
}
