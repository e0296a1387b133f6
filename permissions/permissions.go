package permissions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cufee/reixi/database"
	"github.com/rs/zerolog/log"
)

// ErrNoChange - The requested change was already in place
var ErrNoChange = errors.New("no changes made")

// Flag - What to do with a role on a module
type Flag string

const (
	// Allow - Role may use privileged commands of the module
	Allow Flag = "allow"
	// Deny - Role is listed as denied, which only clears a previous allow
	Deny Flag = "deny"
	// Remove - Role is dropped from both lists
	Remove Flag = "remove"
)

// Flags - Every valid flag
var Flags = []Flag{Allow, Deny, Remove}

// ParseFlag - Parse a flag from user input
func ParseFlag(s string) (Flag, bool) {
	for _, f := range Flags {
		if string(f) == strings.ToLower(s) {
			return f, true
		}
	}
	return "", false
}

// Store - Privilege storage
type Store interface {
	Privileges(gid string, module string) database.Privilege
	SetPrivileges(gid string, module string, p database.Privilege) error
	AllPrivileges(gid string) map[string]database.Privilege
	SetAllPrivileges(gid string, privileges map[string]database.Privilege) error
}

// Caller - Who is invoking a command
type Caller struct {
	ID              string
	Roles           []string
	IsAdministrator bool
}

// IsPrivileged - Administrators always pass, otherwise a caller needs a role in the module's allow list.
// Deny is not consulted, a role in neither list is not privileged.
func IsPrivileged(store Store, c Caller, gid string, module string) bool {
	if c.IsAdministrator {
		return true
	}
	if module == "" {
		return false
	}
	return store.Privileges(gid, strings.ToLower(module)).IsAllowed(c.Roles)
}

// Set - Apply a flag for a role on a module. Returns ErrNoChange if it was a no-op
func Set(store Store, gid, module, roleID string, flag Flag) error {
	module = strings.ToLower(module)
	current := store.Privileges(gid, module)

	var changed bool
	switch flag {
	case Allow:
		changed = current.AllowRole(roleID)
	case Deny:
		changed = current.DenyRole(roleID)
	case Remove:
		changed = current.RemoveRole(roleID)
	default:
		return fmt.Errorf("unknown flag %q", flag)
	}
	if !changed {
		return fmt.Errorf("role `%s` is already %s on %s: %w", roleID, describe(flag), module, ErrNoChange)
	}

	log.Debug().Str("guild", gid).Str("module", module).Str("role", roleID).Str("flag", string(flag)).Msg("updating module privileges")
	return store.SetPrivileges(gid, module, current)
}

func describe(f Flag) string {
	switch f {
	case Allow:
		return "allowed"
	case Deny:
		return "denied"
	default:
		return "neither allowed nor denied"
	}
}

// Clean - Drop privilege entries for modules that no longer exist, or with clearRoles,
// role ids that no longer exist in the guild. module "*" applies to every module.
func Clean(store Store, gid string, module string, knownModules []string, liveRoles []string, clearRoles bool) error {
	module = strings.ToLower(module)
	old := store.AllPrivileges(gid)
	next := make(map[string]database.Privilege, len(old))

	for name, p := range old {
		if module != "*" && name != module {
			next[name] = p
			continue
		}
		if !clearRoles {
			if contains(knownModules, name) {
				next[name] = p
			}
			continue
		}
		cleaned := database.Privilege{Allow: []string{}, Deny: []string{}}
		for _, r := range p.Allow {
			if contains(liveRoles, r) {
				cleaned.Allow = append(cleaned.Allow, r)
			}
		}
		for _, r := range p.Deny {
			if contains(liveRoles, r) {
				cleaned.Deny = append(cleaned.Deny, r)
			}
		}
		next[name] = cleaned
	}
	return store.SetAllPrivileges(gid, next)
}

func contains(slice []string, val string) bool {
	for _, item := range slice {
		if strings.EqualFold(item, val) {
			return true
		}
	}
	return false
}
