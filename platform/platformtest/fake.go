// Package platformtest provides an in-memory platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/cufee/reixi/platform"
)

// RoleCall - A recorded AddRole or RemoveRole call
type RoleCall struct {
	Add     bool
	GuildID string
	UserID  string
	RoleID  string
}

// Fake - In-memory Platform. Zero value is not usable, see New
type Fake struct {
	mu sync.Mutex

	Guilds   map[string]*platform.Guild
	Channels map[string]*platform.Channel
	Messages map[string]*platform.Message
	Members  map[string]*platform.Member // key guild/user

	// Errors returned by role calls, keyed by role id
	RoleErrors map[string]error
	// Permissions returned by BotPermissions
	Perms int64

	RoleCalls []RoleCall
	Reactions []string // channel/message/emoji
	Sent      []platform.Message

	nextID int
}

var _ platform.Platform = (*Fake)(nil)

// New - Empty fake
func New() *Fake {
	return &Fake{
		Guilds:     make(map[string]*platform.Guild),
		Channels:   make(map[string]*platform.Channel),
		Messages:   make(map[string]*platform.Message),
		Members:    make(map[string]*platform.Member),
		RoleErrors: make(map[string]error),
		Perms:      -1,
		nextID:     1000,
	}
}

// AddGuild - Register a guild with roles
func (f *Fake) AddGuild(id string, roles ...platform.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Guilds[id] = &platform.Guild{ID: id, Name: "guild-" + id, Roles: roles}
}

// AddChannel - Register a text channel
func (f *Fake) AddChannel(guildID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Channels[id] = &platform.Channel{ID: id, GuildID: guildID, Name: "channel-" + id, Text: true}
}

// AddMessage - Register a message
func (f *Fake) AddMessage(channelID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages[channelID+"/"+id] = &platform.Message{ID: id, ChannelID: channelID}
}

// DeleteMessage - Remove a message
func (f *Fake) DeleteMessage(channelID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Messages, channelID+"/"+id)
}

// AddMember - Register a guild member
func (f *Fake) AddMember(guildID, userID string, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Members[guildID+"/"+userID] = &platform.Member{UserID: userID, Name: "user-" + userID, Roles: roles}
}

// Calls - Copy of the recorded role calls
func (f *Fake) Calls() []RoleCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RoleCall(nil), f.RoleCalls...)
}

func (f *Fake) Guild(_ context.Context, guildID string) (*platform.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.Guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("guild %s: %w", guildID, platform.ErrNotFound)
	}
	out := *g
	return &out, nil
}

func (f *Fake) Role(_ context.Context, guildID, roleID string) (*platform.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.Guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("guild %s: %w", guildID, platform.ErrNotFound)
	}
	for _, r := range g.Roles {
		if r.ID == roleID {
			out := r
			return &out, nil
		}
	}
	return nil, fmt.Errorf("role %s: %w", roleID, platform.ErrNotFound)
}

func (f *Fake) Channel(_ context.Context, channelID string) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (f *Fake) Message(_ context.Context, channelID, messageID string) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Messages[channelID+"/"+messageID]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, platform.ErrNotFound)
	}
	out := *m
	return &out, nil
}

func (f *Fake) Member(_ context.Context, guildID, userID string) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Members[guildID+"/"+userID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	out := *m
	return &out, nil
}

func (f *Fake) AddRole(_ context.Context, guildID, userID, roleID string) error {
	return f.roleCall(true, guildID, userID, roleID)
}

func (f *Fake) RemoveRole(_ context.Context, guildID, userID, roleID string) error {
	return f.roleCall(false, guildID, userID, roleID)
}

func (f *Fake) roleCall(add bool, guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RoleCalls = append(f.RoleCalls, RoleCall{Add: add, GuildID: guildID, UserID: userID, RoleID: roleID})
	return f.RoleErrors[roleID]
}

func (f *Fake) SendMessage(_ context.Context, channelID, content string) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	f.nextID++
	m := platform.Message{ID: strconv.Itoa(f.nextID), ChannelID: channelID, GuildID: c.GuildID, Content: content}
	f.Messages[channelID+"/"+m.ID] = &m
	f.Sent = append(f.Sent, m)
	out := m
	return &out, nil
}

func (f *Fake) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Messages[channelID+"/"+messageID]; !ok {
		return fmt.Errorf("message %s: %w", messageID, platform.ErrNotFound)
	}
	f.Reactions = append(f.Reactions, channelID+"/"+messageID+"/"+emoji)
	return nil
}

func (f *Fake) BotPermissions(_ context.Context, channelID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Channels[channelID]; !ok {
		return 0, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	return f.Perms, nil
}
