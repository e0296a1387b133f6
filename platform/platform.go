package platform

import (
	"context"
	"errors"
)

var (
	// ErrForbidden - The platform refused the call for lack of permissions
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound - The requested object does not exist
	ErrNotFound = errors.New("not found")
)

// Guild - A community the bot is in
type Guild struct {
	ID      string
	Name    string
	Roles   []Role
	OwnerID string
}

// Role - A guild role
type Role struct {
	ID   string
	Name string
}

// Channel - A guild or DM channel
type Channel struct {
	ID      string
	GuildID string
	Name    string
	Text    bool
}

// Message - A posted message
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Content   string
}

// Member - A user inside a guild
type Member struct {
	UserID string
	Name   string
	Roles  []string
}

// Platform - Calls the bot makes against the chat platform
type Platform interface {
	Guild(ctx context.Context, guildID string) (*Guild, error)
	Role(ctx context.Context, guildID, roleID string) (*Role, error)
	Channel(ctx context.Context, channelID string) (*Channel, error)
	Message(ctx context.Context, channelID, messageID string) (*Message, error)
	Member(ctx context.Context, guildID, userID string) (*Member, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	SendMessage(ctx context.Context, channelID, content string) (*Message, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	// Permissions the bot has in a channel
	BotPermissions(ctx context.Context, channelID string) (int64, error)
}

// ReactionKind - Whether a reaction was added or removed
type ReactionKind int

const (
	// ReactionAdd - A reaction was added
	ReactionAdd ReactionKind = iota
	// ReactionRemove - A reaction was removed
	ReactionRemove
)

func (k ReactionKind) String() string {
	if k == ReactionRemove {
		return "remove"
	}
	return "add"
}

// ReactionEvent - Raw reaction event, GuildID is empty for direct messages
type ReactionEvent struct {
	Kind      ReactionKind
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	// Emoji in message format, a unicode emoji or <:name:id>
	Emoji string
}
