package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

// Discord - Platform backed by a discordgo session
type Discord struct {
	Ses  *discordgo.Session
	Feed *Feed
}

// NewDiscord - Wrap a session and forward its reaction events into feed
func NewDiscord(s *discordgo.Session, feed *Feed) *Discord {
	d := &Discord{Ses: s, Feed: feed}
	s.AddHandler(d.onReactionAdd)
	s.AddHandler(d.onReactionRemove)
	return d
}

func (d *Discord) onReactionAdd(s *discordgo.Session, e *discordgo.MessageReactionAdd) {
	// Ignore self
	if s.State.User != nil && e.UserID == s.State.User.ID {
		return
	}
	d.Feed.Publish(ReactionEvent{
		Kind:      ReactionAdd,
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		MessageID: e.MessageID,
		UserID:    e.UserID,
		Emoji:     e.Emoji.MessageFormat(),
	})
}

func (d *Discord) onReactionRemove(s *discordgo.Session, e *discordgo.MessageReactionRemove) {
	if s.State.User != nil && e.UserID == s.State.User.ID {
		return
	}
	d.Feed.Publish(ReactionEvent{
		Kind:      ReactionRemove,
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		MessageID: e.MessageID,
		UserID:    e.UserID,
		Emoji:     e.Emoji.MessageFormat(),
	})
}

// Guild - Get guild from state, falling back to the API
func (d *Discord) Guild(ctx context.Context, guildID string) (*Guild, error) {
	g, err := d.Ses.State.Guild(guildID)
	if err != nil {
		g, err = d.Ses.Guild(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, translate(err)
		}
	}
	out := &Guild{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID}
	for _, r := range g.Roles {
		out.Roles = append(out.Roles, Role{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

// Role - Get a guild role from state, falling back to the API
func (d *Discord) Role(ctx context.Context, guildID, roleID string) (*Role, error) {
	if r, err := d.Ses.State.Role(guildID, roleID); err == nil {
		return &Role{ID: r.ID, Name: r.Name}, nil
	}
	roles, err := d.Ses.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err)
	}
	for _, r := range roles {
		if r.ID == roleID {
			return &Role{ID: r.ID, Name: r.Name}, nil
		}
	}
	return nil, fmt.Errorf("role %s: %w", roleID, ErrNotFound)
}

// Channel - Fetch a channel
func (d *Discord) Channel(ctx context.Context, channelID string) (*Channel, error) {
	c, err := d.Ses.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err)
	}
	return &Channel{
		ID:      c.ID,
		GuildID: c.GuildID,
		Name:    c.Name,
		Text:    c.Type == discordgo.ChannelTypeGuildText || c.Type == discordgo.ChannelTypeGuildNews,
	}, nil
}

// Message - Fetch a message
func (d *Discord) Message(ctx context.Context, channelID, messageID string) (*Message, error) {
	m, err := d.Ses.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err)
	}
	return convertMessage(m), nil
}

// Member - Fetch a guild member
func (d *Discord) Member(ctx context.Context, guildID, userID string) (*Member, error) {
	m, err := d.Ses.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err)
	}
	out := &Member{UserID: userID, Name: m.Nick, Roles: m.Roles}
	if m.User != nil && out.Name == "" {
		out.Name = m.User.Username
	}
	return out, nil
}

// AddRole - Give a member a role
func (d *Discord) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return translate(d.Ses.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

// RemoveRole - Take a role from a member
func (d *Discord) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return translate(d.Ses.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

// SendMessage - Post a message to a channel
func (d *Discord) SendMessage(ctx context.Context, channelID, content string) (*Message, error) {
	m, err := d.Ses.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return nil, translate(err)
	}
	return convertMessage(m), nil
}

// AddReaction - React to a message, emoji may be unicode or <:name:id>
func (d *Discord) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return translate(d.Ses.MessageReactionAdd(channelID, messageID, APIEmoji(emoji), discordgo.WithContext(ctx)))
}

// BotPermissions - Permissions the bot has in a channel
func (d *Discord) BotPermissions(ctx context.Context, channelID string) (int64, error) {
	return d.MemberPermissions(ctx, d.Ses.State.User.ID, channelID)
}

// MemberPermissions - Permissions a user has in a channel
func (d *Discord) MemberPermissions(ctx context.Context, userID, channelID string) (int64, error) {
	perms, err := d.Ses.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, translate(err)
	}
	return perms, nil
}

// IsAdministrator - Check the administrator bit in a permission set
func IsAdministrator(perms int64) bool {
	return perms&discordgo.PermissionAdministrator == discordgo.PermissionAdministrator
}

// APIEmoji - Convert <:name:id> or <a:name:id> into the name:id form reactions use
func APIEmoji(emoji string) string {
	if !strings.HasPrefix(emoji, "<") || !strings.HasSuffix(emoji, ">") {
		return emoji
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(emoji, "<"), ">")
	trimmed = strings.TrimPrefix(trimmed, "a:")
	return strings.TrimPrefix(trimmed, ":")
}

func convertMessage(m *discordgo.Message) *Message {
	out := &Message{ID: m.ID, ChannelID: m.ChannelID, GuildID: m.GuildID, Content: m.Content}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
	}
	return out
}

// translate - Map REST status codes onto the package sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	log.Debug().Err(err).Msg("platform call failed")
	return err
}
