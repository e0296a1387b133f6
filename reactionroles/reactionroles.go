package reactionroles

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cufee/reixi/database"
	"github.com/cufee/reixi/modules"
	"github.com/cufee/reixi/platform"
	"github.com/forPelevin/gomoji"
)

const (
	// Name - Display name of the module
	Name = "ReactionRoles"
	// Path - Module identity and fingerprinted source
	Path = "reactionroles/reactionroles.go"
	// Module - Name used in guild settings
	Module = "reactionroles"
)

var (
	customEmoji = regexp.MustCompile(`^<a?:\w+:\d+>$`)
	snowflake   = regexp.MustCompile(`^\d+$`)
	mentionTrim = regexp.MustCompile(`[<@&#>]`)
)

const usage = "```\n" +
	"create messages that assign roles based on reactions\n" +
	"\n" +
	"usage:\n" +
	"   rr new CHANNEL MESSAGE [PAIRING ...]\n" +
	"      'here' can be used for `CHANNEL`, you can also use `#<channel>`\n" +
	"      `MESSAGE` can be any string, but it must be \"-quoted if it contains spaces or newlines\n" +
	"      `PAIRING` must be in the format `<emoji>=ROLE_ID`, multiple can be given\n" +
	"   rr list\n" +
	"      lists reaction role messages in this server\n" +
	"```"

// Handler - Reaction roles module
type Handler struct {
	store  *database.Store
	engine *Engine
}

var (
	_ modules.Activator   = (*Handler)(nil)
	_ modules.Deactivator = (*Handler)(nil)
)

// New - Reaction roles module with its own engine
func New(store *database.Store, p platform.Platform, feed *platform.Feed, opts Options) *Handler {
	return &Handler{store: store, engine: NewEngine(store, p, feed, opts)}
}

// Factory - Builds a fresh handler on every load
func Factory(store *database.Store, p platform.Platform, feed *platform.Feed, opts Options) modules.Factory {
	return func() modules.Handler { return New(store, p, feed, opts) }
}

func (h *Handler) Name() string { return Name }
func (h *Handler) Path() string { return Path }

// Engine - The engine behind the handler
func (h *Handler) Engine() *Engine { return h.engine }

// Activate - Start listening for reactions
func (h *Handler) Activate(ctx context.Context) error {
	h.engine.Start(ctx)
	return nil
}

// Deactivate - Stop listening and wait for the listeners to return
func (h *Handler) Deactivate() error {
	h.engine.Stop()
	return nil
}

func (h *Handler) Commands() []modules.Command {
	return []modules.Command{
		{
			Name:        "rr",
			Aliases:     []string{"reactionroles"},
			Description: "create messages that assign roles based on reactions",
			Access:      modules.Privileged,
			Run:         h.reactionRoles,
		},
	}
}

func (h *Handler) reactionRoles(ctx *modules.Context) (string, error) {
	if !ctx.InGuild() {
		return "", errors.New("this command only works in a server")
	}

	switch {
	case ctx.Arg(0) == "new" && len(ctx.Args) >= 3:
		return h.create(ctx)
	case ctx.Arg(0) == "list" && len(ctx.Args) == 1:
		return h.list(ctx), nil
	default:
		return usage, nil
	}
}

func (h *Handler) create(ctx *modules.Context) (string, error) {
	channelID, err := parseChannel(ctx.Arg(1), ctx.ChannelID)
	if err != nil {
		return err.Error(), nil
	}

	pairs := make([]Pair, 0, len(ctx.Args)-3)
	for _, raw := range ctx.Args[3:] {
		p, err := parsePair(raw)
		if err != nil {
			return err.Error(), nil
		}
		pairs = append(pairs, p)
	}

	if _, err := h.engine.Create(ctx, ctx.GuildID, channelID, ctx.Arg(2), pairs); err != nil {
		return "", err
	}
	return "", nil
}

func (h *Handler) list(ctx *modules.Context) string {
	rrs := h.store.ReactionRoleMessages(ctx.GuildID, "")
	if len(rrs) == 0 {
		return "there are no reaction role messages in this server"
	}

	lines := []string{"```"}
	for _, rr := range rrs {
		lines = append(lines, fmt.Sprintf("%s  in #%s", rr.MessageID, rr.ChannelID))
		emojis := make([]string, 0, len(rr.Roles))
		for e := range rr.Roles {
			emojis = append(emojis, e)
		}
		sort.Strings(emojis)
		for _, e := range emojis {
			lines = append(lines, fmt.Sprintf("   %s  %s", e, rr.Roles[e]))
		}
	}
	lines = append(lines, "```")
	return strings.Join(lines, "\n")
}

func parseChannel(arg, here string) (string, error) {
	if arg == "here" {
		return here, nil
	}
	if strings.HasPrefix(arg, "<#") && strings.HasSuffix(arg, ">") {
		arg = mentionTrim.ReplaceAllString(arg, "")
	}
	if !snowflake.MatchString(arg) {
		return "", errors.New("invalid channel id")
	}
	return arg, nil
}

func parsePair(raw string) (Pair, error) {
	parts := strings.Split(raw, "=")
	if len(parts) != 2 {
		return Pair{}, fmt.Errorf("invalid pairing `%s`", raw)
	}
	emoji, roleID := parts[0], parts[1]
	if !isEmoji(emoji) {
		return Pair{}, fmt.Errorf("invalid emoji `%s`", emoji)
	}
	if strings.HasPrefix(roleID, "<@&") {
		roleID = mentionTrim.ReplaceAllString(roleID, "")
	}
	if !snowflake.MatchString(roleID) {
		return Pair{}, fmt.Errorf("invalid role id `%s`", roleID)
	}
	return Pair{Emoji: emoji, RoleID: roleID}, nil
}

// isEmoji - A single unicode emoji or a custom emoji in message format
func isEmoji(s string) bool {
	if customEmoji.MatchString(s) {
		return true
	}
	return gomoji.ContainsEmoji(s) && strings.TrimSpace(gomoji.RemoveEmojis(s)) == ""
}
