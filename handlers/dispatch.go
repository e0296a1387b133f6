package handlers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/Necroforger/dgrouter"
	"github.com/Necroforger/dgrouter/exrouter"
	"github.com/bwmarrin/discordgo"
	"github.com/cufee/reixi/config"
	"github.com/cufee/reixi/database"
	"github.com/cufee/reixi/metrics"
	"github.com/cufee/reixi/modules"
	"github.com/cufee/reixi/permissions"
	"github.com/cufee/reixi/platform"
	"github.com/rs/zerolog/log"
)

var (
	// ErrUnknownCommand - No loaded module has the command
	ErrUnknownCommand = errors.New("unknown command")
	// ErrDenied - The caller may not run the command here, callers stay silent
	ErrDenied = errors.New("command denied")
	// ErrInternal - The command panicked
	ErrInternal = errors.New("internal error")
)

// Dispatcher - Routes commands to loaded modules and enforces module and privilege gates
type Dispatcher struct {
	store   *database.Store
	manager *modules.Manager
	discord *platform.Discord

	mu         sync.Mutex
	router     *exrouter.Route
	generation uint64
}

// NewDispatcher - Dispatcher over the loaded modules of manager. discord may be nil when only Invoke is used
func NewDispatcher(store *database.Store, manager *modules.Manager, discord *platform.Discord) *Dispatcher {
	return &Dispatcher{store: store, manager: manager, discord: discord}
}

// Invoke - Run a command on behalf of the caller in ctx
func (d *Dispatcher) Invoke(ctx *modules.Context, name string) (reply string, err error) {
	h, cmd, ok := d.manager.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrUnknownCommand)
	}
	defer func() { metrics.Commands.WithLabelValues(cmd.Name, metrics.Result(err)).Inc() }()

	module := strings.ToLower(h.Name())
	if h.Path() != d.manager.CorePath() {
		if !ctx.InGuild() || !d.store.ModuleEnabled(ctx.GuildID, module) {
			return "", ErrDenied
		}
	}

	ctx.God = d.store.IsGod(ctx.Caller.ID)
	ctx.Privileged = permissions.IsPrivileged(d.store, ctx.Caller, ctx.GuildID, module)

	switch cmd.Access {
	case modules.God:
		if !ctx.God {
			return "", ErrDenied
		}
	case modules.Privileged:
		if !ctx.Privileged {
			return "", ErrDenied
		}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("command", cmd.Name).Bytes("stack", debug.Stack()).Msg("command panicked")
			reply, err = "", ErrInternal
		}
	}()
	return cmd.Run(ctx)
}

// OnMessage - discordgo handler for new messages
func (d *Dispatcher) OnMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	msg := m.Message
	prefix := config.DefaultPrefix
	if m.GuildID != "" {
		prefix = d.store.Prefix(m.GuildID)
	} else if !strings.HasPrefix(msg.Content, prefix) {
		// Prefixes are optional in direct messages
		dm := *m.Message
		dm.Content = prefix + dm.Content
		msg = &dm
	}

	err := d.routes().FindAndExecute(s, prefix, s.State.User.ID, msg)
	if !errors.Is(err, dgrouter.ErrCouldNotFindRoute) || !strings.HasPrefix(msg.Content, prefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(msg.Content, prefix))
	if len(fields) == 0 {
		return
	}
	if name, ok := closest(fields[0], d.manager.CommandNames()); ok {
		s.ChannelMessageSendReply(m.ChannelID, fmt.Sprintf("did you mean `%s`?", name), m.Reference())
	}
}

// routes - Route tree for the loaded modules, rebuilt when modules change
func (d *Dispatcher) routes() *exrouter.Route {
	d.mu.Lock()
	defer d.mu.Unlock()

	gen := d.manager.Generation()
	if d.router != nil && gen == d.generation {
		return d.router
	}

	router := exrouter.New()
	for _, h := range d.manager.Loaded() {
		for _, cmd := range h.Commands() {
			name := cmd.Name
			for _, n := range append([]string{cmd.Name}, cmd.Aliases...) {
				router.On(n, func(ctx *exrouter.Context) { d.run(ctx, name) })
			}
		}
	}
	d.router = router
	d.generation = gen
	return router
}

// run - Build the invocation context from a routed message and send the result back
func (d *Dispatcher) run(ec *exrouter.Context, name string) {
	ctx := &modules.Context{
		Context:    context.Background(),
		Caller:     permissions.Caller{ID: ec.Msg.Author.ID},
		CallerName: ec.Msg.Author.Username,
		GuildID:    ec.Msg.GuildID,
		ChannelID:  ec.Msg.ChannelID,
		MessageID:  ec.Msg.ID,
	}
	if len(ec.Args) > 1 {
		ctx.Args = []string(ec.Args[1:])
	}

	if ctx.InGuild() && d.discord != nil {
		if ec.Msg.Member != nil {
			ctx.Caller.Roles = ec.Msg.Member.Roles
		} else if member, err := d.discord.Member(ctx, ctx.GuildID, ctx.Caller.ID); err == nil {
			ctx.Caller.Roles = member.Roles
		}
		if perms, err := d.discord.MemberPermissions(ctx, ctx.Caller.ID, ctx.ChannelID); err == nil {
			ctx.Caller.IsAdministrator = platform.IsAdministrator(perms)
		} else {
			log.Warn().Err(err).Str("user", ctx.Caller.ID).Msg("failed to check member permissions")
		}
	}

	reply, err := d.Invoke(ctx, name)
	switch {
	case errors.Is(err, ErrDenied):
		return
	case err != nil:
		reply = fmt.Sprintf("```\n%v\n```", err)
	case reply == "":
		if err := ec.Ses.MessageReactionAdd(ec.Msg.ChannelID, ec.Msg.ID, config.SuccessReaction); err != nil {
			log.Debug().Err(err).Msg("failed to add success reaction")
		}
		return
	}

	for _, chunk := range chunkReply(reply, config.MessageLimit) {
		if _, err := ec.Reply(chunk); err != nil {
			log.Error().Err(err).Str("channel", ec.Msg.ChannelID).Msg("failed to send a reply")
			return
		}
	}
}
