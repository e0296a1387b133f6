package reactionroles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cufee/reixi/config"
	"github.com/cufee/reixi/database"
	"github.com/cufee/reixi/metrics"
	"github.com/cufee/reixi/platform"
	"github.com/rs/zerolog/log"
)

// Store - Settings the engine reads and writes
type Store interface {
	ReactionRoleMessages(gid string, mid string) []database.ReactionRoleMessage
	UpdateReactionRoleMessages(gid string, fn func([]database.ReactionRoleMessage) []database.ReactionRoleMessage) error
	GuildIDs() []string
}

// Outcome - What happened to a reaction event
type Outcome string

const (
	OutcomeDirectMessage  Outcome = "direct_message"
	OutcomeUnknownMessage Outcome = "unknown_message"
	OutcomeUnknownEmoji   Outcome = "unknown_emoji"
	OutcomeUnresolved     Outcome = "unresolved"
	OutcomeForbidden      Outcome = "forbidden"
	OutcomeFailed         Outcome = "failed"
	OutcomeGranted        Outcome = "granted"
	OutcomeRevoked        Outcome = "revoked"
)

var (
	// ErrNotTextChannel - Reaction role messages can only be posted in text channels
	ErrNotTextChannel = errors.New("channel is not a text channel")
	// ErrForeignChannel - The channel belongs to another guild
	ErrForeignChannel = errors.New("channel is not in this server")
	// ErrMissingPerms - The bot cannot post and react in the channel
	ErrMissingPerms = errors.New("missing permissions in the channel")
	// ErrDuplicateEmoji - An emoji can map to one role per message
	ErrDuplicateEmoji = errors.New("emoji is used more than once")
)

// Options - Sweep settings
type Options struct {
	Sweep         bool
	SweepInterval time.Duration
}

// Engine - Grants and revokes roles from reactions on stored messages
type Engine struct {
	store    Store
	platform platform.Platform
	feed     *platform.Feed
	opts     Options

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine - Engine reading events from feed
func NewEngine(store Store, p platform.Platform, feed *platform.Feed, opts Options) *Engine {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = config.SweepInterval
	}
	return &Engine{store: store, platform: p, feed: feed, opts: opts}
}

// Start - Spawn the add and remove listeners, and the sweep when enabled.
// The listeners outlive ctx's cancellation, they stop on Stop.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))

	for _, kind := range []platform.ReactionKind{platform.ReactionAdd, platform.ReactionRemove} {
		events, unsubscribe := e.feed.Subscribe(kind)
		e.wg.Add(1)
		go func(kind platform.ReactionKind) {
			defer e.wg.Done()
			defer unsubscribe()
			e.listen(ctx, kind, events)
		}(kind)
	}

	if e.opts.Sweep {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.sweepLoop(ctx)
		}()
	}
	log.Debug().Bool("sweep", e.opts.Sweep).Msg("started reaction role listeners")
}

// Stop - Cancel every background task and wait for them to return
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
	log.Debug().Msg("stopped reaction role listeners")
}

func (e *Engine) listen(ctx context.Context, kind platform.ReactionKind, events <-chan platform.ReactionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			outcome := e.safeHandle(ctx, ev)
			metrics.ReactionEvents.WithLabelValues(kind.String(), string(outcome)).Inc()
		}
	}
}

// safeHandle - A panic only loses the current event
func (e *Engine) safeHandle(ctx context.Context, ev platform.ReactionEvent) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("message_id", ev.MessageID).Msg("reaction handler panicked")
			outcome = OutcomeFailed
		}
	}()
	return e.Handle(ctx, ev)
}

// Handle - Grant or revoke the role mapped to the event's message and emoji
func (e *Engine) Handle(ctx context.Context, ev platform.ReactionEvent) Outcome {
	if ev.GuildID == "" {
		return OutcomeDirectMessage
	}

	rrs := e.store.ReactionRoleMessages(ev.GuildID, ev.MessageID)
	if len(rrs) == 0 {
		return OutcomeUnknownMessage
	}
	roleID, ok := rrs[0].Roles[ev.Emoji]
	if !ok {
		return OutcomeUnknownEmoji
	}

	logger := log.With().Str("guild", ev.GuildID).Str("message_id", ev.MessageID).Str("user", ev.UserID).Str("role", roleID).Logger()

	if _, err := e.platform.Guild(ctx, ev.GuildID); err != nil {
		logger.Debug().Err(err).Msg("could not get guild")
		return OutcomeUnresolved
	}
	role, err := e.platform.Role(ctx, ev.GuildID, roleID)
	if err != nil {
		logger.Debug().Err(err).Msg("could not get role")
		return OutcomeUnresolved
	}
	member, err := e.platform.Member(ctx, ev.GuildID, ev.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("could not get member")
		return OutcomeUnresolved
	}

	if ev.Kind == platform.ReactionRemove {
		err = e.platform.RemoveRole(ctx, ev.GuildID, member.UserID, role.ID)
	} else {
		err = e.platform.AddRole(ctx, ev.GuildID, member.UserID, role.ID)
	}
	switch {
	case errors.Is(err, platform.ErrForbidden):
		// Role is above the bot, nothing to do about it here
		return OutcomeForbidden
	case err != nil:
		logger.Error().Err(err).Msg("could not set role")
		return OutcomeFailed
	case ev.Kind == platform.ReactionRemove:
		logger.Debug().Msgf("removed role %s from %s", role.Name, member.Name)
		return OutcomeRevoked
	default:
		logger.Debug().Msgf("added role %s to %s", role.Name, member.Name)
		return OutcomeGranted
	}
}

func (e *Engine) sweepLoop(ctx context.Context) {
	e.Sweep(ctx)

	ticker := time.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep - Drop stored messages that no longer resolve on the platform
func (e *Engine) Sweep(ctx context.Context) (alive, dead int) {
	log.Debug().Msg("cleaning up dead reaction role messages")

	for _, gid := range e.store.GuildIDs() {
		deadIDs := make(map[string]bool)
		for _, rr := range e.store.ReactionRoleMessages(gid, "") {
			if err := e.resolve(ctx, rr); err != nil {
				if ctx.Err() != nil {
					// Cancelled mid sweep, a failed lookup here says nothing about the message
					return alive, dead
				}
				log.Debug().Err(err).Str("guild", gid).Str("message_id", rr.MessageID).Msg("reaction role message is dead")
				deadIDs[rr.MessageID] = true
				dead++
				continue
			}
			alive++
		}
		if len(deadIDs) == 0 {
			continue
		}

		err := e.store.UpdateReactionRoleMessages(gid, func(rrs []database.ReactionRoleMessage) []database.ReactionRoleMessage {
			kept := rrs[:0]
			for _, rr := range rrs {
				if !deadIDs[rr.MessageID] {
					kept = append(kept, rr)
				}
			}
			return kept
		})
		if err != nil {
			log.Error().Err(err).Str("guild", gid).Msg("could not save pruned reaction role messages")
			continue
		}
		metrics.SweepPruned.Add(float64(len(deadIDs)))
	}

	log.Debug().Int("dead", dead).Int("alive", alive).Msg("finished cleaning reaction roles")
	return alive, dead
}

func (e *Engine) resolve(ctx context.Context, rr database.ReactionRoleMessage) error {
	if _, err := e.platform.Guild(ctx, rr.GuildID); err != nil {
		return fmt.Errorf("guild: %w", err)
	}
	if _, err := e.platform.Channel(ctx, rr.ChannelID); err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	if _, err := e.platform.Message(ctx, rr.ChannelID, rr.MessageID); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	return nil
}

// Pair - One emoji to role mapping, in the order given by the operator
type Pair struct {
	Emoji  string
	RoleID string
}

// Create - Post a message, seed its reactions and only then store it
func (e *Engine) Create(ctx context.Context, gid, channelID, content string, pairs []Pair) (database.ReactionRoleMessage, error) {
	var rr database.ReactionRoleMessage

	roles := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if _, ok := roles[p.Emoji]; ok {
			return rr, fmt.Errorf("%s: %w", p.Emoji, ErrDuplicateEmoji)
		}
		roles[p.Emoji] = p.RoleID
	}

	channel, err := e.platform.Channel(ctx, channelID)
	if err != nil {
		return rr, fmt.Errorf("get channel: %w", err)
	}
	if !channel.Text {
		return rr, ErrNotTextChannel
	}
	if channel.GuildID != gid {
		return rr, ErrForeignChannel
	}
	perms, err := e.platform.BotPermissions(ctx, channelID)
	if err != nil {
		return rr, fmt.Errorf("check permissions: %w", err)
	}
	if perms&config.PermsCode != config.PermsCode {
		return rr, ErrMissingPerms
	}

	msg, err := e.platform.SendMessage(ctx, channelID, content)
	if err != nil {
		return rr, fmt.Errorf("send message: %w", err)
	}
	for _, p := range pairs {
		if err := e.platform.AddReaction(ctx, channelID, msg.ID, p.Emoji); err != nil {
			return rr, fmt.Errorf("add reaction %s: %w", p.Emoji, err)
		}
	}

	rr = database.ReactionRoleMessage{GuildID: gid, ChannelID: channelID, MessageID: msg.ID, Roles: roles}
	err = e.store.UpdateReactionRoleMessages(gid, func(rrs []database.ReactionRoleMessage) []database.ReactionRoleMessage {
		return append(rrs, rr)
	})
	if err != nil {
		return rr, err
	}
	log.Info().Str("guild", gid).Str("message_id", msg.ID).Int("roles", len(roles)).Msg("created reaction role message")
	return rr, nil
}
