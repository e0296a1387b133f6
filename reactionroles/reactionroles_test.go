package reactionroles

import (
	"context"
	"testing"

	"github.com/cufee/reixi/modules"
	"github.com/cufee/reixi/platform"
	"github.com/cufee/reixi/platform/platformtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	id, err := parseChannel("here", "10")
	require.NoError(t, err)
	assert.Equal(t, "10", id)

	id, err = parseChannel("<#20>", "10")
	require.NoError(t, err)
	assert.Equal(t, "20", id)

	id, err = parseChannel("30", "10")
	require.NoError(t, err)
	assert.Equal(t, "30", id)

	_, err = parseChannel("general", "10")
	assert.Error(t, err)
}

func TestParsePair(t *testing.T) {
	p, err := parsePair("✅=55")
	require.NoError(t, err)
	assert.Equal(t, Pair{Emoji: "✅", RoleID: "55"}, p)

	p, err = parsePair("<:approve:769004759259545610>=<@&56>")
	require.NoError(t, err)
	assert.Equal(t, Pair{Emoji: "<:approve:769004759259545610>", RoleID: "56"}, p)

	for _, bad := range []string{"✅", "✅=55=1", "x=55", "✅=admins"} {
		_, err := parsePair(bad)
		assert.Error(t, err, bad)
	}
}

func TestCommandCreatesMessage(t *testing.T) {
	s := newStore(t)
	p := platformtest.New()
	p.AddGuild("1")
	p.AddChannel("1", "10")
	h := New(s, p, platform.NewFeed(1), Options{})

	cmd := h.Commands()[0]
	assert.Equal(t, modules.Privileged, cmd.Access)

	ctx := &modules.Context{
		Context:   context.Background(),
		GuildID:   "1",
		ChannelID: "10",
		Args:      []string{"new", "here", "pick one", "✅=55"},
	}
	reply, err := cmd.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, reply)
	assert.Len(t, s.ReactionRoleMessages("1", ""), 1)

	ctx.Args = []string{"list"}
	reply, err = cmd.Run(ctx)
	require.NoError(t, err)
	assert.Contains(t, reply, "✅  55")
}

func TestCommandReportsBadInput(t *testing.T) {
	s := newStore(t)
	h := New(s, platformtest.New(), platform.NewFeed(1), Options{})
	run := h.Commands()[0].Run

	reply, err := run(&modules.Context{Context: context.Background(), GuildID: "1", Args: []string{"new", "general", "msg"}})
	require.NoError(t, err)
	assert.Equal(t, "invalid channel id", reply)

	reply, err = run(&modules.Context{Context: context.Background(), GuildID: "1"})
	require.NoError(t, err)
	assert.Contains(t, reply, "usage:")

	_, err = run(&modules.Context{Context: context.Background(), Args: []string{"list"}})
	assert.Error(t, err)
}

func TestHandlerLifecycle(t *testing.T) {
	s := newStore(t)
	feed := platform.NewFeed(1)
	h := New(s, platformtest.New(), feed, Options{})

	require.NoError(t, h.Activate(context.Background()))
	assert.Equal(t, 2, feed.Subscribers())
	require.NoError(t, h.Deactivate())
	assert.Equal(t, 0, feed.Subscribers())
}
