package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

const testPrefix = "rx "

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, testPrefix)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func putRaw(t *testing.T, dir string, bucket, key, value string) {
	t.Helper()
	db, err := bolt.Open(filepath.Join(dir, FileName), 0600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	}))
}

func TestPrefixDefaultsAndRoundTrip(t *testing.T) {
	s := openStore(t, t.TempDir())

	assert.Equal(t, testPrefix, s.Prefix("1"))

	require.NoError(t, s.SetPrefix("1", "!"))
	assert.Equal(t, "!", s.Prefix("1"))
	assert.Equal(t, testPrefix, s.Prefix("2"))

	require.NoError(t, s.SetPrefix("1", ""))
	assert.Equal(t, testPrefix, s.Prefix("1"))
}

func TestEnabledModulesDefaultAndSet(t *testing.T) {
	s := openStore(t, t.TempDir())

	assert.Equal(t, []string{"core"}, s.EnabledModules("42"))

	require.NoError(t, s.SetEnabledModules("42", []string{"Core", "ReactionRoles", "core"}))
	assert.ElementsMatch(t, []string{"core", "reactionroles"}, s.EnabledModules("42"))
	assert.True(t, s.ModuleEnabled("42", "REACTIONROLES"))
	assert.False(t, s.ModuleEnabled("43", "reactionroles"))
}

func TestDefaultSettingsAreNeverShared(t *testing.T) {
	s := openStore(t, t.TempDir())

	mods := s.EnabledModules("7")
	mods[0] = "tampered"
	privs := s.AllPrivileges("7")
	privs["x"] = Privilege{Allow: []string{"1"}}

	assert.Equal(t, []string{"core"}, s.EnabledModules("8"))
	assert.Empty(t, s.AllPrivileges("8"))
	assert.Empty(t, s.GuildIDs())
}

func TestPrivilegesAccessors(t *testing.T) {
	s := openStore(t, t.TempDir())

	p := s.Privileges("1", "x")
	assert.True(t, p.Empty())

	p.AllowRole("7")
	require.NoError(t, s.SetPrivileges("1", "X", p))
	assert.Equal(t, []string{"7"}, s.Privileges("1", "x").Allow)

	all := s.AllPrivileges("1")
	require.Contains(t, all, "x")

	require.NoError(t, s.SetAllPrivileges("1", map[string]Privilege{"Y": {Deny: []string{"9"}}}))
	all = s.AllPrivileges("1")
	assert.NotContains(t, all, "x")
	assert.Equal(t, []string{"9"}, all["y"].Deny)
}

func TestReactionRoleMessagesFilter(t *testing.T) {
	s := openStore(t, t.TempDir())

	rrs := []ReactionRoleMessage{
		{GuildID: "1", ChannelID: "10", MessageID: "100", Roles: map[string]string{"✅": "55"}},
		{GuildID: "1", ChannelID: "10", MessageID: "101", Roles: map[string]string{"❌": "56"}},
	}
	require.NoError(t, s.SetReactionRoleMessages("1", rrs))

	assert.Len(t, s.ReactionRoleMessages("1", ""), 2)

	one := s.ReactionRoleMessages("1", "101")
	require.Len(t, one, 1)
	assert.Equal(t, "56", one[0].Roles["❌"])

	assert.Empty(t, s.ReactionRoleMessages("1", "999"))
	assert.Empty(t, s.ReactionRoleMessages("2", ""))

	// Returned values are copies
	one[0].Roles["❌"] = "0"
	assert.Equal(t, "56", s.ReactionRoleMessages("1", "101")[0].Roles["❌"])
}

func TestUpdateReactionRoleMessages(t *testing.T) {
	s := openStore(t, t.TempDir())

	add := func(mid string) func([]ReactionRoleMessage) []ReactionRoleMessage {
		return func(rrs []ReactionRoleMessage) []ReactionRoleMessage {
			return append(rrs, ReactionRoleMessage{GuildID: "1", MessageID: mid, Roles: map[string]string{}})
		}
	}
	require.NoError(t, s.UpdateReactionRoleMessages("1", add("100")))
	require.NoError(t, s.UpdateReactionRoleMessages("1", add("101")))

	rrs := s.ReactionRoleMessages("1", "")
	require.Len(t, rrs, 2)
	assert.Equal(t, "100", rrs[0].MessageID)
	assert.Equal(t, "101", rrs[1].MessageID)
}

func TestReactionRoleMessagesAreUniquePerMessage(t *testing.T) {
	s := openStore(t, t.TempDir())

	require.NoError(t, s.SetReactionRoleMessages("1", []ReactionRoleMessage{
		{GuildID: "1", ChannelID: "10", MessageID: "100", Roles: map[string]string{"✅": "55"}},
		{GuildID: "1", ChannelID: "10", MessageID: "101", Roles: map[string]string{"❌": "56"}},
		{GuildID: "1", ChannelID: "10", MessageID: "100", Roles: map[string]string{"✅": "57"}},
	}))

	rrs := s.ReactionRoleMessages("1", "")
	require.Len(t, rrs, 2)
	assert.Equal(t, "100", rrs[0].MessageID)
	assert.Equal(t, "57", rrs[0].Roles["✅"])
	assert.Equal(t, "101", rrs[1].MessageID)
}

func TestStoredModuleNamesAreLowerCased(t *testing.T) {
	dir := t.TempDir()
	putRaw(t, dir, "guilds", "4", `{"enabledModules":["core","ReactionRoles","reactionroles"]}`)

	s := openStore(t, dir)
	assert.Equal(t, []string{"core", "reactionroles"}, s.EnabledModules("4"))
	assert.True(t, s.ModuleEnabled("4", "ReactionRoles"))
}

func TestSettingsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testPrefix)
	require.NoError(t, err)
	require.NoError(t, s.SetPrefix("5", "?"))
	require.NoError(t, s.SetEnabledModules("5", []string{"core", "serverprefixes"}))
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	assert.Equal(t, "?", s.Prefix("5"))
	assert.Equal(t, []string{"core", "serverprefixes"}, s.EnabledModules("5"))
	assert.Equal(t, LoadStats{Loaded: 1}, s.LoadStats())
}

func TestMalformedGuildRecordIsIsolated(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testPrefix)
	require.NoError(t, err)
	require.NoError(t, s.SetPrefix("1", "!"))
	require.NoError(t, s.Close())

	putRaw(t, dir, "guilds", "2", "{not json")
	putRaw(t, dir, "guilds", "3", `{"prefix":"$","somethingNew":true}`)

	s = openStore(t, dir)
	assert.Equal(t, LoadStats{Loaded: 2, Failed: 1}, s.LoadStats())
	assert.Equal(t, "!", s.Prefix("1"))
	assert.Equal(t, testPrefix, s.Prefix("2"))
	assert.Equal(t, "$", s.Prefix("3"))
	// Missing fields take defaults
	assert.Equal(t, []string{"core"}, s.EnabledModules("3"))
}

func TestMissingConfigIsCreated(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	assert.Equal(t, DefaultConfig(), s.Config())
	assert.False(t, s.IsGod("1"))
}

func TestConfigIsRead(t *testing.T) {
	dir := t.TempDir()
	putRaw(t, dir, "config", "global", `{"gods":["11"],"modules":["handlers/prefixes.go"]}`)

	s := openStore(t, dir)
	assert.True(t, s.IsGod("11"))
	assert.Equal(t, []string{"handlers/prefixes.go"}, s.Config().Modules)
}

func TestReloadIsIdempotent(t *testing.T) {
	s := openStore(t, t.TempDir())
	require.NoError(t, s.SetPrefix("1", "!"))
	require.NoError(t, s.SetReactionRoleMessages("2", []ReactionRoleMessage{
		{GuildID: "2", ChannelID: "20", MessageID: "200", Roles: map[string]string{"✅": "55"}},
	}))

	before := snapshot(s)
	assert.Empty(t, s.Reload(true, true))
	first := snapshot(s)
	assert.Empty(t, s.Reload(true, true))
	second := snapshot(s)

	assert.Equal(t, before, first)
	assert.Equal(t, first, second)
}

func TestReloadLoadPicksUpStoredState(t *testing.T) {
	dir := t.TempDir()
	s := openStore(t, dir)
	require.NoError(t, s.SetPrefix("1", "!"))

	// Change the in-memory copy without persisting, then load from disk
	s.mu.Lock()
	s.guilds["1"].Prefix = "unsaved"
	s.mu.Unlock()

	assert.Empty(t, s.Reload(false, true))
	assert.Equal(t, "!", s.Prefix("1"))
}

func TestReloadDumpFailureSkipsLoad(t *testing.T) {
	s, err := Open(t.TempDir(), testPrefix)
	require.NoError(t, err)
	require.NoError(t, s.SetPrefix("1", "!"))
	require.NoError(t, s.SetPrefix("2", "?"))
	require.NoError(t, s.Close())

	errs := s.Reload(true, true)
	require.Len(t, errs, 3)
	for _, e := range errs {
		assert.Contains(t, e.Message, "could not save")
		assert.ErrorIs(t, e, bolt.ErrDatabaseNotOpen)
	}
	// In-memory state is untouched by the skipped loads
	assert.Equal(t, "!", s.Prefix("1"))
	assert.Equal(t, "?", s.Prefix("2"))
}

func TestWriteFailureIsReported(t *testing.T) {
	s, err := Open(t.TempDir(), testPrefix)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.SetPrefix("1", "!")
	assert.ErrorIs(t, err, bolt.ErrDatabaseNotOpen)
}

type storeSnapshot struct {
	config GlobalConfig
	guilds map[string]GuildSettings
}

func snapshot(s *Store) storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storeSnapshot{config: s.config, guilds: make(map[string]GuildSettings)}
	for k, v := range s.guilds {
		snap.guilds[k] = v.copy()
	}
	return snap
}
