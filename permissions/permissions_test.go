package permissions

import (
	"testing"

	"github.com/cufee/reixi/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *database.Store {
	t.Helper()
	s, err := database.Open(t.TempDir(), "rx ")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func assertDisjoint(t *testing.T, p database.Privilege) {
	t.Helper()
	for _, r := range p.Allow {
		assert.NotContains(t, p.Deny, r, "role %s is both allowed and denied", r)
	}
}

func TestAdministratorIsAlwaysPrivileged(t *testing.T) {
	s := newStore(t)
	require.NoError(t, Set(s, "1", "x", "7", Deny))

	admin := Caller{ID: "u", IsAdministrator: true}
	assert.True(t, IsPrivileged(s, admin, "1", "x"))
	assert.True(t, IsPrivileged(s, admin, "1", ""))
	assert.True(t, IsPrivileged(s, Caller{IsAdministrator: true, Roles: []string{"7"}}, "1", "x"))
}

func TestNoModuleMeansAdministratorsOnly(t *testing.T) {
	s := newStore(t)
	require.NoError(t, Set(s, "1", "x", "7", Allow))
	assert.False(t, IsPrivileged(s, Caller{Roles: []string{"7"}}, "1", ""))
}

func TestAllowListGrantsAccess(t *testing.T) {
	s := newStore(t)
	require.NoError(t, Set(s, "1", "X", "7", Allow))

	assert.True(t, IsPrivileged(s, Caller{Roles: []string{"3", "7"}}, "1", "x"))
	assert.True(t, IsPrivileged(s, Caller{Roles: []string{"7"}}, "1", "X"))
	assert.False(t, IsPrivileged(s, Caller{Roles: []string{"3"}}, "1", "x"))
	assert.False(t, IsPrivileged(s, Caller{}, "1", "x"))
	assert.False(t, IsPrivileged(s, Caller{Roles: []string{"7"}}, "2", "x"))
}

func TestDenyOrUnlistedRolesAreNotPrivileged(t *testing.T) {
	s := newStore(t)
	require.NoError(t, Set(s, "1", "x", "7", Deny))

	assert.False(t, IsPrivileged(s, Caller{Roles: []string{"7"}}, "1", "x"))
	assert.False(t, IsPrivileged(s, Caller{Roles: []string{"8"}}, "1", "x"))
	// Module with no record behaves like an empty one
	assert.False(t, IsPrivileged(s, Caller{Roles: []string{"7"}}, "1", "unset"))
}

func TestSetKeepsAllowAndDenyDisjoint(t *testing.T) {
	s := newStore(t)

	steps := []struct {
		role string
		flag Flag
	}{
		{"7", Allow}, {"8", Allow}, {"7", Deny}, {"8", Deny}, {"7", Allow}, {"8", Remove}, {"9", Deny}, {"9", Allow},
	}
	for _, step := range steps {
		require.NoError(t, Set(s, "1", "x", step.role, step.flag))
		assertDisjoint(t, s.Privileges("1", "x"))
	}

	p := s.Privileges("1", "x")
	assert.ElementsMatch(t, []string{"7", "9"}, p.Allow)
	assert.Empty(t, p.Deny)
}

func TestRepeatedAllowIsNoOp(t *testing.T) {
	s := newStore(t)
	require.NoError(t, Set(s, "1", "x", "7", Allow))

	err := Set(s, "1", "x", "7", Allow)
	assert.ErrorIs(t, err, ErrNoChange)
	assert.Equal(t, []string{"7"}, s.Privileges("1", "x").Allow)

	assert.ErrorIs(t, Set(s, "1", "x", "8", Remove), ErrNoChange)
}

func TestParseFlag(t *testing.T) {
	f, ok := ParseFlag("ALLOW")
	assert.True(t, ok)
	assert.Equal(t, Allow, f)

	_, ok = ParseFlag("grant")
	assert.False(t, ok)
}

func TestCleanDropsUnknownModules(t *testing.T) {
	s := newStore(t)
	require.NoError(t, Set(s, "1", "core", "7", Allow))
	require.NoError(t, Set(s, "1", "gone", "7", Allow))

	require.NoError(t, Clean(s, "1", "*", []string{"core"}, nil, false))
	all := s.AllPrivileges("1")
	assert.Contains(t, all, "core")
	assert.NotContains(t, all, "gone")
}

func TestCleanDropsDeadRoles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, Set(s, "1", "core", "7", Allow))
	require.NoError(t, Set(s, "1", "core", "8", Deny))
	require.NoError(t, Set(s, "1", "other", "8", Allow))

	require.NoError(t, Clean(s, "1", "core", nil, []string{"7"}, true))
	assert.Equal(t, database.Privilege{Allow: []string{"7"}, Deny: []string{}}, s.Privileges("1", "core"))
	// Other modules are untouched
	assert.Equal(t, []string{"8"}, s.Privileges("1", "other").Allow)
}
