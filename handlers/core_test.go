package handlers

import (
	"testing"

	"github.com/cufee/reixi/database"
	"github.com/cufee/reixi/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpHidesGatedCommands(t *testing.T) {
	e := newEnv(t)

	reply, err := e.invoke(permissions.Caller{ID: user}, "1", "help")
	require.NoError(t, err)
	assert.Contains(t, reply, "module core")
	assert.Contains(t, reply, "   status")
	assert.NotContains(t, reply, "gstate")
	assert.NotContains(t, reply, "moduleaccess")
	// Prefixes is loaded but not enabled here
	assert.NotContains(t, reply, "module serverprefixes")

	reply, err = e.invoke(permissions.Caller{ID: god, IsAdministrator: true}, "1", "help")
	require.NoError(t, err)
	assert.Contains(t, reply, "gstate")
	assert.Contains(t, reply, "moduleaccess")
}

func TestStatusListsModules(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.SetEnabledModules("1", []string{"core", "serverprefixes"}))

	reply, err := e.invoke(permissions.Caller{ID: god}, "1", "stat")
	require.NoError(t, err)
	assert.Contains(t, reply, "reixi version")
	assert.Contains(t, reply, "'guild-1' (prefix: 'rx ')")
	assert.Contains(t, reply, "is god")
	assert.Regexp(t, `ServerPrefixes  loaded  enabled  [0-9a-f]{10}`, reply)
}

func TestGmod(t *testing.T) {
	e := newEnv(t)
	caller := permissions.Caller{ID: god}

	reply, err := e.invoke(caller, "1", "gmod", "unload", "core")
	require.NoError(t, err)
	assert.Equal(t, "core module will forever be loaded", reply)

	reply, err = e.invoke(caller, "1", "gmod", "unload", "serverprefixes")
	require.NoError(t, err)
	assert.Empty(t, reply)

	reply, err = e.invoke(caller, "1", "gmod", "list")
	require.NoError(t, err)
	assert.Contains(t, reply, "handlers/prefixes.go  unloaded")

	reply, err = e.invoke(caller, "1", "gmod", "load", "handlers/prefixes.go")
	require.NoError(t, err)
	assert.Empty(t, reply)
	assert.Len(t, e.manager.Loaded(), 2)

	reply, err = e.invoke(caller, "1", "gmod", "load", "missing")
	require.NoError(t, err)
	assert.Equal(t, "module 'missing' does not exist", reply)
}

func TestLocalModules(t *testing.T) {
	e := newEnv(t)
	caller := permissions.Caller{ID: admin, IsAdministrator: true}

	reply, err := e.invoke(caller, "1", "modules", "disable", "Core")
	require.NoError(t, err)
	assert.Equal(t, "core module will forever be loaded", reply)

	reply, err = e.invoke(caller, "1", "modules", "enable", "ghost")
	require.NoError(t, err)
	assert.Equal(t, "module 'ghost' does not exist", reply)

	reply, err = e.invoke(caller, "1", "modules", "disable", "ServerPrefixes")
	require.NoError(t, err)
	assert.Equal(t, "module 'ServerPrefixes' is already disabled", reply)

	_, err = e.invoke(caller, "1", "modules", "enable", "ServerPrefixes")
	require.NoError(t, err)
	reply, err = e.invoke(caller, "1", "modules", "enable", "serverprefixes")
	require.NoError(t, err)
	assert.Equal(t, "module 'serverprefixes' is already enabled", reply)

	_, err = e.invoke(caller, "1", "modules", "disable", "serverprefixes")
	require.NoError(t, err)
	assert.Equal(t, []string{"core"}, e.store.EnabledModules("1"))
}

func TestModuleAccessSet(t *testing.T) {
	e := newEnv(t)
	caller := permissions.Caller{ID: admin, IsAdministrator: true}

	reply, err := e.invoke(caller, "1", "modacs", "set", "<@&55>", "ServerPrefixes", "allow")
	require.NoError(t, err)
	assert.Contains(t, reply, "serverprefixes\n   allow\n      55  mods")
	assert.Equal(t, []string{"55"}, e.store.Privileges("1", "serverprefixes").Allow)

	reply, err = e.invoke(caller, "1", "modacs", "set", "55", "serverprefixes", "allow")
	require.NoError(t, err)
	assert.Contains(t, reply, "no changes made")

	reply, err = e.invoke(caller, "1", "modacs", "set", "55", "serverprefixes", "deny")
	require.NoError(t, err)
	assert.Contains(t, reply, "   deny\n      55  mods")
	p := e.store.Privileges("1", "serverprefixes")
	assert.Empty(t, p.Allow)
	assert.Equal(t, []string{"55"}, p.Deny)

	reply, err = e.invoke(caller, "1", "modacs", "set", "404", "serverprefixes", "allow")
	require.NoError(t, err)
	assert.Equal(t, "role `404` does not exist", reply)

	reply, err = e.invoke(caller, "1", "modacs", "set", "55", "ghost", "allow")
	require.NoError(t, err)
	assert.Contains(t, reply, "does not exist")

	reply, err = e.invoke(caller, "1", "modacs", "set", "55", "serverprefixes", "maybe")
	require.NoError(t, err)
	assert.Equal(t, "SETTING should be a choice from `allow`, `deny`, `remove`", reply)
}

func TestModuleAccessListAndClean(t *testing.T) {
	e := newEnv(t)
	caller := permissions.Caller{ID: admin, IsAdministrator: true}

	reply, err := e.invoke(caller, "1", "moduleaccess", "list")
	require.NoError(t, err)
	assert.Equal(t, "```\nno module privileges have yet been set\n```", reply)

	require.NoError(t, e.store.SetAllPrivileges("1", map[string]database.Privilege{
		"ghost":          {Allow: []string{"55"}},
		"serverprefixes": {Allow: []string{"55", "999"}},
	}))

	reply, err = e.invoke(caller, "1", "moduleaccess", "list")
	require.NoError(t, err)
	assert.Contains(t, reply, "ghost ⚠️")
	assert.Contains(t, reply, "999  ⚠️")

	reply, err = e.invoke(caller, "1", "moduleaccess", "list", "roles")
	require.NoError(t, err)
	assert.Contains(t, reply, "56  members")

	_, err = e.invoke(caller, "1", "moduleaccess", "clean", "*")
	require.NoError(t, err)
	all := e.store.AllPrivileges("1")
	assert.NotContains(t, all, "ghost")
	assert.Equal(t, []string{"55", "999"}, all["serverprefixes"].Allow)

	reply, err = e.invoke(caller, "1", "moduleaccess", "clean", "serverprefixes", "-r")
	require.NoError(t, err)
	assert.Equal(t, []string{"55"}, e.store.Privileges("1", "serverprefixes").Allow)
	assert.NotContains(t, reply, "999")
}
