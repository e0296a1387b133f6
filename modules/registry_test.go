package modules

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSources() fstest.MapFS {
	return fstest.MapFS{
		"handlers/core.go":               {Data: []byte("package handlers // core")},
		"handlers/prefixes.go":           {Data: []byte("package handlers // prefixes")},
		"reactionroles/reactionroles.go": {Data: []byte("package reactionroles")},
	}
}

func TestFingerprintIsTruncatedAndStable(t *testing.T) {
	src := testSources()
	a, err := Fingerprint(src, "handlers/core.go")
	require.NoError(t, err)
	assert.Len(t, a, HashLength)

	b, err := Fingerprint(src, "handlers/core.go")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Fingerprint(src, "handlers/prefixes.go")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = Fingerprint(src, "missing.go")
	assert.Error(t, err)
}

func TestRefreshIsIdempotent(t *testing.T) {
	r := NewRegistry(testSources())
	active := []Unit{
		{Name: "Core", Path: "handlers/core.go"},
		{Name: "ReactionRoles", Path: "reactionroles/reactionroles.go"},
	}
	r.Refresh(active)
	first := r.List()
	r.Refresh(active)
	assert.Equal(t, first, r.List())
	assert.Len(t, first, 2)
}

func TestRefreshKeepsInactiveModules(t *testing.T) {
	r := NewRegistry(testSources())
	r.Refresh([]Unit{
		{Name: "Core", Path: "handlers/core.go"},
		{Name: "ServerPrefixes", Path: "handlers/prefixes.go"},
	})
	r.Refresh([]Unit{{Name: "Core", Path: "handlers/core.go"}})

	list := r.List()
	require.Len(t, list, 2)
	assert.True(t, list[0].Loaded)
	assert.Equal(t, "ServerPrefixes", list[1].Name)
	assert.False(t, list[1].Loaded)
	assert.NotEmpty(t, list[1].Hash)
}

func TestRefreshKeysOnPathNotName(t *testing.T) {
	r := NewRegistry(testSources())
	r.Refresh([]Unit{{Name: "Prefixes", Path: "handlers/prefixes.go"}})
	r.Refresh([]Unit{{Name: "ServerPrefixes", Path: "handlers/prefixes.go"}})

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, "ServerPrefixes", list[0].Name)
}

func TestRefreshSkipsUnhashableModule(t *testing.T) {
	src := testSources()
	r := NewRegistry(src)
	r.Refresh([]Unit{{Name: "ServerPrefixes", Path: "handlers/prefixes.go"}})
	before := r.List()[0]

	delete(src, "handlers/prefixes.go")
	r.Refresh([]Unit{
		{Name: "ServerPrefixes", Path: "handlers/prefixes.go"},
		{Name: "Ghost", Path: "ghost/ghost.go"},
	})

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, before, list[0])
}
