package modules

import (
	"encoding/hex"
	"io/fs"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2s"
)

// HashLength - Number of hex characters kept from a fingerprint
const HashLength = 10

// Module - What the registry knows about a handler
type Module struct {
	Name   string
	Path   string
	Loaded bool
	Hash   string
}

// Unit - An active handler as passed to Refresh
type Unit struct {
	Name string
	Path string
}

// Registry - Every module seen during the process lifetime, loaded or not
type Registry struct {
	mu      sync.Mutex
	sources fs.FS
	modules []*Module
}

// NewRegistry - Registry that fingerprints module sources read from sources
func NewRegistry(sources fs.FS) *Registry {
	return &Registry{sources: sources}
}

// Fingerprint - Truncated blake2s hash of a source file
func Fingerprint(sources fs.FS, path string) (string, error) {
	bts, err := fs.ReadFile(sources, path)
	if err != nil {
		return "", err
	}
	sum := blake2s.Sum256(bts)
	return hex.EncodeToString(sum[:])[:HashLength], nil
}

// Refresh - Upsert every active unit by path and mark the rest as not loaded.
// A unit whose source cannot be hashed keeps its previous state.
func (r *Registry) Refresh(active []Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(active))
	for _, u := range active {
		seen[u.Path] = true

		hash, err := Fingerprint(r.sources, u.Path)
		if err != nil {
			log.Error().Err(err).Str("module", u.Name).Str("path", u.Path).Msg("unable to hash module")
			continue
		}

		if m := r.find(u.Path); m != nil {
			m.Name = u.Name
			m.Loaded = true
			m.Hash = hash
			continue
		}
		r.modules = append(r.modules, &Module{Name: u.Name, Path: u.Path, Loaded: true, Hash: hash})
		log.Debug().Str("module", u.Name).Str("path", u.Path).Str("hash", hash).Msg("registered module")
	}

	for _, m := range r.modules {
		if !seen[m.Path] {
			m.Loaded = false
		}
	}
	log.Info().Int("modules", len(r.modules)).Msg("refreshed module info")
}

// List - Copy of every module in registration order
func (r *Registry) List() []Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, *m)
	}
	return out
}

func (r *Registry) find(path string) *Module {
	for _, m := range r.modules {
		if m.Path == path {
			return m
		}
	}
	return nil
}
