package modules

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager - Loads, unloads and reloads handlers at runtime.
// Lifecycle hooks run with the manager locked and must not call back into it.
type Manager struct {
	mu         sync.Mutex
	registry   *Registry
	factories  map[string]Factory
	loaded     map[string]Handler
	order      []string
	corePath   string
	generation uint64
}

// NewManager - Manager reporting to registry
func NewManager(registry *Registry) *Manager {
	return &Manager{
		registry:  registry,
		factories: make(map[string]Factory),
		loaded:    make(map[string]Handler),
	}
}

// Register - Make a handler available for loading under path
func (m *Manager) Register(path string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[path] = f
}

// SetCore - Load the core handler, it can never be unloaded
func (m *Manager) SetCore(ctx context.Context, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.corePath = h.Path()
	m.factories[h.Path()] = func() Handler { return h }
	return m.load(ctx, h.Path())
}

// Load - Build and activate the handler registered under path
func (m *Manager) Load(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if path == m.corePath {
		return ErrCoreModule
	}
	return m.load(ctx, path)
}

// Unload - Deactivate and drop a loaded handler
func (m *Manager) Unload(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if path == m.corePath {
		return ErrCoreModule
	}
	return m.unload(path)
}

// Reload - Unload then load a handler
func (m *Manager) Reload(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if path == m.corePath {
		return ErrCoreModule
	}
	if err := m.unload(path); err != nil {
		return err
	}
	return m.load(ctx, path)
}

// Shutdown - Deactivate every handler, core last
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		p := m.order[i]
		m.deactivate(p, m.loaded[p])
	}
	m.loaded = make(map[string]Handler)
	m.order = nil
	m.generation++
	m.refresh()
}

func (m *Manager) load(ctx context.Context, path string) error {
	if _, ok := m.loaded[path]; ok {
		return fmt.Errorf("%s: %w", path, ErrAlreadyLoaded)
	}
	f, ok := m.factories[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrUnknownModule)
	}

	h := f()
	if a, ok := h.(Activator); ok {
		if err := a.Activate(ctx); err != nil {
			return fmt.Errorf("activate %s: %w", path, err)
		}
	}
	m.loaded[path] = h
	m.order = append(m.order, path)
	m.generation++
	m.refresh()

	log.Info().Str("module", h.Name()).Str("path", path).Msg("loaded module")
	return nil
}

func (m *Manager) unload(path string) error {
	h, ok := m.loaded[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotLoaded)
	}
	m.deactivate(path, h)

	delete(m.loaded, path)
	for i, p := range m.order {
		if p == path {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.generation++
	m.refresh()

	log.Info().Str("module", h.Name()).Str("path", path).Msg("unloaded module")
	return nil
}

// deactivate - Errors are logged, the handler is dropped regardless
func (m *Manager) deactivate(path string, h Handler) {
	d, ok := h.(Deactivator)
	if !ok {
		return
	}
	if err := d.Deactivate(); err != nil {
		log.Error().Err(err).Str("path", path).Msg("module did not deactivate cleanly")
	}
}

func (m *Manager) refresh() {
	units := make([]Unit, 0, len(m.order))
	for _, p := range m.order {
		units = append(units, Unit{Name: m.loaded[p].Name(), Path: p})
	}
	m.registry.Refresh(units)
}

// Refresh - Re-derive module info for the loaded handlers
func (m *Manager) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh()
}

// Modules - Every module the registry knows
func (m *Manager) Modules() []Module {
	return m.registry.List()
}

// Resolve - Find a registered path by path, display name or file name, case insensitive
func (m *Manager) Resolve(arg string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.factories[arg]; ok {
		return arg, true
	}
	for _, mod := range m.registry.List() {
		if strings.EqualFold(mod.Name, arg) {
			return mod.Path, true
		}
	}
	for p := range m.factories {
		if strings.EqualFold(strings.TrimSuffix(path.Base(p), ".go"), arg) {
			return p, true
		}
	}
	return "", false
}

// CorePath - Path of the core handler
func (m *Manager) CorePath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.corePath
}

// Loaded - Loaded handlers in load order
func (m *Manager) Loaded() []Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handler, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, m.loaded[p])
	}
	return out
}

// Available - Every registered path, sorted
func (m *Manager) Available() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.factories))
	for p := range m.factories {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Lookup - Find a loaded command by name or alias
func (m *Manager) Lookup(name string) (Handler, Command, bool) {
	for _, h := range m.Loaded() {
		for _, c := range h.Commands() {
			if c.Matches(name) {
				return h, c, true
			}
		}
	}
	return nil, Command{}, false
}

// CommandNames - Names and aliases of every loaded command
func (m *Manager) CommandNames() []string {
	var names []string
	for _, h := range m.Loaded() {
		for _, c := range h.Commands() {
			names = append(names, c.Name)
			names = append(names, c.Aliases...)
		}
	}
	return names
}

// Generation - Changes every time the set of loaded handlers changes
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}
