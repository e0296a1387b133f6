package modules

import (
	"context"
	"errors"

	"github.com/cufee/reixi/permissions"
)

var (
	// ErrUnknownModule - No module is registered under that path
	ErrUnknownModule = errors.New("module does not exist")
	// ErrAlreadyLoaded - Module is loaded already
	ErrAlreadyLoaded = errors.New("module is already loaded")
	// ErrNotLoaded - Module is not loaded
	ErrNotLoaded = errors.New("module is not loaded")
	// ErrCoreModule - Core module will forever be loaded
	ErrCoreModule = errors.New("core module will forever be loaded")
)

// Access - Who may run a command
type Access int

const (
	// Everyone - No checks beyond the module being enabled in the guild
	Everyone Access = iota
	// Privileged - Caller must be privileged for the command's module
	Privileged
	// God - Caller must be an operator
	God
)

// Context - A single command invocation
type Context struct {
	context.Context

	Caller     permissions.Caller
	CallerName string
	// Empty in direct messages
	GuildID   string
	ChannelID string
	MessageID string
	// Arguments after the command name
	Args []string

	// Caller is privileged for the module the command belongs to
	Privileged bool
	// Caller is an operator
	God bool
}

// InGuild - Check if the command was sent in a guild
func (c *Context) InGuild() bool {
	return c.GuildID != ""
}

// Arg - Argument n or an empty string
func (c *Context) Arg(n int) string {
	if n < 0 || n >= len(c.Args) {
		return ""
	}
	return c.Args[n]
}

// Command - A command exposed by a handler.
// Run returns the reply text, an empty reply with a nil error means success without a reply.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Access      Access
	Run         func(ctx *Context) (string, error)
}

// Matches - Check a name against the command name and aliases
func (c Command) Matches(name string) bool {
	if c.Name == name {
		return true
	}
	for _, a := range c.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// Handler - A loadable bundle of commands
type Handler interface {
	// Display name
	Name() string
	// Stable identity, also the path of the source file used for the fingerprint
	Path() string
	Commands() []Command
}

// Activator - Handlers with background work start it here
type Activator interface {
	Activate(ctx context.Context) error
}

// Deactivator - Handlers with background work stop it here and wait for it to finish
type Deactivator interface {
	Deactivate() error
}

// Factory - Builds a fresh handler for every load
type Factory func() Handler
