package handlers

import (
	"fmt"

	"github.com/cufee/reixi/database"
	"github.com/cufee/reixi/modules"
)

const (
	// PrefixesName - Display name of the server prefixes module
	PrefixesName = "ServerPrefixes"
	// PrefixesPath - Module identity and fingerprinted source of the server prefixes module
	PrefixesPath = "handlers/prefixes.go"
)

// Prefixes - Per server prefixes
type Prefixes struct {
	store *database.Store
}

// NewPrefixes - Server prefixes module
func NewPrefixes(store *database.Store) *Prefixes {
	return &Prefixes{store: store}
}

// PrefixesFactory - Builds a fresh prefixes handler on every load
func PrefixesFactory(store *database.Store) modules.Factory {
	return func() modules.Handler { return NewPrefixes(store) }
}

func (p *Prefixes) Name() string { return PrefixesName }
func (p *Prefixes) Path() string { return PrefixesPath }

func (p *Prefixes) Commands() []modules.Command {
	return []modules.Command{
		{Name: "pre", Aliases: []string{"prefix"}, Description: "displays, sets or resets the server prefix", Run: p.prefix},
	}
}

func (p *Prefixes) prefix(ctx *modules.Context) (string, error) {
	switch {
	case len(ctx.Args) == 0:
		return fmt.Sprintf("the current prefix is `\"%s\"`", p.store.Prefix(ctx.GuildID)), nil

	case ctx.Arg(0) == "reset" && len(ctx.Args) == 1:
		if !ctx.Privileged {
			return "", ErrDenied
		}
		return "", p.store.SetPrefix(ctx.GuildID, p.store.DefaultPrefix())

	case ctx.Arg(0) == "set" && len(ctx.Args) == 2:
		if !ctx.Privileged {
			return "", ErrDenied
		}
		return "", p.store.SetPrefix(ctx.GuildID, ctx.Arg(1))
	}

	usage := "```\n" +
		"displays or manages the server prefix\n" +
		"\n" +
		"usage:\n" +
		"   pre\n" +
		"      displays the current prefix"
	if ctx.Privileged {
		usage += "\n" +
			"   pre reset\n" +
			"      resets the prefix to the default\n" +
			"   pre set PREFIX\n" +
			"      sets the prefix to PREFIX"
	}
	return usage + "\n```", nil
}
