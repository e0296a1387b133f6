package main

import "embed"

// moduleSources - Sources of the builtin modules, fingerprinted by the module registry
//
//go:embed handlers/core.go handlers/prefixes.go reactionroles/reactionroles.go
var moduleSources embed.FS
