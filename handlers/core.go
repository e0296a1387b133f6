package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cufee/reixi/config"
	"github.com/cufee/reixi/database"
	"github.com/cufee/reixi/modules"
	"github.com/cufee/reixi/permissions"
	"github.com/cufee/reixi/platform"
	"github.com/rs/zerolog/log"
)

const (
	// CoreName - Display name of the core module
	CoreName = "Core"
	// CorePath - Module identity and fingerprinted source of the core module
	CorePath = "handlers/core.go"
)

// Core - Builtin commands, always loaded
type Core struct {
	store    *database.Store
	manager  *modules.Manager
	platform platform.Platform
	started  time.Time
}

// NewCore - Core module reporting uptime from started
func NewCore(store *database.Store, manager *modules.Manager, p platform.Platform, started time.Time) *Core {
	return &Core{store: store, manager: manager, platform: p, started: started}
}

func (c *Core) Name() string { return CoreName }
func (c *Core) Path() string { return CorePath }

func (c *Core) Commands() []modules.Command {
	return []modules.Command{
		{Name: "help", Description: "shows help information", Run: c.help},
		{Name: "stat", Aliases: []string{"status"}, Description: "displays reixi status and some server information", Run: c.status},
		{Name: "gstate", Aliases: []string{"gst"}, Description: "(god) manage db state", Access: modules.God, Run: c.gstate},
		{Name: "gmod", Description: "(god) manages reixi modules", Access: modules.God, Run: c.gmod},
		{Name: "modules", Description: "turn on or off modules for a server", Access: modules.Privileged, Run: c.localModules},
		{Name: "moduleaccess", Aliases: []string{"modacs"}, Description: "set which roles can access a module's more sensitive commands", Access: modules.Privileged, Run: c.moduleAccess},
	}
}

func (c *Core) help(ctx *modules.Context) (string, error) {
	lines := []string{
		fmt.Sprintf("%s version %s", config.Name, config.Version),
		config.Description,
		"",
	}
	if ctx.InGuild() {
		lines = append(lines, fmt.Sprintf("this server's prefix is \"%s\"", c.store.Prefix(ctx.GuildID)), "")
	} else {
		lines = append(lines, fmt.Sprintf("prefixes are not needed in dms, but you can use `\"%s\"`", config.DefaultPrefix), "")
	}

	for _, h := range c.manager.Loaded() {
		module := strings.ToLower(h.Name())
		if h.Path() != CorePath && ctx.InGuild() && !c.store.ModuleEnabled(ctx.GuildID, module) {
			continue
		}
		if len(ctx.Args) > 0 && !sliceContains(ctx.Args, module) {
			continue
		}
		privileged := permissions.IsPrivileged(c.store, ctx.Caller, ctx.GuildID, module)

		lines = append(lines, "module "+module)
		for _, cmd := range h.Commands() {
			if cmd.Access == modules.God && !ctx.God {
				continue
			}
			if cmd.Access == modules.Privileged && !privileged {
				continue
			}
			for _, name := range append([]string{cmd.Name}, cmd.Aliases...) {
				lines = append(lines, "   "+name)
			}
			if cmd.Description != "" {
				lines = append(lines, "      "+cmd.Description)
			}
		}
		lines = append(lines, "")
	}
	return fence + "\n" + strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n" + fence, nil
}

func (c *Core) status(ctx *modules.Context) (string, error) {
	mods := c.manager.Modules()
	width := 0
	for _, m := range mods {
		if len(m.Name) > width {
			width = len(m.Name)
		}
	}

	lines := []string{
		fence,
		fmt.Sprintf("%s version %s", config.Name, config.Version),
		fmt.Sprintf("has been up for %s", time.Since(c.started).Round(time.Second)),
		"",
	}
	for _, m := range mods {
		global := "      "
		if m.Loaded {
			global = "loaded"
		}
		local := "         "
		if ctx.InGuild() && c.store.ModuleEnabled(ctx.GuildID, m.Name) {
			local = "  enabled"
		}
		lines = append(lines, fmt.Sprintf("%s  %s%s  %s", padRight(m.Name, width), global, local, m.Hash))
	}

	guildInfo := "not calling from a guild"
	if ctx.InGuild() {
		name := ctx.GuildID
		if g, err := c.platform.Guild(ctx, ctx.GuildID); err == nil {
			name = g.Name
		}
		guildInfo = fmt.Sprintf("'%s' (prefix: '%s')", name, c.store.Prefix(ctx.GuildID))
	}

	user := fmt.Sprintf("   user   '%s'", ctx.CallerName)
	if ctx.God {
		user += "\n          is god"
	}
	for _, m := range mods {
		if permissions.IsPrivileged(c.store, ctx.Caller, ctx.GuildID, m.Name) {
			user += "\n          is privileged for module " + m.Name
		}
	}

	lines = append(lines,
		"",
		"caller information",
		"   guild  "+guildInfo,
		user,
		"",
		"source code is available at "+config.SourceCode,
		fence,
	)
	return strings.Join(lines, "\n"), nil
}

const gstateUsage = "```\n" +
	"reixi db state management\n" +
	"\n" +
	"usage:\n" +
	"   gstate dump\n" +
	"      writes every record to disk\n" +
	"   gstate load\n" +
	"      overwrites memory with the records on disk\n" +
	"   gstate reload\n" +
	"      dumps and loads\n" +
	"```"

func (c *Core) gstate(ctx *modules.Context) (string, error) {
	if len(ctx.Args) != 1 {
		return gstateUsage, nil
	}

	var errs []database.ReloadError
	switch ctx.Arg(0) {
	case "dump":
		errs = c.store.Reload(true, false)
	case "load":
		errs = c.store.Reload(false, true)
	case "reload":
		errs = c.store.Reload(true, true)
	default:
		return gstateUsage, nil
	}
	if len(errs) == 0 {
		return "", nil
	}

	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, e.Message, "   "+e.Err.Error())
	}
	return fence + "\n" + strings.Join(lines, "\n") + "\n" + fence, nil
}

const gmodUsage = "```\n" +
	"global module management\n" +
	"\n" +
	"usage:\n" +
	"   gmod list\n" +
	"      lists all modules\n" +
	"   gmod load MODULE\n" +
	"      loads `MODULE`\n" +
	"   gmod unload MODULE\n" +
	"      unloads `MODULE`\n" +
	"   gmod reload MODULE\n" +
	"      reloads `MODULE`\n" +
	"```"

func (c *Core) gmod(ctx *modules.Context) (string, error) {
	if ctx.Arg(0) == "list" && len(ctx.Args) == 1 {
		return c.listModules(), nil
	}
	if len(ctx.Args) != 2 {
		return gmodUsage, nil
	}

	action, target := ctx.Arg(0), ctx.Arg(1)
	path, ok := c.manager.Resolve(target)
	if !ok {
		return fmt.Sprintf("module '%s' does not exist", target), nil
	}

	var err error
	switch action {
	case "load":
		err = c.manager.Load(ctx, path)
	case "unload":
		err = c.manager.Unload(path)
	case "reload":
		err = c.manager.Reload(ctx, path)
	default:
		return gmodUsage, nil
	}
	if errors.Is(err, modules.ErrCoreModule) {
		return modules.ErrCoreModule.Error(), nil
	}
	if err != nil {
		log.Error().Err(err).Str("path", path).Msgf("unable to %s module", action)
		return fmt.Sprintf("```\nunable to %s module '%s'\n%v\n```", action, path, err), nil
	}
	return "", nil
}

func (c *Core) listModules() string {
	loaded := c.manager.Modules()
	// Registered modules that were never loaded have no registry entry yet
	for _, p := range c.manager.Available() {
		known := false
		for _, m := range loaded {
			if m.Path == p {
				known = true
				break
			}
		}
		if !known {
			loaded = append(loaded, modules.Module{Name: "?", Path: p})
		}
	}

	nameWidth, pathWidth := 0, 0
	for _, m := range loaded {
		if len(m.Name) > nameWidth {
			nameWidth = len(m.Name)
		}
		if len(m.Path) > pathWidth {
			pathWidth = len(m.Path)
		}
	}

	lines := []string{fence}
	for _, m := range loaded {
		state := "unloaded"
		if m.Loaded {
			state = "  loaded"
		}
		lines = append(lines, strings.TrimRight(fmt.Sprintf("%s  %s  %s  %s", padRight(m.Name, nameWidth), padRight(m.Path, pathWidth), state, m.Hash), " "))
	}
	lines = append(lines, fence)
	return strings.Join(lines, "\n")
}

const modulesUsage = "```\n" +
	"local module management, all modules are disabled by default\n" +
	"use 'status' to see what modules are included with reixi\n" +
	"\n" +
	"usage:\n" +
	"   modules enable MODULE\n" +
	"      enables `MODULE` in this server\n" +
	"   modules disable MODULE\n" +
	"      disables `MODULE` in this server\n" +
	"```"

func (c *Core) localModules(ctx *modules.Context) (string, error) {
	if !ctx.InGuild() {
		return "", ErrDenied
	}
	if len(ctx.Args) != 2 || (ctx.Arg(0) != "enable" && ctx.Arg(0) != "disable") {
		return modulesUsage, nil
	}

	target := strings.ToLower(ctx.Arg(1))
	if target == config.CoreModule {
		return modules.ErrCoreModule.Error(), nil
	}
	if !c.moduleExists(target) {
		return fmt.Sprintf("module '%s' does not exist", ctx.Arg(1)), nil
	}

	enabled := c.store.EnabledModules(ctx.GuildID)
	if ctx.Arg(0) == "enable" {
		if sliceContains(enabled, target) {
			return fmt.Sprintf("module '%s' is already enabled", ctx.Arg(1)), nil
		}
		return "", c.store.SetEnabledModules(ctx.GuildID, append(enabled, target))
	}

	if !sliceContains(enabled, target) {
		return fmt.Sprintf("module '%s' is already disabled", ctx.Arg(1)), nil
	}
	next := make([]string, 0, len(enabled))
	for _, m := range enabled {
		if m != target {
			next = append(next, m)
		}
	}
	return "", c.store.SetEnabledModules(ctx.GuildID, next)
}

// moduleNames - Lower case names of every module the registry knows
func (c *Core) moduleNames() []string {
	mods := c.manager.Modules()
	names := make([]string, 0, len(mods))
	for _, m := range mods {
		names = append(names, strings.ToLower(m.Name))
	}
	return names
}

func (c *Core) moduleExists(name string) bool {
	return sliceContains(c.moduleNames(), name)
}

func moduleAccessUsage() string {
	flags := make([]string, 0, len(permissions.Flags))
	for _, f := range permissions.Flags {
		flags = append(flags, string(f))
	}
	return strings.Join([]string{
		fence,
		"set which roles can access a module's more sensitive commands",
		"",
		"usage:",
		"   moduleaccess list [ROLE_ID_OR_MODULE]",
		"      lists all modules and their access,",
		"      pass a role id or module to filter",
		"",
		"   moduleaccess list roles",
		"      lists all roles ids",
		"",
		fmt.Sprintf("   moduleaccess set ROLE_ID MODULE <%s>", strings.Join(flags, "|")),
		"      sets `ROLE_ID`'s access to `MODULE`",
		"",
		"   moduleaccess clean MODULE [-r]",
		"      remove obsolete modules, or with '-r' obsolete role ids",
		"      if `MODULE` is set to '*', every module is cleaned",
		"",
		"commands which are safe for every role will still be useable even if a role is denied access",
		"",
		"notes:",
		" - administrators will always be considered privileged",
		" - only administrators can use privileged commands of a module until set up otherwise",
		fence,
	}, "\n")
}

func (c *Core) moduleAccess(ctx *modules.Context) (string, error) {
	if !ctx.InGuild() {
		return "", ErrDenied
	}

	switch {
	case ctx.Arg(0) == "list" && len(ctx.Args) == 1:
		return c.listAccess(ctx, "*", "")
	case ctx.Arg(0) == "list" && ctx.Arg(1) == "roles" && len(ctx.Args) == 2:
		return c.listRoles(ctx)
	case ctx.Arg(0) == "list" && len(ctx.Args) == 2:
		if id, ok := parseID(ctx.Arg(1)); ok {
			return c.listAccess(ctx, "*", id)
		}
		return c.listAccess(ctx, ctx.Arg(1), "")
	case ctx.Arg(0) == "set" && len(ctx.Args) == 4:
		return c.setAccess(ctx, ctx.Arg(1), ctx.Arg(2), ctx.Arg(3))
	case ctx.Arg(0) == "clean" && len(ctx.Args) >= 2:
		return c.cleanAccess(ctx, ctx.Arg(1), sliceContains(ctx.Args[2:], "-r"))
	default:
		return moduleAccessUsage(), nil
	}
}

func (c *Core) listRoles(ctx *modules.Context) (string, error) {
	g, err := c.platform.Guild(ctx, ctx.GuildID)
	if err != nil {
		return "", fmt.Errorf("get guild: %w", err)
	}
	lines := []string{fence}
	for _, r := range g.Roles {
		lines = append(lines, fmt.Sprintf("%s  %s", r.ID, r.Name))
	}
	lines = append(lines, fence)
	return strings.Join(lines, "\n"), nil
}

// listAccess - Privileges in the guild, filtered to a module ("*" for all) and optionally a role id.
// Modules and roles that no longer exist are marked with ⚠️
func (c *Core) listAccess(ctx *modules.Context, module, roleID string) (string, error) {
	g, err := c.platform.Guild(ctx, ctx.GuildID)
	if err != nil {
		return "", fmt.Errorf("get guild: %w", err)
	}
	roleNames := make(map[string]string, len(g.Roles))
	for _, r := range g.Roles {
		roleNames[r.ID] = r.Name
	}
	roleLine := func(id string) string {
		name, ok := roleNames[id]
		if !ok {
			name = "⚠️"
		}
		return fmt.Sprintf("      %s  %s", id, name)
	}

	all := c.store.AllPrivileges(ctx.GuildID)
	known := c.moduleNames()

	var lines []string
	for _, name := range sortedNames(all) {
		p := all[name]
		if module != "*" && !strings.EqualFold(module, name) {
			continue
		}
		if roleID != "" && !sliceContains(p.Allow, roleID) && !sliceContains(p.Deny, roleID) {
			continue
		}

		header := name
		if !sliceContains(known, name) {
			header += " ⚠️"
		}
		lines = append(lines, header)
		if p.Empty() {
			lines = append(lines, "   no module privileges have yet been set")
		}
		if len(p.Allow) > 0 {
			lines = append(lines, "   allow")
			for _, id := range p.Allow {
				lines = append(lines, roleLine(id))
			}
		}
		if len(p.Deny) > 0 {
			lines = append(lines, "   deny")
			for _, id := range p.Deny {
				lines = append(lines, roleLine(id))
			}
		}
		lines = append(lines, "")
	}

	if len(lines) == 0 {
		lines = []string{"no module privileges have yet been set"}
	}
	return fence + "\n" + strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n" + fence, nil
}

func (c *Core) setAccess(ctx *modules.Context, rawRole, module, rawFlag string) (string, error) {
	roleID, ok := parseID(rawRole)
	if !ok {
		return "id is not a valid integer", nil
	}
	module = strings.ToLower(module)
	if !c.moduleExists(module) {
		return fmt.Sprintf("module `%s` does not exist or has not been loaded yet", module), nil
	}
	flag, ok := permissions.ParseFlag(rawFlag)
	if !ok {
		choices := make([]string, 0, len(permissions.Flags))
		for _, f := range permissions.Flags {
			choices = append(choices, fmt.Sprintf("`%s`", f))
		}
		return "SETTING should be a choice from " + strings.Join(choices, ", "), nil
	}

	if flag != permissions.Remove {
		if _, err := c.platform.Role(ctx, ctx.GuildID, roleID); err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				return fmt.Sprintf("role `%s` does not exist", roleID), nil
			}
			return "", fmt.Errorf("get role: %w", err)
		}
	}

	err := permissions.Set(c.store, ctx.GuildID, module, roleID, flag)
	if errors.Is(err, permissions.ErrNoChange) {
		return err.Error(), nil
	}
	if err != nil {
		return "", err
	}
	return c.listAccess(ctx, module, "")
}

func (c *Core) cleanAccess(ctx *modules.Context, module string, clearRoles bool) (string, error) {
	g, err := c.platform.Guild(ctx, ctx.GuildID)
	if err != nil {
		return "", fmt.Errorf("get guild: %w", err)
	}
	// The guild id doubles as the @everyone role
	live := []string{g.ID}
	for _, r := range g.Roles {
		live = append(live, r.ID)
	}

	if err := permissions.Clean(c.store, ctx.GuildID, module, c.moduleNames(), live, clearRoles); err != nil {
		return "", err
	}
	return c.listAccess(ctx, module, "")
}
