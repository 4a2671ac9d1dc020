package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/conv"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

// StartCommand greets the caller. Configured super admins are registered on
// first contact; everyone else must be added by an admin.
type StartCommand struct {
	cfg        *config.AppConfig
	identities core.IdentityRepository
	now        func() time.Time
	formatter  *ResponseFormatter
}

func NewStartCommand(cfg *config.AppConfig, identities core.IdentityRepository, now func() time.Time, f *ResponseFormatter) *StartCommand {
	return &StartCommand{cfg: cfg, identities: identities, now: now, formatter: f}
}

func (c *StartCommand) Name() string        { return "start" }
func (c *StartCommand) Description() string { return "Register and show your role" }
func (c *StartCommand) MinRole() core.Role  { return core.RoleNone }

func (c *StartCommand) Execute(ctx context.Context, caller core.Caller, _ []string) (string, error) {
	if c.cfg.IsSuperAdmin(caller.ID) && caller.Role != core.RoleSuperAdmin {
		if err := c.bootstrap(ctx, caller); err != nil {
			return "", err
		}
		caller.Role = core.RoleSuperAdmin
	}

	if caller.Role == core.RoleNone {
		return c.formatter.NotRegistered(caller.ID), nil
	}

	name := caller.Name
	if name == "" {
		name = fmt.Sprintf("%d", caller.ID)
	}
	return c.formatter.Combine(
		c.formatter.Info(fmt.Sprintf("Welcome to %s, %s", core.AppName, conv.EscapeMarkdown(name))),
		c.formatter.Label("Role", caller.Role.String()),
		c.formatter.Tip("send /help to see what you can do"),
	), nil
}

func (c *StartCommand) bootstrap(ctx context.Context, caller core.Caller) error {
	ident, err := c.identities.GetIdentity(ctx, caller.ID)
	switch {
	case errors.Is(err, core.ErrNotRegistered):
		ident = core.Identity{
			ID:          caller.ID,
			DisplayName: caller.Name,
			AddedBy:     caller.ID,
			AddedAt:     c.now(),
		}
	case err != nil:
		return fmt.Errorf("load identity: %w", err)
	}
	ident.Role = core.RoleSuperAdmin
	if ident.DisplayName == "" {
		ident.DisplayName = caller.Name
	}
	if err := c.identities.UpsertIdentity(ctx, ident); err != nil {
		return fmt.Errorf("register super admin: %w", err)
	}
	log.FromCtx(ctx).Info().Int64("identity", caller.ID).Msg("super admin registered")
	return nil
}

type commandLister interface {
	ListCommands(role core.Role) []core.Command
}

type HelpCommand struct {
	router    commandLister
	formatter *ResponseFormatter
}

func NewHelpCommand(router commandLister) *HelpCommand {
	return &HelpCommand{router: router, formatter: NewResponseFormatter()}
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "List available commands" }
func (c *HelpCommand) MinRole() core.Role  { return core.RoleNone }

func (c *HelpCommand) Execute(_ context.Context, caller core.Caller, _ []string) (string, error) {
	cmds := c.router.ListCommands(caller.Role)

	var sections []string
	sections = append(sections, c.formatter.Info("Commands"))
	var current core.Role = -1
	var items []string
	flush := func() {
		if len(items) == 0 {
			return
		}
		title := "Everyone"
		if current > core.RoleNone {
			title = strings.ToUpper(current.String()[:1]) + current.String()[1:]
		}
		sections = append(sections, c.formatter.Section("›", title, c.formatter.List(items)))
		items = nil
	}
	for _, cmd := range cmds {
		if cmd.MinRole() != current {
			flush()
			current = cmd.MinRole()
		}
		items = append(items, fmt.Sprintf("/%s  %s", cmd.Name(), cmd.Description()))
	}
	flush()

	if caller.Role == core.RoleNone {
		sections = append(sections, c.formatter.NotRegistered(caller.ID))
	}
	return c.formatter.Combine(sections...), nil
}
