package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/service/roster"
	"github.com/sandevgo/reliefdesk/pkg/conv"
)

type Roster interface {
	Import(ctx context.Context, actor int64, data []byte) (roster.Result, error)
}

var errNotConfiguredAdmin = &core.ValidationError{Message: "only super admins listed in the configuration can manage super admins"}

// MassUploadCommand replaces the roster from a CSV body, either typed after
// the command or attached as a file with the command as caption.
type MassUploadCommand struct {
	roster    Roster
	formatter *ResponseFormatter
}

func NewMassUploadCommand(r Roster, f *ResponseFormatter) *MassUploadCommand {
	return &MassUploadCommand{roster: r, formatter: f}
}

func (c *MassUploadCommand) Name() string        { return "massupload" }
func (c *MassUploadCommand) Description() string { return "Replace all users from a CSV file" }
func (c *MassUploadCommand) MinRole() core.Role  { return core.RoleSuperAdmin }

func (c *MassUploadCommand) Execute(ctx context.Context, caller core.Caller, args []string) (string, error) {
	return c.ExecuteBody(ctx, caller, strings.Join(args, " "))
}

func (c *MassUploadCommand) ExecuteBody(ctx context.Context, caller core.Caller, body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return c.formatter.Combine(
			c.formatter.Info("Mass user upload"),
			"Send a CSV file with `/massupload` as its caption, or paste the rows after the command. One user per line: `telegram_id,name,role`.",
			c.formatter.Examples([]string{
				"123456789,John Teacher,uploader",
				"987654321,Jane Admin,uploadadmin",
				"111222333,Bob Viewer,viewer",
			}),
			c.formatter.Warning("This replaces every user except super admins."),
		), nil
	}

	res, err := c.roster.Import(ctx, caller.ID, []byte(body))
	if err != nil {
		return "", err
	}

	sections := []string{
		c.formatter.Success("Mass upload complete"),
		c.formatter.List([]string{
			fmt.Sprintf("added: %d", res.Added),
			fmt.Sprintf("removed: %d", res.Removed),
		}),
	}
	if len(res.Problems) > 0 {
		shown := res.Problems[:min(len(res.Problems), 5)]
		items := make([]string, 0, len(shown)+1)
		for _, p := range shown {
			items = append(items, conv.EscapeMarkdown(p))
		}
		if extra := len(res.Problems) - len(shown); extra > 0 {
			items = append(items, fmt.Sprintf("and %d more", extra))
		}
		sections = append(sections, c.formatter.Section("⚠️", fmt.Sprintf("Skipped rows (%d)", len(res.Problems)), c.formatter.List(items)))
	}
	return c.formatter.Combine(sections...), nil
}

// AddSuperAdminCommand grants super admin at runtime. Unlike configured
// super admins these can be removed again.
type AddSuperAdminCommand struct {
	cfg        *config.AppConfig
	identities core.IdentityRepository
	now        func() time.Time
	formatter  *ResponseFormatter
}

func NewAddSuperAdminCommand(cfg *config.AppConfig, identities core.IdentityRepository, now func() time.Time, f *ResponseFormatter) *AddSuperAdminCommand {
	return &AddSuperAdminCommand{cfg: cfg, identities: identities, now: now, formatter: f}
}

func (c *AddSuperAdminCommand) Name() string        { return "addsuperadmin" }
func (c *AddSuperAdminCommand) Description() string { return "Grant super admin: /addsuperadmin <id>" }
func (c *AddSuperAdminCommand) MinRole() core.Role  { return core.RoleSuperAdmin }

func (c *AddSuperAdminCommand) Execute(ctx context.Context, caller core.Caller, args []string) (string, error) {
	if !c.cfg.IsSuperAdmin(caller.ID) {
		return "", errNotConfiguredAdmin
	}
	if len(args) != 1 {
		return c.formatter.Usage("/addsuperadmin <id>"), nil
	}
	id, err := parseID(args[0])
	if err != nil {
		return "", err
	}

	existing, err := c.identities.GetIdentity(ctx, id)
	switch {
	case err == nil:
		if existing.Role == core.RoleSuperAdmin {
			return "", &core.ValidationError{Field: "id", Message: fmt.Sprintf("user %d is already a super admin", id)}
		}
		if err := c.identities.SetRole(ctx, id, core.RoleSuperAdmin); err != nil {
			return "", fmt.Errorf("set role: %w", err)
		}
	case errors.Is(err, core.ErrNotRegistered):
		existing = core.Identity{ID: id, DisplayName: fmt.Sprintf("SuperAdmin_%d", id)}
		err = c.identities.UpsertIdentity(ctx, core.Identity{
			ID:          id,
			DisplayName: existing.DisplayName,
			Role:        core.RoleSuperAdmin,
			AddedBy:     caller.ID,
			AddedAt:     c.now(),
		})
		if err != nil {
			return "", fmt.Errorf("add identity: %w", err)
		}
	default:
		return "", fmt.Errorf("load identity: %w", err)
	}

	return c.formatter.Combine(
		c.formatter.Success(fmt.Sprintf("%s (%d) is now a super admin", conv.EscapeMarkdown(existing.DisplayName), id)),
		c.formatter.Tip("only super admins in the configuration are protected from removal"),
	), nil
}

type RemoveSuperAdminCommand struct {
	cfg        *config.AppConfig
	identities core.IdentityRepository
	formatter  *ResponseFormatter
}

func NewRemoveSuperAdminCommand(cfg *config.AppConfig, identities core.IdentityRepository, f *ResponseFormatter) *RemoveSuperAdminCommand {
	return &RemoveSuperAdminCommand{cfg: cfg, identities: identities, formatter: f}
}

func (c *RemoveSuperAdminCommand) Name() string        { return "removesuperadmin" }
func (c *RemoveSuperAdminCommand) Description() string { return "Remove a runtime super admin" }
func (c *RemoveSuperAdminCommand) MinRole() core.Role  { return core.RoleSuperAdmin }

func (c *RemoveSuperAdminCommand) Execute(ctx context.Context, caller core.Caller, args []string) (string, error) {
	if !c.cfg.IsSuperAdmin(caller.ID) {
		return "", errNotConfiguredAdmin
	}
	if len(args) != 1 {
		return c.formatter.Usage("/removesuperadmin <id>"), nil
	}
	id, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	if c.cfg.IsSuperAdmin(id) {
		return "", &core.ValidationError{Field: "id", Message: fmt.Sprintf("%d is protected by the configuration", id)}
	}

	target, err := c.identities.GetIdentity(ctx, id)
	if errors.Is(err, core.ErrNotRegistered) || (err == nil && target.Role != core.RoleSuperAdmin) {
		return "", &core.ValidationError{Field: "id", Message: fmt.Sprintf("user %d is not a super admin", id)}
	}
	if err != nil {
		return "", fmt.Errorf("load identity: %w", err)
	}

	if err := c.identities.DeleteIdentity(ctx, id); err != nil {
		return "", fmt.Errorf("remove identity: %w", err)
	}
	return c.formatter.Success(fmt.Sprintf("Removed super admin %s (%d)", conv.EscapeMarkdown(target.DisplayName), id)), nil
}

type ListSuperAdminsCommand struct {
	cfg        *config.AppConfig
	identities core.IdentityRepository
	formatter  *ResponseFormatter
}

func NewListSuperAdminsCommand(cfg *config.AppConfig, identities core.IdentityRepository, f *ResponseFormatter) *ListSuperAdminsCommand {
	return &ListSuperAdminsCommand{cfg: cfg, identities: identities, formatter: f}
}

func (c *ListSuperAdminsCommand) Name() string        { return "listsuperadmins" }
func (c *ListSuperAdminsCommand) Description() string { return "List super admins" }
func (c *ListSuperAdminsCommand) MinRole() core.Role  { return core.RoleSuperAdmin }

func (c *ListSuperAdminsCommand) Execute(ctx context.Context, caller core.Caller, _ []string) (string, error) {
	if !c.cfg.IsSuperAdmin(caller.ID) {
		return "", errNotConfiguredAdmin
	}
	idents, err := c.identities.ListIdentities(ctx)
	if err != nil {
		return "", fmt.Errorf("list identities: %w", err)
	}

	var items []string
	for _, ident := range idents {
		if ident.Role != core.RoleSuperAdmin {
			continue
		}
		item := fmt.Sprintf("%s (%d)", conv.EscapeMarkdown(ident.DisplayName), ident.ID)
		if c.cfg.IsSuperAdmin(ident.ID) {
			item += " 🔒"
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return "No super admins are registered yet.", nil
	}
	return c.formatter.Combine(
		c.formatter.Info(fmt.Sprintf("Super admins (%d)", len(items))),
		c.formatter.List(items),
		c.formatter.Tip("🔒 marks admins protected by the configuration"),
	), nil
}
