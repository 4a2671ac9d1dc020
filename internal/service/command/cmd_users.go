package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/conv"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Field: "id", Message: fmt.Sprintf("%q is not a valid user id", s)}
	}
	return id, nil
}

// AddCommand registers a new identity as a viewer.
type AddCommand struct {
	identities core.IdentityRepository
	now        func() time.Time
	formatter  *ResponseFormatter
}

func NewAddCommand(identities core.IdentityRepository, now func() time.Time, f *ResponseFormatter) *AddCommand {
	return &AddCommand{identities: identities, now: now, formatter: f}
}

func (c *AddCommand) Name() string        { return "add" }
func (c *AddCommand) Description() string { return "Register a viewer: /add <id> <name>" }
func (c *AddCommand) MinRole() core.Role  { return core.RoleUploadAdmin }

func (c *AddCommand) Execute(ctx context.Context, caller core.Caller, args []string) (string, error) {
	if len(args) < 2 {
		return c.formatter.Combine(
			c.formatter.Usage("/add <id> <name>"),
			c.formatter.Examples([]string{"/add 123456789 Mdm Lim"}),
		), nil
	}
	id, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	name := strings.Join(args[1:], " ")

	existing, err := c.identities.GetIdentity(ctx, id)
	switch {
	case err == nil:
		return "", &core.ValidationError{
			Field:   "id",
			Message: fmt.Sprintf("%d is already registered as %s (%s)", id, existing.DisplayName, existing.Role),
		}
	case !errors.Is(err, core.ErrNotRegistered):
		return "", fmt.Errorf("load identity: %w", err)
	}

	err = c.identities.UpsertIdentity(ctx, core.Identity{
		ID:          id,
		DisplayName: name,
		Role:        core.RoleViewer,
		AddedBy:     caller.ID,
		AddedAt:     c.now(),
	})
	if err != nil {
		return "", fmt.Errorf("add identity: %w", err)
	}
	return c.formatter.Success(fmt.Sprintf("Added %s (%d) as viewer", conv.EscapeMarkdown(name), id)), nil
}

// RemoveCommand deletes an identity. Callers can only remove identities
// ranked strictly below them, and never a configured super admin.
type RemoveCommand struct {
	cfg        *config.AppConfig
	identities core.IdentityRepository
	formatter  *ResponseFormatter
}

func NewRemoveCommand(cfg *config.AppConfig, identities core.IdentityRepository, f *ResponseFormatter) *RemoveCommand {
	return &RemoveCommand{cfg: cfg, identities: identities, formatter: f}
}

func (c *RemoveCommand) Name() string        { return "remove" }
func (c *RemoveCommand) Description() string { return "Remove a user: /remove <id>" }
func (c *RemoveCommand) MinRole() core.Role  { return core.RoleUploadAdmin }

func (c *RemoveCommand) Execute(ctx context.Context, caller core.Caller, args []string) (string, error) {
	if len(args) != 1 {
		return c.formatter.Usage("/remove <id>"), nil
	}
	id, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	if id == caller.ID {
		return "", &core.ValidationError{Field: "id", Message: "you cannot remove yourself"}
	}

	target, err := c.identities.GetIdentity(ctx, id)
	if errors.Is(err, core.ErrNotRegistered) {
		return "", &core.ValidationError{Field: "id", Message: fmt.Sprintf("user %d not found", id)}
	}
	if err != nil {
		return "", fmt.Errorf("load identity: %w", err)
	}
	if c.cfg.IsSuperAdmin(id) || target.Role == core.RoleSuperAdmin {
		return "", &core.ValidationError{Field: "id", Message: "super admins cannot be removed"}
	}
	if target.Role >= caller.Role {
		return "", &core.AuthorizationError{Have: caller.Role, Need: target.Role + 1}
	}

	if err := c.identities.DeleteIdentity(ctx, id); err != nil {
		return "", fmt.Errorf("remove identity: %w", err)
	}
	return c.formatter.Success(fmt.Sprintf("Removed %s (%d)", conv.EscapeMarkdown(target.DisplayName), id)), nil
}

type ListCommand struct {
	identities core.IdentityRepository
	formatter  *ResponseFormatter
}

func NewListCommand(identities core.IdentityRepository, f *ResponseFormatter) *ListCommand {
	return &ListCommand{identities: identities, formatter: f}
}

func (c *ListCommand) Name() string        { return "list" }
func (c *ListCommand) Description() string { return "List registered users" }
func (c *ListCommand) MinRole() core.Role  { return core.RoleUploadAdmin }

func (c *ListCommand) Execute(ctx context.Context, _ core.Caller, _ []string) (string, error) {
	idents, err := c.identities.ListIdentities(ctx)
	if err != nil {
		return "", fmt.Errorf("list identities: %w", err)
	}
	if len(idents) == 0 {
		return "No users registered.", nil
	}

	byRole := make(map[core.Role][]string)
	for _, ident := range idents {
		byRole[ident.Role] = append(byRole[ident.Role],
			fmt.Sprintf("%s (%d)", conv.EscapeMarkdown(ident.DisplayName), ident.ID))
	}

	sections := []string{c.formatter.Info(fmt.Sprintf("Registered users (%d)", len(idents)))}
	for role := core.RoleSuperAdmin; role >= core.RoleViewer; role-- {
		if items := byRole[role]; len(items) > 0 {
			sections = append(sections, c.formatter.Section("›", strings.ToUpper(role.String()), c.formatter.List(items)))
		}
	}
	return c.formatter.Combine(sections...), nil
}

// PromoteCommand changes an identity's base role. Super admin is granted
// only through configuration.
type PromoteCommand struct {
	cfg        *config.AppConfig
	identities core.IdentityRepository
	formatter  *ResponseFormatter
}

func NewPromoteCommand(cfg *config.AppConfig, identities core.IdentityRepository, f *ResponseFormatter) *PromoteCommand {
	return &PromoteCommand{cfg: cfg, identities: identities, formatter: f}
}

func (c *PromoteCommand) Name() string        { return "promote" }
func (c *PromoteCommand) Description() string { return "Change a role: /promote <id> <role>" }
func (c *PromoteCommand) MinRole() core.Role  { return core.RoleSuperAdmin }

func (c *PromoteCommand) Execute(ctx context.Context, _ core.Caller, args []string) (string, error) {
	if len(args) != 2 {
		return c.formatter.Combine(
			c.formatter.Usage("/promote <id> <viewer|uploader|uploadadmin>"),
			c.formatter.Examples([]string{"/promote 123456789 uploader"}),
		), nil
	}
	id, err := parseID(args[0])
	if err != nil {
		return "", err
	}
	role, err := core.ParseRole(args[1])
	if err != nil || role == core.RoleSuperAdmin {
		return "", &core.ValidationError{Field: "role", Message: "use viewer, uploader or uploadadmin"}
	}
	if c.cfg.IsSuperAdmin(id) {
		return "", &core.ValidationError{Field: "id", Message: "configured super admins keep their role"}
	}

	target, err := c.identities.GetIdentity(ctx, id)
	if errors.Is(err, core.ErrNotRegistered) {
		return "", &core.ValidationError{Field: "id", Message: fmt.Sprintf("user %d is not registered", id)}
	}
	if err != nil {
		return "", fmt.Errorf("load identity: %w", err)
	}
	if err := c.identities.SetRole(ctx, id, role); err != nil {
		return "", fmt.Errorf("set role: %w", err)
	}
	return c.formatter.Success(fmt.Sprintf("%s (%d): %s → %s",
		conv.EscapeMarkdown(target.DisplayName), id, target.Role, role)), nil
}
