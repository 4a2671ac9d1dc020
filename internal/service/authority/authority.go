package authority

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

// Authority resolves effective roles. Overrides are read on every call so an
// expired or cleared override takes effect immediately.
type Authority struct {
	repo core.IdentityRepository
	now  func() time.Time
}

func New(repo core.IdentityRepository) *Authority {
	return &Authority{repo: repo, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (a *Authority) WithClock(now func() time.Time) *Authority {
	a.now = now
	return a
}

// Resolve returns the override role while it is unexpired, else the base role.
// Unknown identities yield core.ErrNotRegistered.
func (a *Authority) Resolve(ctx context.Context, id int64) (core.Role, error) {
	ident, err := a.repo.GetIdentity(ctx, id)
	if err != nil {
		return core.RoleNone, err
	}

	o, err := a.repo.GetOverride(ctx, id)
	if err != nil {
		return core.RoleNone, err
	}
	if o != nil && o.ActiveAt(a.now()) {
		return o.Role, nil
	}
	return ident.Role, nil
}

// Require resolves the role and fails with *core.AuthorizationError when it is
// below min.
func (a *Authority) Require(ctx context.Context, id int64, min core.Role) (core.Role, error) {
	role, err := a.Resolve(ctx, id)
	if err != nil {
		return core.RoleNone, err
	}
	if !role.AtLeast(min) {
		return role, &core.AuthorizationError{Have: role, Need: min}
	}
	return role, nil
}

// SetOverride lets a superadmin act under another role for ttl. The check is
// made against the base role so an assumed lower role can be reverted.
func (a *Authority) SetOverride(ctx context.Context, actor int64, role core.Role, ttl time.Duration) (core.RoleOverride, error) {
	if err := a.requireBaseSuperAdmin(ctx, actor); err != nil {
		return core.RoleOverride{}, err
	}
	if !role.Valid() {
		return core.RoleOverride{}, &core.ValidationError{Field: "role", Message: "unknown role"}
	}
	if ttl <= 0 {
		return core.RoleOverride{}, &core.ValidationError{Field: "duration", Message: "must be positive"}
	}

	o := core.RoleOverride{IdentityID: actor, Role: role, ExpiresAt: a.now().Add(ttl)}
	if err := a.repo.SetOverride(ctx, o); err != nil {
		return core.RoleOverride{}, fmt.Errorf("set override: %w", err)
	}

	log.FromCtx(ctx).Info().Int64("identity", actor).Str("role", role.String()).Time("expires_at", o.ExpiresAt).Msg("role override set")
	return o, nil
}

func (a *Authority) ClearOverride(ctx context.Context, actor int64) error {
	if err := a.requireBaseSuperAdmin(ctx, actor); err != nil {
		return err
	}
	return a.repo.ClearOverride(ctx, actor)
}

func (a *Authority) requireBaseSuperAdmin(ctx context.Context, actor int64) error {
	ident, err := a.repo.GetIdentity(ctx, actor)
	if err != nil {
		return err
	}
	if ident.Role != core.RoleSuperAdmin {
		return &core.AuthorizationError{Have: ident.Role, Need: core.RoleSuperAdmin}
	}
	return nil
}

// IsNotRegistered reports whether err means the identity is unknown.
func IsNotRegistered(err error) bool {
	return errors.Is(err, core.ErrNotRegistered)
}
