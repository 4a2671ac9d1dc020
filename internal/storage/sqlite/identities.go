package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
)

type IdentityRepo struct {
	db *sql.DB
}

func NewIdentityRepo(db *sql.DB) *IdentityRepo {
	return &IdentityRepo{db: db}
}

func (r *IdentityRepo) GetIdentity(ctx context.Context, id int64) (core.Identity, error) {
	query := `SELECT id, display_name, role, added_by, added_at FROM identities WHERE id = ?`

	var ident core.Identity
	err := r.db.QueryRowContext(ctx, query, id).Scan(&ident.ID, &ident.DisplayName, &ident.Role, &ident.AddedBy, &ident.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Identity{}, core.ErrNotRegistered
	}
	if err != nil {
		return core.Identity{}, fmt.Errorf("failed to get identity %d: %w", id, err)
	}
	return ident, nil
}

func (r *IdentityRepo) ListIdentities(ctx context.Context) ([]core.Identity, error) {
	query := `SELECT id, display_name, role, added_by, added_at FROM identities ORDER BY role DESC, display_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var out []core.Identity
	for rows.Next() {
		var ident core.Identity
		if err := rows.Scan(&ident.ID, &ident.DisplayName, &ident.Role, &ident.AddedBy, &ident.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

// UpsertIdentity registers an identity or updates its name and role.
func (r *IdentityRepo) UpsertIdentity(ctx context.Context, ident core.Identity) error {
	if ident.AddedAt.IsZero() {
		ident.AddedAt = time.Now()
	}
	query := `
		INSERT INTO identities (id, display_name, role, added_by, added_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, role = excluded.role`

	if _, err := r.db.ExecContext(ctx, query, ident.ID, ident.DisplayName, ident.Role, ident.AddedBy, dbTime(ident.AddedAt)); err != nil {
		return fmt.Errorf("failed to upsert identity %d: %w", ident.ID, err)
	}
	return nil
}

func (r *IdentityRepo) SetRole(ctx context.Context, id int64, role core.Role) error {
	res, err := r.db.ExecContext(ctx, `UPDATE identities SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return fmt.Errorf("failed to set role for %d: %w", id, err)
	}
	return requireAffected(res, core.ErrNotRegistered)
}

func (r *IdentityRepo) DeleteIdentity(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity %d: %w", id, err)
	}
	return requireAffected(res, core.ErrNotRegistered)
}

func (r *IdentityRepo) ReplaceRoster(ctx context.Context, identities []core.Identity) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM identities WHERE role < ?`, core.RoleSuperAdmin)
	if err != nil {
		return 0, fmt.Errorf("failed to clear roster: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO identities (id, display_name, role, added_by, added_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	now := time.Now()
	for _, ident := range identities {
		if ident.AddedAt.IsZero() {
			ident.AddedAt = now
		}
		if _, err := tx.ExecContext(ctx, query, ident.ID, ident.DisplayName, ident.Role, ident.AddedBy, dbTime(ident.AddedAt)); err != nil {
			return 0, fmt.Errorf("failed to insert identity %d: %w", ident.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit roster: %w", err)
	}
	return removed, nil
}

func (r *IdentityRepo) GetOverride(ctx context.Context, id int64) (*core.RoleOverride, error) {
	query := `SELECT identity_id, role, expires_at FROM role_overrides WHERE identity_id = ?`

	var o core.RoleOverride
	err := r.db.QueryRowContext(ctx, query, id).Scan(&o.IdentityID, &o.Role, &o.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role override for %d: %w", id, err)
	}
	return &o, nil
}

// SetOverride replaces any prior override for the identity.
func (r *IdentityRepo) SetOverride(ctx context.Context, o core.RoleOverride) error {
	query := `
		INSERT INTO role_overrides (identity_id, role, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(identity_id) DO UPDATE SET role = excluded.role, expires_at = excluded.expires_at`

	if _, err := r.db.ExecContext(ctx, query, o.IdentityID, o.Role, dbTime(o.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to set role override for %d: %w", o.IdentityID, err)
	}
	return nil
}

func (r *IdentityRepo) ClearOverride(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM role_overrides WHERE identity_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear role override for %d: %w", id, err)
	}
	return nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
