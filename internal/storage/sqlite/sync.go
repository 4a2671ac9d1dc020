package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
)

type SyncRepo struct {
	db *sql.DB
}

func NewSyncRepo(db *sql.DB) *SyncRepo {
	return &SyncRepo{db: db}
}

func (r *SyncRepo) GetCursor(ctx context.Context, source string) (core.SyncCursor, error) {
	c := core.SyncCursor{Source: source}
	err := r.db.QueryRowContext(ctx, `SELECT marker, updated_at FROM sync_cursors WHERE source = ?`, source).
		Scan(&c.Marker, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return core.SyncCursor{}, fmt.Errorf("failed to get cursor for %s: %w", source, err)
	}
	return c, nil
}

// AdvanceCursor moves the cursor forward. Markers that do not sort after the
// stored one are ignored, so the cursor never rewinds.
func (r *SyncRepo) AdvanceCursor(ctx context.Context, source, marker string) error {
	query := `
		INSERT INTO sync_cursors (source, marker, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET marker = excluded.marker, updated_at = excluded.updated_at
		WHERE excluded.marker > sync_cursors.marker`

	if _, err := r.db.ExecContext(ctx, query, source, marker, dbTime(time.Now())); err != nil {
		return fmt.Errorf("failed to advance cursor for %s: %w", source, err)
	}
	return nil
}

func (r *SyncRepo) ResetCursor(ctx context.Context, source string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_cursors WHERE source = ?`, source); err != nil {
		return fmt.Errorf("failed to reset cursor for %s: %w", source, err)
	}
	return nil
}

// HasOrigin is a cheap pre-check so known items are not fetched again.
// MergeEntry stays the authority on duplicates.
func (r *SyncRepo) HasOrigin(ctx context.Context, originID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM sync_origins WHERE origin_id = ?`, originID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up origin: %w", err)
	}
	return true, nil
}

// MergeEntry claims the origin id and inserts the entry in one transaction.
// A claimed origin yields core.ErrDuplicate and leaves the store untouched.
func (r *SyncRepo) MergeEntry(ctx context.Context, e core.Entry) (int64, error) {
	if e.Origin.Kind != core.OriginExternal || e.Origin.ID == "" {
		return 0, fmt.Errorf("merge entry: external origin id required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sync_origins (origin_id, source, merged_at) VALUES (?, ?, ?) ON CONFLICT(origin_id) DO NOTHING`,
		e.Origin.ID, e.Origin.Source, dbTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to claim origin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, core.ErrDuplicate
	}

	id, err := insertEntry(ctx, tx, e)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sync_origins SET entry_id = ? WHERE origin_id = ?`, id, e.Origin.ID); err != nil {
		return 0, fmt.Errorf("failed to link origin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit merge: %w", err)
	}
	return id, nil
}
