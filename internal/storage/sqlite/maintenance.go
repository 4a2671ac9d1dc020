package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
)

type MaintenanceRepo struct {
	db *sql.DB
}

func NewMaintenanceRepo(db *sql.DB) *MaintenanceRepo {
	return &MaintenanceRepo{db: db}
}

// PurgeBefore removes everything dated before cutoff in one transaction.
// The sync_origins ledger is kept so purged items are not merged again.
func (r *MaintenanceRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (core.PurgeResult, error) {
	result := core.PurgeResult{Cutoff: cutoff}
	ts := dbTime(cutoff)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer tx.Rollback()

	steps := []struct {
		count *int64
		query string
		args  []any
	}{
		{&result.Reminders, `DELETE FROM reminders WHERE fire_at < ? OR entry_id IN (SELECT id FROM entries WHERE created_at < ?)`, []any{ts, ts}},
		{&result.Assignments, `DELETE FROM coverage_assignments WHERE entry_id IN (SELECT id FROM entries WHERE created_at < ?)`, []any{ts}},
		{nil, `UPDATE sync_origins SET entry_id = NULL WHERE entry_id IN (SELECT id FROM entries WHERE created_at < ?)`, []any{ts}},
		{&result.Entries, `DELETE FROM entries WHERE created_at < ?`, []any{ts}},
		{&result.Codes, `DELETE FROM daily_codes WHERE day < ?`, []any{core.DayKey(cutoff)}},
	}

	for _, step := range steps {
		res, err := tx.ExecContext(ctx, step.query, step.args...)
		if err != nil {
			return result, fmt.Errorf("purge: %w", err)
		}
		if step.count != nil {
			if *step.count, err = res.RowsAffected(); err != nil {
				return result, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("purge commit: %w", err)
	}
	return result, nil
}

func (r *MaintenanceRepo) Stats(ctx context.Context, dayStart time.Time) (core.Stats, error) {
	stats := core.Stats{
		Identities:     make(map[core.Role]int),
		CategoryCounts: make(map[string]int),
	}

	rows, err := r.db.QueryContext(ctx, `SELECT role, COUNT(*) FROM identities GROUP BY role`)
	if err != nil {
		return stats, fmt.Errorf("stats identities: %w", err)
	}
	for rows.Next() {
		var role core.Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.Identities[role] = n
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM entries WHERE created_at >= ? GROUP BY category`, dbTime(dayStart))
	if err != nil {
		return stats, fmt.Errorf("stats categories: %w", err)
	}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.CategoryCounts[cat] = n
		stats.EntriesToday += n
	}
	rows.Close()

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&stats.EntriesTotal); err != nil {
		return stats, fmt.Errorf("stats entries: %w", err)
	}

	query := `SELECT
		COALESCE(SUM(status = 'pending'), 0),
		COALESCE(SUM(status = 'sent' OR status = 'acknowledged'), 0),
		COALESCE(SUM(status = 'expired'), 0)
		FROM reminders`
	if err := r.db.QueryRowContext(ctx, query).Scan(&stats.PendingReminders, &stats.SentReminders, &stats.ExpiredReminders); err != nil {
		return stats, fmt.Errorf("stats reminders: %w", err)
	}
	return stats, nil
}
