package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
)

const reminderColumns = `id, entry_id, identity_id, fire_at, status, attempts, subject, time_slot, created_at`

type ReminderRepo struct {
	db *sql.DB
}

func NewReminderRepo(db *sql.DB) *ReminderRepo {
	return &ReminderRepo{db: db}
}

// SaveAssignment records an assignment for audit. Re-saving is a no-op.
func (r *ReminderRepo) SaveAssignment(ctx context.Context, a core.CoverageAssignment) error {
	var identity sql.NullInt64
	if a.Resolved() {
		identity = sql.NullInt64{Int64: a.IdentityID, Valid: true}
	}
	query := `
		INSERT INTO coverage_assignments (entry_id, subject, covering_name, time_slot, identity_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entry_id, subject, covering_name, time_slot) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, a.EntryID, a.Subject, a.CoveringName, a.TimeSlot, identity); err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

func (r *ReminderRepo) CreateReminder(ctx context.Context, rem core.Reminder) (bool, error) {
	query := `
		INSERT INTO reminders (entry_id, identity_id, fire_at, status, subject, time_slot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id, identity_id, fire_at) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		rem.EntryID, rem.IdentityID, dbTime(rem.FireAt), core.ReminderPending, rem.Subject, rem.TimeSlot, dbTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("failed to create reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ReminderRepo) DueReminders(ctx context.Context, now time.Time, limit int) ([]core.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE status = ? AND fire_at <= ? ORDER BY fire_at, id LIMIT ?`
	return r.query(ctx, query, core.ReminderPending, dbTime(now), limit)
}

func (r *ReminderRepo) ListRemindersForEntry(ctx context.Context, entryID int64) ([]core.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE entry_id = ? ORDER BY fire_at, id`
	return r.query(ctx, query, entryID)
}

func (r *ReminderRepo) MarkReminderSent(ctx context.Context, id int64) error {
	return r.transition(ctx, id, core.ReminderPending, core.ReminderSent)
}

func (r *ReminderRepo) MarkReminderExpired(ctx context.Context, id int64) error {
	return r.transition(ctx, id, core.ReminderPending, core.ReminderExpired)
}

// RecordReminderFailure counts a failed delivery and expires the reminder once
// maxAttempts is reached. It returns the new attempt count.
func (r *ReminderRepo) RecordReminderFailure(ctx context.Context, id int64, maxAttempts int) (int, error) {
	query := `
		UPDATE reminders
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= ? THEN ? ELSE status END
		WHERE id = ? AND status = ?
		RETURNING attempts`

	var attempts int
	err := r.db.QueryRowContext(ctx, query, maxAttempts, core.ReminderExpired, id, core.ReminderPending).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record reminder failure: %w", err)
	}
	return attempts, nil
}

func (r *ReminderRepo) AcknowledgeReminder(ctx context.Context, id, identityID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET status = ? WHERE id = ? AND identity_id = ? AND status IN (?, ?)`,
		core.ReminderAcknowledged, id, identityID, core.ReminderSent, core.ReminderPending)
	if err != nil {
		return fmt.Errorf("failed to acknowledge reminder: %w", err)
	}
	return requireAffected(res, core.ErrNotFound)
}

func (r *ReminderRepo) transition(ctx context.Context, id int64, from, to core.ReminderStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE reminders SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to mark reminder %s: %w", to, err)
	}
	return requireAffected(res, core.ErrNotFound)
}

func (r *ReminderRepo) query(ctx context.Context, query string, args ...any) ([]core.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	var out []core.Reminder
	for rows.Next() {
		var rem core.Reminder
		if err := rows.Scan(&rem.ID, &rem.EntryID, &rem.IdentityID, &rem.FireAt, &rem.Status,
			&rem.Attempts, &rem.Subject, &rem.TimeSlot, &rem.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}
