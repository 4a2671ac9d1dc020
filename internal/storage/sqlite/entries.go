package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
)

const entryColumns = `id, category, payload_kind, payload, origin_kind, origin_id, source, uploaded_by, created_at`

type EntryRepo struct {
	db *sql.DB
}

func NewEntryRepo(db *sql.DB) *EntryRepo {
	return &EntryRepo{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEntry(ctx context.Context, ex execer, e core.Entry) (int64, error) {
	kind, data, err := core.MarshalPayload(e.Payload)
	if err != nil {
		return 0, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var originID, source sql.NullString
	if e.Origin.Kind == core.OriginExternal {
		originID = sql.NullString{String: e.Origin.ID, Valid: e.Origin.ID != ""}
		source = sql.NullString{String: e.Origin.Source, Valid: e.Origin.Source != ""}
	}

	query := `INSERT INTO entries (category, payload_kind, payload, origin_kind, origin_id, source, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := ex.ExecContext(ctx, query, e.Category, kind, string(data), e.Origin.Kind, originID, source, e.UploadedBy, dbTime(e.CreatedAt))
	if err != nil {
		if isDuplicateError(err) {
			return 0, core.ErrDuplicate
		}
		return 0, fmt.Errorf("failed to insert entry: %w", err)
	}
	return res.LastInsertId()
}

// CreateEntry commits an interactive entry.
func (r *EntryRepo) CreateEntry(ctx context.Context, e core.Entry) (int64, error) {
	if e.Origin.Kind == "" {
		e.Origin.Kind = core.OriginInteractive
	}
	return insertEntry(ctx, r.db, e)
}

func (r *EntryRepo) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, core.ErrNotFound
	}
	return e, err
}

func (r *EntryRepo) ListEntriesBetween(ctx context.Context, from, to time.Time) ([]core.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE created_at >= ? AND created_at < ? ORDER BY created_at, id`
	return r.query(ctx, query, dbTime(from), dbTime(to))
}

func (r *EntryRepo) ListEntriesByUploader(ctx context.Context, uploader int64, limit int) ([]core.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE uploaded_by = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	return r.query(ctx, query, uploader, limit)
}

func (r *EntryRepo) DeleteOwnEntryToday(ctx context.Context, uploader, id int64, dayStart time.Time) error {
	n, err := r.deleteOwn(ctx, `uploaded_by = ? AND created_at >= ? AND id = ?`, uploader, dbTime(dayStart), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *EntryRepo) DeleteOwnEntriesToday(ctx context.Context, uploader int64, dayStart time.Time) (int64, error) {
	return r.deleteOwn(ctx, `uploaded_by = ? AND created_at >= ?`, uploader, dbTime(dayStart))
}

// deleteOwn removes the matching entries together with their reminders and
// assignments. Origin ledger rows are detached, not deleted.
func (r *EntryRepo) deleteOwn(ctx context.Context, where string, args ...any) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	selected := `SELECT id FROM entries WHERE ` + where
	for _, q := range []string{
		`DELETE FROM reminders WHERE entry_id IN (` + selected + `)`,
		`DELETE FROM coverage_assignments WHERE entry_id IN (` + selected + `)`,
		`UPDATE sync_origins SET entry_id = NULL WHERE entry_id IN (` + selected + `)`,
	} {
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return 0, fmt.Errorf("failed to delete entry dependents: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit entry deletion: %w", err)
	}
	return n, nil
}

func (r *EntryRepo) query(ctx context.Context, query string, args ...any) ([]core.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (core.Entry, error) {
	var (
		e             core.Entry
		kind, payload string
		originKind    string
		originID, src sql.NullString
	)
	if err := s.Scan(&e.ID, &e.Category, &kind, &payload, &originKind, &originID, &src, &e.UploadedBy, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Entry{}, err
		}
		return core.Entry{}, fmt.Errorf("failed to scan entry: %w", err)
	}

	p, err := core.UnmarshalPayload(core.PayloadKind(kind), []byte(payload))
	if err != nil {
		return core.Entry{}, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	e.Payload = p
	e.Origin = core.Origin{Kind: core.OriginKind(originKind), ID: originID.String, Source: src.String}
	return e, nil
}
