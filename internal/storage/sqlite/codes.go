package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
)

type CodeRepo struct {
	db *sql.DB
}

func NewCodeRepo(db *sql.DB) *CodeRepo {
	return &CodeRepo{db: db}
}

// CurrentCode stores candidate as the day's code unless one already exists,
// then returns whichever code won.
func (r *CodeRepo) CurrentCode(ctx context.Context, day, candidate string) (core.DailyCode, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.DailyCode{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO daily_codes (day, code, generated_at) VALUES (?, ?, ?) ON CONFLICT(day) DO NOTHING`,
		day, candidate, dbTime(time.Now()))
	if err != nil {
		return core.DailyCode{}, fmt.Errorf("failed to insert code: %w", err)
	}

	c := core.DailyCode{Day: day}
	err = tx.QueryRowContext(ctx, `SELECT code, generated_at FROM daily_codes WHERE day = ?`, day).Scan(&c.Code, &c.GeneratedAt)
	if err != nil {
		return core.DailyCode{}, fmt.Errorf("failed to read code: %w", err)
	}
	return c, tx.Commit()
}

func (r *CodeRepo) Code(ctx context.Context, day string) (core.DailyCode, error) {
	c := core.DailyCode{Day: day}
	err := r.db.QueryRowContext(ctx, `SELECT code, generated_at FROM daily_codes WHERE day = ?`, day).Scan(&c.Code, &c.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DailyCode{}, core.ErrNotFound
	}
	if err != nil {
		return core.DailyCode{}, fmt.Errorf("failed to read code: %w", err)
	}
	return c, nil
}

// ReplaceCode supersedes the day's code.
func (r *CodeRepo) ReplaceCode(ctx context.Context, day, code string) (core.DailyCode, error) {
	now := dbTime(time.Now())
	query := `
		INSERT INTO daily_codes (day, code, generated_at) VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET code = excluded.code, generated_at = excluded.generated_at`

	if _, err := r.db.ExecContext(ctx, query, day, code, now); err != nil {
		return core.DailyCode{}, fmt.Errorf("failed to replace code: %w", err)
	}
	return core.DailyCode{Day: day, Code: code, GeneratedAt: now}, nil
}
