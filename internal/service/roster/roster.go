package roster

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

const maxReportedProblems = 5

// Result summarizes one bulk import.
type Result struct {
	Added    int
	Removed  int64
	Problems []string
}

// Importer replaces every identity below superadmin with the rows of a
// "id,name,role" CSV file.
type Importer struct {
	repo      core.IdentityRepository
	protected []int64
	now       func() time.Time
}

func NewImporter(repo core.IdentityRepository, protected []int64) *Importer {
	return &Importer{repo: repo, protected: protected, now: time.Now}
}

func (i *Importer) WithClock(now func() time.Time) *Importer {
	i.now = now
	return i
}

// Import parses data and swaps the roster in one transaction. Rows that
// fail validation are skipped and reported; a file without a single valid
// row changes nothing.
func (i *Importer) Import(ctx context.Context, actor int64, data []byte) (Result, error) {
	rows, problems, err := Parse(data, i.protected)
	if err != nil {
		return Result{}, err
	}
	if len(rows) == 0 {
		return Result{Problems: problems}, &core.ValidationError{
			Field:   "file",
			Message: "no valid users found" + summarize(problems),
		}
	}

	now := i.now()
	for n := range rows {
		rows[n].AddedBy = actor
		rows[n].AddedAt = now
	}

	removed, err := i.repo.ReplaceRoster(ctx, rows)
	if err != nil {
		return Result{}, fmt.Errorf("replace roster: %w", err)
	}

	log.FromCtx(ctx).Info().
		Int64("actor", actor).
		Int("added", len(rows)).
		Int64("removed", removed).
		Int("skipped", len(problems)).
		Msg("roster imported")

	return Result{Added: len(rows), Removed: removed, Problems: problems}, nil
}

// Parse reads "id,name,role" records. A header row starting with "id" or
// "telegram_id" is skipped. Only viewer, uploader and uploadadmin are
// accepted and protected ids are refused.
func Parse(data []byte, protected []int64) ([]core.Identity, []string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	var (
		out      []core.Identity
		problems []string
		seen     = make(map[int64]bool)
	)
	for first := true; ; first = false {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &core.ValidationError{Field: "file", Message: fmt.Sprintf("not a valid CSV file: %v", err)}
		}
		line, _ := r.FieldPos(0)

		if first && isHeader(rec[0]) {
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) < 3 {
			problems = append(problems, fmt.Sprintf("line %d: expected id,name,role", line))
			continue
		}

		id, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil || id <= 0 {
			problems = append(problems, fmt.Sprintf("line %d: invalid id %q", line, rec[0]))
			continue
		}
		name := strings.TrimSpace(rec[1])
		if name == "" {
			problems = append(problems, fmt.Sprintf("line %d: missing name", line))
			continue
		}
		role, err := core.ParseRole(rec[2])
		if err != nil || role < core.RoleViewer || role > core.RoleUploadAdmin {
			problems = append(problems, fmt.Sprintf("line %d: invalid role %q", line, strings.TrimSpace(rec[2])))
			continue
		}
		if slices.Contains(protected, id) {
			problems = append(problems, fmt.Sprintf("line %d: cannot modify super admin %d", line, id))
			continue
		}
		if seen[id] {
			problems = append(problems, fmt.Sprintf("line %d: duplicate id %d", line, id))
			continue
		}
		seen[id] = true

		out = append(out, core.Identity{ID: id, DisplayName: name, Role: role})
	}
	return out, problems, nil
}

func isHeader(field string) bool {
	f := strings.ToLower(strings.TrimSpace(field))
	return f == "id" || f == "telegram_id"
}

func summarize(problems []string) string {
	if len(problems) == 0 {
		return ""
	}
	shown := problems[:min(len(problems), maxReportedProblems)]
	s := ": " + strings.Join(shown, "; ")
	if extra := len(problems) - len(shown); extra > 0 {
		s += fmt.Sprintf("; and %d more", extra)
	}
	return s
}
