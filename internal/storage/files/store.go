package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store keeps uploaded artifact bytes under <root>/<YYYY-MM-DD>/.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Save writes data into the day's folder and returns the stored path.
func (s *Store) Save(ctx context.Context, day time.Time, name string, data []byte) (string, error) {
	dir := filepath.Join(s.root, core.DayKey(day))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create day folder: %w", err)
	}

	base := unsafeName.ReplaceAllString(filepath.Base(name), "_")
	if base == "" || base == "." || base == "_" {
		base = "artifact"
	}
	path := filepath.Join(dir, uuid.NewString()[:8]+"_"+base)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	log.FromCtx(ctx).Debug().Str("path", path).Int("bytes", len(data)).Msg("artifact stored")
	return path, nil
}

// PurgeBefore removes day folders dated before cutoff and returns how many
// were removed. Folders that are not day-named are left alone.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("read storage root: %w", err)
	}

	limit := core.DayKey(cutoff)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(time.DateOnly, e.Name()); err != nil {
			continue
		}
		if strings.Compare(e.Name(), limit) >= 0 {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}

	log.FromCtx(ctx).Debug().Int("removed", removed).Str("before", limit).Msg("artifact folders purged")
	return removed, nil
}
