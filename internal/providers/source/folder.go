package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
)

// Folder lists files under a local directory tree, for example a synced
// shared drive. The first path component below root is the folder name.
type Folder struct {
	name       string
	root       string
	interval   time.Duration
	category   string
	classifier *Classifier
}

func NewFolder(name, root string, interval time.Duration, category string, classifier *Classifier) *Folder {
	return &Folder{
		name:       name,
		root:       root,
		interval:   interval,
		category:   category,
		classifier: classifier,
	}
}

func (f *Folder) Name() string            { return f.name }
func (f *Folder) Interval() time.Duration { return f.interval }

// List returns items whose marker sorts after marker, oldest first.
func (f *Folder) List(ctx context.Context, marker string) ([]core.SyncItem, error) {
	var items []core.SyncItem
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != f.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		folder := ""
		if i := strings.Index(rel, "/"); i >= 0 {
			folder = rel[:i]
		}
		item := core.SyncItem{
			ID:       rel,
			Name:     d.Name(),
			Folder:   folder,
			Modified: info.ModTime().UTC(),
		}
		item.Category = f.categorize(item)
		if item.Marker() > marker {
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", f.root, err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Marker() < items[j].Marker() })
	return items, nil
}

func (f *Folder) Fetch(ctx context.Context, item core.SyncItem) (core.Artifact, error) {
	path := filepath.Join(f.root, filepath.FromSlash(item.ID))
	if !strings.HasPrefix(path, filepath.Clean(f.root)+string(os.PathSeparator)) {
		return core.Artifact{}, fmt.Errorf("item %q escapes source root", item.ID)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Artifact{}, fmt.Errorf("read %s: %w", item.ID, err)
	}
	return core.Artifact{FileName: item.Name, Data: data}, nil
}

func (f *Folder) categorize(item core.SyncItem) string {
	if f.category != "" {
		return f.category
	}
	return f.classifier.Classify(item.Folder, item.Name)
}
