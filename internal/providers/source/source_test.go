package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(DefaultRules, nil, "general")
	require.NoError(t, err)
	return c
}

func TestClassifier(t *testing.T) {
	c := newClassifier(t)

	tests := []struct {
		folder, name, want string
	}{
		{"Relief Lists", "monday.pdf", "relief"},
		{"Duty-Roster", "relief_week2.pdf", "duty_roster"},
		{"", "Relief_0302.pdf", "relief"},
		{"", "room_changes.docx", "venue_change"},
		{"Bulletins", "x.pdf", "event"},
		{"misc", "notes.txt", "general"},
		{"", "venue and relief.pdf", "relief"},
	}
	for _, tt := range tests {
		t.Run(tt.folder+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.folder, tt.name))
		})
	}
}

func TestClassifier_RestrictedToKnownCategories(t *testing.T) {
	c, err := NewClassifier(DefaultRules, []string{"relief", "general"}, "general")
	require.NoError(t, err)

	assert.Equal(t, "general", c.Classify("Duty Roster", "a.pdf"))
	assert.Equal(t, "relief", c.Classify("", "relief.pdf"))

	var none *Classifier
	assert.Equal(t, "general", none.Classify("Relief", "x"))
}

func writeFile(t *testing.T, root, rel, body string, mod time.Time) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	require.NoError(t, os.Chtimes(p, mod, mod))
}

func TestFolder_ListAfterMarker(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	writeFile(t, root, "Relief/mon.txt", "relief", base.Add(2*time.Minute))
	writeFile(t, root, "Events/sports.txt", "event", base.Add(time.Minute))
	writeFile(t, root, "loose.txt", "loose", base.Add(3*time.Minute))
	writeFile(t, root, ".hidden/secret.txt", "x", base)

	f := NewFolder("drive", root, time.Minute, "", newClassifier(t))
	assert.Equal(t, "drive", f.Name())

	items, err := f.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Events/sports.txt", items[0].ID)
	assert.Equal(t, "event", items[0].Category)
	assert.Equal(t, "Relief/mon.txt", items[1].ID)
	assert.Equal(t, "relief", items[1].Category)
	assert.Equal(t, "Relief", items[1].Folder)
	assert.Equal(t, "loose.txt", items[2].ID)
	assert.Equal(t, "", items[2].Folder)

	rest, err := f.List(context.Background(), items[1].Marker())
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "loose.txt", rest[0].ID)

	art, err := f.Fetch(context.Background(), items[1])
	require.NoError(t, err)
	assert.Equal(t, "mon.txt", art.FileName)
	assert.Equal(t, []byte("relief"), art.Data)

	_, err = f.Fetch(context.Background(), core.SyncItem{ID: "../outside.txt"})
	assert.Error(t, err)
}

func TestHTTP_ListAndFetch(t *testing.T) {
	var indexHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/index.json":
			indexHits++
			fmt.Fprint(w, `{"items": [
				{"id": "b", "name": "Duty Roster.pdf", "modified": "2026-03-02T07:05:00Z", "url": "files/b"},
				{"id": "a", "name": "relief.txt", "folder": "Relief", "modified": "2026-03-02T07:00:00Z", "url": "files/a", "mediaType": "text/plain"},
				{"id": "", "name": "broken", "url": "files/x"}
			]}`)
		case "/files/a":
			fmt.Fprint(w, "Mr Lim covers 4E2 period 3")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h, err := NewHTTP("remote", srv.URL+"/index.json", "s3cret", time.Minute, "", newClassifier(t))
	require.NoError(t, err)

	items, err := h.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "relief", items[0].Category)
	assert.Equal(t, "duty_roster", items[1].Category)

	art, err := h.Fetch(context.Background(), items[0])
	require.NoError(t, err)
	assert.Equal(t, "text/plain", art.MediaType)
	assert.Equal(t, "Mr Lim covers 4E2 period 3", string(art.Data))
	assert.Equal(t, 1, indexHits)

	_, err = h.Fetch(context.Background(), core.SyncItem{ID: "gone"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = h.Fetch(context.Background(), items[1])
	var svcErr *core.ExternalServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusNotFound, svcErr.Status)
	assert.False(t, svcErr.Transient)
}

func TestHTTP_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h, err := NewHTTP("remote", srv.URL, "", time.Minute, "", nil)
	require.NoError(t, err)
	_, err = h.List(context.Background(), "")
	assert.False(t, core.IsTransient(err))
}

func TestNewAll(t *testing.T) {
	t.Setenv("REMOTE_TOKEN", "abc")
	sources, err := NewAll(&config.SourcesConfig{Sources: []config.SourceConfig{
		{Name: "drive", Type: config.SourceFolder, Root: t.TempDir(), Interval: "5m"},
		{Name: "remote", Type: config.SourceHTTP, URL: "http://example.invalid/index.json", TokenEnv: "REMOTE_TOKEN"},
	}}, nil)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, 5*time.Minute, sources[0].Interval())
	assert.Equal(t, 15*time.Minute, sources[1].Interval())
	assert.Equal(t, "abc", sources[1].(*HTTP).token)
}
