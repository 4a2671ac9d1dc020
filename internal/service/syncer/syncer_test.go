package syncer

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/service/relief"
	store "github.com/sandevgo/reliefdesk/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name    string
	items   []core.SyncItem
	errs    map[string]error
	fetched map[string]int
}

func newFakeSource(items ...core.SyncItem) *fakeSource {
	return &fakeSource{name: "drive", items: items, errs: map[string]error{}, fetched: map[string]int{}}
}

func (f *fakeSource) Name() string            { return f.name }
func (f *fakeSource) Interval() time.Duration { return time.Minute }

func (f *fakeSource) List(_ context.Context, marker string) ([]core.SyncItem, error) {
	var out []core.SyncItem
	for _, it := range f.items {
		if it.Marker() > marker {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeSource) Fetch(_ context.Context, item core.SyncItem) (core.Artifact, error) {
	f.fetched[item.ID]++
	if err := f.errs[item.ID]; err != nil {
		return core.Artifact{}, err
	}
	return core.Artifact{FileName: item.Name, MediaType: "text/plain", Data: []byte("content of " + item.ID)}, nil
}

type plainExtractor struct{}

func (plainExtractor) Extract(_ context.Context, a core.Artifact) (core.Payload, error) {
	if filepath.Ext(a.FileName) == ".bin" {
		return nil, &core.ExtractionFailure{Reason: core.ReasonUnsupported}
	}
	return core.DocumentPayload{FileName: a.FileName, MediaType: a.MediaType, Extracted: string(a.Data)}, nil
}

type countingRelief struct{ entries []core.Entry }

func (c *countingRelief) Process(_ context.Context, e core.Entry) (relief.Result, error) {
	c.entries = append(c.entries, e)
	return relief.Result{}, nil
}

var base = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func item(id, category string, minute int) core.SyncItem {
	return core.SyncItem{ID: id, Name: id + ".txt", Modified: base.Add(time.Duration(minute) * time.Minute), Category: category}
}

type fixture struct {
	db     *sql.DB
	repo   *store.SyncRepo
	relief *countingRelief
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := store.NewDB(context.Background(), filepath.Join(t.TempDir(), "desk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return fixture{db: db, repo: store.NewSyncRepo(db), relief: &countingRelief{}}
}

func (f fixture) syncer(src *fakeSource) *Syncer {
	return New(f.repo, plainExtractor{}, f.relief, []string{"relief"}, []core.Source{src}).
		WithClock(func() time.Time { return base.Add(time.Hour) })
}

func (f fixture) entryCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n))
	return n
}

func TestSyncer_MergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := newFakeSource(item("a", "relief", 1), item("b", "event", 2), item("c", "general", 3))
	s := f.syncer(src)

	res, err := s.Sync(ctx, "drive")
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Source: "drive", Listed: 3, Committed: 3}, res)
	assert.Equal(t, 3, f.entryCount(t))
	require.Len(t, f.relief.entries, 1)
	assert.Equal(t, core.OriginExternal, f.relief.entries[0].Origin.Kind)
	assert.Equal(t, OriginID("drive", src.items[0]), f.relief.entries[0].Origin.ID)

	res, err = s.Sync(ctx, "drive")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Listed)

	require.NoError(t, s.Reset(ctx, "drive"))
	res, err = s.Sync(ctx, "drive")
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Source: "drive", Listed: 3, Skipped: 3}, res)
	assert.Equal(t, 3, f.entryCount(t))
	assert.Equal(t, 1, src.fetched["a"])

	cursor, err := f.repo.GetCursor(ctx, "drive")
	require.NoError(t, err)
	assert.Equal(t, src.items[2].Marker(), cursor.Marker)
}

func TestSyncer_PartialFailureResumes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := newFakeSource(item("a", "general", 1), item("b", "general", 2), item("c", "general", 3))
	src.errs["b"] = &core.ExternalServiceError{Service: "drive", Transient: true, Err: errors.New("503")}
	s := f.syncer(src)

	res, err := s.Sync(ctx, "drive")
	require.Error(t, err)
	assert.Equal(t, 1, res.Committed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "b", res.StoppedAt)
	assert.Zero(t, src.fetched["c"])

	cursor, err := f.repo.GetCursor(ctx, "drive")
	require.NoError(t, err)
	assert.Equal(t, src.items[0].Marker(), cursor.Marker)

	delete(src.errs, "b")
	res, err = s.Sync(ctx, "drive")
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Source: "drive", Listed: 2, Committed: 2}, res)
	assert.Equal(t, 1, src.fetched["a"])
	assert.Equal(t, 3, f.entryCount(t))
}

func TestSyncer_SkipsUnsupportedAndPermanentFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bin := item("blob", "general", 1)
	bin.Name = "blob.bin"
	src := newFakeSource(bin, item("gone", "general", 2), item("ok", "general", 3))
	src.errs["gone"] = &core.ExternalServiceError{Service: "drive", Status: 404, Err: errors.New("not found")}
	s := f.syncer(src)

	res, err := s.Sync(ctx, "drive")
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Source: "drive", Listed: 3, Committed: 1, Skipped: 1, Failed: 1}, res)

	cursor, err := f.repo.GetCursor(ctx, "drive")
	require.NoError(t, err)
	assert.Equal(t, src.items[2].Marker(), cursor.Marker)
}

func TestSyncer_BusyAndUnknownSource(t *testing.T) {
	f := newFixture(t)
	s := f.syncer(newFakeSource())

	_, err := s.Sync(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)

	s.locks["drive"].Lock()
	_, err = s.Sync(context.Background(), "drive")
	assert.ErrorIs(t, err, core.ErrBusy)
	s.locks["drive"].Unlock()

	results, err := s.SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestOriginID(t *testing.T) {
	a := item("a", "general", 1)
	id := OriginID("drive", a)
	assert.Len(t, id, 64)
	assert.Equal(t, id, OriginID("drive", a))
	assert.NotEqual(t, id, OriginID("other", a))

	a.Modified = a.Modified.Add(time.Second)
	assert.NotEqual(t, id, OriginID("drive", a))

	// field boundaries cannot be shifted
	assert.NotEqual(t,
		OriginID("ab", core.SyncItem{ID: "c", Modified: base}),
		OriginID("a", core.SyncItem{ID: "bc", Modified: base}))
}
