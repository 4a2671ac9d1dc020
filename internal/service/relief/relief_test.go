package relief

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	store "github.com/sandevgo/reliefdesk/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedAI struct {
	reply string
	calls int
}

func (c *cannedAI) Chat(_ context.Context, _ []core.Message) (core.Message, error) {
	c.calls++
	return core.Message{Role: core.ChatAssistant, Content: c.reply}, nil
}

type fixture struct {
	engine    *Engine
	entries   *store.EntryRepo
	reminders *store.ReminderRepo
}

func newFixture(t *testing.T, reply string) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewDB(ctx, filepath.Join(t.TempDir(), "desk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	identities := store.NewIdentityRepo(db)
	for _, ident := range []core.Identity{
		{ID: 11, DisplayName: "Mr Lim Boon Keng", Role: core.RoleViewer},
		{ID: 12, DisplayName: "Sarah Wong", Role: core.RoleViewer},
		{ID: 13, DisplayName: "Mdm Tan Mei Ling", Role: core.RoleViewer},
	} {
		require.NoError(t, identities.UpsertIdentity(ctx, ident))
	}

	reminders := store.NewReminderRepo(db)
	engine, err := NewEngine(&cannedAI{reply: reply}, identities, reminders, &config.ReminderConfig{
		Lead:        5 * time.Minute,
		PeriodTimes: config.DefaultPeriodTimes(),
	}, time.UTC)
	require.NoError(t, err)

	return fixture{engine: engine, entries: store.NewEntryRepo(db), reminders: reminders}
}

func (f fixture) commit(t *testing.T, at time.Time) core.Entry {
	t.Helper()
	e := core.Entry{
		Category:   "relief",
		Payload:    core.TextPayload{Body: "relief list"},
		Origin:     core.Origin{Kind: core.OriginInteractive},
		UploadedBy: 1,
		CreatedAt:  at,
	}
	id, err := f.entries.CreateEntry(context.Background(), e)
	require.NoError(t, err)
	e.ID = id
	return e
}

const reliefReply = "Here you go:\n```json\n[\n" +
	`{"subject": "4E2 Math", "coveringIdentityName": "Mr Lim Boon Keng", "timeSlot": "3"},` + "\n" +
	`{"subject": "2A Science", "coveringIdentityName": "sarah wong", "timeSlot": "5-6"},` + "\n" +
	`{"subject": "1B English", "coveringIdentityName": "Mr Nobody", "timeSlot": 2},` + "\n" +
	`{"subject": "", "coveringIdentityName": "Sarah Wong", "timeSlot": "1"},` + "\n" +
	`{"subject": "3C Art", "coveringIdentityName": "Sarah Wong", "timeSlot": "after lunch"},` + "\n" +
	`"garbage"` + "\n]\n```"

func TestEngine_MatchDropsMalformedElements(t *testing.T) {
	f := newFixture(t, reliefReply)

	got, err := f.engine.Match(context.Background(), "relief list")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "4E2 Math", got[0].Subject)
	assert.Equal(t, int64(11), got[0].IdentityID)
	assert.Equal(t, int64(12), got[1].IdentityID)
	assert.Equal(t, "2", got[2].TimeSlot)
	assert.False(t, got[2].Resolved())
}

func TestEngine_ProcessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reliefReply)
	entry := f.commit(t, time.Date(2026, 3, 2, 7, 10, 0, 0, time.UTC))

	first, err := f.engine.Process(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Assignments)
	assert.Equal(t, 2, first.Resolved)
	assert.Equal(t, 2, first.RemindersCreated)
	assert.Equal(t, []string{"Mr Nobody"}, first.Unresolved)

	second, err := f.engine.Process(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, 0, second.RemindersCreated)

	rems, err := f.reminders.ListRemindersForEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, rems, 2)

	fires := map[int64]time.Time{}
	for _, r := range rems {
		fires[r.IdentityID] = r.FireAt.UTC()
	}
	// period 3 starts 08:40, period 5 at 09:20; reminders fire 5 minutes early.
	assert.Equal(t, time.Date(2026, 3, 2, 8, 35, 0, 0, time.UTC), fires[11])
	assert.Equal(t, time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC), fires[12])
}

func TestEngine_NoArrayIsAnError(t *testing.T) {
	f := newFixture(t, "I could not find any assignments.")
	_, err := f.engine.Match(context.Background(), "text")
	assert.Error(t, err)
}

func TestTimetable_Start(t *testing.T) {
	tt, err := NewTimetable(config.DefaultPeriodTimes())
	require.NoError(t, err)

	tests := []struct {
		slot string
		want time.Duration
		ok   bool
	}{
		{"0", 7*time.Hour + 35*time.Minute, true},
		{"1", 8 * time.Hour, true},
		{"P3", 8*time.Hour + 40*time.Minute, true},
		{"period 4", 9 * time.Hour, true},
		{"03", 8*time.Hour + 40*time.Minute, true},
		{"5-6", 9*time.Hour + 20*time.Minute, true},
		{"5 to 6", 9*time.Hour + 20*time.Minute, true},
		{"09:40", 9*time.Hour + 40*time.Minute, true},
		{"9.40", 9*time.Hour + 40*time.Minute, true},
		{"99", 0, false},
		{"lunch", 0, false},
	}
	for _, tt2 := range tests {
		t.Run(tt2.slot, func(t *testing.T) {
			got, err := tt.Start(tt2.slot)
			if !tt2.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt2.want, got)
		})
	}
}

func TestNameIndex_Resolve(t *testing.T) {
	idx := newNameIndex([]core.Identity{
		{ID: 1, DisplayName: "Mr Lim Boon Keng"},
		{ID: 2, DisplayName: "Sarah Wong"},
		{ID: 3, DisplayName: "Mdm Tan Mei Ling"},
		{ID: 4, DisplayName: "Tan Ah Kow"},
		{ID: 5, DisplayName: ""},
	})

	tests := []struct {
		name string
		want int64
	}{
		{"Sarah Wong", 2},
		{"SARAH WONG", 2},
		{"Ms Sarah Wong", 2},
		{"Lim Boon Keng", 1},
		{"Dr. Lim Boon Keng", 1},
		{"Boon Keng", 1},
		{"Tan", 0},
		{"xy", 0},
		{"Nobody Here", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idx.resolve(tt.name))
		})
	}
}
