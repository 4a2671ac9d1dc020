package query

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAI struct {
	prompts []string
}

func (r *recordingAI) Chat(_ context.Context, history []core.Message) (core.Message, error) {
	r.prompts = append(r.prompts, history[len(history)-1].Content)
	return core.Message{Role: core.ChatAssistant, Content: "Mr Lim covers 4E2 in period 3."}, nil
}

type staticEntries struct {
	entries  []core.Entry
	from, to time.Time
}

func (s *staticEntries) ListEntriesBetween(_ context.Context, from, to time.Time) ([]core.Entry, error) {
	s.from, s.to = from, to
	return s.entries, nil
}

var (
	now        = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	categories = []core.Category{{Name: "relief", Label: "Relief"}, {Name: "event", Label: "Event"}}
)

func entry(category, body string, minute int) core.Entry {
	return core.Entry{
		Category:  category,
		Payload:   core.TextPayload{Body: body},
		CreatedAt: time.Date(2026, 3, 2, 7, minute, 0, 0, time.UTC),
	}
}

func newService(entries ...core.Entry) (*Service, *recordingAI, *staticEntries) {
	ai := &recordingAI{}
	store := &staticEntries{entries: entries}
	s := NewService(ai, store, categories, time.UTC).WithClock(func() time.Time { return now })
	return s, ai, store
}

func TestService_AskUsesTodaysEntries(t *testing.T) {
	s, ai, store := newService(
		entry("relief", "Mr Lim covers 4E2 Math period 3", 10),
		entry("event", "Sports day rehearsal at 2pm", 20),
	)

	answer, err := s.Ask(context.Background(), "Who covers 4E2?")
	require.NoError(t, err)
	assert.Equal(t, "Mr Lim covers 4E2 in period 3.", answer)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), store.from)

	require.Len(t, ai.prompts, 1)
	assert.Contains(t, ai.prompts[0], "[RELIEF] at 07:10:\nMr Lim covers 4E2 Math period 3")
	assert.Contains(t, ai.prompts[0], "QUESTION: Who covers 4E2?")
	assert.Less(t, strings.Index(ai.prompts[0], "[EVENT]"), strings.Index(ai.prompts[0], "[RELIEF]"))
}

func TestService_AskWithoutEntriesSkipsCompletion(t *testing.T) {
	s, ai, _ := newService()

	answer, err := s.Ask(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Equal(t, noEntries, answer)
	assert.Empty(t, ai.prompts)

	_, err = s.Ask(context.Background(), "  ")
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestService_ContextRespectsBudget(t *testing.T) {
	long := strings.Repeat("relief detail ", 400)
	s, _, _ := newService(entry("relief", long, 1), entry("relief", long, 2), entry("event", "short", 3))
	s.WithBudget(countTokens(s.formatEntry(entry("event", "short", 3))) + countTokens(long)/2)

	text, used := s.buildContext(s.entries.(*staticEntries).entries, 0)
	assert.Equal(t, 1, used)
	assert.Contains(t, text, "short")

	s.WithBudget(10)
	text, used = s.buildContext([]core.Entry{entry("relief", long, 1)}, 0)
	assert.Equal(t, 1, used)
	assert.LessOrEqual(t, len([]rune(text)), 40)
}

func TestService_OverviewAndSummary(t *testing.T) {
	s, ai, _ := newService(
		entry("relief", "a", 1),
		entry("relief", "b", 2),
		entry("custom_feed", "c", 3),
	)

	text, err := s.Overview(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "- Relief: 2")
	assert.Contains(t, text, `- custom\_feed: 1`)
	assert.Contains(t, text, "Total: 3 entries")
	assert.Empty(t, ai.prompts)

	_, err = s.Summary(context.Background(), "relief")
	require.NoError(t, err)
	require.Len(t, ai.prompts, 1)
	assert.NotContains(t, ai.prompts[0], "CUSTOM_FEED")

	text, err = s.Summary(context.Background(), "event")
	require.NoError(t, err)
	assert.Equal(t, noEntries, text)
}
