package query

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/conv"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

const (
	defaultBudget = 6000
	noEntries     = "No information has been uploaded for today yet."
)

type EntryLister interface {
	ListEntriesBetween(ctx context.Context, from, to time.Time) ([]core.Entry, error)
}

// Service answers questions over the entries of the current day.
type Service struct {
	ai         core.AIProvider
	entries    EntryLister
	categories []core.Category
	loc        *time.Location
	budget     int
	now        func() time.Time
}

func NewService(ai core.AIProvider, entries EntryLister, categories []core.Category, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		ai:         ai,
		entries:    entries,
		categories: categories,
		loc:        loc,
		budget:     defaultBudget,
		now:        time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithBudget caps the tokens of entry context sent with each request.
func (s *Service) WithBudget(tokens int) *Service {
	s.budget = tokens
	return s
}

func (s *Service) today(ctx context.Context) ([]core.Entry, error) {
	now := s.now().In(s.loc)
	entries, err := s.entries.ListEntriesBetween(ctx, core.StartOfDay(now), now.Add(time.Second))
	if err != nil {
		return nil, fmt.Errorf("list today's entries: %w", err)
	}
	return entries, nil
}

func (s *Service) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", &core.ValidationError{Field: "question", Message: "ask a question after /ask"}
	}

	entries, err := s.today(ctx)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return noEntries, nil
	}

	contextText, used := s.buildContext(entries, countTokens(question))
	log.FromCtx(ctx).Debug().Int("entries", used).Int("available", len(entries)).Msg("answering question")

	resp, err := s.ai.Chat(ctx, []core.Message{
		{Role: core.ChatSystem, Content: systemPrompt},
		{Role: core.ChatUser, Content: buildAskPrompt(contextText, question)},
	})
	if err != nil {
		return "", fmt.Errorf("answer question: %w", err)
	}
	return resp.Content, nil
}

// Summary asks the completion service for a digest of today's entries,
// optionally limited to one category.
func (s *Service) Summary(ctx context.Context, category string) (string, error) {
	entries, err := s.today(ctx)
	if err != nil {
		return "", err
	}
	if category != "" {
		entries = filter(entries, category)
	}
	if len(entries) == 0 {
		return noEntries, nil
	}

	contextText, _ := s.buildContext(entries, 0)
	resp, err := s.ai.Chat(ctx, []core.Message{
		{Role: core.ChatSystem, Content: systemPrompt},
		{Role: core.ChatUser, Content: buildSummaryPrompt(contextText)},
	})
	if err != nil {
		return "", fmt.Errorf("summarize entries: %w", err)
	}
	return resp.Content, nil
}

// Overview lists today's entry counts per category without calling the
// completion service.
func (s *Service) Overview(ctx context.Context) (string, error) {
	entries, err := s.today(ctx)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return noEntries, nil
	}

	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Category]++
	}

	var sb strings.Builder
	sb.WriteString("*Today's information*\n\n")
	for _, c := range s.categories {
		if n := counts[c.Name]; n > 0 {
			fmt.Fprintf(&sb, "- %s: %d\n", c.Label, n)
			delete(counts, c.Name)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(&sb, "- %s: %d\n", conv.EscapeMarkdown(name), counts[name])
	}
	fmt.Fprintf(&sb, "\n*Total: %d entries*\nSend `/today full` for a summary.", len(entries))
	return sb.String(), nil
}

// buildContext renders entries newest first until the token budget runs out
// and returns the text with the number of entries included.
func (s *Service) buildContext(entries []core.Entry, reserved int) (string, int) {
	budget := s.budget - reserved
	var blocks []string
	for i := len(entries) - 1; i >= 0; i-- {
		block := s.formatEntry(entries[i])
		cost := countTokens(block)
		if cost > budget {
			if len(blocks) == 0 {
				block = conv.Truncate(block, budget*4)
				blocks = append(blocks, block)
			}
			break
		}
		budget -= cost
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n\n"), len(blocks)
}

func (s *Service) formatEntry(e core.Entry) string {
	return fmt.Sprintf("[%s] at %s:\n%s",
		strings.ToUpper(e.Category), e.CreatedAt.In(s.loc).Format("15:04"), strings.TrimSpace(e.Payload.Text()))
}

func filter(entries []core.Entry, category string) []core.Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if strings.EqualFold(e.Category, category) {
			out = append(out, e)
		}
	}
	return out
}
