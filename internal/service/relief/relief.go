package relief

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

// Result summarizes one Process run.
type Result struct {
	Assignments      int
	Resolved         int
	RemindersCreated int
	Unresolved       []string
}

type Engine struct {
	ai         core.AIProvider
	identities core.IdentityRepository
	reminders  core.ReminderRepository
	timetable  *Timetable
	lead       time.Duration
	loc        *time.Location
}

func NewEngine(
	ai core.AIProvider,
	identities core.IdentityRepository,
	reminders core.ReminderRepository,
	cfg *config.ReminderConfig,
	loc *time.Location,
) (*Engine, error) {
	periods := cfg.PeriodTimes
	if len(periods) == 0 {
		periods = config.DefaultPeriodTimes()
	}
	timetable, err := NewTimetable(periods)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		ai:         ai,
		identities: identities,
		reminders:  reminders,
		timetable:  timetable,
		lead:       cfg.Lead,
		loc:        loc,
	}, nil
}

// Match asks the completion service for the assignments in text and resolves
// each covering name against the registered identities.
func (e *Engine) Match(ctx context.Context, text string) ([]core.CoverageAssignment, error) {
	logger := log.FromCtx(ctx)

	resp, err := e.ai.Chat(ctx, []core.Message{
		{Role: core.ChatSystem, Content: systemPrompt},
		{Role: core.ChatUser, Content: buildMatchPrompt(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("relief completion: %w", err)
	}

	assignments, dropped, err := parseAssignments(resp.Content, e.timetable.Valid)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		logger.Warn().Int("dropped", dropped).Msg("dropped malformed relief assignments")
	}

	identities, err := e.identities.ListIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	names := newNameIndex(identities)
	for i := range assignments {
		assignments[i].IdentityID = names.resolve(assignments[i].CoveringName)
	}
	return assignments, nil
}

// Process matches a committed coverage entry and schedules reminders for every
// resolved assignment. Re-running it on the same entry creates nothing new.
func (e *Engine) Process(ctx context.Context, entry core.Entry) (Result, error) {
	logger := log.FromCtx(ctx).With().Int64("entry_id", entry.ID).Logger()

	assignments, err := e.Match(ctx, entry.Payload.Text())
	if err != nil {
		return Result{}, err
	}

	day := core.StartOfDay(entry.CreatedAt.In(e.loc))
	var res Result
	for _, a := range assignments {
		a.EntryID = entry.ID
		res.Assignments++
		if err := e.reminders.SaveAssignment(ctx, a); err != nil {
			return res, fmt.Errorf("save assignment: %w", err)
		}
		if !a.Resolved() {
			res.Unresolved = append(res.Unresolved, a.CoveringName)
			continue
		}
		res.Resolved++

		start, err := e.timetable.Start(a.TimeSlot)
		if err != nil {
			return res, err
		}
		created, err := e.reminders.CreateReminder(ctx, core.Reminder{
			EntryID:    entry.ID,
			IdentityID: a.IdentityID,
			FireAt:     day.Add(start - e.lead),
			Status:     core.ReminderPending,
			Subject:    a.Subject,
			TimeSlot:   a.TimeSlot,
		})
		if err != nil {
			return res, fmt.Errorf("create reminder: %w", err)
		}
		if created {
			res.RemindersCreated++
		}
	}

	logger.Info().
		Int("assignments", res.Assignments).
		Int("resolved", res.Resolved).
		Int("reminders", res.RemindersCreated).
		Strs("unresolved", res.Unresolved).
		Msg("relief list processed")

	return res, nil
}
