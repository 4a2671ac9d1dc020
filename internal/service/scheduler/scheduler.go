package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/service/syncer"
	"github.com/sandevgo/reliefdesk/pkg/conv"
	"github.com/sandevgo/reliefdesk/pkg/log"
	"golang.org/x/sync/errgroup"
)

const (
	dispatchBatch   = 100
	deliveryTimeout = 30 * time.Second
)

type ArtifactPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type SourceSyncer interface {
	Sources() []core.Source
	Sync(ctx context.Context, name string) (syncer.MergeResult, error)
}

type Config struct {
	PurgeAt       time.Duration
	RetentionDays int
	ActiveFrom    time.Duration
	ActiveTo      time.Duration
	PollInterval  time.Duration
	Lead          time.Duration
	MaxAttempts   int
	MaxAge        time.Duration
	Location      *time.Location
	SuperAdmins   []int64
}

// NewConfig converts the app configuration into scheduler settings.
func NewConfig(app *config.AppConfig) (Config, error) {
	loc, err := app.Location()
	if err != nil {
		return Config{}, err
	}
	purgeAt, err := config.ParseClock(app.Purge.At)
	if err != nil {
		return Config{}, err
	}
	from, err := config.ParseClock(app.Reminder.ActiveFrom)
	if err != nil {
		return Config{}, err
	}
	to, err := config.ParseClock(app.Reminder.ActiveTo)
	if err != nil {
		return Config{}, err
	}
	return Config{
		PurgeAt:       purgeAt,
		RetentionDays: app.Purge.RetentionDays,
		ActiveFrom:    from,
		ActiveTo:      to,
		PollInterval:  app.Reminder.PollInterval,
		Lead:          app.Reminder.Lead,
		MaxAttempts:   app.Reminder.MaxAttempts,
		MaxAge:        app.Reminder.MaxAge,
		Location:      loc,
		SuperAdmins:   app.SuperAdminIDs,
	}, nil
}

// Scheduler runs the purge, reminder dispatch and source sync loops. A
// failing task is logged and retried on its next tick; it never stops the
// other loops.
type Scheduler struct {
	maint     core.MaintenanceRepository
	files     ArtifactPurger
	reminders core.ReminderRepository
	messenger core.Messenger
	syncer    SourceSyncer
	cfg       Config
	now       func() time.Time
}

func New(
	maint core.MaintenanceRepository,
	files ArtifactPurger,
	reminders core.ReminderRepository,
	messenger core.Messenger,
	sources SourceSyncer,
	cfg Config,
) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RetentionDays < 1 {
		cfg.RetentionDays = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Scheduler{
		maint:     maint,
		files:     files,
		reminders: reminders,
		messenger: messenger,
		syncer:    sources,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func (s *Scheduler) Name() string { return "scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Msg("starting scheduler")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.purgeLoop(ctx) })
	if s.cfg.PollInterval > 0 && s.messenger != nil {
		g.Go(func() error { return s.dispatchLoop(ctx) })
	}
	if s.syncer != nil {
		for _, src := range s.syncer.Sources() {
			g.Go(func() error { return s.syncLoop(ctx, src) })
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Scheduler) Shutdown(ctx context.Context) error {
	return nil
}

func (s *Scheduler) purgeLoop(ctx context.Context) error {
	logger := log.FromCtx(ctx).With().Str("task", "purge").Logger()
	for {
		next := s.nextPurge(s.now())
		logger.Debug().Time("next", next).Msg("purge scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if _, err := s.RunPurge(ctx); err != nil {
			logger.Error().Err(err).Msg("purge failed, retrying on next cycle")
		}
	}
}

// nextPurge returns the first purge time strictly after now.
func (s *Scheduler) nextPurge(now time.Time) time.Time {
	local := now.In(s.cfg.Location)
	next := core.StartOfDay(local).Add(s.cfg.PurgeAt)
	if !next.After(local) {
		next = core.StartOfDay(local.AddDate(0, 0, 1)).Add(s.cfg.PurgeAt)
	}
	return next
}

// PurgeCutoff keeps the last RetentionDays calendar days, today included.
func (s *Scheduler) PurgeCutoff(now time.Time) time.Time {
	today := core.StartOfDay(now.In(s.cfg.Location))
	return today.AddDate(0, 0, -(s.cfg.RetentionDays - 1))
}

// RunPurge deletes stored data older than the retention window and tells the
// superadmins what was removed.
func (s *Scheduler) RunPurge(ctx context.Context) (core.PurgeResult, error) {
	logger := log.FromCtx(ctx)
	cutoff := s.PurgeCutoff(s.now())

	res, err := s.maint.PurgeBefore(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("purge store: %w", err)
	}
	if s.files != nil {
		n, err := s.files.PurgeBefore(ctx, cutoff)
		res.Directories = n
		if err != nil {
			return res, fmt.Errorf("purge artifacts: %w", err)
		}
	}

	logger.Info().
		Time("cutoff", cutoff).
		Int64("entries", res.Entries).
		Int64("reminders", res.Reminders).
		Int("directories", res.Directories).
		Msg("purge finished")

	if s.messenger != nil {
		text := FormatPurge(res)
		for _, id := range s.cfg.SuperAdmins {
			if err := s.messenger.Notify(ctx, id, text); err != nil {
				logger.Warn().Err(err).Int64("identity", id).Msg("failed to send purge report")
			}
		}
	}
	return res, nil
}

func FormatPurge(res core.PurgeResult) string {
	return fmt.Sprintf(
		"Purge complete (before %s): %d entries, %d reminders, %d assignments, %d codes, %d artifact folders removed.",
		core.DayKey(res.Cutoff), res.Entries, res.Reminders, res.Assignments, res.Codes, res.Directories,
	)
}

func (s *Scheduler) dispatchLoop(ctx context.Context) error {
	logger := log.FromCtx(ctx).With().Str("task", "dispatch").Logger()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.Active(s.now()) {
				continue
			}
			if _, err := s.Dispatch(ctx); err != nil {
				logger.Error().Err(err).Msg("reminder dispatch failed")
			}
		}
	}
}

// Active reports whether now falls inside the reminder window.
func (s *Scheduler) Active(now time.Time) bool {
	local := now.In(s.cfg.Location)
	offset := local.Sub(core.StartOfDay(local))
	return offset >= s.cfg.ActiveFrom && offset < s.cfg.ActiveTo
}

type DispatchResult struct {
	Sent     int
	Retrying int
	Expired  int
}

// Dispatch delivers the reminders that are due once.
func (s *Scheduler) Dispatch(ctx context.Context) (DispatchResult, error) {
	logger := log.FromCtx(ctx)
	now := s.now()

	due, err := s.reminders.DueReminders(ctx, now, dispatchBatch)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("load due reminders: %w", err)
	}

	var res DispatchResult
	for _, r := range due {
		rl := logger.With().Int64("reminder", r.ID).Int64("identity", r.IdentityID).Logger()

		if s.cfg.MaxAge > 0 && now.Sub(r.FireAt) > s.cfg.MaxAge {
			if err := s.reminders.MarkReminderExpired(ctx, r.ID); err != nil {
				return res, err
			}
			rl.Info().Msg("reminder expired before delivery")
			res.Expired++
			continue
		}

		if err := s.deliver(ctx, r); err != nil {
			attempts, ferr := s.reminders.RecordReminderFailure(ctx, r.ID, s.cfg.MaxAttempts)
			if ferr != nil {
				return res, ferr
			}
			if attempts >= s.cfg.MaxAttempts {
				rl.Warn().Err(err).Int("attempts", attempts).Msg("reminder expired after failed deliveries")
				res.Expired++
			} else {
				rl.Warn().Err(err).Int("attempts", attempts).Msg("reminder delivery failed")
				res.Retrying++
			}
			continue
		}

		if err := s.reminders.MarkReminderSent(ctx, r.ID); err != nil {
			return res, err
		}
		res.Sent++
	}
	return res, nil
}

func (s *Scheduler) deliver(ctx context.Context, r core.Reminder) error {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	if err := s.messenger.DeliverReminder(ctx, r, s.ReminderText(r)); err != nil {
		return &core.DeliveryFailure{IdentityID: r.IdentityID, Err: err}
	}
	return nil
}

func (s *Scheduler) ReminderText(r core.Reminder) string {
	start := r.FireAt.Add(s.cfg.Lead).In(s.cfg.Location)
	return fmt.Sprintf("Relief reminder: you are covering *%s* (slot %s) at %s.",
		conv.EscapeMarkdown(r.Subject), conv.EscapeMarkdown(r.TimeSlot), start.Format("15:04"))
}

func (s *Scheduler) syncLoop(ctx context.Context, src core.Source) error {
	logger := log.FromCtx(ctx).With().Str("task", "sync").Str("source", src.Name()).Logger()
	interval := src.Interval()
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := s.syncer.Sync(ctx, src.Name())
			switch {
			case errors.Is(err, core.ErrBusy):
				logger.Debug().Msg("previous sync still running")
			case err != nil:
				logger.Error().Err(err).Str("stopped_at", res.StoppedAt).Msg("source sync failed")
			}
		}
	}
}
