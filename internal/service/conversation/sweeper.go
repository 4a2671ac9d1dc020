package conversation

import (
	"context"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

const minSweepInterval = 10 * time.Second

// Sweeper cancels abandoned sessions and tells their owners.
type Sweeper struct {
	engine    *Engine
	messenger core.Messenger
	Interval  time.Duration
}

func NewSweeper(engine *Engine, messenger core.Messenger) *Sweeper {
	interval := engine.cfg.SessionTimeout / 4
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	return &Sweeper{engine: engine, messenger: messenger, Interval: interval}
}

func (s *Sweeper) Name() string { return "session sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Dur("interval", s.Interval).Msg("starting session sweeper")

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *Sweeper) Shutdown(ctx context.Context) error {
	return nil
}

// Sweep expires idle sessions once and returns how many were cancelled.
func (s *Sweeper) Sweep(ctx context.Context) int {
	logger := log.FromCtx(ctx)
	expired := s.engine.Expire(ctx)
	for id, reply := range expired {
		if s.messenger == nil || reply.Text == "" {
			continue
		}
		if err := s.messenger.Notify(ctx, id, reply.Text); err != nil {
			logger.Warn().Err(err).Int64("identity", id).Msg("failed to notify about expired session")
		}
	}
	return len(expired)
}
