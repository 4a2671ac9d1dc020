package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
	"github.com/sandevgo/reliefdesk/pkg/retry"
)

// Resilient bounds every call with a timeout and retries transient failures
// with exponential backoff. A timed out attempt counts as transient.
type Resilient struct {
	next    core.AIProvider
	retrier *retry.Retrier
	timeout time.Duration
}

func NewResilient(next core.AIProvider, cfg *retry.Config, timeout time.Duration) *Resilient {
	c := *cfg
	c.Retryable = core.IsTransient
	return &Resilient{
		next:    next,
		retrier: retry.NewRetrier(&c),
		timeout: timeout,
	}
}

func (r *Resilient) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	var (
		out     core.Message
		attempt int
	)
	err := r.retrier.Do(ctx, func() error {
		attempt++
		callCtx, cancel := r.attemptContext(ctx)
		defer cancel()

		msg, err := r.next.Chat(callCtx, history)
		if err != nil {
			if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				err = &core.ExternalServiceError{Service: "llm", Transient: true, Err: err}
			}
			log.FromCtx(ctx).Warn().Err(err).Int("attempt", attempt).Bool("transient", core.IsTransient(err)).Msg("llm call failed")
			return err
		}
		out = msg
		return nil
	})
	return out, err
}

func (r *Resilient) Models(ctx context.Context) ([]core.Model, error) {
	lister, ok := r.next.(core.ModelLister)
	if !ok {
		return nil, errors.New("provider cannot list models")
	}
	return lister.Models(ctx)
}

func (r *Resilient) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
