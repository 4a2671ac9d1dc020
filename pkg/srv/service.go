package srv

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/reliefdesk/pkg/log"
)

const shutdownTimeout = 15 * time.Second

type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Named lets a service pick the label used in lifecycle logs.
type Named interface {
	Name() string
}

func nameOf(service Service) string {
	if n, ok := service.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", service)
}

func StartServices(ctx context.Context, services []Service) {
	logger := log.FromCtx(ctx)
	for _, service := range services {
		go func(service Service) {
			if err := service.Start(ctx); err != nil {
				logger.Fatal().Err(err).Msgf("%s failed to start", nameOf(service))
			}
		}(service)
	}
}

// ShutdownServices blocks until ctx is done, then stops services in reverse
// start order so storage cleanups run after their users are gone.
func ShutdownServices(ctx context.Context, services []Service) {
	<-ctx.Done()

	logger := log.FromCtx(ctx)
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Shutdown(stopCtx); err != nil {
			logger.Error().Err(err).Msgf("%s failed to shutdown", nameOf(services[i]))
		}
	}
}

// cleanupService runs a single function on shutdown.
type cleanupService struct {
	name    string
	cleanup func() error
}

func (c *cleanupService) Name() string { return c.name }

func (c *cleanupService) Start(ctx context.Context) error {
	return nil
}

func (c *cleanupService) Shutdown(ctx context.Context) error {
	if c.cleanup != nil {
		return c.cleanup()
	}
	return nil
}

func NewCleanup(name string, fn func() error) Service {
	return &cleanupService{name: name, cleanup: fn}
}
