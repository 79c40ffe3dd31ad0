package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entityql/internal/logging"
)

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack struct {
	steps []cleanupStep
}

type cleanupStep struct {
	component string
	release   func(context.Context) error
}

func (s *cleanupStack) push(component string, release func(context.Context) error) {
	s.steps = append(s.steps, cleanupStep{component: component, release: release})
}

// run executes every step, even after failures, and joins their errors.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		start := time.Now()
		err := step.release(ctx)
		if logger == nil {
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", step.component, err))
			}
			continue
		}
		if err != nil {
			logger.Warn("cleanup failed",
				slog.String("component", step.component),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", step.component, err))
			continue
		}
		logger.Debug("released",
			slog.String("component", step.component),
			slog.Duration("took", time.Since(start)),
		)
	}
	return errors.Join(errs...)
}

// Shutdown releases everything Init acquired. Only the first call does work;
// later calls return the same result.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		a.shutdownErr = cleanup.run(ctx, a.logger)
	})

	return a.shutdownErr
}
