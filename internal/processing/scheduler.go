package processing

import (
	"context"
	"sync"
	"time"

	"invoice-backend/internal/shared/telemetry"
)

// Runner is the slice of Service the scheduler drives.
type Runner interface {
	RunPoll(ctx context.Context) PollResult
	RunJanitor(ctx context.Context) JanitorResult
}

// Scheduler runs the poller and janitor on fixed intervals until the context
// is cancelled. Each task ticks on its own goroutine, so a long poll pass
// cannot hold up a janitor pass.
type Scheduler struct {
	Svc             Runner
	PollInterval    time.Duration
	JanitorInterval time.Duration
}

// Run blocks until ctx is done. Passes that would overlap a still-running
// one are skipped by the service's run guards.
func (s *Scheduler) Run(ctx context.Context) {
	pollInterval := s.PollInterval
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	janitorInterval := s.JanitorInterval
	if janitorInterval <= 0 {
		janitorInterval = 5 * time.Minute
	}

	telemetry.Info("scheduler.started", map[string]any{
		"poll_interval":    pollInterval.String(),
		"janitor_interval": janitorInterval.String(),
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runEvery(ctx, pollInterval, func() { s.Svc.RunPoll(ctx) })
	}()
	go func() {
		defer wg.Done()
		runEvery(ctx, janitorInterval, func() { s.Svc.RunJanitor(ctx) })
	}()
	wg.Wait()

	telemetry.Info("scheduler.stopped", nil)
}

// runEvery invokes pass on every tick until ctx is cancelled. A pass that
// overruns its interval delays only its own ticker.
func runEvery(ctx context.Context, interval time.Duration, pass func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass()
		}
	}
}
