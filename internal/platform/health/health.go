// Package health waits for the policy admin server to come up before a
// provisioning pass starts. The admin server can take minutes to boot in a
// fresh cluster, and a run launched too early would burn its single pass on
// connection errors.
package health

import (
	"context"
	"fmt"
	"time"

	pkglog "github.com/rangertools/rangerprov/pkg/log"
)

// Pinger probes a dependency for reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options control the readiness wait loop.
type Options struct {
	// Timeout bounds the whole wait. Zero selects 90s.
	Timeout time.Duration

	// Interval is the delay between probes. Zero selects 2s.
	Interval time.Duration
}

// WaitReady polls target until it answers, ctx is cancelled, or the budget
// runs out. The returned error wraps the last probe failure so the caller
// can report why the server never became ready.
func WaitReady(ctx context.Context, target Pinger, opts Options) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := pkglog.Logger()

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := target.Ping(waitCtx)
		if err == nil {
			if attempt > 1 {
				logger.Infow("admin server ready", "attempts", attempt)
			}
			return nil
		}
		lastErr = err
		logger.Debugw("admin server not ready", "attempt", attempt, "error", err)

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("admin server not ready after %s: %w", timeout, lastErr)
		case <-ticker.C:
		}
	}
}
