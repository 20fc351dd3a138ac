// Package retry provides bounded retry with exponential backoff for
// transient failures against the export service and collaborators.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/nikhilbadyal/notion-backup/internal/errors"
)

// Config for retry behavior. Zero values use defaults.
type Config struct {
	MaxAttempts int           // default: 3
	BaseDelay   time.Duration // default: 5s
	MaxDelay    time.Duration // default: 60s
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 5 * time.Second
	defaultMaxDelay    = 60 * time.Second
)

func (c Config) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return defaultMaxAttempts
}

func (c Config) baseDelay() time.Duration {
	if c.BaseDelay > 0 {
		return c.BaseDelay
	}
	return defaultBaseDelay
}

func (c Config) maxDelay() time.Duration {
	if c.MaxDelay > 0 {
		return c.MaxDelay
	}
	return defaultMaxDelay
}

// Delay calculates the exponential backoff delay for a given attempt.
// Attempt 1 returns the base delay, attempt 2 returns base*2, etc.,
// capped at the configured maximum.
func (c Config) Delay(attempt int) time.Duration {
	base := c.baseDelay()
	maxDelay := c.maxDelay()

	if attempt < 1 {
		return base
	}
	d := float64(base) * math.Pow(2.0, float64(attempt-1))
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	return time.Duration(d)
}

// Do runs fn up to cfg.MaxAttempts times, sleeping with exponential backoff
// between attempts. Only transient errors are retried; any other error is
// returned immediately. Sleeps respect ctx cancellation.
//
// This governs retrying a single call within one run. Resuming work across
// process invocations is the recovery store's job, not Do's.
func Do(ctx context.Context, cfg Config, logger *slog.Logger, op string, fn func() error) error {
	if logger == nil {
		logger = slog.Default()
	}

	attempts := cfg.maxAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := cfg.Delay(attempt)
		logger.Warn("transient failure, retrying",
			"op", op,
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
