// Package retry holds the retry policies used across the miner. Bootstrap
// paths fail fast with a bounded policy while steady-state paths retry
// indefinitely; both share the same executor so the difference stays in
// configuration rather than duplicated loops.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/whonion/scavenger-miner/logging"
)

// ErrAttemptsExhausted is returned by Do when a bounded policy runs out of
// attempts. The last underlying error is joined to it.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy describes how a failing operation is re-executed.
// MaxAttempts == 0 means retry indefinitely.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Unbounded retries every Interval until the operation succeeds or the
// context is canceled.
func Unbounded(interval time.Duration) Policy {
	return Policy{Interval: interval}
}

// Bounded gives up after maxAttempts.
func Bounded(maxAttempts int, interval time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, Interval: interval}
}

// Do executes fn until it succeeds, the policy is exhausted, or ctx is
// canceled. Failures are logged with the attempt number.
func (p Policy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 1; p.MaxAttempts == 0 || attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("operation failed, will retry",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("interval", p.Interval),
			zap.Error(lastErr),
		)

		if p.MaxAttempts != 0 && attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Interval):
		}
	}
	return errors.Join(ErrAttemptsExhausted, lastErr)
}
