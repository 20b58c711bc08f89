// Package retry wraps cenkalti/backoff with the reconnect policy used by the
// symbol orchestrators.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy is an exponential backoff schedule. MaxAttempts == 0 disables
// retrying: the operation runs exactly once.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// Enabled reports whether the policy retries at all.
func (p Policy) Enabled() bool { return p.MaxAttempts > 0 }

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 1 {
		b.Multiplier = p.Multiplier
	}
	return b
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return backoff.Permanent(err) }

// Do runs op until it succeeds, returns a Permanent error, ctx ends, or
// MaxAttempts tries have been made.
func Do(ctx context.Context, p Policy, logger *slog.Logger, op func(ctx context.Context) error) error {
	if !p.Enabled() {
		return op(ctx)
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, op(ctx)
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("retrying after failure",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", p.MaxAttempts),
				slog.Duration("next", next),
				slog.String("error", err.Error()),
			)
		}),
	)
	return err
}
