// Package retryexec wraps single operations with bounded exponential-backoff
// retries for transient failures.
package retryexec

import (
	"context"
	"log/slog"
	"time"

	"github.com/eabugauch/zenithpay-escrow/internal/domain"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 2.0
)

// Executor retries an operation on retryable errors with exponential
// backoff. The final attempt's error is propagated unmodified so callers
// can still inspect its retryable flag.
type Executor struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	logger       *slog.Logger

	// sleep is replaceable in tests to observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor with the default backoff policy.
func New(logger *slog.Logger) *Executor {
	return NewWithPolicy(DefaultMaxAttempts, DefaultInitialDelay, DefaultMaxDelay, DefaultMultiplier, logger)
}

// NewWithPolicy creates an executor with an explicit backoff policy.
func NewWithPolicy(maxAttempts int, initialDelay, maxDelay time.Duration, multiplier float64, logger *slog.Logger) *Executor {
	return &Executor{
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		multiplier:   multiplier,
		logger:       logger,
		sleep:        sleepCtx,
	}
}

// Do runs fn up to maxAttempts times. Only errors marked retryable are
// retried; a cancelled context aborts remaining attempts immediately.
func (e *Executor) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	delay := e.initialDelay
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) || attempt >= e.maxAttempts {
			return err
		}

		e.logger.Warn("transient failure, retrying",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.maxAttempts,
			"delay", delay,
			"error", err,
		)

		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return &domain.ProcessingError{
				Code:    "operation_cancelled",
				Message: "retry aborted by caller",
				Err:     sleepErr,
			}
		}

		delay = time.Duration(float64(delay) * e.multiplier)
		if delay > e.maxDelay {
			delay = e.maxDelay
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
