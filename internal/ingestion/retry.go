package ingestion

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 15
	DefaultPollDelay   = 2000 * time.Millisecond
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy is a bounded poll: at most MaxAttempts sequential queries with a fixed Delay
// between them, stopping as soon as Done accepts a value.
type RetryPolicy[T any] struct {
	MaxAttempts int
	Delay       time.Duration
	Done        func(T) bool
	Sleep       SleepFunc
	OnError     func(attempt int, err error)
}

type PollResult[T any] struct {
	Value     T
	Attempts  int
	Satisfied bool
}

// Poll runs query until Done is satisfied or attempts run out. Query errors are swallowed and
// count as an unsatisfied attempt. The only error returned is a context error.
func (p RetryPolicy[T]) Poll(
	ctx context.Context,
	query func(ctx context.Context, attempt int) (T, error),
) (PollResult[T], error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var result PollResult[T]
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		value, err := query(ctx, attempt)
		result.Attempts = attempt

		if err != nil {
			if p.OnError != nil {
				p.OnError(attempt, err)
			}
		} else {
			result.Value = value
			if p.Done == nil || p.Done(value) {
				result.Satisfied = true
				return result, nil
			}
		}

		if attempt < maxAttempts {
			if err := sleep(ctx, p.Delay); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}
