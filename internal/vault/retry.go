package vault

import (
	"context"
	"errors"
	"time"
)

const maxRetryDelay = 10 * time.Second

// retry runs fn until it succeeds, attempts run out, or ctx ends. The delay
// doubles after every failure, capped at maxRetryDelay. onFailure sees every
// failed attempt, numbered from 1.
func retry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error, onFailure func(attempt int, err error)) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if attempt > maxRetries || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}
