package backoff

import (
	"context"
	"time"
)

// Retry calls fn until it succeeds, returns an error retryable rejects, or
// maxRetries retries have been spent. The last error is returned.
// A nil retryable retries every error.
func Retry(ctx context.Context, s Strategy, maxRetries int, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if s == nil {
		s = Default()
	}

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if werr := Wait(ctx, s.NextInterval(attempt)); werr != nil {
				return err
			}
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
	}
	return err
}

// Wait sleeps for d or until ctx is done, returning ctx.Err() in the latter case.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
