package ai

import (
	"context"
	"strings"
	"time"
)

// IsRateLimited reports whether an error looks like a rate-limit rejection
// from an OpenAI-compatible service. Providers surface these as HTTP 429
// responses whose text ends up in the error message.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// RetryRateLimited runs fn, retrying with exponential backoff only when the
// error is a rate-limit rejection. Any other error is returned immediately.
// maxRetries counts retries after the first attempt; baseDelay doubles on
// each retry. The context cancels the backoff sleep.
func RetryRateLimited(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsRateLimited(err) || attempt >= maxRetries {
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
	}
}
