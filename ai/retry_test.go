package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status code", errors.New("API returned unexpected status code: 429"), true},
		{"rate limit text", errors.New("Rate limit exceeded, retry later"), true},
		{"too many requests", errors.New("Too Many Requests"), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimited(tt.err))
		})
	}
}

func TestRetryRateLimited(t *testing.T) {
	ctx := context.Background()

	t.Run("success on first attempt", func(t *testing.T) {
		calls := 0
		err := RetryRateLimited(ctx, 3, time.Millisecond, func() error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("non-rate-limit error returns immediately", func(t *testing.T) {
		calls := 0
		wantErr := errors.New("connection refused")
		err := RetryRateLimited(ctx, 3, time.Millisecond, func() error {
			calls++
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)
		assert.Equal(t, 1, calls)
	})

	t.Run("rate limit errors are retried", func(t *testing.T) {
		calls := 0
		err := RetryRateLimited(ctx, 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errors.New("429 too many requests")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := RetryRateLimited(ctx, 2, time.Millisecond, func() error {
			calls++
			return errors.New("rate limit exceeded")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("context cancellation stops backoff", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()
		err := RetryRateLimited(cancelCtx, 3, time.Minute, func() error {
			return errors.New("429")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
