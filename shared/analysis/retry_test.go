package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"comment-insights/shared/ai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	attempts := 0
	got, err := Retry(context.Background(), fastRetry(), zap.NewNop(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errUnavailable
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUp(t *testing.T) {
	attempts := 0
	_, err := Retry(context.Background(), fastRetry(), zap.NewNop(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, fmt.Errorf("%w: bad json", ai.ErrMalformedResponse)
	})

	assert.ErrorIs(t, err, ai.ErrMalformedResponse)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnFatal(t *testing.T) {
	attempts := 0
	_, err := Retry(context.Background(), fastRetry(), zap.NewNop(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, fmt.Errorf("%w: forbidden", ai.ErrFatal)
	})

	assert.ErrorIs(t, err, ai.ErrFatal)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 5, InitialWait: time.Hour, MaxWait: time.Hour, Multiplier: 2}

	attempts := 0
	_, err := Retry(ctx, policy, zap.NewNop(), func(ctx context.Context) (int, error) {
		attempts++
		cancel()
		return 0, errors.New("timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyWait(t *testing.T) {
	p := RetryPolicy{InitialWait: time.Second, MaxWait: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, p.wait(0))
	assert.Equal(t, 4*time.Second, p.wait(2))
	assert.Equal(t, 5*time.Second, p.wait(3))
}
