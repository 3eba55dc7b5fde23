package analysis

import (
	"context"
	"errors"
	"math"
	"time"

	"comment-insights/shared/ai"
	"comment-insights/shared/config"

	"go.uber.org/zap"
)

// RetryPolicy controls retries of a single external analysis call.
type RetryPolicy struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// PolicyFromConfig builds the batch retry policy from the retry section of the config.
func PolicyFromConfig(rc config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  rc.MaxRetries,
		InitialWait: rc.InitialWait,
		MaxWait:     rc.MaxWait,
		Multiplier:  2.0,
	}
}

func (p RetryPolicy) wait(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	wait := time.Duration(float64(p.InitialWait) * math.Pow(multiplier, float64(attempt)))
	if p.MaxWait > 0 && wait > p.MaxWait {
		wait = p.MaxWait
	}
	return wait
}

// Retry calls fn up to MaxRetries+1 times with exponential backoff. Fatal errors and
// context cancellation are returned immediately.
func Retry[T any](ctx context.Context, p RetryPolicy, logger *zap.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}

		if attempt < p.MaxRetries {
			wait := p.wait(attempt)
			logger.Debug("Retrying analysis call",
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
				zap.Error(err))

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			}
		}
	}
	return zero, lastErr
}

func isRetryable(err error) bool {
	if errors.Is(err, ai.ErrFatal) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
