package analysis

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/nightwatch-dev/nightwatch/pkg/capability"
)

// sleeper is swapped out in tests so retry delays don't actually block.
var sleeper = func(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// CallWithRetry calls provider.CreateMessage, retrying transient
// failures per §4.4.3: rate limits back off honoring a retry-after
// hint when present, otherwise exponentially (base 15s, cap 120s) with
// 1-5s jitter; a low-credit 400 retries after a flat 1s; connection
// errors back off exponentially with no cap. Up to 5 attempts total.
// Any other failure propagates immediately.
func CallWithRetry(ctx context.Context, log *slog.Logger, provider capability.LLMProvider, req capability.MessageRequest) (capability.MessageResponse, error) {
	const maxAttempts = 5
	const baseDelay = 15 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := provider.CreateMessage(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var rateLimit *capability.RateLimitError
		var creditLow *capability.CreditLowError

		switch {
		case errors.As(err, &rateLimit):
			delay := rateLimitDelay(rateLimit.Info, attempt, baseDelay)
			if log != nil {
				log.Warn("llm rate limited, retrying", "attempt", attempt+1, "delay", delay)
			}
			sleeper(ctx, delay)

		case errors.As(err, &creditLow):
			if log != nil {
				log.Warn("llm credit balance low, retrying in 1s")
			}
			sleeper(ctx, time.Second)

		case isConnectionError(err):
			delay := baseDelay * time.Duration(1<<uint(attempt))
			if log != nil {
				log.Warn("llm connection error, retrying", "attempt", attempt+1, "delay", delay)
			}
			sleeper(ctx, delay)

		default:
			return capability.MessageResponse{}, err
		}

		if ctx.Err() != nil {
			return capability.MessageResponse{}, ctx.Err()
		}
	}
	return capability.MessageResponse{}, lastErr
}

func rateLimitDelay(info capability.RateLimitInfo, attempt int, base time.Duration) time.Duration {
	jitter := time.Duration((1 + rand.Float64()*4) * float64(time.Second))
	if info.RetryAfterSeconds > 0 {
		return time.Duration(info.RetryAfterSeconds)*time.Second + jitter
	}
	delay := base * time.Duration(1<<uint(attempt))
	if delay > 120*time.Second {
		delay = 120 * time.Second
	}
	return delay + jitter
}

// connectionError marks a transient network failure distinct from a
// provider-reported status error. Adapters construct it for dial/IO
// failures that should be retried.
type connectionError struct{ err error }

func (e *connectionError) Error() string { return "llm connection error: " + e.err.Error() }
func (e *connectionError) Unwrap() error { return e.err }

// NewConnectionError wraps err so CallWithRetry treats it as transient.
func NewConnectionError(err error) error { return &connectionError{err: err} }

func isConnectionError(err error) bool {
	var ce *connectionError
	return errors.As(err, &ce)
}
