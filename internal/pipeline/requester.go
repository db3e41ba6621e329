package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SamoM225/the-bible-translations/internal/service/ai"
	"github.com/SamoM225/the-bible-translations/pkg/errors"
)

// Engine is the black-box translation service. Malformed payloads come back
// as an empty Output with no error; transport failures are RateLimitError or
// EngineError.
type Engine interface {
	Translate(ctx context.Context, systemPrompt, instruction string) (ai.Output, error)
}

// RetryPolicy makes the retry discipline explicit instead of inlining sleep
// and loop state. Rate-limit waits do not consume a generic attempt: a
// request may be throttled repeatedly and still succeed, bounded only by
// context cancellation.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	RateLimitDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		BaseDelay:      2 * time.Second,
		RateLimitDelay: 25 * time.Second,
	}
}

// SleepFunc sleeps for d or returns early with ctx.Err() on cancellation.
// Tests inject their own to avoid wall-clock waits.
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

// Requester issues one chunked translation request under the retry policy.
type Requester struct {
	engine Engine
	policy RetryPolicy
	sleep  SleepFunc
	logger *zap.Logger
}

func NewRequester(engine Engine, policy RetryPolicy, logger *zap.Logger) *Requester {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	return &Requester{
		engine: engine,
		policy: policy,
		sleep:  SleepContext,
		logger: logger,
	}
}

// WithSleep replaces the sleep function. Test hook.
func (r *Requester) WithSleep(sleep SleepFunc) *Requester {
	r.sleep = sleep
	return r
}

// Request retries rate limits indefinitely (cooldown RateLimitDelay) and
// transient failures up to MaxAttempts (backoff BaseDelay). On exhaustion it
// returns the last error; the caller downgrades that to a unit warning and
// moves on. Context cancellation propagates immediately so a suspended job
// never burns its budget inside a sleep.
func (r *Requester) Request(ctx context.Context, systemPrompt, instruction string) (ai.Output, error) {
	var lastErr error

	for attempt := 0; attempt < r.policy.MaxAttempts; {
		if err := ctx.Err(); err != nil {
			return ai.Output{}, err
		}

		out, err := r.engine.Translate(ctx, systemPrompt, instruction)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if errors.IsRateLimit(err) {
			r.logger.Warn("Engine rate limited, cooling down",
				zap.Duration("cooldown", r.policy.RateLimitDelay),
			)
			if sleepErr := r.sleep(ctx, r.policy.RateLimitDelay); sleepErr != nil {
				return ai.Output{}, sleepErr
			}
			continue
		}

		attempt++
		if attempt >= r.policy.MaxAttempts {
			break
		}

		r.logger.Warn("Engine request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Error(err),
		)
		if sleepErr := r.sleep(ctx, r.policy.BaseDelay); sleepErr != nil {
			return ai.Output{}, sleepErr
		}
	}

	return ai.Output{}, lastErr
}
