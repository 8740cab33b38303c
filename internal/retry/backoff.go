package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy configures bounded exponential backoff.
type Policy struct {
	MaxAttempts  int // total attempts including the first, at least 1
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	// Retryable decides whether an error is worth another attempt. Nil retries
	// every error.
	Retryable func(error) bool
	OnRetry   func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy suits provider REST calls: three attempts, 500ms doubling up to 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer runs a function until it succeeds, fails permanently or runs out of attempts.
type Retryer struct {
	policy Policy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRetryer(policy Policy, logger *zap.Logger) *Retryer {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 500 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 5 * time.Second
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
}

func (r *Retryer) Policy() Policy {
	return r.policy
}

// Do runs fn. Non-retryable errors are returned unchanged; exhausted retries are
// wrapped so errors.As still reaches the last error.
func (r *Retryer) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.Delay(attempt - 1)
			r.logger.Debug("retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}
			if err := r.sleep(ctx, delay); err != nil {
				return fmt.Errorf("%s: retry cancelled: %w: %w", op, err, lastErr)
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded", zap.String("op", op), zap.Int("attempt", attempt))
			}
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if r.policy.Retryable != nil && !r.policy.Retryable(lastErr) {
			return lastErr
		}
	}

	if r.policy.MaxAttempts == 1 {
		return lastErr
	}
	r.logger.Warn("retries exhausted",
		zap.String("op", op),
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Error(lastErr),
	)
	return fmt.Errorf("%s failed after %d attempts: %w", op, r.policy.MaxAttempts, lastErr)
}

// Delay is the wait before retry number n (1-based): initial * multiplier^(n-1),
// capped at MaxDelay, with +/-25% jitter when enabled, never below InitialDelay.
func (r *Retryer) Delay(n int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(n-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
