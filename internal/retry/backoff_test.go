package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func newTestRetryer(maxAttempts int) *Retryer {
	r := NewRetryer(Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2,
		Retryable:    func(err error) bool { return errors.Is(err, errTransient) },
	}, zap.NewNop())
	r.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return r
}

func TestRetryer_SucceedsAfterTransientFailures(t *testing.T) {
	r := newTestRetryer(3)
	calls := 0
	err := r.Do(context.Background(), "poll", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryer_StopsOnPermanentError(t *testing.T) {
	r := newTestRetryer(5)
	calls := 0
	err := r.Do(context.Background(), "submit", func(ctx context.Context) error {
		calls++
		return errPermanent
	})
	assert.Same(t, errPermanent, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_ExhaustedKeepsLastError(t *testing.T) {
	r := newTestRetryer(3)
	calls := 0
	err := r.Do(context.Background(), "poll", func(ctx context.Context) error {
		calls++
		return errTransient
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestRetryer_CancelledContextStopsRetrying(t *testing.T) {
	r := newTestRetryer(5)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, "poll", func(ctx context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryer_DelayBounds(t *testing.T) {
	r := NewRetryer(Policy{
		MaxAttempts:  6,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Jitter:       true,
	}, nil)

	for n := 1; n <= 10; n++ {
		d := r.Delay(n)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestNewRetryer_NormalizesPolicy(t *testing.T) {
	r := NewRetryer(Policy{}, nil)
	p := r.Policy()
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.InitialDelay)
	assert.Equal(t, 2.0, p.Multiplier)
}
