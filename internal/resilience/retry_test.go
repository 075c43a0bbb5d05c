package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RecoversFromTransientFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("embedding service overloaded"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("payer endpoint unavailable"), 502)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payer endpoint unavailable")
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return errors.New("letter failed schema validation")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CanceledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, fastConfig(), func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("connection dropped"), 0)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	retryMe := errors.New("duplicate key")
	cfg := fastConfig()
	cfg.ShouldRetry = func(err error) bool {
		return errors.Is(err, retryMe)
	}

	calls := 0
	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls == 1 {
			return retryMe
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_OnRetryFiresBeforeEachSleep(t *testing.T) {
	var attempts []int
	cfg := fastConfig()
	cfg.OnRetry = func(attempt int, err error) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), cfg, func(context.Context) error {
		return NewTransientError(errors.New("still failing"), 500)
	})
	// Three attempts means two sleeps between them.
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoVal_ReturnsValueFromWinningAttempt(t *testing.T) {
	calls := 0
	score, err := DoVal(context.Background(), fastConfig(), func(context.Context) (float64, error) {
		calls++
		if calls == 1 {
			return 0, NewTransientError(errors.New("model timeout"), 408)
		}
		return 0.87, nil
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.87, score, 0.0001)
	assert.Equal(t, 2, calls)
}

func TestDoVal_ZeroValueOnFailure(t *testing.T) {
	out, err := DoVal(context.Background(), fastConfig(), func(context.Context) (string, error) {
		return "partial", NewTransientError(errors.New("never succeeds"), 503)
	})
	require.Error(t, err)
	assert.Empty(t, out)
}

func TestDo_ZeroConfigUsesDefaults(t *testing.T) {
	calls := 0
	err := Do(context.Background(), RetryConfig{InitialBackoff: time.Millisecond}, func(context.Context) error {
		calls++
		return errors.New("not transient")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffFor_Doubles(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Minute,
		Multiplier:     2.0,
	}
	assert.Equal(t, 100*time.Millisecond, backoffFor(0, cfg))
	assert.Equal(t, 200*time.Millisecond, backoffFor(1, cfg))
	assert.Equal(t, 400*time.Millisecond, backoffFor(2, cfg))
}

func TestBackoffFor_RespectsCap(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
		Multiplier:     4.0,
	}
	assert.Equal(t, 3*time.Second, backoffFor(5, cfg))
}

func TestBackoffFor_JitterStaysBounded(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
	for i := 0; i < 50; i++ {
		d := backoffFor(0, cfg)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestRetryLogger_DoesNotPanic(t *testing.T) {
	logFn := RetryLogger("anthropic", "create_batch")
	assert.NotPanics(t, func() {
		logFn(2, errors.New("rate limited"))
	})
}
