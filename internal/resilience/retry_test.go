package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		ShouldRetry:    func(error) bool { return true },
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetryConfig(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return eris.New("boom")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	retries := 0
	cfg := fastRetryConfig(3)
	cfg.OnRetry = func(attempt int, err error) { retries++ }

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return eris.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	// Sleeps happen between attempts, not after the last one.
	assert.Equal(t, 2, retries)
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond}

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return eris.New("schema validation failed")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, fastRetryConfig(10), func(ctx context.Context) error {
		calls++
		cancel()
		return eris.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_PreservesValue(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", eris.New("boom")
		}
		return "result", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "result", val)
}

func TestBackoffDelay_DoublesAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
	}.withDefaults()
	cfg.JitterFraction = 0

	assert.Equal(t, 100*time.Millisecond, backoffDelay(0, cfg))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(1, cfg))
	assert.Equal(t, 300*time.Millisecond, backoffDelay(2, cfg)) // capped
	assert.Equal(t, 300*time.Millisecond, backoffDelay(5, cfg))
}
