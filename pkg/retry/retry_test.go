package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visualscript/errors"
)

func fast(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fast(3), func() error {
		attempts++
		if attempts < 3 {
			return stderrors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	sentinel := stderrors.New("still down")
	attempts := 0
	err := Do(context.Background(), fast(4), func() error {
		attempts++
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "failed after 4 attempts")
	assert.Equal(t, 4, attempts)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	cases := map[string]error{
		"marked":  NonRetryable(stderrors.New("bad request")),
		"invalid": errors.WrapInvalid(stderrors.New("bad input"), "test", "op", "parse"),
		"fatal":   errors.WrapFatal(stderrors.New("no host"), "test", "op", "setup"),
	}
	for name, failure := range cases {
		t.Run(name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fast(5), func() error {
				attempts++
				return failure
			})
			assert.Same(t, failure, err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fast(2), func() error {
		attempts++
		return errors.WrapTransient(errors.ErrVersionConflict, "test", "op", "update")
	})
	assert.ErrorIs(t, err, errors.ErrVersionConflict)
	assert.Equal(t, 2, attempts)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Second}
	cfg.OnRetry = func(int, time.Duration, error) { cancel() }

	start := time.Now()
	err := Do(ctx, cfg, func() error { return stderrors.New("flaky") })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDo_OnRetryReportsBackoff(t *testing.T) {
	var delays []time.Duration
	cfg := fast(5)
	cfg.OnRetry = func(attempt int, delay time.Duration, _ error) { delays = append(delays, delay) }

	_ = Do(context.Background(), cfg, func() error { return stderrors.New("flaky") })
	assert.Equal(t, []time.Duration{
		time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond,
	}, delays)
}

func TestDo_Jitter(t *testing.T) {
	cfg := Config{MaxAttempts: 2, InitialDelay: 8 * time.Millisecond, MaxDelay: 8 * time.Millisecond, AddJitter: true}
	cfg.OnRetry = func(_ int, delay time.Duration, _ error) {
		assert.GreaterOrEqual(t, delay, 8*time.Millisecond)
		assert.Less(t, delay, 10*time.Millisecond)
	}
	_ = Do(context.Background(), cfg, func() error { return stderrors.New("flaky") })
}

func TestDo_InvalidConfig(t *testing.T) {
	for name, cfg := range map[string]Config{
		"negative delay":      {InitialDelay: -1},
		"negative multiplier": {Multiplier: -2},
		"max below initial":   {InitialDelay: time.Second, MaxDelay: time.Millisecond},
	} {
		t.Run(name, func(t *testing.T) {
			called := false
			err := Do(context.Background(), cfg, func() error { called = true; return nil })
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.False(t, called)
		})
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), Config{}, func() error { attempts++; return stderrors.New("x") })
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	v, err := DoWithResult(context.Background(), fast(3), func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", stderrors.New("flaky")
		}
		return "ready", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ready", v)
}

func TestPresets(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), Quick(), Persistent()} {
		assert.Positive(t, cfg.MaxAttempts)
		assert.LessOrEqual(t, cfg.InitialDelay, cfg.MaxDelay)
	}
}
