package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(n int) Config {
	return Config{MaxAttempts: n, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 5 * time.Millisecond}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	}, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetryAndSuccess(t *testing.T) {
	attempts := 0
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary")
		}
		return nil
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	expected := errors.New("persistent")
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return expected
	}, fastConfig(3))
	assert.Same(t, expected, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_NotRetryable(t *testing.T) {
	permanent := errors.New("bad input")
	cfg := fastConfig(5)
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return permanent
	}, cfg)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 10, InitialDelay: 20 * time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second}

	attempts := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, func(ctx context.Context) error {
		attempts++
		return errors.New("fail")
	}, cfg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("x")
	}, Config{})
	assert.Equal(t, 1, attempts)
}

func TestBackoff(t *testing.T) {
	cfg := Config{InitialDelay: 10 * time.Millisecond, BackoffFactor: 2, MaxDelay: 50 * time.Millisecond}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond},
		{9, 50 * time.Millisecond},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Backoff(cfg, c.attempt), "第 %d 次", c.attempt)
	}
}
