package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts uint) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []uint
	cfg := fastConfig(5)
	cfg.OnRetry = func(n uint, err error) { retried = append(retried, n) }

	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []uint{1, 2}, retried)
}

func TestDo_ReturnsLastError(t *testing.T) {
	calls := 0
	var retried []uint
	cfg := fastConfig(3)
	cfg.OnRetry = func(n uint, err error) { retried = append(retried, n) }

	err := Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("login failed")
	})

	assert.EqualError(t, err, "login failed")
	assert.Equal(t, 3, calls)
	assert.Equal(t, []uint{1, 2}, retried)
}

func TestDo_SingleAttemptNeverReportsRetry(t *testing.T) {
	cfg := fastConfig(1)
	cfg.OnRetry = func(uint, error) { t.Error("OnRetry called without a retry") }

	err := Do(context.Background(), cfg, func() error {
		return errors.New("connection refused")
	})

	assert.EqualError(t, err, "connection refused")
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	v, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("timeout")
		}
		return "connected", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "connected", v)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, uint(5), cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialDelay)
}
