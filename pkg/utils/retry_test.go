package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 1.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	boom := errors.New("down")
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	fatal := errors.New("bad credentials")
	cfg := fastRetryConfig()
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, fatal) }

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts, "a non-retryable error fails immediately")
}

func TestRetryWithResultReturnsValue(t *testing.T) {
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, fastRetryConfig(), func() error {
		attempts++
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   float64
		currency string
		want     string
	}{
		{1234567.891, "GBP", "£1,234,567.89"},
		{-42.5, "USD", "-$42.50"},
		{999.999, "EUR", "€1,000.00"},
		{1500, "SEK", "SEK 1,500.00"},
		{0, "", "0.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMoney(tt.amount, tt.currency))
	}
}

func TestFormatRMultiple(t *testing.T) {
	assert.Equal(t, "-", FormatRMultiple(nil))
	r := 1.5
	assert.Equal(t, "+1.50R", FormatRMultiple(&r))
	r = -0.5
	assert.Equal(t, "-0.50R", FormatRMultiple(&r))
}
