package marketdata

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/internal/cache"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "marketdata.db"), 15*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDailyLowRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutDailyLow(ctx, "AAPL_US_EQ", "2024-06-01", 148.2))

	low, err := c.DailyLow(ctx, "AAPL_US_EQ", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, 148.2, low)
}

func TestDailyLowKeepsLowerValue(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutDailyLow(ctx, "AAPL_US_EQ", "2024-06-01", 148.2))
	require.NoError(t, c.PutDailyLow(ctx, "AAPL_US_EQ", "2024-06-01", 147.0))
	require.NoError(t, c.PutDailyLow(ctx, "AAPL_US_EQ", "2024-06-01", 149.9))

	low, err := c.DailyLow(ctx, "AAPL_US_EQ", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, 147.0, low)
}

func TestDailyLowMissingDay(t *testing.T) {
	c := newTestCache(t)

	_, err := c.DailyLow(context.Background(), "AAPL_US_EQ", "2024-06-02")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDailyLowRejectsNonPositive(t *testing.T) {
	c := newTestCache(t)

	assert.Error(t, c.PutDailyLow(context.Background(), "AAPL_US_EQ", "2024-06-01", 0))
	assert.Error(t, c.PutDailyLow(context.Background(), "AAPL_US_EQ", "2024-06-01", -3))
}

func TestQuoteExpiresAfterTTL(t *testing.T) {
	c := newTestCache(t)
	clk := cache.NewFakeClock(time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))
	c.WithClock(clk)
	ctx := context.Background()

	require.NoError(t, c.PutQuote(ctx, "AAPL_US_EQ", 155.5))

	q, ok, err := c.Quote(ctx, "AAPL_US_EQ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 155.5, q.Price)

	clk.Advance(16 * time.Second)
	_, ok, err = c.Quote(ctx, "AAPL_US_EQ")
	require.NoError(t, err)
	assert.False(t, ok, "a quote past its TTL is not served")
}

func TestQuoteSurvivesMemoryLayerLoss(t *testing.T) {
	c := newTestCache(t)
	clk := cache.NewFakeClock(time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))
	c.WithClock(clk)
	ctx := context.Background()

	require.NoError(t, c.PutQuote(ctx, "AAPL_US_EQ", 155.5))

	// Forget the memory layer: the database copy still answers.
	c.quotes = cache.NewTTL[Quote](clk)

	q, ok, err := c.Quote(ctx, "AAPL_US_EQ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 155.5, q.Price)
}

func TestQuoteUnknownSymbol(t *testing.T) {
	c := newTestCache(t)

	_, ok, err := c.Quote(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.False(t, ok)
}
