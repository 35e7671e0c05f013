package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLExpiry(t *testing.T) {
	clock := NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	c := NewTTL[float64](clock)

	c.Set("GBPUSD", 1.27, 6*time.Hour)

	v, ok := c.Get("GBPUSD")
	assert.True(t, ok)
	assert.Equal(t, 1.27, v)

	clock.Advance(5 * time.Hour)
	_, ok = c.Get("GBPUSD")
	assert.True(t, ok, "entry should survive inside the TTL window")

	clock.Advance(2 * time.Hour)
	_, ok = c.Get("GBPUSD")
	assert.False(t, ok, "entry should expire after the TTL window")
}

func TestTTLZeroNeverExpires(t *testing.T) {
	clock := NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	c := NewTTL[float64](clock)

	c.Set("AAPL:2024-05-31:low", 188.2, 0)
	clock.Advance(24 * 365 * time.Hour)

	v, ok := c.Get("AAPL:2024-05-31:low")
	assert.True(t, ok)
	assert.Equal(t, 188.2, v)
}

func TestTTLDeleteAndLen(t *testing.T) {
	c := NewTTL[string](nil)
	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)
	assert.Equal(t, 2, c.Len())

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}
