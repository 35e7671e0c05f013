// Package fx holds currency conversion rates and a cached refresher.
package fx

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"trading-journal/internal/cache"
	"trading-journal/internal/errors"
)

// RateTable holds conversion rates from the account base currency to other
// currencies: rate is "units of currency per one unit of base".
type RateTable struct {
	Base  string
	Rates map[string]float64
}

// NewRateTable returns a table for base with the given rates. The base
// currency itself always converts at 1.
func NewRateTable(base string, rates map[string]float64) *RateTable {
	if rates == nil {
		rates = make(map[string]float64)
	}
	return &RateTable{Base: strings.ToUpper(base), Rates: rates}
}

// Rate returns the base→currency rate, or 0 if unknown.
func (r *RateTable) Rate(currency string) float64 {
	if r == nil {
		return 0
	}
	currency = strings.ToUpper(currency)
	if currency == r.Base {
		return 1
	}
	rate := r.Rates[currency]
	if !isFinite(rate) || rate <= 0 {
		return 0
	}
	return rate
}

// ToBase converts an amount in currency into the base currency. Returns 0
// when the rate is unknown rather than propagating NaN into stored state.
func (r *RateTable) ToBase(amount float64, currency string) float64 {
	rate := r.Rate(currency)
	if rate == 0 {
		return 0
	}
	return amount / rate
}

// FromBase converts a base-currency amount into currency.
func (r *RateTable) FromBase(amount float64, currency string) float64 {
	rate := r.Rate(currency)
	if rate == 0 {
		return 0
	}
	return amount * rate
}

// Convert converts an amount between two arbitrary currencies via the base.
func (r *RateTable) Convert(amount float64, from, to string) float64 {
	if strings.EqualFold(from, to) {
		return amount
	}
	return r.FromBase(r.ToBase(amount, from), to)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Source fetches fresh rates for a base currency from an external provider.
type Source interface {
	Fetch(ctx context.Context, base string) (map[string]float64, error)
}

// Service serves rate tables, refreshing from the source when the cached
// table is older than the TTL. The last good table is kept as a fallback so
// a failed refresh never leaves callers without rates.
type Service struct {
	base   string
	source Source
	ttl    time.Duration
	cache  *cache.TTL[*RateTable]

	mu       sync.Mutex
	lastGood *RateTable
}

// NewService creates a rate service for the given base currency.
func NewService(base string, source Source, ttl time.Duration, clock cache.Clock) *Service {
	return &Service{
		base:   strings.ToUpper(base),
		source: source,
		ttl:    ttl,
		cache:  cache.NewTTL[*RateTable](clock),
	}
}

// Rates returns a current rate table, hitting the source only when the
// cached table has expired.
func (s *Service) Rates(ctx context.Context) (*RateTable, error) {
	if table, ok := s.cache.Get(s.base); ok {
		return table, nil
	}

	rates, err := s.source.Fetch(ctx, s.base)
	if err != nil {
		s.mu.Lock()
		fallback := s.lastGood
		s.mu.Unlock()
		if fallback != nil {
			return fallback, nil
		}
		return nil, errors.Wrap(err, "fetching fx rates")
	}

	table := NewRateTable(s.base, rates)
	s.cache.Set(s.base, table, s.ttl)
	s.mu.Lock()
	s.lastGood = table
	s.mu.Unlock()
	return table, nil
}
