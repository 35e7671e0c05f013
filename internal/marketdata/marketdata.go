// Package marketdata caches market observations in SQLite: live quotes with
// a short TTL, and per-day low prices which never change once the day is
// over and so are kept permanently. The daily lows feed stop seeding for
// broker positions that arrive without an attached stop order.
package marketdata

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trading-journal/internal/cache"
	"trading-journal/internal/errors"
)

// Quote is a cached live price.
type Quote struct {
	Symbol string
	Price  float64
	AsOf   time.Time
}

// Cache is the SQLite-backed market data cache. Quotes additionally sit in
// an in-memory TTL layer so repeated lookups inside one sync run never hit
// the database.
type Cache struct {
	db       *sql.DB
	quotes   *cache.TTL[Quote]
	quoteTTL time.Duration
	clock    cache.Clock
}

// Open creates or opens the cache database at dbPath.
func Open(dbPath string, quoteTTL time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open market data database")
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	c := &Cache{
		db:       db,
		quotes:   cache.NewTTL[Quote](cache.SystemClock{}),
		quoteTTL: quoteTTL,
		clock:    cache.SystemClock{},
	}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize market data schema")
	}
	return c, nil
}

func (c *Cache) initSchema() error {
	schema := `
	-- Daily low prices. A finished day's low is a permanent fact.
	CREATE TABLE IF NOT EXISTS daily_lows (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		low REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (symbol, date)
	);

	-- Last seen quotes, validity bounded by fetched_at + TTL.
	CREATE TABLE IF NOT EXISTS quotes (
		symbol TEXT PRIMARY KEY,
		price REAL NOT NULL,
		fetched_at DATETIME NOT NULL
	);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// PutDailyLow records the low price for a symbol on an ISO date. Re-putting
// the same day keeps the lower of the two values.
func (c *Cache) PutDailyLow(ctx context.Context, symbol, date string, low float64) error {
	if low <= 0 {
		return errors.NewValidationError("low", low, "must be a positive number")
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO daily_lows (symbol, date, low) VALUES (?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET low = MIN(low, excluded.low)`,
		symbol, date, low)
	if err != nil {
		return errors.Wrapf(err, "failed to store daily low for %s %s", symbol, date)
	}
	return nil
}

// DailyLow returns the recorded low for a symbol on an ISO date.
// sql.ErrNoRows surfaces when the day was never recorded.
func (c *Cache) DailyLow(ctx context.Context, symbol, date string) (float64, error) {
	var low float64
	err := c.db.QueryRowContext(ctx,
		`SELECT low FROM daily_lows WHERE symbol = ? AND date = ?`,
		symbol, date).Scan(&low)
	if err != nil {
		return 0, err
	}
	return low, nil
}

// PutQuote stores a live quote in both the memory layer and the database.
func (c *Cache) PutQuote(ctx context.Context, symbol string, price float64) error {
	if price <= 0 {
		return errors.NewValidationError("price", price, "must be a positive number")
	}
	q := Quote{Symbol: symbol, Price: price, AsOf: c.clock.Now()}
	c.quotes.Set(symbol, q, c.quoteTTL)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO quotes (symbol, price, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET price = excluded.price, fetched_at = excluded.fetched_at`,
		symbol, price, q.AsOf.UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to store quote for %s", symbol)
	}
	return nil
}

// Quote returns the cached quote for a symbol if it is still within the
// TTL, checking the memory layer first and the database second.
func (c *Cache) Quote(ctx context.Context, symbol string) (Quote, bool, error) {
	if q, ok := c.quotes.Get(symbol); ok {
		return q, true, nil
	}

	var q Quote
	var fetchedAt time.Time
	err := c.db.QueryRowContext(ctx,
		`SELECT symbol, price, fetched_at FROM quotes WHERE symbol = ?`,
		symbol).Scan(&q.Symbol, &q.Price, &fetchedAt)
	if err == sql.ErrNoRows {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, errors.Wrapf(err, "failed to read quote for %s", symbol)
	}
	q.AsOf = fetchedAt
	if c.clock.Now().Sub(fetchedAt) > c.quoteTTL {
		return Quote{}, false, nil
	}
	c.quotes.Set(symbol, q, c.quoteTTL-c.clock.Now().Sub(fetchedAt))
	return q, true, nil
}

// WithClock overrides the cache clock. For tests.
func (c *Cache) WithClock(clk cache.Clock) *Cache {
	c.clock = clk
	c.quotes = cache.NewTTL[Quote](clk)
	return c
}
