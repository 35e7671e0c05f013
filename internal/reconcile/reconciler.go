// Package reconcile merges broker snapshots into the trade journal without
// creating duplicates, and keeps current stops synchronized from live
// broker orders.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trading-journal/internal/fx"
	"trading-journal/internal/journal"
	"trading-journal/internal/ledger"
	"trading-journal/internal/mapping"
	"trading-journal/internal/models"
)

// DailyLowSource provides a day's low price for a symbol, used as the stop
// seed when the broker reports a position without an attached stop.
type DailyLowSource interface {
	DailyLow(ctx context.Context, symbol, date string) (float64, error)
}

// Reconciler applies broker snapshots to a user's journal and ledger.
type Reconciler struct {
	resolver *mapping.Resolver
	lows     DailyLowSource
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a reconciler. lows may be nil when no daily-low source is
// available; stop seeding then relies on broker-reported stops alone.
func New(resolver *mapping.Resolver, lows DailyLowSource, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		resolver: resolver,
		lows:     lows,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the reconciler's notion of "today". For tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Result summarizes one reconciliation run.
type Result struct {
	Created     int
	Updated     int
	Closed      int
	StopsSynced int
	StopsStale  int
}

// Run reconciles the snapshot into user state: the position pass first,
// then the stop-order pass, then the ledger pass. Running twice with an
// identical snapshot is a no-op the second time around.
func (r *Reconciler) Run(ctx context.Context, user *models.UserState, snap *models.BrokerSnapshot, rates *fx.RateTable) *Result {
	res := &Result{}
	r.reconcilePositions(ctx, user, snap, rates, res)
	r.reconcileStops(user, snap, res)
	r.reconcileLedger(user, snap, rates)
	return res
}

// matchLevel orders the fallback chain: lower levels are more trustworthy.
const (
	matchExactID = iota
	matchAggregateKey
	matchISIN
	matchName
	matchTicker
	matchLevels
)

func (r *Reconciler) reconcilePositions(ctx context.Context, user *models.UserState, snap *models.BrokerSnapshot, rates *fx.RateTable, res *Result) {
	today := r.now().Format(models.DateLayout)
	matched := make(map[*models.Trade]bool)

	for i := range snap.Positions {
		pos := &snap.Positions[i]
		trade := r.findMatch(user, snap.AccountID, pos, matched)
		if trade == nil {
			trade = r.synthesize(ctx, user, snap, pos)
			user.Trades = append(user.Trades, trade)
			res.Created++
			r.log.Info().Str("symbol", trade.Symbol).Str("source_id", trade.SourceID).Msg("Broker position created as journal trade")
		} else {
			r.update(ctx, user, trade, snap, pos)
			res.Updated++
		}
		refreshUnrealized(trade, rates)
		matched[trade] = true
	}

	// Positions gone from the snapshot are closed, not deleted.
	for _, t := range user.Trades {
		if !t.IsOpen() || t.Source != models.SourceBroker || matched[t] {
			continue
		}
		if !belongsToAccount(t, snap.AccountID) {
			continue
		}
		closePrice := t.LivePrice
		if closePrice <= 0 {
			closePrice = t.Entry
		}
		// Broker close: the broker's portfolio value already reflects the
		// proceeds, so nothing is posted to the ledger here.
		if err := journal.Close(t, closePrice, today, rates, nil); err != nil {
			t.Status = models.TradeClosed
			t.ClosePrice = closePrice
			t.CloseDate = today
			r.log.Warn().Err(err).Str("trade_id", t.ID).Msg("Closed disappeared position without PnL")
		}
		res.Closed++
		r.log.Info().Str("trade_id", t.ID).Str("symbol", t.Symbol).Msg("Broker position disappeared, trade closed")
	}
}

// findMatch searches open broker trades for the position, walking the
// fallback chain level by level. Within a level the oldest trade wins, so
// repeated runs pick the same match even when several trades qualify.
// Trades already claimed by an earlier position in the same run are skipped,
// so a second lot on the same instrument synthesizes its own trade instead
// of overwriting the first lot's.
func (r *Reconciler) findMatch(user *models.UserState, accountID string, pos *models.BrokerPosition, claimed map[*models.Trade]bool) *models.Trade {
	exact := exactKey(accountID, pos)
	agg := aggregateKey(accountID, r.canonicalTicker(user, pos))
	isin := normalizeIdent(pos.ISIN)
	name := normalizeIdent(pos.Name)
	ticker := normalizeIdent(pos.Ticker)

	candidates := openBrokerTrades(user)

	for level := 0; level < matchLevels; level++ {
		for _, t := range candidates {
			if claimed[t] {
				continue
			}
			var hit bool
			switch level {
			case matchExactID:
				hit = t.SourceID == exact
			case matchAggregateKey:
				// Layering: the broker reassigned the lot id but quantity
				// is still aggregated under one symbol.
				hit = t.SourcePositionKey != "" && t.SourcePositionKey == agg
			case matchISIN:
				hit = isin != "" && normalizeIdent(t.SourceISIN) == isin
			case matchName:
				hit = name != "" && normalizeIdent(t.SourceName) == name
			case matchTicker:
				hit = ticker != "" && normalizeIdent(t.SourceTicker) == ticker
			}
			if hit {
				return t
			}
		}
	}
	return nil
}

// update refreshes a matched trade from the broker position. The original
// stop is never overwritten once set; only a stop-less trade gets seeded.
func (r *Reconciler) update(ctx context.Context, user *models.UserState, t *models.Trade, snap *models.BrokerSnapshot, pos *models.BrokerPosition) {
	t.SourceID = exactKey(snap.AccountID, pos)
	t.SourcePositionKey = aggregateKey(snap.AccountID, r.canonicalTicker(user, pos))
	t.SourceTicker = pos.Ticker
	if pos.ISIN != "" {
		t.SourceISIN = pos.ISIN
	}
	if pos.Name != "" {
		t.SourceName = pos.Name
	}

	if pos.AveragePrice > 0 {
		t.Entry = pos.AveragePrice
	}
	t.SizeUnits = abs(pos.Quantity)
	t.Direction = directionOf(pos.Quantity)
	if pos.Currency != "" {
		t.Currency = pos.Currency
	}
	if pos.CurrentPrice > 0 {
		t.LivePrice = pos.CurrentPrice
	}

	if t.Stop == 0 && t.CurrentStop == nil {
		r.seedStop(ctx, t, pos)
	}
}

// synthesize creates a journal trade for a broker position with no match.
// Broker-originated trades carry no pre-trade risk plan: the risk snapshot
// fields stay zero.
func (r *Reconciler) synthesize(ctx context.Context, user *models.UserState, snap *models.BrokerSnapshot, pos *models.BrokerPosition) *models.Trade {
	resolution := r.resolve(user, pos)
	currency := pos.Currency
	if currency == "" {
		currency = snap.RootCurrency
	}
	openDate := r.now().Format(models.DateLayout)
	if !pos.OpenedAt.IsZero() {
		openDate = pos.OpenedAt.Format(models.DateLayout)
	}

	t := &models.Trade{
		ID:                uuid.NewString(),
		Symbol:            resolution.DisplayTicker,
		Currency:          currency,
		SourceID:          exactKey(snap.AccountID, pos),
		SourcePositionKey: aggregateKey(snap.AccountID, r.canonicalTicker(user, pos)),
		SourceTicker:      pos.Ticker,
		SourceISIN:        pos.ISIN,
		SourceName:        pos.Name,
		Entry:             pos.AveragePrice,
		SizeUnits:         abs(pos.Quantity),
		Direction:         directionOf(pos.Quantity),
		Status:            models.TradeOpen,
		OpenDate:          openDate,
		LivePrice:         pos.CurrentPrice,
		Source:            models.SourceBroker,
		CreatedAt:         r.now().UTC(),
	}
	if resolution.DisplayName != "" && t.SourceName == "" {
		t.SourceName = resolution.DisplayName
	}
	r.seedStop(ctx, t, pos)
	journal.Normalizer{BaseCurrency: currency}.Normalize(t)
	return t
}

// seedStop fills a stop-less trade from the broker-reported position stop,
// falling back to the open day's low.
func (r *Reconciler) seedStop(ctx context.Context, t *models.Trade, pos *models.BrokerPosition) {
	seed := pos.StopPrice
	if seed <= 0 && r.lows != nil {
		low, err := r.lows.DailyLow(ctx, pos.Ticker, t.OpenDate)
		if err != nil {
			r.log.Debug().Err(err).Str("symbol", pos.Ticker).Msg("No daily-low stop seed available")
			return
		}
		seed = low
	}
	if seed <= 0 {
		return
	}
	t.Stop = seed
	s := seed
	t.CurrentStop = &s
	t.CurrentStopSource = models.StopBroker
	t.CurrentStopStale = false
}

func (r *Reconciler) resolve(user *models.UserState, pos *models.BrokerPosition) mapping.Resolution {
	userID := ""
	if user != nil {
		userID = user.Username
	}
	return r.resolver.Resolve("trading212", mapping.Instrument{
		ISIN:     pos.ISIN,
		Ticker:   pos.Ticker,
		Currency: pos.Currency,
		Name:     pos.Name,
	}, userID)
}

func (r *Reconciler) canonicalTicker(user *models.UserState, pos *models.BrokerPosition) string {
	return r.resolve(user, pos).DisplayTicker
}

func (r *Reconciler) reconcileLedger(user *models.UserState, snap *models.BrokerSnapshot, rates *fx.RateTable) {
	if user.Ledger == nil {
		user.Ledger = models.NewUserLedger()
	}
	today := r.now().Format(models.DateLayout)

	value := snap.PortfolioValue
	if snap.RootCurrency != "" && rates != nil && !strings.EqualFold(snap.RootCurrency, rates.Base) {
		converted := rates.ToBase(value, snap.RootCurrency)
		if converted == 0 {
			r.log.Warn().Str("currency", snap.RootCurrency).Msg("No fx rate for snapshot currency, skipping portfolio record")
			value = 0
		} else {
			value = converted
		}
	}
	if value > 0 {
		ledger.RecordDay(user.Ledger, today, ledger.DayInput{End: &value})
	}

	if len(snap.CashTransactions) == 0 {
		return
	}
	if user.Broker.SeenCashTxns == nil {
		user.Broker.SeenCashTxns = make(map[string]bool)
	}
	for _, tx := range snap.CashTransactions {
		if tx.ID == "" || user.Broker.SeenCashTxns[tx.ID] || tx.Amount <= 0 {
			continue
		}
		in := ledger.DayInput{}
		switch tx.Type {
		case "DEPOSIT":
			in.CashIn = tx.Amount
		case "WITHDRAWAL":
			in.CashOut = tx.Amount
		default:
			continue
		}
		date := tx.Date
		if date == "" {
			date = today
		}
		ledger.RecordDay(user.Ledger, date, in)
		user.Broker.SeenCashTxns[tx.ID] = true
	}
}

func refreshUnrealized(t *models.Trade, rates *fx.RateTable) {
	if !t.IsOpen() || t.LivePrice <= 0 || rates == nil {
		return
	}
	pnl := journal.UnrealizedPnL(t, t.LivePrice, rates)
	t.UnrealizedPnLCurrency = pnl.Currency
	t.UnrealizedPnLBase = pnl.Base
}

func openBrokerTrades(user *models.UserState) []*models.Trade {
	var out []*models.Trade
	for _, t := range user.Trades {
		if t.IsOpen() && t.Source == models.SourceBroker {
			out = append(out, t)
		}
	}
	return out
}

// exactKey is the position/lot identity: the broker's own position id when
// it supplies one, else a synthesized key from ISIN or the normalized
// instrument name.
func exactKey(accountID string, pos *models.BrokerPosition) string {
	if pos.PositionID != "" {
		return accountID + ":" + pos.PositionID
	}
	if pos.ISIN != "" {
		return accountID + ":isin:" + normalizeIdent(pos.ISIN)
	}
	if pos.Name != "" {
		return accountID + ":name:" + normalizeIdent(pos.Name)
	}
	return accountID + ":tkr:" + normalizeIdent(pos.Ticker)
}

// aggregateKey aggregates all lots of one canonical symbol under one key,
// surviving broker lot-id reassignment on top-ups.
func aggregateKey(accountID, canonicalSymbol string) string {
	return accountID + ":sym:" + normalizeIdent(canonicalSymbol)
}

func belongsToAccount(t *models.Trade, accountID string) bool {
	return strings.HasPrefix(t.SourceID, accountID+":") ||
		strings.HasPrefix(t.SourcePositionKey, accountID+":")
}

// normalizeIdent uppercases and strips everything but letters and digits so
// "AAPL_US_EQ", "aapl us eq" and "AAPL-US-EQ" all compare equal.
func normalizeIdent(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func directionOf(quantity float64) models.Direction {
	if quantity < 0 {
		return models.Short
	}
	return models.Long
}
