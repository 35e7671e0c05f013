package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/internal/fx"
	"trading-journal/internal/mapping"
	"trading-journal/internal/models"
)

var fixedNow = time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

func newTestReconciler(mappings []*models.InstrumentMapping, lows DailyLowSource) *Reconciler {
	r := New(mapping.NewResolver(mappings), lows, zerolog.Nop())
	return r.WithClock(func() time.Time { return fixedNow })
}

func gbpRates() *fx.RateTable {
	return fx.NewRateTable("GBP", map[string]float64{"USD": 1.25})
}

func snapshotWith(positions []models.BrokerPosition, orders []models.BrokerOrder) *models.BrokerSnapshot {
	return &models.BrokerSnapshot{
		AccountID:      "acc1",
		Provider:       "trading212",
		PortfolioValue: 10840,
		RootCurrency:   "GBP",
		Positions:      positions,
		Orders:         orders,
		FetchedAt:      fixedNow,
	}
}

func aaplPosition() models.BrokerPosition {
	return models.BrokerPosition{
		PositionID:   "pos-1",
		Ticker:       "AAPL_US_EQ",
		ISIN:         "US0378331005",
		Name:         "Apple",
		Currency:     "USD",
		Quantity:     10,
		AveragePrice: 150,
		CurrentPrice: 155,
		OpenedAt:     time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestSynthesizeFromUnmatchedPosition(t *testing.T) {
	r := newTestReconciler(nil, nil)
	user := models.NewUserState("alice")

	res := r.Run(context.Background(), user, snapshotWith([]models.BrokerPosition{aaplPosition()}, nil), gbpRates())

	assert.Equal(t, 1, res.Created)
	require.Len(t, user.Trades, 1)

	trade := user.Trades[0]
	assert.Equal(t, models.SourceBroker, trade.Source)
	assert.Equal(t, "acc1:pos-1", trade.SourceID)
	assert.Equal(t, "AAPL_US_EQ", trade.SourceTicker)
	assert.Equal(t, 150.0, trade.Entry)
	assert.Equal(t, 10.0, trade.SizeUnits)
	assert.Equal(t, models.Long, trade.Direction)
	assert.Equal(t, "2024-06-01", trade.OpenDate)
	assert.Zero(t, trade.RiskAmountCurrency, "broker trades carry no risk plan")
	assert.Zero(t, trade.RiskPct)
}

func TestSynthesizeUsesInstrumentMapping(t *testing.T) {
	mappings := []*models.InstrumentMapping{{
		SourceKey: "TRADING212|ISIN:US0378331005", Scope: models.ScopeUser, UserID: "alice",
		CanonicalTicker: "AAPL", Status: models.MappingActive,
	}}
	r := newTestReconciler(mappings, nil)
	user := models.NewUserState("alice")

	r.Run(context.Background(), user, snapshotWith([]models.BrokerPosition{aaplPosition()}, nil), gbpRates())

	require.Len(t, user.Trades, 1)
	assert.Equal(t, "AAPL", user.Trades[0].Symbol, "display symbol comes from the mapping")
	assert.Equal(t, "AAPL_US_EQ", user.Trades[0].SourceTicker, "broker-native identity is retained")
}

func TestRunIsIdempotentUnderRepeatedSnapshots(t *testing.T) {
	r := newTestReconciler(nil, nil)
	user := models.NewUserState("alice")
	rates := gbpRates()

	snap := snapshotWith([]models.BrokerPosition{aaplPosition()}, []models.BrokerOrder{{
		OrderID: "o1", Ticker: "AAPL_US_EQ", Side: models.OrderSell,
		Type: "STOP", StopPrice: 149, Quantity: 10, Status: "WORKING",
	}})

	r.Run(context.Background(), user, snap, rates)
	require.Len(t, user.Trades, 1)
	first := *user.Trades[0]

	res := r.Run(context.Background(), user, snap, rates)
	assert.Zero(t, res.Created, "second identical run must not create trades")
	assert.Zero(t, res.Closed)
	require.Len(t, user.Trades, 1)

	second := *user.Trades[0]
	// Identity is stable across runs, not just count.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Entry, second.Entry)
	assert.Equal(t, first.SizeUnits, second.SizeUnits)
	assert.Equal(t, first.Stop, second.Stop)
	assert.Equal(t, *first.CurrentStop, *second.CurrentStop)
	assert.Equal(t, first.SourceID, second.SourceID)
}

func TestLayeringMatchesOnAggregateKey(t *testing.T) {
	r := newTestReconciler(nil, nil)
	user := models.NewUserState("alice")
	rates := gbpRates()

	r.Run(context.Background(), user, snapshotWith([]models.BrokerPosition{aaplPosition()}, nil), rates)
	require.Len(t, user.Trades, 1)
	original := user.Trades[0]

	// Top-up: the broker reassigns the lot id but aggregates quantity
	// under the same symbol.
	layered := aaplPosition()
	layered.PositionID = "pos-9"
	layered.Quantity = 15
	layered.AveragePrice = 152

	res := r.Run(context.Background(), user, snapshotWith([]models.BrokerPosition{layered}, nil), rates)
	assert.Zero(t, res.Created, "layered position must update, not duplicate")
	require.Len(t, user.Trades, 1)
	assert.Same(t, original, user.Trades[0])
	assert.Equal(t, 15.0, original.SizeUnits)
	assert.Equal(t, 152.0, original.Entry)
	assert.Equal(t, "acc1:pos-9", original.SourceID, "exact key refreshes to the new lot id")
}

func TestFallbackMatchByISINThenNameThenTicker(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Trade)
	}{
		{"isin", func(tr *models.Trade) { tr.SourceISIN = "US0378331005" }},
		{"name", func(tr *models.Trade) { tr.SourceName = "apple" }},
		{"ticker", func(tr *models.Trade) { tr.SourceTicker = "aapl us eq" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReconciler(nil, nil)
			user := models.NewUserState("alice")

			existing := &models.Trade{
				ID: "t1", Symbol: "AAPL", Currency: "USD",
				Status: models.TradeOpen, Source: models.SourceBroker,
				SizeUnits: 5, Entry: 140, Direction: models.Long,
				CreatedAt: fixedNow.Add(-time.Hour),
			}
			tt.mutate(existing)
			user.Trades = append(user.Trades, existing)

			pos := aaplPosition()
			pos.PositionID = "" // force fallback matching
			res := r.Run(context.Background(), user, snapshotWith([]models.BrokerPosition{pos}, nil), gbpRates())

			assert.Zero(t, res.Created)
			assert.Equal(t, 1, res.Updated)
			assert.Equal(t, 10.0, existing.SizeUnits)
		})
	}
}

func TestFallbackPrefersHigherPriorityLevelThenOldest(t *testing.T) {
	r := newTestReconciler(nil, nil)
	user := models.NewUserState("alice")

	byTicker := &models.Trade{
		ID: "by-ticker", Status: models.TradeOpen, Source: models.SourceBroker,
		SourceTicker: "AAPL_US_EQ", Currency: "USD", Direction: models.Long,
		Entry: 1, SizeUnits: 1, CreatedAt: fixedNow.Add(-3 * time.Hour),
	}
	byISINOld := &models.Trade{
		ID: "by-isin-old", Status: models.TradeOpen, Source: models.SourceBroker,
		SourceISIN: "US0378331005", Currency: "USD", Direction: models.Long,
		Entry: 1, SizeUnits: 1, CreatedAt: fixedNow.Add(-2 * time.Hour),
	}
	byISINNew := &models.Trade{
		ID: "by-isin-new", Status: models.TradeOpen, Source: models.SourceBroker,
		SourceISIN: "US0378331005", Currency: "USD", Direction: models.Long,
		Entry: 1, SizeUnits: 1, CreatedAt: fixedNow.Add(-time.Hour),
	}
	user.Trades = []*models.Trade{byTicker, byISINOld, byISINNew}

	pos := aaplPosition()
	pos.PositionID = ""
	got := r.findMatch(user, "acc1", &pos, nil)

	// ISIN outranks ticker even though the ticker trade is older, and
	// within the ISIN level creation order breaks the tie.
	assert.Equal(t, "by-isin-old", got.ID)
}

func TestTwoLotsOnSameInstrumentStaySeparateTrades(t *testing.T) {
	r := newTestReconciler(nil, nil)
	user := models.NewUserState("alice")
	rates := gbpRates()

	lotA := aaplPosition()
	lotA.PositionID = "lot-a"
	lotB := aaplPosition()
	lotB.PositionID = "lot-b"
	lotB.Quantity = 5
	lotB.AveragePrice = 160

	snap := snapshotWith([]models.BrokerPosition{lotA, lotB}, nil)
	res := r.Run(context.Background(), user, snap, rates)

	// The second lot must not claim the first lot's trade through the
	// aggregate key or ISIN fallback.
	assert.Equal(t, 2, res.Created)
	require.Len(t, user.Trades, 2)

	bySource := make(map[string]*models.Trade)
	for _, tr := range user.Trades {
		bySource[tr.SourceID] = tr
	}
	require.Contains(t, bySource, "acc1:lot-a")
	require.Contains(t, bySource, "acc1:lot-b")
	assert.Equal(t, 10.0, bySource["acc1:lot-a"].SizeUnits)
	assert.Equal(t, 150.0, bySource["acc1:lot-a"].Entry)
	assert.Equal(t, 5.0, bySource["acc1:lot-b"].SizeUnits)
	assert.Equal(t, 160.0, bySource["acc1:lot-b"].Entry)

	res = r.Run(context.Background(), user, snap, rates)
	assert.Zero(t, res.Created)
	assert.Equal(t, 2, res.Updated)
	assert.Zero(t, res.Closed)
}

func TestDisappearedPositionIsClosedNotDeleted(t *testing.T) {
	r := newTestReconciler(nil, nil)
	user := models.NewUserState("alice")
	rates := gbpRates()

	r.Run(context.Background(), user, snapshotWith([]models.BrokerPosition{aaplPosition()}, nil), rates)
	require.Len(t, user.Trades, 1)
	trade := user.Trades[0]
	require.True(t, trade.IsOpen())

	res := r.Run(context.Background(), user, snapshotWith(nil, nil), rates)

	assert.Equal(t, 1, res.Closed)
	require.Len(t, user.Trades, 1, "broker trades are closed, never deleted")
	assert.Equal(t, models.TradeClosed, trade.Status)
	assert.Equal(t, "2024-06-10", trade.CloseDate)
	assert.Equal(t, 155.0, trade.ClosePrice, "last known live price is the close price")
}

func TestManualTradesAreNeverTouched(t *testing.T) {
	r := newTestReconciler(nil, nil)
	user := models.NewUserState("alice")

	manual := &models.Trade{
		ID: "m1", Symbol: "AAPL", Currency: "USD",
		Status: models.TradeOpen, Source: models.SourceManual,
		SourceTicker: "AAPL_US_EQ",
		Entry:        140, SizeUnits: 5, Direction: models.Long,
	}
	user.Trades = append(user.Trades, manual)

	res := r.Run(context.Background(), user, snapshotWith(nil, nil), gbpRates())

	assert.Zero(t, res.Closed, "a manual trade is not closed when the broker has no position")
	assert.True(t, manual.IsOpen())
}

type fakeLows struct {
	low float64
	err error
}

func (f fakeLows) DailyLow(ctx context.Context, symbol, date string) (float64, error) {
	return f.low, f.err
}

func TestStopSeeding(t *testing.T) {
	t.Run("position stop preferred", func(t *testing.T) {
		r := newTestReconciler(nil, fakeLows{low: 140})
		user := models.NewUserState("alice")
		pos := aaplPosition()
		pos.StopPrice = 145

		r.Run(context.Background(), user, snapshotWith([]models.BrokerPosition{pos}, nil), gbpRates())

		trade := user.Trades[0]
		assert.Equal(t, 145.0, trade.Stop)
		require.NotNil(t, trade.CurrentStop)
		assert.Equal(t, 145.0, *trade.CurrentStop)
		assert.Equal(t, models.StopBroker, trade.CurrentStopSource)
	})

	t.Run("daily low fallback", func(t *testing.T) {
		r := newTestReconciler(nil, fakeLows{low: 140})
		user := models.NewUserState("alice")

		r.Run(context.Background(), user, snapshotWith([]models.BrokerPosition{aaplPosition()}, nil), gbpRates())

		assert.Equal(t, 140.0, user.Trades[0].Stop)
	})

	t.Run("no source leaves stop unset", func(t *testing.T) {
		r := newTestReconciler(nil, nil)
		user := models.NewUserState("alice")

		r.Run(context.Background(), user, snapshotWith([]models.BrokerPosition{aaplPosition()}, nil), gbpRates())

		assert.Zero(t, user.Trades[0].Stop)
		assert.Nil(t, user.Trades[0].CurrentStop)
	})

	t.Run("existing stop never overwritten", func(t *testing.T) {
		r := newTestReconciler(nil, nil)
		user := models.NewUserState("alice")
		rates := gbpRates()

		r.Run(context.Background(), user, snapshotWith([]models.BrokerPosition{aaplPosition()}, nil), rates)
		trade := user.Trades[0]
		trade.Stop = 148 // user sets their own stop

		pos := aaplPosition()
		pos.StopPrice = 100
		r.Run(context.Background(), user, snapshotWith([]models.BrokerPosition{pos}, nil), rates)

		assert.Equal(t, 148.0, trade.Stop, "a user-set original stop survives resync")
	})
}

func TestLedgerPassRecordsPortfolioAndCash(t *testing.T) {
	r := newTestReconciler(nil, nil)
	user := models.NewUserState("alice")

	snap := snapshotWith(nil, nil)
	snap.CashTransactions = []models.CashTransaction{
		{ID: "tx-1", Type: "DEPOSIT", Amount: 500, Date: "2024-06-01"},
		{ID: "tx-2", Type: "WITHDRAWAL", Amount: 200, Date: "2024-06-05"},
	}

	r.Run(context.Background(), user, snap, gbpRates())

	require.NotNil(t, user.Ledger.Entries["2024-06-10"])
	assert.Equal(t, 10840.0, *user.Ledger.Entries["2024-06-10"].End)
	assert.Equal(t, 500.0, user.Ledger.Entries["2024-06-01"].CashIn)
	assert.Equal(t, 200.0, user.Ledger.Entries["2024-06-05"].CashOut)

	// Replaying the same snapshot must not double-count the transactions.
	r.Run(context.Background(), user, snap, gbpRates())
	assert.Equal(t, 500.0, user.Ledger.Entries["2024-06-01"].CashIn)
	assert.Equal(t, 200.0, user.Ledger.Entries["2024-06-05"].CashOut)
}

func TestLedgerPassConvertsForeignRootCurrency(t *testing.T) {
	r := newTestReconciler(nil, nil)
	user := models.NewUserState("alice")

	snap := snapshotWith(nil, nil)
	snap.RootCurrency = "USD"
	snap.PortfolioValue = 12500

	r.Run(context.Background(), user, snap, gbpRates())

	require.NotNil(t, user.Ledger.Entries["2024-06-10"])
	assert.Equal(t, 10000.0, *user.Ledger.Entries["2024-06-10"].End)
}
