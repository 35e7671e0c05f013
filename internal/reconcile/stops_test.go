package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/internal/models"
)

func openBrokerTrade(size float64) *models.Trade {
	return &models.Trade{
		ID: "t1", Symbol: "AAPL", Currency: "USD",
		Status: models.TradeOpen, Source: models.SourceBroker,
		SourceTicker: "AAPL_US_EQ", Direction: models.Long,
		Entry: 150, SizeUnits: size,
	}
}

func sellStop(id string, qty, stop float64) models.BrokerOrder {
	return models.BrokerOrder{
		OrderID: id, Ticker: "AAPL_US_EQ", Side: models.OrderSell,
		Type: "STOP", StopPrice: stop, Quantity: qty, Status: "WORKING",
	}
}

func runStops(t *models.Trade, orders []models.BrokerOrder) (*Result, *Reconciler) {
	r := newTestReconciler(nil, nil)
	user := models.NewUserState("alice")
	user.Trades = append(user.Trades, t)
	res := &Result{}
	r.reconcileStops(user, snapshotWith(nil, orders), res)
	return res, r
}

func TestStopMatchPicksQuantityClosestOrder(t *testing.T) {
	// Two live sell stops on the same instrument: 5 units at 140 and 100
	// units at 145. The 100-unit trade must bind to the 100-unit order no
	// matter how the broker orders the list.
	orderings := map[string][]models.BrokerOrder{
		"small first": {sellStop("small", 5, 140), sellStop("big", 100, 145)},
		"big first":   {sellStop("big", 100, 145), sellStop("small", 5, 140)},
	}

	for name, orders := range orderings {
		t.Run(name, func(t *testing.T) {
			trade := openBrokerTrade(100)
			res, _ := runStops(trade, orders)

			assert.Equal(t, 1, res.StopsSynced)
			require.NotNil(t, trade.CurrentStop)
			assert.Equal(t, 145.0, *trade.CurrentStop)
			assert.Equal(t, "big", trade.StopOrderID)
		})
	}
}

func TestStopMatchTieBreaksOnNewestOrder(t *testing.T) {
	older := sellStop("older", 100, 140)
	older.CreatedAt = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	newer := sellStop("newer", 100, 142)
	newer.CreatedAt = time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)

	trade := openBrokerTrade(100)
	runStops(trade, []models.BrokerOrder{older, newer})

	assert.Equal(t, "newer", trade.StopOrderID)
	assert.Equal(t, 142.0, *trade.CurrentStop)
}

func TestStopMatchPrefersRememberedOrderID(t *testing.T) {
	trade := openBrokerTrade(100)
	trade.StopOrderID = "mine"

	closer := sellStop("closer", 100, 145)
	mine := sellStop("mine", 5, 140)

	runStops(trade, []models.BrokerOrder{closer, mine})

	// The previously bound order stays bound while it remains a live stop,
	// even when another order is a better quantity fit.
	assert.Equal(t, "mine", trade.StopOrderID)
	assert.Equal(t, 140.0, *trade.CurrentStop)
}

func TestStopMatchIgnoresWrongSideAndFilledOrders(t *testing.T) {
	buyStop := sellStop("buy", 100, 145)
	buyStop.Side = models.OrderBuy
	filled := sellStop("filled", 100, 144)
	filled.Status = "FILLED"
	limit := sellStop("limit", 100, 143)
	limit.Type = "LIMIT"

	trade := openBrokerTrade(100)
	res, _ := runStops(trade, []models.BrokerOrder{buyStop, filled, limit})

	assert.Zero(t, res.StopsSynced)
	assert.Nil(t, trade.CurrentStop)
}

func TestStopMatchShortUsesBuyStop(t *testing.T) {
	trade := openBrokerTrade(50)
	trade.Direction = models.Short

	cover := sellStop("cover", 50, 160)
	cover.Side = models.OrderBuy
	cover.Quantity = -50

	runStops(trade, []models.BrokerOrder{cover})

	require.NotNil(t, trade.CurrentStop)
	assert.Equal(t, 160.0, *trade.CurrentStop)
}

func TestStopMatchUsesISINWhenTickersDiffer(t *testing.T) {
	trade := openBrokerTrade(100)
	trade.SourceTicker = "AAPL"
	trade.SourceISIN = "US0378331005"

	o := sellStop("o1", 100, 145)
	o.Ticker = "AAPL_US_EQ"
	o.ISIN = "US0378331005"

	runStops(trade, []models.BrokerOrder{o})

	require.NotNil(t, trade.CurrentStop)
	assert.Equal(t, 145.0, *trade.CurrentStop)
}

func TestVanishedBrokerStopIsFlaggedStaleOnce(t *testing.T) {
	trade := openBrokerTrade(100)
	stop := 145.0
	trade.CurrentStop = &stop
	trade.CurrentStopSource = models.StopBroker
	trade.StopOrderID = "gone"

	res, r := runStops(trade, nil)

	assert.Equal(t, 1, res.StopsStale)
	require.NotNil(t, trade.CurrentStop, "the last known level stays visible")
	assert.Equal(t, 145.0, *trade.CurrentStop)
	assert.True(t, trade.CurrentStopStale)

	// A second run with the order still gone is quiet.
	user := models.NewUserState("alice")
	user.Trades = append(user.Trades, trade)
	res2 := &Result{}
	r.reconcileStops(user, snapshotWith(nil, nil), res2)
	assert.Zero(t, res2.StopsStale)
}

func TestManualStopIsNeverTouched(t *testing.T) {
	trade := openBrokerTrade(100)
	stop := 148.0
	trade.CurrentStop = &stop
	trade.CurrentStopSource = models.StopManual

	res, _ := runStops(trade, []models.BrokerOrder{sellStop("o1", 100, 130)})

	assert.Zero(t, res.StopsSynced)
	assert.Equal(t, 148.0, *trade.CurrentStop)
	assert.Equal(t, models.StopManual, trade.CurrentStopSource)
	assert.Empty(t, trade.StopOrderID)
}

func TestStopSyncSeedsOriginalStopWhenUnset(t *testing.T) {
	trade := openBrokerTrade(100)
	require.Zero(t, trade.Stop)

	runStops(trade, []models.BrokerOrder{sellStop("o1", 100, 145)})
	assert.Equal(t, 145.0, trade.Stop)

	// Once set, original stop is frozen even as the live order moves.
	runStops(trade, []models.BrokerOrder{sellStop("o1", 100, 150)})
	assert.Equal(t, 145.0, trade.Stop)
	assert.Equal(t, 150.0, *trade.CurrentStop)
}
