package reconcile

import (
	"trading-journal/internal/models"
)

// reconcileStops synchronizes currentStop on open broker-sourced trades
// from the snapshot's live stop orders. Matching runs on broker-native
// identity (the broker's own ticker/ISIN), never the display ticker, so an
// instrument mapping can change what the user sees without breaking the
// match.
func (r *Reconciler) reconcileStops(user *models.UserState, snap *models.BrokerSnapshot, res *Result) {
	orderByID := make(map[string]*models.BrokerOrder, len(snap.Orders))
	for i := range snap.Orders {
		orderByID[snap.Orders[i].OrderID] = &snap.Orders[i]
	}

	for _, t := range user.Trades {
		if !t.IsOpen() || t.Source != models.SourceBroker {
			continue
		}
		// A manually-set stop belongs to the user; the broker never
		// touches it.
		if t.CurrentStopSource == models.StopManual {
			continue
		}

		order := r.matchStopOrder(t, snap, orderByID)
		if order != nil {
			applyStopOrder(t, order)
			res.StopsSynced++
			continue
		}

		// The broker-sourced stop vanished: keep the numbers for display
		// but flag them unreliable. A trade that never had a broker stop
		// is left alone.
		if t.CurrentStopSource == models.StopBroker && t.CurrentStop != nil && !t.CurrentStopStale {
			t.CurrentStopStale = true
			res.StopsStale++
			r.log.Debug().Str("trade_id", t.ID).Str("symbol", t.Symbol).Msg("Broker stop order gone, marking stop stale")
		}
	}
}

// matchStopOrder finds the live stop order protecting a trade: the
// remembered order id first, then the best identity match.
func (r *Reconciler) matchStopOrder(t *models.Trade, snap *models.BrokerSnapshot, orderByID map[string]*models.BrokerOrder) *models.BrokerOrder {
	if t.StopOrderID != "" {
		if o, ok := orderByID[t.StopOrderID]; ok && o.IsOpenStop() && o.StopPrice > 0 {
			return o
		}
	}

	var candidates []*models.BrokerOrder
	for i := range snap.Orders {
		o := &snap.Orders[i]
		if !o.IsOpenStop() || o.StopPrice <= 0 {
			continue
		}
		if o.Side != protectiveSide(t.Direction) {
			continue
		}
		if !sameInstrument(t, o) {
			continue
		}
		candidates = append(candidates, o)
	}
	if len(candidates) == 0 {
		return nil
	}

	// Multiple stops can sit on the same instrument across lots: pick the
	// one whose quantity is closest to this trade's size, newest first on
	// a tie.
	best := candidates[0]
	for _, o := range candidates[1:] {
		db, do := quantityDistance(best, t), quantityDistance(o, t)
		if do < db || (do == db && o.CreatedAt.After(best.CreatedAt)) {
			best = o
		}
	}
	return best
}

func applyStopOrder(t *models.Trade, o *models.BrokerOrder) {
	stop := o.StopPrice
	t.CurrentStop = &stop
	t.CurrentStopSource = models.StopBroker
	t.CurrentStopStale = false
	t.StopOrderID = o.OrderID
	if t.Stop == 0 {
		t.Stop = stop
	}
}

// protectiveSide is the order side that protects a position: a sell stop
// for a long, a buy stop for a short.
func protectiveSide(d models.Direction) models.OrderSide {
	if d == models.Short {
		return models.OrderBuy
	}
	return models.OrderSell
}

func sameInstrument(t *models.Trade, o *models.BrokerOrder) bool {
	if isin := normalizeIdent(o.ISIN); isin != "" && isin == normalizeIdent(t.SourceISIN) {
		return true
	}
	if ticker := normalizeIdent(o.Ticker); ticker != "" && ticker == normalizeIdent(t.SourceTicker) {
		return true
	}
	return false
}

func quantityDistance(o *models.BrokerOrder, t *models.Trade) float64 {
	return abs(abs(o.Quantity) - t.SizeUnits)
}
