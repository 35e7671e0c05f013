package journal

import (
	"time"

	"github.com/google/uuid"

	"trading-journal/internal/errors"
	"trading-journal/internal/fx"
	"trading-journal/internal/ledger"
	"trading-journal/internal/models"
)

// OpenInput is a user-submitted request to open a trade. Exactly one of
// SizeUnits, RiskAmount or RiskPct drives the sizing; when more than one is
// supplied, SizeUnits wins over RiskAmount wins over RiskPct.
type OpenInput struct {
	Symbol   string
	Currency string

	Entry     float64
	Stop      float64
	Direction string

	SizeUnits  *float64
	RiskAmount *float64 // in the trade currency
	RiskPct    *float64

	Fees          float64
	Slippage      float64
	FxFeeEligible bool
	FxFeeRate     float64

	TradeType       string
	AssetClass      string
	MarketCondition string
	StrategyTag     string
	SetupTags       []string
	EmotionTags     []string

	OpenDate string
}

// Open validates the input, sizes the position, and returns a new open
// trade with its risk snapshot frozen. portfolioBase is the current
// portfolio value in the account base currency.
func Open(in OpenInput, portfolioBase float64, rates *fx.RateTable, now time.Time) (*models.Trade, error) {
	if !finite(in.Entry) || in.Entry <= 0 {
		return nil, errors.NewValidationError("entry", in.Entry, "must be a positive number")
	}
	if !finite(in.Stop) || in.Stop <= 0 {
		return nil, errors.NewValidationError("stop", in.Stop, "must be a positive number")
	}

	direction, ok := models.ParseDirection(in.Direction)
	if !ok {
		return nil, errors.NewValidationError("direction", in.Direction, "must be long or short")
	}
	if direction == models.Long && in.Stop >= in.Entry {
		return nil, errors.NewValidationError("stop", in.Stop, "long stop must be below entry")
	}
	if direction == models.Short && in.Stop <= in.Entry {
		return nil, errors.NewValidationError("stop", in.Stop, "short stop must be above entry")
	}

	if in.Fees < 0 || !finite(in.Fees) {
		return nil, errors.NewValidationError("fees", in.Fees, "must be zero or positive")
	}
	if in.Slippage < 0 || !finite(in.Slippage) {
		return nil, errors.NewValidationError("slippage", in.Slippage, "must be zero or positive")
	}

	currency := in.Currency
	if currency == "" {
		currency = rates.Base
	}
	portfolioCcy := rates.FromBase(portfolioBase, currency)
	if !finite(portfolioCcy) || portfolioCcy <= 0 {
		return nil, errors.NewValidationError("portfolio", portfolioBase,
			"portfolio value in trade currency is not a positive number")
	}

	perUnitRisk := in.Entry - in.Stop
	if perUnitRisk < 0 {
		perUnitRisk = -perUnitRisk
	}

	var sizeUnits, riskAmount, riskPct float64
	switch {
	case in.SizeUnits != nil:
		if !finite(*in.SizeUnits) || *in.SizeUnits <= 0 {
			return nil, errors.NewValidationError("sizeUnits", *in.SizeUnits, "must be a positive number")
		}
		sizeUnits = *in.SizeUnits
		riskAmount = sizeUnits * perUnitRisk
		riskPct = riskAmount / portfolioCcy * 100
	case in.RiskAmount != nil:
		if !finite(*in.RiskAmount) || *in.RiskAmount <= 0 {
			return nil, errors.NewValidationError("riskAmount", *in.RiskAmount, "must be a positive number")
		}
		riskAmount = *in.RiskAmount
		sizeUnits = riskAmount / perUnitRisk
		riskPct = riskAmount / portfolioCcy * 100
	case in.RiskPct != nil:
		if !finite(*in.RiskPct) || *in.RiskPct <= 0 {
			return nil, errors.NewValidationError("riskPct", *in.RiskPct, "must be a positive number")
		}
		riskPct = *in.RiskPct
		riskAmount = portfolioCcy * riskPct / 100
		sizeUnits = riskAmount / perUnitRisk
	default:
		return nil, errors.NewValidationError("sizing", nil,
			"one of sizeUnits, riskAmount or riskPct is required")
	}

	openDate := in.OpenDate
	if openDate == "" {
		openDate = now.Format(models.DateLayout)
	}

	t := &models.Trade{
		ID:        uuid.NewString(),
		Symbol:    in.Symbol,
		Currency:  currency,
		Entry:     in.Entry,
		Stop:      in.Stop,
		SizeUnits: sizeUnits,
		Direction: direction,
		Fees:      in.Fees,
		Slippage:  in.Slippage,

		FxFeeEligible: in.FxFeeEligible,
		FxFeeRate:     in.FxFeeRate,

		RiskAmountCurrency:  riskAmount,
		RiskAmountBase:      rates.ToBase(riskAmount, currency),
		RiskPct:             riskPct,
		PortfolioAtCalc:     portfolioCcy,
		PortfolioAtCalcBase: portfolioBase,

		Status:   models.TradeOpen,
		OpenDate: openDate,

		MarketCondition: in.MarketCondition,
		StrategyTag:     in.StrategyTag,
		SetupTags:       in.SetupTags,
		EmotionTags:     in.EmotionTags,

		Source:    models.SourceManual,
		CreatedAt: now.UTC(),
	}
	t.TradeType, _ = models.ParseTradeType(in.TradeType)
	t.AssetClass, _ = models.ParseAssetClass(in.AssetClass)
	Normalizer{BaseCurrency: rates.Base}.Normalize(t)
	return t, nil
}

// directionPnL computes size-weighted PnL in the trade currency for an exit
// at price, before fees.
func directionPnL(t *models.Trade, price, units float64) float64 {
	if t.Direction == models.Short {
		return (t.Entry - price) * units
	}
	return (price - t.Entry) * units
}

// effectiveExit adjusts an exit price for expected slippage: a long gets
// out a little lower, a short a little higher.
func effectiveExit(t *models.Trade, price float64) float64 {
	if t.Direction == models.Short {
		return price + t.Slippage
	}
	return price - t.Slippage
}

// fxFeeAdjustment is the round-trip currency-conversion cost on the entry
// and exit notionals, zero when the trade is not fx-fee eligible.
func fxFeeAdjustment(t *models.Trade, exitPrice, units float64) float64 {
	if !t.FxFeeEligible || t.FxFeeRate <= 0 {
		return 0
	}
	entryNotional := t.Entry * units
	exitNotional := exitPrice * units
	return entryNotional*t.FxFeeRate + exitNotional*t.FxFeeRate
}

// Close closes an open trade at closePrice on closeDate. The PnL is
// slippage- and fee-adjusted, converted to base currency, and the
// R-multiple computed against the frozen risk snapshot.
//
// For manually-tracked trades the realized PnL is also posted into the
// ledger on the close date; broker-originated trades skip the posting
// because the broker's reported portfolio value already reflects it.
func Close(t *models.Trade, closePrice float64, closeDate string, rates *fx.RateTable, led *models.UserLedger) error {
	if !t.IsOpen() {
		return errors.NewValidationError("status", t.Status, "trade is already closed")
	}
	if !finite(closePrice) || closePrice <= 0 {
		return errors.NewValidationError("closePrice", closePrice, "must be a positive number")
	}
	if rates.Rate(t.Currency) == 0 {
		return errors.Wrapf(errors.ErrNoRates, "currency %s", t.Currency)
	}

	effective := effectiveExit(t, closePrice)
	pnlCcy := directionPnL(t, effective, t.SizeUnits) - t.Fees
	pnlBase := rates.ToBase(pnlCcy, t.Currency)

	t.Status = models.TradeClosed
	t.ClosePrice = closePrice
	t.CloseDate = closeDate
	t.RealizedPnLCurrency = pnlCcy
	t.RealizedPnLBase = pnlBase

	if t.RiskAmountBase != 0 {
		r := t.RealizedPnLBase / t.RiskAmountBase
		t.RMultiple = &r
	} else {
		t.RMultiple = nil
	}

	if t.Source == models.SourceManual && led != nil {
		postToLedger(led, closeDate, t.TotalRealizedPnLBase())
	}
	return nil
}

// postToLedger folds realized PnL into the close day's end-of-day value,
// starting from the current portfolio when the day has no entry yet.
func postToLedger(led *models.UserLedger, date string, pnlBase float64) {
	base := led.Portfolio
	if e, ok := led.Entries[date]; ok && e.End != nil {
		base = *e.End
	}
	end := base + pnlBase
	ledger.RecordDay(led, date, ledger.DayInput{End: &end})
}

// Trim reduces an open trade to newSizeUnits, realizing PnL on the trimmed
// portion at trimPrice. The partial-close PnL plus the eventual final close
// PnL reconcile exactly to the trade's total realized PnL.
func Trim(t *models.Trade, newSizeUnits, trimPrice float64, trimDate string, rates *fx.RateTable) error {
	if !t.IsOpen() {
		return errors.NewValidationError("status", t.Status, "cannot trim a closed trade")
	}
	if !finite(newSizeUnits) || newSizeUnits <= 0 {
		return errors.NewValidationError("sizeUnits", newSizeUnits, "must be a positive number")
	}
	if newSizeUnits >= t.SizeUnits {
		return errors.NewValidationError("sizeUnits", newSizeUnits, "trim must reduce the position")
	}
	if !finite(trimPrice) || trimPrice <= 0 {
		return errors.NewValidationError("trimPrice", trimPrice, "must be a positive number")
	}
	if rates.Rate(t.Currency) == 0 {
		return errors.Wrapf(errors.ErrNoRates, "currency %s", t.Currency)
	}

	trimmedUnits := t.SizeUnits - newSizeUnits
	pnlCcy := directionPnL(t, trimPrice, trimmedUnits)
	t.PartialCloses = append(t.PartialCloses, models.PartialClose{
		Units:       trimmedUnits,
		Price:       trimPrice,
		Date:        trimDate,
		PnLCurrency: pnlCcy,
		PnLBase:     rates.ToBase(pnlCcy, t.Currency),
	})
	t.SizeUnits = newSizeUnits
	return nil
}

// PnL is an amount in both the trade currency and the base currency.
type PnL struct {
	Currency float64
	Base     float64
}

// GuaranteedPnL is the worst-case PnL if the trade were stopped out at its
// current protective stop, with the same slippage/fee treatment as a real
// close plus the fx-fee round trip when eligible. Returns nil when the
// trade has no current stop.
func GuaranteedPnL(t *models.Trade, rates *fx.RateTable) (*PnL, error) {
	if t.CurrentStop == nil {
		return nil, nil
	}
	if rates.Rate(t.Currency) == 0 {
		return nil, errors.Wrapf(errors.ErrNoRates, "currency %s", t.Currency)
	}

	effective := effectiveExit(t, *t.CurrentStop)
	pnlCcy := directionPnL(t, effective, t.SizeUnits) - t.Fees
	pnlCcy -= fxFeeAdjustment(t, effective, t.SizeUnits)

	return &PnL{
		Currency: pnlCcy,
		Base:     rates.ToBase(pnlCcy, t.Currency),
	}, nil
}

// UnrealizedPnL values an open trade at livePrice, before fees.
func UnrealizedPnL(t *models.Trade, livePrice float64, rates *fx.RateTable) PnL {
	pnlCcy := directionPnL(t, livePrice, t.SizeUnits)
	return PnL{
		Currency: pnlCcy,
		Base:     rates.ToBase(pnlCcy, t.Currency),
	}
}

// ActiveTradeView is the live read model for one open trade.
type ActiveTradeView struct {
	TradeID        string   `json:"tradeId"`
	Symbol         string   `json:"symbol"`
	Direction      string   `json:"direction"`
	SizeUnits      float64  `json:"sizeUnits"`
	Entry          float64  `json:"entry"`
	LivePrice      float64  `json:"livePrice"`
	CurrentStop    *float64 `json:"currentStop,omitempty"`
	StopStale      bool     `json:"stopStale,omitempty"`
	UnrealizedBase float64  `json:"unrealizedBase"`
	GuaranteedBase *float64 `json:"guaranteedBase,omitempty"`
}

// ActiveTrades builds the live read model for all open trades.
func ActiveTrades(trades []*models.Trade, rates *fx.RateTable) []ActiveTradeView {
	var views []ActiveTradeView
	for _, t := range trades {
		if !t.IsOpen() {
			continue
		}
		v := ActiveTradeView{
			TradeID:     t.ID,
			Symbol:      displaySymbol(t),
			Direction:   string(t.Direction),
			SizeUnits:   t.SizeUnits,
			Entry:       t.Entry,
			LivePrice:   t.LivePrice,
			CurrentStop: t.CurrentStop,
			StopStale:   t.CurrentStopStale,
		}
		if t.LivePrice > 0 {
			v.UnrealizedBase = UnrealizedPnL(t, t.LivePrice, rates).Base
		}
		if g, err := GuaranteedPnL(t, rates); err == nil && g != nil {
			v.GuaranteedBase = &g.Base
		}
		views = append(views, v)
	}
	return views
}

func displaySymbol(t *models.Trade) string {
	if t.DisplaySymbol != "" {
		return t.DisplaySymbol
	}
	return t.Symbol
}
