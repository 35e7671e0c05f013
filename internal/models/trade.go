// Package models provides domain models for the trading journal.
package models

import "time"

// Direction represents the direction of a trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// TradeStatus represents the lifecycle status of a trade.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// TradeSource records where a trade originated.
type TradeSource string

const (
	SourceManual TradeSource = "manual"
	SourceBroker TradeSource = "broker"
)

// StopSource records who last maintained a trade's current stop.
type StopSource string

const (
	StopManual StopSource = "manual"
	StopBroker StopSource = "broker"
)

// TradeType classifies the intended holding period of a trade.
type TradeType string

const (
	TradeScalp    TradeType = "scalp"
	TradeDay      TradeType = "day"
	TradeSwing    TradeType = "swing"
	TradePosition TradeType = "position"
)

// AssetClass classifies the instrument traded.
type AssetClass string

const (
	AssetStocks  AssetClass = "stocks"
	AssetOptions AssetClass = "options"
	AssetForex   AssetClass = "forex"
	AssetCrypto  AssetClass = "crypto"
	AssetFutures AssetClass = "futures"
	AssetOther   AssetClass = "other"
)

// MaxTags caps the length of setup/emotion tag lists.
const MaxTags = 10

// ParseDirection coerces a raw direction string. The second return value is
// false when the input was invalid and the default was substituted.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case Long, Short:
		return Direction(s), true
	}
	return Long, false
}

// ParseTradeType coerces a raw trade-type string, defaulting to day.
func ParseTradeType(s string) (TradeType, bool) {
	switch TradeType(s) {
	case TradeScalp, TradeDay, TradeSwing, TradePosition:
		return TradeType(s), true
	}
	return TradeDay, false
}

// ParseAssetClass coerces a raw asset-class string, defaulting to stocks.
func ParseAssetClass(s string) (AssetClass, bool) {
	switch AssetClass(s) {
	case AssetStocks, AssetOptions, AssetForex, AssetCrypto, AssetFutures, AssetOther:
		return AssetClass(s), true
	}
	return AssetStocks, false
}

// ParseTradeStatus coerces a raw status string, defaulting to open.
func ParseTradeStatus(s string) (TradeStatus, bool) {
	switch TradeStatus(s) {
	case TradeOpen, TradeClosed:
		return TradeStatus(s), true
	}
	return TradeOpen, false
}

// PartialClose records one trimmed portion of an open trade.
type PartialClose struct {
	Units       float64 `json:"units"`
	Price       float64 `json:"price"`
	Date        string  `json:"date"`
	PnLCurrency float64 `json:"pnlCurrency"`
	PnLBase     float64 `json:"pnlBase"`
}

// Trade is a single journal entry, open or closed.
//
// The risk snapshot fields (RiskAmountCurrency, RiskAmountBase, RiskPct,
// PortfolioAtCalc, PortfolioAtCalcBase) are frozen at creation time and are
// never recomputed when the portfolio moves.
type Trade struct {
	ID string `json:"id"`

	// Instrument identity.
	Symbol        string `json:"symbol"`
	DisplaySymbol string `json:"displaySymbol,omitempty"`
	Currency      string `json:"currency"`

	// Broker linkage, set when the trade originates from a broker sync.
	SourceID          string `json:"sourceId,omitempty"`
	SourcePositionKey string `json:"sourcePositionKey,omitempty"`
	SourceTicker      string `json:"sourceTicker,omitempty"`
	SourceISIN        string `json:"sourceIsin,omitempty"`
	SourceName        string `json:"sourceName,omitempty"`

	// Economics.
	Entry         float64   `json:"entry"`
	Stop          float64   `json:"stop"`
	CurrentStop   *float64  `json:"currentStop,omitempty"`
	SizeUnits     float64   `json:"sizeUnits"`
	Direction     Direction `json:"direction"`
	Fees          float64   `json:"fees"`
	Slippage      float64   `json:"slippage"`
	FxFeeEligible bool      `json:"fxFeeEligible,omitempty"`
	FxFeeRate     float64   `json:"fxFeeRate,omitempty"`

	// Risk snapshot, frozen at creation.
	RiskAmountCurrency  float64 `json:"riskAmountCurrency"`
	RiskAmountBase      float64 `json:"riskAmountBase"`
	RiskPct             float64 `json:"riskPct"`
	PortfolioAtCalc     float64 `json:"portfolioAtCalc"`
	PortfolioAtCalcBase float64 `json:"portfolioAtCalcBase"`

	// Status.
	Status              TradeStatus    `json:"status"`
	OpenDate            string         `json:"openDate"`
	ClosePrice          float64        `json:"closePrice,omitempty"`
	CloseDate           string         `json:"closeDate,omitempty"`
	RealizedPnLCurrency float64        `json:"realizedPnlCurrency,omitempty"`
	RealizedPnLBase     float64        `json:"realizedPnlBase,omitempty"`
	RMultiple           *float64       `json:"rMultiple,omitempty"`
	PartialCloses       []PartialClose `json:"partialCloses,omitempty"`

	// Live read model, refreshed on broker sync.
	LivePrice             float64 `json:"livePrice,omitempty"`
	UnrealizedPnLCurrency float64 `json:"unrealizedPnlCurrency,omitempty"`
	UnrealizedPnLBase     float64 `json:"unrealizedPnlBase,omitempty"`

	// Classification.
	TradeType       TradeType  `json:"tradeType"`
	AssetClass      AssetClass `json:"assetClass"`
	MarketCondition string     `json:"marketCondition,omitempty"`
	StrategyTag     string     `json:"strategyTag,omitempty"`
	SetupTags       []string   `json:"setupTags,omitempty"`
	EmotionTags     []string   `json:"emotionTags,omitempty"`

	// Provenance.
	Source            TradeSource `json:"source"`
	CurrentStopSource StopSource  `json:"currentStopSource,omitempty"`
	CurrentStopStale  bool        `json:"currentStopStale,omitempty"`
	StopOrderID       string      `json:"stopOrderId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// PerUnitRisk returns |entry - stop|.
func (t *Trade) PerUnitRisk() float64 {
	d := t.Entry - t.Stop
	if d < 0 {
		return -d
	}
	return d
}

// IsOpen reports whether the trade is still open.
func (t *Trade) IsOpen() bool { return t.Status == TradeOpen }

// TotalRealizedPnLBase returns the sum of all partial-close PnL plus the
// final close PnL, in the account base currency.
func (t *Trade) TotalRealizedPnLBase() float64 {
	total := t.RealizedPnLBase
	for _, pc := range t.PartialCloses {
		total += pc.PnLBase
	}
	return total
}

// TotalRealizedPnLCurrency is the same total in the trade currency.
func (t *Trade) TotalRealizedPnLCurrency() float64 {
	total := t.RealizedPnLCurrency
	for _, pc := range t.PartialCloses {
		total += pc.PnLCurrency
	}
	return total
}
