// Package export renders the trade journal as CSV for spreadsheets and
// external analysis tools.
package export

import (
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"trading-journal/internal/models"
)

// TradeRow is one CSV line of the journal export. Nullable fields render
// as empty cells rather than zeroes.
type TradeRow struct {
	ID           string  `csv:"id"`
	Symbol       string  `csv:"symbol"`
	Status       string  `csv:"status"`
	Source       string  `csv:"source"`
	Direction    string  `csv:"direction"`
	TradeType    string  `csv:"trade_type"`
	AssetClass   string  `csv:"asset_class"`
	Currency     string  `csv:"currency"`
	OpenDate     string  `csv:"open_date"`
	CloseDate    string  `csv:"close_date"`
	Entry        float64 `csv:"entry"`
	Stop         float64 `csv:"stop"`
	CurrentStop  string  `csv:"current_stop"`
	ClosePrice   float64 `csv:"close_price"`
	SizeUnits    float64 `csv:"size_units"`
	Fees         float64 `csv:"fees"`
	RiskBase     float64 `csv:"risk_base"`
	RiskPct      float64 `csv:"risk_pct"`
	RealizedBase float64 `csv:"realized_pnl_base"`
	RMultiple    string  `csv:"r_multiple"`
	Strategy     string  `csv:"strategy"`
	SetupTags    string  `csv:"setup_tags"`
	EmotionTags  string  `csv:"emotion_tags"`
}

// Trades writes the user's journal to w as CSV, open trades first in
// creation order, then closed.
func Trades(w io.Writer, trades []*models.Trade) error {
	rows := make([]*TradeRow, 0, len(trades))
	for _, t := range trades {
		if t.IsOpen() {
			rows = append(rows, rowOf(t))
		}
	}
	for _, t := range trades {
		if !t.IsOpen() {
			rows = append(rows, rowOf(t))
		}
	}
	return gocsv.Marshal(rows, w)
}

func rowOf(t *models.Trade) *TradeRow {
	row := &TradeRow{
		ID:           t.ID,
		Symbol:       t.Symbol,
		Status:       string(t.Status),
		Source:       string(t.Source),
		Direction:    string(t.Direction),
		TradeType:    string(t.TradeType),
		AssetClass:   string(t.AssetClass),
		Currency:     t.Currency,
		OpenDate:     t.OpenDate,
		CloseDate:    t.CloseDate,
		Entry:        t.Entry,
		Stop:         t.Stop,
		ClosePrice:   t.ClosePrice,
		SizeUnits:    t.SizeUnits,
		Fees:         t.Fees,
		RiskBase:     t.RiskAmountBase,
		RiskPct:      t.RiskPct,
		RealizedBase: t.TotalRealizedPnLBase(),
		Strategy:     t.StrategyTag,
		SetupTags:    strings.Join(t.SetupTags, ";"),
		EmotionTags:  strings.Join(t.EmotionTags, ";"),
	}
	if t.CurrentStop != nil {
		row.CurrentStop = strconv.FormatFloat(*t.CurrentStop, 'f', -1, 64)
	}
	if t.RMultiple != nil {
		row.RMultiple = strconv.FormatFloat(*t.RMultiple, 'f', 4, 64)
	}
	return row
}
