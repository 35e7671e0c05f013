// Package journal implements trade records: normalization, risk-based
// position sizing, and realized/unrealized PnL math.
package journal

import (
	"math"
	"strings"

	"trading-journal/internal/models"
)

// Normalizer coerces raw trade records into their typed form, substituting
// defaults for anything missing or invalid. Normalization is idempotent:
// normalizing an already-normalized trade changes nothing.
type Normalizer struct {
	// BaseCurrency is substituted when a trade carries no currency.
	BaseCurrency string
}

// Normalize coerces every field of t in place and returns the names of the
// fields that were silently defaulted, so callers can log the substitutions
// instead of losing them.
func (n Normalizer) Normalize(t *models.Trade) []string {
	var defaulted []string

	if dir, ok := models.ParseDirection(string(t.Direction)); !ok {
		t.Direction = dir
		defaulted = append(defaulted, "direction")
	}
	if tt, ok := models.ParseTradeType(string(t.TradeType)); !ok {
		t.TradeType = tt
		defaulted = append(defaulted, "tradeType")
	}
	if ac, ok := models.ParseAssetClass(string(t.AssetClass)); !ok {
		t.AssetClass = ac
		defaulted = append(defaulted, "assetClass")
	}
	if st, ok := models.ParseTradeStatus(string(t.Status)); !ok {
		t.Status = st
		defaulted = append(defaulted, "status")
	}

	switch t.Source {
	case models.SourceManual, models.SourceBroker:
	default:
		t.Source = models.SourceManual
		defaulted = append(defaulted, "source")
	}
	switch t.CurrentStopSource {
	case models.StopManual, models.StopBroker, "":
	default:
		t.CurrentStopSource = models.StopManual
		defaulted = append(defaulted, "currentStopSource")
	}

	t.Symbol = strings.TrimSpace(t.Symbol)
	t.Currency = strings.ToUpper(strings.TrimSpace(t.Currency))
	if t.Currency == "" {
		t.Currency = strings.ToUpper(n.BaseCurrency)
		defaulted = append(defaulted, "currency")
	}

	if clampNonNegative(&t.Fees) {
		defaulted = append(defaulted, "fees")
	}
	if clampNonNegative(&t.Slippage) {
		defaulted = append(defaulted, "slippage")
	}
	if clampNonNegative(&t.FxFeeRate) {
		defaulted = append(defaulted, "fxFeeRate")
	}
	if clampFinite(&t.SizeUnits) {
		defaulted = append(defaulted, "sizeUnits")
	}
	clampFinite(&t.Entry)
	clampFinite(&t.Stop)
	clampFinite(&t.RiskAmountCurrency)
	clampFinite(&t.RiskAmountBase)
	clampFinite(&t.RiskPct)
	clampFinite(&t.PortfolioAtCalc)
	clampFinite(&t.PortfolioAtCalcBase)
	clampFinite(&t.LivePrice)

	if t.CurrentStop != nil && (!finite(*t.CurrentStop) || *t.CurrentStop <= 0) {
		t.CurrentStop = nil
		defaulted = append(defaulted, "currentStop")
	}

	t.SetupTags = normalizeTags(t.SetupTags)
	t.EmotionTags = normalizeTags(t.EmotionTags)

	kept := t.PartialCloses[:0]
	for _, pc := range t.PartialCloses {
		if pc.Units > 0 && finite(pc.Units) {
			kept = append(kept, pc)
		}
	}
	t.PartialCloses = kept
	if len(t.PartialCloses) == 0 {
		t.PartialCloses = nil
	}

	return defaulted
}

// normalizeTags trims, deduplicates and caps a tag list, preserving first
// occurrence order.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
		if len(out) == models.MaxTags {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// clampNonNegative zeroes non-finite or negative values, reporting whether
// it changed anything.
func clampNonNegative(f *float64) bool {
	if !finite(*f) || *f < 0 {
		*f = 0
		return true
	}
	return false
}

// clampFinite zeroes non-finite values only.
func clampFinite(f *float64) bool {
	if !finite(*f) {
		*f = 0
		return true
	}
	return false
}
