package journal

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"trading-journal/internal/fx"
	"trading-journal/internal/models"
)

// Property: normalize(normalize(x)) == normalize(x) for any raw trade-like
// input. Normalization must be a fixpoint after one application.
func TestProperty_NormalizeIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	// Raw values include plenty of garbage: unknown enums, negative and
	// non-finite numbers, duplicate and oversized tag lists.
	junkNumbers := gen.OneConstOf(
		math.NaN(), math.Inf(1), math.Inf(-1), -10.0, 0.0, 1.5, 250.0,
	)
	junkStrings := gen.OneConstOf(
		"", "day", "swing", "DAY", "banana", "scalp", "position ", "other",
	)
	tagLists := gen.SliceOf(gen.OneConstOf("breakout", "breakout", "gap", "", "news", "fomo", "revenge", "a", "b", "c", "d", "e", "f"))

	rawTrade := gopter.CombineGens(
		junkStrings, junkStrings, junkStrings, junkNumbers, junkNumbers, tagLists,
	).Map(func(vals []interface{}) *models.Trade {
		return &models.Trade{
			Symbol:     " AAPL ",
			Currency:   "usd",
			Direction:  models.Direction(vals[0].(string)),
			TradeType:  models.TradeType(vals[1].(string)),
			AssetClass: models.AssetClass(vals[2].(string)),
			Fees:       vals[3].(float64),
			Slippage:   vals[4].(float64),
			SetupTags:  vals[5].([]string),
			Entry:      100,
			Stop:       95,
		}
	})

	n := Normalizer{BaseCurrency: "GBP"}

	properties.Property("normalize is idempotent", prop.ForAll(
		func(raw *models.Trade) bool {
			n.Normalize(raw)
			once := *raw
			onceTags := append([]string(nil), raw.SetupTags...)

			defaulted := n.Normalize(raw)
			if len(defaulted) != 0 {
				return false
			}
			if once.Direction != raw.Direction ||
				once.TradeType != raw.TradeType ||
				once.AssetClass != raw.AssetClass ||
				once.Fees != raw.Fees ||
				once.Slippage != raw.Slippage ||
				once.Currency != raw.Currency {
				return false
			}
			if len(onceTags) != len(raw.SetupTags) {
				return false
			}
			for i := range onceTags {
				if onceTags[i] != raw.SetupTags[i] {
					return false
				}
			}
			return true
		},
		rawTrade,
	))

	properties.TestingRun(t)
}

// Property: for all valid (entry, stop, direction), Open either returns a
// trade whose stop ordering matches the direction or rejects the input.
func TestProperty_OpenEnforcesStopOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	rates := fx.NewRateTable("GBP", map[string]float64{"USD": 1.25})

	properties.Property("opened trades satisfy the direction invariant", prop.ForAll(
		func(entry, stop float64, short bool) bool {
			direction := "long"
			if short {
				direction = "short"
			}
			one := 1.0
			trade, err := Open(OpenInput{
				Symbol: "AAPL", Currency: "USD",
				Entry: entry, Stop: stop, Direction: direction,
				RiskPct: &one,
			}, 10000, rates, time.Now())

			if err != nil {
				return true // rejection is a valid outcome
			}
			if short {
				return trade.Stop > trade.Entry
			}
			return trade.Stop < trade.Entry
		},
		gen.Float64Range(0.01, 1000),
		gen.Float64Range(0.01, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestNormalizeTagDedupAndCap(t *testing.T) {
	n := Normalizer{BaseCurrency: "GBP"}
	trade := &models.Trade{
		Currency:  "GBP",
		Direction: models.Long,
		SetupTags: []string{"gap", "gap", "", "breakout", "gap", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
	}
	n.Normalize(trade)

	assert.Len(t, trade.SetupTags, models.MaxTags)
	assert.Equal(t, "gap", trade.SetupTags[0])
	assert.Equal(t, "breakout", trade.SetupTags[1])
	assert.NotContains(t, trade.SetupTags[2:], "gap")
}

func TestNormalizeDefaultsReported(t *testing.T) {
	n := Normalizer{BaseCurrency: "GBP"}
	trade := &models.Trade{
		Direction:  "sideways",
		TradeType:  "yolo",
		AssetClass: "stocks",
		Fees:       -3,
	}
	defaulted := n.Normalize(trade)

	assert.Contains(t, defaulted, "direction")
	assert.Contains(t, defaulted, "tradeType")
	assert.Contains(t, defaulted, "fees")
	assert.Contains(t, defaulted, "currency")
	assert.NotContains(t, defaulted, "assetClass", "valid values are not reported as defaulted")

	assert.Equal(t, models.TradeDay, trade.TradeType)
	assert.Equal(t, models.Long, trade.Direction)
	assert.Equal(t, 0.0, trade.Fees)
	assert.Equal(t, "GBP", trade.Currency)
}
