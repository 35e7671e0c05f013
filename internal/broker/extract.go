package broker

import (
	"encoding/json"
	"math"
	"strconv"
)

// Extractor pulls one numeric value out of a loosely-typed payload object.
// Brokers disagree about where numbers live (top-level, nested, stringly
// typed, wrapped in currency-tagged objects), so parsing is an explicit
// ordered list of extractors tried in sequence instead of ad-hoc probing.
type Extractor func(obj map[string]any) (float64, bool)

// FirstOf combines extractors with first-success-wins semantics.
func FirstOf(extractors ...Extractor) Extractor {
	return func(obj map[string]any) (float64, bool) {
		for _, ex := range extractors {
			if v, ok := ex(obj); ok {
				return v, true
			}
		}
		return 0, false
	}
}

// Field extracts the first of the named top-level keys that coerces to a
// finite number.
func Field(names ...string) Extractor {
	return func(obj map[string]any) (float64, bool) {
		for _, name := range names {
			if raw, ok := obj[name]; ok {
				if v, ok := asNumber(raw); ok {
					return v, true
				}
			}
		}
		return 0, false
	}
}

// Nested extracts a number at the given key path.
func Nested(path ...string) Extractor {
	return func(obj map[string]any) (float64, bool) {
		var cur any = obj
		for _, key := range path {
			m, ok := cur.(map[string]any)
			if !ok {
				return 0, false
			}
			cur, ok = m[key]
			if !ok {
				return 0, false
			}
		}
		return asNumber(cur)
	}
}

// asNumber coerces a raw JSON value to a finite float64. Accepts numbers,
// numeric strings, json.Number, and currency-tagged objects carrying a
// "value" or "amount" key.
func asNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case map[string]any:
		if inner, ok := v["value"]; ok {
			return asNumber(inner)
		}
		if inner, ok := v["amount"]; ok {
			return asNumber(inner)
		}
	}
	return 0, false
}

// asString coerces a raw JSON value to a string, tolerating numbers.
func asString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// StringField returns the first of the named keys as a string.
func StringField(obj map[string]any, names ...string) string {
	for _, name := range names {
		if raw, ok := obj[name]; ok {
			if s := asString(raw); s != "" {
				return s
			}
		}
	}
	return ""
}

// portfolioValue is the extractor chain for an account's total value.
// Precedence follows what the brokers actually send: Trading212 nests the
// total under cash, older payloads carry it top-level under varying names.
var portfolioValue = FirstOf(
	Field("total"),
	Nested("cash", "total"),
	Field("portfolioValue", "totalValue", "equity"),
	Nested("account", "total"),
)

// positionQuantity tolerates the quantity key renames seen across payload
// versions.
var positionQuantity = FirstOf(
	Field("quantity"),
	Field("qty", "units", "shares"),
)

// positionPrice extracts an average/current price field.
func positionPrice(names ...string) Extractor {
	return FirstOf(Field(names...))
}
