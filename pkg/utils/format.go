// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"
)

var currencySymbols = map[string]string{
	"GBP": "£",
	"USD": "$",
	"EUR": "€",
	"JPY": "¥",
}

// FormatMoney formats an amount with its currency symbol and thousands
// separators, falling back to the ISO code for currencies without a common
// symbol.
func FormatMoney(amount float64, currency string) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	formatted := groupThousands(parts[0]) + "." + parts[1]

	currency = strings.ToUpper(currency)
	if sym, ok := currencySymbols[currency]; ok {
		formatted = sym + formatted
	} else if currency != "" {
		formatted = currency + " " + formatted
	}
	if negative {
		formatted = "-" + formatted
	}
	return formatted
}

func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	result := s[n-3:]
	s = s[:n-3]
	for len(s) > 3 {
		result = s[len(s)-3:] + "," + result
		s = s[:len(s)-3]
	}
	return s + "," + result
}

// FormatPercent formats a percentage with an explicit sign.
func FormatPercent(value float64) string {
	if value > 0 {
		return fmt.Sprintf("+%.2f%%", value)
	}
	return fmt.Sprintf("%.2f%%", value)
}

// FormatRMultiple renders an R-multiple, or a dash when the trade carried
// no measurable risk.
func FormatRMultiple(r *float64) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2fR", *r)
}
