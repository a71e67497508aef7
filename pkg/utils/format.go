// Package utils provides shared utility functions.
package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// FormatMoney formats amount with two decimals, thousands separators and the
// currency symbol when one is known, e.g. "$1,234.50" or "1,234.50 CHF".
func FormatMoney(amount decimal.Decimal, currency string) string {
	negative := amount.IsNegative()
	s := groupThousands(amount.Abs().StringFixed(2))

	if sym, ok := currencySymbols[strings.ToUpper(currency)]; ok {
		s = sym + s
	} else if currency != "" {
		s = s + " " + strings.ToUpper(currency)
	}
	if negative {
		s = "-" + s
	}
	return s
}

// FormatAmount formats an asset amount without trailing zeros, keeping at
// most 8 decimals.
func FormatAmount(amount decimal.Decimal) string {
	s := amount.Round(8).String()
	intPart, frac, hasFrac := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = groupThousands(strings.TrimPrefix(intPart, "-"))
	if neg {
		intPart = "-" + intPart
	}
	if hasFrac {
		return intPart + "." + frac
	}
	return intPart
}

// FormatPnL formats P&L with an explicit sign.
func FormatPnL(pnl decimal.Decimal, currency string) string {
	formatted := FormatMoney(pnl, currency)
	if pnl.IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// groupThousands inserts commas into the integer part of a plain decimal string.
func groupThousands(s string) string {
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	n := len(intPart)
	for i, r := range intPart {
		if i > 0 && (n-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if hasFrac {
		return b.String() + "." + frac
	}
	return b.String()
}
