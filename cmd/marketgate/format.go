package main

import (
	"fmt"
	"math"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// formatPrice renders v as an amount in currency, e.g. "$1,234.56".
func formatPrice(v float64, currency string) string {
	if currency == "" {
		currency = money.USD
	}
	cur := money.GetCurrency(currency)
	if cur == nil {
		return decimal.NewFromFloat(v).StringFixed(2) + " " + currency
	}
	minor := decimal.NewFromFloat(v).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// formatChange renders a signed change with its percentage.
func formatChange(change, percent float64, currency string) string {
	sign := "+"
	if change < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%s (%s%.2f%%)", sign, formatPrice(math.Abs(change), currency), sign, math.Abs(percent))
}

// formatIndicator prints an optional indicator value.
func formatIndicator(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return decimal.NewFromFloat(*v).StringFixed(2)
}
