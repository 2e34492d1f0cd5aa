package money

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is an ISO-like currency code. GBX is the synthetic minor-unit
// currency for pence: 1 GBP = 100 GBX.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	GBX Currency = "GBX"
	CHF Currency = "CHF"
	DKK Currency = "DKK"
	SEK Currency = "SEK"
	NOK Currency = "NOK"
	CAD Currency = "CAD"
	JPY Currency = "JPY"
	HKD Currency = "HKD"
	PLN Currency = "PLN"
	CZK Currency = "CZK"
	HUF Currency = "HUF"
	TRY Currency = "TRY"
	KRW Currency = "KRW"
	TWD Currency = "TWD"
)

var known = map[Currency]struct{}{
	USD: {}, EUR: {}, GBP: {}, GBX: {}, CHF: {}, DKK: {}, SEK: {}, NOK: {},
	CAD: {}, JPY: {}, HKD: {}, PLN: {}, CZK: {}, HUF: {}, TRY: {}, KRW: {}, TWD: {},
}

// UnknownCurrencyError reports a currency code outside the supported set.
type UnknownCurrencyError struct {
	Code string
}

func (e *UnknownCurrencyError) Error() string {
	return fmt.Sprintf("unknown currency %q", e.Code)
}

// ParseCurrency validates a currency code. Yahoo reports pence as "GBp",
// which maps to GBX.
func ParseCurrency(code string) (Currency, error) {
	if code == "GBp" || code == "GBX" {
		return GBX, nil
	}
	c := Currency(code)
	if _, ok := known[c]; !ok {
		return "", &UnknownCurrencyError{Code: code}
	}
	return c, nil
}

// Money is an amount of minor units (cents, pence) of a currency. Amounts
// stay integral everywhere inside the core; division by 100 for display
// happens only at the response boundary.
type Money struct {
	Currency Currency `json:"currency"`
	Amount   int64    `json:"amount"`
}

// OHLC holds a trading period's prices in minor units.
type OHLC struct {
	Open  int64 `json:"open"`
	High  int64 `json:"high"`
	Low   int64 `json:"low"`
	Close int64 `json:"close"`
}

// Bar is an OHLC at a trading-day timestamp.
type Bar struct {
	Time time.Time `json:"time"`
	OHLC
}

// Series is a bar sequence strictly ascending by time with no duplicate
// timestamps.
type Series []Bar

// RateBar is an FX rate OHLC for one trading day. Rates are plain floats,
// not money.
type RateBar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// RateSeries is an ascending sequence of rate bars.
type RateSeries []RateBar

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a decimal price string like "499.203" to minor units,
// truncating anything below one minor unit: "499.203" -> 49920. Truncation,
// never rounding, is the convention for all currency amounts.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.Mul(hundred).IntPart(), nil
}

// AmountFromFloat converts a major-unit float to truncated minor units.
func AmountFromFloat(v float64) int64 {
	return decimal.NewFromFloat(v).Mul(hundred).IntPart()
}

// NormalizeFXPair substitutes GBX for GBP on either side of a conversion
// pair and returns the multiplier to apply to the upstream rate. GBX on the
// base side multiplies the rate by 100, GBX on the quote side by 0.01; both
// substitutions compose to 1.
func NormalizeFXPair(from, to Currency) (base, quote Currency, multiplier float64) {
	base, quote, multiplier = from, to, 1
	if base == GBX {
		base = GBP
		multiplier *= 100
	}
	if quote == GBX {
		quote = GBP
		multiplier *= 0.01
	}
	return base, quote, multiplier
}
