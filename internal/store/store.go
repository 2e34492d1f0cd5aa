// Package store defines the capability contracts implemented by upstream
// market-data sources. Each upstream implements the subset it supports;
// consumers depend only on the capability they need.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/money"
)

// PriceHistory is a historical bar series together with its quote currency.
type PriceHistory struct {
	Currency money.Currency `json:"currency"`
	Series   money.Series   `json:"series"`
}

// Split is one corporate stock split: at Time every pre-split share became
// Numerator/Denominator shares. Numerator > Denominator for forward splits.
type Split struct {
	Time        time.Time `json:"time"`
	Numerator   int       `json:"numerator"`
	Denominator int       `json:"denominator"`
}

// Ratio returns the split factor as an exact decimal.
func (s Split) Ratio() decimal.Decimal {
	return decimal.NewFromInt(int64(s.Numerator)).Div(decimal.NewFromInt(int64(s.Denominator)))
}

// SearchResult describes one security matching a search term. Exchange
// serializes as its operating MIC.
type SearchResult struct {
	Name     string            `json:"name"`
	Ticker   string            `json:"ticker"`
	Exchange exchange.Exchange `json:"exchange"`
}

// Profile is descriptive security metadata keyed by an identifier such as
// an ISIN or ticker.
type Profile struct {
	Name         string `json:"name"`
	SecurityType string `json:"securityType"`
	Sector       string `json:"sector,omitempty"`
	Industry     string `json:"industry,omitempty"`
}

// Named identifies an upstream source for logging and error reporting.
type Named interface {
	Name() string
}

// SpotStore fetches the current price of a security.
type SpotStore interface {
	GetSpot(ctx context.Context, ex exchange.Exchange, ticker string) (money.Money, error)
}

// HistoricalStore fetches daily bars for [start, end]. When adjusted is
// true the series is expressed in current-share terms (the upstream
// default); when false it carries the as-traded nominal prices.
type HistoricalStore interface {
	GetHistorical(ctx context.Context, ex exchange.Exchange, ticker string, start, end time.Time, adjusted bool) (PriceHistory, error)
}

// SplitStore fetches stock splits with Time in [start, end), ascending.
type SplitStore interface {
	GetSplits(ctx context.Context, ex exchange.Exchange, ticker string, start, end time.Time) ([]Split, error)
}

// FXStore fetches the current exchange rate for a currency pair.
type FXStore interface {
	GetRate(ctx context.Context, from, to money.Currency) (float64, error)
}

// HistoricalFXStore fetches daily rate bars for [start, end].
type HistoricalFXStore interface {
	GetHistoricalRate(ctx context.Context, from, to money.Currency, start, end time.Time) (money.RateSeries, error)
}

// SearchStore finds securities by free-text term.
type SearchStore interface {
	Search(ctx context.Context, term string) ([]SearchResult, error)
}

// ProfileStore fetches descriptive metadata for a security identifier.
type ProfileStore interface {
	GetProfile(ctx context.Context, identifier string) (Profile, error)
}
