// Package closing resolves an arbitrary requested instant to the bar of the
// most recent trading day at or before it, skipping weekends and holidays.
package closing

import (
	"context"
	"time"

	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/money"
	"github.com/samjmck/opnfn/internal/store"
)

// DefaultLookback is wide enough to always contain at least one trading day
// across weekends and multi-day holiday runs.
const DefaultLookback = 21 * 24 * time.Hour

// Resolver finds closing prices at arbitrary instants using a historical
// bar source.
type Resolver struct {
	Historical store.HistoricalStore
	Lookback   time.Duration
}

func NewResolver(historical store.HistoricalStore) *Resolver {
	return &Resolver{Historical: historical, Lookback: DefaultLookback}
}

// GetAtClose returns the close of the most recent trading day at or before
// t together with that day's actual timestamp, so callers can tell when the
// answer came from an earlier day.
func (r *Resolver) GetAtClose(ctx context.Context, ex exchange.Exchange, ticker string, t time.Time, adjusted bool) (time.Time, money.Money, error) {
	lookback := r.lookback()
	hist, err := r.Historical.GetHistorical(ctx, ex, ticker, t.Add(-lookback), t, adjusted)
	if err != nil {
		return time.Time{}, money.Money{}, err
	}
	for i := len(hist.Series) - 1; i >= 0; i-- {
		bar := hist.Series[i]
		if !bar.Time.After(t) {
			return bar.Time, money.Money{Currency: hist.Currency, Amount: bar.Close}, nil
		}
	}
	return time.Time{}, money.Money{}, &store.NoTradingDayFoundError{Time: t, Lookback: lookback}
}

func (r *Resolver) lookback() time.Duration {
	if r.Lookback > 0 {
		return r.Lookback
	}
	return DefaultLookback
}

// FXResolver finds exchange rates at arbitrary instants using a historical
// rate source.
type FXResolver struct {
	Historical store.HistoricalFXStore
	Lookback   time.Duration
}

func NewFXResolver(historical store.HistoricalFXStore) *FXResolver {
	return &FXResolver{Historical: historical, Lookback: DefaultLookback}
}

// GetRateAtClose returns the closing rate of the most recent trading day at
// or before t, paired with that day's timestamp.
func (r *FXResolver) GetRateAtClose(ctx context.Context, from, to money.Currency, t time.Time) (time.Time, float64, error) {
	lookback := r.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	series, err := r.Historical.GetHistoricalRate(ctx, from, to, t.Add(-lookback), t)
	if err != nil {
		return time.Time{}, 0, err
	}
	for i := len(series) - 1; i >= 0; i-- {
		if !series[i].Time.After(t) {
			return series[i].Time, series[i].Close, nil
		}
	}
	return time.Time{}, 0, &store.NoTradingDayFoundError{Time: t, Lookback: lookback}
}
