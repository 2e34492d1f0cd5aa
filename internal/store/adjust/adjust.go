// Package adjust reconciles raw historical bar series against corporate
// stock splits.
//
// Upstream convention: the raw series a provider returns is already
// expressed in current-share terms, i.e. split-adjusted for every split up
// to now. Reconstructing as-traded nominal prices therefore means undoing
// that adjustment for bars that predate each split.
package adjust

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/money"
	"github.com/samjmck/opnfn/internal/store"
)

// AsTraded converts a provider-adjusted series into as-traded nominal
// prices. splits must be ascending by time. The multiplier starts as the
// product of all split ratios; once the walk passes a split's time the
// split no longer applies and the multiplier is divided back down. A split
// dated exactly on a bar counts as already occurred for that bar. Amounts
// are truncated to integer minor units.
func AsTraded(series money.Series, splits []store.Split) money.Series {
	multiplier := decimal.NewFromInt(1)
	for _, s := range splits {
		multiplier = multiplier.Mul(s.Ratio())
	}

	queue := splits
	out := make(money.Series, 0, len(series))
	one := decimal.NewFromInt(1)
	for _, bar := range series {
		for len(queue) > 0 && !queue[0].Time.After(bar.Time) {
			multiplier = multiplier.Div(queue[0].Ratio())
			queue = queue[1:]
		}
		if multiplier.Equal(one) {
			out = append(out, bar)
			continue
		}
		out = append(out, money.Bar{
			Time: bar.Time,
			OHLC: money.OHLC{
				Open:  scale(bar.Open, multiplier),
				High:  scale(bar.High, multiplier),
				Low:   scale(bar.Low, multiplier),
				Close: scale(bar.Close, multiplier),
			},
		})
	}
	return out
}

func scale(amount int64, multiplier decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(multiplier).IntPart()
}

// HistoricalStore serves bar series in either current-share or as-traded
// terms by combining a raw price source with a split source.
type HistoricalStore struct {
	Prices store.HistoricalStore
	Splits store.SplitStore

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewHistoricalStore(prices store.HistoricalStore, splits store.SplitStore) *HistoricalStore {
	return &HistoricalStore{Prices: prices, Splits: splits, Now: time.Now}
}

// GetHistorical returns the raw provider series untouched when adjusted is
// true. When adjusted is false it fetches the splits in [start, now) and
// reconstructs the nominal prices. A failed split lookup surfaces as an
// operation failure; it is never masked as an empty adjustment.
func (s *HistoricalStore) GetHistorical(ctx context.Context, ex exchange.Exchange, ticker string, start, end time.Time, adjusted bool) (store.PriceHistory, error) {
	hist, err := s.Prices.GetHistorical(ctx, ex, ticker, start, end, true)
	if err != nil {
		return store.PriceHistory{}, err
	}
	if adjusted {
		return hist, nil
	}
	now := s.now()
	if !start.Before(now) {
		// No split can be in range; the raw series is already nominal.
		return hist, nil
	}
	splits, err := s.Splits.GetSplits(ctx, ex, ticker, start, now)
	if err != nil {
		return store.PriceHistory{}, err
	}
	hist.Series = AsTraded(hist.Series, splits)
	return hist, nil
}

func (s *HistoricalStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
