package adjust_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/money"
	"github.com/samjmck/opnfn/internal/store"
	"github.com/samjmck/opnfn/internal/store/adjust"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(t time.Time, close int64) money.Bar {
	return money.Bar{Time: t, OHLC: money.OHLC{Open: close, High: close, Low: close, Close: close}}
}

func TestAsTraded_NoSplitsIsIdentity(t *testing.T) {
	t.Parallel()

	series := money.Series{bar(day(2020, 8, 28), 12480), bar(day(2020, 8, 31), 12900)}
	got := adjust.AsTraded(series, nil)
	require.Equal(t, series, got)
}

func TestAsTraded_ReconstructsNominalPriceBeforeSplit(t *testing.T) {
	t.Parallel()

	// A 4:1 split on Aug 31: the provider reports Aug 28 in current-share
	// terms (124.80); as-traded it closed at 499.20.
	series := money.Series{
		bar(day(2020, 8, 28), 12480),
		bar(day(2020, 8, 31), 12900),
		bar(day(2020, 9, 1), 13400),
	}
	splits := []store.Split{{Time: day(2020, 8, 31), Numerator: 4, Denominator: 1}}

	got := adjust.AsTraded(series, splits)
	require.Equal(t, int64(49920), got[0].Close)
	// The split day itself already trades in new-share terms.
	require.Equal(t, int64(12900), got[1].Close)
	require.Equal(t, int64(13400), got[2].Close)
}

func TestAsTraded_SplitOnBarTimestampCountsAsOccurred(t *testing.T) {
	t.Parallel()

	split := day(2021, 6, 15)
	series := money.Series{bar(split.AddDate(0, 0, -1), 1000), bar(split, 1000)}
	splits := []store.Split{{Time: split, Numerator: 2, Denominator: 1}}

	got := adjust.AsTraded(series, splits)
	require.Equal(t, int64(2000), got[0].Close)
	require.Equal(t, int64(1000), got[1].Close)
}

func TestAsTraded_StacksMultipleSplits(t *testing.T) {
	t.Parallel()

	series := money.Series{
		bar(day(2019, 1, 2), 100),
		bar(day(2020, 1, 2), 100),
		bar(day(2021, 1, 2), 100),
	}
	splits := []store.Split{
		{Time: day(2019, 6, 1), Numerator: 2, Denominator: 1},
		{Time: day(2020, 6, 1), Numerator: 3, Denominator: 1},
	}

	got := adjust.AsTraded(series, splits)
	require.Equal(t, int64(600), got[0].Close, "before both splits: x2 x3")
	require.Equal(t, int64(300), got[1].Close, "between the splits: x3")
	require.Equal(t, int64(100), got[2].Close, "after both splits")
}

func TestAsTraded_ReverseSplitDividesDown(t *testing.T) {
	t.Parallel()

	series := money.Series{bar(day(2022, 3, 1), 9000), bar(day(2022, 4, 1), 9000)}
	splits := []store.Split{{Time: day(2022, 3, 15), Numerator: 1, Denominator: 10}}

	got := adjust.AsTraded(series, splits)
	require.Equal(t, int64(900), got[0].Close)
	require.Equal(t, int64(9000), got[1].Close)
}

// Re-multiplying every as-traded bar by the product of the splits still
// ahead of it must reproduce the provider values up to one minor unit of
// truncation error.
func TestAsTraded_RoundTripProperty(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	genSplits := gen.SliceOfN(3, gen.IntRange(0, 730)).Map(func(offsets []int) []store.Split {
		sort.Ints(offsets)
		base := day(2019, 1, 1)
		ratios := []struct{ n, d int }{{2, 1}, {4, 1}, {3, 2}}
		splits := make([]store.Split, 0, len(offsets))
		for i, off := range offsets {
			r := ratios[i%len(ratios)]
			splits = append(splits, store.Split{
				Time:        base.AddDate(0, 0, off),
				Numerator:   r.n,
				Denominator: r.d,
			})
		}
		return splits
	})

	genSeries := gen.SliceOfN(20, gen.Int64Range(1, 10_000_000)).Map(func(closes []int64) money.Series {
		base := day(2019, 1, 1)
		series := make(money.Series, 0, len(closes))
		for i, c := range closes {
			series = append(series, bar(base.AddDate(0, 0, i*40), c))
		}
		return series
	})

	properties := gopter.NewProperties(parameters)
	properties.Property("re-applying pending splits recovers provider values", prop.ForAll(
		func(series money.Series, splits []store.Split) bool {
			asTraded := adjust.AsTraded(series, splits)
			for i, nominal := range asTraded {
				multiplier := decimal.NewFromInt(1)
				for _, s := range splits {
					if s.Time.After(series[i].Time) {
						multiplier = multiplier.Mul(s.Ratio())
					}
				}
				back := decimal.NewFromInt(nominal.Close).Div(multiplier).IntPart()
				diff := back - series[i].Close
				if diff < -1 || diff > 1 {
					return false
				}
			}
			return true
		},
		genSeries, genSplits,
	))
	properties.TestingRun(t)
}

type fakePrices struct {
	hist  store.PriceHistory
	calls int
}

func (f *fakePrices) GetHistorical(context.Context, exchange.Exchange, string, time.Time, time.Time, bool) (store.PriceHistory, error) {
	f.calls++
	return f.hist, nil
}

type fakeSplits struct {
	splits []store.Split
	err    error
	calls  int
}

func (f *fakeSplits) GetSplits(context.Context, exchange.Exchange, string, time.Time, time.Time) ([]store.Split, error) {
	f.calls++
	return f.splits, f.err
}

func TestGetHistorical_AdjustedSkipsSplitLookup(t *testing.T) {
	t.Parallel()

	prices := &fakePrices{hist: store.PriceHistory{Currency: money.USD, Series: money.Series{bar(day(2020, 8, 28), 12480)}}}
	splits := &fakeSplits{}
	s := adjust.NewHistoricalStore(prices, splits)

	hist, err := s.GetHistorical(t.Context(), exchange.Nasdaq, "AAPL", day(2020, 8, 1), day(2020, 9, 30), true)
	require.NoError(t, err)
	require.Equal(t, int64(12480), hist.Series[0].Close)
	require.Equal(t, 0, splits.calls)
}

func TestGetHistorical_UnadjustedReconstructs(t *testing.T) {
	t.Parallel()

	prices := &fakePrices{hist: store.PriceHistory{Currency: money.USD, Series: money.Series{bar(day(2020, 8, 28), 12480)}}}
	splits := &fakeSplits{splits: []store.Split{{Time: day(2020, 8, 31), Numerator: 4, Denominator: 1}}}
	s := adjust.NewHistoricalStore(prices, splits)
	s.Now = func() time.Time { return day(2020, 10, 1) }

	hist, err := s.GetHistorical(t.Context(), exchange.Nasdaq, "AAPL", day(2020, 8, 1), day(2020, 9, 30), false)
	require.NoError(t, err)
	require.Equal(t, int64(49920), hist.Series[0].Close)
	require.Equal(t, 1, splits.calls)
}

func TestGetHistorical_FutureStartSkipsSplitLookup(t *testing.T) {
	t.Parallel()

	prices := &fakePrices{hist: store.PriceHistory{Currency: money.USD, Series: money.Series{bar(day(2020, 10, 5), 12480)}}}
	splits := &fakeSplits{splits: []store.Split{{Time: day(2020, 8, 31), Numerator: 4, Denominator: 1}}}
	s := adjust.NewHistoricalStore(prices, splits)
	s.Now = func() time.Time { return day(2020, 10, 1) }

	// start == now: no split can fall in [start, now), so the raw series
	// passes through untouched and no lookup happens.
	hist, err := s.GetHistorical(t.Context(), exchange.Nasdaq, "AAPL", day(2020, 10, 1), day(2020, 10, 31), false)
	require.NoError(t, err)
	require.Equal(t, int64(12480), hist.Series[0].Close)
	require.Equal(t, 0, splits.calls)

	// The same holds for a start strictly after now.
	_, err = s.GetHistorical(t.Context(), exchange.Nasdaq, "AAPL", day(2020, 10, 2), day(2020, 10, 31), false)
	require.NoError(t, err)
	require.Equal(t, 0, splits.calls)
}

func TestGetHistorical_SplitLookupFailurePropagates(t *testing.T) {
	t.Parallel()

	prices := &fakePrices{hist: store.PriceHistory{Currency: money.USD}}
	splits := &fakeSplits{err: errors.New("splits unavailable")}
	s := adjust.NewHistoricalStore(prices, splits)
	s.Now = func() time.Time { return day(2020, 10, 1) }

	_, err := s.GetHistorical(t.Context(), exchange.Nasdaq, "AAPL", day(2020, 8, 1), day(2020, 9, 30), false)
	require.Error(t, err, "a missing split set must never be silently treated as no splits")
	require.Equal(t, 1, splits.calls)
}
