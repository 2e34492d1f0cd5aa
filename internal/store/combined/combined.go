// Package combined presents an ordered list of upstream sources behind each
// capability interface, retrying across providers and across passes.
package combined

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/money"
	"github.com/samjmck/opnfn/internal/store"
)

// DefaultMaxPasses is the number of full sweeps over the provider list
// before giving up.
const DefaultMaxPasses = 2

type options struct {
	maxPasses int
	log       zerolog.Logger
}

type Option func(*options)

// WithMaxPasses overrides the number of sweeps over the provider list.
func WithMaxPasses(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPasses = n
		}
	}
}

// WithLogger attaches a logger for per-provider failure reporting.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(opts []Option) options {
	o := options{maxPasses: DefaultMaxPasses, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// sweep tries every provider in order, up to maxPasses times over the whole
// list. The first success wins. Each provider is called at most once per
// pass, bounding external calls to maxPasses x len(providers). A cancelled
// context abandons the sweep immediately.
func sweep[P store.Named, R any](ctx context.Context, o options, providers []P, op, key string, call func(context.Context, P) (R, error)) (R, error) {
	var zero R
	var errs []error
	for pass := 0; pass < o.maxPasses; pass++ {
		for _, p := range providers {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			res, err := call(ctx, p)
			if err == nil {
				return res, nil
			}
			o.log.Warn().Str("provider", p.Name()).Str("op", op).Str("key", key).Int("pass", pass+1).Err(err).Msg("provider failed, trying next")
			errs = append(errs, &store.ProviderError{Provider: p.Name(), Op: op, Cause: err})
		}
	}
	return zero, &store.AllProvidersFailedError{Op: op, Key: key, Errs: errs}
}

func tickerKey(ex exchange.Exchange, ticker string) string {
	return fmt.Sprintf("%s:%s", ex.MIC(), ticker)
}

func pairKey(from, to money.Currency) string {
	return fmt.Sprintf("%s/%s", from, to)
}

// SpotSource is a named upstream that can serve current prices.
type SpotSource interface {
	store.Named
	store.SpotStore
}

// SpotStore fails over across an ordered list of spot sources.
type SpotStore struct {
	providers []SpotSource
	opts      options
}

func NewSpotStore(providers []SpotSource, opts ...Option) *SpotStore {
	return &SpotStore{providers: providers, opts: buildOptions(opts)}
}

func (s *SpotStore) GetSpot(ctx context.Context, ex exchange.Exchange, ticker string) (money.Money, error) {
	return sweep(ctx, s.opts, s.providers, "spot", tickerKey(ex, ticker), func(ctx context.Context, p SpotSource) (money.Money, error) {
		return p.GetSpot(ctx, ex, ticker)
	})
}

// HistoricalSource is a named upstream that can serve daily bar series.
type HistoricalSource interface {
	store.Named
	store.HistoricalStore
}

// HistoricalStore fails over across an ordered list of historical sources.
type HistoricalStore struct {
	providers []HistoricalSource
	opts      options
}

func NewHistoricalStore(providers []HistoricalSource, opts ...Option) *HistoricalStore {
	return &HistoricalStore{providers: providers, opts: buildOptions(opts)}
}

func (s *HistoricalStore) GetHistorical(ctx context.Context, ex exchange.Exchange, ticker string, start, end time.Time, adjusted bool) (store.PriceHistory, error) {
	return sweep(ctx, s.opts, s.providers, "historical", tickerKey(ex, ticker), func(ctx context.Context, p HistoricalSource) (store.PriceHistory, error) {
		return p.GetHistorical(ctx, ex, ticker, start, end, adjusted)
	})
}

// SplitSource is a named upstream that can serve stock splits.
type SplitSource interface {
	store.Named
	store.SplitStore
}

// SplitStore fails over across an ordered list of split sources.
type SplitStore struct {
	providers []SplitSource
	opts      options
}

func NewSplitStore(providers []SplitSource, opts ...Option) *SplitStore {
	return &SplitStore{providers: providers, opts: buildOptions(opts)}
}

func (s *SplitStore) GetSplits(ctx context.Context, ex exchange.Exchange, ticker string, start, end time.Time) ([]store.Split, error) {
	return sweep(ctx, s.opts, s.providers, "splits", tickerKey(ex, ticker), func(ctx context.Context, p SplitSource) ([]store.Split, error) {
		return p.GetSplits(ctx, ex, ticker, start, end)
	})
}

// FXSource is a named upstream that can serve current exchange rates.
type FXSource interface {
	store.Named
	store.FXStore
}

// FXStore fails over across an ordered list of FX sources. The GBX pence
// correction is applied here so every upstream is looked up in major units.
type FXStore struct {
	providers []FXSource
	opts      options
}

func NewFXStore(providers []FXSource, opts ...Option) *FXStore {
	return &FXStore{providers: providers, opts: buildOptions(opts)}
}

func (s *FXStore) GetRate(ctx context.Context, from, to money.Currency) (float64, error) {
	base, quote, multiplier := money.NormalizeFXPair(from, to)
	rate, err := sweep(ctx, s.opts, s.providers, "fx", pairKey(from, to), func(ctx context.Context, p FXSource) (float64, error) {
		return p.GetRate(ctx, base, quote)
	})
	if err != nil {
		return 0, err
	}
	return rate * multiplier, nil
}

// HistoricalFXSource is a named upstream that can serve historical rates.
type HistoricalFXSource interface {
	store.Named
	store.HistoricalFXStore
}

// HistoricalFXStore fails over across historical FX sources, applying the
// same GBX correction to every bar of the series.
type HistoricalFXStore struct {
	providers []HistoricalFXSource
	opts      options
}

func NewHistoricalFXStore(providers []HistoricalFXSource, opts ...Option) *HistoricalFXStore {
	return &HistoricalFXStore{providers: providers, opts: buildOptions(opts)}
}

func (s *HistoricalFXStore) GetHistoricalRate(ctx context.Context, from, to money.Currency, start, end time.Time) (money.RateSeries, error) {
	base, quote, multiplier := money.NormalizeFXPair(from, to)
	series, err := sweep(ctx, s.opts, s.providers, "historical_fx", pairKey(from, to), func(ctx context.Context, p HistoricalFXSource) (money.RateSeries, error) {
		return p.GetHistoricalRate(ctx, base, quote, start, end)
	})
	if err != nil {
		return nil, err
	}
	if multiplier == 1 {
		return series, nil
	}
	out := make(money.RateSeries, len(series))
	for i, b := range series {
		out[i] = money.RateBar{
			Time:  b.Time,
			Open:  b.Open * multiplier,
			High:  b.High * multiplier,
			Low:   b.Low * multiplier,
			Close: b.Close * multiplier,
		}
	}
	return out, nil
}

// SearchSource is a named upstream that can search securities.
type SearchSource interface {
	store.Named
	store.SearchStore
}

// SearchStore fails over across an ordered list of search sources.
type SearchStore struct {
	providers []SearchSource
	opts      options
}

func NewSearchStore(providers []SearchSource, opts ...Option) *SearchStore {
	return &SearchStore{providers: providers, opts: buildOptions(opts)}
}

func (s *SearchStore) Search(ctx context.Context, term string) ([]store.SearchResult, error) {
	return sweep(ctx, s.opts, s.providers, "search", term, func(ctx context.Context, p SearchSource) ([]store.SearchResult, error) {
		return p.Search(ctx, term)
	})
}

// ProfileSource is a named upstream that can serve security profiles.
type ProfileSource interface {
	store.Named
	store.ProfileStore
}

// ProfileStore fails over across an ordered list of profile sources.
type ProfileStore struct {
	providers []ProfileSource
	opts      options
}

func NewProfileStore(providers []ProfileSource, opts ...Option) *ProfileStore {
	return &ProfileStore{providers: providers, opts: buildOptions(opts)}
}

func (s *ProfileStore) GetProfile(ctx context.Context, identifier string) (store.Profile, error) {
	return sweep(ctx, s.opts, s.providers, "profile", identifier, func(ctx context.Context, p ProfileSource) (store.Profile, error) {
		return p.GetProfile(ctx, identifier)
	})
}
