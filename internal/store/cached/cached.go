// Package cached applies the response-cache policy in front of the
// aggregation layer. Live spot prices and live FX rates are deliberately
// not wrapped: they change continuously and are always recomputed.
package cached

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/samjmck/opnfn/internal/cache"
	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/money"
	"github.com/samjmck/opnfn/internal/store"
)

// lookup collapses concurrent lookups for one key into a single cache read
// plus at most one computation. A cancelled request never writes a cache
// entry. cacheable decides whether a fresh result may be persisted; ttl <= 0
// stores it indefinitely.
func lookup[T any](ctx context.Context, c cache.Cache, g *singleflight.Group, key string, ttl time.Duration, cacheable func(T) bool, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err, _ := g.Do(key, func() (any, error) {
		if b, ok, err := c.Get(ctx, key); err == nil && ok {
			var out T
			if err := json.Unmarshal(b, &out); err == nil {
				return out, nil
			}
			// A corrupt entry falls through to recompute.
		}
		out, err := fetch(ctx)
		if err != nil {
			return zero, err
		}
		if ctx.Err() == nil && (cacheable == nil || cacheable(out)) {
			if b, err := json.Marshal(out); err == nil {
				_ = c.Put(ctx, key, b, ttl)
			}
		}
		return out, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// startOfDay truncates t to midnight UTC.
func startOfDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// HistoricalStore caches closed historical windows indefinitely. Windows
// that reach into the current day still contain a live bar and are passed
// through uncached.
type HistoricalStore struct {
	Inner store.HistoricalStore
	Cache cache.Cache
	Now   func() time.Time

	group singleflight.Group
}

func NewHistoricalStore(inner store.HistoricalStore, c cache.Cache) *HistoricalStore {
	return &HistoricalStore{Inner: inner, Cache: c, Now: time.Now}
}

func (s *HistoricalStore) GetHistorical(ctx context.Context, ex exchange.Exchange, ticker string, start, end time.Time, adjusted bool) (store.PriceHistory, error) {
	if !end.Before(startOfDay(s.Now())) {
		return s.Inner.GetHistorical(ctx, ex, ticker, start, end, adjusted)
	}
	key := cache.KeyRecord{
		Op:       "historical",
		MIC:      ex.MIC(),
		Ticker:   ticker,
		Start:    start.UTC().Format(time.RFC3339),
		End:      end.UTC().Format(time.RFC3339),
		Adjusted: &adjusted,
	}.String()
	return lookup(ctx, s.Cache, &s.group, key, cache.TTLIndefinite, nil, func(ctx context.Context) (store.PriceHistory, error) {
		return s.Inner.GetHistorical(ctx, ex, ticker, start, end, adjusted)
	})
}

// ClosingResolver is the closing-price capability this package wraps.
type ClosingResolver interface {
	GetAtClose(ctx context.Context, ex exchange.Exchange, ticker string, t time.Time, adjusted bool) (time.Time, money.Money, error)
}

type closePayload struct {
	Time     time.Time      `json:"time"`
	Currency money.Currency `json:"currency"`
	Amount   int64          `json:"amount"`
}

// Resolver caches closing prices at past instants indefinitely; closed
// trading history never changes.
type Resolver struct {
	Inner ClosingResolver
	Cache cache.Cache
	Now   func() time.Time

	group singleflight.Group
}

func NewResolver(inner ClosingResolver, c cache.Cache) *Resolver {
	return &Resolver{Inner: inner, Cache: c, Now: time.Now}
}

func (r *Resolver) GetAtClose(ctx context.Context, ex exchange.Exchange, ticker string, t time.Time, adjusted bool) (time.Time, money.Money, error) {
	if !t.Before(startOfDay(r.Now())) {
		return r.Inner.GetAtClose(ctx, ex, ticker, t, adjusted)
	}
	key := cache.KeyRecord{
		Op:       "close",
		MIC:      ex.MIC(),
		Ticker:   ticker,
		Time:     t.UTC().Format(time.RFC3339),
		Adjusted: &adjusted,
	}.String()
	p, err := lookup(ctx, r.Cache, &r.group, key, cache.TTLIndefinite, nil, func(ctx context.Context) (closePayload, error) {
		when, m, err := r.Inner.GetAtClose(ctx, ex, ticker, t, adjusted)
		if err != nil {
			return closePayload{}, err
		}
		return closePayload{Time: when, Currency: m.Currency, Amount: m.Amount}, nil
	})
	if err != nil {
		return time.Time{}, money.Money{}, err
	}
	return p.Time, money.Money{Currency: p.Currency, Amount: p.Amount}, nil
}

// FXClosingResolver is the FX closing-rate capability this package wraps.
type FXClosingResolver interface {
	GetRateAtClose(ctx context.Context, from, to money.Currency, t time.Time) (time.Time, float64, error)
}

type ratePayload struct {
	Time time.Time `json:"time"`
	Rate float64   `json:"rate"`
}

// FXResolver caches closing rates at past instants indefinitely.
type FXResolver struct {
	Inner FXClosingResolver
	Cache cache.Cache
	Now   func() time.Time

	group singleflight.Group
}

func NewFXResolver(inner FXClosingResolver, c cache.Cache) *FXResolver {
	return &FXResolver{Inner: inner, Cache: c, Now: time.Now}
}

func (r *FXResolver) GetRateAtClose(ctx context.Context, from, to money.Currency, t time.Time) (time.Time, float64, error) {
	if !t.Before(startOfDay(r.Now())) {
		return r.Inner.GetRateAtClose(ctx, from, to, t)
	}
	key := cache.KeyRecord{
		Op:   "close_fx",
		From: string(from),
		To:   string(to),
		Time: t.UTC().Format(time.RFC3339),
	}.String()
	p, err := lookup(ctx, r.Cache, &r.group, key, cache.TTLIndefinite, nil, func(ctx context.Context) (ratePayload, error) {
		when, rate, err := r.Inner.GetRateAtClose(ctx, from, to, t)
		if err != nil {
			return ratePayload{}, err
		}
		return ratePayload{Time: when, Rate: rate}, nil
	})
	if err != nil {
		return time.Time{}, 0, err
	}
	return p.Time, p.Rate, nil
}

// HistoricalFXStore caches closed historical rate windows indefinitely.
type HistoricalFXStore struct {
	Inner store.HistoricalFXStore
	Cache cache.Cache
	Now   func() time.Time

	group singleflight.Group
}

func NewHistoricalFXStore(inner store.HistoricalFXStore, c cache.Cache) *HistoricalFXStore {
	return &HistoricalFXStore{Inner: inner, Cache: c, Now: time.Now}
}

func (s *HistoricalFXStore) GetHistoricalRate(ctx context.Context, from, to money.Currency, start, end time.Time) (money.RateSeries, error) {
	if !end.Before(startOfDay(s.Now())) {
		return s.Inner.GetHistoricalRate(ctx, from, to, start, end)
	}
	key := cache.KeyRecord{
		Op:    "historical_fx",
		From:  string(from),
		To:    string(to),
		Start: start.UTC().Format(time.RFC3339),
		End:   end.UTC().Format(time.RFC3339),
	}.String()
	return lookup(ctx, s.Cache, &s.group, key, cache.TTLIndefinite, nil, func(ctx context.Context) (money.RateSeries, error) {
		return s.Inner.GetHistoricalRate(ctx, from, to, start, end)
	})
}

// SearchStore caches search results for a day, and only when the result set
// is non-empty: an empty result may be a transient upstream failure and the
// absence of a listing must stay recheckable.
type SearchStore struct {
	Inner store.SearchStore
	Cache cache.Cache

	group singleflight.Group
}

func NewSearchStore(inner store.SearchStore, c cache.Cache) *SearchStore {
	return &SearchStore{Inner: inner, Cache: c}
}

func (s *SearchStore) Search(ctx context.Context, term string) ([]store.SearchResult, error) {
	key := cache.KeyRecord{Op: "search", Term: term}.String()
	nonEmpty := func(results []store.SearchResult) bool { return len(results) > 0 }
	return lookup(ctx, s.Cache, &s.group, key, cache.TTLSearch, nonEmpty, func(ctx context.Context) ([]store.SearchResult, error) {
		return s.Inner.Search(ctx, term)
	})
}

// ProfileStore caches profiles with a long TTL; descriptive metadata
// changes rarely.
type ProfileStore struct {
	Inner store.ProfileStore
	Cache cache.Cache

	group singleflight.Group
}

func NewProfileStore(inner store.ProfileStore, c cache.Cache) *ProfileStore {
	return &ProfileStore{Inner: inner, Cache: c}
}

func (s *ProfileStore) GetProfile(ctx context.Context, identifier string) (store.Profile, error) {
	key := cache.KeyRecord{Op: "profile", ID: identifier}.String()
	return lookup(ctx, s.Cache, &s.group, key, cache.TTLProfile, nil, func(ctx context.Context) (store.Profile, error) {
		return s.Inner.GetProfile(ctx, identifier)
	})
}
