// Package server exposes the aggregated stores over HTTP. Paths mirror the
// public API: exchanges are addressed by MIC, instants by RFC 3339
// timestamps, currencies by ISO code.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/money"
	"github.com/samjmck/opnfn/internal/store"
)

// ClosingResolver resolves the most recent closing price at or before an
// instant.
type ClosingResolver interface {
	GetAtClose(ctx context.Context, ex exchange.Exchange, ticker string, t time.Time, adjusted bool) (time.Time, money.Money, error)
}

// FXClosingResolver resolves the most recent closing rate at or before an
// instant.
type FXClosingResolver interface {
	GetRateAtClose(ctx context.Context, from, to money.Currency, t time.Time) (time.Time, float64, error)
}

// Stores collects the capabilities the HTTP surface is built on. Each field
// is the fully decorated stack (aggregation, adjustment, caching) for that
// capability.
type Stores struct {
	Spot         store.SpotStore
	Historical   store.HistoricalStore
	Closing      ClosingResolver
	Splits       store.SplitStore
	FX           store.FXStore
	HistoricalFX store.HistoricalFXStore
	FXClosing    FXClosingResolver
	Search       store.SearchStore
	Profiles     store.ProfileStore
}

type Server struct {
	stores Stores
	log    zerolog.Logger
	mux    *http.ServeMux
}

func New(stores Stores, log zerolog.Logger) *Server {
	s := &Server{stores: stores, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	s.mux.HandleFunc("GET /prices/exchange/{mic}/ticker/{ticker}/latest", s.handleLatestPrice)
	s.mux.HandleFunc("GET /prices/exchange/{mic}/ticker/{ticker}/period/start/{start}/end/{end}", s.handleHistoricalPrices)
	s.mux.HandleFunc("GET /prices/exchange/{mic}/ticker/{ticker}/close/time/{time}", s.handleClosePrice)
	s.mux.HandleFunc("GET /fx/from/{from}/to/{to}/latest", s.handleLatestRate)
	s.mux.HandleFunc("GET /fx/from/{from}/to/{to}/period/start/{start}/end/{end}", s.handleHistoricalRates)
	s.mux.HandleFunc("GET /fx/from/{from}/to/{to}/close/time/{time}", s.handleCloseRate)
	s.mux.HandleFunc("GET /stock_splits/exchange/{mic}/ticker/{ticker}/start/{start}/end/{end}", s.handleSplits)
	s.mux.HandleFunc("GET /search", s.handleSearch)
	s.mux.HandleFunc("GET /profiles/isin/{isin}", s.handleProfile)
}

// Handler wraps the mux with the shared middleware chain.
func (s *Server) Handler() http.Handler {
	return withJSONHeaders(withGzip(s.recoverPanic(limitBody(s.mux))))
}

// amountValue renders a minor-unit amount either as the raw integer or as a
// major-unit float, depending on the useIntegers query parameter. Division
// by 100 happens here and nowhere else.
func amountValue(amount int64, integers bool) any {
	if integers {
		return amount
	}
	return float64(amount) / 100
}

type priceResponse struct {
	Currency money.Currency `json:"currency"`
	Amount   any            `json:"amount"`
}

type closeResponse struct {
	Time     string         `json:"time"`
	Currency money.Currency `json:"currency"`
	Amount   any            `json:"amount"`
}

type barJSON struct {
	Time  string `json:"time"`
	Open  any    `json:"open"`
	High  any    `json:"high"`
	Low   any    `json:"low"`
	Close any    `json:"close"`
}

type historicalPricesResponse struct {
	Currency money.Currency `json:"currency"`
	Prices   []barJSON      `json:"prices"`
}

type rateResponse struct {
	ExchangeRate float64 `json:"exchangeRate"`
}

type rateBarJSON struct {
	Time  string  `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type historicalRatesResponse struct {
	ExchangeRates []rateBarJSON `json:"exchangeRates"`
}

type closeRateResponse struct {
	Time string  `json:"time"`
	Rate float64 `json:"rate"`
}

type splitJSON struct {
	Time        string `json:"time"`
	Numerator   int    `json:"numerator"`
	Denominator int    `json:"denominator"`
}

func (s *Server) handleLatestPrice(w http.ResponseWriter, r *http.Request) {
	ex, ticker, ok := s.pathSecurity(w, r)
	if !ok {
		return
	}
	m, err := s.stores.Spot.GetSpot(r.Context(), ex, ticker)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, priceResponse{Currency: m.Currency, Amount: amountValue(m.Amount, useIntegers(r))})
}

func (s *Server) handleHistoricalPrices(w http.ResponseWriter, r *http.Request) {
	ex, ticker, ok := s.pathSecurity(w, r)
	if !ok {
		return
	}
	start, end, ok := s.pathWindow(w, r)
	if !ok {
		return
	}
	integers := useIntegers(r)
	history, err := s.stores.Historical.GetHistorical(r.Context(), ex, ticker, start, end, adjustedForSplits(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	prices := make([]barJSON, 0, len(history.Series))
	for _, bar := range history.Series {
		prices = append(prices, barJSON{
			Time:  bar.Time.UTC().Format(time.RFC3339),
			Open:  amountValue(bar.Open, integers),
			High:  amountValue(bar.High, integers),
			Low:   amountValue(bar.Low, integers),
			Close: amountValue(bar.Close, integers),
		})
	}
	writeJSON(w, historicalPricesResponse{Currency: history.Currency, Prices: prices})
}

func (s *Server) handleClosePrice(w http.ResponseWriter, r *http.Request) {
	ex, ticker, ok := s.pathSecurity(w, r)
	if !ok {
		return
	}
	t, ok := s.pathTime(w, r, "time")
	if !ok {
		return
	}
	when, m, err := s.stores.Closing.GetAtClose(r.Context(), ex, ticker, t, adjustedForSplits(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, closeResponse{
		Time:     when.UTC().Format(time.RFC3339),
		Currency: m.Currency,
		Amount:   amountValue(m.Amount, useIntegers(r)),
	})
}

func (s *Server) handleLatestRate(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.pathPair(w, r)
	if !ok {
		return
	}
	rate, err := s.stores.FX.GetRate(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, rateResponse{ExchangeRate: rate})
}

func (s *Server) handleHistoricalRates(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.pathPair(w, r)
	if !ok {
		return
	}
	start, end, ok := s.pathWindow(w, r)
	if !ok {
		return
	}
	series, err := s.stores.HistoricalFX.GetHistoricalRate(r.Context(), from, to, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rates := make([]rateBarJSON, 0, len(series))
	for _, bar := range series {
		rates = append(rates, rateBarJSON{
			Time:  bar.Time.UTC().Format(time.RFC3339),
			Open:  bar.Open,
			High:  bar.High,
			Low:   bar.Low,
			Close: bar.Close,
		})
	}
	writeJSON(w, historicalRatesResponse{ExchangeRates: rates})
}

func (s *Server) handleCloseRate(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.pathPair(w, r)
	if !ok {
		return
	}
	t, ok := s.pathTime(w, r, "time")
	if !ok {
		return
	}
	when, rate, err := s.stores.FXClosing.GetRateAtClose(r.Context(), from, to, t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, closeRateResponse{Time: when.UTC().Format(time.RFC3339), Rate: rate})
}

func (s *Server) handleSplits(w http.ResponseWriter, r *http.Request) {
	ex, ticker, ok := s.pathSecurity(w, r)
	if !ok {
		return
	}
	start, end, ok := s.pathWindow(w, r)
	if !ok {
		return
	}
	splits, err := s.stores.Splits.GetSplits(r.Context(), ex, ticker, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]splitJSON, 0, len(splits))
	for _, sp := range splits {
		out = append(out, splitJSON{
			Time:        sp.Time.UTC().Format(time.RFC3339),
			Numerator:   sp.Numerator,
			Denominator: sp.Denominator,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("query"))
	if term == "" {
		s.writeValidation(w, "missing query parameter")
		return
	}
	results, err := s.stores.Search.Search(r.Context(), term)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	writeJSON(w, results)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	isin := r.PathValue("isin")
	if isin == "" {
		s.writeValidation(w, "missing isin")
		return
	}
	profile, err := s.stores.Profiles.GetProfile(r.Context(), isin)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, profile)
}

// pathSecurity resolves the {mic} and {ticker} path segments.
func (s *Server) pathSecurity(w http.ResponseWriter, r *http.Request) (exchange.Exchange, string, bool) {
	ex, err := exchange.FromMIC(r.PathValue("mic"))
	if err != nil {
		s.writeValidation(w, err.Error())
		return 0, "", false
	}
	ticker := r.PathValue("ticker")
	if ticker == "" {
		s.writeValidation(w, "missing ticker")
		return 0, "", false
	}
	return ex, ticker, true
}

// pathPair resolves the {from} and {to} currency path segments.
func (s *Server) pathPair(w http.ResponseWriter, r *http.Request) (money.Currency, money.Currency, bool) {
	from, err := money.ParseCurrency(r.PathValue("from"))
	if err != nil {
		s.writeValidation(w, err.Error())
		return "", "", false
	}
	to, err := money.ParseCurrency(r.PathValue("to"))
	if err != nil {
		s.writeValidation(w, err.Error())
		return "", "", false
	}
	return from, to, true
}

// pathWindow resolves the {start} and {end} timestamp path segments.
func (s *Server) pathWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	start, ok := s.pathTime(w, r, "start")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok := s.pathTime(w, r, "end")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) {
		s.writeValidation(w, "end before start")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (s *Server) pathTime(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.PathValue(name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.writeValidation(w, "invalid "+name+" timestamp, want RFC 3339")
		return time.Time{}, false
	}
	return t, true
}

// adjustedForSplits defaults to true when the parameter is absent.
func adjustedForSplits(r *http.Request) bool {
	return r.URL.Query().Get("adjustedForSplits") != "false"
}

// useIntegers defaults to false: amounts come back in major units unless
// the caller asks for raw minor units.
func useIntegers(r *http.Request) bool {
	return r.URL.Query().Get("useIntegers") == "true"
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeValidation(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var allFailed *store.AllProvidersFailedError
	var noDay *store.NoTradingDayFoundError
	var unknownEx *exchange.UnknownExchangeError
	var unknownCur *money.UnknownCurrencyError
	switch {
	case errors.As(err, &allFailed):
		status = http.StatusBadGateway
	case errors.As(err, &noDay):
		status = http.StatusNotFound
	case errors.As(err, &unknownEx), errors.As(err, &unknownCur):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		s.log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
