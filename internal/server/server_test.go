package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/money"
	"github.com/samjmck/opnfn/internal/server"
	"github.com/samjmck/opnfn/internal/store"
)

type stubSpot struct {
	m   money.Money
	err error
}

func (s stubSpot) GetSpot(context.Context, exchange.Exchange, string) (money.Money, error) {
	return s.m, s.err
}

type stubHistorical struct {
	hist store.PriceHistory
	err  error
}

func (s stubHistorical) GetHistorical(context.Context, exchange.Exchange, string, time.Time, time.Time, bool) (store.PriceHistory, error) {
	return s.hist, s.err
}

type stubClosing struct {
	when time.Time
	m    money.Money
	err  error
}

func (s stubClosing) GetAtClose(context.Context, exchange.Exchange, string, time.Time, bool) (time.Time, money.Money, error) {
	return s.when, s.m, s.err
}

type stubSplits struct {
	splits []store.Split
	err    error
}

func (s stubSplits) GetSplits(context.Context, exchange.Exchange, string, time.Time, time.Time) ([]store.Split, error) {
	return s.splits, s.err
}

type stubFX struct {
	rate float64
	err  error
}

func (s stubFX) GetRate(context.Context, money.Currency, money.Currency) (float64, error) {
	return s.rate, s.err
}

type stubHistoricalFX struct {
	series money.RateSeries
	err    error
}

func (s stubHistoricalFX) GetHistoricalRate(context.Context, money.Currency, money.Currency, time.Time, time.Time) (money.RateSeries, error) {
	return s.series, s.err
}

type stubFXClosing struct {
	when time.Time
	rate float64
	err  error
}

func (s stubFXClosing) GetRateAtClose(context.Context, money.Currency, money.Currency, time.Time) (time.Time, float64, error) {
	return s.when, s.rate, s.err
}

type stubSearch struct {
	results []store.SearchResult
	err     error
}

func (s stubSearch) Search(context.Context, string) ([]store.SearchResult, error) {
	return s.results, s.err
}

type stubProfiles struct {
	profile store.Profile
	err     error
}

func (s stubProfiles) GetProfile(context.Context, string) (store.Profile, error) {
	return s.profile, s.err
}

func newHandler(stores server.Stores) http.Handler {
	return server.New(stores, zerolog.Nop()).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestLatestPrice_MajorUnitsByDefault(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{Spot: stubSpot{m: money.Money{Currency: money.USD, Amount: 17210}}})
	rr := get(t, h, "/prices/exchange/XNAS/ticker/AAPL/latest")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Currency string  `json:"currency"`
		Amount   float64 `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "USD", resp.Currency)
	require.InDelta(t, 172.10, resp.Amount, 1e-9)
}

func TestLatestPrice_UseIntegers(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{Spot: stubSpot{m: money.Money{Currency: money.USD, Amount: 17210}}})
	rr := get(t, h, "/prices/exchange/XNAS/ticker/AAPL/latest?useIntegers=true")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Amount int64 `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, int64(17210), resp.Amount)
}

func TestLatestPrice_UnknownMIC(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{Spot: stubSpot{}})
	rr := get(t, h, "/prices/exchange/BOGUS/ticker/AAPL/latest")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestLatestPrice_AllProvidersFailed(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{Spot: stubSpot{err: &store.AllProvidersFailedError{Op: "spot", Key: "XNAS:AAPL"}}})
	rr := get(t, h, "/prices/exchange/XNAS/ticker/AAPL/latest")
	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestHistoricalPrices_ResponseShape(t *testing.T) {
	t.Parallel()

	day := time.Date(2020, 8, 28, 0, 0, 0, 0, time.UTC)
	h := newHandler(server.Stores{Historical: stubHistorical{hist: store.PriceHistory{
		Currency: money.USD,
		Series:   money.Series{{Time: day, OHLC: money.OHLC{Open: 50000, High: 50100, Low: 49800, Close: 49920}}},
	}}})
	rr := get(t, h, "/prices/exchange/XNAS/ticker/AAPL/period/start/2020-08-01T00:00:00Z/end/2020-08-31T00:00:00Z?useIntegers=true")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Currency string `json:"currency"`
		Prices   []struct {
			Time  string `json:"time"`
			Close int64  `json:"close"`
		} `json:"prices"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "USD", resp.Currency)
	require.Len(t, resp.Prices, 1)
	require.Equal(t, "2020-08-28T00:00:00Z", resp.Prices[0].Time)
	require.Equal(t, int64(49920), resp.Prices[0].Close)
}

func TestHistoricalPrices_EndBeforeStart(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{Historical: stubHistorical{}})
	rr := get(t, h, "/prices/exchange/XNAS/ticker/AAPL/period/start/2020-08-31T00:00:00Z/end/2020-08-01T00:00:00Z")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHistoricalPrices_BadTimestamp(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{Historical: stubHistorical{}})
	rr := get(t, h, "/prices/exchange/XNAS/ticker/AAPL/period/start/yesterday/end/2020-08-01T00:00:00Z")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestClosePrice_NoTradingDay(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{Closing: stubClosing{err: &store.NoTradingDayFoundError{
		Time:     time.Date(2023, 6, 3, 0, 0, 0, 0, time.UTC),
		Lookback: 21 * 24 * time.Hour,
	}}})
	rr := get(t, h, "/prices/exchange/XNYS/ticker/KO/close/time/2023-06-03T00:00:00Z")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestClosePrice_CarriesResolvedDay(t *testing.T) {
	t.Parallel()

	friday := time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC)
	h := newHandler(server.Stores{Closing: stubClosing{when: friday, m: money.Money{Currency: money.USD, Amount: 6123}}})
	rr := get(t, h, "/prices/exchange/XNYS/ticker/KO/close/time/2023-06-03T00:00:00Z")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Time     string  `json:"time"`
		Currency string  `json:"currency"`
		Amount   float64 `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "2023-06-02T00:00:00Z", resp.Time)
	require.InDelta(t, 61.23, resp.Amount, 1e-9)
}

func TestFXLatest(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{FX: stubFX{rate: 100.0}})
	rr := get(t, h, "/fx/from/GBX/to/GBP/latest")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		ExchangeRate float64 `json:"exchangeRate"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.InDelta(t, 100.0, resp.ExchangeRate, 1e-9)
}

func TestFXLatest_UnknownCurrency(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{FX: stubFX{}})
	rr := get(t, h, "/fx/from/XYZ/to/USD/latest")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestSplits_ResponseShape(t *testing.T) {
	t.Parallel()

	at := time.Date(2020, 8, 31, 0, 0, 0, 0, time.UTC)
	h := newHandler(server.Stores{Splits: stubSplits{splits: []store.Split{{Time: at, Numerator: 4, Denominator: 1}}}})
	rr := get(t, h, "/stock_splits/exchange/XNAS/ticker/AAPL/start/2020-01-01T00:00:00Z/end/2021-01-01T00:00:00Z")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp []struct {
		Time        string `json:"time"`
		Numerator   int    `json:"numerator"`
		Denominator int    `json:"denominator"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	require.Equal(t, "2020-08-31T00:00:00Z", resp[0].Time)
	require.Equal(t, 4, resp[0].Numerator)
}

func TestSearch_MissingQuery(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{Search: stubSearch{}})
	rr := get(t, h, "/search")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestSearch_ExchangeSerializedAsMIC(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{Search: stubSearch{results: []store.SearchResult{
		{Name: "Apple Inc.", Ticker: "AAPL", Exchange: exchange.Nasdaq},
	}}})
	rr := get(t, h, "/search?query=apple")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp []struct {
		Name     string `json:"name"`
		Ticker   string `json:"ticker"`
		Exchange string `json:"exchange"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	require.Equal(t, "XNAS", resp[0].Exchange)
}

func TestProfile(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{Profiles: stubProfiles{profile: store.Profile{Name: "Apple Inc.", SecurityType: "EQUITY", Sector: "Technology"}}})
	rr := get(t, h, "/profiles/isin/US0378331005")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp store.Profile
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "Apple Inc.", resp.Name)
	require.Equal(t, "EQUITY", resp.SecurityType)
}

func TestFXClose(t *testing.T) {
	t.Parallel()

	friday := time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC)
	h := newHandler(server.Stores{FXClosing: stubFXClosing{when: friday, rate: 1.07}})
	rr := get(t, h, "/fx/from/EUR/to/USD/close/time/2023-06-03T00:00:00Z")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Time string  `json:"time"`
		Rate float64 `json:"rate"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "2023-06-02T00:00:00Z", resp.Time)
	require.InDelta(t, 1.07, resp.Rate, 1e-9)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := newHandler(server.Stores{})
	rr := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHistoricalRates_ResponseShape(t *testing.T) {
	t.Parallel()

	day := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	h := newHandler(server.Stores{HistoricalFX: stubHistoricalFX{series: money.RateSeries{
		{Time: day, Open: 1.08, High: 1.09, Low: 1.07, Close: 1.085},
	}}})
	rr := get(t, h, "/fx/from/EUR/to/USD/period/start/2023-05-01T00:00:00Z/end/2023-05-31T00:00:00Z")

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		ExchangeRates []struct {
			Time  string  `json:"time"`
			Close float64 `json:"close"`
		} `json:"exchangeRates"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.ExchangeRates, 1)
	require.InDelta(t, 1.085, resp.ExchangeRates[0].Close, 1e-9)
}
