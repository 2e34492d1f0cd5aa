package alphavantage_test

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/money"
	"github.com/samjmck/opnfn/internal/store/alphavantage"
)

func newTestProvider(t *testing.T, body string, check func(req *http.Request)) *alphavantage.Provider {
	t.Helper()
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			if check != nil {
				check(req)
			}
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString(body))}, nil
		}).
		Times(1)
	client, err := alphavantage.NewClient("test", alphavantage.WithHTTPClient(httpClient))
	require.NoError(t, err)
	return alphavantage.NewProvider(alphavantage.Config{}, client)
}

func TestProvider_GetSpot_TruncatesAndDefaultsCurrency(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, `{"Global Quote":{"01. symbol":"AAPL","05. price":"172.1090"}}`, func(req *http.Request) {
		require.Equal(t, "AAPL", req.URL.Query().Get("symbol"))
	})

	m, err := p.GetSpot(t.Context(), exchange.Nasdaq, "AAPL")
	require.NoError(t, err)
	require.Equal(t, money.USD, m.Currency)
	require.Equal(t, int64(17210), m.Amount)
}

func TestProvider_GetSpot_LondonListingsQuoteInPence(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, `{"Global Quote":{"01. symbol":"SHEL.LON","05. price":"2810.00"}}`, func(req *http.Request) {
		require.Equal(t, "SHEL.LON", req.URL.Query().Get("symbol"))
	})

	m, err := p.GetSpot(t.Context(), exchange.LondonStockExchange, "SHEL")
	require.NoError(t, err)
	require.Equal(t, money.GBX, m.Currency)
	require.Equal(t, int64(281000), m.Amount)
}

func TestProvider_Search_MapsRegions(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, `{"bestMatches":[
		{"1. symbol":"AAPL","2. name":"Apple Inc.","4. region":"United States"},
		{"1. symbol":"","2. name":"ghost row","4. region":"United States"}
	]}`, nil)

	results, err := p.Search(t.Context(), "apple")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, exchange.NYSE, results[0].Exchange)
}
