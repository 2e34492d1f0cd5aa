// Package yahoo implements every capability against the unofficial Yahoo
// Finance chart, search and quoteSummary endpoints.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/httpx"
	"github.com/samjmck/opnfn/internal/money"
	"github.com/samjmck/opnfn/internal/store"
)

type Config struct {
	Name    string
	BaseURL string // https://query1.finance.yahoo.com
}

type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "YahooFinance"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query1.finance.yahoo.com"
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

// suffix returns Yahoo's exchange suffix for a venue. American exchange
// suffixes don't work upstream; bare tickers do, so those stay empty.
func suffix(ex exchange.Exchange) string {
	switch ex {
	case exchange.EuronextBrussels:
		return "BR"
	case exchange.EuronextParis:
		return "PA"
	case exchange.EuronextAmsterdam:
		return "AS"
	case exchange.EuronextMilan, exchange.BorsaItaliana:
		return "MI"
	case exchange.SIXSwissExchange:
		return "SW"
	case exchange.Xetra:
		return "DE"
	case exchange.BorseFrankfurt:
		return "F"
	case exchange.LondonStockExchange:
		return "L"
	case exchange.NasdaqHelsinki:
		return "HE"
	case exchange.NasdaqStockholm:
		return "ST"
	case exchange.NasdaqCopenhagen:
		return "CO"
	case exchange.EuronextOslo:
		return "OL"
	case exchange.TorontoStockExchange:
		return "TO"
	case exchange.TaiwanStockExchange:
		return "TW"
	default:
		return ""
	}
}

func formatSymbol(ex exchange.Exchange, ticker string) string {
	if s := suffix(ex); s != "" {
		return ticker + "." + s
	}
	return ticker
}

func fxSymbol(from, to money.Currency) string {
	return fmt.Sprintf("%s%s=X", from, to)
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp []int64 `json:"timestamp"`
			Events    struct {
				Splits map[string]struct {
					Date        int64 `json:"date"`
					Numerator   int   `json:"numerator"`
					Denominator int   `json:"denominator"`
				} `json:"splits"`
			} `json:"events"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					High  []*float64 `json:"high"`
					Low   []*float64 `json:"low"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *Provider) getChart(ctx context.Context, symbol string, query url.Values) (*chartResponse, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s", p.cfg.BaseURL, url.PathEscape(symbol))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, fmt.Errorf("chart %s -> %d: %s", symbol, resp.StatusCode, string(b))
	}
	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("chart %s decode: %w", symbol, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("chart %s: %s: %s", symbol, chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart %s: empty result", symbol)
	}
	return &chart, nil
}

func (p *Provider) GetSpot(ctx context.Context, ex exchange.Exchange, ticker string) (money.Money, error) {
	chart, err := p.getChart(ctx, formatSymbol(ex, ticker), nil)
	if err != nil {
		return money.Money{}, err
	}
	meta := chart.Chart.Result[0].Meta
	currency, err := money.ParseCurrency(meta.Currency)
	if err != nil {
		return money.Money{}, err
	}
	return money.Money{Currency: currency, Amount: money.AmountFromFloat(meta.RegularMarketPrice)}, nil
}

// GetHistorical returns daily bars in [start, end]. The chart endpoint
// serves prices in current-share terms; reconstruction of as-traded prices
// happens a layer up, so the adjusted flag does not change the request.
func (p *Provider) GetHistorical(ctx context.Context, ex exchange.Exchange, ticker string, start, end time.Time, _ bool) (store.PriceHistory, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	q.Set("interval", "1d")
	chart, err := p.getChart(ctx, formatSymbol(ex, ticker), q)
	if err != nil {
		return store.PriceHistory{}, err
	}
	result := chart.Chart.Result[0]
	currency, err := money.ParseCurrency(result.Meta.Currency)
	if err != nil {
		return store.PriceHistory{}, err
	}
	if len(result.Indicators.Quote) == 0 {
		return store.PriceHistory{}, fmt.Errorf("chart %s: no quote indicators", ticker)
	}
	quote := result.Indicators.Quote[0]
	if len(quote.Open) != len(result.Timestamp) || len(quote.High) != len(result.Timestamp) ||
		len(quote.Low) != len(result.Timestamp) || len(quote.Close) != len(result.Timestamp) {
		return store.PriceHistory{}, fmt.Errorf("chart %s: malformed rows", ticker)
	}
	series := make(money.Series, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue // null bar (holiday padding)
		}
		t := time.Unix(ts, 0).UTC()
		if t.Before(start) || t.After(end) {
			continue
		}
		series = append(series, money.Bar{
			Time: t,
			OHLC: money.OHLC{
				Open:  money.AmountFromFloat(*quote.Open[i]),
				High:  money.AmountFromFloat(*quote.High[i]),
				Low:   money.AmountFromFloat(*quote.Low[i]),
				Close: money.AmountFromFloat(*quote.Close[i]),
			},
		})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
	return store.PriceHistory{Currency: currency, Series: series}, nil
}

func (p *Provider) GetSplits(ctx context.Context, ex exchange.Exchange, ticker string, start, end time.Time) ([]store.Split, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	q.Set("interval", "1d")
	q.Set("events", "splits")
	chart, err := p.getChart(ctx, formatSymbol(ex, ticker), q)
	if err != nil {
		return nil, err
	}
	raw := chart.Chart.Result[0].Events.Splits
	splits := make([]store.Split, 0, len(raw))
	for _, s := range raw {
		if s.Denominator == 0 {
			return nil, fmt.Errorf("chart %s: malformed split at %d", ticker, s.Date)
		}
		t := time.Unix(s.Date, 0).UTC()
		if t.Before(start) || !t.Before(end) {
			continue
		}
		splits = append(splits, store.Split{Time: t, Numerator: s.Numerator, Denominator: s.Denominator})
	}
	sort.Slice(splits, func(i, j int) bool { return splits[i].Time.Before(splits[j].Time) })
	return splits, nil
}

func (p *Provider) GetRate(ctx context.Context, from, to money.Currency) (float64, error) {
	chart, err := p.getChart(ctx, fxSymbol(from, to), nil)
	if err != nil {
		return 0, err
	}
	return chart.Chart.Result[0].Meta.RegularMarketPrice, nil
}

func (p *Provider) GetHistoricalRate(ctx context.Context, from, to money.Currency, start, end time.Time) (money.RateSeries, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	q.Set("interval", "1d")
	chart, err := p.getChart(ctx, fxSymbol(from, to), q)
	if err != nil {
		return nil, err
	}
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart %s%s=X: no quote indicators", from, to)
	}
	quote := result.Indicators.Quote[0]
	if len(quote.Open) != len(result.Timestamp) || len(quote.High) != len(result.Timestamp) ||
		len(quote.Low) != len(result.Timestamp) || len(quote.Close) != len(result.Timestamp) {
		return nil, fmt.Errorf("chart %s%s=X: malformed rows", from, to)
	}
	series := make(money.RateSeries, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue
		}
		t := time.Unix(ts, 0).UTC()
		if t.Before(start) || t.After(end) {
			continue
		}
		series = append(series, money.RateBar{
			Time:  t,
			Open:  *quote.Open[i],
			High:  *quote.High[i],
			Low:   *quote.Low[i],
			Close: *quote.Close[i],
		})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
	return series, nil
}

type searchResponse struct {
	Quotes []struct {
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Symbol    string `json:"symbol"`
		ExchDisp  string `json:"exchDisp"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

func (p *Provider) Search(ctx context.Context, term string) ([]store.SearchResult, error) {
	q := url.Values{}
	q.Set("q", term)
	u := fmt.Sprintf("%s/v1/finance/search?%s", p.cfg.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, fmt.Errorf("search %q -> %d: %s", term, resp.StatusCode, string(b))
	}
	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("search %q decode: %w", term, err)
	}
	results := make([]store.SearchResult, 0, len(sr.Quotes))
	for _, item := range sr.Quotes {
		name := item.LongName
		if name == "" {
			name = item.ShortName
		}
		if name == "" || item.Symbol == "" {
			continue
		}
		results = append(results, store.SearchResult{
			Name:     name,
			Ticker:   item.Symbol,
			Exchange: exchangeFromDisplay(item.ExchDisp),
		})
	}
	return results, nil
}

// exchangeFromDisplay maps Yahoo's display names onto venues, falling back
// to OTC like the named venue resolver does.
func exchangeFromDisplay(disp string) exchange.Exchange {
	switch disp {
	case "NASDAQ", "NasdaqGS", "NasdaqGM", "NasdaqCM":
		return exchange.Nasdaq
	case "NYSE":
		return exchange.NYSE
	case "NYSEArca":
		return exchange.NYSEArca
	case "Amsterdam":
		return exchange.EuronextAmsterdam
	case "Brussels":
		return exchange.EuronextBrussels
	case "Paris":
		return exchange.EuronextParis
	case "Milan":
		return exchange.EuronextMilan
	case "London", "LSE":
		return exchange.LondonStockExchange
	case "XETRA":
		return exchange.Xetra
	case "Frankfurt":
		return exchange.BorseFrankfurt
	case "Swiss", "Zurich":
		return exchange.SIXSwissExchange
	case "Helsinki":
		return exchange.NasdaqHelsinki
	case "Stockholm":
		return exchange.NasdaqStockholm
	case "Copenhagen":
		return exchange.NasdaqCopenhagen
	case "Oslo":
		return exchange.EuronextOslo
	case "Toronto":
		return exchange.TorontoStockExchange
	default:
		return exchange.FromName(disp)
	}
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			AssetProfile struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"assetProfile"`
			QuoteType struct {
				LongName  string `json:"longName"`
				ShortName string `json:"shortName"`
				QuoteType string `json:"quoteType"`
			} `json:"quoteType"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

// GetProfile resolves an identifier (ISIN or ticker) through search, then
// fetches the asset profile for the first match.
func (p *Provider) GetProfile(ctx context.Context, identifier string) (store.Profile, error) {
	results, err := p.Search(ctx, identifier)
	if err != nil {
		return store.Profile{}, err
	}
	if len(results) == 0 {
		return store.Profile{}, fmt.Errorf("profile %q: no matching security", identifier)
	}
	symbol := results[0].Ticker

	q := url.Values{}
	q.Set("modules", "assetProfile,quoteType")
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?%s", p.cfg.BaseURL, url.PathEscape(symbol), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return store.Profile{}, err
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return store.Profile{}, fmt.Errorf("profile %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return store.Profile{}, fmt.Errorf("profile %s -> %d: %s", symbol, resp.StatusCode, string(b))
	}
	var qs quoteSummaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qs); err != nil {
		return store.Profile{}, fmt.Errorf("profile %s decode: %w", symbol, err)
	}
	if qs.QuoteSummary.Error != nil {
		return store.Profile{}, fmt.Errorf("profile %s: %s: %s", symbol, qs.QuoteSummary.Error.Code, qs.QuoteSummary.Error.Description)
	}
	if len(qs.QuoteSummary.Result) == 0 {
		return store.Profile{}, fmt.Errorf("profile %s: empty result", symbol)
	}
	r := qs.QuoteSummary.Result[0]
	name := r.QuoteType.LongName
	if name == "" {
		name = r.QuoteType.ShortName
	}
	return store.Profile{
		Name:         name,
		SecurityType: r.QuoteType.QuoteType,
		Sector:       r.AssetProfile.Sector,
		Industry:     r.AssetProfile.Industry,
	}, nil
}
