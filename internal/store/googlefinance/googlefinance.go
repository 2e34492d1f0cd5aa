// Package googlefinance scrapes current prices from Google Finance quote
// pages. It only serves the spot capability.
package googlefinance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/httpx"
	"github.com/samjmck/opnfn/internal/money"
)

type Config struct {
	Name    string
	BaseURL string // https://www.google.com/finance
}

type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "GoogleFinance"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.google.com/finance"
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

func googleSuffix(ex exchange.Exchange) string {
	switch ex {
	case exchange.EuronextBrussels:
		return "EBR"
	case exchange.EuronextParis:
		return "EPA"
	case exchange.EuronextAmsterdam:
		return "AMS"
	case exchange.SIXSwissExchange:
		return "SWX"
	case exchange.NYSE:
		return "NYSE"
	case exchange.NYSEArca:
		return "NYSEARCA"
	case exchange.Nasdaq:
		return "NASDAQ"
	case exchange.Xetra:
		return "ETR"
	case exchange.BorseFrankfurt:
		return "FRA"
	case exchange.NasdaqHelsinki:
		return "HEL"
	case exchange.NasdaqStockholm:
		return "STO"
	case exchange.NasdaqCopenhagen:
		return "CPH"
	case exchange.LondonStockExchange:
		return "LON"
	case exchange.BorsaItaliana, exchange.EuronextMilan:
		return "BIT"
	case exchange.TorontoStockExchange:
		return "TSE"
	case exchange.OTC:
		return "OTCMKTS"
	case exchange.MutualFund:
		return "MUTF"
	default:
		return ""
	}
}

// The quote page renders the price inside a div with a stable class pair
// and tags the page with data-currency-code attributes.
var (
	priceRe    = regexp.MustCompile(`YMlKec fxKbKc">(?:[^0-9<]*)([0-9][0-9.,]*)`)
	currencyRe = regexp.MustCompile(`data-currency-code="([^"]+)"`)
)

func (p *Provider) GetSpot(ctx context.Context, ex exchange.Exchange, ticker string) (money.Money, error) {
	sfx := googleSuffix(ex)
	if sfx == "" {
		return money.Money{}, fmt.Errorf("no symbol mapping for %s", ex)
	}
	u := fmt.Sprintf("%s/quote/%s:%s", p.cfg.BaseURL, url.PathEscape(ticker), sfx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return money.Money{}, err
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return money.Money{}, fmt.Errorf("quote %s:%s: %w", ticker, sfx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return money.Money{}, fmt.Errorf("quote %s:%s -> %d", ticker, sfx, resp.StatusCode)
	}
	html, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return money.Money{}, fmt.Errorf("quote %s:%s read: %w", ticker, sfx, err)
	}

	priceMatch := priceRe.FindSubmatch(html)
	if priceMatch == nil {
		return money.Money{}, fmt.Errorf("quote %s:%s: no price in page", ticker, sfx)
	}
	currencyMatch := currencyRe.FindSubmatch(html)
	if currencyMatch == nil {
		return money.Money{}, fmt.Errorf("quote %s:%s: no currency code in page", ticker, sfx)
	}
	currency, err := money.ParseCurrency(string(currencyMatch[1]))
	if err != nil {
		return money.Money{}, err
	}
	amount, err := money.ParseAmount(strings.ReplaceAll(string(priceMatch[1]), ",", ""))
	if err != nil {
		return money.Money{}, err
	}
	return money.Money{Currency: currency, Amount: amount}, nil
}
