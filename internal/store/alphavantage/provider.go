// Package alphavantage serves spot prices and symbol search from the Alpha
// Vantage query API. The free tier allows 5 requests per minute and 500 per
// day, so this source usually sits behind Yahoo in the provider order.
package alphavantage

import (
	"context"

	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/money"
	"github.com/samjmck/opnfn/internal/store"
)

type Config struct {
	Name string
}

type Provider struct {
	cfg    Config
	client *Client
}

func NewProvider(cfg Config, client *Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "AlphaVantage"
	}
	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Name() string { return p.cfg.Name }

func avSuffix(ex exchange.Exchange) string {
	switch ex {
	case exchange.EuronextBrussels:
		return "BR"
	case exchange.EuronextParis:
		return "PA"
	case exchange.EuronextAmsterdam:
		return "AMS"
	case exchange.Xetra:
		return "DE"
	case exchange.BorseFrankfurt:
		return "F"
	case exchange.LondonStockExchange:
		return "LON"
	case exchange.TorontoStockExchange:
		return "TRT"
	default:
		return ""
	}
}

func formatSymbol(ex exchange.Exchange, ticker string) string {
	if s := avSuffix(ex); s != "" {
		return ticker + "." + s
	}
	return ticker
}

// defaultCurrency guesses the quote currency from the venue. GLOBAL_QUOTE
// does not report one. A security can list in another currency than its
// venue's home currency, which is why this source ranks below ones that do
// report the currency.
func defaultCurrency(ex exchange.Exchange) money.Currency {
	switch ex {
	case exchange.NYSE, exchange.NYSEArca, exchange.Nasdaq, exchange.OTC, exchange.MutualFund:
		return money.USD
	case exchange.LondonStockExchange:
		return money.GBX
	case exchange.SIXSwissExchange:
		return money.CHF
	case exchange.NasdaqCopenhagen:
		return money.DKK
	case exchange.NasdaqStockholm:
		return money.SEK
	case exchange.EuronextOslo:
		return money.NOK
	case exchange.TorontoStockExchange:
		return money.CAD
	case exchange.WarsawStockExchange:
		return money.PLN
	default:
		return money.EUR
	}
}

func (p *Provider) GetSpot(ctx context.Context, ex exchange.Exchange, ticker string) (money.Money, error) {
	quote, err := p.client.GetGlobalQuote(ctx, formatSymbol(ex, ticker))
	if err != nil {
		return money.Money{}, err
	}
	amount, err := money.ParseAmount(quote.Price)
	if err != nil {
		return money.Money{}, err
	}
	return money.Money{Currency: defaultCurrency(ex), Amount: amount}, nil
}

// regionExchange maps SYMBOL_SEARCH regions onto default venues.
func regionExchange(region string) exchange.Exchange {
	switch region {
	case "United States":
		return exchange.NYSE
	case "United Kingdom":
		return exchange.LondonStockExchange
	case "Frankfurt", "XETRA":
		return exchange.Xetra
	case "Paris":
		return exchange.EuronextParis
	case "Amsterdam":
		return exchange.EuronextAmsterdam
	case "Brussels":
		return exchange.EuronextBrussels
	case "Toronto":
		return exchange.TorontoStockExchange
	default:
		return exchange.OTC
	}
}

func (p *Provider) Search(ctx context.Context, term string) ([]store.SearchResult, error) {
	matches, err := p.client.SearchSymbols(ctx, term)
	if err != nil {
		return nil, err
	}
	results := make([]store.SearchResult, 0, len(matches))
	for _, m := range matches {
		if m.Symbol == "" || m.Name == "" {
			continue
		}
		results = append(results, store.SearchResult{
			Name:     m.Name,
			Ticker:   m.Symbol,
			Exchange: regionExchange(m.Region),
		})
	}
	return results, nil
}
