// Command fetch is a one-shot CLI for poking the provider stack without
// running the server: fetch a spot price, a historical window, a closing
// price, splits, an FX rate, or search results, and print the JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/samjmck/opnfn/internal/config"
	"github.com/samjmck/opnfn/internal/exchange"
	"github.com/samjmck/opnfn/internal/httpx"
	"github.com/samjmck/opnfn/internal/money"
	"github.com/samjmck/opnfn/internal/store/adjust"
	"github.com/samjmck/opnfn/internal/store/closing"
	"github.com/samjmck/opnfn/internal/store/combined"
	"github.com/samjmck/opnfn/internal/store/googlefinance"
	"github.com/samjmck/opnfn/internal/store/yahoo"
)

func main() {
	var (
		op         string
		mic        string
		ticker     string
		from       string
		to         string
		startStr   string
		endStr     string
		timeStr    string
		adjusted   bool
		term       string
		timeoutSec int
		configPath string
	)
	flag.StringVar(&op, "op", "spot", "operation: spot|historical|close|splits|fx|search|profile")
	flag.StringVar(&mic, "mic", "XNAS", "exchange MIC")
	flag.StringVar(&ticker, "ticker", "AAPL", "ticker symbol")
	flag.StringVar(&from, "from", "USD", "FX base currency")
	flag.StringVar(&to, "to", "EUR", "FX quote currency")
	flag.StringVar(&startStr, "start", "", "window start, RFC 3339")
	flag.StringVar(&endStr, "end", "", "window end, RFC 3339")
	flag.StringVar(&timeStr, "time", "", "instant for close lookups, RFC 3339")
	flag.BoolVar(&adjusted, "adjusted", true, "adjust historical prices for splits")
	flag.StringVar(&term, "term", "", "search term or profile identifier")
	flag.IntVar(&timeoutSec, "timeout", 15, "request timeout seconds")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if timeoutSec != 0 {
		cfg.Server.RequestTimeoutSec = timeoutSec
	}

	hc := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	yh := yahoo.New(yahoo.Config{BaseURL: cfg.Yahoo.BaseURL}, hc)
	gf := googlefinance.New(googlefinance.Config{BaseURL: cfg.GoogleFinance.BaseURL}, hc)

	spot := combined.NewSpotStore([]combined.SpotSource{yh, gf})
	splits := combined.NewSplitStore([]combined.SplitSource{yh})
	historical := adjust.NewHistoricalStore(
		combined.NewHistoricalStore([]combined.HistoricalSource{yh}),
		splits,
	)
	resolver := closing.NewResolver(historical)
	resolver.Lookback = time.Duration(cfg.Aggregator.LookbackDays) * 24 * time.Hour
	fx := combined.NewFXStore([]combined.FXSource{yh})
	search := combined.NewSearchStore([]combined.SearchSource{yh})
	profiles := combined.NewProfileStore([]combined.ProfileSource{yh})

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second)
	defer cancel()

	var out any
	switch op {
	case "spot":
		out, err = spot.GetSpot(ctx, mustExchange(mic), ticker)
	case "historical":
		start, end := mustWindow(startStr, endStr)
		out, err = historical.GetHistorical(ctx, mustExchange(mic), ticker, start, end, adjusted)
	case "close":
		var when time.Time
		var m money.Money
		when, m, err = resolver.GetAtClose(ctx, mustExchange(mic), ticker, mustTime(timeStr, "time"), adjusted)
		out = map[string]any{"time": when, "currency": m.Currency, "amount": m.Amount}
	case "splits":
		start, end := mustWindow(startStr, endStr)
		out, err = splits.GetSplits(ctx, mustExchange(mic), ticker, start, end)
	case "fx":
		out, err = fx.GetRate(ctx, mustCurrency(from), mustCurrency(to))
	case "search":
		out, err = search.Search(ctx, term)
	case "profile":
		out, err = profiles.GetProfile(ctx, term)
	default:
		log.Fatalf("unknown op %q", op)
	}
	if err != nil {
		log.Fatalf("%s: %v", op, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(out)
}

func mustExchange(mic string) exchange.Exchange {
	ex, err := exchange.FromMIC(mic)
	if err != nil {
		log.Fatalf("mic: %v", err)
	}
	return ex
}

func mustCurrency(code string) money.Currency {
	c, err := money.ParseCurrency(code)
	if err != nil {
		log.Fatalf("currency: %v", err)
	}
	return c
}

func mustTime(s, name string) time.Time {
	if s == "" {
		log.Fatalf("missing -%s", name)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return t
}

func mustWindow(startStr, endStr string) (time.Time, time.Time) {
	start := mustTime(startStr, "start")
	end := mustTime(endStr, "end")
	if end.Before(start) {
		log.Fatal(fmt.Errorf("end %s before start %s", endStr, startStr))
	}
	return start, end
}
