// Command yahoo_dump bulk-fetches raw Yahoo Finance chart payloads for a
// list of symbols and streams them to a single JSON file. Useful for
// building test fixtures and for offline analysis of upstream responses.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

type httpStatusErr struct {
	code int
	body string
}

func (e *httpStatusErr) Error() string { return fmt.Sprintf("http %d: %s", e.code, e.body) }

func main() {
	var (
		symbolsCSV  string
		symbolsFile string
		outPath     string
		baseURL     string
		rangeParam  string
		interval    string
		concurrency int
		timeoutSec  int
		maxRetries  int
		rpm         int
	)
	flag.StringVar(&symbolsCSV, "symbols", "", "comma-separated Yahoo symbols (e.g. AAPL,NVDA,SHEL.L)")
	flag.StringVar(&symbolsFile, "symbols-file", "", "file with one Yahoo symbol per line")
	flag.StringVar(&outPath, "out", "yahoo_charts.json", "output JSON file path")
	flag.StringVar(&baseURL, "base-url", "https://query1.finance.yahoo.com", "Yahoo Finance base URL")
	flag.StringVar(&rangeParam, "range", "1y", "chart range (1d, 5d, 1mo, 1y, max)")
	flag.StringVar(&interval, "interval", "1d", "chart interval")
	flag.IntVar(&concurrency, "concurrency", 4, "number of parallel requests")
	flag.IntVar(&timeoutSec, "timeout", 20, "HTTP timeout seconds")
	flag.IntVar(&maxRetries, "retries", 3, "max retries on 429/5xx")
	flag.IntVar(&rpm, "rpm", 0, "max requests per minute (0 = unlimited)")
	flag.Parse()

	symbols, err := readSymbols(symbolsCSV, symbolsFile)
	if err != nil {
		log.Fatalf("read symbols: %v", err)
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols given (use -symbols or -symbols-file)")
	}
	log.Printf("symbols: %d", len(symbols))

	hc := &http.Client{Timeout: time.Duration(timeoutSec) * time.Second}

	outFile, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("create out: %v", err)
	}
	defer outFile.Close()
	bw := bufio.NewWriterSize(outFile, 1<<20)
	defer bw.Flush()

	// Start JSON envelope: a symbol -> raw chart payload object.
	_, _ = bw.WriteString("{")
	first := true
	var writeMu sync.Mutex

	// Request rate limiter by RPM, if provided
	var tokenCh <-chan time.Time
	if rpm > 0 {
		t := time.NewTicker(time.Minute / time.Duration(rpm))
		defer t.Stop()
		tokenCh = t.C
	}

	doReq := func(ctx context.Context, symbol string) (json.RawMessage, error) {
		u := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s&events=split",
			baseURL, url.PathEscape(symbol), url.QueryEscape(rangeParam), url.QueryEscape(interval))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "opnfn/1.0")
		if tokenCh != nil {
			<-tokenCh // gate by RPM
		}
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
			return nil, &httpStatusErr{code: resp.StatusCode, body: string(b)}
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, err
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("invalid JSON payload for %s", symbol)
		}
		return raw, nil
	}

	fetch := func(ctx context.Context, symbol string) (json.RawMessage, error) {
		// retry loop for 429/5xx
		attempt := 0
		for {
			raw, err := doReq(ctx, symbol)
			if err == nil {
				return raw, nil
			}
			var hs *httpStatusErr
			if errors.As(err, &hs) {
				if hs.code == 404 {
					log.Printf("skip unknown symbol: %s", symbol)
					return nil, nil
				}
				if hs.code == 429 || (hs.code >= 500 && hs.code < 600) {
					if attempt < maxRetries {
						back := time.Duration(250*(1<<attempt)) * time.Millisecond
						time.Sleep(back)
						attempt++
						continue
					}
				}
			}
			return nil, err
		}
	}

	jobs := make(chan string, concurrency*2)
	wg := sync.WaitGroup{}
	worker := func() {
		defer wg.Done()
		for symbol := range jobs {
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
			raw, err := fetch(ctx, symbol)
			cancel()
			if err != nil {
				log.Printf("%s: %v", symbol, err)
				continue
			}
			if raw == nil {
				continue
			}
			key, _ := json.Marshal(symbol)
			writeMu.Lock()
			if !first {
				_, _ = bw.WriteString(",")
			} else {
				first = false
			}
			_, _ = bw.Write(key)
			_, _ = bw.WriteString(":")
			_, _ = bw.Write(raw)
			writeMu.Unlock()
		}
	}

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go worker()
	}
	for _, s := range symbols {
		jobs <- s
	}
	close(jobs)
	wg.Wait()

	_, _ = bw.WriteString("}")
	log.Printf("wrote %s", outPath)
}

func readSymbols(csv, path string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range strings.Split(csv, ",") {
		add(s)
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			add(sc.Text())
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
