package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const baseURL = "https://www.alphavantage.co"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=alphavantage_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Alpha Vantage query API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
}

// ClientOption is a configuration option for the Alpha Vantage client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new Alpha Vantage API client.
func NewClient(key string, options ...ClientOption) (*Client, error) {
	var client = &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	if key == "" {
		return nil, fmt.Errorf("alphavantage: api key is required")
	}
	// Every request authenticates through the apikey query parameter.
	// https://www.alphavantage.co/documentation/
	client.query.Add("apikey", key)
	for _, option := range options {
		option(client)
	}
	return client, nil
}

func (c *Client) do(ctx context.Context, params url.Values, out any) error {
	for key, values := range c.query {
		for _, value := range values {
			params.Add(key, value)
		}
	}
	u := fmt.Sprintf("%s/query?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	for key, values := range c.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("query %s: %w", params.Get("function"), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return fmt.Errorf("query %s -> %d: %s", params.Get("function"), resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("query %s decode: %w", params.Get("function"), err)
	}
	return nil
}

// GlobalQuote is the quote payload of the GLOBAL_QUOTE function.
type GlobalQuote struct {
	Symbol           string `json:"01. symbol"`
	Open             string `json:"02. open"`
	High             string `json:"03. high"`
	Low              string `json:"04. low"`
	Price            string `json:"05. price"`
	Volume           string `json:"06. volume"`
	LatestTradingDay string `json:"07. latest trading day"`
	PreviousClose    string `json:"08. previous close"`
	Change           string `json:"09. change"`
	ChangePercent    string `json:"10. change percent"`
}

type globalQuoteResponse struct {
	GlobalQuote GlobalQuote `json:"Global Quote"`
}

// GetGlobalQuote fetches the current quote for a symbol.
func (c *Client) GetGlobalQuote(ctx context.Context, symbol string) (GlobalQuote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	var out globalQuoteResponse
	if err := c.do(ctx, params, &out); err != nil {
		return GlobalQuote{}, err
	}
	if out.GlobalQuote.Price == "" {
		return GlobalQuote{}, fmt.Errorf("global quote %s: empty payload", symbol)
	}
	return out.GlobalQuote, nil
}

// SymbolMatch is one row of the SYMBOL_SEARCH function.
type SymbolMatch struct {
	Symbol   string `json:"1. symbol"`
	Name     string `json:"2. name"`
	Type     string `json:"3. type"`
	Region   string `json:"4. region"`
	Currency string `json:"8. currency"`
}

type symbolSearchResponse struct {
	BestMatches []SymbolMatch `json:"bestMatches"`
}

// SearchSymbols finds securities matching a free-text term.
func (c *Client) SearchSymbols(ctx context.Context, term string) ([]SymbolMatch, error) {
	params := url.Values{}
	params.Set("function", "SYMBOL_SEARCH")
	params.Set("keywords", term)
	var out symbolSearchResponse
	if err := c.do(ctx, params, &out); err != nil {
		return nil, err
	}
	return out.BestMatches, nil
}
