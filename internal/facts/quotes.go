package facts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Quote is a current market price observation.
type Quote struct {
	Ticker    string    `json:"ticker"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	MarketCap float64   `json:"market_cap,omitempty"`
	AsOf      time.Time `json:"as_of"`
	Source    string    `json:"source"`
}

// QuoteClient fetches live prices from the Yahoo Finance chart API,
// used for the market-data concepts EDGAR does not carry.
type QuoteClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewQuoteClient creates a quote client against the given base URL.
func NewQuoteClient(baseURL string) *QuoteClient {
	return &QuoteClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
}

// Latest returns the most recent market price for a ticker.
func (c *QuoteClient) Latest(ctx context.Context, ticker string) (*Quote, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", c.baseURL, ticker)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; veriscope/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: no quote for %s", ErrUnknownTicker, ticker)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote status %d for %s", resp.StatusCode, ticker)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	meta := gjson.GetBytes(body, "chart.result.0.meta")
	if !meta.Exists() {
		if msg := gjson.GetBytes(body, "chart.error.description"); msg.Exists() {
			return nil, fmt.Errorf("quote error for %s: %s", ticker, msg.String())
		}
		return nil, fmt.Errorf("%w: empty quote response for %s", ErrNoData, ticker)
	}

	price := meta.Get("regularMarketPrice")
	if !price.Exists() {
		return nil, fmt.Errorf("%w: no price for %s", ErrNoData, ticker)
	}

	asOf := time.Now().UTC()
	if ts := meta.Get("regularMarketTime"); ts.Exists() {
		asOf = time.Unix(ts.Int(), 0).UTC()
	}

	return &Quote{
		Ticker:   ticker,
		Price:    price.Float(),
		Currency: meta.Get("currency").String(),
		AsOf:     asOf,
		Source:   "yahoo-finance",
	}, nil
}
