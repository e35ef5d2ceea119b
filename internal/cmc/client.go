// Package cmc is a CoinMarketCap client for the macro metrics: BTC and
// USDT dominance and the total market cap.
package cmc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cryptopulse/cryptopulse/internal/errs"
	"github.com/cryptopulse/cryptopulse/internal/metrics"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://pro-api.coinmarketcap.com"

// GlobalMetrics is the macro slice of one ingest cycle. USDTDominance is
// derived as usdt market cap / total market cap.
type GlobalMetrics struct {
	BTCDominance   float64
	USDTDominance  float64
	TotalMarketCap float64
}

// API fetches macro metrics.
type API interface {
	GlobalMetrics(ctx context.Context) (*GlobalMetrics, error)
}

// Client talks to the CoinMarketCap REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New builds a Client. baseURL is overridable for tests; empty selects the
// production endpoint.
func New(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type globalResponse struct {
	Data struct {
		BTCDominance float64 `json:"btc_dominance"`
		Quote        struct {
			USD struct {
				TotalMarketCap float64 `json:"total_market_cap"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

type quoteResponse struct {
	Data map[string]struct {
		Quote struct {
			USD struct {
				MarketCap float64 `json:"market_cap"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

// GlobalMetrics fetches BTC dominance and total market cap from the global
// quotes endpoint, plus the USDT quote to derive USDT dominance.
func (c *Client) GlobalMetrics(ctx context.Context) (*GlobalMetrics, error) {
	if c.apiKey == "" {
		return nil, &errs.ConfigurationError{Key: "CMC_API_KEY", Message: "not set"}
	}

	var global globalResponse
	if err := c.get(ctx, "/v1/global-metrics/quotes/latest", &global); err != nil {
		return nil, err
	}

	var quote quoteResponse
	if err := c.get(ctx, "/v1/cryptocurrency/quotes/latest?symbol=USDT", &quote); err != nil {
		return nil, err
	}

	total := global.Data.Quote.USD.TotalMarketCap
	if total <= 0 {
		return nil, &errs.ExternalAPIError{API: "coinmarketcap",
			Err: fmt.Errorf("non-positive total market cap %v", total)}
	}

	usdt, ok := quote.Data["USDT"]
	if !ok {
		return nil, &errs.ExternalAPIError{API: "coinmarketcap",
			Err: fmt.Errorf("USDT quote missing from response")}
	}

	return &GlobalMetrics{
		BTCDominance:   global.Data.BTCDominance,
		USDTDominance:  usdt.Quote.USD.MarketCap / total * 100,
		TotalMarketCap: total,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &errs.ExternalAPIError{API: "coinmarketcap", Err: err}
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordExternalAPICall("coinmarketcap", "error", time.Since(start).Seconds())
		return &errs.ExternalAPIError{API: "coinmarketcap", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordExternalAPICall("coinmarketcap", "error", time.Since(start).Seconds())
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &errs.ExternalAPIError{
			API:        "coinmarketcap",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.RecordExternalAPICall("coinmarketcap", "error", time.Since(start).Seconds())
		return &errs.ExternalAPIError{API: "coinmarketcap", Err: err}
	}
	metrics.RecordExternalAPICall("coinmarketcap", "success", time.Since(start).Seconds())
	return nil
}
