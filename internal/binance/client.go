// Package binance wraps the exchange REST API behind a small interface so
// services can substitute fakes in tests.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	api "github.com/adshao/go-binance/v2"

	"github.com/cryptopulse/cryptopulse/internal/errs"
	"github.com/cryptopulse/cryptopulse/internal/metrics"
	"github.com/cryptopulse/cryptopulse/internal/theory"
)

// MarketAPI is the slice of the exchange used by the pipeline. Read-only;
// no keys are required.
type MarketAPI interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]theory.Candle, error)
}

type client struct {
	api *api.Client
}

// New builds a MarketAPI against the given base URL (empty keeps the
// production endpoint).
func New(apiURL string) MarketAPI {
	c := api.NewClient("", "")
	if apiURL != "" {
		c.BaseURL = apiURL
	}
	return &client{api: c}
}

func (c *client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	start := time.Now()
	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		metrics.RecordExternalAPICall("binance", "error", time.Since(start).Seconds())
		return 0, &errs.ExternalAPIError{API: "binance", Err: err}
	}
	metrics.RecordExternalAPICall("binance", "success", time.Since(start).Seconds())

	for _, p := range prices {
		if p.Symbol == symbol {
			v, err := strconv.ParseFloat(p.Price, 64)
			if err != nil {
				return 0, &errs.ExternalAPIError{API: "binance",
					Err: fmt.Errorf("unparseable price %q for %s: %w", p.Price, symbol, err)}
			}
			return v, nil
		}
	}
	return 0, &errs.ExternalAPIError{API: "binance",
		Err: fmt.Errorf("no price returned for %s", symbol)}
}

func (c *client) Klines(ctx context.Context, symbol, interval string, limit int) ([]theory.Candle, error) {
	start := time.Now()
	klines, err := c.api.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		metrics.RecordExternalAPICall("binance", "error", time.Since(start).Seconds())
		return nil, &errs.ExternalAPIError{API: "binance", Err: err}
	}
	metrics.RecordExternalAPICall("binance", "success", time.Since(start).Seconds())

	candles := make([]theory.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := toCandle(k)
		if err != nil {
			return nil, &errs.ExternalAPIError{API: "binance", Err: err}
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func toCandle(k *api.Kline) (theory.Candle, error) {
	var (
		c   theory.Candle
		err error
	)
	c.OpenTime = time.UnixMilli(k.OpenTime).UTC()
	if c.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
		return c, fmt.Errorf("unparseable open %q: %w", k.Open, err)
	}
	if c.High, err = strconv.ParseFloat(k.High, 64); err != nil {
		return c, fmt.Errorf("unparseable high %q: %w", k.High, err)
	}
	if c.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
		return c, fmt.Errorf("unparseable low %q: %w", k.Low, err)
	}
	if c.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
		return c, fmt.Errorf("unparseable close %q: %w", k.Close, err)
	}
	if c.Volume, err = strconv.ParseFloat(k.Volume, 64); err != nil {
		return c, fmt.Errorf("unparseable volume %q: %w", k.Volume, err)
	}
	return c, nil
}
