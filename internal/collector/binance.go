package collector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"BreakoutSentinel/internal/model"
	"BreakoutSentinel/internal/retry"
)

// klineLimit is the page size requested from the klines endpoint (max 1500).
const klineLimit = 1000

// BinanceFetcher implements Fetcher using the Binance USDT-M futures klines endpoint.
type BinanceFetcher struct {
	Client *futures.Client
	Retry  *retry.Policy
}

// NewBinanceFetcher creates a fetcher sharing the order provider's client.
func NewBinanceFetcher(client *futures.Client, policy *retry.Policy) *BinanceFetcher {
	return &BinanceFetcher{Client: client, Retry: policy}
}

func (f *BinanceFetcher) Name() string { return "binance-futures" }

// FetchCandles pages through klines from since until the exchange returns a short page.
func (f *BinanceFetcher) FetchCandles(ctx context.Context, symbol, interval string, since time.Time) ([]model.Candle, error) {
	var out []model.Candle
	start := since.UnixMilli()
	for {
		var klines []*futures.Kline
		err := f.Retry.Do(ctx, "fetch klines", func() error {
			var err error
			klines, err = f.Client.NewKlinesService().
				Symbol(symbol).
				Interval(interval).
				StartTime(start).
				Limit(klineLimit).
				Do(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("fetch klines: %w", err)
		}
		for _, k := range klines {
			c, err := toCandle(k)
			if err != nil {
				return nil, fmt.Errorf("decode kline: %w", err)
			}
			out = append(out, c)
		}
		if len(klines) < klineLimit {
			break
		}
		start = klines[len(klines)-1].OpenTime + 1
	}
	// Ensure chronological order
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func toCandle(k *futures.Kline) (model.Candle, error) {
	var c model.Candle
	var err error
	c.Time = time.UnixMilli(k.OpenTime).UTC()
	if c.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
		return c, err
	}
	if c.High, err = strconv.ParseFloat(k.High, 64); err != nil {
		return c, err
	}
	if c.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
		return c, err
	}
	if c.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
		return c, err
	}
	c.Volume, _ = strconv.ParseFloat(k.Volume, 64)
	return c, nil
}
