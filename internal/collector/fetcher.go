package collector

import (
	"context"
	"time"

	"BreakoutSentinel/internal/model"
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	FetchCandles(ctx context.Context, symbol, interval string, since time.Time) ([]model.Candle, error)
	Name() string
}
