package collector

import (
	"context"
	"fmt"
	"log"
	"time"

	"BreakoutSentinel/internal/calculator"
	"BreakoutSentinel/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Candles []model.Candle
	Err     error
	Calls   int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchCandles(_ context.Context, _, _ string, since time.Time) ([]model.Candle, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	var out []model.Candle
	for _, c := range m.Candles {
		if !c.Time.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Window is the opening-range window in whole UTC hours, [StartHour, EndHour).
type Window struct {
	StartHour int
	EndHour   int
}

// Collector selects opening-window and post-range candles for the traded symbol.
type Collector struct {
	Fetcher    Fetcher
	Symbol     string
	Interval   string
	Window     Window
	MinCandles int
	// Lookback bounds the post-range fetch.
	Lookback time.Duration
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, symbol, interval string, window Window, minCandles int, lookback time.Duration) *Collector {
	return &Collector{
		Fetcher:    fetcher,
		Symbol:     symbol,
		Interval:   interval,
		Window:     window,
		MinCandles: minCandles,
		Lookback:   lookback,
	}
}

// dayStart returns midnight UTC of now's date.
func dayStart(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RangeEnd returns the time the opening window closes on now's date.
func (c *Collector) RangeEnd(now time.Time) time.Time {
	return dayStart(now).Add(time.Duration(c.Window.EndHour) * time.Hour)
}

// OpeningRange fetches the day's opening-window candles and builds the range.
// Returns calculator.ErrInsufficientData when the window is too short.
func (c *Collector) OpeningRange(ctx context.Context, now time.Time) (*model.Range, error) {
	date := now.UTC().Format("2006-01-02")
	since := dayStart(now).Add(time.Duration(c.Window.StartHour) * time.Hour)
	candles, err := c.Fetcher.FetchCandles(ctx, c.Symbol, c.Interval, since)
	if err != nil {
		return nil, fmt.Errorf("fetch opening window: %w", err)
	}
	window := make([]model.Candle, 0, len(candles))
	for _, cd := range candles {
		if calculator.InWindow(cd.Time, date, c.Window.StartHour, c.Window.EndHour) {
			window = append(window, cd)
		}
	}
	log.Printf("[INFO] opening window %s %02d:00-%02d:00 UTC: %d candles", date, c.Window.StartHour, c.Window.EndHour, len(window))
	return calculator.BuildRange(window, date, c.MinCandles)
}

// PostRange fetches candles after the opening window on the range date.
func (c *Collector) PostRange(ctx context.Context, rng *model.Range, now time.Time) ([]model.Candle, error) {
	end := c.RangeEnd(now)
	since := end
	if c.Lookback > 0 {
		if lb := now.Add(-c.Lookback); lb.After(since) {
			since = lb
		}
	}
	candles, err := c.Fetcher.FetchCandles(ctx, c.Symbol, c.Interval, since)
	if err != nil {
		return nil, fmt.Errorf("fetch post-range candles: %w", err)
	}
	post := make([]model.Candle, 0, len(candles))
	for _, cd := range candles {
		if cd.Time.UTC().Format("2006-01-02") == rng.Date && !cd.Time.Before(end) {
			post = append(post, cd)
		}
	}
	return post, nil
}
