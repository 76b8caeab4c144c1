package model

import "time"

// Candle represents a single fixed-interval candlestick bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Range is the opening range (ORB) of one UTC trading day.
type Range struct {
	High      float64
	Low       float64
	LastClose float64   // close of the final window candle
	Date      string    // 2006-01-02, UTC
	Candles   int       // number of window candles it was built from
	BuiltAt   time.Time
}

// Width returns High - Low.
func (r *Range) Width() float64 { return r.High - r.Low }

// AccountSnapshot is a fresh view of the futures wallet. Never cached across ticks.
type AccountSnapshot struct {
	WalletBalance    float64
	AvailableBalance float64
	TotalMargin      float64
	UnrealizedPnL    float64
	MarginUsagePct   float64 // TotalMargin / WalletBalance * 100
	FetchedAt        time.Time
}

// MarginUsage computes the margin usage percentage, 0 when the wallet is empty.
func MarginUsage(totalMargin, wallet float64) float64 {
	if wallet <= 0 {
		return 0
	}
	return totalMargin / wallet * 100
}

// Position is an open futures position on the traded instrument.
// Amount is signed: positive for long, negative for short.
type Position struct {
	Symbol        string
	Amount        float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
}
