package calculator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"BreakoutSentinel/internal/model"
)

// MinRangeCandles is the minimum number of opening-window candles for a valid range.
const MinRangeCandles = 30

// ErrInsufficientData is returned when the opening window holds too few candles.
var ErrInsufficientData = errors.New("insufficient opening range data")

// InWindow reports whether t falls on date (UTC) within [startHour, endHour).
func InWindow(t time.Time, date string, startHour, endHour int) bool {
	t = t.UTC()
	if t.Format("2006-01-02") != date {
		return false
	}
	return t.Hour() >= startHour && t.Hour() < endHour
}

// BuildRange scans the opening-window candles and returns the high, the low
// and the close of the final window candle.
func BuildRange(window []model.Candle, date string, minCandles int) (*model.Range, error) {
	if minCandles <= 0 {
		minCandles = MinRangeCandles
	}
	if len(window) < minCandles {
		return nil, fmt.Errorf("%w: %d candles < %d", ErrInsufficientData, len(window), minCandles)
	}
	high := math.Inf(-1)
	low := math.Inf(1)
	for _, c := range window {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return &model.Range{
		High:      high,
		Low:       low,
		LastClose: window[len(window)-1].Close,
		Date:      date,
		Candles:   len(window),
		BuiltAt:   time.Now().UTC(),
	}, nil
}
