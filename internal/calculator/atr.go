package calculator

import (
	talib "github.com/markcheno/go-talib"

	"BreakoutSentinel/internal/model"
)

// ATR returns the mean candle range (high - low) over the trailing period
// candles. With fewer candles it averages all of them; with none it returns fallback.
func ATR(candles []model.Candle, period int, fallback float64) float64 {
	if len(candles) == 0 {
		return fallback
	}
	n := period
	if n <= 0 || n > len(candles) {
		n = len(candles)
	}
	ranges := make([]float64, n)
	for i, c := range candles[len(candles)-n:] {
		ranges[i] = c.High - c.Low
	}
	sma := talib.Sma(ranges, n)
	return sma[len(sma)-1]
}
