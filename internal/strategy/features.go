package strategy

import (
	"BreakoutSentinel/internal/calculator"
	"BreakoutSentinel/internal/model"
)

// BuildFeatures derives the predictor inputs from the range and the post-range candles.
// TimeOfDay stays 0: the model was fitted with a constant zero column.
func BuildFeatures(rng *model.Range, post []model.Candle, atrPeriod int) model.FeatureVector {
	width := rng.Width()
	var f model.FeatureVector
	f.RangeWidth = width
	f.ATR20 = calculator.ATR(post, atrPeriod, width)
	if len(post) > 0 {
		last := post[len(post)-1]
		f.CandleRange = last.High - last.Low
		f.Momentum = last.Close - rng.LastClose
	}
	if f.ATR20 > 0 {
		f.RangeRatio = width / f.ATR20
	}
	return f
}
