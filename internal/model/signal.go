package model

// FeatureVector is the predictor input. Field order matches the column order
// the reward-multiple model was fitted with.
type FeatureVector struct {
	RangeWidth  float64
	CandleRange float64
	Momentum    float64
	ATR20       float64
	TimeOfDay   float64
	RangeRatio  float64
}

// FeatureNames lists the model columns in Slice() order.
var FeatureNames = []string{"orb_range", "candle_range", "momentum", "atr20", "tod", "range_ratio"}

// Slice returns the features in model column order.
func (f FeatureVector) Slice() []float64 {
	return []float64{f.RangeWidth, f.CandleRange, f.Momentum, f.ATR20, f.TimeOfDay, f.RangeRatio}
}

// Signal is the output of one evaluation tick.
type Signal struct {
	Qualified   bool
	Price       float64 // latest close
	Breakout    float64 // Price - range high
	PredictedRR float64
	Features    FeatureVector
	PostCandles int
}

// TradePlan is fixed at signal time. Stop and take-profit are never
// recomputed from the actual fill price.
type TradePlan struct {
	Entry       float64
	Stop        float64
	TakeProfit  float64
	Quantity    float64
	PredictedRR float64
}

// NewTradePlan derives stop and take-profit from the range low and the predicted reward multiple.
func NewTradePlan(entry, stop, predictedRR float64) TradePlan {
	return TradePlan{
		Entry:       entry,
		Stop:        stop,
		TakeProfit:  entry + predictedRR*(entry-stop),
		PredictedRR: predictedRR,
	}
}

// RiskDistance returns Entry - Stop.
func (p TradePlan) RiskDistance() float64 { return p.Entry - p.Stop }
