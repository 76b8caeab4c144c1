package strategy

import (
	"context"
	"fmt"
	"log"

	"BreakoutSentinel/internal/model"
	"BreakoutSentinel/internal/retry"
)

// DefaultMinRewardMultiple is the minimum predicted R:R for a signal to qualify.
const DefaultMinRewardMultiple = 2.0

// Predictor maps a feature vector to a predicted reward multiple.
type Predictor interface {
	Predict(f model.FeatureVector) (float64, error)
}

// Evaluator decides whether the latest post-range candle is a qualifying breakout.
type Evaluator struct {
	Predictor         Predictor
	Retry             *retry.Policy
	MinRewardMultiple float64
	ATRPeriod         int
	MinPostCandles    int
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(p Predictor, policy *retry.Policy, minRR float64, atrPeriod, minPost int) *Evaluator {
	if minRR <= 0 {
		minRR = DefaultMinRewardMultiple
	}
	return &Evaluator{
		Predictor:         p,
		Retry:             policy,
		MinRewardMultiple: minRR,
		ATRPeriod:         atrPeriod,
		MinPostCandles:    minPost,
	}
}

// Ready reports whether enough post-range candles exist to evaluate.
func (e *Evaluator) Ready(post []model.Candle) bool {
	return len(post) > 0 && len(post) >= e.MinPostCandles
}

// Evaluate computes features from the latest candle, asks the predictor and
// applies the breakout gate: close strictly above the range high and
// predicted R:R at or above the minimum.
func (e *Evaluator) Evaluate(ctx context.Context, rng *model.Range, post []model.Candle) (*model.Signal, error) {
	if len(post) == 0 {
		return nil, fmt.Errorf("evaluate: no post-range candles")
	}
	features := BuildFeatures(rng, post, e.ATRPeriod)

	var rr float64
	err := e.Retry.Do(ctx, "predict", func() error {
		var err error
		rr, err = e.Predictor.Predict(features)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	last := post[len(post)-1]
	sig := &model.Signal{
		Price:       last.Close,
		Breakout:    last.Close - rng.High,
		PredictedRR: rr,
		Features:    features,
		PostCandles: len(post),
	}
	sig.Qualified = Breakout(last, rng) && rr >= e.MinRewardMultiple

	if sig.Qualified {
		log.Printf("[INFO] signal qualified: close=%.2f > high=%.2f (+%.2f), predicted R:R %.2f >= %.2f",
			last.Close, rng.High, sig.Breakout, rr, e.MinRewardMultiple)
	}
	return sig, nil
}

// Breakout is the live breakout predicate, applied to the latest candle only.
func Breakout(last model.Candle, rng *model.Range) bool {
	return last.Close > rng.High
}
