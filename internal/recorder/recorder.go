package recorder

import "BreakoutSentinel/internal/model"

// RangeEvent records the opening range built for a day.
type RangeEvent struct {
	Range *model.Range
}

// DecisionEvent records one signal evaluation.
type DecisionEvent struct {
	Date        string
	Price       float64
	RangeHigh   float64
	Breakout    bool
	PredictedRR float64
	Qualified   bool
	Features    model.FeatureVector
	Action      string // "TRADE", "WAIT", "SKIP"
	Cause       string
}

// TransitionEvent records an executor state change.
type TransitionEvent struct {
	ExecutionID string
	Date        string
	From        string
	To          string
	Note        string
}

// ExecutionEvent records the terminal state of a trade attempt.
type ExecutionEvent struct {
	ExecutionID string
	Date        string
	State       string
	Quantity    float64
	FillPrice   float64
	Stop        float64
	TakeProfit  float64
	PredictedRR float64
	ActualRR    float64
	Degraded    bool
	AbortReason string
}

// DayMarkEvent records a DayGate mark.
type DayMarkEvent struct {
	Date  string
	Cause string
}

// Recorder persists the decision journal for the external dashboard and analysis.
type Recorder interface {
	RecordRange(evt *RangeEvent) error
	RecordDecision(evt *DecisionEvent) error
	RecordTransition(evt *TransitionEvent) error
	RecordExecution(evt *ExecutionEvent) error
	RecordDayMark(evt *DayMarkEvent) error
	RecordAccount(snap *model.AccountSnapshot) error
	Close() error
}
