package scheduler

import (
	"BreakoutSentinel/internal/executor"
	"BreakoutSentinel/internal/model"
)

// TradingContext is the per-day state owned by the loop. A new one is created
// at every UTC day rollover; nothing in it outlives its day.
type TradingContext struct {
	Date       string
	Range      *model.Range
	Scans      int // since the last status report
	LastSignal *model.Signal
	Execution  *executor.ExecutionState
}

func newTradingContext(date string) *TradingContext {
	return &TradingContext{Date: date}
}
