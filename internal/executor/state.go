package executor

import (
	"time"

	"BreakoutSentinel/internal/model"
	"BreakoutSentinel/internal/risk"
)

// State is a step in the entry/protection lifecycle.
type State string

const (
	Idle                State = "Idle"
	Sizing              State = "Sizing"
	EntrySubmitted      State = "EntrySubmitted"
	EntryFilled         State = "EntryFilled"
	StopSubmitted       State = "StopSubmitted"
	StopConfirmed       State = "StopConfirmed"
	StopFailed          State = "StopFailed"
	TakeProfitSubmitted State = "TakeProfitSubmitted"
	Complete            State = "Complete"
	EmergencyFlatten    State = "EmergencyFlatten"
	Aborted             State = "Aborted"
)

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	return s == Complete || s == Aborted
}

// allowed lists the legal successors of each state.
var allowed = map[State][]State{
	Idle:                {Sizing},
	Sizing:              {EntrySubmitted, Aborted},
	EntrySubmitted:      {EntryFilled, Aborted},
	EntryFilled:         {StopSubmitted},
	StopSubmitted:       {StopConfirmed, StopFailed},
	StopConfirmed:       {TakeProfitSubmitted},
	StopFailed:          {EmergencyFlatten},
	TakeProfitSubmitted: {Complete},
	EmergencyFlatten:    {Aborted},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	At   time.Time
	Note string
}

// ExecutionState is the full record of one trade attempt.
type ExecutionState struct {
	ID         string
	Date       string
	Symbol     string
	State      State
	History    []Transition
	Plan       model.TradePlan
	Balance    float64
	Sizing     *risk.Sizing
	Entry      *model.OrderResult
	FilledQty  float64
	FillPrice  float64
	Stop       *model.OrderResult
	TakeProfit *model.OrderResult
	Flattened  []model.OrderResult
	Degraded   bool
	// FlattenFailed is set when a position may still be open without a stop.
	FlattenFailed bool
	// AbortReason is set when State is Aborted.
	AbortReason string
	// Err is the error that caused the abort or degradation, if any.
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// ActualRR is the reward multiple implied by the real fill against the planned stop and target.
func (e *ExecutionState) ActualRR() float64 {
	if e.FillPrice-e.Plan.Stop <= 0 {
		return 0
	}
	return (e.Plan.TakeProfit - e.FillPrice) / (e.FillPrice - e.Plan.Stop)
}

// ActualRisk is the loss if the stop is hit at the planned price.
func (e *ExecutionState) ActualRisk() float64 {
	return e.FilledQty * (e.FillPrice - e.Plan.Stop)
}

// Outcome is a one-line summary suitable for the ledger.
func (e *ExecutionState) Outcome() string {
	switch {
	case e.State == Aborted:
		return "Aborted: " + e.AbortReason
	case e.Degraded:
		return "Complete (degraded: no take-profit)"
	default:
		return string(e.State)
	}
}
