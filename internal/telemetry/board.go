package telemetry

import (
	"sync"
	"time"

	"BreakoutSentinel/internal/ledger"
	"BreakoutSentinel/internal/model"
)

// ExecutionSummary is the published view of the latest trade attempt.
type ExecutionSummary struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	State       string  `json:"state"`
	Degraded    bool    `json:"degraded"`
	AbortReason string  `json:"abort_reason,omitempty"`
	FilledQty   float64 `json:"filled_qty"`
	FillPrice   float64 `json:"fill_price"`
	Stop        float64 `json:"stop"`
	TakeProfit  float64 `json:"take_profit"`
	PredictedRR float64 `json:"predicted_rr"`
	ActualRR    float64 `json:"actual_rr"`
}

// Status is a point-in-time copy of the trading loop's state.
type Status struct {
	Symbol      string                 `json:"symbol"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Date        string                 `json:"date"`
	Range       *model.Range           `json:"range,omitempty"`
	TradedToday bool                   `json:"traded_today"`
	DaysTraded  int                    `json:"days_traded"`
	Scans       int                    `json:"scans"`
	LastSignal  *model.Signal          `json:"last_signal,omitempty"`
	Account     *model.AccountSnapshot `json:"account,omitempty"`
	Positions   []model.Position       `json:"positions"`
	Execution   *ExecutionSummary      `json:"execution,omitempty"`
	Ledger      []ledger.Entry         `json:"ledger"`
}

// Board holds the latest Status for readers outside the loop goroutine.
type Board struct {
	mu     sync.RWMutex
	status Status
}

func NewBoard() *Board { return &Board{} }

// Publish replaces the status. The caller must not retain references into s.
func (b *Board) Publish(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// Snapshot returns a copy safe to read concurrently.
func (b *Board) Snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.status
	if s.Range != nil {
		r := *s.Range
		s.Range = &r
	}
	if s.LastSignal != nil {
		sig := *s.LastSignal
		s.LastSignal = &sig
	}
	if s.Account != nil {
		a := *s.Account
		s.Account = &a
	}
	if s.Execution != nil {
		e := *s.Execution
		s.Execution = &e
	}
	s.Positions = append([]model.Position(nil), s.Positions...)
	s.Ledger = append([]ledger.Entry(nil), s.Ledger...)
	return s
}
