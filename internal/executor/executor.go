package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"BreakoutSentinel/internal/model"
	"BreakoutSentinel/internal/risk"
)

// OrderProvider is the exchange surface the executor and trading loop need.
type OrderProvider interface {
	SubmitMarketOrder(ctx context.Context, side model.Side, qty float64) (*model.OrderResult, error)
	SubmitStopOrder(ctx context.Context, side model.Side, qty, stopPrice float64, reduceOnly bool) (*model.OrderResult, error)
	SubmitTakeProfitOrder(ctx context.Context, side model.Side, qty, triggerPrice float64, reduceOnly bool) (*model.OrderResult, error)
	CancelAllOrders(ctx context.Context) error
	ListOpenPositions(ctx context.Context) ([]model.Position, error)
	GetAccountSnapshot(ctx context.Context) (*model.AccountSnapshot, error)
}

// Observer receives every transition synchronously. The state must be treated as read-only.
type Observer interface {
	OnTransition(exec *ExecutionState, tr Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(exec *ExecutionState, tr Transition)

func (f ObserverFunc) OnTransition(exec *ExecutionState, tr Transition) { f(exec, tr) }

// Abort reasons after a failed stop-loss.
const (
	ReasonFlattened     = "stop-loss failed, position flattened"
	ReasonFlattenFailed = "flatten failed, manual follow-up required"
)

// ErrZeroFill is the abort cause when the entry order reports no executed quantity.
var ErrZeroFill = errors.New("entry order filled zero quantity")

// Executor drives one TradePlan from sizing to a protected position.
type Executor struct {
	Provider    OrderProvider
	Sizer       *risk.Sizer
	Symbol      string
	SettleDelay time.Duration
	Observers   []Observer
	// BeforeEntry runs after sizing and before the entry order. An error aborts with no order sent.
	BeforeEntry func(ex *ExecutionState) error
	// Sleep waits out the settle delay; nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates an Executor.
func New(provider OrderProvider, sizer *risk.Sizer, symbol string, settleDelay time.Duration, observers ...Observer) *Executor {
	return &Executor{
		Provider:    provider,
		Sizer:       sizer,
		Symbol:      symbol,
		SettleDelay: settleDelay,
		Observers:   observers,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs the plan to a terminal state. The returned state is always
// Complete or Aborted; an error never escapes without being recorded on it.
// Cancelling ctx does not interrupt a started execution.
func (e *Executor) Execute(ctx context.Context, date string, plan model.TradePlan, balance float64) *ExecutionState {
	ctx = context.WithoutCancel(ctx)
	ex := &ExecutionState{
		ID:        uuid.NewString(),
		Date:      date,
		Symbol:    e.Symbol,
		State:     Idle,
		Plan:      plan,
		Balance:   balance,
		StartedAt: e.clock(),
	}
	log.Printf("[INFO] execution %s started: entry=%.2f stop=%.2f tp=%.2f predicted R:R=%.2f balance=%.2f",
		ex.ID, plan.Entry, plan.Stop, plan.TakeProfit, plan.PredictedRR, balance)

	e.move(ex, Sizing, "")
	sizing, err := e.Sizer.Size(balance, plan.Entry, plan.Stop)
	if err != nil {
		e.abort(ex, err, "sizing failed")
		return ex
	}
	ex.Sizing = sizing
	ex.Plan.Quantity = sizing.Quantity
	if e.BeforeEntry != nil {
		if err := e.BeforeEntry(ex); err != nil {
			e.abort(ex, err, "pre-entry check failed")
			return ex
		}
	}

	e.move(ex, EntrySubmitted, fmt.Sprintf("market BUY %.3f", sizing.Quantity))
	entry, err := e.Provider.SubmitMarketOrder(ctx, model.SideBuy, sizing.Quantity)
	if err != nil {
		e.abort(ex, err, "entry order failed")
		return ex
	}
	ex.Entry = entry
	if entry.FilledQty <= 0 {
		e.abort(ex, ErrZeroFill, "entry order filled zero")
		return ex
	}
	ex.FilledQty = entry.FilledQty
	ex.FillPrice = entry.AvgPrice
	if ex.FillPrice <= 0 {
		ex.FillPrice = plan.Entry
	}
	e.move(ex, EntryFilled, fmt.Sprintf("filled %.3f @ %.2f", ex.FilledQty, ex.FillPrice))

	if err := e.sleep(ctx, e.SettleDelay); err != nil {
		log.Printf("[WARN] settle delay interrupted: %v", err)
	}

	e.move(ex, StopSubmitted, fmt.Sprintf("stop SELL %.3f @ %.2f", ex.FilledQty, plan.Stop))
	stop, err := e.Provider.SubmitStopOrder(ctx, model.SideSell, ex.FilledQty, plan.Stop, true)
	if err != nil {
		ex.Err = err
		e.move(ex, StopFailed, err.Error())
		e.flatten(ctx, ex)
		return ex
	}
	ex.Stop = stop
	e.move(ex, StopConfirmed, fmt.Sprintf("order %d", stop.OrderID))

	e.move(ex, TakeProfitSubmitted, fmt.Sprintf("take-profit SELL %.3f @ %.2f", ex.FilledQty, plan.TakeProfit))
	tp, err := e.Provider.SubmitTakeProfitOrder(ctx, model.SideSell, ex.FilledQty, plan.TakeProfit, true)
	if err != nil {
		ex.Degraded = true
		ex.Err = err
		log.Printf("[WARN] take-profit order failed, position still protected by stop: %v", err)
		e.finish(ex, Complete, "degraded: take-profit missing")
		return ex
	}
	ex.TakeProfit = tp
	e.finish(ex, Complete, fmt.Sprintf("take-profit order %d", tp.OrderID))
	e.logSummary(ex)
	return ex
}

// flatten closes every open position on the instrument once. Remaining orders
// are cancelled only when every position was closed; otherwise they may still
// protect positions from earlier days and are left in place.
func (e *Executor) flatten(ctx context.Context, ex *ExecutionState) {
	log.Printf("[CRITICAL] stop-loss order failed: unprotected position, closing immediately")
	e.move(ex, EmergencyFlatten, "closing all positions")

	positions, err := e.Provider.ListOpenPositions(ctx)
	if err != nil {
		log.Printf("[CRITICAL] list positions during flatten: %v", err)
		ex.FlattenFailed = true
	}
	for _, p := range positions {
		if p.Amount == 0 {
			continue
		}
		side := model.SideSell
		if p.Amount < 0 {
			side = model.SideBuy
		}
		qty := math.Abs(p.Amount)
		res, err := e.Provider.SubmitMarketOrder(ctx, side, qty)
		if err != nil {
			log.Printf("[CRITICAL] flatten %s %.3f failed: %v. CHECK THE EXCHANGE", side, qty, err)
			ex.FlattenFailed = true
			continue
		}
		ex.Flattened = append(ex.Flattened, *res)
		log.Printf("[INFO] closed position: %.3f %s", qty, side)
	}

	if ex.FlattenFailed {
		ex.AbortReason = ReasonFlattenFailed
		log.Printf("[CRITICAL] %s: %d position(s) closed, open orders left untouched", ex.AbortReason, len(ex.Flattened))
		e.finish(ex, Aborted, ex.AbortReason)
		return
	}
	if err := e.Provider.CancelAllOrders(ctx); err != nil {
		log.Printf("[ERROR] cancel orders after flatten: %v", err)
	}
	ex.AbortReason = ReasonFlattened
	e.finish(ex, Aborted, ex.AbortReason)
}

func (e *Executor) abort(ex *ExecutionState, err error, reason string) {
	ex.Err = err
	ex.AbortReason = fmt.Sprintf("%s: %v", reason, err)
	log.Printf("[ERROR] %s, aborting trade", ex.AbortReason)
	e.finish(ex, Aborted, ex.AbortReason)
}

func (e *Executor) finish(ex *ExecutionState, to State, note string) {
	ex.FinishedAt = e.clock()
	e.move(ex, to, note)
}

func (e *Executor) move(ex *ExecutionState, to State, note string) {
	if !CanTransition(ex.State, to) {
		log.Printf("[ERROR] illegal transition %s -> %s", ex.State, to)
		return
	}
	tr := Transition{From: ex.State, To: to, At: e.clock(), Note: note}
	ex.State = to
	ex.History = append(ex.History, tr)
	if note != "" {
		log.Printf("[INFO] execution %s: %s -> %s (%s)", ex.ID, tr.From, tr.To, note)
	} else {
		log.Printf("[INFO] execution %s: %s -> %s", ex.ID, tr.From, tr.To)
	}
	for _, o := range e.Observers {
		o.OnTransition(ex, tr)
	}
}

func (e *Executor) logSummary(ex *ExecutionState) {
	log.Printf("[INFO] trade complete: %.3f %s LONG entry=%.2f stop=%.2f tp=%.2f risk=%.2f predicted R:R=%.2f actual R:R=%.2f",
		ex.FilledQty, ex.Symbol, ex.FillPrice, ex.Plan.Stop, ex.Plan.TakeProfit, ex.ActualRisk(), ex.Plan.PredictedRR, ex.ActualRR())
}

func (e *Executor) clock() time.Time {
	if e.now == nil {
		return time.Now().UTC()
	}
	return e.now()
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
