package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"BreakoutSentinel/internal/calculator"
	"BreakoutSentinel/internal/collector"
	"BreakoutSentinel/internal/executor"
	"BreakoutSentinel/internal/ledger"
	"BreakoutSentinel/internal/metrics"
	"BreakoutSentinel/internal/model"
	"BreakoutSentinel/internal/notifier"
	"BreakoutSentinel/internal/recorder"
	"BreakoutSentinel/internal/risk"
	"BreakoutSentinel/internal/strategy"
	"BreakoutSentinel/internal/telemetry"
)

// Skip causes recorded in the ledger.
const (
	CauseRangeTooShort    = "range too short"
	CauseRangeFetchFailed = "range fetch failed"
	CauseMarginCritical   = "margin critical"
	CauseBalanceTooLow    = "balance too low"
	CauseStopTooTight     = "stop too tight"
	CauseInvalidStop      = "invalid stop"
	CauseNotionalTooSmall = "notional too small"
	CauseSizingFailed     = "sizing failed"
	CauseTradeAttempted   = "trade attempted"
)

// Settings are the loop's timing and threshold constants.
type Settings struct {
	Symbol            string
	Leverage          float64
	MinBalance        float64
	MarginWarningPct  float64
	MarginCriticalPct float64
	ScanInterval      time.Duration
	IdleInterval      time.Duration
	PostTradeDelay    time.Duration
	SettleDelay       time.Duration
	HeartbeatCron     string
	StatusCron        string
}

// Loop is the TradingLoop: a single goroutine that evaluates named triggers
// each tick against the current TradingContext.
type Loop struct {
	Collector *collector.Collector
	Evaluator *strategy.Evaluator
	Provider  executor.OrderProvider
	Executor  *executor.Executor
	Guard     *risk.Guard
	Ledger    *ledger.Ledger
	Recorder  recorder.Recorder
	Notifier  notifier.Notifier
	Board     *telemetry.Board
	Hub       *telemetry.Hub
	Settings  Settings

	heartbeat     cron.Schedule
	status        cron.Schedule
	nextHeartbeat time.Time
	nextStatus    time.Time

	tc        *TradingContext
	account   *model.AccountSnapshot
	positions []model.Position

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Deps groups the loop's collaborators.
type Deps struct {
	Collector *collector.Collector
	Evaluator *strategy.Evaluator
	Provider  executor.OrderProvider
	Sizer     *risk.Sizer
	Guard     *risk.Guard
	Ledger    *ledger.Ledger
	Recorder  recorder.Recorder
	Notifier  notifier.Notifier
	Board     *telemetry.Board
	Hub       *telemetry.Hub
}

// New creates a Loop and its executor. The loop observes every executor transition.
func New(d Deps, s Settings) (*Loop, error) {
	hb, err := cron.ParseStandard(s.HeartbeatCron)
	if err != nil {
		return nil, fmt.Errorf("parse heartbeat schedule: %w", err)
	}
	st, err := cron.ParseStandard(s.StatusCron)
	if err != nil {
		return nil, fmt.Errorf("parse status schedule: %w", err)
	}
	if d.Recorder == nil {
		d.Recorder = recorder.NewNoopRecorder()
	}
	if d.Notifier == nil {
		d.Notifier = notifier.Noop{}
	}
	if d.Board == nil {
		d.Board = telemetry.NewBoard()
	}
	l := &Loop{
		Collector: d.Collector,
		Evaluator: d.Evaluator,
		Provider:  d.Provider,
		Guard:     d.Guard,
		Ledger:    d.Ledger,
		Recorder:  d.Recorder,
		Notifier:  d.Notifier,
		Board:     d.Board,
		Hub:       d.Hub,
		Settings:  s,
		heartbeat: hb,
		status:    st,
		now:       func() time.Time { return time.Now().UTC() },
	}
	l.Executor = executor.New(d.Provider, d.Sizer, s.Symbol, s.SettleDelay, l)
	l.Executor.BeforeEntry = l.markAttempt
	return l, nil
}

// Run ticks until ctx is cancelled. An in-flight execution finishes before Run returns.
func (l *Loop) Run(ctx context.Context) {
	log.Printf("[INFO] trading loop started: %s, opening window %02d:00-%02d:00 UTC, one trade per day",
		l.Settings.Symbol, l.Collector.Window.StartHour, l.Collector.Window.EndHour)
	for {
		wait := l.Tick(ctx, l.now())
		if err := l.wait(ctx, wait); err != nil {
			log.Println("[INFO] trading loop stopped")
			return
		}
	}
}

// Tick evaluates the triggers in order and returns how long to sleep.
func (l *Loop) Tick(ctx context.Context, now time.Time) time.Duration {
	now = now.UTC()
	defer l.publish(now)

	if l.dayRolloverDue(now) {
		l.dayRollover(ctx, now)
	}
	if l.statusReportDue(now) {
		l.statusReport(ctx, now)
	}
	if l.heartbeatDue(now) {
		l.heartbeatTick(ctx, now)
	}

	if l.Ledger.Traded(l.tc.Date) {
		return l.Settings.IdleInterval
	}
	if l.tc.Range == nil {
		if !l.rangeBuildDue(now) {
			return l.Settings.IdleInterval
		}
		l.buildRange(ctx, now)
		return l.Settings.IdleInterval
	}
	return l.scan(ctx, now)
}

// Context returns the current TradingContext. Only the loop goroutine may use it.
func (l *Loop) Context() *TradingContext { return l.tc }

func (l *Loop) dayRolloverDue(now time.Time) bool {
	return l.tc == nil || l.tc.Date != ledger.DateOf(now)
}

func (l *Loop) statusReportDue(now time.Time) bool {
	return l.nextStatus.IsZero() || !now.Before(l.nextStatus)
}

func (l *Loop) heartbeatDue(now time.Time) bool {
	if l.nextHeartbeat.IsZero() {
		l.nextHeartbeat = l.heartbeat.Next(now)
		return false
	}
	return !now.Before(l.nextHeartbeat)
}

func (l *Loop) rangeBuildDue(now time.Time) bool {
	return !now.Before(l.Collector.RangeEnd(now))
}

// dayRollover replaces the TradingContext. Ledger marks are kept.
func (l *Loop) dayRollover(ctx context.Context, now time.Time) {
	date := ledger.DateOf(now)
	first := l.tc == nil
	l.tc = newTradingContext(date)
	if first {
		log.Printf("[INFO] trading day %s, traded today: %v, total days traded: %d", date, l.Ledger.Traded(date), l.Ledger.Count())
		return
	}
	log.Printf("[INFO] day rollover: new trading day %s, total days traded: %d", date, l.Ledger.Count())
	l.refreshAccount(ctx)
	l.logPositions()
	l.notify(ctx, fmt.Sprintf("🌅 <b>New trading day</b> %s\nDays traded: %d\n\n%s",
		date, l.Ledger.Count(), notifier.FormatPositions(l.positions, l.formatOptions())))
}

func (l *Loop) statusReport(ctx context.Context, now time.Time) {
	l.nextStatus = l.status.Next(now)
	l.refreshAccount(ctx)
	l.logPositions()
	log.Printf("[INFO] traded today: %v, total days traded: %d, scans since last update: %d",
		l.Ledger.Traded(l.tc.Date), l.Ledger.Count(), l.tc.Scans)
	if r := l.tc.Range; r != nil {
		log.Printf("[INFO] opening range: high=%.2f low=%.2f", r.High, r.Low)
	}
	l.publish(now)
	l.notify(ctx, notifier.FormatStatus(l.Board.Snapshot(), l.formatOptions()))
	l.tc.Scans = 0
}

func (l *Loop) heartbeatTick(ctx context.Context, now time.Time) {
	l.nextHeartbeat = l.heartbeat.Next(now)
	positions, err := l.Provider.ListOpenPositions(ctx)
	if err != nil {
		log.Printf("[WARN] heartbeat: list positions: %v", err)
	} else {
		l.positions = positions
		metrics.SetOpenPositions(len(positions))
	}
	log.Printf("[INFO] heartbeat: %s | positions: %d | traded today: %v",
		now.Format("15:04:05 UTC"), len(l.positions), l.Ledger.Traded(l.tc.Date))
}

func (l *Loop) buildRange(ctx context.Context, now time.Time) {
	log.Printf("[INFO] building opening range for %s", l.tc.Date)
	rng, err := l.Collector.OpeningRange(ctx, now)
	if err != nil {
		cause := CauseRangeFetchFailed
		if errors.Is(err, calculator.ErrInsufficientData) {
			cause = CauseRangeTooShort
		}
		log.Printf("[WARN] opening range unavailable: %v, skipping today", err)
		l.markSkip(ctx, cause)
		return
	}
	l.tc.Range = rng
	metrics.SetRange(rng.High, rng.Low)
	if err := l.Recorder.RecordRange(&recorder.RangeEvent{Range: rng}); err != nil {
		log.Printf("[ERROR] record range: %v", err)
	}
	l.publishEvent("range", rng)
	log.Printf("[INFO] opening range built: high=%.2f low=%.2f width=%.2f (%d candles), scanning for breakouts",
		rng.High, rng.Low, rng.Width(), rng.Candles)
}

// scan fetches post-range candles, evaluates the latest one and executes a qualified signal.
func (l *Loop) scan(ctx context.Context, now time.Time) time.Duration {
	l.tc.Scans++
	rng := l.tc.Range
	post, err := l.Collector.PostRange(ctx, rng, now)
	if err != nil {
		log.Printf("[ERROR] scan: %v", err)
		return l.Settings.ScanInterval
	}
	if !l.Evaluator.Ready(post) {
		return l.Settings.ScanInterval
	}
	sig, err := l.Evaluator.Evaluate(ctx, rng, post)
	if err != nil {
		log.Printf("[ERROR] scan: %v", err)
		return l.Settings.ScanInterval
	}
	l.tc.LastSignal = sig
	metrics.SetPredictedRR(sig.PredictedRR)
	if !sig.Qualified {
		l.recordDecision(sig, "WAIT", "")
		return l.Settings.ScanInterval
	}

	log.Printf("[INFO] signal detected on %s: price=%.2f range high=%.2f breakout=+%.2f predicted R:R=%.2f",
		l.tc.Date, sig.Price, rng.High, sig.Breakout, sig.PredictedRR)

	snap, err := l.Provider.GetAccountSnapshot(ctx)
	if err != nil {
		log.Printf("[ERROR] account snapshot before entry: %v", err)
		return l.Settings.ScanInterval
	}
	l.setAccount(snap)

	if verdict := l.Guard.Check(snap); verdict.Veto {
		metrics.IncCritical()
		l.recordDecision(sig, "SKIP", CauseMarginCritical)
		l.notify(ctx, notifier.FormatCritical("margin usage",
			fmt.Sprintf("Margin usage %.1f%% >= %.0f%%. No new trades until it drops; consider closing positions manually.",
				snap.MarginUsagePct, l.Settings.MarginCriticalPct)))
		l.markSkip(ctx, CauseMarginCritical)
		return l.Settings.IdleInterval
	}

	balance := snap.AvailableBalance
	if balance < l.Settings.MinBalance {
		log.Printf("[ERROR] insufficient balance: %.2f < %.2f", balance, l.Settings.MinBalance)
		l.recordDecision(sig, "SKIP", CauseBalanceTooLow)
		l.markSkip(ctx, CauseBalanceTooLow)
		return l.Settings.IdleInterval
	}

	plan := model.NewTradePlan(sig.Price, rng.Low, sig.PredictedRR)
	log.Printf("[INFO] trade plan: entry=%.2f stop=%.2f risk distance=%.2f take-profit=%.2f + %.2f x %.2f = %.2f",
		plan.Entry, plan.Stop, plan.RiskDistance(), plan.Entry, plan.PredictedRR, plan.RiskDistance(), plan.TakeProfit)
	l.recordDecision(sig, "TRADE", "")

	ex := l.Executor.Execute(ctx, l.tc.Date, plan, balance)
	l.tc.Execution = ex
	l.afterExecution(ctx, ex)
	if ex.State == executor.Complete {
		return l.Settings.PostTradeDelay
	}
	return l.Settings.IdleInterval
}

// markAttempt marks the day before the entry order is sent, so a restart can never trade twice.
// A mark that could not be persisted still gates the day and aborts the entry.
func (l *Loop) markAttempt(ex *executor.ExecutionState) error {
	err := l.Ledger.Mark(ex.Date, CauseTradeAttempted)
	if errors.Is(err, ledger.ErrAlreadyMarked) {
		return err
	}
	l.onMarked(ex.Date, CauseTradeAttempted)
	return err
}

func (l *Loop) afterExecution(ctx context.Context, ex *executor.ExecutionState) {
	if !l.Ledger.Traded(ex.Date) {
		// Aborted during sizing: no order was sent.
		l.markSkip(ctx, sizingCause(ex.Err))
	}
	if err := l.Ledger.RecordOutcome(ex.Date, ex.Outcome()); err != nil {
		log.Printf("[ERROR] record outcome: %v", err)
	}
	if err := l.Recorder.RecordExecution(&recorder.ExecutionEvent{
		ExecutionID: ex.ID,
		Date:        ex.Date,
		State:       string(ex.State),
		Quantity:    ex.FilledQty,
		FillPrice:   ex.FillPrice,
		Stop:        ex.Plan.Stop,
		TakeProfit:  ex.Plan.TakeProfit,
		PredictedRR: ex.Plan.PredictedRR,
		ActualRR:    ex.ActualRR(),
		Degraded:    ex.Degraded,
		AbortReason: ex.AbortReason,
	}); err != nil {
		log.Printf("[ERROR] record execution: %v", err)
	}

	if hasState(ex, executor.StopFailed) {
		metrics.IncCritical()
		if ex.FlattenFailed {
			metrics.IncCritical()
			l.notify(ctx, notifier.FormatCritical("flatten failed",
				fmt.Sprintf("Stop-loss on %s failed and the emergency close did not complete (%d closed). Open orders were left in place. Manual follow-up required. Error: %v",
					ex.Symbol, len(ex.Flattened), ex.Err)))
		} else {
			l.notify(ctx, notifier.FormatCritical("stop-loss failed",
				fmt.Sprintf("Unprotected position on %s was flattened (%d orders). Error: %v", ex.Symbol, len(ex.Flattened), ex.Err)))
		}
	}
	if ex.Sizing != nil {
		l.notify(ctx, notifier.FormatTrade(ex))
	}
	if ex.State == executor.Complete {
		log.Printf("[INFO] trade complete, done for %s. Total days traded: %d. Scanning resumes after the next opening window",
			ex.Date, l.Ledger.Count())
		l.refreshAccount(ctx)
		l.logPositions()
	}
}

// OnTransition implements executor.Observer.
func (l *Loop) OnTransition(ex *executor.ExecutionState, tr executor.Transition) {
	metrics.IncTransition(string(tr.To))
	switch tr.To {
	case executor.EntrySubmitted:
		metrics.IncOrder("entry")
	case executor.StopSubmitted:
		metrics.IncOrder("stop")
	case executor.TakeProfitSubmitted:
		metrics.IncOrder("take_profit")
	case executor.Aborted:
		for range ex.Flattened {
			metrics.IncOrder("flatten")
		}
	}
	if err := l.Recorder.RecordTransition(&recorder.TransitionEvent{
		ExecutionID: ex.ID,
		Date:        ex.Date,
		From:        string(tr.From),
		To:          string(tr.To),
		Note:        tr.Note,
	}); err != nil {
		log.Printf("[ERROR] record transition: %v", err)
	}
	l.publishEvent("transition", map[string]any{
		"execution_id": ex.ID,
		"from":         tr.From,
		"to":           tr.To,
		"note":         tr.Note,
	})
}

// Shutdown logs the open exposure left for the operator.
func (l *Loop) Shutdown(ctx context.Context) {
	log.Println("[INFO] shutting down: positions and their stop/take-profit orders stay on the exchange")
	l.refreshAccount(ctx)
	l.logPositions()
	if len(l.positions) > 0 {
		log.Printf("[WARN] %d open position(s) remain. Manage open positions manually", len(l.positions))
	}
	l.notify(ctx, fmt.Sprintf("🛑 <b>Bot stopped</b>\nManage open positions manually.\n\n%s",
		notifier.FormatPositions(l.positions, l.formatOptions())))
}

func (l *Loop) markSkip(ctx context.Context, cause string) {
	if err := l.Ledger.Mark(l.tc.Date, cause); err != nil {
		log.Printf("[ERROR] mark day: %v", err)
		if errors.Is(err, ledger.ErrAlreadyMarked) {
			return
		}
	}
	l.onMarked(l.tc.Date, cause)
	if cause != CauseTradeAttempted {
		l.notify(ctx, notifier.FormatSkip(l.tc.Date, cause))
	}
}

func (l *Loop) onMarked(date, cause string) {
	metrics.IncDayMark(cause)
	if err := l.Recorder.RecordDayMark(&recorder.DayMarkEvent{Date: date, Cause: cause}); err != nil {
		log.Printf("[ERROR] record day mark: %v", err)
	}
	l.publishEvent("day_mark", map[string]string{"date": date, "cause": cause})
}

func (l *Loop) recordDecision(sig *model.Signal, action, cause string) {
	metrics.IncDecision(action)
	evt := &recorder.DecisionEvent{
		Date:        l.tc.Date,
		Price:       sig.Price,
		RangeHigh:   l.tc.Range.High,
		Breakout:    sig.Breakout > 0,
		PredictedRR: sig.PredictedRR,
		Qualified:   sig.Qualified,
		Features:    sig.Features,
		Action:      action,
		Cause:       cause,
	}
	if err := l.Recorder.RecordDecision(evt); err != nil {
		log.Printf("[ERROR] record decision: %v", err)
	}
	if action != "WAIT" {
		l.publishEvent("decision", evt)
	}
}

func (l *Loop) refreshAccount(ctx context.Context) {
	snap, err := l.Provider.GetAccountSnapshot(ctx)
	if err != nil {
		log.Printf("[ERROR] get account: %v", err)
	} else {
		l.setAccount(snap)
	}
	positions, err := l.Provider.ListOpenPositions(ctx)
	if err != nil {
		log.Printf("[ERROR] list positions: %v", err)
		return
	}
	l.positions = positions
	metrics.SetOpenPositions(len(positions))
}

func (l *Loop) setAccount(snap *model.AccountSnapshot) {
	l.account = snap
	metrics.SetAccount(snap.WalletBalance, snap.MarginUsagePct)
	if err := l.Recorder.RecordAccount(snap); err != nil {
		log.Printf("[ERROR] record account: %v", err)
	}
}

// logPositions writes the account and position summary.
func (l *Loop) logPositions() {
	if a := l.account; a != nil {
		log.Printf("[INFO] wallet=%.2f available=%.2f unrealized=%+.2f margin=%.2f (%.2f%%)",
			a.WalletBalance, a.AvailableBalance, a.UnrealizedPnL, a.TotalMargin, a.MarginUsagePct)
		switch {
		case a.MarginUsagePct >= l.Settings.MarginCriticalPct:
			log.Printf("[CRITICAL] margin usage %.1f%% >= %.0f%%: new trades blocked until margin drops", a.MarginUsagePct, l.Settings.MarginCriticalPct)
		case a.MarginUsagePct >= l.Settings.MarginWarningPct:
			log.Printf("[WARN] margin usage %.1f%% >= %.0f%%", a.MarginUsagePct, l.Settings.MarginWarningPct)
		}
	}
	if len(l.positions) == 0 {
		log.Println("[INFO] no open positions")
		return
	}
	var exposure float64
	for i, p := range l.positions {
		value := abs(p.Amount) * p.MarkPrice
		exposure += value
		log.Printf("[INFO] position %d: %.3f @ %.2f mark=%.2f pnl=%+.2f margin=%.2f",
			i+1, p.Amount, p.EntryPrice, p.MarkPrice, p.UnrealizedPnL, value/l.leverage())
	}
	log.Printf("[INFO] open positions: %d, total exposure %.2f", len(l.positions), exposure)
}

func (l *Loop) publish(now time.Time) {
	tc := l.tc
	if tc == nil {
		return
	}
	status := telemetry.Status{
		Symbol:      l.Settings.Symbol,
		UpdatedAt:   now,
		Date:        tc.Date,
		TradedToday: l.Ledger.Traded(tc.Date),
		DaysTraded:  l.Ledger.Count(),
		Scans:       tc.Scans,
		Positions:   append([]model.Position(nil), l.positions...),
		Ledger:      l.Ledger.Entries(),
	}
	if tc.Range != nil {
		r := *tc.Range
		status.Range = &r
	}
	if tc.LastSignal != nil {
		s := *tc.LastSignal
		status.LastSignal = &s
	}
	if l.account != nil {
		a := *l.account
		status.Account = &a
	}
	if ex := tc.Execution; ex != nil {
		status.Execution = &telemetry.ExecutionSummary{
			ID:          ex.ID,
			Date:        ex.Date,
			State:       string(ex.State),
			Degraded:    ex.Degraded,
			AbortReason: ex.AbortReason,
			FilledQty:   ex.FilledQty,
			FillPrice:   ex.FillPrice,
			Stop:        ex.Plan.Stop,
			TakeProfit:  ex.Plan.TakeProfit,
			PredictedRR: ex.Plan.PredictedRR,
			ActualRR:    ex.ActualRR(),
		}
	}
	l.Board.Publish(status)
}

func (l *Loop) publishEvent(typ string, data any) {
	if l.Hub != nil {
		l.Hub.Publish(typ, data)
	}
}

func (l *Loop) notify(ctx context.Context, text string) {
	if err := l.Notifier.Notify(ctx, text); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}

func (l *Loop) formatOptions() notifier.FormatOptions {
	return notifier.FormatOptions{
		Leverage:          l.leverage(),
		MarginWarningPct:  l.Settings.MarginWarningPct,
		MarginCriticalPct: l.Settings.MarginCriticalPct,
	}
}

func (l *Loop) leverage() float64 {
	if l.Settings.Leverage <= 0 {
		return 1
	}
	return l.Settings.Leverage
}

func (l *Loop) wait(ctx context.Context, d time.Duration) error {
	if l.sleep != nil {
		return l.sleep(ctx, d)
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

func sizingCause(err error) string {
	switch {
	case errors.Is(err, risk.ErrStopTooTight):
		return CauseStopTooTight
	case errors.Is(err, risk.ErrInvalidStop):
		return CauseInvalidStop
	case errors.Is(err, risk.ErrNotionalTooSmall):
		return CauseNotionalTooSmall
	case errors.Is(err, risk.ErrInsufficientBalance):
		return CauseBalanceTooLow
	default:
		return CauseSizingFailed
	}
}

func hasState(ex *executor.ExecutionState, s executor.State) bool {
	for _, tr := range ex.History {
		if tr.To == s {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
