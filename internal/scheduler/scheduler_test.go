package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"BreakoutSentinel/internal/collector"
	"BreakoutSentinel/internal/executor"
	"BreakoutSentinel/internal/ledger"
	"BreakoutSentinel/internal/model"
	"BreakoutSentinel/internal/recorder"
	"BreakoutSentinel/internal/retry"
	"BreakoutSentinel/internal/risk"
	"BreakoutSentinel/internal/strategy"
)

type fakePredictor struct {
	rr    float64
	calls int
}

func (p *fakePredictor) Predict(model.FeatureVector) (float64, error) {
	p.calls++
	return p.rr, nil
}

type fakeProvider struct {
	account     model.AccountSnapshot
	positions   []model.Position
	stopErr     error
	listErr     error
	cancelCalls int
	marketCalls int
	stopCalls   int
	tpCalls     int
	accountCall int
}

func (f *fakeProvider) SubmitMarketOrder(_ context.Context, _ model.Side, qty float64) (*model.OrderResult, error) {
	f.marketCalls++
	return &model.OrderResult{OrderID: 1, Status: "FILLED", FilledQty: qty, AvgPrice: 50050}, nil
}

func (f *fakeProvider) SubmitStopOrder(context.Context, model.Side, float64, float64, bool) (*model.OrderResult, error) {
	f.stopCalls++
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return &model.OrderResult{OrderID: 2, Status: "NEW"}, nil
}

func (f *fakeProvider) SubmitTakeProfitOrder(context.Context, model.Side, float64, float64, bool) (*model.OrderResult, error) {
	f.tpCalls++
	return &model.OrderResult{OrderID: 3, Status: "NEW"}, nil
}

func (f *fakeProvider) CancelAllOrders(context.Context) error {
	f.cancelCalls++
	return nil
}

func (f *fakeProvider) ListOpenPositions(context.Context) ([]model.Position, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.positions, nil
}

func (f *fakeProvider) GetAccountSnapshot(context.Context) (*model.AccountSnapshot, error) {
	f.accountCall++
	snap := f.account
	return &snap, nil
}

func (f *fakeProvider) orderCalls() int { return f.marketCalls + f.stopCalls + f.tpCalls }

type captureNotifier struct {
	messages []string
}

func (c *captureNotifier) Notify(_ context.Context, text string) error {
	c.messages = append(c.messages, text)
	return nil
}

type markRecorder struct {
	*recorder.NoopRecorder
	marks []recorder.DayMarkEvent
}

func (r *markRecorder) RecordDayMark(evt *recorder.DayMarkEvent) error {
	r.marks = append(r.marks, *evt)
	return nil
}

var day = time.Date(2024, 12, 9, 0, 0, 0, 0, time.UTC)

// windowCandles returns n one-minute candles from midnight with high 50000 and low 49000.
func windowCandles(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{Time: day.Add(time.Duration(i) * time.Minute), Open: 49500, High: 49900, Low: 49100, Close: 49500}
	}
	if n > 1 {
		out[n/2].High = 50000
		out[n/3].Low = 49000
	}
	return out
}

func postCandles(closes ...float64) []model.Candle {
	start := day.Add(4 * time.Hour)
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{Time: start.Add(time.Duration(i) * time.Minute), Open: c - 10, High: c + 20, Low: c - 20, Close: c}
	}
	return out
}

type harness struct {
	loop      *Loop
	fetcher   *collector.MockFetcher
	predictor *fakePredictor
	provider  *fakeProvider
	notifier  *captureNotifier
	ledger    *ledger.Ledger
}

func newHarness(t *testing.T, candles []model.Candle, rr float64) *harness {
	t.Helper()
	h := &harness{
		fetcher:   &collector.MockFetcher{Candles: candles},
		predictor: &fakePredictor{rr: rr},
		provider:  &fakeProvider{account: model.AccountSnapshot{WalletBalance: 10000, AvailableBalance: 10000}},
		notifier:  &captureNotifier{},
		ledger:    ledger.New(),
	}
	policy := retry.New(1, time.Millisecond, retry.Always)
	coll := collector.NewCollector(h.fetcher, "BTCUSDT", "1m", collector.Window{StartHour: 0, EndHour: 4}, 30, 5*time.Hour)
	eval := strategy.NewEvaluator(h.predictor, policy, 2.0, 20, 5)
	sizer := risk.NewSizer(risk.SizerConfig{
		TargetRiskPct: 1, MinRiskPct: 0.7, MaxRiskPct: 1.4, Leverage: 20,
		MinQty: 0.001, MinNotional: 10, NotionalBuffer: 0.01, MinStopPct: 0.5,
		MaxMarginFraction: 0.8, QtyPrecision: 3,
	})
	loop, err := New(Deps{
		Collector: coll,
		Evaluator: eval,
		Provider:  h.provider,
		Sizer:     sizer,
		Guard:     risk.NewGuard(60, 70),
		Ledger:    h.ledger,
		Notifier:  h.notifier,
	}, Settings{
		Symbol:            "BTCUSDT",
		Leverage:          20,
		MinBalance:        100,
		MarginWarningPct:  60,
		MarginCriticalPct: 70,
		ScanInterval:      10 * time.Second,
		IdleInterval:      60 * time.Second,
		PostTradeDelay:    5 * time.Minute,
		HeartbeatCron:     "*/30 * * * *",
		StatusCron:        "@every 2h",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	loop.Executor.Sleep = func(context.Context, time.Duration) error { return nil }
	h.loop = loop
	return h
}

func TestTick_WaitsForOpeningWindowToClose(t *testing.T) {
	h := newHarness(t, windowCandles(240), 3.0)
	wait := h.loop.Tick(context.Background(), day.Add(2*time.Hour))
	if wait != 60*time.Second {
		t.Errorf("wait = %v, want idle interval", wait)
	}
	if h.fetcher.Calls != 0 {
		t.Errorf("fetcher called %d times before the window closed", h.fetcher.Calls)
	}
	if h.loop.Context().Range != nil {
		t.Error("range built before the window closed")
	}
}

func TestTick_ShortRangeMarksDay(t *testing.T) {
	h := newHarness(t, windowCandles(10), 3.0)
	h.loop.Tick(context.Background(), day.Add(4*time.Hour+5*time.Minute))

	e, ok := h.ledger.Get("2024-12-09")
	if !ok {
		t.Fatal("expected day to be marked")
	}
	if e.Cause != CauseRangeTooShort {
		t.Errorf("cause = %q, want %q", e.Cause, CauseRangeTooShort)
	}
	if h.predictor.calls != 0 {
		t.Errorf("predictor called %d times", h.predictor.calls)
	}
	if h.provider.orderCalls() != 0 {
		t.Errorf("order calls = %d, want 0", h.provider.orderCalls())
	}

	// Later ticks the same day stay idle.
	fetches := h.fetcher.Calls
	h.loop.Tick(context.Background(), day.Add(5*time.Hour))
	if h.fetcher.Calls != fetches {
		t.Error("fetched again after the day was marked")
	}
}

func TestTick_RangeFetchFailureMarksDay(t *testing.T) {
	h := newHarness(t, nil, 3.0)
	h.fetcher.Err = context.DeadlineExceeded
	h.loop.Tick(context.Background(), day.Add(4*time.Hour))
	e, ok := h.ledger.Get("2024-12-09")
	if !ok || e.Cause != CauseRangeFetchFailed {
		t.Errorf("entry = %+v, ok = %v", e, ok)
	}
}

func TestTick_NotEnoughPostCandlesDoesNotMark(t *testing.T) {
	candles := append(windowCandles(240), postCandles(50010, 50020)...)
	h := newHarness(t, candles, 3.0)
	ctx := context.Background()
	h.loop.Tick(ctx, day.Add(4*time.Hour))
	wait := h.loop.Tick(ctx, day.Add(4*time.Hour+2*time.Minute))

	if wait != 10*time.Second {
		t.Errorf("wait = %v, want scan interval", wait)
	}
	if h.ledger.Traded("2024-12-09") {
		t.Error("day marked without a signal")
	}
	if h.predictor.calls != 0 {
		t.Errorf("predictor called %d times", h.predictor.calls)
	}
}

func TestTick_MarginCriticalVetoesTrade(t *testing.T) {
	candles := append(windowCandles(240), postCandles(49900, 49950, 49980, 49990, 50050)...)
	h := newHarness(t, candles, 3.0)
	h.provider.account = model.AccountSnapshot{WalletBalance: 10000, AvailableBalance: 2900, TotalMargin: 7100, MarginUsagePct: 71}
	ctx := context.Background()
	h.loop.Tick(ctx, day.Add(4*time.Hour))
	h.loop.Tick(ctx, day.Add(4*time.Hour+5*time.Minute))

	e, ok := h.ledger.Get("2024-12-09")
	if !ok || e.Cause != CauseMarginCritical {
		t.Fatalf("entry = %+v, ok = %v", e, ok)
	}
	if h.provider.orderCalls() != 0 {
		t.Errorf("order calls = %d, want 0", h.provider.orderCalls())
	}
	if h.loop.Context().Execution != nil {
		t.Error("execution started despite veto")
	}
}

func TestTick_LowBalanceSkipsDay(t *testing.T) {
	candles := append(windowCandles(240), postCandles(49900, 49950, 49980, 49990, 50050)...)
	h := newHarness(t, candles, 3.0)
	h.provider.account = model.AccountSnapshot{WalletBalance: 90, AvailableBalance: 90}
	ctx := context.Background()
	h.loop.Tick(ctx, day.Add(4*time.Hour))
	h.loop.Tick(ctx, day.Add(4*time.Hour+5*time.Minute))

	e, ok := h.ledger.Get("2024-12-09")
	if !ok || e.Cause != CauseBalanceTooLow {
		t.Fatalf("entry = %+v, ok = %v", e, ok)
	}
	if h.provider.orderCalls() != 0 {
		t.Errorf("order calls = %d, want 0", h.provider.orderCalls())
	}
}

func TestTick_TradesOncePerDay(t *testing.T) {
	candles := append(windowCandles(240), postCandles(49900, 49950, 49980, 49990, 50050)...)
	h := newHarness(t, candles, 3.0)
	ctx := context.Background()
	h.loop.Tick(ctx, day.Add(4*time.Hour))
	wait := h.loop.Tick(ctx, day.Add(4*time.Hour+5*time.Minute))

	if wait != 5*time.Minute {
		t.Errorf("wait = %v, want post-trade delay", wait)
	}
	ex := h.loop.Context().Execution
	if ex == nil || ex.State != executor.Complete {
		t.Fatalf("execution = %+v", ex)
	}
	if ex.Plan.Stop != 49000 || ex.Plan.TakeProfit != 53200 {
		t.Errorf("plan = %+v", ex.Plan)
	}
	if ex.FilledQty != 0.095 {
		t.Errorf("filled qty = %v, want 0.095", ex.FilledQty)
	}
	e, ok := h.ledger.Get("2024-12-09")
	if !ok || e.Cause != CauseTradeAttempted || e.Outcome != "Complete" {
		t.Errorf("entry = %+v, ok = %v", e, ok)
	}
	if h.provider.marketCalls != 1 || h.provider.stopCalls != 1 || h.provider.tpCalls != 1 {
		t.Errorf("calls market=%d stop=%d tp=%d", h.provider.marketCalls, h.provider.stopCalls, h.provider.tpCalls)
	}

	wait = h.loop.Tick(ctx, day.Add(4*time.Hour+30*time.Second+10*time.Minute))
	if wait != 60*time.Second {
		t.Errorf("wait after trade = %v, want idle interval", wait)
	}
	if h.provider.marketCalls != 1 {
		t.Errorf("second entry sent: market calls = %d", h.provider.marketCalls)
	}
	if h.ledger.Count() != 1 {
		t.Errorf("days traded = %d, want 1", h.ledger.Count())
	}

	var traded bool
	for _, m := range h.notifier.messages {
		if strings.Contains(m, "BTCUSDT") && strings.Contains(m, "53200") {
			traded = true
		}
	}
	if !traded {
		t.Errorf("no trade notification among %d messages", len(h.notifier.messages))
	}
}

func TestTick_SizingFailureMarksCause(t *testing.T) {
	// A close barely above a range whose low is 0.1% away gives a stop below the minimum distance.
	window := windowCandles(240)
	for i := range window {
		window[i].Low = 49990
		window[i].High = 49995
	}
	candles := append(window, postCandles(50000, 50000, 50000, 50000, 50010)...)
	h := newHarness(t, candles, 3.0)
	ctx := context.Background()
	h.loop.Tick(ctx, day.Add(4*time.Hour))
	h.loop.Tick(ctx, day.Add(4*time.Hour+5*time.Minute))

	e, ok := h.ledger.Get("2024-12-09")
	if !ok || e.Cause != CauseStopTooTight {
		t.Fatalf("entry = %+v, ok = %v", e, ok)
	}
	if h.provider.orderCalls() != 0 {
		t.Errorf("order calls = %d, want 0", h.provider.orderCalls())
	}
}

func TestTick_DayRolloverResetsContext(t *testing.T) {
	h := newHarness(t, windowCandles(240), 3.0)
	ctx := context.Background()
	h.loop.Tick(ctx, day.Add(4*time.Hour))
	if h.loop.Context().Range == nil {
		t.Fatal("expected range on day one")
	}
	h.loop.Tick(ctx, day.Add(25*time.Hour))
	tc := h.loop.Context()
	if tc.Date != "2024-12-10" {
		t.Errorf("date = %q", tc.Date)
	}
	if tc.Range != nil || tc.LastSignal != nil || tc.Execution != nil {
		t.Errorf("context not reset: %+v", tc)
	}
}

func TestTick_StatusReportDueAtStart(t *testing.T) {
	h := newHarness(t, windowCandles(240), 3.0)
	ctx := context.Background()
	h.loop.Tick(ctx, day.Add(time.Hour))
	if h.provider.accountCall != 1 {
		t.Errorf("account fetched %d times, want 1", h.provider.accountCall)
	}
	if len(h.notifier.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(h.notifier.messages))
	}

	h.loop.Tick(ctx, day.Add(time.Hour+time.Minute))
	if h.provider.accountCall != 1 {
		t.Errorf("status repeated before its schedule: %d account fetches", h.provider.accountCall)
	}
	h.loop.Tick(ctx, day.Add(3*time.Hour+time.Minute))
	if h.provider.accountCall != 2 {
		t.Errorf("status not repeated after 2h: %d account fetches", h.provider.accountCall)
	}
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := New(Deps{Ledger: ledger.New()}, Settings{HeartbeatCron: "not a cron", StatusCron: "@every 2h"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSizingCause(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{risk.ErrStopTooTight, CauseStopTooTight},
		{risk.ErrInvalidStop, CauseInvalidStop},
		{risk.ErrNotionalTooSmall, CauseNotionalTooSmall},
		{risk.ErrInsufficientBalance, CauseBalanceTooLow},
		{context.Canceled, CauseSizingFailed},
	}
	for _, tt := range tests {
		if got := sizingCause(tt.err); got != tt.want {
			t.Errorf("sizingCause(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestTick_FlattenFailureAlertsManualFollowUp(t *testing.T) {
	candles := append(windowCandles(240), postCandles(49900, 49950, 49980, 49990, 50050)...)
	h := newHarness(t, candles, 3.0)
	ctx := context.Background()
	h.loop.Tick(ctx, day.Add(4*time.Hour))
	h.provider.stopErr = errors.New("stop rejected")
	h.provider.listErr = errors.New("positions unavailable")
	h.loop.Tick(ctx, day.Add(4*time.Hour+5*time.Minute))

	ex := h.loop.Context().Execution
	if ex == nil || !ex.FlattenFailed || ex.AbortReason != executor.ReasonFlattenFailed {
		t.Fatalf("execution = %+v", ex)
	}
	if h.provider.cancelCalls != 0 {
		t.Errorf("orders cancelled after a failed flatten: %d", h.provider.cancelCalls)
	}
	var alerted bool
	for _, m := range h.notifier.messages {
		if strings.Contains(m, "flatten failed") && strings.Contains(m, "Manual follow-up required") {
			alerted = true
		}
		if strings.Contains(m, "was flattened") {
			t.Errorf("alert claims the position was flattened: %q", m)
		}
	}
	if !alerted {
		t.Errorf("no manual follow-up alert among %d messages", len(h.notifier.messages))
	}
	e, _ := h.ledger.Get("2024-12-09")
	if !strings.Contains(e.Outcome, executor.ReasonFlattenFailed) {
		t.Errorf("ledger outcome = %q", e.Outcome)
	}
}

func TestTick_SkipCauseRecordedWhenLedgerSaveFails(t *testing.T) {
	h := newHarness(t, windowCandles(10), 3.0)
	dir := filepath.Join(t.TempDir(), "data")
	l, err := ledger.Open(filepath.Join(dir, "ledger.json"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	rec := &markRecorder{NoopRecorder: recorder.NewNoopRecorder()}
	h.loop.Ledger = l
	h.loop.Recorder = rec

	h.loop.Tick(context.Background(), day.Add(4*time.Hour))

	if !l.Traded("2024-12-09") {
		t.Fatal("day not gated")
	}
	if len(rec.marks) != 1 || rec.marks[0].Cause != CauseRangeTooShort {
		t.Errorf("recorded marks = %+v", rec.marks)
	}
	var notified bool
	for _, m := range h.notifier.messages {
		if strings.Contains(m, CauseRangeTooShort) {
			notified = true
		}
	}
	if !notified {
		t.Error("skip cause not notified")
	}
}
