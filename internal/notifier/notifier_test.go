package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"BreakoutSentinel/internal/executor"
	"BreakoutSentinel/internal/ledger"
	"BreakoutSentinel/internal/model"
	"BreakoutSentinel/internal/retry"
	"BreakoutSentinel/internal/telemetry"
)

type fakeTelegram struct {
	mu       sync.Mutex
	sent     []map[string]string
	failures int
	updates  string
}

func (f *fakeTelegram) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if f.failures > 0 {
				f.failures--
				w.WriteHeader(http.StatusBadGateway)
				fmt.Fprint(w, `{"ok":false,"description":"bad gateway"}`)
				return
			}
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			f.sent = append(f.sent, body)
			fmt.Fprint(w, `{"ok":true}`)
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			fmt.Fprint(w, f.updates)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}
}

func newTestNotifier(t *testing.T, fake *fakeTelegram) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	policy := retry.New(3, time.Millisecond, nil)
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	n := NewTelegramNotifier("TOKEN", "42", "", policy)
	n.Client.SetBaseURL(srv.URL)
	return n
}

func TestSend(t *testing.T) {
	fake := &fakeTelegram{}
	n := newTestNotifier(t, fake)
	if err := n.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.sent) != 1 || fake.sent[0]["chat_id"] != "42" || fake.sent[0]["parse_mode"] != "HTML" {
		t.Errorf("unexpected payload: %+v", fake.sent)
	}
}

func TestSendWithRetry_RecoversAfterFailures(t *testing.T) {
	fake := &fakeTelegram{failures: 2}
	n := newTestNotifier(t, fake)
	if err := n.SendWithRetry(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.sent) != 1 {
		t.Errorf("expected one delivered message, got %d", len(fake.sent))
	}
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	fake := &fakeTelegram{failures: 5}
	n := newTestNotifier(t, fake)
	if err := n.Notify(context.Background(), "hello"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestPoll_AnswersConfiguredChatOnly(t *testing.T) {
	fake := &fakeTelegram{updates: `{"ok":true,"result":[
		{"update_id":10,"message":{"text":"/status","chat":{"id":42}}},
		{"update_id":11,"message":{"text":"/status","chat":{"id":7}}}]}`}
	n := newTestNotifier(t, fake)

	var handled []string
	next, err := n.poll(context.Background(), 0, 0, func(cmd string) string {
		handled = append(handled, cmd)
		return "ok"
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != 12 {
		t.Errorf("expected next offset 12, got %d", next)
	}
	if len(handled) != 1 {
		t.Errorf("expected one handled command, got %v", handled)
	}
	if len(fake.sent) != 1 || fake.sent[0]["text"] != "ok" {
		t.Errorf("expected one reply, got %+v", fake.sent)
	}
}

func TestCommandHandler(t *testing.T) {
	board := telemetry.NewBoard()
	board.Publish(telemetry.Status{
		Symbol:     "BTCUSDT",
		DaysTraded: 2,
		Ledger:     []ledger.Entry{{Date: "2024-03-01", Cause: "range too short"}},
	})
	h := NewCommandHandler(board, FormatOptions{Leverage: 20, MarginWarningPct: 40, MarginCriticalPct: 70})

	if got := h("/status@orb_bot"); !strings.Contains(got, "Days traded: 2") {
		t.Errorf("status reply: %q", got)
	}
	if got := h("/ledger"); !strings.Contains(got, "range too short") {
		t.Errorf("ledger reply: %q", got)
	}
	if got := h("hello"); got != "" {
		t.Errorf("unknown command must be ignored, got %q", got)
	}
	if got := h("   "); got != "" {
		t.Errorf("blank command must be ignored, got %q", got)
	}
}

func TestFormatPositions_MarginAndExposure(t *testing.T) {
	out := FormatPositions([]model.Position{{Amount: 0.2, EntryPrice: 50000, MarkPrice: 50500}}, FormatOptions{Leverage: 20})
	if !strings.Contains(out, "margin 505.00") {
		t.Errorf("expected per-position margin, got %q", out)
	}
	if !strings.Contains(out, "Total exposure: 10100.00") {
		t.Errorf("expected total exposure, got %q", out)
	}
}

func TestFormatAccount_Banner(t *testing.T) {
	opts := FormatOptions{MarginWarningPct: 40, MarginCriticalPct: 70}
	if out := FormatAccount(&model.AccountSnapshot{MarginUsagePct: 75}, opts); !strings.Contains(out, "new trades blocked") {
		t.Errorf("expected critical banner, got %q", out)
	}
	if out := FormatAccount(&model.AccountSnapshot{MarginUsagePct: 45}, opts); !strings.Contains(out, "⚠️") {
		t.Errorf("expected warning banner, got %q", out)
	}
}

func TestFormatTrade(t *testing.T) {
	ex := &executor.ExecutionState{
		Symbol: "BTCUSDT", Date: "2024-03-01", State: executor.Complete,
		Plan: model.NewTradePlan(50000, 49600, 8), FilledQty: 0.15, FillPrice: 50020,
	}
	out := FormatTrade(ex)
	if !strings.Contains(out, "Take profit: 53200.00") || !strings.Contains(out, "actual 7.57") {
		t.Errorf("unexpected trade message: %q", out)
	}

	ex.State = executor.Aborted
	ex.AbortReason = "stop-loss failed, position flattened"
	if out := FormatTrade(ex); !strings.Contains(out, "aborted") {
		t.Errorf("unexpected abort message: %q", out)
	}
}
