package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"BreakoutSentinel/internal/ledger"
	"BreakoutSentinel/internal/model"
	"BreakoutSentinel/internal/telemetry"
)

func TestHealthz(t *testing.T) {
	router := NewRouter(telemetry.NewBoard(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
		t.Errorf("unexpected response: %d %q", w.Code, w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	board := telemetry.NewBoard()
	board.Publish(telemetry.Status{
		Symbol: "BTCUSDT",
		Range:  &model.Range{High: 50000, Low: 49500, Date: "2024-03-01", Candles: 240},
		Ledger: []ledger.Entry{{Date: "2024-03-01", Cause: "trade attempted"}},
	})
	router := NewRouter(board, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	var resp struct {
		Success bool             `json:"success"`
		Data    telemetry.Status `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Data.Symbol != "BTCUSDT" || resp.Data.Range == nil || resp.Data.Range.High != 50000 {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(telemetry.NewBoard(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("unexpected metrics response: %d", w.Code)
	}
}
