package risk

import (
	"errors"
	"math"
	"testing"

	"BreakoutSentinel/internal/model"
)

func defaultSizer() *Sizer {
	return NewSizer(SizerConfig{
		TargetRiskPct:     1.0,
		MinRiskPct:        0.7,
		MaxRiskPct:        1.4,
		Leverage:          20,
		MinQty:            0.001,
		MinNotional:       10,
		NotionalBuffer:    0.01,
		MinStopPct:        0.5,
		MaxMarginFraction: 0.80,
		QtyPrecision:      3,
	})
}

func TestSize_OnePercentRisk(t *testing.T) {
	s, err := defaultSizer().Size(10000, 50000, 49500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.RiskDistance != 500 {
		t.Errorf("risk distance: expected 500, got %.2f", s.RiskDistance)
	}
	if s.Quantity != 0.2 {
		t.Errorf("quantity: expected 0.200, got %.3f", s.Quantity)
	}
	if math.Abs(s.RealizedRiskPct-1.0) > 1e-9 {
		t.Errorf("realized risk: expected 1%%, got %.4f", s.RealizedRiskPct)
	}
	if s.MarginCapped || s.NotionalRaised {
		t.Errorf("no adjustments expected: %+v", s)
	}
}

func TestSize_InvalidStop(t *testing.T) {
	for _, stop := range []float64{50000, 50001, 60000} {
		s, err := defaultSizer().Size(10000, 50000, stop)
		if !errors.Is(err, ErrInvalidStop) {
			t.Errorf("stop %.0f: expected ErrInvalidStop, got %v", stop, err)
		}
		if s != nil {
			t.Errorf("stop %.0f: must not return a sizing", stop)
		}
	}
}

func TestSize_StopTooTight(t *testing.T) {
	// 0.4% distance
	_, err := defaultSizer().Size(10000, 50000, 49800)
	if !errors.Is(err, ErrStopTooTight) {
		t.Fatalf("expected ErrStopTooTight, got %v", err)
	}
}

func TestSize_MarginCeiling(t *testing.T) {
	// 1x leverage, wide risk budget: qty 10000*0.5/500 = 10 BTC needs 500k margin.
	sz := NewSizer(SizerConfig{TargetRiskPct: 50, Leverage: 1, MinQty: 0.001, MinNotional: 10, NotionalBuffer: 0.01, MinStopPct: 0.5, QtyPrecision: 3})
	s, err := sz.Size(10000, 50000, 49500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.MarginCapped {
		t.Error("expected margin cap")
	}
	if s.Quantity != 0.16 {
		t.Errorf("expected qty 0.160 (8000/50000), got %.3f", s.Quantity)
	}
	if s.RequiredMargin > 0.8*10000+1e-9 {
		t.Errorf("required margin %.2f exceeds ceiling", s.RequiredMargin)
	}
}

func TestSize_MinNotionalRaise(t *testing.T) {
	// Risk of 0.001 at 5000 entry = 5 USDT notional, below 10.1.
	sz := NewSizer(SizerConfig{TargetRiskPct: 0.0001, Leverage: 20, MinQty: 0.001, MinNotional: 10, NotionalBuffer: 0.01, MinStopPct: 0.5, QtyPrecision: 3})
	s, err := sz.Size(1000, 5000, 4900)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.NotionalRaised {
		t.Error("expected notional raise")
	}
	if s.Quantity != 0.003 {
		t.Errorf("expected qty 0.003, got %.3f", s.Quantity)
	}
	if s.Notional < 10.1 {
		t.Errorf("notional %.2f below buffered minimum", s.Notional)
	}
}

func TestSize_NotionalTooSmallWhenCeilingBlocks(t *testing.T) {
	// Tiny balance: min notional needs more margin than 80% of balance allows.
	sz := NewSizer(SizerConfig{TargetRiskPct: 1, Leverage: 1, MinQty: 0.001, MinNotional: 100, NotionalBuffer: 0.01, MinStopPct: 0.5, QtyPrecision: 3})
	_, err := sz.Size(100, 50, 49)
	if !errors.Is(err, ErrNotionalTooSmall) {
		t.Fatalf("expected ErrNotionalTooSmall, got %v", err)
	}
}

func TestSize_InsufficientBalance(t *testing.T) {
	sz := defaultSizer()
	if _, err := sz.Size(0, 50000, 49000); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("zero balance: expected ErrInsufficientBalance, got %v", err)
	}
	// Margin ceiling below min qty: 0.8 * 1 * 20 / 50000 = 0.00032 BTC.
	if _, err := sz.Size(1, 50000, 49000); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("tiny balance: expected ErrInsufficientBalance, got %v", err)
	}
}

// Successful sizings always respect the minimum quantity and the margin ceiling.
func TestSize_PropertyMinQtyAndMarginCeiling(t *testing.T) {
	sz := defaultSizer()
	balances := []float64{50, 100, 523.7, 1000, 10000, 250000, 5e6}
	entries := []float64{25, 3000, 50000, 98765.4}
	stopPcts := []float64{0.5, 0.75, 1, 2.5, 10, 40}
	for _, b := range balances {
		for _, e := range entries {
			for _, pct := range stopPcts {
				stop := e * (1 - pct/100)
				s, err := sz.Size(b, e, stop)
				if err != nil {
					continue
				}
				if s.Quantity < 0.001 {
					t.Errorf("b=%.2f e=%.2f pct=%.2f: qty %.6f below min", b, e, pct, s.Quantity)
				}
				if s.Quantity*e/20 > 0.8*b+1e-6 {
					t.Errorf("b=%.2f e=%.2f pct=%.2f: margin %.4f above ceiling %.4f", b, e, pct, s.Quantity*e/20, 0.8*b)
				}
			}
		}
	}
}

func TestGuard_Check(t *testing.T) {
	g := NewGuard(40, 70)
	tests := []struct {
		usage   float64
		veto    bool
		warning bool
	}{
		{10, false, false},
		{40, false, true},
		{69.9, false, true},
		{70, true, false},
		{71, true, false},
	}
	for _, tt := range tests {
		v := g.Check(&model.AccountSnapshot{MarginUsagePct: tt.usage})
		if v.Veto != tt.veto || v.Warning != tt.warning {
			t.Errorf("usage %.1f: expected veto=%v warning=%v, got %+v", tt.usage, tt.veto, tt.warning, v)
		}
	}
}
