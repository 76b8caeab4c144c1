package risk

import (
	"errors"
	"fmt"
	"log"

	"BreakoutSentinel/internal/calculator"
)

// Sizing validation failures. Each aborts the day's attempt, never the process.
var (
	ErrInvalidStop         = errors.New("invalid stop: stop price at or above entry")
	ErrStopTooTight        = errors.New("stop too tight")
	ErrNotionalTooSmall    = errors.New("notional below exchange minimum")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// SizerConfig holds the sizing constants.
type SizerConfig struct {
	TargetRiskPct     float64 // percent of balance risked per trade
	MinRiskPct        float64 // realized risk below this is logged
	MaxRiskPct        float64 // realized risk above this is logged
	Leverage          float64
	MinQty            float64
	MinNotional       float64
	NotionalBuffer    float64 // 0.01 = 1% safety buffer over MinNotional
	MinStopPct        float64 // minimum (entry-stop)/entry, in percent
	MaxMarginFraction float64 // required margin ceiling as a fraction of balance
	QtyPrecision      int32
}

// Sizing is the result of a successful sizing.
type Sizing struct {
	Quantity        float64
	RiskDistance    float64
	RealizedRiskPct float64
	RiskAmount      float64
	Notional        float64
	RequiredMargin  float64
	MarginCapped    bool
	NotionalRaised  bool
}

// Sizer converts balance, entry and stop into an order quantity risking a fixed fraction of balance.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a Sizer.
func NewSizer(cfg SizerConfig) *Sizer {
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	if cfg.MaxMarginFraction <= 0 {
		cfg.MaxMarginFraction = 0.80
	}
	return &Sizer{cfg: cfg}
}

// Size is a pure function of its inputs and the exchange constants.
func (s *Sizer) Size(balance, entry, stop float64) (*Sizing, error) {
	c := s.cfg
	if stop >= entry {
		return nil, fmt.Errorf("%w: entry %.2f, stop %.2f", ErrInvalidStop, entry, stop)
	}
	if balance <= 0 {
		return nil, fmt.Errorf("%w: balance %.2f", ErrInsufficientBalance, balance)
	}
	riskDistance := entry - stop
	stopPct := riskDistance / entry * 100
	if stopPct < c.MinStopPct {
		return nil, fmt.Errorf("%w: %.2f%% < %.2f%% (minimum distance %.2f)",
			ErrStopTooTight, stopPct, c.MinStopPct, entry*c.MinStopPct/100)
	}

	targetRisk := balance * c.TargetRiskPct / 100
	qty := calculator.Round(targetRisk/riskDistance, c.QtyPrecision)
	if qty < c.MinQty {
		log.Printf("[WARN] calculated qty %.6f < min qty %.3f, clamping up", qty, c.MinQty)
		qty = c.MinQty
	}

	maxMargin := balance * c.MaxMarginFraction
	out := &Sizing{RiskDistance: riskDistance}
	if qty*entry/c.Leverage > maxMargin {
		capped := calculator.Floor(maxMargin*c.Leverage/entry, c.QtyPrecision)
		log.Printf("[WARN] required margin %.2f > %.0f%% of balance, adjusting qty %.3f -> %.3f",
			qty*entry/c.Leverage, c.MaxMarginFraction*100, qty, capped)
		if capped < c.MinQty {
			return nil, fmt.Errorf("%w: margin ceiling allows %.6f < min qty %.3f", ErrInsufficientBalance, capped, c.MinQty)
		}
		qty = capped
		out.MarginCapped = true
	}

	required := c.MinNotional * (1 + c.NotionalBuffer)
	if qty*entry < required {
		raised := calculator.Ceil(required/entry, c.QtyPrecision)
		log.Printf("[WARN] min notional check failed: %.2f < %.2f, need %.6f @ %.2f",
			qty*entry, required, raised, entry)
		if raised*entry < required {
			return nil, fmt.Errorf("%w: %.2f < %.2f", ErrNotionalTooSmall, raised*entry, required)
		}
		if raised*entry/c.Leverage > maxMargin {
			return nil, fmt.Errorf("%w: qty %.3f for min notional exceeds margin ceiling", ErrNotionalTooSmall, raised)
		}
		qty = raised
		out.NotionalRaised = true
	}

	out.Quantity = qty
	out.Notional = qty * entry
	out.RequiredMargin = out.Notional / c.Leverage
	out.RiskAmount = qty * riskDistance
	out.RealizedRiskPct = out.RiskAmount / balance * 100

	if c.MaxRiskPct > 0 && out.RealizedRiskPct > c.MaxRiskPct {
		log.Printf("[WARN] realized risk %.2f%% above max %.2f%%", out.RealizedRiskPct, c.MaxRiskPct)
	} else if out.RealizedRiskPct < c.MinRiskPct {
		log.Printf("[WARN] realized risk %.2f%% below min %.2f%%", out.RealizedRiskPct, c.MinRiskPct)
	}
	log.Printf("[INFO] position sizing: balance=%.2f entry=%.2f stop=%.2f risk/unit=%.2f (%.2f%%) qty=%.3f notional=%.2f margin=%.2f (%.1f%% of balance) loss-if-stopped=%.2f (%.2f%%)",
		balance, entry, stop, riskDistance, stopPct, qty, out.Notional, out.RequiredMargin,
		out.RequiredMargin/balance*100, out.RiskAmount, out.RealizedRiskPct)
	return out, nil
}
