package risk

import (
	"log"

	"BreakoutSentinel/internal/model"
)

// Verdict is the RiskGuard decision for a pending entry.
type Verdict struct {
	Veto    bool
	Warning bool
	Usage   float64
	Reason  string
}

// Guard vetoes new entries when account-wide margin usage is critical.
// It never closes existing positions.
type Guard struct {
	WarningPct  float64
	CriticalPct float64
}

// NewGuard creates a Guard.
func NewGuard(warningPct, criticalPct float64) *Guard {
	return &Guard{WarningPct: warningPct, CriticalPct: criticalPct}
}

// Check evaluates a freshly fetched snapshot.
func (g *Guard) Check(snap *model.AccountSnapshot) Verdict {
	v := Verdict{Usage: snap.MarginUsagePct}
	switch {
	case snap.MarginUsagePct >= g.CriticalPct:
		v.Veto = true
		v.Reason = "margin critical"
		log.Printf("[CRITICAL] margin usage %.1f%% >= %.1f%%: no new trades until margin drops", snap.MarginUsagePct, g.CriticalPct)
	case snap.MarginUsagePct >= g.WarningPct:
		v.Warning = true
		log.Printf("[WARN] margin usage %.1f%% >= %.1f%%, proceeding with caution", snap.MarginUsagePct, g.WarningPct)
	}
	return v
}
