package notifier

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"BreakoutSentinel/internal/executor"
	"BreakoutSentinel/internal/ledger"
	"BreakoutSentinel/internal/model"
	"BreakoutSentinel/internal/telemetry"
)

// FormatOptions carries the constants the reports display.
type FormatOptions struct {
	Leverage          float64
	MarginWarningPct  float64
	MarginCriticalPct float64
}

// FormatTrade formats a finished execution.
func FormatTrade(ex *executor.ExecutionState) string {
	var b strings.Builder
	switch {
	case ex.State == executor.Aborted:
		b.WriteString(fmt.Sprintf("⛔ <b>Trade aborted</b> | %s %s\n\n", ex.Symbol, ex.Date))
		b.WriteString(fmt.Sprintf("Reason: %s\n", html.EscapeString(ex.AbortReason)))
		if len(ex.Flattened) > 0 {
			b.WriteString(fmt.Sprintf("Flatten orders: %d\n", len(ex.Flattened)))
		}
		return b.String()
	case ex.Degraded:
		b.WriteString(fmt.Sprintf("⚠️ <b>Trade open (no take-profit)</b> | %s %s\n\n", ex.Symbol, ex.Date))
	default:
		b.WriteString(fmt.Sprintf("✅ <b>Trade open</b> | %s %s\n\n", ex.Symbol, ex.Date))
	}
	b.WriteString(fmt.Sprintf("Position: %.3f LONG\n", ex.FilledQty))
	b.WriteString(fmt.Sprintf("Entry: %.2f\n", ex.FillPrice))
	b.WriteString(fmt.Sprintf("Stop: %.2f\n", ex.Plan.Stop))
	b.WriteString(fmt.Sprintf("Take profit: %.2f\n", ex.Plan.TakeProfit))
	b.WriteString(fmt.Sprintf("Risk: %.2f USDT\n", ex.ActualRisk()))
	b.WriteString(fmt.Sprintf("R:R predicted %.2f | actual %.2f\n", ex.Plan.PredictedRR, ex.ActualRR()))
	return b.String()
}

// FormatCritical formats an alert that needs operator attention.
func FormatCritical(title, detail string) string {
	return fmt.Sprintf("🚨 <b>CRITICAL: %s</b>\n\n%s\n\nCheck the exchange now.", html.EscapeString(title), html.EscapeString(detail))
}

// FormatSkip formats a day skipped without a trade.
func FormatSkip(date, cause string) string {
	return fmt.Sprintf("⏭ <b>No trade</b> | %s\nCause: %s", date, html.EscapeString(cause))
}

// FormatHeartbeat formats the periodic liveness message.
func FormatHeartbeat(now time.Time, positions int, tradedToday bool) string {
	return fmt.Sprintf("💓 %s UTC | positions: %d | traded today: %v", now.UTC().Format("2006-01-02 15:04"), positions, tradedToday)
}

// FormatStatus formats the status report.
func FormatStatus(s telemetry.Status, opts FormatOptions) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Status</b> | %s %s\n\n", s.Symbol, s.UpdatedAt.UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Days traded: %d | traded today: %v\n", s.DaysTraded, s.TradedToday))
	if s.Range != nil {
		b.WriteString(fmt.Sprintf("Range: %.2f - %.2f (%d candles)\n", s.Range.Low, s.Range.High, s.Range.Candles))
		b.WriteString(fmt.Sprintf("Scans today: %d\n", s.Scans))
	} else {
		b.WriteString("Range: not built\n")
	}
	if s.LastSignal != nil {
		b.WriteString(fmt.Sprintf("Last signal: price %.2f breakout %v R:R %.2f\n", s.LastSignal.Price, s.LastSignal.Breakout, s.LastSignal.PredictedRR))
	}
	if s.Account != nil {
		b.WriteString("\n")
		b.WriteString(FormatAccount(s.Account, opts))
	}
	b.WriteString("\n")
	b.WriteString(FormatPositions(s.Positions, opts))
	if s.Execution != nil {
		b.WriteString(fmt.Sprintf("\nLast execution: %s (%s)\n", s.Execution.State, s.Execution.Date))
	}
	return b.String()
}

// FormatAccount formats wallet and margin figures with the margin banner.
func FormatAccount(a *model.AccountSnapshot, opts FormatOptions) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Wallet: %.2f USDT | available %.2f\n", a.WalletBalance, a.AvailableBalance))
	b.WriteString(fmt.Sprintf("Unrealized PnL: %+.2f\n", a.UnrealizedPnL))
	b.WriteString(fmt.Sprintf("Margin used: %.2f (%.2f%%)\n", a.TotalMargin, a.MarginUsagePct))
	switch {
	case opts.MarginCriticalPct > 0 && a.MarginUsagePct >= opts.MarginCriticalPct:
		b.WriteString(fmt.Sprintf("🚨 margin usage %.1f%% >= %.0f%%: new trades blocked\n", a.MarginUsagePct, opts.MarginCriticalPct))
	case opts.MarginWarningPct > 0 && a.MarginUsagePct >= opts.MarginWarningPct:
		b.WriteString(fmt.Sprintf("⚠️ margin usage %.1f%% >= %.0f%%\n", a.MarginUsagePct, opts.MarginWarningPct))
	}
	return b.String()
}

// FormatPositions lists open positions with their margin and total exposure.
func FormatPositions(positions []model.Position, opts FormatOptions) string {
	if len(positions) == 0 {
		return "No open positions\n"
	}
	lev := opts.Leverage
	if lev <= 0 {
		lev = 1
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>Open positions (%d)</b>\n", len(positions)))
	var exposure float64
	for _, p := range positions {
		side := "LONG"
		if p.Amount < 0 {
			side = "SHORT"
		}
		value := math.Abs(p.Amount) * p.MarkPrice
		exposure += value
		b.WriteString(fmt.Sprintf("  %s %.3f @ %.2f | mark %.2f | PnL %+.2f | margin %.2f\n",
			side, math.Abs(p.Amount), p.EntryPrice, p.MarkPrice, p.UnrealizedPnL, value/lev))
	}
	b.WriteString(fmt.Sprintf("Total exposure: %.2f USDT\n", exposure))
	return b.String()
}

// FormatLedger lists the most recent marked days.
func FormatLedger(entries []ledger.Entry, limit int) string {
	if len(entries) == 0 {
		return "📒 Ledger is empty"
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	var b strings.Builder
	b.WriteString("📒 <b>Ledger</b>\n\n")
	for _, e := range entries {
		line := fmt.Sprintf("%s: %s", e.Date, e.Cause)
		if e.Outcome != "" {
			line += " → " + e.Outcome
		}
		b.WriteString(html.EscapeString(line) + "\n")
	}
	return b.String()
}
