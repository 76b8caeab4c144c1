// Package metrics exposes the bot's Prometheus series, served at /metrics:
//
//	orb_transitions_total{to}     executor state transitions
//	orb_decisions_total{action}   signal evaluations (TRADE|WAIT|SKIP)
//	orb_day_marks_total{cause}    DayGate marks by cause
//	orb_critical_events_total     stop failures, failed flattens, critical margin
//	orb_orders_total{kind}        orders submitted (entry|stop|take_profit|flatten)
//	orb_predicted_rr              last predicted reward multiple
//	orb_margin_usage_pct          last fetched margin usage
//	orb_wallet_balance_usdt       last fetched wallet balance
//	orb_open_positions            open positions on the instrument
//	orb_range{bound}              current opening range high and low
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_transitions_total",
			Help: "Executor state transitions by target state",
		},
		[]string{"to"},
	)

	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_decisions_total",
			Help: "Signal evaluations by resulting action",
		},
		[]string{"action"},
	)

	dayMarks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_day_marks_total",
			Help: "Trading days marked by cause",
		},
		[]string{"cause"},
	)

	critical = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orb_critical_events_total",
			Help: "Critical events: stop-loss failures, failed flattens, critical margin usage",
		},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_orders_total",
			Help: "Orders submitted by kind",
		},
		[]string{"kind"}, // entry|stop|take_profit|flatten
	)

	predictedRR = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orb_predicted_rr",
			Help: "Last predicted reward multiple",
		},
	)

	marginUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orb_margin_usage_pct",
			Help: "Account margin usage percent at the last snapshot",
		},
	)

	walletBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orb_wallet_balance_usdt",
			Help: "Wallet balance at the last snapshot",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orb_open_positions",
			Help: "Open positions on the traded instrument",
		},
	)

	rangeBounds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orb_range",
			Help: "Current opening range bounds",
		},
		[]string{"bound"}, // high|low
	)
)

func init() {
	prometheus.MustRegister(transitions, decisions, dayMarks, critical, orders)
	prometheus.MustRegister(predictedRR, marginUsage, walletBalance, openPositions, rangeBounds)
}

func IncTransition(to string)   { transitions.WithLabelValues(to).Inc() }
func IncDecision(action string) { decisions.WithLabelValues(action).Inc() }
func IncDayMark(cause string)   { dayMarks.WithLabelValues(cause).Inc() }
func IncCritical()              { critical.Inc() }
func IncOrder(kind string)      { orders.WithLabelValues(kind).Inc() }
func SetPredictedRR(v float64)  { predictedRR.Set(v) }
func SetOpenPositions(n int)    { openPositions.Set(float64(n)) }

// SetAccount publishes the wallet and margin gauges.
func SetAccount(wallet, usagePct float64) {
	walletBalance.Set(wallet)
	marginUsage.Set(usagePct)
}

// SetRange publishes the opening range bounds.
func SetRange(high, low float64) {
	rangeBounds.WithLabelValues("high").Set(high)
	rangeBounds.WithLabelValues("low").Set(low)
}
