// Package metrics exposes Prometheus instrumentation for the trading loop.
// Registered in init and served by the /metrics handler started in main.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dipper_cycles_total",
			Help: "Trading cycles completed",
		},
	)

	cycleErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dipper_cycle_errors_total",
			Help: "Cycles aborted by an unexpected error",
		},
	)

	opportunities = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dipper_opportunities_total",
			Help: "Qualifying opportunities found by the scanner",
		},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipper_orders_total",
			Help: "Order lifecycle events",
		},
		[]string{"event"}, // submitted|cancelled|cancel_failed|completed
	)

	skips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipper_execution_skips_total",
			Help: "Opportunities not executed, by reason",
		},
		[]string{"reason"}, // too_small|capital|error
	)

	brakeActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dipper_brake_active",
			Help: "1 while the emergency brake halts trading",
		},
	)

	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dipper_equity_usd",
			Help: "Account equity in USD",
		},
	)

	marginRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dipper_margin_ratio",
			Help: "Margin debt over equity",
		},
	)
)

func init() {
	prometheus.MustRegister(cycles, cycleErrors, opportunities, orders, skips)
	prometheus.MustRegister(brakeActive, equity, marginRatio)
}

func IncCycles()      { cycles.Inc() }
func IncCycleErrors() { cycleErrors.Inc() }

func AddOpportunities(n int) { opportunities.Add(float64(n)) }

func IncOrderSubmitted()    { orders.WithLabelValues("submitted").Inc() }
func IncOrderCancelled()    { orders.WithLabelValues("cancelled").Inc() }
func IncOrderCancelFailed() { orders.WithLabelValues("cancel_failed").Inc() }
func IncOrderCompleted()    { orders.WithLabelValues("completed").Inc() }

func IncSkip(reason string) { skips.WithLabelValues(reason).Inc() }

func SetBrakeActive(active bool) {
	if active {
		brakeActive.Set(1)
	} else {
		brakeActive.Set(0)
	}
}

func SetAccount(equityUSD, ratio float64) {
	equity.Set(equityUSD)
	marginRatio.Set(ratio)
}
