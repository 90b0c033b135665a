// Package metrics — prometheus-метрики экзекьютора, отдаются на /metrics
// админ-портом health-модуля.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TrancheFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_tranche_fills_total",
			Help: "Tranche fills split by reason",
		},
		[]string{"reason"},
	)

	PlansCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_entry_plans_total",
			Help: "Entry plans by outcome (complete|aborted|rejected)",
		},
		[]string{"outcome"},
	)

	Closes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_position_closes_total",
			Help: "Position closes split by reason",
		},
		[]string{"reason"},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "executor_open_positions",
			Help: "Positions not yet closed",
		},
	)

	Balance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "executor_account_balance",
			Help: "Free margin balance",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TrancheFills,
		PlansCompleted,
		Closes,
		OpenPositions,
		Balance,
	)
}
