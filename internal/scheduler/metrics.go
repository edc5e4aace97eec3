package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsepay",
		Subsystem: "scheduler",
		Name:      "sweep_runs_total",
		Help:      "Settlement sweeps by trigger and outcome.",
	}, []string{"trigger", "status"})

	sweepBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulsepay",
		Subsystem: "scheduler",
		Name:      "sweep_batches_total",
		Help:      "Per-retailer settlement batches by terminal status.",
	}, []string{"status"})

	sweepTransactionsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulsepay",
		Subsystem: "scheduler",
		Name:      "sweep_transactions_settled_total",
		Help:      "Transactions settled by scheduled sweeps.",
	})

	sweepPausedSkips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pulsepay",
		Subsystem: "scheduler",
		Name:      "sweep_paused_skips_total",
		Help:      "Retailer groups skipped because a pause flag was set.",
	})
)
