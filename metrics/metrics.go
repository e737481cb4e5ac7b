package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TasksPlannedTotal tracks the total number of tasks generated by planning.
var TasksPlannedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warehaul_tasks_planned_total",
		Help: "Total tasks generated by planning",
	},
	[]string{"database"},
)

// TasksCompletedTotal tracks the total number of tasks reaching a terminal
// progress, by outcome.
var TasksCompletedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warehaul_tasks_completed_total",
		Help: "Total tasks reaching a terminal progress",
	},
	[]string{"database", "progress"},
)

// ActionsExecutedTotal tracks the total number of action executions.
var ActionsExecutedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warehaul_actions_executed_total",
		Help: "Total action executions",
	},
	[]string{"database", "action", "result"},
)

// PartitionsReconciledTotal tracks the total number of partitions classified
// by reconciliation.
var PartitionsReconciledTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warehaul_partitions_reconciled_total",
		Help: "Total partitions classified by reconciliation",
	},
	[]string{"database", "outcome"},
)

// HeartbeatsTotal tracks the total number of run heartbeats sent.
var HeartbeatsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warehaul_heartbeats_total",
		Help: "Total run heartbeats sent",
	},
	[]string{"database"},
)

// RunningActions tracks the current number of in-flight actions per engine.
var RunningActions = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "warehaul_running_actions",
		Help: "Current in-flight actions",
	},
	[]string{"database", "engine"},
)

// ActionDuration tracks action execution latency.
var ActionDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "warehaul_action_duration_seconds",
		Help:    "Action execution latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"database", "action"},
)
