package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка. Регистрируются в default registry при импорте пакета
// и экспортируются каждым сервисом на /metrics.
var (
	// RunsStarted — количество запущенных executions.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowline_runs_started_total",
		Help: "Total workflow executions started",
	})

	// RunsFinished — количество завершённых executions по финальному статусу.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_runs_finished_total",
		Help: "Total workflow executions finished, by terminal status",
	}, []string{"status"})

	// RunDuration — длительность executions в секундах.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowline_run_duration_seconds",
		Help:    "Workflow execution duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	})

	// NodesExecuted — количество выполненных узлов по типу и статусу.
	NodesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowline_nodes_executed_total",
		Help: "Total node executions, by node kind and terminal status",
	}, []string{"kind", "status"})

	// NodeDuration — длительность выполнения узлов по типу.
	NodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowline_node_duration_seconds",
		Help:    "Node execution duration in seconds, by node kind",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"kind"})

	// SchedulesFired — количество сработавших schedules.
	SchedulesFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowline_schedules_fired_total",
		Help: "Total schedule firings that created an execution",
	})
)
