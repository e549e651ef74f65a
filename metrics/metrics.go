package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertrelay_runs_completed_total",
			Help: "Total number of completed dispatch runs",
		},
	)

	AlertsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertrelay_alerts_fetched_total",
			Help: "Total number of pending alerts fetched for dispatch",
		},
	)

	HandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertrelay_handler_failures_total",
			Help: "Total number of failed handler invocations",
		},
		[]string{"handler"},
	)

	FailureRecordErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertrelay_failure_record_errors_total",
			Help: "Total number of errors while persisting failure alerts",
		},
	)
)
