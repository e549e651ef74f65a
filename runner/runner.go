// Package runner drives one fetch-dispatch-record pass over the
// pending alerts in the results table.
package runner

import (
	"context"
	"fmt"

	"alertrelay/config"
	"alertrelay/core"
	"alertrelay/handlers"
	"alertrelay/metrics"

	"go.uber.org/zap"
)

// Store is the slice of the row store gateway the run driver reads
// from. The recorder's write methods are included so one fake covers
// both in tests.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]core.Alert, error)
	InsertAlerts(ctx context.Context, alerts []core.Alert) error
	DeleteAlert(ctx context.Context, alertID string) error
}

// Dispatcher routes one alert to its requested handlers.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert core.Alert) []handlers.Outcome
}

// RunSink receives the optional once-per-run completion signal.
type RunSink interface {
	EmitRunComplete(ctx context.Context) error
}

// RunSummary reports what one pass saw.
type RunSummary struct {
	Fetched int
	Failed  int
}

// Runner orchestrates one run: fetch up to the page limit, dispatch
// each alert in fetched order, record every failed outcome, then emit
// the optional completion metric. Execution is strictly sequential;
// the store's own visibility rules (a ticketed row is never fetched)
// are the only concurrency control, and scheduling is expected to keep
// runs from overlapping.
type Runner struct {
	store      Store
	dispatcher Dispatcher
	recorder   *Recorder
	sink       RunSink
	pageLimit  int
	logger     *zap.SugaredLogger
}

// NewRunner wires a run driver. sink may be nil when the completion
// metric is disabled.
func NewRunner(store Store, dispatcher Dispatcher, recorder *Recorder, sink RunSink, cfg *config.Config, logger *zap.SugaredLogger) *Runner {
	return &Runner{
		store:      store,
		dispatcher: dispatcher,
		recorder:   recorder,
		sink:       sink,
		pageLimit:  cfg.PageLimit,
		logger:     logger,
	}
}

// RunOnce executes one fetch-dispatch-record pass. Only a fetch error
// is fatal: without a store connection no progress is possible. Every
// other error is isolated per alert so one bad alert cannot stall the
// batch.
func (r *Runner) RunOnce(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	alerts, err := r.store.FetchPending(ctx, r.pageLimit)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch pending alerts: %w", err)
	}

	summary.Fetched = len(alerts)
	metrics.AlertsFetched.Add(float64(len(alerts)))
	r.logger.Infof("Found %d new alert(s) to handle", len(alerts))

	for _, alert := range alerts {
		for _, outcome := range r.dispatcher.Dispatch(ctx, alert) {
			if outcome.Err == nil {
				continue
			}
			summary.Failed++
			metrics.HandlerFailures.WithLabelValues(outcome.Handler).Inc()
			r.recorder.RecordFailure(ctx, alert, outcome.Handler, outcome.Err)
		}
	}

	if r.sink != nil {
		if err := r.sink.EmitRunComplete(ctx); err != nil {
			r.logger.Errorf("Run metric emission failed: %v", err)
		}
	}

	metrics.RunsCompleted.Inc()
	return summary, nil
}
