package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"alertrelay/config"
	"alertrelay/core"
	"alertrelay/metrics"
	"alertrelay/storage"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// handlerFailureQueryID tags every synthesized failure alert so they
// are queryable as a family in the results table.
const handlerFailureQueryID = "db9fa0d114d54b5ca1a195e34fb8752b"

// failureDedupSize bounds the process-lifetime cache of (alert,
// handler) pairs that already have a durable failure record.
const failureDedupSize = 1024

// FailureStore is the slice of the row store the recorder writes
// through.
type FailureStore interface {
	InsertAlerts(ctx context.Context, alerts []core.Alert) error
	DeleteAlert(ctx context.Context, alertID string) error
}

// Recorder turns a failed handler outcome into a new, fully-populated
// failure alert in the same results table, then removes the original
// row so it is not reprocessed. It is the last line of defense for
// visibility into pipeline failures: nothing it does may take down the
// run, so every internal error is logged and swallowed.
type Recorder struct {
	store  FailureStore
	env    string
	dedup  *lru.Cache[string, bool]
	logger *zap.SugaredLogger
}

// NewRecorder creates a failure recorder writing through store.
func NewRecorder(store FailureStore, cfg *config.Config, logger *zap.SugaredLogger) (*Recorder, error) {
	dedup, err := lru.New[string, bool](failureDedupSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create failure dedup cache: %w", err)
	}

	return &Recorder{
		store:  store,
		env:    cfg.Environment,
		dedup:  dedup,
		logger: logger,
	}, nil
}

// RecordFailure persists a failure alert describing why handlerName
// could not resolve the alert, then deletes the original row. The two
// steps are deliberately not transactional: if the insert succeeds and
// the delete fails, the original stays pending and may produce a
// duplicate failure record on a later run — never a lost one. If the
// insert fails, the delete does not run at all.
func (r *Recorder) RecordFailure(ctx context.Context, alert core.Alert, handlerName string, cause error) {
	alertID := alert.Body.AlertID()
	if alertID == "" {
		r.logger.Errorf("Cannot record failure for alert without ALERT_ID (handler %q): %v",
			handlerName, cause)
		metrics.FailureRecordErrors.Inc()
		return
	}

	// The cache is keyed per alert and handler so two handlers failing
	// on the same alert each persist their own error, while a repeat of
	// the same pair does not.
	dedupKey := alertID + "|" + handlerName
	if _, recorded := r.dedup.Get(dedupKey); !recorded {
		failure := r.synthesize(alert, cause)

		if err := core.ValidateBody(failure.Body); err != nil {
			r.logger.Errorf("Synthesized failure record for alert %s is malformed: %v", alertID, err)
			metrics.FailureRecordErrors.Inc()
			return
		}

		if err := r.store.InsertAlerts(ctx, []core.Alert{failure}); err != nil {
			r.logger.Errorf("Failed to record handler failure for alert %s: %v", alertID, err)
			metrics.FailureRecordErrors.Inc()
			return
		}
		r.dedup.Add(dedupKey, true)
	}

	if err := r.store.DeleteAlert(ctx, alertID); err != nil {
		// An earlier failure record for this alert already removed the
		// original row
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Debugf("Alert %s already removed", alertID)
			return
		}
		r.logger.Errorf("Failed to remove failed alert %s: %v", alertID, err)
		metrics.FailureRecordErrors.Inc()
	}
}

// synthesize builds the failure alert record. Field values follow the
// fixed Alert Handler Failure shape so downstream queries can match on
// them.
func (r *Recorder) synthesize(alert core.Alert, cause error) core.Alert {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339)
	alertID := alert.Body.AlertID()

	eventData := ""
	if encoded, err := alert.Body.Encode(); err == nil {
		eventData = encoded
	}

	body := core.Body{
		core.FieldAlertID:     newAlertID(),
		core.FieldQueryID:     handlerFailureQueryID,
		core.FieldQueryName:   "Alert Handler Failure",
		core.FieldEnvironment: r.env,
		core.FieldSources:     []string{"Alerts Table"},
		core.FieldActor:       "Alert Handler",
		core.FieldObject:      alertID,
		core.FieldAction:      "The Alert Handler failed to create a ticket",
		core.FieldTitle:       "Alert Handler Failure",
		core.FieldEventTime:   timestamp,
		core.FieldAlertTime:   timestamp,
		core.FieldDescription: fmt.Sprintf("The alert with ID '%s' failed to create with error: %v", alertID, cause),
		core.FieldDetector:    "Alert Handler",
		core.FieldEventData:   eventData,
		core.FieldSeverity:    "High",
	}

	return core.Alert{
		AlertTime: now,
		EventTime: now,
		Body:      body,
	}
}

// newAlertID generates the bare-hex id form used throughout the
// results table.
func newAlertID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
