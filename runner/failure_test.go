package runner

import (
	"context"
	"errors"
	"testing"

	"alertrelay/config"
	"alertrelay/core"
	"alertrelay/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore records the statement sequence so tests can assert the
// insert-before-delete ordering contract.
type fakeStore struct {
	pending   []core.Alert
	fetchErr  error
	insertErr error
	deleteErr error

	inserted []core.Alert
	deleted  []string
	ops      []string
}

func (f *fakeStore) FetchPending(ctx context.Context, limit int) ([]core.Alert, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeStore) InsertAlerts(ctx context.Context, alerts []core.Alert) error {
	f.ops = append(f.ops, "insert")
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, alerts...)
	return nil
}

func (f *fakeStore) DeleteAlert(ctx context.Context, alertID string) error {
	f.ops = append(f.ops, "delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	// Like the real stores, a second delete of the same row finds
	// nothing
	for _, id := range f.deleted {
		if id == alertID {
			return storage.ErrNotFound
		}
	}
	f.deleted = append(f.deleted, alertID)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Environment = "AlertRelay"
	cfg.PageLimit = 100
	return cfg
}

func newTestRecorder(t *testing.T, store FailureStore) *Recorder {
	t.Helper()
	rec, err := NewRecorder(store, testConfig(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return rec
}

func failedAlert(id string) core.Alert {
	return core.Alert{Body: core.Body{
		core.FieldAlertID: id,
		core.FieldTitle:   "Original alert",
	}}
}

func TestRecorder_RecordFailure_InsertsThenDeletes(t *testing.T) {
	store := &fakeStore{}
	rec := newTestRecorder(t, store)

	rec.RecordFailure(context.Background(), failedAlert("a1"), "jira", errors.New("auth expired"))

	assert.Equal(t, []string{"insert", "delete"}, store.ops)
	assert.Equal(t, []string{"a1"}, store.deleted)
	require.Len(t, store.inserted, 1)

	body := store.inserted[0].Body
	assert.Equal(t, "a1", body.Object())
	assert.Equal(t, "High", body.Severity())
	assert.Equal(t, "Alert Handler Failure", body.Title())
	assert.Equal(t, handlerFailureQueryID, body[core.FieldQueryID])
	assert.Equal(t, "Alert Handler", body[core.FieldActor])
	assert.Equal(t, "Alert Handler", body[core.FieldDetector])
	assert.Contains(t, body.Description(), "a1")
	assert.Contains(t, body.Description(), "auth expired")
	assert.Contains(t, body[core.FieldEventData], "Original alert")
	assert.NotEmpty(t, body.AlertID())
	assert.NotEqual(t, "a1", body.AlertID())
	// The synthesized record passes the stored-alert schema
	assert.NoError(t, core.ValidateBody(body))
}

func TestRecorder_InsertFailureSkipsDelete(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("store unavailable")}
	rec := newTestRecorder(t, store)

	rec.RecordFailure(context.Background(), failedAlert("a1"), "jira", errors.New("boom"))

	assert.Equal(t, []string{"insert"}, store.ops)
	assert.Empty(t, store.deleted)
}

func TestRecorder_DeleteFailureIsSwallowed(t *testing.T) {
	store := &fakeStore{deleteErr: errors.New("mutation timeout")}
	rec := newTestRecorder(t, store)

	// Must not panic or propagate; the failure record is still durable
	rec.RecordFailure(context.Background(), failedAlert("a1"), "jira", errors.New("boom"))

	require.Len(t, store.inserted, 1)
	assert.Empty(t, store.deleted)
}

func TestRecorder_DedupSkipsSecondInsert(t *testing.T) {
	store := &fakeStore{}
	rec := newTestRecorder(t, store)
	ctx := context.Background()

	rec.RecordFailure(ctx, failedAlert("a1"), "jira", errors.New("boom"))
	rec.RecordFailure(ctx, failedAlert("a1"), "jira", errors.New("boom again"))

	// One durable failure record, but the delete still runs both times
	assert.Len(t, store.inserted, 1)
	assert.Equal(t, []string{"insert", "delete", "delete"}, store.ops)
}

func TestRecorder_DedupOnlyAfterDurableInsert(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("store unavailable")}
	rec := newTestRecorder(t, store)
	ctx := context.Background()

	rec.RecordFailure(ctx, failedAlert("a1"), "jira", errors.New("boom"))

	// Insert recovers; the retry must not be suppressed by the cache
	store.insertErr = nil
	rec.RecordFailure(ctx, failedAlert("a1"), "jira", errors.New("boom"))

	require.Len(t, store.inserted, 1)
	assert.Equal(t, []string{"insert", "insert", "delete"}, store.ops)
}

func TestRecorder_DistinctHandlerFailuresEachRecorded(t *testing.T) {
	store := &fakeStore{}
	rec := newTestRecorder(t, store)
	ctx := context.Background()

	rec.RecordFailure(ctx, failedAlert("a1"), "jira", errors.New("auth expired"))
	rec.RecordFailure(ctx, failedAlert("a1"), "pagerduty", errors.New("rate limited"))

	// Each handler's error is durable in its own failure record
	require.Len(t, store.inserted, 2)
	assert.Contains(t, store.inserted[0].Body.Description(), "auth expired")
	assert.Contains(t, store.inserted[1].Body.Description(), "rate limited")

	// The original row is removed once; the second delete finding
	// nothing is not an error
	assert.Equal(t, []string{"a1"}, store.deleted)
	assert.Equal(t, []string{"insert", "delete", "insert", "delete"}, store.ops)
}

func TestRecorder_MissingAlertIDDoesNothing(t *testing.T) {
	store := &fakeStore{}
	rec := newTestRecorder(t, store)

	rec.RecordFailure(context.Background(), core.Alert{Body: core.Body{}}, "jira", errors.New("boom"))

	assert.Empty(t, store.ops)
}
