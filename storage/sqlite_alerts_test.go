package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"alertrelay/config"
	"alertrelay/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	cfg := &config.Config{}
	cfg.AlertsTable = "alerts"
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "alerts.db")

	store, err := NewSQLiteStore(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func pendingAlert(id string, eventTime time.Time) core.Alert {
	return core.Alert{
		AlertTime: eventTime.Add(time.Minute),
		EventTime: eventTime,
		Body: core.Body{
			core.FieldAlertID:   id,
			core.FieldTitle:     "Test alert " + id,
			core.FieldEventTime: eventTime.UTC().Format(time.RFC3339),
			core.FieldAlertTime: eventTime.Add(time.Minute).UTC().Format(time.RFC3339),
		},
	}
}

func TestSQLiteStore_FetchPending_OrderAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	newest := pendingAlert("a-newest", base.Add(2*time.Hour))
	oldest := pendingAlert("a-oldest", base)
	middle := pendingAlert("a-middle", base.Add(time.Hour))

	ticketed := pendingAlert("a-ticketed", base.Add(-time.Hour))
	ticket := "SEC-1"
	ticketed.Ticket = &ticket

	suppressed := pendingAlert("a-suppressed", base.Add(-2*time.Hour))
	suppressed.Suppressed = true

	require.NoError(t, store.InsertAlerts(ctx, []core.Alert{
		newest, oldest, middle, ticketed, suppressed,
	}))

	alerts, err := store.FetchPending(ctx, 100)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	// Ordered by ascending event time; ticketed and suppressed rows
	// never appear
	assert.Equal(t, "a-oldest", alerts[0].Body.AlertID())
	assert.Equal(t, "a-middle", alerts[1].Body.AlertID())
	assert.Equal(t, "a-newest", alerts[2].Body.AlertID())
}

func TestSQLiteStore_FetchPending_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	var batch []core.Alert
	for i := 0; i < 5; i++ {
		batch = append(batch, pendingAlert(
			string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, store.InsertAlerts(ctx, batch))

	alerts, err := store.FetchPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "a", alerts[0].Body.AlertID())
	assert.Equal(t, "b", alerts[1].Body.AlertID())
}

func TestSQLiteStore_FetchPending_Empty(t *testing.T) {
	store := newTestStore(t)

	alerts, err := store.FetchPending(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestSQLiteStore_InsertPreservesDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alert := pendingAlert("a1", time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	alert.Body["CUSTOM_FIELD"] = "kept"
	alert.Body[core.FieldHandlers] = []string{"jira", "pagerduty"}

	require.NoError(t, store.InsertAlerts(ctx, []core.Alert{alert}))

	alerts, err := store.FetchPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	got := alerts[0]
	assert.Equal(t, "a1", got.Body.AlertID())
	assert.Equal(t, "kept", got.Body["CUSTOM_FIELD"])
	assert.Equal(t, []string{"jira", "pagerduty"}, got.Body.Handlers())
	assert.Equal(t, uint64(1), got.Counter)
	assert.True(t, got.EventTime.Equal(alert.EventTime))
}

func TestSQLiteStore_DeleteAlert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertAlerts(ctx, []core.Alert{
		pendingAlert("keep", base),
		pendingAlert("remove", base.Add(time.Minute)),
	}))

	require.NoError(t, store.DeleteAlert(ctx, "remove"))

	alerts, err := store.FetchPending(ctx, 100)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "keep", alerts[0].Body.AlertID())
}

func TestSQLiteStore_DeleteAlert_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.DeleteAlert(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLiteStore_UpdateTicket_HidesAlert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAlerts(ctx, []core.Alert{
		pendingAlert("a1", time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)),
	}))

	require.NoError(t, store.UpdateTicket(ctx, "a1", "SEC-42"))

	alerts, err := store.FetchPending(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestSQLiteStore_InsertEmptyBatchIsNoop(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.InsertAlerts(context.Background(), nil))
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, validateIdentifier("alerts"))
	assert.NoError(t, validateIdentifier("security_results_2026"))
	assert.Error(t, validateIdentifier(""))
	assert.Error(t, validateIdentifier("alerts; DROP TABLE alerts"))
	assert.Error(t, validateIdentifier("alerts-table"))
}
