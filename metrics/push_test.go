package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushCounters_SendsToGateway(t *testing.T) {
	var gotPath, gotMethod string
	var body []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	RunsCompleted.Inc()

	require.NoError(t, PushCounters(context.Background(), server.URL))

	assert.Equal(t, "/metrics/job/alertrelay", gotPath)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Contains(t, string(body), "alertrelay_runs_completed_total")
}

func TestPushCounters_GatewayErrorIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage full", http.StatusInternalServerError)
	}))
	defer server.Close()

	assert.Error(t, PushCounters(context.Background(), server.URL))
}

func TestPushCounters_UnreachableGatewayIsFailure(t *testing.T) {
	assert.Error(t, PushCounters(context.Background(), "http://127.0.0.1:1"))
}
