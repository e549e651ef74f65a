package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// pushJob groups one relay process's counters in the Pushgateway.
const pushJob = "alertrelay"

// PushCounters exports the run counters to a Prometheus Pushgateway.
// A scheduled one-shot process has no scrape window of its own, so
// exposure happens by push at the end of the run. Export is best
// effort; callers log and swallow the returned error.
func PushCounters(ctx context.Context, gatewayURL string) error {
	if err := push.New(gatewayURL, pushJob).
		Gatherer(prometheus.DefaultGatherer).
		PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push run counters: %w", err)
	}
	return nil
}
