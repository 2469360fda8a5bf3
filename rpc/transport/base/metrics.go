package base

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// observeRequest records one handled request of a stream transport
func observeRequest(transportName string, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`ddoc_rpc_requests_total{transport=%q}`, transportName)).Inc()
	metrics.GetOrCreateSummary(fmt.Sprintf(`ddoc_rpc_request_duration_seconds{transport=%q}`, transportName)).UpdateDuration(start)
}
