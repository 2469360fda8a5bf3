package docstore

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// observe records the duration and outcome of one document store operation.
// Metrics are registered in the default VictoriaMetrics set and exposed by the server.
func observe(op string, start time.Time, err error) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`ddoc_docstore_duration_seconds{op=%q}`, op)).UpdateDuration(start)
	metrics.GetOrCreateCounter(fmt.Sprintf(`ddoc_docstore_operations_total{op=%q}`, op)).Inc()
	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`ddoc_docstore_errors_total{op=%q}`, op)).Inc()
	}
}

// indexWrites counts persisted index records
var indexWrites = metrics.NewCounter(`ddoc_docstore_index_writes_total`)
