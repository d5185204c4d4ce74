// Package observability holds the Prometheus instruments shared across the run log service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runWrittenGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "runlog",
		Subsystem: "persistence",
		Name:      "last_run_written_timestamp_seconds",
		Help:      "Unix timestamp of the most recent run write, labeled by operation.",
	}, []string{"operation"})

	exportsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "runlog",
		Subsystem: "export",
		Name:      "markdown_exports_total",
		Help:      "Number of Markdown exports served.",
	})

	exportRows = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "runlog",
		Subsystem: "export",
		Name:      "rows",
		Help:      "Number of runs included per Markdown export.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(runWrittenGauge, exportsCounter, exportRows)
}

// Write operations recorded by RecordRunWritten.
const (
	OperationInsert = "insert"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// RecordRunWritten updates the write watermark gauge for op.
func RecordRunWritten(op string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	runWrittenGauge.WithLabelValues(op).Set(float64(ts.Unix()))
}

// RecordExport counts one Markdown export of rows runs.
func RecordExport(rows int) {
	exportsCounter.Inc()
	exportRows.Observe(float64(rows))
}
