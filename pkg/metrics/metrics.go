// Package metrics records load statistics as Prometheus metrics and writes
// them in the node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Record outcomes.
const (
	StatusLoaded   = "loaded"
	StatusSkipped  = "skipped"
	StatusFiltered = "filtered"
)

// Recorder collects the metrics of one process on its own registry.
type Recorder struct {
	registry *prometheus.Registry
	records  *prometheus.CounterVec
	rows     *prometheus.CounterVec
	retries  prometheus.Counter
	duration prometheus.Gauge
	lastRun  prometheus.Gauge
}

// NewRecorder creates a Recorder with all metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dimadb",
			Name:      "records_total",
			Help:      "Input records processed, by outcome.",
		}, []string{"dataset", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dimadb",
			Name:      "rows_inserted_total",
			Help:      "Rows inserted, by table.",
		}, []string{"table"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dimadb",
			Name:      "storage_retries_total",
			Help:      "Record writes retried after a transient storage error.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dimadb",
			Name:      "load_duration_seconds",
			Help:      "Wall time of the last load run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dimadb",
			Name:      "load_last_run_timestamp_seconds",
			Help:      "Unix time the last load run finished.",
		}),
	}
	r.registry.MustRegister(r.records, r.rows, r.retries, r.duration, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Record counts one record outcome.
func (r *Recorder) Record(dataset, status string) {
	r.records.WithLabelValues(dataset, status).Inc()
}

// Rows counts inserted rows for a table.
func (r *Recorder) Rows(table string, n int) {
	if n <= 0 {
		return
	}
	r.rows.WithLabelValues(table).Add(float64(n))
}

// Retry counts one retried write.
func (r *Recorder) Retry() {
	r.retries.Inc()
}

// Finish records the run duration and completion time.
func (r *Recorder) Finish(d time.Duration) {
	r.duration.Set(d.Seconds())
	r.lastRun.SetToCurrentTime()
}

// WriteTextfile writes all metrics to path atomically, for the node exporter
// textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
