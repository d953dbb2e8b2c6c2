// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Read results.
const (
	ResultOK   = "ok"
	ResultFail = "fail"
)

var (
	// Reads counts driver read attempts per source.
	Reads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterhub_reads_total",
			Help: "Driver read attempts by source and result.",
		},
		[]string{"source", "result"},
	)

	// Expiries counts lifetime expiries per source.
	Expiries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterhub_expiries_total",
			Help: "Liveness lifetime expiries by source.",
		},
		[]string{"source"},
	)

	// Frames counts extracted SML frames by decode result.
	Frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterhub_frames_total",
			Help: "Extracted SML frames by result.",
		},
		[]string{"result"},
	)

	// Commands counts command dispatches per target.
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterhub_commands_total",
			Help: "Command dispatches by target and result.",
		},
		[]string{"target", "result"},
	)

	// SinkErrors counts failed record deliveries per sink.
	SinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterhub_sink_errors_total",
			Help: "Failed record deliveries by sink.",
		},
		[]string{"sink"},
	)

	// CycleDuration observes the orchestrator cycle time.
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meterhub_cycle_duration_seconds",
		Help:    "Duration of one acquisition cycle.",
		Buckets: prometheus.DefBuckets,
	})
)

var registerOnce sync.Once

// Register adds all collectors to the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			Reads,
			Expiries,
			Frames,
			Commands,
			SinkErrors,
			CycleDuration,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRead records one read attempt.
func ObserveRead(source string, ok bool) {
	result := ResultOK
	if !ok {
		result = ResultFail
	}
	Reads.WithLabelValues(source, result).Inc()
}
