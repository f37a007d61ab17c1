package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ledger metrics
	TransitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_transitions_total",
			Help: "Focus transitions observed by the ledger",
		},
	)

	CreditedSeconds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_credited_seconds_total",
			Help: "Seconds credited, by application category",
		},
		[]string{"category"},
	)

	UpsertFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_upsert_failures_total",
			Help: "Persistence upsert attempts that returned an error",
		},
	)

	HeldDeltas = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screentime_held_deltas",
			Help: "Credits held in memory awaiting a successful upsert",
		},
	)

	// Probe metrics
	ProbeTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_probe_timeouts_total",
			Help: "Focus probes that exceeded the probe timeout",
		},
	)

	ProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "screentime_probe_duration_seconds",
			Help:    "Focus probe latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Web metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_api_requests_total",
			Help: "Local API requests served",
		},
		[]string{"path", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		TransitionsTotal,
		CreditedSeconds,
		UpsertFailures,
		HeldDeltas,
		ProbeTimeouts,
		ProbeDuration,
		APIRequestsTotal,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
