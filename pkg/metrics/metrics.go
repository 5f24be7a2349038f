package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gofast_workers_total",
			Help: "Total number of workers by lifecycle status",
		},
		[]string{"status"},
	)

	ChainFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gofast_chain_failures_total",
			Help: "Total number of worker chains aborted before running, by stage",
		},
		[]string{"stage"},
	)

	WorkerShutdowns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gofast_worker_shutdowns_total",
			Help: "Total number of worker shutdowns",
		},
	)

	// Provisioning metrics
	ProvisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gofast_provision_duration_seconds",
			Help:    "Time from instance creation request to active in seconds",
			Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180, 300, 600},
		},
	)

	SetupStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gofast_setup_step_duration_seconds",
			Help:    "Setup step duration in seconds by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Dispatch metrics
	JobsDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gofast_jobs_dispatched_total",
			Help: "Total number of non-null jobs handed to workers",
		},
	)

	ResultsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gofast_results_received_total",
			Help: "Total number of results received from workers",
		},
	)

	LogRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gofast_log_records_total",
			Help: "Total number of worker log records re-emitted",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gofast_http_requests_total",
			Help: "Total number of dispatch requests by path and status",
		},
		[]string{"path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gofast_http_request_duration_seconds",
			Help:    "Dispatch request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(ChainFailures)
	prometheus.MustRegister(WorkerShutdowns)
	prometheus.MustRegister(ProvisionDuration)
	prometheus.MustRegister(SetupStepDuration)
	prometheus.MustRegister(JobsDispatched)
	prometheus.MustRegister(ResultsReceived)
	prometheus.MustRegister(LogRecords)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
