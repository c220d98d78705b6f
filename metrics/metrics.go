package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the bulk processor's Prometheus collectors
type Metrics struct {
	JobsSubmitted  *prometheus.CounterVec
	JobsFinished   *prometheus.CounterVec
	ItemsProcessed *prometheus.CounterVec
	BatchCommits   *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_jobs_submitted_total",
			Help: "The total number of accepted bulk jobs",
		}, []string{"collection", "operation"}),

		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_jobs_finished_total",
			Help: "The total number of bulk jobs that reached a terminal status",
		}, []string{"collection", "status"}), // status: completed, failed

		ItemsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_items_processed_total",
			Help: "The total number of bulk items processed",
		}, []string{"collection", "outcome"}), // outcome: success, failure

		BatchCommits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bulk_batch_commits_total",
			Help: "The total number of write batches committed",
		}, []string{"collection"}),

		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulk_job_duration_seconds",
			Help:    "Duration of bulk job runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"collection"}),
	}
}

// Handler exposes the collectors gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// NewServer returns an HTTP server that serves /metrics on addr
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	return &http.Server{Addr: addr, Handler: mux}
}
