package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the identity platform's Prometheus collectors.
type Metrics struct {
	Resolutions       *prometheus.CounterVec
	MergesTotal       *prometheus.CounterVec
	SyncRecords       *prometheus.CounterVec
	SyncRuns          *prometheus.CounterVec
	SyncDuration      prometheus.Histogram
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewMetrics registers collectors with the default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "identity_resolutions_total",
			Help:      "Identity resolutions by provider and outcome (existing, linked, provisioned, error)",
		}, []string{"provider", "outcome"}),

		MergesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "account_merges_total",
			Help:      "Account merge attempts by result",
		}, []string{"result"}),

		SyncRecords: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "directory_sync_records_total",
			Help:      "Directory records processed by provider and outcome (created, updated, failed)",
		}, []string{"provider", "outcome"}),

		SyncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "directory_sync_runs_total",
			Help:      "Directory reconciliation runs by provider and result (completed, partial, failed)",
		}, []string{"provider", "result"}),

		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "iam",
			Name:      "directory_sync_duration_seconds",
			Help:      "Duration of directory reconciliation runs",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800},
		}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "iam",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
