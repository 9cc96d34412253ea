package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	PagesFetched      *prometheus.CounterVec
	ListingsProcessed *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	RunsTotal         *prometheus.CounterVec
	FetchDuration     prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		PagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carscout_pages_fetched_total",
			Help: "The total number of result pages fetched, by site",
		}, []string{"site"}),
		ListingsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carscout_listings_processed_total",
			Help: "The total number of listings processed, by outcome",
		}, []string{"outcome"}), // 'new', 'updated', 'duplicate', 'rejected', 'removed'
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carscout_errors_total",
			Help: "The total number of errors encountered, by type",
		}, []string{"type"}), // e.g. 'fetch_failed', 'blocked', 'extraction', 'validation', 'config'
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carscout_runs_total",
			Help: "The total number of scrape runs, by terminal status",
		}, []string{"status"}),
		FetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "carscout_fetch_duration_seconds",
			Help:    "Time spent fetching a single page",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncProcessed(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ListingsProcessed.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) IncErrors(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) ObserveFetch(site string, d time.Duration) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(site).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) IncRuns(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}
