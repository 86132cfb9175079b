// Package metrics defines the Prometheus metric collectors used by the
// scanning and validation drivers and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the retrieval core.
type Metrics struct {
	ScansTotal            *prometheus.CounterVec
	ScanDuration          *prometheus.HistogramVec
	DocsScannedTotal      *prometheus.CounterVec
	MalformedRecordsTotal prometheus.Counter
	ResultsReturned       prometheus.Histogram
	ValidationFoldsTotal  prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_scans_total",
				Help: "Total feature-index scans by operation (score, count) and status.",
			},
			[]string{"operation", "status"},
		),
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_scan_duration_seconds",
				Help:    "Feature-index scan latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"operation"},
		),
		DocsScannedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_scanned_total",
				Help: "Total documents decoded from the feature index by operation.",
			},
			[]string{"operation"},
		),
		MalformedRecordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "malformed_records_total",
				Help: "Total malformed records encountered while scanning.",
			},
		),
		ResultsReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "query_results_returned",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 10, 100, 500, 1000, 5000, 10000},
			},
		),
		ValidationFoldsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "validation_folds_total",
				Help: "Total cross-validation folds trained and scored.",
			},
		),
	}

	prometheus.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.DocsScannedTotal,
		m.MalformedRecordsTotal,
		m.ResultsReturned,
		m.ValidationFoldsTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
