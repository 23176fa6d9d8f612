package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingestion
	IngestRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sr311_ingest_records_total",
			Help: "Records processed by the upsert engine, by outcome",
		},
		[]string{"outcome"}, // inserted, updated, unchanged, failed
	)

	IngestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sr311_ingest_runs_total",
			Help: "Ingestion runs, by result",
		},
		[]string{"result"}, // success, error
	)

	StatusChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sr311_status_changes_total",
			Help: "Status transitions written to the change log",
		},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sr311_fetch_duration_seconds",
			Help:    "Duration of open-data API page requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// API
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sr311_api_requests_total",
			Help: "HTTP requests served, by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sr311_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	FeaturesReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sr311_features_returned",
			Help:    "Features per GeoJSON response",
			Buckets: []float64{0, 10, 50, 100, 250, 500, 1000, 5000},
		},
	)
)

func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func RecordFetch(status int, d time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	FetchDuration.WithLabelValues(label).Observe(d.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
