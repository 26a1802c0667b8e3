// Package metrics declares the Prometheus collectors of the discovery service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scouted"

var (
	// Candidates per source and stage: parsed, kept, rejected.
	SourceItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_items_total",
			Help:      "Candidate opportunities seen per source and pipeline stage",
		},
		[]string{"source", "stage"},
	)

	// Relevance rejections per source and reason.
	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevance_rejections_total",
			Help:      "Candidates dropped by the relevance filter",
		},
		[]string{"source", "reason"},
	)

	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Extractor runs that ended in an error or panic",
		},
		[]string{"source"},
	)

	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_duration_seconds",
			Help:      "Wall time of one source extraction",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	UpsertedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upserted_rows_total",
			Help:      "Rows written by accepted upsert batches",
		},
		[]string{"table"},
	)

	UpsertFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upsert_failures_total",
			Help:      "Upsert calls that reported at least one rejected batch",
		},
		[]string{"table"},
	)

	ClassifierVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_verdicts_total",
			Help:      "Secondary classifier outcomes per candidate",
		},
		[]string{"verdict"},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_last_run_timestamp_seconds",
			Help:      "Unix time the last pipeline run finished",
		},
	)

	DigestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digest_emails_sent_total",
			Help:      "Digest emails accepted by the mail provider",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps h so every request is counted under route. Use the
// registered pattern as route to keep label cardinality low.
func Instrument(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
