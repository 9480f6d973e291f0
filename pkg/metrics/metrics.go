// Package metrics exposes record store and HTTP activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ssargent/aora/pkg/store"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	resultHit  = "hit"
	resultMiss = "miss"
)

// Recorder holds all Prometheus metrics for a store and the API in front
// of it. It implements store.Observer.
type Recorder struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Store operation metrics
	appendsTotal      *prometheus.CounterVec
	appendDuration    prometheus.Histogram
	appendedBytes     prometheus.Counter
	getsTotal         *prometheus.CounterVec
	getDuration       prometheus.Histogram
	keysTotal         prometheus.Gauge
	recoveriesTotal   *prometheus.CounterVec
	truncatedBytes    prometheus.Counter
	recoveryDuration  prometheus.Histogram
	recoveredRecords  prometheus.Gauge
	healthChecksTotal *prometheus.CounterVec
}

var _ store.Observer = (*Recorder)(nil)

// NewRecorder creates all metrics and registers them on reg. A nil reg
// leaves them unregistered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aora_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aora_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aora_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		appendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aora_store_appends_total",
				Help: "Total number of record appends",
			},
			[]string{"status"},
		),

		appendDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aora_store_append_duration_seconds",
				Help:    "Record append duration in seconds, fsync included",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
			},
		),

		appendedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aora_store_appended_bytes_total",
				Help: "Total frame bytes written to the log",
			},
		),

		getsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aora_store_gets_total",
				Help: "Total number of record lookups",
			},
			[]string{"result"},
		),

		getDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aora_store_get_duration_seconds",
				Help:    "Record lookup duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),

		keysTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aora_store_keys",
				Help: "Number of distinct keys in the index",
			},
		),

		recoveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aora_store_recoveries_total",
				Help: "Total number of log recoveries by final state",
			},
			[]string{"state"},
		),

		truncatedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aora_store_recovery_truncated_bytes_total",
				Help: "Torn tail bytes dropped during recovery",
			},
		),

		recoveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aora_store_recovery_duration_seconds",
				Help:    "Time spent recovering the log at open",
				Buckets: prometheus.DefBuckets,
			},
		),

		recoveredRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aora_store_recovered_records",
				Help: "Records validated by the last recovery",
			},
		),

		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aora_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}
}

// ObserveAppend records an append attempt
func (r *Recorder) ObserveAppend(bytes int64, d time.Duration, err error) {
	if err != nil {
		r.appendsTotal.WithLabelValues(statusError).Inc()
		return
	}
	r.appendsTotal.WithLabelValues(statusSuccess).Inc()
	r.appendDuration.Observe(d.Seconds())
	r.appendedBytes.Add(float64(bytes))
}

// ObserveGet records a lookup
func (r *Recorder) ObserveGet(found bool, d time.Duration, err error) {
	switch {
	case err != nil:
		r.getsTotal.WithLabelValues(statusError).Inc()
	case found:
		r.getsTotal.WithLabelValues(resultHit).Inc()
	default:
		r.getsTotal.WithLabelValues(resultMiss).Inc()
	}
	r.getDuration.Observe(d.Seconds())
}

// ObserveRecovery records the outcome of recovery at open
func (r *Recorder) ObserveRecovery(res *store.RecoveryResult) {
	r.recoveriesTotal.WithLabelValues(res.State().String()).Inc()
	r.truncatedBytes.Add(float64(res.BytesTruncated))
	r.recoveryDuration.Observe(res.RecoveryTime.Seconds())
	r.recoveredRecords.Set(float64(res.RecordsValidated))
}

// ObserveKeys records the current index size
func (r *Recorder) ObserveKeys(n int) {
	r.keysTotal.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request
func (r *Recorder) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	r.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordHealthCheck records a health check
func (r *Recorder) RecordHealthCheck(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	r.healthChecksTotal.WithLabelValues(status).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (r *Recorder) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()

		gauge := r.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Capture the status code written by the handler
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, req)

		r.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
