package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	uploadsTotal *prometheus.CounterVec
	reviewsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "billscan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "billscan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "billscan",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "billscan",
			Subsystem: "bills",
			Name:      "uploads_total",
			Help:      "Total accepted bill uploads.",
		},
		[]string{"service"},
	)
	reviewsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "billscan",
			Subsystem: "bills",
			Name:      "review_actions_total",
			Help:      "Total review actions by kind.",
		},
		[]string{"service", "action"},
	)

	registry.MustRegister(requestTotal, requestDuration, requestInFlight, uploadsTotal, reviewsTotal)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		uploadsTotal:    uploadsTotal,
		reviewsTotal:    reviewsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses per-resource ids so the label set stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/bills/"):
		rest := strings.TrimPrefix(path, "/v1/bills/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/v1/bills/{job_id}/" + rest[i+1:]
		}
		return "/v1/bills/{job_id}"
	case strings.HasPrefix(path, "/v1/companies/"):
		rest := strings.TrimPrefix(path, "/v1/companies/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return "/v1/companies/{company_id}/" + rest[i+1:]
		}
		return "/v1/companies/{company_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordUpload(service string) {
	m.uploadsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordReviewAction(service, action string) {
	if action == "" {
		action = "unknown"
	}
	m.reviewsTotal.WithLabelValues(service, action).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
