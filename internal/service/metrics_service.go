package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/internal/recognition"
)

// MetricsService encapsulates Prometheus instrumentation for the API
// and the recognition pipeline.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	recognitionDuration *prometheus.HistogramVec
	recognitionTotal    *prometheus.CounterVec
	marksTotal          *prometheus.CounterVec
	sheetDuration       prometheus.Observer
	emailsTotal         *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	recognitionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recognition_call_duration_seconds",
		Help:    "Duration of face recognition calls",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	recognitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recognition_calls_total",
		Help: "Total face recognition calls by outcome",
	}, []string{"outcome"})

	marksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Total attendance mark outcomes",
	}, []string{"outcome"})

	sheetDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "report_sheet_write_seconds",
		Help:    "Time spent rendering and storing report workbooks",
		Buckets: prometheus.DefBuckets,
	})

	emailsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_emails_total",
		Help: "Total notification emails by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, recognitionDuration, recognitionTotal, marksTotal, sheetDuration, emailsTotal, goroutines)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		recognitionDuration: recognitionDuration,
		recognitionTotal:    recognitionTotal,
		marksTotal:          marksTotal,
		sheetDuration:       sheetDuration,
		emailsTotal:         emailsTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveRecognition records a recognition call outcome.
func (m *MetricsService) ObserveRecognition(failure recognition.FailureKind, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if failure != recognition.FailureNone {
		outcome = string(failure)
	}
	m.recognitionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.recognitionTotal.WithLabelValues(outcome).Inc()
}

// AddMarks counts attendance mark outcomes.
func (m *MetricsService) AddMarks(outcome models.MarkOutcomeKind, n int) {
	if m == nil {
		return
	}
	m.marksTotal.WithLabelValues(string(outcome)).Add(float64(n))
}

// ObserveSheetWrite records report rendering latency.
func (m *MetricsService) ObserveSheetWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.sheetDuration.Observe(duration.Seconds())
}

// AddEmail counts a notification email result.
func (m *MetricsService) AddEmail(result string) {
	if m == nil {
		return
	}
	m.emailsTotal.WithLabelValues(result).Inc()
}
