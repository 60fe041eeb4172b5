package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queriesTotal      *prometheus.CounterVec
	answersTotal      *prometheus.CounterVec
	guardrailRefusals *prometheus.CounterVec
	noAnswerTotal     *prometheus.CounterVec
	retrievedChunks   *prometheus.HistogramVec
	queryDuration     *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "rag",
			Name:      "queries_total",
			Help:      "Total answered queries by search method.",
		},
		[]string{"service", "method"},
	)
	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "rag",
			Name:      "answers_total",
			Help:      "Total answers by reported confidence.",
		},
		[]string{"service", "confidence"},
	)
	guardrailRefusals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "rag",
			Name:      "guardrail_refusals_total",
			Help:      "Total queries refused by the safety guardrail.",
		},
		[]string{"service"},
	)
	noAnswerTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "rag",
			Name:      "no_answer_total",
			Help:      "Total queries where no substantive answer was produced.",
		},
		[]string{"service"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "rag",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query handling duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		answersTotal,
		guardrailRefusals,
		noAnswerTotal,
		retrievedChunks,
		queryDuration,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		queriesTotal:      queriesTotal,
		answersTotal:      answersTotal,
		guardrailRefusals: guardrailRefusals,
		noAnswerTotal:     noAnswerTotal,
		retrievedChunks:   retrievedChunks,
		queryDuration:     queryDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
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
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// RecordQuery captures the retrieval and answer shape of one completed query.
func (m *HTTPServerMetrics) RecordQuery(service, searchMethod, confidence string, retrievedCount int, substantive bool, duration time.Duration) {
	if searchMethod == "" {
		searchMethod = "unknown"
	}
	if confidence == "" {
		confidence = "unknown"
	}
	m.queriesTotal.WithLabelValues(service, searchMethod).Inc()
	m.answersTotal.WithLabelValues(service, confidence).Inc()
	m.retrievedChunks.WithLabelValues(service).Observe(float64(retrievedCount))
	m.queryDuration.WithLabelValues(service).Observe(duration.Seconds())
	if !substantive {
		m.noAnswerTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordGuardrailRefusal(service string) {
	m.guardrailRefusals.WithLabelValues(service).Inc()
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
