package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/yolsda-go/internal/assistant"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the route pattern rather than the raw URL path.
	labelHandler = "handler"

	// unmatchedHandler labels requests no route accepted.
	unmatchedHandler = "unmatched"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// chatRequestsTotal counts completed chat requests, partitioned by the
	// generation outcome: "ok", "timeout", "transport", "upstream", or
	// "error" when the exchange could not be saved.
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each chat
	// request from receipt to response.
	chatDurationSeconds *prometheus.HistogramVec

	// chatInFlight is the number of chat requests currently being answered.
	chatInFlight prometheus.Gauge

	// retrievalPassages records how many passages grounded each answer.
	retrievalPassages prometheus.Histogram

	// stageDurationSeconds records the search and generate stages.
	stageDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yolsda",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of chat requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yolsda",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of chat requests from receipt to response.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		chatInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "yolsda",
			Subsystem: "chat",
			Name:      "in_flight",
			Help:      "Number of chat requests currently being answered.",
		}),

		retrievalPassages: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "yolsda",
			Subsystem: "retrieval",
			Name:      "passages",
			Help:      "Number of knowledge base passages placed in the generation context.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),

		stageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yolsda",
			Subsystem: "chat",
			Name:      "stage_duration_seconds",
			Help:      "Duration of the search and generate stages of a chat request.",
			Buckets:   []float64{0.005, 0.05, 0.25, 1, 5, 15, 30, 60},
		}, []string{"stage"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yolsda",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yolsda",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeAnswer records the retrieval and generation figures of one answer.
func (m *serverMetrics) observeAnswer(a assistant.Answer) {
	m.retrievalPassages.Observe(float64(a.Retrieved))
	m.stageDurationSeconds.WithLabelValues("search").Observe(a.SearchTime.Seconds())
	m.stageDurationSeconds.WithLabelValues("generate").Observe(a.GenerateTime.Seconds())
}

// observeChat records a finished chat request.
func (m *serverMetrics) observeChat(outcome string, elapsed time.Duration) {
	m.chatRequestsTotal.WithLabelValues(outcome).Inc()
	m.chatDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// instrument records request count and latency for every request served by
// next. The handler label is the matched route pattern, which ServeMux
// stores on the request it receives.
func (m *serverMetrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		handler := r.Pattern
		if handler == "" {
			handler = unmatchedHandler
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(elapsed.Seconds())
	})
}
