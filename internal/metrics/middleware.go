package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP operation labels. Topic routes map to ingest/search/query; the rest are system endpoints.
const (
	OpIngest  = "ingest"
	OpSearch  = "search"
	OpQuery   = "query"
	OpTopics  = "topics"
	OpHealth  = "health"
	OpMetrics = "metrics"
	OpUnknown = "unknown"

	GroupTopic  = "topic"
	GroupSystem = "system"
)

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route group and operation.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"group", "operation"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route group, operation and status class.",
		},
		[]string{"group", "operation", "status"},
	)
)

// Middleware records one duration sample and one count per request,
// labelled by the flatrag operation behind the matched route.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			var pattern string
			if rc := chi.RouteContext(r.Context()); rc != nil {
				pattern = rc.RoutePattern()
			}
			group, op := Operation(pattern)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			httpRequestDuration.WithLabelValues(group, op).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(group, op, statusClass(status)).Inc()
		})
	}
}

// Operation maps a chi route pattern to its route group and operation.
func Operation(pattern string) (group, op string) {
	if rest, ok := strings.CutPrefix(pattern, "/topics/{topic}/"); ok {
		switch rest {
		case "documents":
			return GroupTopic, OpIngest
		case "search":
			return GroupTopic, OpSearch
		case "query":
			return GroupTopic, OpQuery
		}
		return GroupTopic, OpUnknown
	}

	switch pattern {
	case "/topics":
		return GroupSystem, OpTopics
	case "/health":
		return GroupSystem, OpHealth
	case "/metrics":
		return GroupSystem, OpMetrics
	}
	return GroupSystem, OpUnknown
}

// statusClass collapses status codes to 2xx/4xx/5xx, keeping 207 apart for partial batch ingests.
func statusClass(status int) string {
	if status == http.StatusMultiStatus {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}
