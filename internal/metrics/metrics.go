package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ctxKey string

const routeLabelKey ctxKey = "metrics_route"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segtrack_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segtrack_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "segtrack_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "segtrack_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segtrack_provider_requests_total",
		Help: "Outbound Strava API calls by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	providerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "segtrack_provider_request_duration_seconds",
		Help:    "Latency of outbound Strava API calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	tokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segtrack_token_refresh_total",
		Help: "OAuth token refresh attempts by result.",
	}, []string{"result"})

	fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segtrack_fallback_total",
		Help: "Rate-limited fetches by whether a stored snapshot was served.",
	}, []string{"result"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "segtrack_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})
)

// Middleware records request metrics and enriches the context with the route label for DB instrumentation.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			ctx := context.WithValue(r.Context(), routeLabelKey, r.URL.Path)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// chi fills in the pattern while routing, so read it afterwards.
			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			statusCode := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, statusCode).Observe(time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	dbLatency.WithLabelValues(operation, routeFromContext(ctx)).Observe(time.Since(start).Seconds())
}

// ObserveProvider records one outbound call.
func ObserveProvider(endpoint, outcome string, start time.Time) {
	providerRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	providerDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func TokenRefresh(result string) {
	tokenRefreshTotal.WithLabelValues(result).Inc()
}

func Fallback(result string) {
	fallbackTotal.WithLabelValues(result).Inc()
}

func SetBreakerState(name string, state float64) {
	breakerState.WithLabelValues(name).Set(state)
}

func routeFromContext(ctx context.Context) string {
	if route, ok := ctx.Value(routeLabelKey).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
