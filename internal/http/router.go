package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"gitea.jw6.us/james/segtrack/internal/config"
	"gitea.jw6.us/james/segtrack/internal/http/ratelimit"
	"gitea.jw6.us/james/segtrack/internal/logging"
	"gitea.jw6.us/james/segtrack/internal/metrics"
	"gitea.jw6.us/james/segtrack/internal/store"
)

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the services behind the HTTP surface.
type Deps struct {
	Health   HealthChecker
	Auth     AuthService
	Segments SegmentService
	Items    store.SegmentRepository
}

// NewRouter wires all HTTP routes. The inbound limiters sweep idle clients
// until ctx is done.
func NewRouter(ctx context.Context, cfg *config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	// OAuth endpoints: 5 requests per second, burst of 10
	authLimiter := ratelimit.New(ratelimit.Config{Rate: rate.Limit(5), Burst: 10, IdleTTL: 5 * time.Minute, TrustedProxies: cfg.TrustedProxies})
	// Live fetches fan out to Strava, so they get a tighter budget than CRUD.
	fetchLimiter := ratelimit.New(ratelimit.Config{Rate: rate.Limit(2), Burst: 5, IdleTTL: 5 * time.Minute, TrustedProxies: cfg.TrustedProxies})
	itemLimiter := ratelimit.New(ratelimit.Config{Rate: rate.Limit(20), Burst: 50, IdleTTL: 5 * time.Minute, TrustedProxies: cfg.TrustedProxies})
	for _, l := range []*ratelimit.Limiter{authLimiter, fetchLimiter, itemLimiter} {
		go l.Run(ctx)
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := d.Health.HealthCheck(ctx); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("readiness check failed")
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	ah := &authHandler{svc: d.Auth, frontendURL: cfg.FrontendURL}
	r.Route("/auth/strava", func(r chi.Router) {
		r.Use(authLimiter.Middleware())
		r.Get("/authorize", ah.authorize)
		r.Get("/callback", ah.callback)
		r.Get("/status", ah.status)
		r.Get("/athlete", ah.athlete)
		r.Post("/disconnect", ah.disconnect)
	})

	sh := &segmentHandler{svc: d.Segments}
	r.Route("/strava/segments/{id}", func(r chi.Router) {
		r.Use(fetchLimiter.Middleware())
		r.Get("/times", sh.times)
		r.Get("/metadata", sh.metadata)
	})

	ih := &itemHandler{items: d.Items}
	r.Route("/items", func(r chi.Router) {
		r.Use(itemLimiter.Middleware())
		r.Get("/", ih.list)
		r.Post("/", ih.create)
		r.Get("/map.geojson", ih.mapGeoJSON)
		r.Get("/{id}", ih.get)
		r.Put("/{id}", ih.update)
		r.Delete("/{id}", ih.delete)
		r.Put("/{id}/complete", ih.toggleComplete)
	})

	return r
}
