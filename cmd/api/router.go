package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/minicart-api/internal/cart"
	"github.com/noah-isme/minicart-api/internal/common"
	"github.com/noah-isme/minicart-api/internal/health"
	"github.com/noah-isme/minicart-api/internal/obs"
	"github.com/noah-isme/minicart-api/internal/ratelimit"
	"github.com/noah-isme/minicart-api/internal/security"
)

type routerDeps struct {
	Logger          zerolog.Logger
	Cart            cart.Service
	Health          health.Handler
	Idem            common.Idem
	Limiter         ratelimit.Limiter
	RateLimitMax    int
	RateLimitWindow time.Duration
	BodyLimit       int64
	SecurityHeaders bool
	AllowedOrigins  []string
	HTTPMetrics     *obs.HTTPMetrics
	Gatherer        prometheus.Gatherer
	Tracing         bool
	Pprof           http.Handler
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(d.AllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", common.IdempotencyHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: d.SecurityHeaders, EnableHSTS: true, NoStore: true}.Middleware)

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if d.Pprof != nil {
		r.Mount("/debug/pprof", d.Pprof)
	}
	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	cartHandler := &cart.Handler{Svc: d.Cart}
	limit := ratelimit.Handler{
		Limiter: d.Limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ClientIPKey,
			Window: d.RateLimitWindow,
			Max:    d.RateLimitMax,
		},
		OnError: func(err error) {
			d.Logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}

	r.Route("/api/cart", func(c chi.Router) {
		c.Use(limit.Middleware)
		c.Get("/", cartHandler.Get)
		c.Group(func(g chi.Router) {
			g.Use(security.BodyLimit{Max: d.BodyLimit}.Middleware)
			g.Use(d.Idem.Middleware)
			g.Patch("/item", cartHandler.UpdateItem)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusMethodNotAllowed, common.CodeMethodNotAllowed, "method not allowed", nil)
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
