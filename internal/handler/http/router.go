package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TheHatt/revboard/pkg/health"
	"github.com/TheHatt/revboard/pkg/middleware"
)

// RouterConfig carries the HTTP-facing settings.
type RouterConfig struct {
	JWTSecret          string
	CORSAllowedOrigins []string
	PprofAllowedCIDRs  []string
}

// NewRouter creates a chi router with all dashboard routes registered.
// limiter guards reply submission and suggestions.
func NewRouter(
	cfg RouterConfig,
	dashboard *DashboardHandler,
	scopes ScopeResolver,
	limiter *middleware.RateLimiter,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Tracing)
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.MountPprof(r, cfg.PprofAllowedCIDRs, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.JWTAuth(cfg.JWTSecret, logger))
		r.Use(ResolveScope(scopes, logger))

		r.Get("/stats", dashboard.GetStats)
		r.Get("/reviews", dashboard.ListReviews)
		r.Get("/locations", dashboard.ListLocations)
		r.Get("/settings", dashboard.GetSettings)
		r.Put("/settings", dashboard.UpdateSettings)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/reviews/{id}/reply", dashboard.CreateReply)
			r.Put("/reviews/{id}/reply", dashboard.UpdateReply)
			r.Post("/reviews/{id}/reply/suggestion", dashboard.SuggestReply)
		})
	})

	return r
}
