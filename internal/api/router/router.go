package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/heydoc-scheduler/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/heydoc-scheduler/internal/http/middleware"
	"github.com/wolfman30/heydoc-scheduler/internal/session"
	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Scheduling         *handlers.SchedulingHandler
	Session            *session.Session
	OnSessionChange    func()
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-client request rate for the scheduling API. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health checks, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/health", cfg.Scheduling.HealthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Scheduling API, acting on behalf of the session viewer
	r.Route("/api", func(api chi.Router) {
		if cfg.RateLimit > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
		}
		if cfg.Session != nil {
			api.Use(httpmiddleware.SessionToken(cfg.Session, cfg.OnSessionChange))
		}
		cfg.Scheduling.Register(api)
	})

	return otelhttp.NewHandler(r, "heydoc-scheduler")
}
