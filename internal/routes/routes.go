package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/handlers"
	custommw "github.com/BradenHooton/bastion/internal/middleware"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// Handlers groups the HTTP handlers mounted by NewRouter. MFA is nil when
// two-factor login is disabled.
type Handlers struct {
	Auth      *handlers.AuthHandler
	MFA       *handlers.MFAHandler
	RateLimit *handlers.RateLimitHandler
	Health    *handlers.HealthHandler
}

// Options carries the router settings taken from configuration
type Options struct {
	Env                    string
	AllowedOrigins         []string
	IPConfig               *pkghttp.IPConfig
	LoginRequestsPerMinute int
	RequestTimeout         time.Duration
	// Gatherer backs /metrics; nil uses the default Prometheus registry
	Gatherer prometheus.Gatherer
}

// NewRouter builds the application router with its middleware stack
func NewRouter(h Handlers, tokenManager *auth.TokenManager, opts Options, logger *slog.Logger) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(custommw.SecurityHeaders(custommw.SecurityHeadersConfig{Env: opts.Env}))
	router.Use(custommw.CORS(custommw.DefaultCORSConfig(opts.AllowedOrigins)))
	router.Use(custommw.SecureLogger(logger, opts.IPConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(opts.RequestTimeout))

	RegisterRoutes(router, h, tokenManager, opts)

	router.Get("/health", h.Health.Health)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return router
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, tokenManager *auth.TokenManager, opts Options) {
	requestLimit := custommw.RateLimitByIP(custommw.RateLimitConfig{
		RequestsPerMinute: opts.LoginRequestsPerMinute,
		IPConfig:          opts.IPConfig,
	})

	// Public routes
	router.With(requestLimit).Post("/auth/login", h.Auth.Login)
	router.With(requestLimit).Get("/auth/rate-limit", h.RateLimit.Status)

	if opts.Env != "production" {
		router.Post("/dev/reset-rate-limit", h.RateLimit.DevReset)
	}

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		if h.MFA != nil {
			r.Post("/auth/2fa/setup", h.MFA.Setup)
			r.Post("/auth/2fa/enable", h.MFA.Enable)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUnblocker())
			r.With(requestLimit).Post("/security/unblock", h.RateLimit.Unblock)
		})
	})
}
