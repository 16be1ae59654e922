package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/fintrack/internal/infrastructure/config"
	"github.com/cassiomorais/fintrack/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/fintrack/internal/middleware"
	"github.com/cassiomorais/fintrack/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// WebMounter registers the server-rendered pages.
type WebMounter interface {
	Mount(r chi.Router)
}

type RouterDeps struct {
	DB               databasePinger
	Redis            redisPinger
	AccountService   *service.AccountService
	IdentityService  *service.IdentityService
	Verifier         customMW.SessionVerifier
	IdempotencyStore customMW.IdempotencyStore
	Web              WebMounter
	Metrics          *observability.Metrics
	MetricsHandler   http.Handler
	Logger           zerolog.Logger
	ServerConfig     config.ServerConfig
	IdentityConfig   config.IdentityConfig
	IdempotencyTTL   time.Duration
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.ServerConfig.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "X-Idempotency-Replayed"},
		AllowCredentials: deps.ServerConfig.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))
	if deps.ServerConfig.RateLimit > 0 {
		r.Use(customMW.RateLimit(deps.ServerConfig.RateLimit))
	}

	healthH := NewHealthController(deps.DB, deps.Redis)
	accountH := NewAccountController(deps.AccountService)
	userH := NewUserController(deps.IdentityService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Group(func(r chi.Router) {
		r.Use(customMW.Authenticate(deps.Verifier, deps.IdentityConfig.SessionCookie))

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(customMW.RequireSession())

			r.Get("/me", userH.Me)

			if deps.IdempotencyStore != nil {
				r.With(customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL, deps.Logger)).
					Post("/accounts", accountH.Create)
			} else {
				r.Post("/accounts", accountH.Create)
			}
			r.Get("/accounts", accountH.List)
			r.Get("/accounts/{id}", accountH.Get)
			r.Get("/accounts/{id}/transactions", accountH.GetTransactions)
		})

		if deps.Web != nil {
			deps.Web.Mount(r)
		}
	})

	return r
}
