package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kperson/fire-sync/internal/api/middleware"
	"github.com/kperson/fire-sync/internal/handlers"
	"github.com/kperson/fire-sync/internal/identity"
	"github.com/kperson/fire-sync/internal/relay"
	"github.com/kperson/fire-sync/internal/store"
)

// Options holds the router's dependencies.
type Options struct {
	// Store must publish creation events for the relay to see posted messages.
	Store  store.Store
	Relay  *relay.Relay
	Issuer identity.Issuer

	// Redis enables rate limiting and the redis health check. Optional.
	Redis              *redis.Client
	RateLimitWhitelist []string

	MaxBodyBytes int64
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 * 1024
	}
	r.Use(middleware.MaxBodySize(maxBody))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Per-namespace limits apply only after the auth gate has admitted the
	// request; PerIP covers everything, including requests it rejects.
	var limiter *middleware.RateLimiter
	if opts.Redis != nil {
		limiter = middleware.NewRateLimiter(opts.Redis, logger, middleware.RateLimiterConfig{
			Whitelist: opts.RateLimitWhitelist,
		})
		r.Use(limiter.PerIP)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.NamespaceHeader, middleware.TokenHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(opts.Store, opts.Relay, opts.Issuer, opts.Redis, logger)
	verifier, _ := opts.Issuer.(identity.Verifier)
	auth := middleware.NewAuthMiddleware(opts.Store, verifier, logger)

	// Public routes
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Namespaced routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireNamespace)
		if limiter != nil {
			r.Use(limiter.Middleware)
		}

		r.Post("/admin/token", h.CreateToken)
		r.Delete("/admin/token/{tokenId}", h.DeleteToken)

		r.Post("/group", h.CreateGroup)
		r.Route("/group/{groupId}", func(r chi.Router) {
			r.Get("/", h.GetGroup)
			r.Delete("/", h.DeleteGroup)
			r.Post("/member", h.AddMember)
			r.Delete("/member/{memberId}", h.RemoveMember)
			r.Post("/message", h.PostGroupMessage)
			r.Get("/state", h.GetState)
			r.Post("/state/set", h.SetState)
			r.Post("/state/push", h.PushState)
		})

		r.Post("/member/{memberId}/message", h.PostMemberMessage)
		r.Post("/member/{memberId}/token", h.IssueMemberToken)
	})

	// Inbox routes also admit the member's own credential
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireNamespaceOrMember)
		if limiter != nil {
			r.Use(limiter.Middleware)
		}

		r.Get("/member/{memberId}/messages", h.GetMemberMessages)
		r.Delete("/member/{memberId}/messages/{messageId}", h.DeleteMemberMessage)
	})

	return r
}
