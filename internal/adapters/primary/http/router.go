package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/lorrc/service-desk-notifier/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-notifier/internal/auth"
	"github.com/lorrc/service-desk-notifier/internal/core/ports"
	"github.com/lorrc/service-desk-notifier/internal/core/services"
)

// RateLimits configures the limiters; a zero value disables rate limiting.
type RateLimits struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	IngestRPS         float64
	IngestBurst       int
}

// RouterDeps holds everything the HTTP surface needs.
type RouterDeps struct {
	Publisher      ports.EventPublisher
	Permissions    ports.PermissionCache
	Tokens         *auth.TokenManager
	WebSocket      *WebSocketHandler
	Health         *HealthHandler
	RateLimits     RateLimits
	AllowedOrigins []string
	CORSMaxAge     int
	Logger         *slog.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(deps RouterDeps) http.Handler {
	errorHandler := NewErrorHandler(deps.Logger)
	eventsHandler := NewEventsHandler(deps.Publisher, errorHandler, deps.Logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(deps.Logger))
	r.Use(mw.RecoveryLogger(deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           deps.CORSMaxAge,
	}))

	var ingestLimiter *mw.RateLimitByKey
	if deps.RateLimits.Enabled {
		general := mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: deps.RateLimits.RequestsPerSecond,
			BurstSize:         deps.RateLimits.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		ingestLimiter = mw.NewRateLimitByKey(deps.RateLimits.IngestRPS, deps.RateLimits.IngestBurst)
		r.Use(general.Middleware)
	}

	// Health check endpoints (outside /api/v1 for standard probe paths)
	deps.Health.RegisterRoutes(r)

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route (Authentication is handled inside the handler)
		r.Get("/ws", deps.WebSocket.ServeHTTP)

		// Producers
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(deps.Tokens))
			if ingestLimiter != nil {
				r.Use(ingestLimiter.SubjectMiddleware)
			}
			r.Use(mw.RequirePermission(deps.Permissions, services.PermissionEventsPublish))
			r.Route("/events", eventsHandler.RegisterRoutes)
		})
	})

	return r
}
