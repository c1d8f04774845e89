package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-api-notify/internal/config"
	"github.com/go-api-notify/internal/domain"
	"github.com/go-api-notify/internal/transport/http/handler"
	appmiddleware "github.com/go-api-notify/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds background
// work owned by middleware.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 50 requests/second, burst of 100, per producer IP on write endpoints.
	writeRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(50), 100)

	healthH := handler.NewHealthHandler(deps.HealthChecks, log)
	notifH := handler.NewNotificationHandler(deps.NotificationSvc, log)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.JWTProvider))

			r.Get("/notifications", notifH.List)
			r.Get("/notifications/unread-count", notifH.UnreadCount)
			r.Get("/notifications/stream", notifH.Stream)
			r.Put("/notifications/{id}/read", notifH.MarkRead)

			// Producers only.
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin, domain.RoleService))
				r.Use(writeRL.Limit)

				r.Post("/notifications", notifH.Create)
				r.Post("/notifications/batch", notifH.CreateBatch)
			})
		})
	})

	return r
}
