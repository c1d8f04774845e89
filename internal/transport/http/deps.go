package http

import (
	"log/slog"

	"github.com/go-api-notify/internal/application/notification"
	jwtinfra "github.com/go-api-notify/internal/infrastructure/jwt"
	"github.com/go-api-notify/internal/metrics"
	"github.com/go-api-notify/internal/transport/http/handler"
)

// Deps holds everything the router needs. Metrics and HealthChecks are optional.
type Deps struct {
	NotificationSvc notification.Service
	JWTProvider     *jwtinfra.Provider
	Metrics         *metrics.Metrics
	HealthChecks    map[string]handler.Check
	Logger          *slog.Logger
}
