package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-api-notify/internal/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// Check is a readiness check for one dependency.
type Check func(ctx context.Context) error

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	checks map[string]Check
	log    *slog.Logger
}

func NewHealthHandler(checks map[string]Check, log *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, log: log}
}

// Ping answers /health-check/{action}: "ping" for liveness, "ready" to check
// every registered dependency.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "ready":
		h.ready(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *HealthHandler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.WarnContext(ctx, "readiness check failed", slog.String("check", name), logger.Error(err))
			failed[name] = "unavailable"
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "not ready", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ready"})
}
