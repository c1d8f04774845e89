package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-api-notify/internal/application/notification"
	"github.com/go-api-notify/internal/domain"
	"github.com/go-api-notify/internal/pkg/logger"
	"github.com/go-api-notify/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// MaxBatchSize caps POST /notifications/batch.
const MaxBatchSize = 500

// BatchRequest is the body of POST /notifications/batch.
type BatchRequest struct {
	Notifications []domain.CreateNotificationRequest `json:"notifications"`
}

// NotificationHandler handles notification endpoints.
type NotificationHandler struct {
	svc notification.Service
	log *slog.Logger
}

func NewNotificationHandler(svc notification.Service, log *slog.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, log: log}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := notification.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	var cursor *time.Time
	if v := r.URL.Query().Get("cursor"); v != "" {
		c, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "cursor must be an RFC 3339 timestamp")
			return
		}
		cursor = &c
	}

	page, err := h.svc.List(r.Context(), claims.UserID, limit, cursor)
	if err != nil {
		httpError(w, err)
		return
	}
	resp := NotificationsEnvelope{Data: page.Items}
	if page.NextCursor != nil {
		resp.NextCursor = page.NextCursor.UTC().Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	count, err := h.svc.CountUnread(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.MarkRead(r.Context(), claims.UserID, chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	if n == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *NotificationHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Notifications) > MaxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d notifications per batch", MaxBatchSize))
		return
	}
	created, err := h.svc.CreateBatch(r.Context(), req.Notifications)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, NotificationsEnvelope{Data: created})
}

// Stream relays the caller's live notifications as server-sent events until
// the client disconnects.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		h.log.ErrorContext(r.Context(), "streaming unsupported", logger.Error(err))
		return
	}

	for n, err := range h.svc.Subscribe(r.Context(), claims.UserID) {
		if err != nil {
			h.log.ErrorContext(r.Context(), "notification stream failed", logger.UserID(claims.UserID), logger.Error(err))
			_, _ = fmt.Fprint(w, "event: error\ndata: {\"error\":\"stream unavailable\"}\n\n")
			_ = rc.Flush()
			return
		}
		data, err := json.Marshal(n)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
