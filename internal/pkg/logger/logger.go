package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a structured logger for the given environment: JSON at info
// level in production, text at debug level elsewhere.
func New(env, service string) *slog.Logger {
	return newWithOutput(os.Stdout, env, service)
}

func newWithOutput(w io.Writer, env, service string) *slog.Logger {
	var h slog.Handler
	switch env {
	case "production", "prod", "staging", "stage":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(h).With(slog.String("service", service), slog.String("env", env))
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Error records err under the key "error". Nil errors yield an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	return slog.String("user_id", id)
}

// NotificationID records the notification identifier under the key "notification_id".
func NotificationID(id string) slog.Attr {
	return slog.String("notification_id", id)
}
