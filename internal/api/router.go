package api

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/pinstack/internal/middleware"
)

// RouterConfig collects the handlers and per-route middleware for the server mux.
type RouterConfig struct {
	Logs   *LogHandlers
	Stream *StreamHandlers
	Audit  *AuditHandlers
	Health *HealthHandlers

	// Auth wraps every /api route. Optional; nil leaves routes open (tests).
	Auth func(http.Handler) http.Handler
	// QueryLimiter additionally wraps the disk-heavy query and export routes.
	QueryLimiter func(http.Handler) http.Handler
	// MetricsHandler serves GET /metrics (promhttp). Optional.
	MetricsHandler http.Handler
}

// NewRouter builds the route table.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	identity := func(next http.Handler) http.Handler { return next }
	authed := cfg.Auth
	if authed == nil {
		authed = identity
	}
	limited := cfg.QueryLimiter
	if limited == nil {
		limited = identity
	}

	mux.HandleFunc("/health", cfg.Health.Health)
	if cfg.MetricsHandler != nil {
		mux.Handle("/metrics", cfg.MetricsHandler)
	}

	mux.Handle("/api/logs", authed(limited(http.HandlerFunc(cfg.Logs.Query))))
	mux.Handle("/api/logs/export", authed(limited(http.HandlerFunc(cfg.Logs.Export))))
	mux.Handle("/api/logs/stats", authed(http.HandlerFunc(cfg.Logs.Stats)))
	mux.Handle("/api/logs/stream", authed(http.HandlerFunc(cfg.Stream.Stream)))
	mux.Handle("/api/logs/tail", authed(http.HandlerFunc(cfg.Stream.Tail)))

	mux.Handle("/api/audit", authed(limited(http.HandlerFunc(cfg.Audit.Query))))
	mux.Handle("/api/audit/users/", authed(http.HandlerFunc(cfg.Audit.UserLogs)))
	mux.Handle("/api/audit/resources/", authed(http.HandlerFunc(cfg.Audit.ResourceLogs)))

	// Service banner on exact root; everything unrouted is a structured 404.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"pinstack-logs","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	return mux
}
