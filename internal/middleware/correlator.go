package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/pinstack/internal/logging"
	"github.com/onnwee/pinstack/internal/logstore"
	"github.com/onnwee/pinstack/internal/redact"
)

// DefaultMaxBodyBytes caps how much of a request body is captured for logging.
const DefaultMaxBodyBytes = 64 * 1024

// defaultSilentPaths are never written to the request log.
var defaultSilentPaths = []string{"/health", "/metrics"}

// capturedHeaders are the request headers recorded in the request log.
// Values pass through redaction so Authorization and friends come out masked.
var capturedHeaders = []string{"Authorization", "Content-Type", "Origin", "Referer", "X-Api-Key"}

// CorrelatorConfig configures the request correlation middleware.
type CorrelatorConfig struct {
	// Logger receives request lifecycle entries on the request partition.
	Logger *logging.Logger
	// Console receives the per-request operational summary. Optional.
	Console *slog.Logger
	// SilentPaths are skipped entirely. Defaults to /health and /metrics.
	SilentPaths []string
	// MaxBodyBytes caps body capture. Defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Correlator is a middleware that ties every request to a request ID and
// writes a start and a completion entry to the request log partition.
// Query parameters, headers, and JSON bodies are redacted before persisting.
//
// Note: If a handler panics, the completion entry will not be written. To
// ensure logging even on panics, place a recovery middleware outside of this one.
func Correlator(cfg CorrelatorConfig) func(http.Handler) http.Handler {
	silent := make(map[string]bool)
	paths := cfg.SilentPaths
	if paths == nil {
		paths = defaultSilentPaths
	}
	for _, p := range paths {
		silent[p] = true
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if silent[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			r = r.WithContext(withCorrelationSlots(r.Context()))
			requestID := GetRequestID(r.Context())

			persist(cfg.Logger, map[string]any{
				"timestamp": start.UTC().Format(time.RFC3339Nano),
				"event":     "request_start",
				"requestId": requestID,
				"method":    r.Method,
				"path":      r.URL.Path,
				"query":     redactedQuery(r),
				"headers":   redactedHeaders(r),
				"body":      captureBody(r, maxBody),
				"ip":        ClientIP(r),
				"userAgent": r.UserAgent(),
			})

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			latency := time.Since(start)
			completion := map[string]any{
				"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
				"event":      "request_complete",
				"requestId":  requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rw.statusCode,
				"durationMs": latency.Milliseconds(),
				"size":       rw.size,
			}
			if userID := GetUserID(r.Context()); userID != "" {
				completion["userId"] = userID
			}
			if rw.statusCode >= 400 {
				if code := GetErrorCode(r.Context()); code != "" {
					completion["errorCode"] = code
				}
			}
			persist(cfg.Logger, completion)

			if cfg.Console != nil {
				logSummary(cfg.Console, r, rw, requestID, latency)
			}
		})
	}
}

// persist marshals the entry and appends it to the request partition.
// Entries that fail to marshal are dropped; the values are already
// redaction-coerced so this only happens for exotic handler misuse.
func persist(logger *logging.Logger, entry map[string]any) {
	if logger == nil {
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	logger.Persist(logstore.TypeRequest, string(line))
}

// redactedQuery returns the query parameters with sensitive keys masked.
// Multi-valued parameters keep only the first value.
func redactedQuery(r *http.Request) map[string]any {
	values := r.URL.Query()
	if len(values) == 0 {
		return nil
	}
	params := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			params[key] = vals[0]
		}
	}
	redacted, _ := redact.Sanitize(params).(map[string]any)
	return redacted
}

// redactedHeaders returns the captured subset of request headers, masked.
func redactedHeaders(r *http.Request) map[string]any {
	headers := make(map[string]any)
	for _, name := range capturedHeaders {
		if v := r.Header.Get(name); v != "" {
			headers[name] = v
		}
	}
	if len(headers) == 0 {
		return nil
	}
	redacted, _ := redact.Sanitize(headers).(map[string]any)
	return redacted
}

// captureBody reads up to maxBody bytes of a JSON request body, redacts it,
// and restores r.Body so the handler still sees the full stream.
// Non-JSON and bodyless methods yield nil.
func captureBody(r *http.Request, maxBody int64) any {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil
	}
	if r.Body == nil {
		return nil
	}
	contentType := r.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	remainder := r.Body
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), remainder))
	if err != nil || len(buf) == 0 {
		return nil
	}

	var parsed any
	if err := json.Unmarshal(buf, &parsed); err != nil {
		// Truncated or malformed JSON; record only the size
		return map[string]any{"unparsed_bytes": len(buf)}
	}
	return redact.Sanitize(parsed)
}

// logSummary emits the one-line operational summary at a severity
// matching the response status.
func logSummary(console *slog.Logger, r *http.Request, rw *responseWriter, requestID string, latency time.Duration) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rw.statusCode),
		slog.Int64("latency_ms", latency.Milliseconds()),
		slog.Int("size", rw.size),
	}
	if requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if userID := GetUserID(r.Context()); userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if traceID := GetTraceID(r); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if rw.statusCode >= 400 {
		if code := GetErrorCode(r.Context()); code != "" {
			attrs = append(attrs, slog.String("error_code", code))
		}
	}

	switch {
	case rw.statusCode >= 500:
		console.LogAttrs(r.Context(), slog.LevelError, "request completed", attrs...)
	case rw.statusCode >= 400:
		console.LogAttrs(r.Context(), slog.LevelWarn, "request completed", attrs...)
	default:
		console.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
	}
}
