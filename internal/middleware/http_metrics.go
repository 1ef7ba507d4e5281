package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// knownRoutes are the routes the server registers; anything else is
// collapsed into a single label to prevent cardinality explosion from
// scanners probing random paths.
var knownRoutes = map[string]bool{
	"/":                true,
	"/health":          true,
	"/metrics":         true,
	"/api/logs":        true,
	"/api/logs/export": true,
	"/api/logs/stream": true,
	"/api/logs/tail":   true,
	"/api/logs/stats":  true,
	"/api/audit":       true,
}

// normalizePath maps a request path to a bounded metric label.
func normalizePath(path string) string {
	if knownRoutes[path] {
		return path
	}
	// /api/audit/users/{id} and /api/audit/resources/{name}
	if strings.HasPrefix(path, "/api/audit/users/") {
		return "/api/audit/users/{id}"
	}
	if strings.HasPrefix(path, "/api/audit/resources/") {
		return "/api/audit/resources/{name}"
	}
	return "other"
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Flush passes through to the underlying writer when it supports streaming.
func (mrw *metricsResponseWriter) Flush() {
	if f, ok := mrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController, so
// WebSocket upgrades can hijack the connection through the wrapper.
func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// newMetricsResponseWriter creates a new metricsResponseWriter with default 200 status.
func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics is a middleware that records HTTP request metrics.
// It captures duration, request/response sizes, and request counts.
// Health check and metrics endpoints are excluded to avoid self-measurement noise.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			requestSize := int64(0)
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
