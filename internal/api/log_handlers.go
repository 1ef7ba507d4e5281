// Package api provides HTTP handlers for the log query and audit API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/pinstack/internal/logging"
	"github.com/onnwee/pinstack/internal/logstore"
	"github.com/onnwee/pinstack/internal/middleware"
)

// Query pagination bounds.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// LogHandlers holds dependencies for the log query endpoints.
type LogHandlers struct {
	store *logstore.Store
}

// NewLogHandlers creates a new LogHandlers instance.
func NewLogHandlers(store *logstore.Store) *LogHandlers {
	return &LogHandlers{store: store}
}

// LogQueryResponse is the paginated result of a log query.
type LogQueryResponse struct {
	Items   []logging.Entry `json:"items"`
	Total   int             `json:"total"`
	HasMore bool            `json:"hasMore"`
}

// apiError carries a handler validation failure up to the response writer.
type apiError struct {
	status  int
	code    string
	message string
}

// logQuery is a parsed and validated /api/logs query string.
type logQuery struct {
	fileType  logstore.FileType
	level     string // canonical level name, empty matches all
	start     time.Time
	end       time.Time
	keyword   string
	requestID string
	userID    string
	limit     int
	offset    int
}

// parseLogQuery validates the shared query parameters of the log endpoints.
func parseLogQuery(r *http.Request) (logQuery, *apiError) {
	query := r.URL.Query()
	q := logQuery{
		keyword:   strings.TrimSpace(query.Get("keyword")),
		requestID: strings.TrimSpace(query.Get("requestId")),
		userID:    strings.TrimSpace(query.Get("userId")),
		limit:     DefaultQueryLimit,
	}

	fileType, err := logstore.ParseFileType(query.Get("type"))
	if err != nil {
		return q, &apiError{http.StatusBadRequest, ErrCodeInvalidFileType, "Unknown log type; expected app, request, error, or audit"}
	}
	q.fileType = fileType

	if levelStr := query.Get("level"); levelStr != "" {
		level, err := logging.ParseLevel(levelStr)
		if err != nil {
			return q, &apiError{http.StatusBadRequest, ErrCodeValidation, "Unknown level; expected debug, info, warn, error, or fatal"}
		}
		q.level = level.String()
	}

	end, err := parseTimeParam(query.Get("endTime"), false)
	if err != nil {
		return q, &apiError{http.StatusBadRequest, ErrCodeInvalidDate, "endTime must be RFC3339 or YYYY-MM-DD"}
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}
	q.end = end

	start, err := parseTimeParam(query.Get("startTime"), true)
	if err != nil {
		return q, &apiError{http.StatusBadRequest, ErrCodeInvalidDate, "startTime must be RFC3339 or YYYY-MM-DD"}
	}
	if start.IsZero() {
		// Default window is the last seven days.
		start = end.AddDate(0, 0, -7).Truncate(24 * time.Hour)
	}
	q.start = start
	if q.start.After(q.end) {
		return q, &apiError{http.StatusBadRequest, ErrCodeInvalidDate, "startTime must not be after endTime"}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return q, &apiError{http.StatusBadRequest, ErrCodeValidation, "limit must be an integer between 1 and 1000"}
		}
		q.limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return q, &apiError{http.StatusBadRequest, ErrCodeValidation, "offset must be a non-negative integer"}
		}
		q.offset = offset
	}

	return q, nil
}

// parseTimeParam accepts RFC3339 timestamps or bare dates. A bare date
// means midnight UTC for start bounds and end of day for end bounds.
func parseTimeParam(s string, isStart bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	day, err := time.Parse(logstore.DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	if isStart {
		return day.UTC(), nil
	}
	return day.UTC().Add(24*time.Hour - time.Nanosecond), nil
}

// runQuery reads the date range covering the query window, applies the
// entry-level filters, and returns the matching entries before pagination.
// Lines that fail to parse are skipped.
func (h *LogHandlers) runQuery(q logQuery) ([]logging.Entry, error) {
	lines, err := h.store.ReadRange(
		q.fileType,
		q.start.UTC().Format(logstore.DateLayout),
		q.end.UTC().Format(logstore.DateLayout),
		logstore.ReadOptions{Filter: q.keyword},
	)
	if err != nil {
		return nil, err
	}

	var matched []logging.Entry
	for _, line := range lines {
		entry, err := logging.ParseEntry(line)
		if err != nil {
			continue
		}
		if !q.matches(entry) {
			continue
		}
		matched = append(matched, entry)
	}
	return matched, nil
}

// matches applies the post-parse filters; all set filters must hold.
func (q logQuery) matches(e logging.Entry) bool {
	if q.level != "" && !strings.EqualFold(e.LevelName, q.level) {
		return false
	}
	if q.requestID != "" && e.RequestID != q.requestID {
		return false
	}
	if q.userID != "" && e.UserID != q.userID {
		return false
	}
	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return false
	}
	if ts.Before(q.start) || ts.After(q.end) {
		return false
	}
	return true
}

// pageEntries slices the matched set for the requested page.
func pageEntries(entries []logging.Entry, limit, offset int) []logging.Entry {
	if offset >= len(entries) {
		return []logging.Entry{}
	}
	entries = entries[offset:]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Query handles GET /api/logs.
func (h *LogHandlers) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	q, apiErr := parseLogQuery(r)
	if apiErr != nil {
		ctx := middleware.SetErrorCode(r.Context(), apiErr.code)
		WriteError(w, ctx, apiErr.status, apiErr.code, apiErr.message)
		return
	}

	matched, err := h.runQuery(q)
	if err != nil {
		slog.ErrorContext(r.Context(), "log query failed", "error", err, "type", string(q.fileType))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read logs")
		return
	}

	response := LogQueryResponse{
		Items:   pageEntries(matched, q.limit, q.offset),
		Total:   len(matched),
		HasMore: q.offset+q.limit < len(matched),
	}
	if response.Items == nil {
		response.Items = []logging.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode query response", "error", err)
	}
}

// StatsResponse reports storage totals plus the store's retention setting.
type StatsResponse struct {
	logstore.Stats
	RetentionDays int `json:"retentionDays"`
}

// Stats handles GET /api/logs/stats.
func (h *LogHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	stats, err := h.store.Stats()
	if err != nil {
		slog.ErrorContext(r.Context(), "stats scan failed", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to collect statistics")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(StatsResponse{Stats: stats, RetentionDays: h.store.RetentionDays()}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode stats response", "error", err)
	}
}
