package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/pinstack/internal/audit"
	"github.com/onnwee/pinstack/internal/middleware"
)

// AuditHandlers holds dependencies for the audit trail endpoints.
type AuditHandlers struct {
	trail *audit.Trail
}

// NewAuditHandlers creates a new AuditHandlers instance.
func NewAuditHandlers(trail *audit.Trail) *AuditHandlers {
	return &AuditHandlers{trail: trail}
}

// AuditQueryResponse is the paginated result of an audit query.
type AuditQueryResponse struct {
	Items   []audit.Entry `json:"items"`
	Total   int           `json:"total"`
	HasMore bool          `json:"hasMore"`
}

// Query handles GET /api/audit.
func (h *AuditHandlers) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	filter, apiErr := parseAuditFilter(r)
	if apiErr != nil {
		ctx := middleware.SetErrorCode(r.Context(), apiErr.code)
		WriteError(w, ctx, apiErr.status, apiErr.code, apiErr.message)
		return
	}

	items, total, err := h.trail.QueryWithTotal(filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "audit query failed", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read audit trail")
		return
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	}
	h.writeResponse(w, r, AuditQueryResponse{
		Items:   items,
		Total:   total,
		HasMore: filter.Offset+limit < total,
	})
}

// UserLogs handles GET /api/audit/users/{id}.
func (h *AuditHandlers) UserLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	userID := strings.TrimPrefix(r.URL.Path, "/api/audit/users/")
	if userID == "" || strings.Contains(userID, "/") {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid URL path")
		return
	}

	limit, apiErr := parseLimit(r)
	if apiErr != nil {
		ctx := middleware.SetErrorCode(r.Context(), apiErr.code)
		WriteError(w, ctx, apiErr.status, apiErr.code, apiErr.message)
		return
	}

	items, err := h.trail.UserLogs(userID, limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "user audit query failed", "error", err, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read audit trail")
		return
	}
	h.writeResponse(w, r, AuditQueryResponse{Items: items, Total: len(items)})
}

// ResourceLogs handles GET /api/audit/resources/{name}.
func (h *AuditHandlers) ResourceLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	resource := strings.TrimPrefix(r.URL.Path, "/api/audit/resources/")
	if resource == "" || strings.Contains(resource, "/") {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid URL path")
		return
	}

	limit, apiErr := parseLimit(r)
	if apiErr != nil {
		ctx := middleware.SetErrorCode(r.Context(), apiErr.code)
		WriteError(w, ctx, apiErr.status, apiErr.code, apiErr.message)
		return
	}

	items, err := h.trail.ResourceLogs(resource, limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "resource audit query failed", "error", err, "resource", resource)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read audit trail")
		return
	}
	h.writeResponse(w, r, AuditQueryResponse{Items: items, Total: len(items)})
}

func (h *AuditHandlers) writeResponse(w http.ResponseWriter, r *http.Request, resp AuditQueryResponse) {
	if resp.Items == nil {
		resp.Items = []audit.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode audit response", "error", err)
	}
}

// parseAuditFilter validates the query parameters of GET /api/audit.
func parseAuditFilter(r *http.Request) (audit.Filter, *apiError) {
	query := r.URL.Query()
	filter := audit.Filter{
		UserID:   strings.TrimSpace(query.Get("userId")),
		Resource: strings.TrimSpace(query.Get("resource")),
	}

	if actionStr := query.Get("action"); actionStr != "" {
		action, err := audit.ParseAction(strings.ToUpper(actionStr))
		if err != nil {
			return filter, &apiError{http.StatusBadRequest, ErrCodeValidation, "Unknown audit action"}
		}
		filter.Action = action
	}

	if successStr := query.Get("success"); successStr != "" {
		success, err := strconv.ParseBool(successStr)
		if err != nil {
			return filter, &apiError{http.StatusBadRequest, ErrCodeValidation, "success must be true or false"}
		}
		filter.Success = &success
	}

	start, err := parseTimeParam(query.Get("startTime"), true)
	if err != nil {
		return filter, &apiError{http.StatusBadRequest, ErrCodeInvalidDate, "startTime must be RFC3339 or YYYY-MM-DD"}
	}
	filter.StartTime = start
	end, err := parseTimeParam(query.Get("endTime"), false)
	if err != nil {
		return filter, &apiError{http.StatusBadRequest, ErrCodeInvalidDate, "endTime must be RFC3339 or YYYY-MM-DD"}
	}
	filter.EndTime = end

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filter, &apiError{http.StatusBadRequest, ErrCodeValidation, "limit must be an integer between 1 and 1000"}
		}
		filter.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return filter, &apiError{http.StatusBadRequest, ErrCodeValidation, "offset must be a non-negative integer"}
		}
		filter.Offset = offset
	}

	return filter, nil
}

// parseLimit reads the optional limit parameter of the convenience endpoints.
func parseLimit(r *http.Request) (int, *apiError) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return audit.DefaultQueryLimit, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > MaxQueryLimit {
		return 0, &apiError{http.StatusBadRequest, ErrCodeValidation, "limit must be an integer between 1 and 1000"}
	}
	return limit, nil
}
