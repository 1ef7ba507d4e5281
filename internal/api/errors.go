// Package api implements the HTTP surface of the log service: querying,
// exporting, streaming, audit lookups, and health.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes returned in the body of 4xx and 5xx responses.
const (
	ErrCodeValidation      = "validation_error"
	ErrCodeAuthFailed      = "auth_failed"
	ErrCodeNotFound        = "not_found"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeInternal        = "internal_error"
	ErrCodeForbidden       = "forbidden"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeInvalidFileType = "invalid_file_type"
	ErrCodeInvalidDate     = "invalid_date"
	ErrCodeInvalidFormat   = "invalid_format"
)

// ErrorResponse is the envelope every API error uses:
// {"error": {"code": "...", "message": "..."}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and a human-readable
// message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes the standard JSON error envelope. Handlers call
// SetErrorCode on the context first so the request correlator records
// the code on the completion entry.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}
