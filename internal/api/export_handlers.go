package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/pinstack/internal/logging"
	"github.com/onnwee/pinstack/internal/middleware"
)

// csvColumns is the fixed column order of CSV exports.
var csvColumns = []string{"timestamp", "level", "message", "source", "requestId", "userId", "context"}

// Export handles GET /api/logs/export. It accepts the same filters as the
// query endpoint plus format=json|csv, and streams the full filtered set
// as a file download. Pagination parameters are ignored.
func (h *LogHandlers) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidFormat)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidFormat, "format must be json or csv")
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
		slog.ErrorContext(r.Context(), "log export failed", "error", err, "type", string(q.fileType))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read logs")
		return
	}

	filename := fmt.Sprintf("logs-%s-%s.%s", q.fileType, time.Now().UTC().Format("2006-01-02"), format)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	switch format {
	case "csv":
		h.writeCSV(w, r, matched)
	default:
		h.writeJSON(w, r, matched)
	}
}

func (h *LogHandlers) writeJSON(w http.ResponseWriter, r *http.Request, entries []logging.Entry) {
	if entries == nil {
		entries = []logging.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		slog.ErrorContext(r.Context(), "failed to write json export", "error", err)
	}
}

func (h *LogHandlers) writeCSV(w http.ResponseWriter, r *http.Request, entries []logging.Entry) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")

	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvColumns); err != nil {
		slog.ErrorContext(r.Context(), "failed to write csv header", "error", err)
		return
	}

	for _, e := range entries {
		contextJSON := ""
		if len(e.Context) > 0 {
			if data, err := json.Marshal(e.Context); err == nil {
				contextJSON = string(data)
			}
		}
		row := []string{e.Timestamp, e.LevelName, e.Message, e.Source, e.RequestID, e.UserID, contextJSON}
		if err := cw.Write(row); err != nil {
			slog.ErrorContext(r.Context(), "failed to write csv row", "error", err)
			return
		}
	}
}
