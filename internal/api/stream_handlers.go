package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/pinstack/internal/logging"
	"github.com/onnwee/pinstack/internal/logstore"
	"github.com/onnwee/pinstack/internal/middleware"
)

// DefaultPollInterval is how often the stream endpoints check for new lines.
const DefaultPollInterval = time.Second

// keepaliveInterval spaces out SSE comment frames so proxies keep the
// connection open during quiet periods.
const keepaliveInterval = 15 * time.Second

// StreamHandlers serves live log tailing over SSE and WebSocket.
type StreamHandlers struct {
	store        *logstore.Store
	pollInterval time.Duration
}

// NewStreamHandlers creates a new StreamHandlers instance.
func NewStreamHandlers(store *logstore.Store) *StreamHandlers {
	return &StreamHandlers{
		store:        store,
		pollInterval: DefaultPollInterval,
	}
}

// Stream handles GET /api/logs/stream, a Server-Sent Events feed of new
// log lines in the selected partition. The connection starts at the
// current end of today's file; only lines appended afterwards are sent.
// Filters are shared with the query endpoint; time bounds are ignored.
func (s *StreamHandlers) Stream(w http.ResponseWriter, r *http.Request) {
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

	flusher, ok := w.(http.Flusher)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	cursor := s.newCursor(q.fileType)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-ticker.C:
			lines, err := cursor.next()
			if err != nil {
				slog.WarnContext(r.Context(), "stream poll failed", "error", err)
				continue
			}
			sent := false
			for _, line := range lines {
				if !streamMatch(q, line) {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", line)
				sent = true
			}
			if sent {
				flusher.Flush()
			}
		}
	}
}

// streamMatch applies the non-temporal query filters to a raw line.
func streamMatch(q logQuery, line string) bool {
	entry, err := logging.ParseEntry(line)
	if err != nil {
		// Raw lines (request and audit partitions) pass level-less filters only
		return q.level == "" && q.requestID == "" && q.userID == ""
	}
	stripped := q
	stripped.start = time.Time{}
	stripped.end = time.Now().UTC().Add(24 * time.Hour)
	return stripped.matches(entry)
}

// tailCursor remembers how far into the partition's current day file the
// stream has read. A date rollover resets it to the new day's start.
type tailCursor struct {
	store    *logstore.Store
	fileType logstore.FileType
	date     string
	offset   int
}

func (s *StreamHandlers) newCursor(fileType logstore.FileType) *tailCursor {
	c := &tailCursor{store: s.store, fileType: fileType, date: s.store.Today()}
	// Skip history; a tail starts at the end of the current file.
	if lines, err := s.store.Read(fileType, c.date, logstore.ReadOptions{}); err == nil {
		c.offset = len(lines)
	}
	return c
}

// next returns the lines appended since the previous call.
func (c *tailCursor) next() ([]string, error) {
	today := c.store.Today()
	if today != c.date {
		c.date = today
		c.offset = 0
	}

	lines, err := c.store.Read(c.fileType, c.date, logstore.ReadOptions{})
	if err != nil {
		return nil, err
	}
	if len(lines) <= c.offset {
		return nil, nil
	}
	fresh := lines[c.offset:]
	c.offset = len(lines)
	return fresh, nil
}
