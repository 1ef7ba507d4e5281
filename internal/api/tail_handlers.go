package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/onnwee/pinstack/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The endpoint sits behind token auth; origin is not the gate.
		return true
	},
}

// wsWriteTimeout bounds each frame write so one dead client cannot park
// the poll loop.
const wsWriteTimeout = 10 * time.Second

// Tail handles GET /api/logs/tail, the WebSocket variant of the live
// feed. Each new matching log line is sent as one text frame. Clients
// are not expected to send messages; the read loop only detects
// disconnects.
func (s *StreamHandlers) Tail(w http.ResponseWriter, r *http.Request) {
	q, apiErr := parseLogQuery(r)
	if apiErr != nil {
		ctx := middleware.SetErrorCode(r.Context(), apiErr.code)
		WriteError(w, ctx, apiErr.status, apiErr.code, apiErr.message)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to upgrade websocket connection", "error", err)
		return
	}
	defer conn.Close()

	requestID := middleware.GetRequestID(r.Context())
	slog.InfoContext(r.Context(), "websocket client tailing logs",
		"type", string(q.fileType),
		"request_id", requestID,
	)

	// Reader goroutine: detect client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					slog.WarnContext(r.Context(), "websocket connection closed unexpectedly", "error", err)
				}
				return
			}
		}
	}()

	cursor := s.newCursor(q.fileType)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			lines, err := cursor.next()
			if err != nil {
				slog.WarnContext(r.Context(), "tail poll failed", "error", err)
				continue
			}
			for _, line := range lines {
				if !streamMatch(q, line) {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
					return
				}
			}
		}
	}
}
