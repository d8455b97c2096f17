package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/ashureev/phishcoach/internal/domain"
	"github.com/ashureev/phishcoach/internal/session"
)

// streamEvent is one frame pushed to the generation stream.
type streamEvent struct {
	Type    string                   `json:"type"`
	Message *domain.GeneratedMessage `json:"message,omitempty"`
	Count   int                      `json:"count,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// completedEvent ends the stream. Count is always present, even when zero.
type completedEvent struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// StreamHandler pushes generated messages over a WebSocket until generation
// completes.
type StreamHandler struct {
	session        *session.Session
	originPatterns []string
}

// NewStreamHandler creates a stream handler. originPatterns restricts the
// accepted Origin hosts; "*" accepts any.
func NewStreamHandler(sess *session.Session, originPatterns []string) *StreamHandler {
	return &StreamHandler{session: sess, originPatterns: originPatterns}
}

// OriginPatterns converts CORS origins such as "https://trainer.example" to
// the host patterns the WebSocket handshake checks against.
func OriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("Generation stream requested", "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "generation finished"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	// CloseRead cancels ctx once the client goes away.
	ctx := ws.CloseRead(r.Context())

	sent := 0
	for {
		batch, err := h.session.NextMessages(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Generation stream failed", "error", err)
				_ = h.writeJSON(ctx, ws, streamEvent{Type: "error", Error: err.Error()})
			}
			return
		}

		for i := range batch.Messages {
			if err := h.writeJSON(ctx, ws, streamEvent{Type: "message", Message: &batch.Messages[i]}); err != nil {
				slog.Debug("Generation stream write failed", "error", err)
				return
			}
			sent++
		}

		if batch.Completed {
			if err := h.writeJSON(ctx, ws, completedEvent{Type: "completed", Count: sent}); err != nil {
				slog.Debug("Generation stream write failed", "error", err)
			}
			return
		}
	}
}

func (h *StreamHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
