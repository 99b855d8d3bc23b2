package feed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const writeTimeout = 10 * time.Second

// Handler upgrades requests to WebSocket and streams hub events as JSON.
type Handler struct {
	hub     *Hub
	origins []string
	logger  *slog.Logger
}

// NewHandler creates a feed handler. origins are host patterns accepted for
// cross-origin upgrades; "*" accepts any.
func NewHandler(hub *Hub, origins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, origins: origins, logger: logger}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}

	id := uuid.NewString()
	events, unsubscribe := h.hub.Subscribe(id)
	defer unsubscribe()

	// The feed is one-way; CloseRead discards client frames and cancels ctx
	// when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			_ = ws.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				_ = ws.Close(websocket.StatusGoingAway, "feed closed")
				return
			}
			if err := h.write(ctx, ws, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Debug("Feed write failed", "error", err, "subscriber_id", id)
				}
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, ev)
}
