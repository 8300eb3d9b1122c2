package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/engine"
	"github.com/kozaktomas/facecam/internal/web/middleware"
)

const eventsWriteWait = 5 * time.Second

// EventsHandler pushes the status document over a websocket.
type EventsHandler struct {
	rt       *engine.Runtime
	upgrader websocket.Upgrader
	interval time.Duration
}

// NewEventsHandler creates a new events handler. Browser clients must come
// from an allowed origin.
func NewEventsHandler(rt *engine.Runtime, origins middleware.Origins) *EventsHandler {
	return &EventsHandler{
		rt:       rt,
		upgrader: websocket.Upgrader{CheckOrigin: origins.CheckOrigin},
		interval: constants.StatusPushInterval,
	}
}

// Stream upgrades the connection and sends the status once per interval
// until the client goes away.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The reader notices client close frames and dead connections.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket closed", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := conn.SetWriteDeadline(time.Now().Add(eventsWriteWait)); err != nil {
			return
		}
		if err := conn.WriteJSON(h.rt.Status()); err != nil {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
