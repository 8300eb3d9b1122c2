package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/engine"
)

// StreamHandler serves the annotated camera frames as MJPEG.
type StreamHandler struct {
	hub         *engine.Hub
	idleTimeout time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(hub *engine.Hub) *StreamHandler {
	return &StreamHandler{
		hub:         hub,
		idleTimeout: constants.StreamIdleTimeout,
	}
}

// VideoFeed writes frames as multipart/x-mixed-replace until the client
// disconnects or no frame arrives within the idle timeout.
func (h *StreamHandler) VideoFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The stream outlives the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	frames := h.hub.Subscribe()
	defer h.hub.Unsubscribe(frames)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+constants.FrameBoundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	idle := time.NewTimer(h.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-idle.C:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := writePart(w, frame); err != nil {
				return
			}
			flusher.Flush()
			idle.Reset(h.idleTimeout)
		}
	}
}

// writePart writes one JPEG as a multipart section.
func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", constants.FrameBoundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
