package handlers

import (
	"net/http"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/engine"
)

// StatusHandler handles status and statistics endpoints.
type StatusHandler struct {
	config *config.Config
	rt     *engine.Runtime
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(cfg *config.Config, rt *engine.Runtime) *StatusHandler {
	return &StatusHandler{
		config: cfg,
		rt:     rt,
	}
}

// Get returns the runtime status document.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.rt.Status())
}

// Stats returns the recognition counters.
func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.rt.Stats())
}

// ResetStats zeroes the recognition counters.
func (h *StatusHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	h.rt.ResetStats()
	respondJSON(w, http.StatusOK, h.rt.Stats())
}
