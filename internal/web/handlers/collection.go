package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/engine"
)

// CollectionHandler starts and stops sample collection.
type CollectionHandler struct {
	config *config.Config
	rt     *engine.Runtime
}

// NewCollectionHandler creates a new collection handler.
func NewCollectionHandler(cfg *config.Config, rt *engine.Runtime) *CollectionHandler {
	return &CollectionHandler{
		config: cfg,
		rt:     rt,
	}
}

// StartCollectionRequest names the person whose face samples are collected.
type StartCollectionRequest struct {
	Name string `json:"name"`
}

// Start begins collecting samples for a person. Starting while another
// collection runs replaces it.
func (h *CollectionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartCollectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	snap, err := h.rt.StartCollection(r.Context(), req.Name)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	slog.Info("collection started via API", "name", sanitizeForLog(snap.Name), "directory", snap.Key)
	respondJSON(w, http.StatusOK, snap)
}

// Stop ends the active collection, if any.
func (h *CollectionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.rt.StopCollection(r.Context()))
}

// Get returns the collection state.
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.rt.Collection())
}
