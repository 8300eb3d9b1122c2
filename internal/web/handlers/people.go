package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/dataset"
	"github.com/kozaktomas/facecam/internal/engine"
)

// PeopleHandler lists and deletes dataset subjects.
type PeopleHandler struct {
	config *config.Config
	rt     *engine.Runtime
}

// NewPeopleHandler creates a new people handler.
func NewPeopleHandler(cfg *config.Config, rt *engine.Runtime) *PeopleHandler {
	return &PeopleHandler{
		config: cfg,
		rt:     rt,
	}
}

// List returns every subject with its sample count.
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	people, err := h.rt.People()
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	if people == nil {
		people = []dataset.Subject{}
	}
	respondJSON(w, http.StatusOK, people)
}

// Delete removes a subject, addressed by directory or display name, and
// retrains the model on the remaining subjects.
func (h *PeopleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		respondError(w, http.StatusBadRequest, "missing person")
		return
	}

	d, err := h.rt.DeletePerson(r.Context(), key)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	slog.Info("person deleted via API", "directory", d.Key, "retrained", d.Retrained)
	respondJSON(w, http.StatusOK, d)
}
