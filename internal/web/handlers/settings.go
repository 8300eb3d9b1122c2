package handlers

import (
	"net/http"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/engine"
	"github.com/kozaktomas/facecam/internal/model"
)

// SettingsHandler changes recognition, detection and camera settings at runtime.
type SettingsHandler struct {
	config *config.Config
	rt     *engine.Runtime
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(cfg *config.Config, rt *engine.Runtime) *SettingsHandler {
	return &SettingsHandler{
		config: cfg,
		rt:     rt,
	}
}

// CameraSettings is the camera part of the settings API.
type CameraSettings struct {
	Index  int `json:"index"`
	Width  int `json:"width"`
	Height int `json:"height"`
	FPS    int `json:"fps"`
}

func cameraSettings(c config.CameraConfig) CameraSettings {
	return CameraSettings{Index: c.Index, Width: c.Width, Height: c.Height, FPS: c.FPS}
}

// SettingsResponse is the full set of runtime settings.
type SettingsResponse struct {
	Thresholds  model.Thresholds     `json:"thresholds"`
	RequireEyes bool                 `json:"require_eyes_for_face"`
	AlignFaces  bool                 `json:"align_faces"`
	Cascade     engine.CascadeParams `json:"cascade"`
	Camera      CameraSettings       `json:"camera"`
}

// ThresholdsRequest changes either threshold; omitted fields stay as they are.
type ThresholdsRequest struct {
	Confidence *float64 `json:"confidence"`
	Unknown    *float64 `json:"unknown"`
}

// ThresholdsResponse reports the thresholds in effect after a change.
type ThresholdsResponse struct {
	model.Thresholds
	Clamped bool `json:"clamped"`
}

// ToggleRequest switches a boolean setting.
type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// Get returns all runtime settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	status := h.rt.Status()
	info := h.rt.ModelInfo()
	respondJSON(w, http.StatusOK, SettingsResponse{
		Thresholds:  model.Thresholds{Confidence: info.Threshold, Unknown: info.UnknownThreshold},
		RequireEyes: status.RequireEyesForFace,
		AlignFaces:  status.AlignFaces,
		Cascade:     h.rt.CascadeParams(),
		Camera:      cameraSettings(h.rt.Camera()),
	})
}

// Thresholds changes the confidence and unknown thresholds.
func (h *SettingsHandler) Thresholds(w http.ResponseWriter, r *http.Request) {
	var req ThresholdsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Confidence == nil && req.Unknown == nil {
		respondError(w, http.StatusBadRequest, "confidence or unknown is required")
		return
	}
	if (req.Confidence != nil && *req.Confidence <= 0) || (req.Unknown != nil && *req.Unknown <= 0) {
		respondError(w, http.StatusBadRequest, "thresholds must be positive")
		return
	}

	t, clamped := h.rt.SetThresholds(r.Context(), req.Confidence, req.Unknown)
	respondJSON(w, http.StatusOK, ThresholdsResponse{Thresholds: t, Clamped: clamped})
}

// Eyes toggles whether faces without a detected eye are ignored.
func (h *SettingsHandler) Eyes(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	h.rt.SetRequireEyes(r.Context(), *req.Enabled)
	respondJSON(w, http.StatusOK, map[string]bool{"require_eyes_for_face": *req.Enabled})
}

// Align toggles eye-based rotation of face patches.
func (h *SettingsHandler) Align(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	h.rt.SetAlignFaces(r.Context(), *req.Enabled)
	respondJSON(w, http.StatusOK, map[string]bool{"align_faces": *req.Enabled})
}

// Cascade replaces the parameters of the default detection pass.
func (h *SettingsHandler) Cascade(w http.ResponseWriter, r *http.Request) {
	var req engine.CascadeParams
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.rt.SetCascadeParams(r.Context(), req); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.rt.CascadeParams())
}

// Camera changes the capture settings. The stream reopens the camera
// asynchronously, so the response only confirms the stored settings.
func (h *SettingsHandler) Camera(w http.ResponseWriter, r *http.Request) {
	req := cameraSettings(h.rt.Camera())
	if !decodeJSON(w, r, &req) {
		return
	}
	cam, err := h.rt.SetCamera(r.Context(), config.CameraConfig{
		Index:  req.Index,
		Width:  req.Width,
		Height: req.Height,
		FPS:    req.FPS,
	})
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cameraSettings(cam))
}
