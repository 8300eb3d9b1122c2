package handlers

import (
	"io"
	"net/http"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/engine"
)

// RecognizeHandler recognizes faces on uploaded still images.
type RecognizeHandler struct {
	config *config.Config
	rt     *engine.Runtime
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(cfg *config.Config, rt *engine.Runtime) *RecognizeHandler {
	return &RecognizeHandler{
		config: cfg,
		rt:     rt,
	}
}

// RecognizeResponse carries the results and the annotated image as base64 JPEG.
type RecognizeResponse struct {
	FacesFound     int             `json:"faces_found"`
	Results        []engine.Result `json:"results"`
	ProcessedImage string          `json:"processed_image"`
}

// Base64Request carries a base64 encoded image.
type Base64Request struct {
	Image string `json:"image"`
}

func recognizeResponse(rec engine.Recognition) RecognizeResponse {
	results := rec.Results
	if results == nil {
		results = []engine.Result{}
	}
	return RecognizeResponse{
		FacesFound:     rec.FacesFound,
		Results:        results,
		ProcessedImage: rec.ProcessedBase64(),
	}
}

// Upload recognizes faces on a multipart upload in the "image" field.
func (h *RecognizeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	rec, err := h.rt.RecognizeImage(data)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, recognizeResponse(rec))
}

// Base64 recognizes faces on a base64 encoded image.
func (h *RecognizeHandler) Base64(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize*4/3+1024)
	var req Base64Request
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Image == "" {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}

	rec, err := h.rt.RecognizeBase64(req.Image)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, recognizeResponse(rec))
}
