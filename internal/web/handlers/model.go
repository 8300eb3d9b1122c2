package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/engine"
	"github.com/kozaktomas/facecam/internal/model"
)

// ModelHandler handles training and model inspection endpoints.
type ModelHandler struct {
	config *config.Config
	rt     *engine.Runtime
}

// NewModelHandler creates a new model handler.
func NewModelHandler(cfg *config.Config, rt *engine.Runtime) *ModelHandler {
	return &ModelHandler{
		config: cfg,
		rt:     rt,
	}
}

// TrainResponse is returned by a finished retrain.
type TrainResponse struct {
	Message string           `json:"message"`
	Model   engine.ModelInfo `json:"model"`
}

// Info returns the model description.
func (h *ModelHandler) Info(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.rt.ModelInfo())
}

// Train retrains the model from the whole dataset. The request waits for
// the retrain; if the client or the request deadline gives up first, the
// retrain still runs to completion.
func (h *ModelHandler) Train(w http.ResponseWriter, r *http.Request) {
	// Outlast the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(constants.TrainTimeout))

	type result struct {
		meta *model.Metadata
		err  error
	}
	done := make(chan result, 1)
	go func() {
		meta, err := h.rt.Train(context.WithoutCancel(r.Context()), nil)
		done <- result{meta, err}
	}()

	select {
	case <-r.Context().Done():
		slog.Warn("train request ended before the retrain finished", "error", r.Context().Err())
		respondError(w, http.StatusGatewayTimeout, "training still running")
	case res := <-done:
		if res.err != nil {
			respondEngineError(w, r, res.err)
			return
		}
		slog.Info("model trained via API", "people", len(res.meta.Names))
		respondJSON(w, http.StatusOK, TrainResponse{
			Message: "model trained",
			Model:   h.rt.ModelInfo(),
		})
	}
}

// AccuracyRequest sets how many stored samples per person are tested.
type AccuracyRequest struct {
	TestImagesPerPerson int `json:"test_images_per_person"`
}

// Accuracy runs the accuracy test over stored samples. An empty body tests
// the default number of samples.
func (h *ModelHandler) Accuracy(w http.ResponseWriter, r *http.Request) {
	req := AccuracyRequest{TestImagesPerPerson: constants.DefaultTestImagesPerPerson}
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.TestImagesPerPerson <= 0 {
		respondError(w, http.StatusBadRequest, "test_images_per_person must be positive")
		return
	}

	report, err := h.rt.Accuracy(req.TestImagesPerPerson, nil)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// decodeOptionalJSON decodes a JSON body, treating an empty body as no input.
func decodeOptionalJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
