package recognizer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/model"
)

// Match is the outcome of classifying one face patch.
type Match struct {
	Label      int        `json:"label"`
	Key        string     `json:"directory"`
	Name       string     `json:"name"`
	Confidence float64    `json:"confidence"`
	Recognized bool       `json:"recognized"`
	Band       model.Band `json:"band"`
}

// Classifier holds the trained backend and its metadata. Training swaps a
// new backend in as a whole, so predictions never see a half-loaded model.
type Classifier struct {
	newBackend Factory
	files      model.Files
	available  bool

	mu         sync.Mutex
	backend    Backend
	meta       *model.Metadata
	thresholds model.Thresholds
}

// NewClassifier creates an untrained classifier. The factory is probed once;
// if it fails the classifier reports model.StatusUnavailable for its lifetime.
func NewClassifier(factory Factory, files model.Files, thresholds model.Thresholds) *Classifier {
	c := &Classifier{newBackend: factory, files: files}
	c.thresholds, _ = thresholds.Normalize()

	if factory != nil {
		if _, err := factory(); err == nil {
			c.available = true
		} else {
			slog.Warn("face recognizer backend unavailable, recognition disabled", "error", err)
		}
	}
	return c
}

// Files returns where the model is persisted.
func (c *Classifier) Files() model.Files {
	return c.files
}

// Status reports whether the classifier can make predictions.
func (c *Classifier) Status() model.Status {
	if !c.available {
		return model.StatusUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return model.StatusUntrained
	}
	return model.StatusTrained
}

// Trained is shorthand for Status() == model.StatusTrained.
func (c *Classifier) Trained() bool {
	return c.Status() == model.StatusTrained
}

// Metadata returns the loaded model's metadata, nil when untrained.
func (c *Classifier) Metadata() *model.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// Thresholds returns the active cutoffs.
func (c *Classifier) Thresholds() model.Thresholds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thresholds
}

// SetThresholds normalizes and applies new cutoffs. The bool reports whether
// Unknown had to be clamped down to Confidence.
func (c *Classifier) SetThresholds(t model.Thresholds) (model.Thresholds, bool) {
	t, clamped := t.Normalize()
	if clamped {
		slog.Warn("unknown threshold above confidence threshold, clamped", "confidence", t.Confidence, "unknown", t.Unknown)
	}
	c.mu.Lock()
	c.thresholds = t
	c.mu.Unlock()
	return t, clamped
}

// Load reads the persisted model. Corrupt files are deleted by model.Files.Load;
// both missing and corrupt files leave the classifier untrained.
func (c *Classifier) Load() (*model.Metadata, error) {
	if !c.available {
		return nil, ErrBackendUnavailable
	}
	meta, err := c.files.Load()
	if err != nil {
		var corrupt *model.CorruptError
		if errors.As(err, &corrupt) {
			slog.Warn("deleted corrupt model files", "file", corrupt.File, "reason", corrupt.Reason)
		}
		c.Reset()
		return nil, err
	}

	backend, err := c.newBackend()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	if err := backend.Load(c.files.Weights); err != nil {
		c.Reset()
		if rmErr := c.files.Remove(); rmErr != nil {
			slog.Error("removing unreadable model files", "error", rmErr)
		}
		slog.Warn("deleted unreadable model files", "file", c.files.Weights, "error", err)
		return nil, &model.CorruptError{File: c.files.Weights, Reason: err.Error()}
	}

	c.install(backend, meta)
	slog.Info("model loaded", "subjects", len(meta.Names), "trained_at", meta.TrainingDate)
	return meta, nil
}

func (c *Classifier) install(backend Backend, meta *model.Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend = backend
	c.meta = meta
}

// Reset drops the loaded model.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend = nil
	c.meta = nil
}

// Predict classifies a normalized grayscale patch. It fails fast with
// ErrNotTrained when no model is loaded.
func (c *Classifier) Predict(patch gocv.Mat) (Match, error) {
	if !c.available {
		return Match{}, ErrBackendUnavailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend == nil {
		return Match{}, ErrNotTrained
	}
	label, distance, err := c.backend.Predict(patch)
	if err != nil {
		return Match{}, fmt.Errorf("predicting: %w", err)
	}

	m := Match{
		Label:      label,
		Confidence: distance,
		Recognized: c.thresholds.Known(distance),
		Band:       c.thresholds.Band(distance),
		Name:       model.NotRecognized,
	}
	key, ok := c.meta.Key(label)
	if !ok {
		// A label without metadata cannot be named.
		m.Recognized = false
		m.Band = model.BandUnknown
		return m, nil
	}
	m.Key = key
	if m.Band != model.BandUnknown {
		m.Name = c.meta.DisplayName(key)
	}
	return m, nil
}

// Recognize returns the display name of a known face or model.NotRecognized,
// together with the distance.
func (c *Classifier) Recognize(patch gocv.Mat) (string, float64, error) {
	m, err := c.Predict(patch)
	if err != nil {
		return "", 0, err
	}
	return m.Name, m.Confidence, nil
}
