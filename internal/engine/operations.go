package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/kozaktomas/facecam/internal/activity"
	"github.com/kozaktomas/facecam/internal/collector"
	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/dataset"
	"github.com/kozaktomas/facecam/internal/model"
	"github.com/kozaktomas/facecam/internal/recognizer"
	"github.com/kozaktomas/facecam/internal/vision"
)

// ErrInvalidSetting is returned for out-of-range settings.
var ErrInvalidSetting = errors.New("invalid setting")

// StartCollection begins collecting samples for a subject. A running session
// for another subject is replaced.
func (r *Runtime) StartCollection(ctx context.Context, name string) (collector.Snapshot, error) {
	r.mu.Lock()
	snap, err := r.session.Start(name)
	r.mu.Unlock()
	if err != nil {
		return snap, err
	}
	r.record(ctx, activity.EventCollectionStarted)
	return snap, nil
}

// StopCollection ends the running session, if any.
func (r *Runtime) StopCollection(ctx context.Context) collector.Snapshot {
	r.mu.Lock()
	snap := r.session.Stop()
	r.mu.Unlock()
	r.record(ctx, activity.EventCollectionStopped)
	return snap
}

// Collection returns the session state.
func (r *Runtime) Collection() collector.Snapshot {
	return r.session.Snapshot()
}

// Train retrains the model from the dataset. It blocks frame processing
// until it finishes.
func (r *Runtime) Train(ctx context.Context, progress recognizer.Progress) (*model.Metadata, error) {
	r.mu.Lock()
	meta, err := r.trainer.Train(progress)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	r.record(ctx, activity.EventModelTrained)
	return meta, nil
}

// Deletion reports what DeletePerson did.
type Deletion struct {
	Key       string `json:"directory"`
	Name      string `json:"name"`
	Retrained bool   `json:"retrained"`
	Message   string `json:"message,omitempty"`
}

// DeletePerson removes a subject's samples and retrains on what is left.
// When no samples remain the model is dropped, since it would name a
// subject that no longer exists. A retrain failure does not undo the deletion.
func (r *Runtime) DeletePerson(ctx context.Context, nameOrKey string) (Deletion, error) {
	r.mu.Lock()
	d, err := r.deletePersonLocked(nameOrKey)
	r.mu.Unlock()
	if err != nil {
		return d, err
	}
	r.record(ctx, activity.EventPersonDeleted)
	return d, nil
}

func (r *Runtime) deletePersonLocked(nameOrKey string) (Deletion, error) {
	key, err := r.store.Resolve(nameOrKey)
	if err != nil {
		return Deletion{}, err
	}
	d := Deletion{Key: key, Name: r.store.DisplayName(key)}

	if snap := r.session.Snapshot(); snap.Active && snap.Key == key {
		r.session.Stop()
	}
	if _, err := r.store.Delete(key); err != nil {
		return Deletion{}, err
	}
	slog.Info("subject deleted", "directory", key, "name", d.Name)

	_, err = r.trainer.Train(nil)
	switch {
	case err == nil:
		d.Retrained = true
	case errors.Is(err, recognizer.ErrNoTrainingData):
		r.classifier.Reset()
		if rmErr := r.classifier.Files().Remove(); rmErr != nil {
			slog.Warn("removing model files failed", "error", rmErr)
		}
		d.Message = "no samples left, model removed"
	default:
		slog.Warn("retrain after deletion failed", "error", err)
		d.Message = err.Error()
	}
	return d, nil
}

// People lists the dataset subjects with their sample counts.
func (r *Runtime) People() ([]dataset.Subject, error) {
	return r.store.Subjects()
}

// ModelInfo describes the loaded model.
type ModelInfo struct {
	Trained          bool         `json:"trained"`
	Status           model.Status `json:"status"`
	Names            []string     `json:"names"`
	Count            int          `json:"count"`
	Threshold        float64      `json:"threshold"`
	UnknownThreshold float64      `json:"unknown_threshold"`
	ImageSize        [2]int       `json:"image_size"`
	TrainingDate     *time.Time   `json:"training_date"`
}

// ModelInfo reports the classifier state and the active thresholds.
func (r *Runtime) ModelInfo() ModelInfo {
	t := r.classifier.Thresholds()
	info := ModelInfo{
		Status:           r.classifier.Status(),
		Names:            []string{},
		Threshold:        t.Confidence,
		UnknownThreshold: t.Unknown,
		ImageSize:        [2]int{vision.SampleSize.X, vision.SampleSize.Y},
	}
	info.Trained = info.Status == model.StatusTrained
	if meta := r.classifier.Metadata(); meta != nil {
		info.Names = meta.DisplayNames()
		info.ImageSize = meta.ImageSize
		date := meta.TrainingDate
		info.TrainingDate = &date
	}
	info.Count = len(info.Names)
	return info
}

// Status is the full state document reported to clients.
type Status struct {
	IsCollecting       bool         `json:"is_collecting"`
	CollectedCount     int          `json:"collected_count"`
	MaxImages          int          `json:"max_images"`
	TotalDataCount     int          `json:"total_data_count"`
	CurrentPerson      string       `json:"current_person"`
	ModelTrained       bool         `json:"model_trained"`
	ModelExists        bool         `json:"model_exists"`
	ModelStatus        model.Status `json:"model_status"`
	PeopleCount        int          `json:"people_count"`
	PeopleNames        []string     `json:"people_names"`
	CameraReady        bool         `json:"camera_ready"`
	FaceCascadeLoaded  bool         `json:"face_cascade_loaded"`
	EyeCascadeLoaded   bool         `json:"eye_cascade_loaded"`
	RequireEyesForFace bool         `json:"require_eyes_for_face"`
	AlignFaces         bool         `json:"align_faces"`
	Timestamp          time.Time    `json:"timestamp"`
}

// Status collects the current state.
func (r *Runtime) Status() Status {
	e := r.entry("")
	s := Status{
		IsCollecting:       e.IsCollecting,
		CollectedCount:     e.CollectedCount,
		MaxImages:          r.session.Snapshot().Max,
		CurrentPerson:      e.CurrentPerson,
		ModelTrained:       e.ModelTrained,
		ModelExists:        r.classifier.Files().Exist(),
		ModelStatus:        r.classifier.Status(),
		PeopleCount:        e.PeopleCount,
		PeopleNames:        e.PeopleNames,
		CameraReady:        r.cameraReady.Load(),
		FaceCascadeLoaded:  e.FaceCascadeLoaded,
		EyeCascadeLoaded:   e.EyeCascadeLoaded,
		RequireEyesForFace: e.RequireEyesForFace,
		AlignFaces:         r.alignFaces.Load(),
		Timestamp:          time.Now(),
	}
	if s.PeopleNames == nil {
		s.PeopleNames = []string{}
	}
	total, err := r.store.TotalImages()
	if err != nil {
		slog.Warn("counting samples failed", "error", err)
	}
	s.TotalDataCount = total
	return s
}

// SetThresholds changes either threshold; nil leaves it as is. The result is
// normalized, and clamped reports whether Unknown was lowered to Confidence.
func (r *Runtime) SetThresholds(ctx context.Context, confidence, unknown *float64) (t model.Thresholds, clamped bool) {
	t = r.classifier.Thresholds()
	if confidence != nil {
		t.Confidence = *confidence
	}
	if unknown != nil {
		t.Unknown = *unknown
	}
	t, clamped = r.classifier.SetThresholds(t)
	r.record(ctx, activity.EventSettingsChanged)
	return t, clamped
}

// SetRequireEyes toggles whether faces without a detected eye are ignored.
func (r *Runtime) SetRequireEyes(ctx context.Context, enabled bool) {
	r.requireEyes.Store(enabled)
	r.record(ctx, activity.EventSettingsChanged)
}

// SetAlignFaces toggles eye-based rotation of face patches.
func (r *Runtime) SetAlignFaces(ctx context.Context, enabled bool) {
	r.alignFaces.Store(enabled)
	r.record(ctx, activity.EventSettingsChanged)
}

// CascadeParams override the default detection pass.
type CascadeParams struct {
	ScaleFactor  float64 `json:"scale_factor"`
	MinNeighbors int     `json:"min_neighbors"`
	MinSize      int     `json:"min_size"`
	MaxSize      int     `json:"max_size"`
}

// DefaultPass is the detection pass that CascadeParams replace.
const DefaultPass = "default"

// SetCascadeParams replaces the parameters of the default detection pass.
func (r *Runtime) SetCascadeParams(ctx context.Context, p CascadeParams) error {
	err := r.detector.SetPass(config.PassConfig{
		Name:         DefaultPass,
		ScaleFactor:  p.ScaleFactor,
		MinNeighbors: p.MinNeighbors,
		MinSize:      p.MinSize,
		MaxSize:      p.MaxSize,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSetting, err)
	}
	r.record(ctx, activity.EventSettingsChanged)
	return nil
}

// CascadeParams returns the parameters of the default detection pass.
func (r *Runtime) CascadeParams() CascadeParams {
	for _, p := range r.detector.Passes() {
		if p.Name == DefaultPass {
			return CascadeParams{
				ScaleFactor:  p.ScaleFactor,
				MinNeighbors: p.MinNeighbors,
				MinSize:      p.MinSize,
				MaxSize:      p.MaxSize,
			}
		}
	}
	return CascadeParams{}
}

// SetCamera stores new capture settings and asks the stream to reopen the
// camera with them. An index of -1 probes the first working device.
func (r *Runtime) SetCamera(ctx context.Context, cam config.CameraConfig) (config.CameraConfig, error) {
	if cam.Index < -1 {
		return cam, fmt.Errorf("%w: camera index %d", ErrInvalidSetting, cam.Index)
	}
	if cam.Width <= 0 || cam.Height <= 0 || cam.FPS <= 0 {
		return cam, fmt.Errorf("%w: width, height and fps must be positive", ErrInvalidSetting)
	}

	r.cameraMu.Lock()
	r.camera = cam
	r.cameraMu.Unlock()

	select {
	case r.cameraChanged <- struct{}{}:
	default:
		// A reopen is already pending and will pick up the new settings.
	}
	r.record(ctx, activity.EventSettingsChanged)
	return cam, nil
}

// Camera returns the capture settings in effect.
func (r *Runtime) Camera() config.CameraConfig {
	r.cameraMu.Lock()
	defer r.cameraMu.Unlock()
	return r.camera
}

// Accuracy predicts a random sample of each subject's stored images. A nil
// rng draws a fresh seed.
func (r *Runtime) Accuracy(perPerson int, rng *rand.Rand) (recognizer.AccuracyReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recognizer.Accuracy(r.store, r.classifier, perPerson, rng)
}
