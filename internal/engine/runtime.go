// Package engine ties the face pipeline together. Runtime is the single
// state object shared by the camera loop, the HTTP handlers and the CLI.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/facecam/internal/activity"
	"github.com/kozaktomas/facecam/internal/collector"
	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/dataset"
	"github.com/kozaktomas/facecam/internal/model"
	"github.com/kozaktomas/facecam/internal/recognizer"
	"github.com/kozaktomas/facecam/internal/vision"
)

// Stats counts detections that reached classification since the last reset.
type Stats struct {
	TotalFacesDetected int    `json:"total_faces_detected"`
	KnownFaces         int    `json:"known_faces"`
	UnknownFaces       int    `json:"unknown_faces"`
	LastRecognized     string `json:"last_recognized"`
}

// Deps are the collaborators a Runtime is assembled from. Activity, Text and
// Cascades are optional.
type Deps struct {
	Config     *config.Config
	Store      *dataset.Store
	Detector   *vision.FaceDetector
	Classifier *recognizer.Classifier
	Activity   activity.Recorder
	Text       *vision.TextRenderer
	Cascades   *vision.CascadeLoader
}

// Runtime owns the mutable process state: the collection session, the
// loaded model, recognition stats and the live settings.
//
// mu serializes frame processing, collection start/stop, retraining and
// subject deletion, so a retrain never sees a half-written sample set and a
// sample is never written while labels are being reassigned.
type Runtime struct {
	cfg        *config.Config
	store      *dataset.Store
	detector   *vision.FaceDetector
	classifier *recognizer.Classifier
	trainer    *recognizer.Trainer
	session    *collector.Session
	activity   activity.Recorder
	text       *vision.TextRenderer
	cascades   *vision.CascadeLoader

	mu         sync.Mutex
	frameCount int

	requireEyes atomic.Bool
	alignFaces  atomic.Bool

	statsMu sync.Mutex
	stats   Stats

	cameraMu      sync.Mutex
	camera        config.CameraConfig
	cameraChanged chan struct{}
	cameraReady   atomic.Bool
}

// New assembles a Runtime. It does not touch the model files; call Init for that.
func New(d Deps) *Runtime {
	r := &Runtime{
		cfg:           d.Config,
		store:         d.Store,
		detector:      d.Detector,
		classifier:    d.Classifier,
		trainer:       recognizer.NewTrainer(d.Store, d.Classifier),
		session:       collector.New(d.Store, maxImages(d.Config)),
		activity:      d.Activity,
		text:          d.Text,
		cascades:      d.Cascades,
		camera:        d.Config.Camera,
		cameraChanged: make(chan struct{}, 1),
	}
	r.requireEyes.Store(d.Config.Recognition.RequireEyes)
	r.alignFaces.Store(d.Config.Recognition.AlignFaces)
	return r
}

func maxImages(cfg *config.Config) int {
	if cfg.Recognition.MaxImages > 0 {
		return cfg.Recognition.MaxImages
	}
	return constants.MaxImagesPerSubject
}

// Init loads the persisted model and brings it up to date with the dataset:
// a missing or corrupt model is trained from scratch when samples exist, and
// a model whose label set differs from the non-empty subject directories is
// retrained. It then records the startup entry and drops expired activity.
// Nothing here is fatal; failures leave the runtime in a degraded mode.
func (r *Runtime) Init(ctx context.Context) {
	r.mu.Lock()
	r.syncModel()
	r.mu.Unlock()

	r.record(ctx, activity.EventStartup)

	if r.activity != nil {
		cutoff := activity.Retention(time.Now(), r.cfg.Activity.RetentionDays)
		removed, err := r.activity.Cleanup(ctx, cutoff)
		if err != nil {
			slog.Warn("activity cleanup failed", "error", err)
		} else if removed > 0 {
			slog.Info("removed expired activity entries", "count", removed, "before", cutoff.Format(time.DateOnly))
		}
	}
}

// LoadModel loads the persisted model as is, without checking it against
// the dataset. Commands that only read the model use it instead of Init.
func (r *Runtime) LoadModel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.classifier.Load()
	return err
}

func (r *Runtime) syncModel() {
	meta, err := r.classifier.Load()
	switch {
	case err == nil:
	case errors.Is(err, recognizer.ErrBackendUnavailable):
		slog.Warn("recognition disabled, skipping model load", "error", err)
		return
	case errors.Is(err, model.ErrNoModel):
		slog.Info("no trained model found")
	default:
		slog.Warn("model not loaded", "error", err)
	}

	keys, err := r.store.NonEmptyKeys()
	if err != nil {
		slog.Warn("scanning dataset failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if meta != nil && meta.Covers(keys) {
		return
	}
	if meta != nil {
		slog.Info("model is stale, retraining", "model_subjects", meta.Keys(), "dataset_subjects", keys)
	} else {
		slog.Info("training model from existing dataset", "subjects", len(keys))
	}
	if _, err := r.trainer.Train(nil); err != nil {
		slog.Warn("startup training failed", "error", err)
	}
}

// Close releases the detector cascades and font faces.
func (r *Runtime) Close() {
	r.detector.Close()
	if r.text != nil {
		r.text.Close()
	}
}

// entry snapshots the current state for the activity log. It does not take mu.
func (r *Runtime) entry(event string) activity.Entry {
	snap := r.session.Snapshot()
	e := activity.Entry{
		Event:              event,
		IsCollecting:       snap.Active,
		CollectedCount:     snap.Count,
		CurrentPerson:      snap.Name,
		ModelTrained:       r.classifier.Trained(),
		FaceCascadeLoaded:  r.detector.HasFaceCascade(),
		EyeCascadeLoaded:   r.detector.HasEyeCascade(),
		RequireEyesForFace: r.requireEyes.Load(),
	}
	if meta := r.classifier.Metadata(); meta != nil {
		e.PeopleNames = meta.DisplayNames()
		e.PeopleCount = len(e.PeopleNames)
	}
	return e
}

// record appends an activity entry. Failures are logged only.
func (r *Runtime) record(ctx context.Context, event string) {
	if r.activity == nil {
		return
	}
	if err := r.activity.Append(ctx, r.entry(event)); err != nil {
		slog.Warn("recording activity failed", "event", event, "error", err)
	}
}

// Stats returns a copy of the recognition counters.
func (r *Runtime) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// ResetStats zeroes the recognition counters.
func (r *Runtime) ResetStats() {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.stats = Stats{}
}

func (r *Runtime) count(m recognizer.Match) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.stats.TotalFacesDetected++
	switch m.Band {
	case model.BandKnown:
		r.stats.KnownFaces++
		r.stats.LastRecognized = m.Name
	case model.BandUnknown:
		r.stats.UnknownFaces++
	}
}
