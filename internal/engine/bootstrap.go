package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/facecam/internal/activity"
	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/database/postgres"
	"github.com/kozaktomas/facecam/internal/dataset"
	"github.com/kozaktomas/facecam/internal/model"
	"github.com/kozaktomas/facecam/internal/recognizer"
	"github.com/kozaktomas/facecam/internal/vision"
)

// Bootstrap builds a Runtime from configuration: it opens the dataset,
// loads the cascades, probes the recognizer backend, and sets up the
// activity log (file, plus PostgreSQL when DATABASE_URL is set). Missing
// cascades, an unavailable backend or an unreachable database degrade the
// runtime instead of failing. The returned function releases everything.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Runtime, func(), error) {
	store, err := dataset.Open(cfg.Paths.DatasetDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening dataset: %w", err)
	}

	loader := vision.NewCascadeLoader(cfg.Cascades)
	face, err := loader.Load(ctx, cfg.Detection.Cascades.Face)
	if err != nil {
		slog.Warn("face cascade unavailable, detection disabled", "error", err)
	}
	eye, err := loader.Load(ctx, cfg.Detection.Cascades.Eye)
	if err != nil {
		slog.Warn("eye cascade unavailable, faces will not be verified", "error", err)
	}
	detector := vision.NewFaceDetector(cfg.Detection, face, eye)

	factory, err := recognizer.FactoryFor(cfg.Recognition.Backend)
	if err != nil {
		slog.Warn("unknown recognizer backend", "backend", cfg.Recognition.Backend, "error", err)
	}
	classifier := recognizer.NewClassifier(
		factory,
		model.Files{Weights: cfg.Paths.ModelFile, Metadata: cfg.Paths.MetadataFile},
		model.Thresholds{
			Confidence: cfg.Recognition.ConfidenceThreshold,
			Unknown:    cfg.Recognition.UnknownThreshold,
		},
	)

	text, err := vision.NewTextRenderer()
	if err != nil {
		slog.Warn("text overlays disabled", "error", err)
	}

	recorders := activity.Multi{activity.NewFileLog(cfg.Activity.File)}
	var pool *postgres.Pool
	if cfg.Database.URL != "" {
		pool, err = postgres.Open(ctx, &cfg.Database)
		if err != nil {
			slog.Warn("PostgreSQL activity log disabled", "error", err)
		} else {
			recorders = append(recorders, postgres.NewActivityRepository(pool))
			slog.Info("recording activity to PostgreSQL")
		}
	}

	rt := New(Deps{
		Config:     cfg,
		Store:      store,
		Detector:   detector,
		Classifier: classifier,
		Activity:   recorders,
		Text:       text,
		Cascades:   loader,
	})

	cleanup := func() {
		rt.Close()
		if pool != nil {
			if err := pool.Close(); err != nil {
				slog.Warn("closing database", "error", err)
			}
		}
	}
	return rt, cleanup, nil
}
