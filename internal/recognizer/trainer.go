package recognizer

import (
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/dataset"
	"github.com/kozaktomas/facecam/internal/model"
	"github.com/kozaktomas/facecam/internal/vision"
)

// Progress is called after each dataset image is read.
type Progress func(done, total int)

// Trainer builds a model from the dataset and installs it into a Classifier.
type Trainer struct {
	store      *dataset.Store
	classifier *Classifier
}

// NewTrainer creates a trainer over store feeding classifier.
func NewTrainer(store *dataset.Store, classifier *Classifier) *Trainer {
	return &Trainer{store: store, classifier: classifier}
}

type trainingSet struct {
	images []gocv.Mat
	labels []int
	names  map[int]string
}

func (s *trainingSet) Close() {
	for _, m := range s.images {
		m.Close()
	}
}

// Train runs a full retrain. Subjects are labeled 0..n-1 in lexicographic
// order of their storage keys; subjects without a readable image get no
// label. On success the model is persisted and swapped into the classifier.
// On any failure the previously loaded model stays in place.
func (t *Trainer) Train(progress Progress) (*model.Metadata, error) {
	if t.classifier.Status() == model.StatusUnavailable {
		return nil, ErrBackendUnavailable
	}

	set, err := t.load(progress)
	if err != nil {
		return nil, err
	}
	defer set.Close()

	if len(set.images) == 0 {
		return nil, ErrNoTrainingData
	}

	backend, err := t.classifier.newBackend()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	started := time.Now()
	if err := backend.Train(set.images, set.labels); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTrainingFailed, err)
	}

	thresholds := t.classifier.Thresholds()
	meta := &model.Metadata{
		Names:               set.names,
		OriginalNames:       make(map[string]string, len(set.names)),
		ImageSize:           [2]int{vision.SampleSize.X, vision.SampleSize.Y},
		ConfidenceThreshold: thresholds.Confidence,
		UnknownThreshold:    thresholds.Unknown,
		TrainingDate:        time.Now().UTC().Truncate(time.Second),
	}
	for _, key := range set.names {
		meta.OriginalNames[key] = t.store.DisplayName(key)
	}

	if err := t.classifier.files.Save(meta, backend.Save); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTrainingFailed, err)
	}
	t.classifier.install(backend, meta)

	slog.Info("model trained",
		"images", len(set.images),
		"subjects", len(set.names),
		"duration", time.Since(started).Round(time.Millisecond))
	return meta, nil
}

func (t *Trainer) load(progress Progress) (*trainingSet, error) {
	keys, err := t.store.Keys()
	if err != nil {
		return nil, err
	}

	files := make(map[string][]string, len(keys))
	total := 0
	for _, key := range keys {
		images, err := t.store.Images(key)
		if err != nil {
			return nil, err
		}
		files[key] = images
		total += len(images)
	}

	set := &trainingSet{names: map[int]string{}}
	done := 0
	label := 0
	for _, key := range keys {
		loaded := 0
		for _, path := range files[key] {
			done++
			img, err := readSample(path)
			if progress != nil {
				progress(done, total)
			}
			if err != nil {
				slog.Warn("skipping unreadable sample", "path", path, "error", err)
				continue
			}
			set.images = append(set.images, img)
			set.labels = append(set.labels, label)
			loaded++
		}
		if loaded == 0 {
			continue
		}
		set.names[label] = key
		slog.Debug("loaded subject", "key", key, "label", label, "images", loaded)
		label++
	}
	return set, nil
}

// readSample loads a stored sample as grayscale at the sample size.
func readSample(path string) (gocv.Mat, error) {
	img, err := vision.ReadGray(path)
	if err != nil {
		return img, err
	}
	if img.Cols() == vision.SampleSize.X && img.Rows() == vision.SampleSize.Y {
		return img, nil
	}
	defer img.Close()
	return vision.Resize(img), nil
}
