// Package recognizer trains and queries the face classifier.
//
// The classifier backend is an LBPH recognizer from OpenCV contrib. It is
// created through a Factory so the rest of the package can run with a
// stand-in, and so a build without a working backend degrades to
// model.StatusUnavailable instead of failing at call time.
package recognizer

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"github.com/kozaktomas/facecam/internal/model"
)

var (
	// ErrBackendUnavailable means no classifier backend can be created.
	ErrBackendUnavailable = errors.New("recognizer backend unavailable")
	// ErrNotTrained means a prediction was requested before any model was loaded.
	ErrNotTrained = errors.New("model not trained")
	// ErrNoTrainingData means the dataset holds no readable image.
	ErrNoTrainingData = errors.New("no training data")
	// ErrTrainingFailed means the backend rejected the training set or the
	// trained model could not be persisted.
	ErrTrainingFailed = errors.New("training failed")
)

// Backend is a trainable nearest-neighbor face classifier. Predict returns
// the closest label and its distance, lower is better.
type Backend interface {
	Train(images []gocv.Mat, labels []int) error
	Predict(img gocv.Mat) (label int, distance float64, err error)
	Save(path string) error
	Load(path string) error
}

// Factory creates an untrained backend.
type Factory func() (Backend, error)

// Backends maps RECOGNIZER_BACKEND values to factories.
var Backends = map[string]Factory{
	"lbph": NewLBPH,
	"none": func() (Backend, error) { return nil, ErrBackendUnavailable },
}

// FactoryFor returns the factory registered under name.
func FactoryFor(name string) (Factory, error) {
	f, ok := Backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown recognizer backend %q", name)
	}
	return f, nil
}

// LBPH is the OpenCV local binary pattern histogram recognizer.
type LBPH struct {
	rec     *contrib.LBPHFaceRecognizer
	trained bool
}

// NewLBPH creates an untrained LBPH recognizer with OpenCV defaults
// (radius 1, 8 neighbors, 8x8 grid, no distance threshold).
func NewLBPH() (Backend, error) {
	rec := contrib.NewLBPHFaceRecognizer()
	if rec == nil {
		return nil, ErrBackendUnavailable
	}
	return &LBPH{rec: rec}, nil
}

// Train replaces any previous state with the given samples.
func (l *LBPH) Train(images []gocv.Mat, labels []int) error {
	if len(images) == 0 || len(images) != len(labels) {
		return fmt.Errorf("%d images for %d labels", len(images), len(labels))
	}
	for i, img := range images {
		if img.Empty() || img.Channels() != 1 {
			return fmt.Errorf("sample %d is not a grayscale image", i)
		}
	}
	l.rec.Train(images, labels)
	l.trained = true
	return nil
}

// Predict returns the nearest label and its distance.
func (l *LBPH) Predict(img gocv.Mat) (int, float64, error) {
	if !l.trained {
		return 0, 0, ErrNotTrained
	}
	if img.Empty() {
		return 0, 0, errors.New("empty sample")
	}
	resp := l.rec.PredictExtendedResponse(img)
	if resp.Label < 0 {
		return 0, 0, fmt.Errorf("no prediction (label %d)", resp.Label)
	}
	return int(resp.Label), float64(resp.Confidence), nil
}

// Save writes the model as OpenCV XML storage.
func (l *LBPH) Save(path string) error {
	if !l.trained {
		return ErrNotTrained
	}
	l.rec.SaveFile(path)
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		return fmt.Errorf("saving %s produced no data", path)
	}
	return nil
}

// lbphNode and lbphKeys are the storage entries LoadFile reads.
const lbphNode = "opencv_lbphfaces"

var lbphKeys = []string{"radius", "neighbors", "grid_x", "grid_y", "histograms", "labels"}

// Load reads a model written by Save. The file structure is checked first
// since OpenCV aborts on storage it cannot parse.
func (l *LBPH) Load(path string) error {
	layout, err := model.ReadLayout(path)
	if err != nil {
		return err
	}
	if missing := layout.Missing(lbphNode, lbphKeys...); len(missing) > 0 {
		return fmt.Errorf("not an LBPH model: missing %s", strings.Join(missing, ", "))
	}
	l.rec.LoadFile(path)
	l.trained = true
	return nil
}
