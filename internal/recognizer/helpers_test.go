package recognizer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/dataset"
	"github.com/kozaktomas/facecam/internal/model"
	"github.com/kozaktomas/facecam/internal/vision"
)

const fakeWeights = "<?xml version=\"1.0\"?>\n<opencv_storage>\n<fake>1</fake>\n</opencv_storage>\n"

// fakeBackend predicts a fixed label and distance.
type fakeBackend struct {
	label    int
	distance float64
	trainErr error
	loadErr  error

	trainedLabels []int
	predicted     [][]byte
}

func (f *fakeBackend) Train(images []gocv.Mat, labels []int) error {
	if f.trainErr != nil {
		return f.trainErr
	}
	if len(images) != len(labels) {
		return errors.New("length mismatch")
	}
	f.trainedLabels = append([]int(nil), labels...)
	return nil
}

func (f *fakeBackend) Predict(img gocv.Mat) (int, float64, error) {
	f.predicted = append(f.predicted, img.ToBytes())
	return f.label, f.distance, nil
}

func (f *fakeBackend) Save(path string) error {
	return os.WriteFile(path, []byte(fakeWeights), 0o644)
}

func (f *fakeBackend) Load(path string) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	_, err := os.ReadFile(path)
	return err
}

// fakeFactory hands out backends configured by the test and remembers the last one.
type fakeFactory struct {
	label    int
	distance float64
	trainErr error
	loadErr  error
	last     *fakeBackend
}

func (f *fakeFactory) New() (Backend, error) {
	f.last = &fakeBackend{label: f.label, distance: f.distance, trainErr: f.trainErr, loadErr: f.loadErr}
	return f.last, nil
}

type fixture struct {
	store      *dataset.Store
	files      model.Files
	factory    *fakeFactory
	classifier *Classifier
	trainer    *Trainer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := dataset.Open(filepath.Join(dir, "datasets"))
	require.NoError(t, err)

	f := &fixture{
		store:   store,
		files:   model.Files{Weights: filepath.Join(dir, "face_model.xml"), Metadata: filepath.Join(dir, "model_metadata.json")},
		factory: &fakeFactory{distance: 50},
	}
	f.classifier = NewClassifier(f.factory.New, f.files, model.DefaultThresholds())
	f.trainer = NewTrainer(store, f.classifier)
	return f
}

// addSamples registers a subject and writes n blank samples for it.
func (f *fixture) addSamples(t *testing.T, name string, n int) string {
	t.Helper()
	sub, err := f.store.Ensure(name)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		img := gocv.NewMatWithSize(vision.SampleSize.Y, vision.SampleSize.X, gocv.MatTypeCV8UC1)
		require.NoError(t, vision.WriteImage(f.store.SamplePath(sub.Key, i), img))
		img.Close()
	}
	return sub.Key
}

func blankPatch(t *testing.T) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(vision.SampleSize.Y, vision.SampleSize.X, gocv.MatTypeCV8UC1)
	t.Cleanup(func() { m.Close() })
	return m
}
