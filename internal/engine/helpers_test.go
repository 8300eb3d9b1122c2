package engine

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/activity"
	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/dataset"
	"github.com/kozaktomas/facecam/internal/model"
	"github.com/kozaktomas/facecam/internal/recognizer"
	"github.com/kozaktomas/facecam/internal/vision"
)

var faceBox = image.Rect(200, 150, 300, 250)

// staticCascade reports the same boxes on every call.
type staticCascade struct {
	boxes []image.Rectangle
}

func (c *staticCascade) DetectMultiScaleWithParams(gocv.Mat, float64, int, int, image.Point, image.Point) []image.Rectangle {
	return append([]image.Rectangle(nil), c.boxes...)
}

func (c *staticCascade) Close() error { return nil }

const fakeWeights = "<?xml version=\"1.0\"?>\n<opencv_storage>\n<fake>1</fake>\n</opencv_storage>\n"

// fakeBackend predicts label 0 at the fixture's distance. The fixture's
// onPredict hook runs first and may fail or panic.
type fakeBackend struct {
	fx *fixture
}

func (f *fakeBackend) Train(images []gocv.Mat, labels []int) error {
	if len(images) != len(labels) {
		return errors.New("length mismatch")
	}
	return nil
}

func (f *fakeBackend) Predict(gocv.Mat) (int, float64, error) {
	if f.fx.onPredict != nil {
		if err := f.fx.onPredict(); err != nil {
			return 0, 0, err
		}
	}
	return 0, f.fx.distance, nil
}

func (f *fakeBackend) Save(path string) error {
	return os.WriteFile(path, []byte(fakeWeights), 0o644)
}

func (f *fakeBackend) Load(path string) error {
	_, err := os.ReadFile(path)
	return err
}

type fixture struct {
	dir        string
	cfg        *config.Config
	store      *dataset.Store
	classifier *recognizer.Classifier
	log        *activity.FileLog
	distance   float64
	onPredict  func() error
	rt         *Runtime
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Paths: config.PathsConfig{
			DataDir:      dir,
			DatasetDir:   filepath.Join(dir, "datasets"),
			ModelFile:    filepath.Join(dir, "face_model.xml"),
			MetadataFile: filepath.Join(dir, "model_metadata.json"),
		},
		Recognition: config.RecognitionConfig{
			Backend:             "lbph",
			ConfidenceThreshold: 100,
			UnknownThreshold:    80,
			MaxImages:           200,
		},
		Camera:    config.CameraConfig{Index: 0, Width: 640, Height: 480, FPS: 30},
		Activity:  config.ActivityConfig{File: filepath.Join(dir, "logs", "activity.json"), RetentionDays: 30},
		Detection: config.LoadDetection(),
	}
}

// newFixture builds a runtime whose face cascade reports faceBox and that
// has no eye cascade. configure may adjust the config before assembly.
func newFixture(t *testing.T, configure func(*config.Config)) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir(), distance: 50}
	f.cfg = testConfig(f.dir)
	if configure != nil {
		configure(f.cfg)
	}
	f.build(t, &staticCascade{boxes: []image.Rectangle{faceBox}})
	return f
}

// build assembles a fresh runtime over the fixture's directory.
func (f *fixture) build(t *testing.T, face vision.Cascade) {
	t.Helper()
	var err error
	f.store, err = dataset.Open(f.cfg.Paths.DatasetDir)
	require.NoError(t, err)

	factory := func() (recognizer.Backend, error) {
		return &fakeBackend{fx: f}, nil
	}
	f.classifier = recognizer.NewClassifier(
		factory,
		model.Files{Weights: f.cfg.Paths.ModelFile, Metadata: f.cfg.Paths.MetadataFile},
		model.Thresholds{Confidence: f.cfg.Recognition.ConfidenceThreshold, Unknown: f.cfg.Recognition.UnknownThreshold},
	)
	f.log = activity.NewFileLog(f.cfg.Activity.File)

	text, err := vision.NewTextRenderer()
	require.NoError(t, err)

	f.rt = New(Deps{
		Config:     f.cfg,
		Store:      f.store,
		Detector:   vision.NewFaceDetector(f.cfg.Detection, face, nil),
		Classifier: f.classifier,
		Activity:   f.log,
		Text:       text,
	})
	t.Cleanup(f.rt.Close)
}

// addSamples writes n blank samples for a subject.
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

func (f *fixture) events(t *testing.T) []string {
	t.Helper()
	entries, err := f.log.Entries()
	require.NoError(t, err)
	events := make([]string, 0, len(entries))
	for _, e := range entries {
		events = append(events, e.Event)
	}
	return events
}

func colorFrame(t *testing.T) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

// boxColor returns the BGR pixel on the left edge of faceBox.
func boxColor(m gocv.Mat) []uint8 {
	return boxColorAt(m, faceBox)
}

func boxColorAt(m gocv.Mat, r image.Rectangle) []uint8 {
	v := m.GetVecbAt(r.Min.Y+r.Dy()/2, r.Min.X)
	return []uint8{v[0], v[1], v[2]}
}
