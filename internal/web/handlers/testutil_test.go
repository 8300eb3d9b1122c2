package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/activity"
	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/dataset"
	"github.com/kozaktomas/facecam/internal/engine"
	"github.com/kozaktomas/facecam/internal/model"
	"github.com/kozaktomas/facecam/internal/recognizer"
	"github.com/kozaktomas/facecam/internal/vision"
)

// testFace is the box every test cascade reports.
var testFace = image.Rect(200, 150, 300, 250)

// fixedCascade reports testFace on every call.
type fixedCascade struct{}

func (fixedCascade) DetectMultiScaleWithParams(gocv.Mat, float64, int, int, image.Point, image.Point) []image.Rectangle {
	return []image.Rectangle{testFace}
}

func (fixedCascade) Close() error { return nil }

// stubBackend always predicts label 0 at distance 40.
type stubBackend struct{}

func (stubBackend) Train([]gocv.Mat, []int) error { return nil }

func (stubBackend) Predict(gocv.Mat) (int, float64, error) { return 0, 40, nil }

func (stubBackend) Save(path string) error {
	return os.WriteFile(path, []byte("<?xml version=\"1.0\"?>\n<opencv_storage>\n<stub>1</stub>\n</opencv_storage>\n"), 0o644)
}

func (stubBackend) Load(string) error { return nil }

// testConfig creates a config rooted in dir.
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
		Activity:  config.ActivityConfig{File: filepath.Join(dir, "activity.json"), RetentionDays: 30},
		Detection: config.LoadDetection(),
	}
}

// testEnv is a runtime over a temporary dataset.
type testEnv struct {
	cfg   *config.Config
	store *dataset.Store
	rt    *engine.Runtime
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig(t.TempDir())

	store, err := dataset.Open(cfg.Paths.DatasetDir)
	if err != nil {
		t.Fatalf("failed to open dataset: %v", err)
	}
	classifier := recognizer.NewClassifier(
		func() (recognizer.Backend, error) { return stubBackend{}, nil },
		model.Files{Weights: cfg.Paths.ModelFile, Metadata: cfg.Paths.MetadataFile},
		model.DefaultThresholds(),
	)
	text, err := vision.NewTextRenderer()
	if err != nil {
		t.Fatalf("failed to create text renderer: %v", err)
	}

	rt := engine.New(engine.Deps{
		Config:     cfg,
		Store:      store,
		Detector:   vision.NewFaceDetector(cfg.Detection, fixedCascade{}, nil),
		Classifier: classifier,
		Activity:   activity.NewFileLog(cfg.Activity.File),
		Text:       text,
	})
	t.Cleanup(rt.Close)
	return &testEnv{cfg: cfg, store: store, rt: rt}
}

// addSamples writes n blank samples for a person.
func (e *testEnv) addSamples(t *testing.T, name string, n int) {
	t.Helper()
	sub, err := e.store.Ensure(name)
	if err != nil {
		t.Fatalf("failed to create subject: %v", err)
	}
	for i := 1; i <= n; i++ {
		img := gocv.NewMatWithSize(vision.SampleSize.Y, vision.SampleSize.X, gocv.MatTypeCV8UC1)
		err := vision.WriteImage(e.store.SamplePath(sub.Key, i), img)
		img.Close()
		if err != nil {
			t.Fatalf("failed to write sample: %v", err)
		}
	}
}

// train adds one person and trains the model.
func (e *testEnv) train(t *testing.T) {
	t.Helper()
	e.addSamples(t, "Иван", 2)
	if _, err := e.rt.Train(context.Background(), nil); err != nil {
		t.Fatalf("failed to train: %v", err)
	}
}

// jsonRequest creates a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody unmarshals a recorded JSON response.
func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(recorder.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return v
}

// testJPEG encodes a blank 640x480 frame.
func testJPEG(t *testing.T) []byte {
	t.Helper()
	m := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer m.Close()
	data, err := vision.EncodeJPEG(m)
	if err != nil {
		t.Fatalf("failed to encode JPEG: %v", err)
	}
	return data
}
