package engine

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/activity"
	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/model"
	"github.com/kozaktomas/facecam/internal/recognizer"
	"github.com/kozaktomas/facecam/internal/vision"
)

func TestProcessFrame_NotTrained(t *testing.T) {
	f := newFixture(t, nil)
	frame := colorFrame(t)

	results, err := f.rt.ProcessFrame(&frame)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, Stats{}, f.rt.Stats(), "untrained detections are not counted")
	assert.Equal(t, []uint8{128, 128, 128}, boxColor(frame))
}

func TestProcessFrame_InvalidFrame(t *testing.T) {
	f := newFixture(t, nil)
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := f.rt.ProcessFrame(&empty)
	assert.ErrorIs(t, err, vision.ErrInvalidImage)
}

func TestProcessFrame_NoFaceCascade(t *testing.T) {
	f := newFixture(t, nil)
	f.build(t, nil)
	frame := colorFrame(t)

	results, err := f.rt.ProcessFrame(&frame)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, []uint8{0, 0, 0}, boxColor(frame), "no boxes without a face cascade")
}

func TestProcessFrame_Collecting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	snap, err := f.rt.StartCollection(ctx, "Иван")
	require.NoError(t, err)
	require.Equal(t, "Ivan", snap.Key)

	for range 3 {
		frame := colorFrame(t)
		results, err := f.rt.ProcessFrame(&frame)
		require.NoError(t, err)
		assert.Empty(t, results, "collected faces are not classified")
		assert.Equal(t, []uint8{255, 0, 0}, boxColor(frame), "collecting box is blue")
	}

	images, err := f.store.Images("Ivan")
	require.NoError(t, err)
	assert.Len(t, images, 3)
	assert.Equal(t, 3, f.rt.Collection().Count)
	assert.Equal(t, Stats{}, f.rt.Stats())

	for _, path := range images {
		img, err := vision.ReadGray(path)
		require.NoError(t, err)
		assert.Equal(t, vision.SampleSize.X, img.Cols())
		assert.Equal(t, vision.SampleSize.Y, img.Rows())
		img.Close()
	}
}

func TestProcessFrame_CollectionStopsAtCap(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Recognition.MaxImages = 2 })
	ctx := context.Background()

	_, err := f.rt.StartCollection(ctx, "Петр")
	require.NoError(t, err)

	for range 3 {
		frame := colorFrame(t)
		_, err := f.rt.ProcessFrame(&frame)
		require.NoError(t, err)
	}

	images, err := f.store.Images("Petr")
	require.NoError(t, err)
	assert.Len(t, images, 2)
	assert.False(t, f.rt.Collection().Active)
	assert.Equal(t, []string{activity.EventCollectionStarted, activity.EventCollectionCompleted}, f.events(t))
}

func TestProcessFrame_Bands(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		color    []uint8 // BGR
		want     Stats
	}{
		{"known", 50, []uint8{0, 255, 0}, Stats{TotalFacesDetected: 1, KnownFaces: 1, LastRecognized: "Иван"}},
		{"maybe", 90, []uint8{0, 255, 255}, Stats{TotalFacesDetected: 1}},
		{"unknown", 150, []uint8{0, 0, 255}, Stats{TotalFacesDetected: 1, UnknownFaces: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.addSamples(t, "Иван", 3)
			_, err := f.rt.Train(context.Background(), nil)
			require.NoError(t, err)
			f.distance = tt.distance

			frame := colorFrame(t)
			results, err := f.rt.ProcessFrame(&frame)
			require.NoError(t, err)
			require.Len(t, results, 1)

			assert.Equal(t, tt.want, f.rt.Stats())
			assert.Equal(t, tt.color, boxColor(frame))
			assert.Equal(t, tt.distance, results[0].Confidence)
			assert.Equal(t, faceBox.Min.X, results[0].BBox.X)
			assert.Equal(t, faceBox.Dx(), results[0].BBox.W)
		})
	}
}

// twoFaces retrains the fixture over a cascade reporting faceBox and a
// second face to its right.
func twoFaces(t *testing.T) (*fixture, image.Rectangle) {
	t.Helper()
	second := image.Rect(400, 150, 500, 250)
	f := newFixture(t, nil)
	f.build(t, &staticCascade{boxes: []image.Rectangle{faceBox, second}})
	f.addSamples(t, "Иван", 2)
	_, err := f.rt.Train(context.Background(), nil)
	require.NoError(t, err)
	return f, second
}

func TestProcessFrame_ClassifierErrorIsPerFace(t *testing.T) {
	f, second := twoFaces(t)
	calls := 0
	f.onPredict = func() error {
		calls++
		if calls == 1 {
			return errors.New("histogram mismatch")
		}
		return nil
	}

	frame := colorFrame(t)
	results, err := f.rt.ProcessFrame(&frame)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, second.Min.X, results[0].BBox.X)
	assert.Equal(t, "Иван", results[0].Name)

	assert.Equal(t, []uint8{0, 0, 255}, boxColor(frame), "failed face gets an error badge")
	assert.Equal(t, []uint8{0, 255, 0}, boxColorAt(frame, second))
	assert.Equal(t, Stats{TotalFacesDetected: 1, KnownFaces: 1, LastRecognized: "Иван"}, f.rt.Stats())
}

func TestProcessFrame_ClassifierPanicIsPerFace(t *testing.T) {
	f, second := twoFaces(t)
	calls := 0
	f.onPredict = func() error {
		calls++
		if calls == 1 {
			panic("native assertion")
		}
		return nil
	}

	frame := colorFrame(t)
	results, err := f.rt.ProcessFrame(&frame)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, second.Min.X, results[0].BBox.X)

	assert.Equal(t, []uint8{0, 0, 255}, boxColor(frame))
	assert.Equal(t, []uint8{0, 255, 0}, boxColorAt(frame, second))
	assert.Equal(t, 1, f.rt.Stats().KnownFaces)

	// the classifier lock was released by the panicking call
	f.onPredict = nil
	frame = colorFrame(t)
	results, err = f.rt.ProcessFrame(&frame)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestProcessFrame_ResetStats(t *testing.T) {
	f := newFixture(t, nil)
	f.addSamples(t, "Иван", 2)
	_, err := f.rt.Train(context.Background(), nil)
	require.NoError(t, err)

	for range 2 {
		frame := colorFrame(t)
		_, err := f.rt.ProcessFrame(&frame)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.rt.Stats().KnownFaces)

	f.rt.ResetStats()
	assert.Equal(t, Stats{}, f.rt.Stats())
}

func TestBandAnnotation(t *testing.T) {
	det := vision.Detection{Rect: faceBox, EyesFound: true}

	known := bandAnnotation(det, matchWith(model.BandKnown, "Иван", 30))
	assert.Equal(t, "Иван (eyes detected)", known.label)
	require.Len(t, known.extra, 1)
	assert.Equal(t, "Confidence: 70%", known.extra[0].Value)

	maybe := bandAnnotation(det, matchWith(model.BandMaybe, "Иван", 90))
	assert.Equal(t, "Иван? (eyes detected)", maybe.label)

	det.EyesFound = false
	unknown := bandAnnotation(det, matchWith(model.BandUnknown, model.NotRecognized, 120))
	assert.Equal(t, "UNKNOWN (eyes not detected)", unknown.label)
	assert.Equal(t, colorRed, unknown.box)
}

func TestErrorAnnotation_Truncates(t *testing.T) {
	a := errorAnnotation(vision.Detection{Rect: faceBox}, "a very long failure message")
	assert.Equal(t, "Error: a very long fai", a.label)
}

func matchWith(band model.Band, name string, distance float64) recognizer.Match {
	return recognizer.Match{Name: name, Confidence: distance, Band: band, Recognized: band != model.BandUnknown}
}
