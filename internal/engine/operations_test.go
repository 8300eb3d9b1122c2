package engine

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facecam/internal/activity"
	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/dataset"
	"github.com/kozaktomas/facecam/internal/model"
	"github.com/kozaktomas/facecam/internal/recognizer"
	"github.com/kozaktomas/facecam/internal/vision"
)

func TestInit_TrainsFromExistingDataset(t *testing.T) {
	f := newFixture(t, nil)
	f.addSamples(t, "Иван", 2)

	f.rt.Init(context.Background())

	require.True(t, f.classifier.Trained())
	assert.Equal(t, []string{"Ivan"}, f.classifier.Metadata().Keys())
	assert.Equal(t, []string{activity.EventStartup}, f.events(t))

	entries, err := f.log.Entries()
	require.NoError(t, err)
	assert.True(t, entries[0].ModelTrained)
	assert.Equal(t, []string{"Иван"}, entries[0].PeopleNames)
}

func TestInit_EmptyDataset(t *testing.T) {
	f := newFixture(t, nil)

	f.rt.Init(context.Background())

	assert.Equal(t, model.StatusUntrained, f.classifier.Status())
	assert.Equal(t, []string{activity.EventStartup}, f.events(t))
}

func TestInit_RetrainsStaleModel(t *testing.T) {
	f := newFixture(t, nil)
	f.addSamples(t, "Иван", 2)
	_, err := f.rt.Train(context.Background(), nil)
	require.NoError(t, err)

	f.addSamples(t, "Петр", 2)
	f.build(t, &staticCascade{})
	f.rt.Init(context.Background())

	require.True(t, f.classifier.Trained())
	assert.Equal(t, []string{"Ivan", "Petr"}, f.classifier.Metadata().Keys())
}

func TestInit_KeepsCurrentModel(t *testing.T) {
	f := newFixture(t, nil)
	f.addSamples(t, "Иван", 2)
	meta, err := f.rt.Train(context.Background(), nil)
	require.NoError(t, err)

	f.build(t, &staticCascade{})
	f.rt.Init(context.Background())

	require.True(t, f.classifier.Trained())
	assert.True(t, meta.TrainingDate.Equal(f.classifier.Metadata().TrainingDate))
}

func TestTrain_NoData(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.rt.Train(context.Background(), nil)
	assert.ErrorIs(t, err, recognizer.ErrNoTrainingData)
	assert.Equal(t, model.StatusUntrained, f.classifier.Status())
	assert.Empty(t, f.events(t))
}

func TestStartCollection_EmptyName(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.rt.StartCollection(context.Background(), "   ")
	assert.ErrorIs(t, err, dataset.ErrEmptyName)
	assert.False(t, f.rt.Collection().Active)
}

func TestStopCollection(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.rt.StartCollection(ctx, "Иван")
	require.NoError(t, err)
	snap := f.rt.StopCollection(ctx)

	assert.False(t, snap.Active)
	assert.Equal(t, "Иван", snap.Name)
	assert.Equal(t, []string{activity.EventCollectionStarted, activity.EventCollectionStopped}, f.events(t))
}

func TestDeletePerson(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.addSamples(t, "Иван", 2)
	f.addSamples(t, "Петр", 2)
	_, err := f.rt.Train(ctx, nil)
	require.NoError(t, err)

	d, err := f.rt.DeletePerson(ctx, "Петр")
	require.NoError(t, err)
	assert.Equal(t, "Petr", d.Key)
	assert.Equal(t, "Петр", d.Name)
	assert.True(t, d.Retrained)
	assert.Equal(t, []string{"Ivan"}, f.classifier.Metadata().Keys())

	d, err = f.rt.DeletePerson(ctx, "Ivan")
	require.NoError(t, err)
	assert.False(t, d.Retrained)
	assert.Equal(t, model.StatusUntrained, f.classifier.Status())
	assert.False(t, f.classifier.Files().Exist(), "model of deleted subjects is removed")

	_, err = f.rt.DeletePerson(ctx, "Иван")
	assert.ErrorIs(t, err, dataset.ErrSubjectNotFound)
}

func TestDeletePerson_StopsItsCollection(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.addSamples(t, "Иван", 1)

	_, err := f.rt.StartCollection(ctx, "Иван")
	require.NoError(t, err)
	_, err = f.rt.DeletePerson(ctx, "Иван")
	require.NoError(t, err)

	assert.False(t, f.rt.Collection().Active)
}

func TestModelInfo(t *testing.T) {
	f := newFixture(t, nil)

	info := f.rt.ModelInfo()
	assert.False(t, info.Trained)
	assert.Equal(t, model.StatusUntrained, info.Status)
	assert.Empty(t, info.Names)
	assert.Nil(t, info.TrainingDate)
	assert.Equal(t, 100.0, info.Threshold)
	assert.Equal(t, 80.0, info.UnknownThreshold)

	f.addSamples(t, "Петр", 1)
	f.addSamples(t, "Иван", 1)
	_, err := f.rt.Train(context.Background(), nil)
	require.NoError(t, err)

	info = f.rt.ModelInfo()
	assert.True(t, info.Trained)
	assert.Equal(t, []string{"Иван", "Петр"}, info.Names)
	assert.Equal(t, 2, info.Count)
	assert.Equal(t, [2]int{130, 100}, info.ImageSize)
	assert.NotNil(t, info.TrainingDate)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Recognition.RequireEyes = true })
	f.addSamples(t, "Иван", 3)

	s := f.rt.Status()
	assert.Equal(t, 3, s.TotalDataCount)
	assert.False(t, s.ModelTrained)
	assert.False(t, s.ModelExists)
	assert.True(t, s.FaceCascadeLoaded)
	assert.False(t, s.EyeCascadeLoaded)
	assert.True(t, s.RequireEyesForFace)
	assert.False(t, s.CameraReady)
	assert.Equal(t, 200, s.MaxImages)
	assert.Equal(t, []string{}, s.PeopleNames)

	_, err := f.rt.Train(context.Background(), nil)
	require.NoError(t, err)
	s = f.rt.Status()
	assert.True(t, s.ModelTrained)
	assert.True(t, s.ModelExists)
	assert.Equal(t, 1, s.PeopleCount)
}

func TestSetThresholds(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	conf := 60.0
	got, clamped := f.rt.SetThresholds(ctx, &conf, nil)
	assert.True(t, clamped)
	assert.Equal(t, model.Thresholds{Confidence: 60, Unknown: 60}, got)

	unknown := 40.0
	got, clamped = f.rt.SetThresholds(ctx, nil, &unknown)
	assert.False(t, clamped)
	assert.Equal(t, model.Thresholds{Confidence: 60, Unknown: 40}, got)
	assert.Equal(t, got, f.classifier.Thresholds())
}

func TestSetCascadeParams(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	assert.Equal(t, CascadeParams{ScaleFactor: 1.1, MinNeighbors: 3, MinSize: 40, MaxSize: 500}, f.rt.CascadeParams())

	err := f.rt.SetCascadeParams(ctx, CascadeParams{ScaleFactor: 1, MinNeighbors: 3, MinSize: 30, MaxSize: 500})
	assert.ErrorIs(t, err, ErrInvalidSetting)

	want := CascadeParams{ScaleFactor: 1.15, MinNeighbors: 4, MinSize: 35, MaxSize: 400}
	require.NoError(t, f.rt.SetCascadeParams(ctx, want))
	assert.Equal(t, want, f.rt.CascadeParams())
}

func TestSetCamera(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.rt.SetCamera(ctx, config.CameraConfig{Index: 0, Width: 0, Height: 480, FPS: 30})
	assert.ErrorIs(t, err, ErrInvalidSetting)
	_, err = f.rt.SetCamera(ctx, config.CameraConfig{Index: -2, Width: 640, Height: 480, FPS: 30})
	assert.ErrorIs(t, err, ErrInvalidSetting)

	want := config.CameraConfig{Index: 1, Width: 1280, Height: 720, FPS: 15}
	_, err = f.rt.SetCamera(ctx, want)
	require.NoError(t, err)
	_, err = f.rt.SetCamera(ctx, want)
	require.NoError(t, err, "a pending reopen does not block")

	assert.Equal(t, want, f.rt.Camera())
	assert.Len(t, f.rt.cameraChanged, 1)
}

func TestSetRequireEyes(t *testing.T) {
	f := newFixture(t, nil)

	f.rt.SetRequireEyes(context.Background(), true)
	assert.True(t, f.rt.Status().RequireEyesForFace)
	f.rt.SetAlignFaces(context.Background(), true)
	assert.True(t, f.rt.Status().AlignFaces)

	entries, err := f.log.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[1].RequireEyesForFace)
}

func TestAccuracy(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.rt.Accuracy(5, nil)
	assert.ErrorIs(t, err, recognizer.ErrNotTrained)

	f.addSamples(t, "Иван", 3)
	f.addSamples(t, "Петр", 3)
	_, err = f.rt.Train(context.Background(), nil)
	require.NoError(t, err)

	// The fake backend always answers label 0.
	report, err := f.rt.Accuracy(5, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, 6, report.TotalTests)
	assert.Equal(t, 3, report.CorrectPredictions)
	assert.InDelta(t, 0.5, report.OverallAccuracy, 0.001)
}

func TestPeople(t *testing.T) {
	f := newFixture(t, nil)
	f.addSamples(t, "Петр", 1)
	f.addSamples(t, "Иван", 2)

	people, err := f.rt.People()
	require.NoError(t, err)
	assert.Equal(t, []dataset.Subject{
		{Name: "Иван", Key: "Ivan", ImageCount: 2},
		{Name: "Петр", Key: "Petr", ImageCount: 1},
	}, people)
}

func TestRecognizeImage(t *testing.T) {
	f := newFixture(t, nil)
	frame := colorFrame(t)
	data, err := vision.EncodeJPEG(frame)
	require.NoError(t, err)

	_, err = f.rt.RecognizeImage(data)
	assert.ErrorIs(t, err, recognizer.ErrNotTrained)

	f.addSamples(t, "Иван", 2)
	_, err = f.rt.Train(context.Background(), nil)
	require.NoError(t, err)

	out, err := f.rt.RecognizeImage(data)
	require.NoError(t, err)
	assert.Equal(t, 1, out.FacesFound)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Иван", out.Results[0].Name)
	assert.True(t, out.Results[0].Recognized)
	assert.NotEmpty(t, out.ProcessedImage)
	assert.Equal(t, Stats{}, f.rt.Stats(), "still images are not counted")

	_, err = f.rt.RecognizeImage([]byte("not an image"))
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, vision.ErrInvalidImage)

	_, err = f.rt.RecognizeBase64("%%%")
	assert.ErrorIs(t, err, ErrDecode)

	out, err = f.rt.RecognizeBase64(out.ProcessedBase64())
	require.NoError(t, err)
	assert.Equal(t, 1, out.FacesFound)
}
