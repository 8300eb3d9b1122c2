package vision

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/config"
)

// fakeCascade returns canned boxes keyed by scale factor.
type fakeCascade struct {
	byScale map[float64][]image.Rectangle
	always  []image.Rectangle
	calls   []fakeCall
	closed  bool
}

type fakeCall struct {
	size         image.Point
	scale        float64
	minNeighbors int
	minSize      image.Point
	maxSize      image.Point
}

func (f *fakeCascade) DetectMultiScaleWithParams(img gocv.Mat, scale float64, minNeighbors, _ int, minSize, maxSize image.Point) []image.Rectangle {
	f.calls = append(f.calls, fakeCall{
		size:         image.Pt(img.Cols(), img.Rows()),
		scale:        scale,
		minNeighbors: minNeighbors,
		minSize:      minSize,
		maxSize:      maxSize,
	})
	if f.byScale != nil {
		return append([]image.Rectangle(nil), f.byScale[scale]...)
	}
	return append([]image.Rectangle(nil), f.always...)
}

func (f *fakeCascade) Close() error {
	f.closed = true
	return nil
}

func grayFrame(t *testing.T) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC1)
	t.Cleanup(func() { m.Close() })
	return m
}

func eyesAt(rects ...image.Rectangle) *fakeCascade {
	return &fakeCascade{always: rects}
}

func TestDetect_NoFaceCascade(t *testing.T) {
	d := NewFaceDetector(config.LoadDetection(), nil, nil)

	assert.Empty(t, d.Detect(grayFrame(t), true))
	assert.False(t, d.HasFaceCascade())
}

func TestDetect_RunsPassesInOrder(t *testing.T) {
	face := &fakeCascade{}
	d := NewFaceDetector(config.LoadDetection(), face, nil)

	d.Detect(grayFrame(t), true)

	require.Len(t, face.calls, 3)
	assert.Equal(t, 1.05, face.calls[0].scale)
	assert.Equal(t, 5, face.calls[0].minNeighbors)
	assert.Equal(t, image.Pt(30, 30), face.calls[0].minSize)
	assert.Equal(t, 1.1, face.calls[1].scale)
	assert.Equal(t, 3, face.calls[1].minNeighbors)
	assert.Equal(t, image.Pt(40, 40), face.calls[1].minSize)
	assert.Equal(t, 1.2, face.calls[2].scale)
	assert.Equal(t, 7, face.calls[2].minNeighbors)
	assert.Equal(t, image.Pt(50, 50), face.calls[2].minSize)
	assert.Equal(t, image.Point{}, face.calls[2].maxSize)
}

func TestDetect_RejectsWideBoxRegardlessOfEyes(t *testing.T) {
	face := &fakeCascade{always: []image.Rectangle{image.Rect(100, 100, 300, 200)}} // 200x100
	eye := eyesAt(image.Rect(10, 10, 30, 30), image.Rect(60, 10, 80, 30))
	d := NewFaceDetector(config.LoadDetection(), face, eye)

	assert.Empty(t, d.Detect(grayFrame(t), true))
	assert.Empty(t, d.Detect(grayFrame(t), false))
	assert.Empty(t, eye.calls, "eye cascade must not run on rejected boxes")
}

func TestDetect_EyeVerification(t *testing.T) {
	box := image.Rect(100, 100, 200, 200)

	tests := []struct {
		name        string
		eye         Cascade
		requireEyes bool
		wantCount   int
		wantEyes    bool
	}{
		{"eyes found", eyesAt(image.Rect(10, 10, 30, 30)), true, 1, true},
		{"no eyes with requirement", eyesAt(), true, 0, false},
		{"no eyes without requirement", eyesAt(), false, 1, false},
		{"no eye cascade", nil, true, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			face := &fakeCascade{always: []image.Rectangle{box}}
			d := NewFaceDetector(config.LoadDetection(), face, tt.eye)

			got := d.Detect(grayFrame(t), tt.requireEyes)
			require.Len(t, got, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, box, got[0].Rect)
				assert.Equal(t, tt.wantEyes, got[0].EyesFound)
			}
		})
	}
}

func TestDetect_EyesSearchedInUpperHalf(t *testing.T) {
	face := &fakeCascade{always: []image.Rectangle{image.Rect(100, 100, 200, 200)}}
	eye := eyesAt(image.Rect(10, 10, 30, 30))
	d := NewFaceDetector(config.LoadDetection(), face, eye)

	got := d.Detect(grayFrame(t), true)

	require.Len(t, got, 1)
	require.NotEmpty(t, eye.calls)
	assert.Equal(t, image.Pt(100, 50), eye.calls[0].size)
	assert.Equal(t, image.Pt(20, 20), eye.calls[0].minSize)
	assert.Equal(t, []image.Rectangle{image.Rect(110, 110, 130, 130)}, got[0].Eyes)
}

func TestDetect_Deduplicates(t *testing.T) {
	first := image.Rect(0, 0, 100, 100)
	half := image.Rect(50, 0, 150, 100)   // 50% of the smaller box
	forty := image.Rect(60, 0, 160, 100)  // 40%
	far := image.Rect(300, 300, 380, 380) // disjoint

	face := &fakeCascade{byScale: map[float64][]image.Rectangle{
		1.05: {first},
		1.1:  {half, forty},
		1.2:  {first, far},
	}}
	d := NewFaceDetector(config.LoadDetection(), face, nil)

	got := d.Detect(grayFrame(t), false)

	var rects []image.Rectangle
	for _, det := range got {
		rects = append(rects, det.Rect)
	}
	assert.Equal(t, []image.Rectangle{first, forty, far}, rects)
}

func TestDetect_ClipsToFrame(t *testing.T) {
	face := &fakeCascade{always: []image.Rectangle{image.Rect(600, 440, 680, 520)}}
	d := NewFaceDetector(config.LoadDetection(), face, nil)

	got := d.Detect(grayFrame(t), false)

	require.Len(t, got, 1)
	assert.Equal(t, image.Rect(600, 440, 640, 480), got[0].Rect)
}

func TestSetPass(t *testing.T) {
	face := &fakeCascade{}
	d := NewFaceDetector(config.LoadDetection(), face, nil)

	err := d.SetPass(config.PassConfig{Name: "default", ScaleFactor: 1.3, MinNeighbors: 4, MinSize: 60, MaxSize: 400})
	require.NoError(t, err)

	d.Detect(grayFrame(t), false)
	require.Len(t, face.calls, 3)
	assert.Equal(t, 1.3, face.calls[1].scale)
	assert.Equal(t, image.Pt(400, 400), face.calls[1].maxSize)

	assert.Error(t, d.SetPass(config.PassConfig{Name: "missing", ScaleFactor: 1.1}))
	assert.Error(t, d.SetPass(config.PassConfig{Name: "default", ScaleFactor: 1.0}))
	assert.Error(t, d.SetPass(config.PassConfig{Name: "default", ScaleFactor: 1.1, MinSize: 50, MaxSize: 40}))
}

func TestSetCascadeClosesPrevious(t *testing.T) {
	old := &fakeCascade{}
	d := NewFaceDetector(config.LoadDetection(), old, nil)

	d.SetFaceCascade(&fakeCascade{})
	assert.True(t, old.closed)

	d.SetEyeCascade(&fakeCascade{})
	assert.True(t, d.HasEyeCascade())

	d.Close()
	assert.False(t, d.HasFaceCascade())
}
