package vision

import (
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/facematch"
)

// Cascade is the sliding-window detector primitive. *gocv.CascadeClassifier
// satisfies it.
type Cascade interface {
	DetectMultiScaleWithParams(img gocv.Mat, scale float64, minNeighbors, flags int, minSize, maxSize image.Point) []image.Rectangle
	Close() error
}

// Detection is a verified face box in frame coordinates.
type Detection struct {
	Rect      image.Rectangle
	EyesFound bool
	Eyes      []image.Rectangle // frame coordinates, empty unless EyesFound
}

// FaceDetector runs the cascade passes over an enhanced grayscale frame,
// verifies each candidate and drops overlapping duplicates.
// Cascades are not safe for concurrent use, so every Detect call holds the lock.
type FaceDetector struct {
	mu     sync.Mutex
	face   Cascade
	eye    Cascade
	passes []config.PassConfig
	eyeCfg config.EyeConfig
	aspect config.AspectConfig
}

// NewFaceDetector creates a detector. Either cascade may be nil: without a
// face cascade Detect returns nothing, without an eye cascade candidates are
// accepted on aspect ratio alone.
func NewFaceDetector(det config.DetectionConfig, face, eye Cascade) *FaceDetector {
	return &FaceDetector{
		face:   face,
		eye:    eye,
		passes: slices.Clone(det.Passes),
		eyeCfg: det.Eye,
		aspect: det.Aspect,
	}
}

// HasFaceCascade reports whether detection is possible.
func (d *FaceDetector) HasFaceCascade() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.face != nil
}

// HasEyeCascade reports whether candidates are verified by eye detection.
func (d *FaceDetector) HasEyeCascade() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eye != nil
}

// SetFaceCascade replaces the face cascade, closing the previous one.
func (d *FaceDetector) SetFaceCascade(c Cascade) {
	d.mu.Lock()
	defer d.mu.Unlock()
	closeCascade(d.face)
	d.face = c
}

// SetEyeCascade replaces the eye cascade, closing the previous one.
func (d *FaceDetector) SetEyeCascade(c Cascade) {
	d.mu.Lock()
	defer d.mu.Unlock()
	closeCascade(d.eye)
	d.eye = c
}

// Passes returns a copy of the pass table.
func (d *FaceDetector) Passes() []config.PassConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.passes)
}

// SetPass replaces the parameters of the named pass.
func (d *FaceDetector) SetPass(p config.PassConfig) error {
	if p.ScaleFactor <= 1 {
		return fmt.Errorf("scale factor must be greater than 1, got %v", p.ScaleFactor)
	}
	if p.MinNeighbors < 0 || p.MinSize < 0 || p.MaxSize < 0 {
		return fmt.Errorf("negative cascade parameter in pass %q", p.Name)
	}
	if p.MaxSize > 0 && p.MaxSize < p.MinSize {
		return fmt.Errorf("max size %d is below min size %d", p.MaxSize, p.MinSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.passes {
		if d.passes[i].Name == p.Name {
			d.passes[i] = p
			return nil
		}
	}
	return fmt.Errorf("unknown detection pass %q", p.Name)
}

// Detect returns verified, deduplicated faces in pass order, then cascade order.
//
// A candidate must have an aspect ratio within the configured bounds. When an
// eye cascade is loaded it is run on the upper half of the candidate; with
// requireEyes a candidate without eyes is dropped, otherwise it is kept with
// EyesFound unset.
func (d *FaceDetector) Detect(gray gocv.Mat, requireEyes bool) []Detection {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.face == nil || gray.Empty() {
		return nil
	}

	frame := Bounds(gray)
	dedup := facematch.NewDeduper(constants.DuplicateOverlap)
	var out []Detection
	for _, p := range d.passes {
		maxSize := image.Point{}
		if p.MaxSize > 0 {
			maxSize = image.Pt(p.MaxSize, p.MaxSize)
		}
		candidates := d.face.DetectMultiScaleWithParams(gray, p.ScaleFactor, p.MinNeighbors, 0,
			image.Pt(p.MinSize, p.MinSize), maxSize)

		for _, r := range candidates {
			r = r.Intersect(frame)
			if r.Empty() {
				continue
			}
			det, ok := d.verify(gray, r, requireEyes)
			if !ok || !dedup.Accept(r) {
				continue
			}
			out = append(out, det)
		}
	}
	return out
}

func (d *FaceDetector) verify(gray gocv.Mat, r image.Rectangle, requireEyes bool) (Detection, bool) {
	det := Detection{Rect: r}
	if !facematch.AspectWithin(r, d.aspect.Min, d.aspect.Max) {
		return det, false
	}
	if d.eye == nil {
		return det, true
	}

	det.Eyes = d.findEyes(gray, facematch.UpperHalf(r))
	det.EyesFound = len(det.Eyes) > 0
	if requireEyes && !det.EyesFound {
		return det, false
	}
	return det, true
}

func (d *FaceDetector) findEyes(gray gocv.Mat, roi image.Rectangle) []image.Rectangle {
	if roi.Empty() {
		return nil
	}
	region := gray.Region(roi)
	defer region.Close()

	minSize := image.Pt(d.eyeCfg.MinSize, d.eyeCfg.MinSize)
	eyes := d.eye.DetectMultiScaleWithParams(region, d.eyeCfg.ScaleFactor, d.eyeCfg.MinNeighbors, 0, minSize, image.Point{})
	for i := range eyes {
		eyes[i] = eyes[i].Add(roi.Min)
	}
	return eyes
}

// Close releases both cascades.
func (d *FaceDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	closeCascade(d.face)
	closeCascade(d.eye)
	d.face, d.eye = nil, nil
}

func closeCascade(c Cascade) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("closing cascade", "error", err)
	}
}
