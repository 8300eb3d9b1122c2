package vision

import (
	"fmt"
	"image"
	"math"
	"slices"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/constants"
)

// SampleSize is the width and height of every stored and classified patch.
var SampleSize = image.Pt(constants.SampleWidth, constants.SampleHeight)

// Crop copies the part of m inside r, clipped to the frame.
func Crop(m gocv.Mat, r image.Rectangle) (gocv.Mat, error) {
	r = r.Intersect(Bounds(m))
	if r.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: face box outside frame", ErrInvalidImage)
	}
	region := m.Region(r)
	defer region.Close()
	return region.Clone(), nil
}

// Resize scales a patch to SampleSize. Patches already at that size are copied.
func Resize(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	if src.Cols() == SampleSize.X && src.Rows() == SampleSize.Y {
		src.CopyTo(&dst)
		return dst
	}
	gocv.Resize(src, &dst, SampleSize, 0, 0, gocv.InterpolationLinear)
	return dst
}

// FacePatch cuts a detection out of an enhanced grayscale frame and scales it
// to SampleSize. With align set and two eyes known, the face is first rotated
// so the eyes are level.
func FacePatch(gray gocv.Mat, det Detection, align bool) (gocv.Mat, error) {
	face, err := Crop(gray, det.Rect)
	if err != nil {
		return face, err
	}
	defer face.Close()

	if align {
		eyes := make([]image.Rectangle, 0, len(det.Eyes))
		for _, e := range det.Eyes {
			eyes = append(eyes, e.Sub(det.Rect.Min))
		}
		aligned := Align(face, eyes)
		defer aligned.Close()
		return Resize(aligned), nil
	}
	return Resize(face), nil
}

// Align rotates face around the midpoint of its two leftmost eyes so that the
// line between them is horizontal. Eye boxes are relative to the face patch.
// With fewer than two eyes the patch is copied unchanged.
func Align(face gocv.Mat, eyes []image.Rectangle) gocv.Mat {
	if len(eyes) < 2 {
		return face.Clone()
	}
	sorted := slices.Clone(eyes)
	slices.SortFunc(sorted, func(a, b image.Rectangle) int { return a.Min.X - b.Min.X })

	left, right := center(sorted[0]), center(sorted[1])
	angle := math.Atan2(float64(right.Y-left.Y), float64(right.X-left.X)) * 180 / math.Pi
	mid := image.Pt((left.X+right.X)/2, (left.Y+right.Y)/2)

	rotation := gocv.GetRotationMatrix2D(mid, angle, 1)
	defer rotation.Close()

	aligned := gocv.NewMat()
	gocv.WarpAffine(face, &aligned, rotation, image.Pt(face.Cols(), face.Rows()))
	return aligned
}

func center(r image.Rectangle) image.Point {
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}
