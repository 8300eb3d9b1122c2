// Package vision wraps the OpenCV primitives used by the pipeline: frame
// enhancement, cascade face detection with eye verification, face patch
// normalization and Unicode text overlays.
package vision

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrInvalidImage is returned for empty frames or unsupported channel layouts.
var ErrInvalidImage = errors.New("invalid image")

const (
	claheClipLimit = 2.0
	claheTileSize  = 8
	medianKernel   = 3
)

// Enhance converts src to grayscale, equalizes local contrast with CLAHE and
// removes noise with a 3x3 median blur. The result has the dimensions of src
// and must be closed by the caller.
func Enhance(src gocv.Mat) (gocv.Mat, error) {
	gray, err := ToGray(src)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer gray.Close()

	clahe := gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTileSize, claheTileSize))
	defer clahe.Close()

	equalized := gocv.NewMat()
	defer equalized.Close()
	clahe.Apply(gray, &equalized)

	out := gocv.NewMat()
	gocv.MedianBlur(equalized, &out, medianKernel)
	return out, nil
}

// ToGray returns a single channel copy of src.
func ToGray(src gocv.Mat) (gocv.Mat, error) {
	if src.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: empty frame", ErrInvalidImage)
	}

	gray := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&gray)
	case 3:
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(src, &gray, gocv.ColorBGRAToGray)
	default:
		gray.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %d channels", ErrInvalidImage, src.Channels())
	}
	return gray, nil
}

// Bounds returns the rectangle covering the whole of m.
func Bounds(m gocv.Mat) image.Rectangle {
	return image.Rect(0, 0, m.Cols(), m.Rows())
}
