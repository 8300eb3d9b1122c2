package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/constants"
)

// Decode reads a color frame from encoded image bytes (JPEG, PNG, BMP).
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: no data", ErrInvalidImage)
	}
	m, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if m.Empty() {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("%w: undecodable image", ErrInvalidImage)
	}
	return m, nil
}

// EncodeJPEG encodes a frame at the stream quality.
func EncodeJPEG(m gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m, []int{int(gocv.IMWriteJpegQuality), constants.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// ReadGray loads an image file as a single channel matrix.
func ReadGray(path string) (gocv.Mat, error) {
	m := gocv.IMRead(path, gocv.IMReadGrayScale)
	if m.Empty() {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("%w: cannot read %s", ErrInvalidImage, path)
	}
	return m, nil
}

// WriteImage saves a matrix, choosing the format from the path extension.
func WriteImage(path string, m gocv.Mat) error {
	if !gocv.IMWrite(path, m) {
		return fmt.Errorf("writing %s failed", path)
	}
	return nil
}
