package vision

import (
	"errors"
	"fmt"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/constants"
)

// ErrNoCamera is returned when no capture device produced a frame.
var ErrNoCamera = errors.New("no working camera")

// FrameSource yields color frames.
type FrameSource interface {
	Read(dst *gocv.Mat) bool
	Close() error
}

// Camera is an opened capture device.
type Camera struct {
	capture *gocv.VideoCapture
	index   int
}

// OpenCamera opens the configured device. A negative index probes the first
// few devices and picks the first one that returns a frame.
func OpenCamera(cfg config.CameraConfig) (*Camera, error) {
	indices := []int{cfg.Index}
	if cfg.Index < 0 {
		indices = indices[:0]
		for i := range constants.CameraProbeCount {
			indices = append(indices, i)
		}
	}

	for _, idx := range indices {
		capture, err := gocv.OpenVideoCapture(idx)
		if err != nil {
			slog.Debug("camera not available", "index", idx, "error", err)
			continue
		}
		if !capture.IsOpened() || !probe(capture) {
			_ = capture.Close()
			continue
		}

		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
		capture.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
		slog.Info("camera opened", "index", idx, "width", cfg.Width, "height", cfg.Height, "fps", cfg.FPS)
		return &Camera{capture: capture, index: idx}, nil
	}
	return nil, fmt.Errorf("%w: tried devices %v", ErrNoCamera, indices)
}

func probe(capture *gocv.VideoCapture) bool {
	m := gocv.NewMat()
	defer m.Close()
	return capture.Read(&m) && !m.Empty()
}

// Index returns the device index in use.
func (c *Camera) Index() int {
	return c.index
}

// Read grabs the next frame into dst.
func (c *Camera) Read(dst *gocv.Mat) bool {
	return c.capture.Read(dst) && !dst.Empty()
}

// Close releases the device.
func (c *Camera) Close() error {
	return c.capture.Close()
}
