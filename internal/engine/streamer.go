package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gocv.io/x/gocv"

	"github.com/kozaktomas/facecam/internal/config"
	"github.com/kozaktomas/facecam/internal/constants"
	"github.com/kozaktomas/facecam/internal/vision"
)

// Hub fans encoded frames out to stream clients. Slow clients miss frames
// instead of holding up the camera loop.
type Hub struct {
	mu        sync.RWMutex
	listeners []chan []byte
	latest    []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers a client. The latest frame, if any, is queued at once.
func (h *Hub) Subscribe() chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan []byte, constants.StreamClientBuffer)
	if h.latest != nil {
		ch <- h.latest
	}
	h.listeners = append(h.listeners, ch)
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, listener := range h.listeners {
		if listener == ch {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish hands a frame to every client whose buffer has room.
func (h *Hub) Publish(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = frame
	for _, listener := range h.listeners {
		select {
		case listener <- frame:
		default:
			// Client buffer full, skip.
		}
	}
}

// Latest returns the most recent frame.
func (h *Hub) Latest() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Clients returns the number of subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Opener opens a frame source for the given settings.
type Opener func(cfg config.CameraConfig) (vision.FrameSource, error)

// OpenCamera is the Opener for real devices.
func OpenCamera(cfg config.CameraConfig) (vision.FrameSource, error) {
	c, err := vision.OpenCamera(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Streamer is the camera loop: it reads frames, runs them through the
// Runtime and publishes the annotated JPEGs.
type Streamer struct {
	rt   *Runtime
	hub  *Hub
	open Opener
}

// NewStreamer creates a camera loop feeding hub.
func NewStreamer(rt *Runtime, hub *Hub, open Opener) *Streamer {
	return &Streamer{rt: rt, hub: hub, open: open}
}

func newReopenBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = constants.CameraReopenMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run processes frames until ctx is cancelled. A failed read is retried
// after a short pause; after repeated failures, or when the camera settings
// change, the device is reopened. Opening is retried with backoff forever.
func (s *Streamer) Run(ctx context.Context) error {
	frame := gocv.NewMat()
	defer frame.Close()

	var cam vision.FrameSource
	closeCamera := func() {
		if cam != nil {
			if err := cam.Close(); err != nil {
				slog.Debug("closing camera", "error", err)
			}
			cam = nil
		}
		s.rt.cameraReady.Store(false)
	}
	defer closeCamera()

	reopen := newReopenBackoff()
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-s.rt.cameraChanged:
			slog.Info("camera settings changed, reopening")
			closeCamera()
			reopen.Reset()
		default:
		}

		if cam == nil {
			c, err := s.open(s.rt.Camera())
			if err != nil {
				wait := reopen.NextBackOff()
				slog.Warn("opening camera failed", "error", err, "retry_in", wait)
				if !sleep(ctx, wait) {
					return nil
				}
				continue
			}
			cam = c
			failures = 0
			reopen.Reset()
		}

		if !cam.Read(&frame) {
			s.rt.cameraReady.Store(false)
			failures++
			if failures >= constants.ReopenAfterFailures {
				slog.Warn("camera stopped delivering frames, reopening", "failures", failures)
				closeCamera()
				failures = 0
			}
			if !sleep(ctx, constants.ReadRetryDelay) {
				return nil
			}
			continue
		}
		failures = 0
		s.rt.cameraReady.Store(true)

		if err := s.step(&frame); err != nil {
			slog.Warn("frame dropped", "error", err)
		}
	}
}

// step renders and publishes one frame. A panic in the native bindings
// drops the frame only.
func (s *Streamer) step(frame *gocv.Mat) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("frame processing panicked: %v", p)
		}
	}()
	jpeg, err := s.rt.RenderFrame(frame)
	if err != nil {
		return err
	}
	s.hub.Publish(jpeg)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
