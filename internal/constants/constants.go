// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face sample constants
const (
	// SampleWidth is the width in pixels of every stored and classified face patch
	SampleWidth = 130

	// SampleHeight is the height in pixels of every stored and classified face patch
	SampleHeight = 100

	// MaxImagesPerSubject is the number of samples after which a collection session stops
	MaxImagesPerSubject = 200

	// SampleExtension is the file extension used for collected samples
	SampleExtension = ".png"
)

// Recognition threshold constants
const (
	// DefaultConfidenceThreshold is the LBPH distance below which a face is known.
	// Lower values = stricter matching
	DefaultConfidenceThreshold = 100.0

	// DefaultUnknownThreshold is the second cutoff used for the three-band split
	DefaultUnknownThreshold = 80.0
)

// Detection constants
const (
	// DuplicateOverlap is the share of the smaller box that an intersection must
	// exceed for two boxes to count as the same face
	DuplicateOverlap = 0.5
)

// Stream constants
const (
	// JPEGQuality is the quality used when encoding stream frames
	JPEGQuality = 85

	// FrameBoundary separates parts of the multipart MJPEG stream
	FrameBoundary = "frame"

	// ReadRetryDelay is the pause after a failed camera read
	ReadRetryDelay = 100 * time.Millisecond

	// ReopenAfterFailures is the number of consecutive failed reads before the camera is reopened
	ReopenAfterFailures = 50

	// CameraProbeCount is the number of device indices tried when no camera is configured
	CameraProbeCount = 3

	// CascadeRetryFrames is how often, in frames, a missing face cascade is reloaded
	CascadeRetryFrames = 30

	// CameraReopenMaxInterval caps the backoff between failed camera opens
	CameraReopenMaxInterval = 10 * time.Second

	// StatusPushInterval is how often the status document is pushed to event clients
	StatusPushInterval = time.Second
)

// Camera defaults
const (
	DefaultCameraWidth  = 640
	DefaultCameraHeight = 480
	DefaultCameraFPS    = 30
)

// Activity log constants
const (
	// LogRetentionDays is how long activity entries are kept
	LogRetentionDays = 30
)

// Accuracy test constants
const (
	// DefaultTestImagesPerPerson is the sample count drawn per subject by the accuracy test
	DefaultTestImagesPerPerson = 5
)
