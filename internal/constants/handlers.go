package constants

import "time"

// File upload constants
const (
	// MaxUploadSize is the maximum image upload size in bytes (20MB)
	MaxUploadSize = 20 << 20
)

// Stream client constants
const (
	// StreamClientBuffer is the number of frames buffered per MJPEG client
	StreamClientBuffer = 2

	// StreamIdleTimeout closes an MJPEG response when no frame arrives in time
	StreamIdleTimeout = 10 * time.Second
)

// Request timeouts
const (
	// TrainTimeout bounds a synchronous retrain triggered over HTTP
	TrainTimeout = 10 * time.Minute
)
