package output

import (
	"image"
)

// Output defines the interface for frame consumers fed by the output surface.
// Every presented frame is handed to each running output:
// - MJPEG HTTP stream
// - JPEG snapshots
// - V4L2 virtual camera (not yet)
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output. The frame must not be
	// modified afterwards by either side.
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	// Quality is the JPEG quality, 1-100
	Quality int
	// FPS is the nominal rate frames are written at
	FPS int
}

// DefaultQuality is used when Config.Quality is out of range
const DefaultQuality = 85

func (c Config) quality() int {
	if c.Quality < 1 || c.Quality > 100 {
		return DefaultQuality
	}
	return c.Quality
}
