package capture

import (
	"errors"
	"image"
)

// ErrNotReady is returned when no frame can be sampled: capture is off,
// no device handle is attached, or the device has not decoded a frame yet.
var ErrNotReady = errors.New("capture: not ready")

// Source defines the interface for camera-like frame producers
type Source interface {
	// Name returns a human-readable name for this source
	Name() string

	// Start acquires the device and begins producing frames
	Start() error

	// Stop releases the device. Ready reports false afterwards.
	Stop() error

	// Frame returns the most recent frame. The returned image is owned by
	// the caller and is never written to again by the source.
	Frame() (*image.RGBA, error)

	// Dimensions returns the native resolution, 0x0 until known
	Dimensions() (width, height int)

	// Ready reports whether a frame can be sampled
	Ready() bool
}

// Opener acquires a new Source. Device selection lives behind it.
type Opener func() (Source, error)
