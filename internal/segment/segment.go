// Package segment adapts an opaque foreground/background segmentation
// capability to the compositor's frame loop.
package segment

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrUnavailable means no segmentation capability is configured
	ErrUnavailable = errors.New("segment: oracle unavailable")
	// ErrBusy means the in-flight bound was reached and the frame was dropped
	ErrBusy = errors.New("segment: too many frames in flight")
	// ErrClosed means the oracle has been released
	ErrClosed = errors.New("segment: oracle closed")
)

// Segmenter computes a per-pixel foreground coverage mask for one frame.
// 255 marks foreground, 0 background. The mask should match the frame's
// dimensions; callers scale it when it does not.
type Segmenter interface {
	Segment(ctx context.Context, frame image.Image) (*image.Alpha, error)
}

// SegmenterFunc adapts a function to Segmenter
type SegmenterFunc func(ctx context.Context, frame image.Image) (*image.Alpha, error)

// Segment calls f
func (f SegmenterFunc) Segment(ctx context.Context, frame image.Image) (*image.Alpha, error) {
	return f(ctx, frame)
}
