//go:build !gocv

package opencv

import (
	"github.com/bryanchriswhite/backdrop/internal/capture"
	"github.com/bryanchriswhite/backdrop/internal/segment"
)

// OpenWebcam is unavailable without gocv
func OpenWebcam(device, width, height, fps int) (capture.Source, error) {
	return nil, ErrNotBuilt
}

// NewMOG2 is unavailable without gocv
func NewMOG2() (segment.Segmenter, error) {
	return nil, ErrNotBuilt
}
