//go:build gocv

package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/backdrop/internal/segment"
	"gocv.io/x/gocv"
)

// shadowLevel is the value MOG2 writes for detected shadows; those count as background
const shadowLevel = 127

// MOG2 segments by background subtraction. It learns the static scene over
// the first frames, so the subject should move into view after startup.
type MOG2 struct {
	mu     sync.Mutex
	sub    gocv.BackgroundSubtractorMOG2
	closed bool
}

// NewMOG2 creates a MOG2 segmenter
func NewMOG2() (segment.Segmenter, error) {
	return &MOG2{sub: gocv.NewBackgroundSubtractorMOG2()}, nil
}

// Segment updates the background model with frame and returns the foreground mask
func (m *MOG2) Segment(ctx context.Context, frame image.Image) (*image.Alpha, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer src.Close()

	fg := gocv.NewMat()
	defer fg.Close()

	// The subtractor keeps model state and is not safe for concurrent Apply
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.sub.Apply(src, &fg)
	m.mu.Unlock()

	img, err := fg.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert mask: %w", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("unexpected mask type %T", img)
	}

	b := gray.Bounds()
	mask := image.NewAlpha(b)
	for i, v := range gray.Pix {
		if v > shadowLevel {
			mask.Pix[i] = 0xff
		}
	}
	return mask, nil
}

// Close releases the OpenCV model
func (m *MOG2) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.sub.Close()
}
