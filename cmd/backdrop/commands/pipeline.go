package commands

import (
	"fmt"
	"image/color"
	"io"

	"github.com/bryanchriswhite/backdrop/internal/capture"
	"github.com/bryanchriswhite/backdrop/internal/capture/testpattern"
	"github.com/bryanchriswhite/backdrop/internal/capture/x11"
	"github.com/bryanchriswhite/backdrop/internal/config"
	"github.com/bryanchriswhite/backdrop/internal/opencv"
	"github.com/bryanchriswhite/backdrop/internal/segment"
)

// newOpener returns the acquisition function for the configured capture backend
func newOpener(c config.CaptureConfig) (capture.Opener, error) {
	switch c.Backend {
	case config.CaptureTestPattern:
		return func() (capture.Source, error) {
			return testpattern.New(testpattern.Options{
				Width:  c.Width,
				Height: c.Height,
				FPS:    c.FPS,
			}), nil
		}, nil
	case config.CaptureX11:
		return func() (capture.Source, error) {
			return x11.New(c.RegionX, c.RegionY, c.Width, c.Height), nil
		}, nil
	case config.CaptureWebcam:
		return func() (capture.Source, error) {
			return opencv.OpenWebcam(c.Device, c.Width, c.Height, c.FPS)
		}, nil
	default:
		return nil, fmt.Errorf("unknown capture backend: %s", c.Backend)
	}
}

// newSegmenter builds the configured segmenter. SegmenterNone yields nil,
// which leaves background effects unavailable.
func newSegmenter(c config.SegmenterConfig) (segment.Segmenter, error) {
	switch c.Backend {
	case config.SegmenterNone:
		return nil, nil
	case config.SegmenterChroma:
		key := color.RGBA{R: c.KeyColor.R, G: c.KeyColor.G, B: c.KeyColor.B, A: 0xff}
		return segment.NewChroma(key, c.Tolerance), nil
	case config.SegmenterHTTP:
		if c.URL == "" {
			return nil, fmt.Errorf("segmenter backend %q requires a url", c.Backend)
		}
		return segment.NewHTTP(c.URL, c.Timeout), nil
	case config.SegmenterMOG2:
		return opencv.NewMOG2()
	default:
		return nil, fmt.Errorf("unknown segmenter backend: %s", c.Backend)
	}
}

// closeSegmenter releases segmenters that hold native resources
func closeSegmenter(seg segment.Segmenter) error {
	if c, ok := seg.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
