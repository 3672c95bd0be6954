package segment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"time"
)

// maxMaskBytes bounds a mask response
const maxMaskBytes = 16 << 20

// HTTP delegates segmentation to a remote model service. The frame is POSTed
// as PNG and the response body is a PNG mask: grayscale coverage, or an RGBA
// cutout whose alpha channel is the coverage.
type HTTP struct {
	URL    string
	Client *http.Client
}

// NewHTTP creates a remote segmenter
func NewHTTP(url string, timeout time.Duration) *HTTP {
	return &HTTP{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Segment sends frame to the service and decodes the returned mask
func (h *HTTP) Segment(ctx context.Context, frame image.Image) (*image.Alpha, error) {
	var body bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&body, frame); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "image/png")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("segmentation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("segmentation service returned %s", resp.Status)
	}

	img, err := png.Decode(io.LimitReader(resp.Body, maxMaskBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask: %w", err)
	}
	return toAlpha(img), nil
}

// toAlpha converts a decoded mask image into coverage values. Images that
// carry transparency are read by alpha (cutouts); fully opaque ones (RGB,
// gray, paletted 1-bit masks) are read by luminance.
func toAlpha(img image.Image) *image.Alpha {
	switch m := img.(type) {
	case *image.Alpha:
		return m
	case *image.Gray:
		b := m.Bounds()
		out := image.NewAlpha(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			copy(out.Pix[out.PixOffset(b.Min.X, y):], m.Pix[m.PixOffset(b.Min.X, y):m.PixOffset(b.Max.X, y)])
		}
		return out
	}

	byLuminance := false
	if o, ok := img.(interface{ Opaque() bool }); ok {
		byLuminance = o.Opaque()
	}

	b := img.Bounds()
	out := image.NewAlpha(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.At(x, y)
			if byLuminance {
				out.SetAlpha(x, y, color.Alpha{A: color.GrayModel.Convert(c).(color.Gray).Y})
				continue
			}
			out.SetAlpha(x, y, color.AlphaModel.Convert(c).(color.Alpha))
		}
	}
	return out
}
