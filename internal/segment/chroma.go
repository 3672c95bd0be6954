package segment

import (
	"context"
	"image"
	"image/color"
	"image/draw"
)

// Chroma is a color-key segmenter: pixels farther than Tolerance (euclidean,
// 8-bit RGB) from Key are foreground.
type Chroma struct {
	Key       color.RGBA
	Tolerance int
}

// NewChroma creates a chroma-key segmenter
func NewChroma(key color.RGBA, tolerance int) *Chroma {
	return &Chroma{Key: key, Tolerance: tolerance}
}

// Segment computes the key mask for frame
func (c *Chroma) Segment(ctx context.Context, frame image.Image) (*image.Alpha, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, ok := frame.(*image.RGBA)
	if !ok {
		b := frame.Bounds()
		src = image.NewRGBA(b)
		draw.Draw(src, b, frame, b.Min, draw.Src)
	}

	b := src.Bounds()
	mask := image.NewAlpha(b)
	tol2 := c.Tolerance * c.Tolerance
	kr, kg, kb := int(c.Key.R), int(c.Key.G), int(c.Key.B)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		si := src.PixOffset(b.Min.X, y)
		mi := mask.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			dr := int(src.Pix[si]) - kr
			dg := int(src.Pix[si+1]) - kg
			db := int(src.Pix[si+2]) - kb
			if dr*dr+dg*dg+db*db > tol2 {
				mask.Pix[mi] = 0xff
			}
			si += 4
			mi++
		}
	}
	return mask, nil
}
