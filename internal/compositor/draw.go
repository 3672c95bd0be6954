package compositor

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/bryanchriswhite/backdrop/internal/background"
	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// BlurSigma is the fixed gaussian sigma of the blurred background layer
	BlurSigma = 12.0

	// maskThreshold splits coverage into foreground (>=) and background
	maskThreshold = 0x80

	placeholderLabel = "Camera is off"
)

var (
	// FallbackColor fills the background while a wallpaper is missing or loading
	FallbackColor = color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}

	// PlaceholderColor fills the surface while capture is off
	PlaceholderColor = color.RGBA{R: 0x20, G: 0x21, B: 0x24, A: 0xff}

	placeholderTextColor = color.RGBA{R: 0xe8, G: 0xea, B: 0xed, A: 0xff}
)

// Placeholder renders the camera-off frame: a solid fill with a centered label
func Placeholder(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{PlaceholderColor}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(placeholderTextColor),
		Face: face,
	}
	textWidth := d.MeasureString(placeholderLabel).Ceil()
	ascent := face.Metrics().Ascent.Ceil()
	d.Dot = fixed.P((w-textWidth)/2, (h+ascent)/2)
	d.DrawString(placeholderLabel)
	return img
}

// Compose renders one output frame from a source frame and its mask under mode.
// Off or a nil mask passes the source through unmodified. Otherwise the mask
// is applied as a hard stencil and the background layer is drawn behind it.
// The result is a new image; frame and mask are not modified.
func Compose(frame *image.RGBA, mask *image.Alpha, mode background.Mode, asset *background.Asset) *image.RGBA {
	if mode.IsOff() || mask == nil {
		return passThrough(frame)
	}

	b := frame.Bounds()
	out := image.NewRGBA(b)

	// Keep only the source pixels the mask marks as foreground
	stencil := binarize(mask, b)
	draw.DrawMask(out, b, frame, b.Min, stencil, b.Min, draw.Src)

	// Then fill everything still transparent from the background layer
	drawBehind(out, backgroundLayer(frame, mode, asset))
	return out
}

func passThrough(frame *image.RGBA) *image.RGBA {
	out := image.NewRGBA(frame.Bounds())
	draw.Draw(out, out.Bounds(), frame, frame.Bounds().Min, draw.Src)
	return out
}

// backgroundLayer returns an opaque image covering frame's bounds
func backgroundLayer(frame *image.RGBA, mode background.Mode, asset *background.Asset) image.Image {
	b := frame.Bounds()
	switch mode.Kind {
	case background.KindBlur:
		return imaging.Blur(frame, BlurSigma)
	case background.KindWallpaper:
		if fitted := asset.Fitted(b.Dx(), b.Dy()); fitted != nil {
			return fitted
		}
	}
	return &image.Uniform{FallbackColor}
}

// binarize scales mask to bounds with nearest-neighbor sampling and snaps
// every coverage value to fully on or fully off
func binarize(mask *image.Alpha, bounds image.Rectangle) *image.Alpha {
	src := mask
	if mask.Bounds().Size() != bounds.Size() {
		src = image.NewAlpha(bounds)
		xdraw.NearestNeighbor.Scale(src, bounds, mask, mask.Bounds(), xdraw.Src, nil)
	}

	out := image.NewAlpha(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		si := src.PixOffset(src.Bounds().Min.X, y-bounds.Min.Y+src.Bounds().Min.Y)
		oi := out.PixOffset(bounds.Min.X, y)
		for x := 0; x < bounds.Dx(); x++ {
			if src.Pix[si+x] >= maskThreshold {
				out.Pix[oi+x] = 0xff
			}
		}
	}
	return out
}

// drawBehind composites layer underneath dst (destination-over): opaque dst
// pixels are kept and transparent ones take the layer's pixel. dst must not
// be a sub-image.
func drawBehind(dst *image.RGBA, layer image.Image) {
	b := dst.Bounds()
	bg := image.NewRGBA(b)
	draw.Draw(bg, b, layer, layer.Bounds().Min, draw.Src)

	// premultiplied: out = dst + layer * (1 - dstA)
	for i := 0; i < len(dst.Pix); i += 4 {
		inv := 0xff - uint32(dst.Pix[i+3])
		if inv == 0 {
			continue
		}
		dst.Pix[i] += uint8(uint32(bg.Pix[i]) * inv / 0xff)
		dst.Pix[i+1] += uint8(uint32(bg.Pix[i+1]) * inv / 0xff)
		dst.Pix[i+2] += uint8(uint32(bg.Pix[i+2]) * inv / 0xff)
		dst.Pix[i+3] += uint8(uint32(bg.Pix[i+3]) * inv / 0xff)
	}
}
