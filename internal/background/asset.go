package background

import (
	"context"
	"image"
	"image/draw"
	"sync"

	"github.com/bryanchriswhite/backdrop/internal/logger"
	"github.com/disintegration/imaging"
)

// AssetState tracks a wallpaper load
type AssetState string

const (
	AssetLoading AssetState = "loading"
	AssetReady   AssetState = "ready"
	AssetFailed  AssetState = "failed"
)

// ImageLoader fetches an image by reference
type ImageLoader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// Asset is one wallpaper image, loaded asynchronously and cached until the mode changes.
// A nil or zero-sized image means "not loaded"; callers fall back to a solid color.
type Asset struct {
	ID  string
	URL string

	mu     sync.RWMutex
	state  AssetState
	img    image.Image
	err    error
	fitted *image.RGBA
	cancel context.CancelFunc
	done   chan struct{}
}

func newAsset(id, ref string) *Asset {
	return &Asset{
		ID:    id,
		URL:   ref,
		state: AssetLoading,
		done:  make(chan struct{}),
	}
}

// start begins loading in the background
func (a *Asset) start(parent context.Context, loader ImageLoader) {
	ctx, cancel := context.WithCancel(parent)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	go func() {
		defer close(a.done)
		defer cancel()

		log := logger.WithComponent("wallpaper")
		img, err := loader.Load(ctx, a.URL)

		a.mu.Lock()
		defer a.mu.Unlock()
		if err != nil {
			a.state = AssetFailed
			a.err = err
			log.Warn().Err(err).Str("id", a.ID).Msg("Wallpaper failed to load, using fallback color")
			return
		}
		b := img.Bounds()
		if b.Dx() == 0 || b.Dy() == 0 {
			a.state = AssetFailed
			log.Warn().Str("id", a.ID).Msg("Wallpaper has zero dimensions, using fallback color")
			return
		}
		a.img = img
		a.state = AssetReady
		log.Info().
			Str("id", a.ID).
			Int("width", b.Dx()).
			Int("height", b.Dy()).
			Msg("Wallpaper loaded")
	}()
}

// release cancels an in-progress load
func (a *Asset) release() {
	a.mu.RLock()
	cancel := a.cancel
	a.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the load state
func (a *Asset) State() AssetState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Err returns the load error, if any
func (a *Asset) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Ready reports whether the image finished loading with nonzero natural dimensions
func (a *Asset) Ready() bool {
	if a == nil {
		return false
	}
	return a.State() == AssetReady
}

// Image returns the decoded image or nil
func (a *Asset) Image() image.Image {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.img
}

// Done is closed when the load finishes, successfully or not
func (a *Asset) Done() <-chan struct{} {
	return a.done
}

// Fitted returns the wallpaper scaled and center-cropped to exactly w x h,
// or nil when the asset is not ready. The last result is cached.
func (a *Asset) Fitted(w, h int) *image.RGBA {
	if !a.Ready() || w <= 0 || h <= 0 {
		return nil
	}

	a.mu.RLock()
	fitted := a.fitted
	src := a.img
	a.mu.RUnlock()

	if fitted != nil && fitted.Bounds().Dx() == w && fitted.Bounds().Dy() == h {
		return fitted
	}

	nrgba := imaging.Fill(src, w, h, imaging.Center, imaging.Lanczos)
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), nrgba, nrgba.Bounds().Min, draw.Src)

	a.mu.Lock()
	a.fitted = out
	a.mu.Unlock()
	return out
}
