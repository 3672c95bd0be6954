package compositor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/backdrop/internal/background"
	"github.com/bryanchriswhite/backdrop/internal/capture"
	"github.com/bryanchriswhite/backdrop/internal/config"
	"github.com/bryanchriswhite/backdrop/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	blue  = color.RGBA{B: 0xff, A: 0xff}
	white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	black = color.RGBA{A: 0xff}
)

// stubSource serves whatever frame the test sets
type stubSource struct {
	mu    sync.Mutex
	frame *image.RGBA
	ready bool
}

func (s *stubSource) Name() string { return "stub" }
func (s *stubSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return nil
}
func (s *stubSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	return nil
}
func (s *stubSource) Frame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, nil
}
func (s *stubSource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return 0, 0
	}
	return s.frame.Bounds().Dx(), s.frame.Bounds().Dy()
}
func (s *stubSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}
func (s *stubSource) set(f *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = f
}

// blockingLoader never finishes, so wallpapers stay loading
type blockingLoader struct{}

func (blockingLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// staticLoader returns img immediately
type staticLoader struct{ img image.Image }

func (l staticLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	return l.img, nil
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// checkerboard is a frame whose blur differs from itself everywhere
func checkerboard(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/2+y/2)%2 == 0 {
				img.SetRGBA(x, y, white)
			} else {
				img.SetRGBA(x, y, black)
			}
		}
	}
	return img
}

// leftHalf marks the left half of a w x h frame as foreground
func leftHalf(w, h int) *image.Alpha {
	m := image.NewAlpha(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			m.SetAlpha(x, y, color.Alpha{A: 0xff})
		}
	}
	return m
}

type fixture struct {
	comp     *Compositor
	src      *stubSource
	feed     *capture.Feed
	selector *background.Selector
	oracle   *segment.Oracle
}

func newFixture(t *testing.T, seg segment.Segmenter) *fixture {
	t.Helper()
	return newFixtureWithLoader(t, seg, blockingLoader{})
}

func newFixtureWithLoader(t *testing.T, seg segment.Segmenter, loader background.ImageLoader) *fixture {
	t.Helper()

	catalog, err := background.NewCatalog([]config.Wallpaper{
		{ID: "office", Name: "Office", URL: "https://example.invalid/office.jpg"},
	})
	require.NoError(t, err)
	selector := background.NewSelector(catalog, loader)
	t.Cleanup(selector.Close)

	src := &stubSource{}
	require.NoError(t, src.Start())
	feed := capture.NewFeed()
	feed.Attach(src)
	feed.SetActive(true)

	oracle := segment.NewOracle(seg, 2)
	comp := New(Options{
		Feed:              feed,
		Selector:          selector,
		Oracle:            oracle,
		FPS:               60,
		PlaceholderWidth:  32,
		PlaceholderHeight: 24,
	})
	t.Cleanup(comp.Close)

	return &fixture{comp: comp, src: src, feed: feed, selector: selector, oracle: oracle}
}

func (f *fixture) nextResult(t *testing.T) segment.Result {
	t.Helper()
	select {
	case r := <-f.oracle.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no segmentation result")
		return segment.Result{}
	}
}

// draw runs one tick and delivers its completion
func (f *fixture) draw(t *testing.T) {
	t.Helper()
	f.comp.tick()
	f.comp.complete(f.nextResult(t))
}

func maskSegmenter(mask func(b image.Rectangle) *image.Alpha) segment.Segmenter {
	return segment.SegmenterFunc(func(ctx context.Context, frame image.Image) (*image.Alpha, error) {
		return mask(frame.Bounds()), nil
	})
}

var leftHalfSegmenter = maskSegmenter(func(b image.Rectangle) *image.Alpha {
	return leftHalf(b.Dx(), b.Dy())
})

func TestPlaceholderWhenInactiveInEveryMode(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	f.feed.SetActive(false)

	for _, mode := range []background.Mode{background.Off, background.Blur, background.Wallpaper("office")} {
		require.NoError(t, f.comp.SetMode(mode))
		f.comp.tick()

		cur := f.comp.Surface().Current()
		require.NotNil(t, cur, mode.String())
		assert.Equal(t, image.Rect(0, 0, 32, 24), cur.Bounds(), mode.String())
		assert.Equal(t, PlaceholderColor, cur.RGBAAt(0, 0), mode.String())
	}
	assert.Equal(t, uint64(0), f.comp.Stats().Submitted)
}

func TestPlaceholderKeepsLastSurfaceSize(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	f.src.set(solid(40, 30, red))
	f.draw(t)

	f.feed.SetActive(false)
	f.comp.tick()
	assert.Equal(t, image.Rect(0, 0, 40, 30), f.comp.Surface().Current().Bounds())
}

func TestOffPassesFrameThrough(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	frame := checkerboard(16, 12)
	f.src.set(frame)

	f.draw(t)

	cur := f.comp.Surface().Current()
	require.NotNil(t, cur)
	assert.Equal(t, frame.Pix, cur.Pix)
	assert.NotSame(t, frame, cur)
}

func TestWallpaperLoadingUsesFallbackColor(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	require.NoError(t, f.comp.SetMode(background.Wallpaper("office")))
	f.src.set(solid(16, 12, red))

	f.draw(t)

	cur := f.comp.Surface().Current()
	require.NotNil(t, cur)
	assert.Equal(t, red, cur.RGBAAt(2, 5), "foreground keeps source pixel")
	assert.Equal(t, FallbackColor, cur.RGBAAt(12, 5), "background is the fallback fill")
}

func TestWallpaperReplacesBackground(t *testing.T) {
	wallpaper := solid(16, 12, blue)
	f := newFixtureWithLoader(t, leftHalfSegmenter, staticLoader{img: wallpaper})
	require.NoError(t, f.comp.SetMode(background.Wallpaper("office")))

	_, asset := f.selector.Snapshot()
	require.NotNil(t, asset)
	select {
	case <-asset.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("wallpaper did not load")
	}
	require.True(t, asset.Ready())

	f.src.set(solid(16, 12, red))
	f.draw(t)

	cur := f.comp.Surface().Current()
	require.NotNil(t, cur)
	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			want := blue
			if x < 8 {
				want = red
			}
			require.Equal(t, want, cur.RGBAAt(x, y), "pixel %d,%d", x, y)
		}
	}
}

func TestBlurReplacesBackgroundOnly(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	require.NoError(t, f.comp.SetMode(background.Blur))
	frame := checkerboard(32, 32)
	f.src.set(frame)

	f.draw(t)

	cur := f.comp.Surface().Current()
	require.NotNil(t, cur)
	for y := 0; y < 32; y++ {
		for x := 0; x < 16; x++ {
			require.Equal(t, frame.RGBAAt(x, y), cur.RGBAAt(x, y), "foreground at %d,%d", x, y)
		}
	}

	differs := 0
	for y := 0; y < 32; y++ {
		for x := 16; x < 32; x++ {
			if frame.RGBAAt(x, y) != cur.RGBAAt(x, y) {
				differs++
			}
			require.Equal(t, uint8(0xff), cur.RGBAAt(x, y).A)
		}
	}
	assert.Greater(t, differs, 16*32/2)
}

func TestComposeBinarizesSoftMask(t *testing.T) {
	frame := solid(4, 1, red)
	mask := image.NewAlpha(image.Rect(0, 0, 4, 1))
	mask.Pix = []uint8{0x00, 0x7f, 0x80, 0xff}

	out := Compose(frame, mask, background.Wallpaper("missing"), nil)
	assert.Equal(t, FallbackColor, out.RGBAAt(0, 0))
	assert.Equal(t, FallbackColor, out.RGBAAt(1, 0))
	assert.Equal(t, red, out.RGBAAt(2, 0))
	assert.Equal(t, red, out.RGBAAt(3, 0))
}

func TestComposeScalesMismatchedMask(t *testing.T) {
	frame := solid(8, 4, blue)
	mask := leftHalf(4, 2)

	out := Compose(frame, mask, background.Wallpaper("missing"), nil)
	require.Equal(t, frame.Bounds(), out.Bounds())
	assert.Equal(t, blue, out.RGBAAt(1, 1))
	assert.Equal(t, blue, out.RGBAAt(3, 3))
	assert.Equal(t, FallbackColor, out.RGBAAt(4, 0))
	assert.Equal(t, FallbackColor, out.RGBAAt(7, 3))
}

func TestComposeNilMaskPassesThrough(t *testing.T) {
	frame := checkerboard(6, 6)
	out := Compose(frame, nil, background.Blur, nil)
	assert.Equal(t, frame.Pix, out.Pix)
}

func TestSetModeIsIdempotent(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	require.NoError(t, f.comp.SetMode(background.Blur))
	frame := checkerboard(16, 16)
	f.src.set(frame)

	f.draw(t)
	first := append([]uint8(nil), f.comp.Surface().Current().Pix...)

	require.NoError(t, f.comp.SetMode(background.Blur))
	f.draw(t)
	assert.Equal(t, first, f.comp.Surface().Current().Pix)
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	a := solid(8, 8, red)
	b := solid(8, 8, blue)

	gen := f.feed.Generation()

	f.comp.complete(segment.Result{Seq: 2, Tag: gen, Image: b, Mask: image.NewAlpha(b.Bounds())})
	f.comp.complete(segment.Result{Seq: 1, Tag: gen, Image: a, Mask: image.NewAlpha(a.Bounds())})

	assert.Equal(t, blue, f.comp.Surface().Current().RGBAAt(0, 0))
	stats := f.comp.Stats()
	assert.Equal(t, uint64(1), stats.Stale)
	assert.Equal(t, uint64(2), stats.LastSeq)
	assert.Equal(t, uint64(1), stats.Drawn)
}

func TestOutOfOrderOracleCompletions(t *testing.T) {
	gates := map[uint8]chan struct{}{
		0xff: make(chan struct{}), // red frame
		0x00: make(chan struct{}), // blue frame
	}
	seg := segment.SegmenterFunc(func(ctx context.Context, frame image.Image) (*image.Alpha, error) {
		gate := gates[frame.(*image.RGBA).Pix[0]]
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return image.NewAlpha(frame.Bounds()), nil
	})
	f := newFixture(t, seg)

	f.src.set(solid(8, 8, red))
	f.comp.tick()
	f.src.set(solid(8, 8, blue))
	f.comp.tick()

	close(gates[0x00])
	second := f.nextResult(t)
	assert.Equal(t, uint64(2), second.Seq)
	f.comp.complete(second)

	close(gates[0xff])
	first := f.nextResult(t)
	assert.Equal(t, uint64(1), first.Seq)
	f.comp.complete(first)

	assert.Equal(t, blue, f.comp.Surface().Current().RGBAAt(4, 4))
	assert.Equal(t, uint64(1), f.comp.Stats().Stale)
}

func TestBusyOracleDropsFrames(t *testing.T) {
	release := make(chan struct{})
	seg := segment.SegmenterFunc(func(ctx context.Context, frame image.Image) (*image.Alpha, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return image.NewAlpha(frame.Bounds()), nil
	})
	f := newFixture(t, seg)
	defer close(release)
	f.src.set(solid(4, 4, red))

	for i := 0; i < 5; i++ {
		f.comp.tick()
	}
	stats := f.comp.Stats()
	assert.Equal(t, uint64(2), stats.Submitted)
	assert.Equal(t, uint64(3), stats.DroppedBusy)
}

func TestCaptureOffDiscardsInFlightCompletion(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	f.src.set(solid(8, 8, red))
	f.comp.tick()
	res := f.nextResult(t)

	session := capture.NewSession(func() (capture.Source, error) { return f.src, nil }, f.feed)
	require.NoError(t, session.SetActive(false))
	assert.False(t, f.feed.HasHandle())

	f.comp.complete(res)
	assert.Nil(t, f.comp.Surface().Current())
	assert.Equal(t, uint64(1), f.comp.Stats().Discarded)

	f.comp.tick()
	assert.Equal(t, PlaceholderColor, f.comp.Surface().Current().RGBAAt(0, 0))
}

func TestReacquiredCaptureDiscardsOldCompletion(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	f.src.set(solid(8, 8, red))
	f.comp.tick()
	res := f.nextResult(t)

	fresh := &stubSource{}
	fresh.set(solid(8, 8, blue))
	session := capture.NewSession(func() (capture.Source, error) { return fresh, nil }, f.feed)

	require.NoError(t, session.SetActive(false))
	f.comp.tick()
	assert.Equal(t, PlaceholderColor, f.comp.Surface().Current().RGBAAt(0, 0))

	require.NoError(t, session.SetActive(true))
	require.True(t, f.feed.Ready())

	// Late completion for the frame sampled from the first device
	f.comp.complete(res)
	assert.Equal(t, PlaceholderColor, f.comp.Surface().Current().RGBAAt(0, 0))
	assert.Equal(t, uint64(1), f.comp.Stats().Discarded)

	f.draw(t)
	assert.Equal(t, blue, f.comp.Surface().Current().RGBAAt(6, 4))
}

func TestSegmentationErrorSkipsDraw(t *testing.T) {
	seg := segment.SegmenterFunc(func(ctx context.Context, frame image.Image) (*image.Alpha, error) {
		return nil, errors.New("model failed")
	})
	f := newFixture(t, seg)
	f.src.set(solid(4, 4, red))

	f.draw(t)
	assert.Nil(t, f.comp.Surface().Current())
	assert.Equal(t, uint64(1), f.comp.Stats().Errors)
}

func TestCompletionAfterCloseIsIgnored(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	frame := solid(4, 4, red)

	f.comp.Close()
	f.comp.complete(segment.Result{Seq: 1, Tag: f.feed.Generation(), Image: frame, Mask: image.NewAlpha(frame.Bounds())})
	f.comp.tick()

	assert.Nil(t, f.comp.Surface().Current())
	assert.ErrorIs(t, f.comp.SetMode(background.Blur), ErrClosed)
	assert.False(t, f.oracle.Available())
}

func TestUnavailableOracleForcesOff(t *testing.T) {
	f := newFixture(t, nil)
	assert.False(t, f.comp.EffectsAvailable())
	assert.ErrorIs(t, f.comp.SetMode(background.Blur), ErrEffectsUnavailable)
	assert.ErrorIs(t, f.comp.SetMode(background.Wallpaper("office")), ErrEffectsUnavailable)
	require.NoError(t, f.comp.SetMode(background.Off))

	frame := checkerboard(8, 8)
	f.src.set(frame)
	f.comp.tick()

	cur := f.comp.Surface().Current()
	require.NotNil(t, cur)
	assert.Equal(t, frame.Pix, cur.Pix)
	assert.Equal(t, background.Off, f.comp.Mode())
}

func TestSurfaceTracksFrameSize(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	f.src.set(solid(10, 6, red))
	f.draw(t)
	w, h := f.comp.Surface().Size()
	assert.Equal(t, 10, w)
	assert.Equal(t, 6, h)

	f.src.set(solid(20, 12, red))
	f.draw(t)
	w, h = f.comp.Surface().Size()
	assert.Equal(t, 20, w)
	assert.Equal(t, 12, h)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, leftHalfSegmenter)
	f.src.set(solid(8, 8, red))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.comp.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.comp.Stats().Drawn > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.ErrorIs(t, f.comp.Run(context.Background()), ErrClosed)
}

func TestPlaceholderLabelIsDrawn(t *testing.T) {
	img := Placeholder(200, 100)
	found := false
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] != PlaceholderColor.R {
			found = true
			break
		}
	}
	assert.True(t, found)
	assert.Equal(t, PlaceholderColor, img.RGBAAt(0, 0))
}
