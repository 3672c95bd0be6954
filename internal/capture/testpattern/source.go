// Package testpattern provides a synthetic camera: a moving subject in front
// of a flat, chroma-keyable backdrop. It stands in for a webcam when none is present.
package testpattern

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/bryanchriswhite/backdrop/internal/logger"
)

var errStopped = errors.New("test pattern stopped")

// DefaultBackdrop is the green-screen color used when Options.Backdrop is unset
var DefaultBackdrop = color.RGBA{R: 0x00, G: 0xb1, B: 0x40, A: 0xff}

var (
	skinColor  = color.RGBA{R: 0xe0, G: 0xac, B: 0x69, A: 0xff}
	shirtColor = color.RGBA{R: 0x2b, G: 0x4c, B: 0x9a, A: 0xff}
)

// Options configures the generator
type Options struct {
	Width    int
	Height   int
	FPS      int
	Backdrop color.RGBA
}

// Source generates frames on its own ticker; Frame returns the newest one
type Source struct {
	opts Options

	mu       sync.RWMutex
	latest   *image.RGBA
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a test pattern source
func New(opts Options) *Source {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Backdrop.A == 0 {
		opts.Backdrop = DefaultBackdrop
	}
	return &Source{opts: opts}
}

// Name returns the source name
func (s *Source) Name() string {
	return "Test Pattern"
}

// Start begins generating frames
func (s *Source) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	logger.WithComponent("testpattern").Info().
		Int("width", s.opts.Width).
		Int("height", s.opts.Height).
		Int("fps", s.opts.FPS).
		Msg("Test pattern started")
	return nil
}

func (s *Source) loop() {
	defer s.wg.Done()

	interval := time.Second / time.Duration(s.opts.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n := 0
	s.publish(Render(s.opts, n))
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			n++
			s.publish(Render(s.opts, n))
		}
	}
}

func (s *Source) publish(frame *image.RGBA) {
	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()
}

// Stop halts generation and forgets the last frame
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.latest = nil
	s.mu.Unlock()
	return nil
}

// Ready reports whether a frame has been generated
func (s *Source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running && s.latest != nil
}

// Dimensions returns the configured size once the first frame exists
func (s *Source) Dimensions() (int, int) {
	if !s.Ready() {
		return 0, 0
	}
	return s.opts.Width, s.opts.Height
}

// Frame returns the newest generated frame
func (s *Source) Frame() (*image.RGBA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running || s.latest == nil {
		return nil, errStopped
	}
	return s.latest, nil
}

// Render draws frame n of the pattern: a head-and-shoulders subject that
// sweeps horizontally across the backdrop.
func Render(opts Options, n int) *image.RGBA {
	w, h := opts.Width, opts.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	bd := opts.Backdrop
	bd.A = 0xff
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = bd.R
		img.Pix[i+1] = bd.G
		img.Pix[i+2] = bd.B
		img.Pix[i+3] = 0xff
	}

	// Triangle wave over 4 seconds at the configured fps
	period := 4 * opts.FPS
	if period <= 0 {
		period = 120
	}
	phase := n % period
	if phase > period/2 {
		phase = period - phase
	}
	span := w / 3
	cx := w/3 + span*phase*2/period
	radius := h / 6
	headCY := h/2 - radius/2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := x-cx, y-headCY
			switch {
			case dx*dx+dy*dy <= radius*radius:
				img.SetRGBA(x, y, skinColor)
			case y > headCY+radius && x > cx-2*radius && x < cx+2*radius:
				img.SetRGBA(x, y, shirtColor)
			}
		}
	}
	return img
}
