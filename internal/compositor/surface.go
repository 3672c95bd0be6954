package compositor

import (
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/backdrop/internal/logger"
	"github.com/bryanchriswhite/backdrop/internal/output"
)

// Surface is the Output Surface: the most recently composited frame, sized
// to the capture source's native resolution. Presented images are never
// mutated afterwards, so readers and sinks may keep them.
type Surface struct {
	mu       sync.RWMutex
	width    int
	height   int
	current  *image.RGBA
	draws    uint64
	lastDraw time.Time
	sinks    []output.Output
}

// NewSurface returns a 0x0 surface
func NewSurface() *Surface {
	return &Surface{}
}

// AddSink registers a consumer fed after every successful draw
func (s *Surface) AddSink(o output.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, o)
}

// Resize sets the surface dimensions, reporting whether they changed
func (s *Surface) Resize(w, h int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.width == w && s.height == h {
		return false
	}
	logger.WithComponent("surface").Info().
		Int("from_width", s.width).
		Int("from_height", s.height).
		Int("width", w).
		Int("height", h).
		Msg("Output surface resized")
	s.width, s.height = w, h
	return true
}

// Size returns the surface dimensions
func (s *Surface) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// Current returns the last presented frame, or nil before the first draw
func (s *Surface) Current() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Snapshot returns a copy of the last presented frame
func (s *Surface) Snapshot() *image.RGBA {
	cur := s.Current()
	if cur == nil {
		return nil
	}
	cp := image.NewRGBA(cur.Bounds())
	copy(cp.Pix, cur.Pix)
	return cp
}

// Draws returns the number of presented frames and when the last one landed
func (s *Surface) Draws() (uint64, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draws, s.lastDraw
}

// present swaps in img and feeds the sinks
func (s *Surface) present(img *image.RGBA) {
	s.mu.Lock()
	s.current = img
	s.draws++
	s.lastDraw = time.Now()
	sinks := append([]output.Output(nil), s.sinks...)
	s.mu.Unlock()

	for _, sink := range sinks {
		if !sink.IsRunning() {
			continue
		}
		if err := sink.WriteFrame(img); err != nil {
			logger.WithComponent("surface").Debug().
				Err(err).
				Str("sink", sink.Name()).
				Msg("Failed to write frame to sink")
		}
	}
}
