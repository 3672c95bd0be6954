package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/backdrop/internal/logger"
)

// Feed presents a possibly-absent live source to the compositor.
// It holds the handle and the "capture active" flag but never acquires
// or releases the device itself; that is the Session's job.
type Feed struct {
	mu      sync.RWMutex
	src     Source
	active  bool
	faulted bool
	gen     uint64
	width   int
	height  int
}

// NewFeed returns an inactive feed with no handle
func NewFeed() *Feed {
	return &Feed{}
}

// Attach sets the source handle
func (f *Feed) Attach(src Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.src = src
	f.faulted = false
	f.gen++
	f.refreshDimensionsLocked()
}

// Detach drops the source handle and returns it
func (f *Feed) Detach() Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.src
	f.src = nil
	f.gen++
	return src
}

// HasHandle reports whether a source is attached
func (f *Feed) HasHandle() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.src != nil
}

// SetActive sets the "should show video" flag
func (f *Feed) SetActive(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active != active {
		f.active = active
		f.gen++
	}
}

// Generation changes whenever the handle or the active flag changes. A frame
// sampled under one generation belongs to a capture that is gone once the
// generation moves on.
func (f *Feed) Generation() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.gen
}

// Active returns the "should show video" flag
func (f *Feed) Active() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.active
}

// Ready reports whether Latest can currently return a frame
func (f *Feed) Ready() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.active && f.src != nil && !f.faulted && f.src.Ready()
}

// Dimensions returns the last known native resolution of the source.
// It is 0x0 until a source has reported its size.
func (f *Feed) Dimensions() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshDimensionsLocked()
	return f.width, f.height
}

func (f *Feed) refreshDimensionsLocked() {
	if f.src == nil {
		return
	}
	if w, h := f.src.Dimensions(); w > 0 && h > 0 {
		f.width, f.height = w, h
	}
}

// Latest samples the newest frame. A source error marks the feed faulted
// until a later sample succeeds; it never panics.
func (f *Feed) Latest() (*image.RGBA, error) {
	f.mu.RLock()
	src := f.src
	active := f.active
	f.mu.RUnlock()

	if !active || src == nil || !src.Ready() {
		return nil, ErrNotReady
	}

	frame, err := src.Frame()
	if err != nil || frame == nil {
		f.mu.Lock()
		wasFaulted := f.faulted
		f.faulted = true
		f.mu.Unlock()
		if !wasFaulted {
			logger.WithComponent("capture").Warn().
				Err(err).
				Str("source", src.Name()).
				Msg("Capture source stopped delivering frames")
		}
		if err == nil {
			return nil, ErrNotReady
		}
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	f.mu.Lock()
	f.faulted = false
	if b := frame.Bounds(); b.Dx() > 0 && b.Dy() > 0 {
		f.width, f.height = b.Dx(), b.Dy()
	}
	f.mu.Unlock()
	return frame, nil
}
