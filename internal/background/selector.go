package background

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/backdrop/internal/logger"
)

// Selector holds the single active Mode and the wallpaper asset that goes with it.
// Writers call Select; the compositor reads both with Snapshot once per draw.
type Selector struct {
	catalog *Catalog
	loader  ImageLoader
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.RWMutex
	mode      Mode
	asset     *Asset
	listeners []chan Mode
}

// NewSelector creates a selector starting in Off
func NewSelector(catalog *Catalog, loader ImageLoader) *Selector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Selector{
		catalog: catalog,
		loader:  loader,
		ctx:     ctx,
		cancel:  cancel,
		mode:    Off,
	}
}

// Catalog returns the wallpaper catalog
func (s *Selector) Catalog() *Catalog {
	return s.catalog
}

// Select switches the active mode. Switching to a wallpaper starts its load;
// re-selecting the current wallpaper keeps the cached asset.
func (s *Selector) Select(mode Mode) error {
	var next *Asset
	if mode.Kind == KindWallpaper {
		w, err := s.catalog.Lookup(mode.WallpaperID)
		if err != nil {
			return err
		}

		s.mu.RLock()
		current := s.asset
		s.mu.RUnlock()

		if current != nil && current.ID == w.ID && current.State() != AssetFailed {
			next = current
		} else {
			next = newAsset(w.ID, w.URL)
			next.start(s.ctx, s.loader)
		}
	} else if mode.Kind != KindOff && mode.Kind != KindBlur {
		return ErrInvalidMode
	}

	s.mu.Lock()
	prev := s.asset
	changed := s.mode != mode
	s.mode = mode
	s.asset = next
	s.mu.Unlock()

	if prev != nil && prev != next {
		prev.release()
	}

	if changed {
		logger.WithComponent("background").Info().
			Str("mode", mode.String()).
			Msg("Background mode changed")
		s.notifyListeners(mode)
	}
	return nil
}

// Snapshot returns the active mode and its asset (nil unless wallpaper)
func (s *Selector) Snapshot() (Mode, *Asset) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode, s.asset
}

// Mode returns the active mode
func (s *Selector) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Close cancels any wallpaper load and closes listeners
func (s *Selector) Close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		close(l)
	}
	s.listeners = nil
}

// Subscribe adds a listener for mode changes
func (s *Selector) Subscribe() chan Mode {
	ch := make(chan Mode, 10)
	s.mu.Lock()
	s.listeners = append(s.listeners, ch)
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (s *Selector) Unsubscribe(ch chan Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, listener := range s.listeners {
		if listener == ch {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (s *Selector) notifyListeners(mode Mode) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, listener := range s.listeners {
		select {
		case listener <- mode:
		default:
			// Skip if channel is full
		}
	}
}
