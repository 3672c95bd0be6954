package capture

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/backdrop/internal/logger"
)

// Session owns device acquisition for a Feed. Turning capture off stops the
// device and detaches it so the feed keeps no reference to the old handle.
type Session struct {
	open Opener
	feed *Feed
	mu   sync.Mutex
}

// NewSession creates a session bound to feed
func NewSession(open Opener, feed *Feed) *Session {
	return &Session{open: open, feed: feed}
}

// Feed returns the feed this session drives
func (s *Session) Feed() *Feed {
	return s.feed
}

// SetActive turns capture on or off. An acquisition failure leaves the feed
// active but without a handle, so the compositor keeps drawing the placeholder.
func (s *Session) SetActive(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.WithComponent("capture")

	if !active {
		s.feed.SetActive(false)
		if src := s.feed.Detach(); src != nil {
			if err := src.Stop(); err != nil {
				log.Warn().Err(err).Str("source", src.Name()).Msg("Failed to stop capture source")
			}
			log.Info().Str("source", src.Name()).Msg("Capture stopped")
		}
		return nil
	}

	s.feed.SetActive(true)
	if s.feed.HasHandle() {
		return nil
	}

	src, err := s.open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to acquire capture source")
		return fmt.Errorf("failed to acquire capture source: %w", err)
	}
	if err := src.Start(); err != nil {
		log.Error().Err(err).Str("source", src.Name()).Msg("Failed to start capture source")
		return fmt.Errorf("failed to start %s: %w", src.Name(), err)
	}

	s.feed.Attach(src)
	log.Info().Str("source", src.Name()).Msg("Capture started")
	return nil
}

// Close stops capture
func (s *Session) Close() error {
	return s.SetActive(false)
}
