// Package compositor drives the background-replacement render loop: it samples
// the capture feed once per display refresh, hands frames to the segmentation
// oracle, and composites each returned mask onto the Output Surface.
package compositor

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/backdrop/internal/background"
	"github.com/bryanchriswhite/backdrop/internal/capture"
	"github.com/bryanchriswhite/backdrop/internal/logger"
	"github.com/bryanchriswhite/backdrop/internal/segment"
	"github.com/google/uuid"
)

var (
	ErrClosed             = errors.New("compositor: closed")
	ErrEffectsUnavailable = errors.New("compositor: background effects unavailable")
)

// Options configures a Compositor
type Options struct {
	Feed     *capture.Feed
	Selector *background.Selector
	// Oracle may be nil or unavailable; effects are then forced Off
	Oracle  *segment.Oracle
	Surface *Surface

	// FPS is the tick rate standing in for the display refresh
	FPS int

	// Placeholder size used while the surface is still 0x0
	PlaceholderWidth  int
	PlaceholderHeight int
}

// Stats are cumulative counters for one compositor lifetime
type Stats struct {
	SessionID   string    `json:"session_id"`
	Ticks       uint64    `json:"ticks"`
	IdleTicks   uint64    `json:"idle_ticks"`
	Submitted   uint64    `json:"submitted"`
	DroppedBusy uint64    `json:"dropped_busy"`
	Stale       uint64    `json:"stale"`
	Discarded   uint64    `json:"discarded"`
	Errors      uint64    `json:"errors"`
	Drawn       uint64    `json:"drawn"`
	LastSeq     uint64    `json:"last_seq"`
	LastDraw    time.Time `json:"last_draw"`
}

type counters struct {
	ticks       atomic.Uint64
	idleTicks   atomic.Uint64
	submitted   atomic.Uint64
	droppedBusy atomic.Uint64
	stale       atomic.Uint64
	discarded   atomic.Uint64
	errors      atomic.Uint64
	drawn       atomic.Uint64
	lastSeq     atomic.Uint64
}

// Compositor owns the render loop and the oracle handle. The feed is only
// referenced; the capture session that owns it may stop it at any time.
//
// All drawing happens on the goroutine running Run: ticks and oracle
// completions are serialized by one select loop, so the surface never sees
// concurrent writers.
type Compositor struct {
	id       string
	feed     *capture.Feed
	selector *background.Selector
	oracle   *segment.Oracle
	surface  *Surface
	interval time.Duration
	defaultW int
	defaultH int

	alive     atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool

	// loop goroutine only
	lastSeq     uint64
	placeholder *image.RGBA
	wasIdle     bool

	stats counters
}

// New creates a compositor. It does not start the loop.
func New(opts Options) *Compositor {
	fps := opts.FPS
	if fps <= 0 {
		fps = 30
	}
	w, h := opts.PlaceholderWidth, opts.PlaceholderHeight
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	surface := opts.Surface
	if surface == nil {
		surface = NewSurface()
	}

	c := &Compositor{
		id:       uuid.NewString(),
		feed:     opts.Feed,
		selector: opts.Selector,
		oracle:   opts.Oracle,
		surface:  surface,
		interval: time.Second / time.Duration(fps),
		defaultW: w,
		defaultH: h,
		done:     make(chan struct{}),
	}
	c.alive.Store(true)

	log := logger.WithComponent("compositor")
	if !c.EffectsAvailable() {
		if err := c.selector.Select(background.Off); err != nil {
			log.Warn().Err(err).Msg("Failed to force background off")
		}
		log.Warn().Msg("Segmentation unavailable, background effects disabled")
	}

	log.Info().
		Str("session_id", c.id).
		Int("fps", fps).
		Bool("effects", c.EffectsAvailable()).
		Msg("Compositor created")
	return c
}

// ID returns the compositor session id
func (c *Compositor) ID() string {
	return c.id
}

// Surface returns the output surface
func (c *Compositor) Surface() *Surface {
	return c.surface
}

// EffectsAvailable reports whether blur and wallpaper modes can be used
func (c *Compositor) EffectsAvailable() bool {
	return c.oracle.Available()
}

// SetMode changes the background mode. Non-off modes fail when no oracle is available.
func (c *Compositor) SetMode(mode background.Mode) error {
	if !c.alive.Load() {
		return ErrClosed
	}
	if !mode.IsOff() && !c.EffectsAvailable() {
		return ErrEffectsUnavailable
	}
	return c.selector.Select(mode)
}

// Mode returns the active background mode
func (c *Compositor) Mode() background.Mode {
	return c.selector.Mode()
}

// Run ticks until ctx is cancelled or Close is called, then tears down.
func (c *Compositor) Run(ctx context.Context) error {
	if !c.alive.Load() {
		return ErrClosed
	}
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("compositor: already running")
	}
	defer c.Close()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var results <-chan segment.Result
	if c.oracle.Available() {
		results = c.oracle.Results()
	}

	logger.WithComponent("compositor").Info().
		Str("session_id", c.id).
		Dur("interval", c.interval).
		Msg("Render loop started")

	c.tick()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-ticker.C:
			c.tick()
		case res := <-results:
			c.complete(res)
		}
	}
}

// Close stops the loop and releases the oracle. No draws happen afterwards.
func (c *Compositor) Close() {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		close(c.done)
		c.oracle.Close()
		logger.WithComponent("compositor").Info().
			Str("session_id", c.id).
			Msg("Compositor closed")
	})
}

// tick is one render-loop iteration
func (c *Compositor) tick() {
	if !c.alive.Load() {
		return
	}
	c.stats.ticks.Add(1)

	log := logger.WithComponent("compositor")

	// Read before sampling so a frame is never tagged with a newer generation
	gen := c.feed.Generation()
	frame, err := c.feed.Latest()
	if err != nil {
		if !c.wasIdle {
			log.Info().Str("session_id", c.id).Msg("Capture idle, showing placeholder")
			c.wasIdle = true
		}
		c.stats.idleTicks.Add(1)
		c.drawPlaceholder()
		return
	}
	if c.wasIdle {
		log.Info().Str("session_id", c.id).Msg("Capture active")
		c.wasIdle = false
	}

	b := frame.Bounds()
	c.surface.Resize(b.Dx(), b.Dy())

	if !c.oracle.Available() {
		c.present(passThrough(frame))
		return
	}

	seq, err := c.oracle.Submit(frame, gen)
	switch {
	case errors.Is(err, segment.ErrBusy):
		c.stats.droppedBusy.Add(1)
		log.Trace().Msg("Oracle busy, dropping frame")
	case err != nil:
		c.stats.errors.Add(1)
		log.Warn().Err(err).Msg("Failed to submit frame")
	default:
		c.stats.submitted.Add(1)
		log.Trace().Uint64("seq", seq).Msg("Frame submitted")
	}
}

// complete handles one oracle completion. A completion older than the last
// drawn one is discarded, so the surface never goes backwards in time.
func (c *Compositor) complete(res segment.Result) {
	log := logger.WithComponent("compositor")

	if !c.alive.Load() {
		c.stats.discarded.Add(1)
		return
	}
	if res.Seq <= c.lastSeq {
		c.stats.stale.Add(1)
		log.Debug().
			Uint64("seq", res.Seq).
			Uint64("last_seq", c.lastSeq).
			Msg("Discarding stale segmentation result")
		return
	}
	if res.Err != nil {
		c.stats.errors.Add(1)
		log.Debug().Err(res.Err).Uint64("seq", res.Seq).Msg("Segmentation failed, skipping draw")
		return
	}
	if res.Tag != c.feed.Generation() || !c.feed.Ready() {
		// Capture went off, or was reacquired, while this frame was in flight
		c.stats.discarded.Add(1)
		log.Debug().Uint64("seq", res.Seq).Msg("Discarding result from a previous capture")
		return
	}

	mode, asset := c.selector.Snapshot()
	out := Compose(res.Image, res.Mask, mode, asset)

	b := res.Image.Bounds()
	c.surface.Resize(b.Dx(), b.Dy())
	c.lastSeq = res.Seq
	c.stats.lastSeq.Store(res.Seq)
	c.present(out)
}

func (c *Compositor) drawPlaceholder() {
	w, h := c.surface.Size()
	if w == 0 || h == 0 {
		w, h = c.defaultW, c.defaultH
		c.surface.Resize(w, h)
	}
	if c.placeholder == nil || c.placeholder.Bounds().Dx() != w || c.placeholder.Bounds().Dy() != h {
		c.placeholder = Placeholder(w, h)
	}
	c.present(c.placeholder)
}

func (c *Compositor) present(img *image.RGBA) {
	if !c.alive.Load() {
		return
	}
	c.surface.present(img)
	c.stats.drawn.Add(1)
}

// Stats returns a snapshot of the counters
func (c *Compositor) Stats() Stats {
	_, last := c.surface.Draws()
	return Stats{
		SessionID:   c.id,
		Ticks:       c.stats.ticks.Load(),
		IdleTicks:   c.stats.idleTicks.Load(),
		Submitted:   c.stats.submitted.Load(),
		DroppedBusy: c.stats.droppedBusy.Load(),
		Stale:       c.stats.stale.Load(),
		Discarded:   c.stats.discarded.Load(),
		Errors:      c.stats.errors.Load(),
		Drawn:       c.stats.drawn.Load(),
		LastSeq:     c.stats.lastSeq.Load(),
		LastDraw:    last,
	}
}
