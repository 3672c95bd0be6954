package x11

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/backdrop/internal/logger"
)

var errNotStarted = errors.New("x11 source not started")

// Source grabs a fixed region of the X11 root window as a camera stand-in
type Source struct {
	x, y          int
	width, height int

	mu     sync.Mutex
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	ready  bool
}

// New creates a source for the region at (x, y) sized width x height
func New(x, y, width, height int) *Source {
	return &Source{x: x, y: y, width: width, height: height}
}

// Name returns the source name
func (s *Source) Name() string {
	return "X11"
}

// Start connects to the X server and clamps the region to the screen
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	s.conn = conn
	s.screen = screen
	s.root = screen.Root

	sw, sh := int(screen.WidthInPixels), int(screen.HeightInPixels)
	if s.x+s.width > sw {
		s.width = sw - s.x
	}
	if s.y+s.height > sh {
		s.height = sh - s.y
	}
	if s.width <= 0 || s.height <= 0 {
		conn.Close()
		s.conn = nil
		return fmt.Errorf("capture region (%d,%d) is outside the %dx%d screen", s.x, s.y, sw, sh)
	}

	s.ready = true
	logger.WithComponent("x11-source").Info().
		Int("x", s.x).
		Int("y", s.y).
		Int("width", s.width).
		Int("height", s.height).
		Uint8("depth", screen.RootDepth).
		Msg("X11 region capture started")
	return nil
}

// Stop closes the X11 connection
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.ready = false
	return nil
}

// Dimensions returns the region size once started
func (s *Source) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return 0, 0
	}
	return s.width, s.height
}

// Ready reports whether the connection is up
func (s *Source) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Frame captures the region of the root window
func (s *Source) Frame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, errNotStarted
	}

	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.root),
		int16(s.x), int16(s.y),
		uint16(s.width), uint16(s.height),
		0xffffffff,
	).Reply()
	if err != nil {
		s.ready = false
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return convertImageData(reply.Data, s.width, s.height, int(s.screen.RootDepth)), nil
}

// convertImageData converts 24/32-bit BGRx X11 image data to opaque RGBA
func convertImageData(data []byte, width, height, depth int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if depth != 24 && depth != 32 {
		return img
	}

	n := width * height * 4
	if len(data) < n {
		n = len(data) - len(data)%4
	}
	for i := 0; i < n; i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 0xff
	}
	return img
}
