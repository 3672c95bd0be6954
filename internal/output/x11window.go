package output

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/backdrop/internal/logger"
	xdraw "golang.org/x/image/draw"
)

// X11Window shows the composited frames in a local preview window
type X11Window struct {
	width  int
	height int

	conn    *xgb.Conn
	screen  *xproto.ScreenInfo
	window  xproto.Window
	gc      xproto.Gcontext
	bpp     int
	pad     int
	running bool
	mu      sync.RWMutex
}

// NewX11Window creates a preview window output of the given size
func NewX11Window(width, height int) *X11Window {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	return &X11Window{width: width, height: height}
}

// Start connects to the X server, then creates and maps the window
func (x *X11Window) Start() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.running {
		return fmt.Errorf("preview window already running")
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}
	screen := xproto.Setup(conn).DefaultScreen(conn)

	bpp, pad, err := pixmapFormat(xproto.Setup(conn), screen.RootDepth)
	if err != nil {
		conn.Close()
		return err
	}

	window, err := xproto.NewWindowId(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create window ID: %w", err)
	}

	// Create window with black background
	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
	}
	err = xproto.CreateWindowChecked(
		conn,
		screen.RootDepth,
		window,
		screen.Root,
		0, 0,
		uint16(x.width), uint16(x.height),
		0,
		xproto.WindowClassInputOutput,
		screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create window: %w", err)
	}

	x.conn, x.screen, x.window = conn, screen, window
	x.bpp, x.pad = bpp, pad

	if err := x.setWindowTitle("Backdrop - Preview"); err != nil {
		logger.WithComponent("preview").Warn().Err(err).Msg("Failed to set window title")
	}
	if err := x.setWindowClass("backdrop", "Backdrop"); err != nil {
		logger.WithComponent("preview").Warn().Err(err).Msg("Failed to set window class")
	}

	if err := xproto.MapWindowChecked(conn, window).Check(); err != nil {
		x.teardown()
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(conn)
	if err != nil {
		x.teardown()
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	if err := xproto.CreateGCChecked(conn, gc, xproto.Drawable(window), 0, nil).Check(); err != nil {
		x.teardown()
		return fmt.Errorf("failed to create GC: %w", err)
	}
	x.gc = gc
	conn.Sync()

	x.running = true
	logger.WithComponent("preview").Info().
		Int("width", x.width).
		Int("height", x.height).
		Uint32("window_id", uint32(window)).
		Msg("Preview window created")
	return nil
}

// Stop destroys the window and closes the connection
func (x *X11Window) Stop() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.running {
		return nil
	}
	x.teardown()
	x.running = false
	logger.WithComponent("preview").Info().Msg("Preview window closed")
	return nil
}

func (x *X11Window) teardown() {
	if x.gc != 0 {
		xproto.FreeGC(x.conn, x.gc)
		x.gc = 0
	}
	if x.window != 0 {
		xproto.DestroyWindow(x.conn, x.window)
		x.window = 0
	}
	x.conn.Sync()
	x.conn.Close()
}

// WriteFrame letterboxes frame into the window
func (x *X11Window) WriteFrame(frame *image.RGBA) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.running {
		return fmt.Errorf("preview window not running")
	}

	fitted := letterbox(frame, x.width, x.height)
	data, err := zPixmap(fitted, x.bpp, x.pad, x.screen.RootDepth)
	if err != nil {
		return err
	}

	err = xproto.PutImageChecked(
		x.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(x.window),
		x.gc,
		uint16(x.width),
		uint16(x.height),
		0, 0,
		0,
		x.screen.RootDepth,
		data,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to put image: %w", err)
	}
	return nil
}

// Name returns the output type name
func (x *X11Window) Name() string {
	return "X11 Preview Window"
}

// IsRunning returns true if the window is shown
func (x *X11Window) IsRunning() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.running
}

// letterbox scales src to fit w x h keeping its aspect ratio, centered on black
func letterbox(src *image.RGBA, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), &image.Uniform{image.Black}, image.Point{}, draw.Src)

	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return out
	}

	scale := float64(w) / float64(sb.Dx())
	if s := float64(h) / float64(sb.Dy()); s < scale {
		scale = s
	}
	dw := int(float64(sb.Dx()) * scale)
	dh := int(float64(sb.Dy()) * scale)
	ox := (w - dw) / 2
	oy := (h - dh) / 2

	xdraw.ApproxBiLinear.Scale(out, image.Rect(ox, oy, ox+dw, oy+dh), src, sb, xdraw.Src, nil)
	return out
}

// pixmapFormat finds bits-per-pixel and scanline padding (in bits) for depth
func pixmapFormat(setup *xproto.SetupInfo, depth byte) (int, int, error) {
	for _, f := range setup.PixmapFormats {
		if f.Depth == depth {
			return int(f.BitsPerPixel), int(f.ScanlinePad), nil
		}
	}
	return 0, 0, fmt.Errorf("no pixmap format for depth %d", depth)
}

// zPixmap packs img into the server's ZPixmap layout (BGR[x], padded rows)
func zPixmap(img *image.RGBA, bitsPerPixel, scanlinePad int, depth byte) ([]byte, error) {
	bytesPerPixel := bitsPerPixel / 8
	if bytesPerPixel != 3 && bytesPerPixel != 4 {
		return nil, fmt.Errorf("unsupported bits per pixel: %d", bitsPerPixel)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	padBytes := scanlinePad / 8
	if padBytes <= 0 {
		padBytes = 1
	}
	stride := ((w*bytesPerPixel + padBytes - 1) / padBytes) * padBytes

	data := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		si := img.PixOffset(b.Min.X, b.Min.Y+y)
		di := y * stride
		for x := 0; x < w; x++ {
			data[di] = img.Pix[si+2]
			data[di+1] = img.Pix[si+1]
			data[di+2] = img.Pix[si]
			if bytesPerPixel == 4 && depth == 32 {
				data[di+3] = img.Pix[si+3]
			}
			si += 4
			di += bytesPerPixel
		}
	}
	return data, nil
}

func (x *X11Window) setWindowTitle(title string) error {
	titleAtom, err := x.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := x.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(
		x.conn,
		xproto.PropModeReplace,
		x.window,
		titleAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

func (x *X11Window) setWindowClass(instance, class string) error {
	classAtom, err := x.getAtom("WM_CLASS")
	if err != nil {
		return err
	}

	// WM_CLASS format: instance\0class\0
	classStr := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(
		x.conn,
		xproto.PropModeReplace,
		x.window,
		classAtom,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

func (x *X11Window) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(x.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
