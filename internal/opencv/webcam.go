//go:build gocv

package opencv

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/bryanchriswhite/backdrop/internal/capture"
	"github.com/bryanchriswhite/backdrop/internal/logger"
	"gocv.io/x/gocv"
)

var errNoFrame = errors.New("webcam: no frame decoded yet")

// stopTimeout bounds how long Stop waits for a read stuck on the device
var stopTimeout = 2 * time.Second

// frameReader is the part of gocv.VideoCapture the read loop uses
type frameReader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// Webcam reads a V4L/OpenCV capture device on its own goroutine and keeps
// only the latest decoded frame.
type Webcam struct {
	device        int
	width, height int
	fps           int

	mu       sync.RWMutex
	vc       frameReader
	latest   *image.RGBA
	nativeW  int
	nativeH  int
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// OpenWebcam creates a webcam source for the given device index.
// width, height and fps are requests; the device may choose otherwise.
func OpenWebcam(device, width, height, fps int) (capture.Source, error) {
	return &Webcam{device: device, width: width, height: height, fps: fps}, nil
}

// Name returns the source name
func (w *Webcam) Name() string {
	return fmt.Sprintf("Webcam %d", w.device)
}

// Start opens the device and starts the read loop
func (w *Webcam) Start() error {
	vc, err := gocv.OpenVideoCapture(w.device)
	if err != nil {
		return fmt.Errorf("failed to open capture device %d: %w", w.device, err)
	}
	if w.width > 0 && w.height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(w.width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(w.height))
	}
	if w.fps > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(w.fps))
	}

	w.start(vc)

	logger.WithComponent("webcam").Info().
		Int("device", w.device).
		Msg("Webcam opened")
	return nil
}

func (w *Webcam) start(vc frameReader) {
	w.mu.Lock()
	w.vc = vc
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	stop, done := w.stopChan, w.done
	w.mu.Unlock()

	go w.readLoop(vc, stop, done)
}

// readLoop owns vc and releases it on exit, so a Read blocked on the device
// never races with Close.
func (w *Webcam) readLoop(vc frameReader, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if err := vc.Close(); err != nil {
			logger.WithComponent("webcam").Warn().Err(err).Int("device", w.device).Msg("Failed to release webcam")
		}
	}()

	mat := gocv.NewMat()
	defer mat.Close()

	log := logger.WithComponent("webcam")
	for {
		select {
		case <-stop:
			return
		default:
		}

		if ok := vc.Read(&mat); !ok {
			log.Warn().Int("device", w.device).Msg("Webcam read failed, stopping")
			w.mu.Lock()
			w.running = false
			w.latest = nil
			w.mu.Unlock()
			return
		}
		if mat.Empty() {
			continue
		}

		img, err := mat.ToImage()
		if err != nil {
			log.Debug().Err(err).Msg("Failed to convert frame")
			continue
		}
		rgba, ok := img.(*image.RGBA)
		if !ok {
			b := img.Bounds()
			rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
			draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
		}

		w.mu.Lock()
		select {
		case <-stop:
			w.mu.Unlock()
			return
		default:
		}
		w.latest = rgba
		w.nativeW, w.nativeH = rgba.Bounds().Dx(), rgba.Bounds().Dy()
		w.mu.Unlock()
	}
}

// Stop halts the read loop. The device is released by the loop once its
// current read returns; Stop waits for that up to stopTimeout.
func (w *Webcam) Stop() error {
	w.mu.Lock()
	if w.vc == nil {
		w.mu.Unlock()
		return nil
	}
	w.vc = nil
	w.running = false
	w.latest = nil
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		logger.WithComponent("webcam").Warn().
			Int("device", w.device).
			Dur("timeout", stopTimeout).
			Msg("Webcam read still blocked, releasing device in background")
	}
	return nil
}

// Ready reports whether a frame has been decoded
func (w *Webcam) Ready() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running && w.latest != nil
}

// Dimensions returns the native size of the last decoded frame
func (w *Webcam) Dimensions() (int, int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.nativeW, w.nativeH
}

// Frame returns the latest decoded frame
func (w *Webcam) Frame() (*image.RGBA, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.latest == nil {
		return nil, errNoFrame
	}
	return w.latest, nil
}
