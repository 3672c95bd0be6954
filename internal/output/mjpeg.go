package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/backdrop/internal/logger"
)

// ErrNotRunning is returned by WriteFrame before Start or after Stop
var ErrNotRunning = errors.New("MJPEG output not running")

// MJPEGOutput streams composited frames as Motion JPEG over HTTP, so the
// result can be opened in a browser tab or any MJPEG-capable client.
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	// Current frame buffer; jpeg is encoded lazily for snapshots
	frameMu      sync.RWMutex
	currentFrame *image.RGBA
	currentJPEG  []byte
	lastUpdate   time.Time

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	// Stats
	frameCount atomic.Uint64
	encoded    atomic.Uint64
	startTime  time.Time
}

// Stats describes the stream
type Stats struct {
	Running    bool      `json:"running"`
	Frames     uint64    `json:"frames"`
	Encoded    uint64    `json:"encoded"`
	Clients    int       `json:"clients"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Quality    int       `json:"quality"`
	ActualFPS  float64   `json:"actual_fps"`
	LastUpdate time.Time `json:"last_update"`
	Uptime     string    `json:"uptime"`
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output.
// The HTTP handlers are mounted separately.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount.Store(0)
	m.encoded.Store(0)

	logger.WithComponent("mjpeg").Info().
		Int("quality", m.config.quality()).
		Int("fps", m.config.FPS).
		Msg("Output started")
	return nil
}

// Stop cleanly shuts down the output
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	// Close all client connections
	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().
		Uint64("frames", m.frameCount.Load()).
		Msg("Output stopped")
	return nil
}

// WriteFrame publishes a frame. It is only encoded when a client is watching.
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return ErrNotRunning
	}

	m.frameMu.Lock()
	m.currentFrame = frame
	m.currentJPEG = nil
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.frameCount.Add(1)

	if m.ClientCount() == 0 {
		return nil
	}

	jpegData, err := m.encodeCurrent()
	if err != nil {
		return err
	}

	// Broadcast to all clients
	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// encodeCurrent returns the JPEG of the current frame, encoding at most once per frame
func (m *MJPEGOutput) encodeCurrent() ([]byte, error) {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()

	if m.currentJPEG != nil {
		return m.currentJPEG, nil
	}
	if m.currentFrame == nil {
		return nil, nil
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, m.currentFrame, &jpeg.Options{Quality: m.config.quality()}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	m.currentJPEG = buf.Bytes()
	m.encoded.Add(1)
	return m.currentJPEG, nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// ClientCount returns the number of connected stream clients
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Stats returns a snapshot of the stream counters
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	running := m.running
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	lastUpdate := m.lastUpdate
	var w, h int
	if m.currentFrame != nil {
		w, h = m.currentFrame.Bounds().Dx(), m.currentFrame.Bounds().Dy()
	}
	m.frameMu.RUnlock()

	frames := m.frameCount.Load()
	s := Stats{
		Running:    running,
		Frames:     frames,
		Encoded:    m.encoded.Load(),
		Clients:    m.ClientCount(),
		Width:      w,
		Height:     h,
		Quality:    m.config.quality(),
		LastUpdate: lastUpdate,
	}
	if !startTime.IsZero() {
		elapsed := time.Since(startTime)
		s.Uptime = elapsed.Round(time.Second).String()
		if secs := elapsed.Seconds(); secs > 0 {
			s.ActualFPS = float64(frames) / secs
		}
	}
	return s
}

// GetHTTPHandler returns an http.Handler for the MJPEG stream
// Mount this at /stream or similar endpoint
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.IsRunning() {
			http.Error(w, ErrNotRunning.Error(), http.StatusServiceUnavailable)
			return
		}

		// Set headers for MJPEG stream
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		// Create channel for this client
		frameChan := make(chan []byte, 2) // Buffer 2 frames

		// Register client
		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("mjpeg")
		log.Info().Int("clients", clientCount).Msg("Stream client connected")

		// Cleanup on disconnect
		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Stream client disconnected")
		}()

		// Send headers now so a viewer connecting before the first draw is not left waiting
		w.WriteHeader(http.StatusOK)
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		// Start the client on the current frame instead of waiting for the next draw
		if jpegData, err := m.encodeCurrent(); err == nil && jpegData != nil {
			if writePart(w, jpegData) != nil {
				return
			}
		}

		// Stream frames to client
		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if writePart(w, jpegData) != nil {
					return
				}
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// GetSnapshotHandler serves the current frame as a single JPEG
func (m *MJPEGOutput) GetSnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jpegData, err := m.encodeCurrent()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if jpegData == nil {
			http.Error(w, "no frame drawn yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Content-Length", fmt.Sprint(len(jpegData)))
		w.Write(jpegData)
	}
}

// GetStatsHandler serves Stats as JSON
func (m *MJPEGOutput) GetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Stats())
	}
}
