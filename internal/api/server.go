package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/backdrop/internal/background"
	"github.com/bryanchriswhite/backdrop/internal/capture"
	"github.com/bryanchriswhite/backdrop/internal/compositor"
	"github.com/bryanchriswhite/backdrop/internal/config"
	"github.com/bryanchriswhite/backdrop/internal/logger"
	"github.com/bryanchriswhite/backdrop/internal/output"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const version = "0.1.0"

// Deps are the components the control surface drives
type Deps struct {
	Compositor *compositor.Compositor
	Selector   *background.Selector
	Session    *capture.Session
	Stream     *output.MJPEGOutput
	// Config is optional; when set, background changes are persisted
	Config *config.Manager
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	deps     Deps
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	closed   bool

	mu        sync.RWMutex
	listeners []chan struct{}
}

// State is the externally visible pipeline state
type State struct {
	Mode             background.Mode `json:"background"`
	WallpaperState   string          `json:"wallpaper_state,omitempty"`
	CaptureActive    bool            `json:"capture_active"`
	CaptureReady     bool            `json:"capture_ready"`
	Width            int             `json:"width"`
	Height           int             `json:"height"`
	EffectsAvailable bool            `json:"effects_available"`
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Pipeline state
	api.HandleFunc("/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/state/stream", s.handleStateStream)
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	// Controls
	api.HandleFunc("/background", s.handleSetBackground).Methods("PUT")
	api.HandleFunc("/wallpapers", s.handleGetWallpapers).Methods("GET")
	api.HandleFunc("/capture", s.handleSetCapture).Methods("PUT")

	// Output surface
	if s.deps.Stream != nil {
		s.router.HandleFunc("/stream", s.deps.Stream.GetHTTPHandler()).Methods("GET")
		s.router.HandleFunc("/snapshot.jpg", s.deps.Stream.GetSnapshotHandler()).Methods("GET")
	}

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpSrv
	s.mu.Unlock()

	logger.WithComponent("api").Info().
		Str("addr", addr).
		Msgf("Starting server on http://localhost%s", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and closes state stream listeners
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.httpSrv
	for _, l := range s.listeners {
		close(l)
	}
	s.listeners = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// State assembles the current pipeline state
func (s *Server) State() State {
	mode, asset := s.deps.Selector.Snapshot()
	feed := s.deps.Session.Feed()
	w, h := feed.Dimensions()

	st := State{
		Mode:             mode,
		CaptureActive:    feed.Active(),
		CaptureReady:     feed.Ready(),
		Width:            w,
		Height:           h,
		EffectsAvailable: s.deps.Compositor.EffectsAvailable(),
	}
	if asset != nil {
		st.WallpaperState = string(asset.State())
	}
	return st
}

func (s *Server) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.listeners = append(s.listeners, ch)
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan struct{}) {
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

func (s *Server) notifyListeners() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, listener := range s.listeners {
		select {
		case listener <- struct{}{}:
		default:
			// A wakeup is already pending
		}
	}
}

// HTTP Handlers

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "healthy",
		"version":    version,
		"session_id": s.deps.Compositor.ID(),
	})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.State())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"compositor": s.deps.Compositor.Stats(),
	}
	if s.deps.Stream != nil {
		stats["stream"] = s.deps.Stream.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetWallpapers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Selector.Catalog().List())
}

func (s *Server) handleSetBackground(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode        string `json:"mode"`
		WallpaperID string `json:"wallpaper_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	mode, err := background.ParseMode(req.Mode, req.WallpaperID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.deps.Compositor.SetMode(mode); err != nil {
		switch {
		case errors.Is(err, background.ErrUnknownWallpaper):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, compositor.ErrEffectsUnavailable):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, compositor.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	if s.deps.Config != nil {
		if err := s.deps.Config.SetBackground(string(mode.Kind), mode.WallpaperID); err != nil {
			logger.WithComponent("api").Warn().Err(err).Msg("Failed to persist background mode")
		}
	}

	s.notifyListeners()
	writeJSON(w, http.StatusOK, s.State())
}

func (s *Server) handleSetCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, errors.New("missing field: active"))
		return
	}

	err := s.deps.Session.SetActive(*req.Active)
	s.notifyListeners()
	if err != nil {
		// Capture stays requested; the compositor shows the placeholder
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	modes := s.deps.Selector.Subscribe()
	defer s.deps.Selector.Unsubscribe(modes)
	changes := s.subscribe()
	defer s.unsubscribe(changes)

	// Detect client disconnect
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send initial state
	if err := conn.WriteJSON(s.State()); err != nil {
		log.Debug().Err(err).Msg("WebSocket write error")
		return
	}

	// Stream updates
	for {
		select {
		case <-gone:
			return
		case _, ok := <-modes:
			if !ok {
				return
			}
		case _, ok := <-changes:
			if !ok {
				return
			}
		}
		if err := conn.WriteJSON(s.State()); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}
