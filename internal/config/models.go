package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/backdrop/internal/logger"
	"gopkg.in/yaml.v3"
)

// Capture backends
const (
	CaptureTestPattern = "testpattern"
	CaptureX11         = "x11"
	CaptureWebcam      = "webcam"
)

// Segmenter backends
const (
	SegmenterNone   = "none"
	SegmenterChroma = "chroma"
	SegmenterHTTP   = "http"
	SegmenterMOG2   = "mog2"
)

// RGB is a plain color triple used in the settings file
type RGB struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

// Wallpaper is one entry of the selectable background catalog
type Wallpaper struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// CaptureConfig selects and sizes the camera stand-in
type CaptureConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	Device  int    `json:"device" yaml:"device"`
	Width   int    `json:"width" yaml:"width"`
	Height  int    `json:"height" yaml:"height"`
	FPS     int    `json:"fps" yaml:"fps"`
	RegionX int    `json:"region_x" yaml:"region_x"`
	RegionY int    `json:"region_y" yaml:"region_y"`
	Active  bool   `json:"active" yaml:"active"`
}

// CompositorConfig controls the render loop
type CompositorConfig struct {
	FPS               int `json:"fps" yaml:"fps"`
	PlaceholderWidth  int `json:"placeholder_width" yaml:"placeholder_width"`
	PlaceholderHeight int `json:"placeholder_height" yaml:"placeholder_height"`
	MaxInFlight       int `json:"max_in_flight" yaml:"max_in_flight"`
}

// SegmenterConfig selects the segmentation capability
type SegmenterConfig struct {
	Backend   string        `json:"backend" yaml:"backend"`
	URL       string        `json:"url,omitempty" yaml:"url,omitempty"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	KeyColor  RGB           `json:"key_color" yaml:"key_color"`
	Tolerance int           `json:"tolerance" yaml:"tolerance"`
}

// BackgroundConfig is the mode restored at startup
type BackgroundConfig struct {
	Mode        string `json:"mode" yaml:"mode"`
	WallpaperID string `json:"wallpaper_id,omitempty" yaml:"wallpaper_id,omitempty"`
}

// OutputConfig configures Output Surface consumers
type OutputConfig struct {
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality"`
	// PreviewWindow opens a local X11 window showing the composited output
	PreviewWindow bool `json:"preview_window" yaml:"preview_window"`
	PreviewWidth  int  `json:"preview_width,omitempty" yaml:"preview_width,omitempty"`
	PreviewHeight int  `json:"preview_height,omitempty" yaml:"preview_height,omitempty"`
}

// Config represents the application configuration
type Config struct {
	ServerPort int              `json:"server_port" yaml:"server_port"`
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	Capture    CaptureConfig    `json:"capture" yaml:"capture"`
	Compositor CompositorConfig `json:"compositor" yaml:"compositor"`
	Segmenter  SegmenterConfig  `json:"segmenter" yaml:"segmenter"`
	Background BackgroundConfig `json:"background" yaml:"background"`
	Wallpapers []Wallpaper      `json:"wallpapers" yaml:"wallpapers"`
	Output     OutputConfig     `json:"output" yaml:"output"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/backdrop/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "backdrop", "config.yaml"), nil
}

// NewManager creates a new configuration manager.
// An empty configFile selects DefaultPath.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("wallpapers", len(m.config.Wallpapers)).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Capture: CaptureConfig{
			Backend: CaptureTestPattern,
			Width:   640,
			Height:  480,
			FPS:     30,
			Active:  true,
		},
		Compositor: CompositorConfig{
			FPS:               30,
			PlaceholderWidth:  640,
			PlaceholderHeight: 480,
			MaxInFlight:       2,
		},
		Segmenter: SegmenterConfig{
			Backend:   SegmenterChroma,
			Timeout:   2 * time.Second,
			KeyColor:  RGB{R: 0, G: 177, B: 64},
			Tolerance: 90,
		},
		Background: BackgroundConfig{
			Mode: "off",
		},
		Wallpapers: []Wallpaper{
			{ID: "office", Name: "Office", URL: "https://images.unsplash.com/photo-1497366216548-37526070297c?w=1280"},
			{ID: "beach", Name: "Beach", URL: "https://images.unsplash.com/photo-1507525428034-b723cf961d3e?w=1280"},
			{ID: "mountains", Name: "Mountains", URL: "https://images.unsplash.com/photo-1464822759023-fed622ff2c3b?w=1280"},
			{ID: "library", Name: "Library", URL: "https://images.unsplash.com/photo-1521587760476-6c12a4b040da?w=1280"},
		},
		Output: OutputConfig{
			JPEGQuality: 85,
		},
	}
}

// applyDefaults fills zero values left by a partial config file
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.ServerPort == 0 {
		cfg.ServerPort = def.ServerPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Capture.Backend == "" {
		cfg.Capture.Backend = def.Capture.Backend
	}
	if cfg.Capture.Width <= 0 || cfg.Capture.Height <= 0 {
		cfg.Capture.Width = def.Capture.Width
		cfg.Capture.Height = def.Capture.Height
	}
	if cfg.Capture.FPS <= 0 {
		cfg.Capture.FPS = def.Capture.FPS
	}
	if cfg.Compositor.FPS <= 0 {
		cfg.Compositor.FPS = def.Compositor.FPS
	}
	if cfg.Compositor.PlaceholderWidth <= 0 || cfg.Compositor.PlaceholderHeight <= 0 {
		cfg.Compositor.PlaceholderWidth = def.Compositor.PlaceholderWidth
		cfg.Compositor.PlaceholderHeight = def.Compositor.PlaceholderHeight
	}
	if cfg.Compositor.MaxInFlight <= 0 {
		cfg.Compositor.MaxInFlight = def.Compositor.MaxInFlight
	}
	if cfg.Segmenter.Backend == "" {
		cfg.Segmenter.Backend = def.Segmenter.Backend
	}
	if cfg.Segmenter.Timeout <= 0 {
		cfg.Segmenter.Timeout = def.Segmenter.Timeout
	}
	if cfg.Segmenter.Tolerance <= 0 {
		cfg.Segmenter.Tolerance = def.Segmenter.Tolerance
	}
	if cfg.Background.Mode == "" {
		cfg.Background.Mode = def.Background.Mode
	}
	if cfg.Wallpapers == nil {
		cfg.Wallpapers = []Wallpaper{}
	}
	if cfg.Output.JPEGQuality <= 0 || cfg.Output.JPEGQuality > 100 {
		cfg.Output.JPEGQuality = def.Output.JPEGQuality
	}
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.Capture.Backend {
	case CaptureTestPattern, CaptureX11, CaptureWebcam:
	default:
		return fmt.Errorf("unknown capture backend: %s", c.Capture.Backend)
	}

	switch c.Segmenter.Backend {
	case SegmenterNone, SegmenterChroma, SegmenterMOG2:
	case SegmenterHTTP:
		if c.Segmenter.URL == "" {
			return fmt.Errorf("segmenter backend %q requires a url", c.Segmenter.Backend)
		}
	default:
		return fmt.Errorf("unknown segmenter backend: %s", c.Segmenter.Backend)
	}

	seen := make(map[string]bool, len(c.Wallpapers))
	for _, w := range c.Wallpapers {
		if w.ID == "" || w.URL == "" {
			return fmt.Errorf("wallpaper entries require id and url")
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate wallpaper id: %s", w.ID)
		}
		seen[w.ID] = true
	}

	switch strings.ToLower(c.Background.Mode) {
	case "off", "blur":
	case "wallpaper":
		if !seen[c.Background.WallpaperID] {
			return fmt.Errorf("background wallpaper %q not in catalog", c.Background.WallpaperID)
		}
	default:
		return fmt.Errorf("unknown background mode: %s", c.Background.Mode)
	}

	return nil
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()

	return nil
}

// Reload re-reads the config file
func (m *Manager) Reload() error {
	return m.load()
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	cfg.Wallpapers = append([]Wallpaper(nil), m.config.Wallpapers...)
	return &cfg
}

// GetConfigPath returns the path of the backing file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// Update validates and replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// SetPort overrides the server port in memory
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.ServerPort = port
}

// SetLogLevel overrides the log level in memory
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}

// SetBackground persists the startup background mode
func (m *Manager) SetBackground(mode, wallpaperID string) error {
	m.mu.Lock()
	next := *m.config
	next.Background = BackgroundConfig{Mode: strings.ToLower(mode), WallpaperID: wallpaperID}
	if err := next.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = &next
	m.mu.Unlock()
	return m.Save()
}
