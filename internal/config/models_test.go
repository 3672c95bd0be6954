package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	m, err := NewManager(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	cfg := m.Get()
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, CaptureTestPattern, cfg.Capture.Backend)
	assert.Equal(t, "off", cfg.Background.Mode)
	assert.NotEmpty(t, cfg.Wallpapers)
}

func TestLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `server_port: 9191
segmenter:
  backend: none
wallpapers:
  - id: a
    name: A
    url: file:///tmp/a.png
background:
  mode: wallpaper
  wallpaper_id: a
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, 9191, cfg.ServerPort)
	assert.Equal(t, SegmenterNone, cfg.Segmenter.Backend)
	assert.Equal(t, 2*time.Second, cfg.Segmenter.Timeout)
	assert.Equal(t, 30, cfg.Compositor.FPS)
	assert.Equal(t, "a", cfg.Background.WallpaperID)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown capture":   "capture:\n  backend: v4l2\n",
		"http without url":  "segmenter:\n  backend: http\n",
		"unknown wallpaper": "background:\n  mode: wallpaper\n  wallpaper_id: nope\nwallpapers: []\n",
		"duplicate ids":     "wallpapers:\n  - {id: a, url: x}\n  - {id: a, url: y}\n",
		"bad mode":          "background:\n  mode: sepia\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
			_, err := NewManager(path)
			assert.Error(t, err)
		})
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	cfg := m.Get()
	cfg.ServerPort = 1
	cfg.Wallpapers[0].ID = "mutated"

	again := m.Get()
	assert.Equal(t, 8080, again.ServerPort)
	assert.NotEqual(t, "mutated", again.Wallpapers[0].ID)
}

func TestSetBackgroundPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	require.NoError(t, m.SetBackground("Wallpaper", "beach"))
	assert.Error(t, m.SetBackground("wallpaper", "missing"))

	reloaded, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, "wallpaper", reloaded.Get().Background.Mode)
	assert.Equal(t, "beach", reloaded.Get().Background.WallpaperID)
}
