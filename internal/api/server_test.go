package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/backdrop/internal/api"
	"github.com/bryanchriswhite/backdrop/internal/background"
	"github.com/bryanchriswhite/backdrop/internal/capture"
	"github.com/bryanchriswhite/backdrop/internal/capture/testpattern"
	"github.com/bryanchriswhite/backdrop/internal/compositor"
	"github.com/bryanchriswhite/backdrop/internal/config"
	"github.com/bryanchriswhite/backdrop/internal/output"
	"github.com/bryanchriswhite/backdrop/internal/segment"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stalledLoader struct{}

func (stalledLoader) Load(ctx context.Context, ref string) (image.Image, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type harness struct {
	srv     *httptest.Server
	api     *api.Server
	comp    *compositor.Compositor
	session *capture.Session
	cfg     *config.Manager
}

func newHarness(t *testing.T, seg segment.Segmenter, open capture.Opener) *harness {
	t.Helper()

	cfg, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	catalog, err := background.NewCatalog(cfg.Get().Wallpapers)
	require.NoError(t, err)
	selector := background.NewSelector(catalog, stalledLoader{})
	t.Cleanup(selector.Close)

	if open == nil {
		open = func() (capture.Source, error) {
			return testpattern.New(testpattern.Options{Width: 64, Height: 48, FPS: 30}), nil
		}
	}
	feed := capture.NewFeed()
	session := capture.NewSession(open, feed)
	t.Cleanup(func() { session.Close() })

	stream := output.NewMJPEGOutput(output.Config{Quality: 80})
	require.NoError(t, stream.Start())
	t.Cleanup(func() { stream.Stop() })

	comp := compositor.New(compositor.Options{
		Feed:     feed,
		Selector: selector,
		Oracle:   segment.NewOracle(seg, 2),
		FPS:      30,
	})
	t.Cleanup(comp.Close)

	s := api.NewServer(api.Deps{
		Compositor: comp,
		Selector:   selector,
		Session:    session,
		Stream:     stream,
		Config:     cfg,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	return &harness{srv: srv, api: s, comp: comp, session: session, cfg: cfg}
}

func (h *harness) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

var chroma = segment.NewChroma(testpattern.DefaultBackdrop, 90)

func TestHealth(t *testing.T) {
	h := newHarness(t, chroma, nil)
	resp := h.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, h.comp.ID(), body["session_id"])
}

func TestSetBackground(t *testing.T) {
	h := newHarness(t, chroma, nil)

	resp := h.do(t, http.MethodPut, "/api/background", `{"mode":"wallpaper","wallpaper_id":"beach"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[api.State](t, resp)
	assert.Equal(t, background.Wallpaper("beach"), st.Mode)
	assert.Equal(t, string(background.AssetLoading), st.WallpaperState)

	assert.Equal(t, "wallpaper", h.cfg.Get().Background.Mode)
	assert.Equal(t, "beach", h.cfg.Get().Background.WallpaperID)
}

func TestSetBackgroundErrors(t *testing.T) {
	h := newHarness(t, chroma, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"mode":`, http.StatusBadRequest},
		{"unknown mode", `{"mode":"sepia"}`, http.StatusBadRequest},
		{"wallpaper without id", `{"mode":"wallpaper"}`, http.StatusBadRequest},
		{"unknown wallpaper", `{"mode":"wallpaper","wallpaper_id":"moon"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, http.MethodPut, "/api/background", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Equal(t, background.Off, h.comp.Mode())
}

func TestSetBackgroundWithoutSegmenter(t *testing.T) {
	h := newHarness(t, nil, nil)

	resp := h.do(t, http.MethodPut, "/api/background", `{"mode":"blur"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/state", "")
	st := decode[api.State](t, resp)
	assert.False(t, st.EffectsAvailable)
	assert.Equal(t, background.Off, st.Mode)
}

func TestWallpapers(t *testing.T) {
	h := newHarness(t, chroma, nil)
	resp := h.do(t, http.MethodGet, "/api/wallpapers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decode[[]config.Wallpaper](t, resp)
	require.Len(t, list, 4)
	assert.Equal(t, "office", list[0].ID)
}

func TestToggleCapture(t *testing.T) {
	h := newHarness(t, chroma, nil)

	resp := h.do(t, http.MethodPut, "/api/capture", `{"active":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[api.State](t, resp)
	assert.True(t, st.CaptureActive)
	assert.True(t, h.session.Feed().HasHandle())

	resp = h.do(t, http.MethodPut, "/api/capture", `{"active":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st = decode[api.State](t, resp)
	assert.False(t, st.CaptureActive)
	assert.False(t, st.CaptureReady)
	assert.False(t, h.session.Feed().HasHandle())

	resp = h.do(t, http.MethodPut, "/api/capture", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToggleCaptureAcquisitionFailure(t *testing.T) {
	h := newHarness(t, chroma, func() (capture.Source, error) {
		return nil, errors.New("no device")
	})

	resp := h.do(t, http.MethodPut, "/api/capture", `{"active":true}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.True(t, h.session.Feed().Active())
	assert.False(t, h.session.Feed().HasHandle())
}

func TestStats(t *testing.T) {
	h := newHarness(t, chroma, nil)
	resp := h.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]json.RawMessage](t, resp)
	assert.Contains(t, body, "compositor")
	assert.Contains(t, body, "stream")
}

func TestIndexAndCORS(t *testing.T) {
	h := newHarness(t, chroma, nil)

	resp := h.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = h.do(t, http.MethodOptions, "/api/background", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStateStream(t *testing.T) {
	h := newHarness(t, chroma, nil)

	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/api/state/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var st api.State
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, background.Off, st.Mode)

	resp := h.do(t, http.MethodPut, "/api/background", `{"mode":"blur"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Both the selector and the handler announce the change; wait for blur
	require.Eventually(t, func() bool {
		if err := conn.ReadJSON(&st); err != nil {
			return false
		}
		return st.Mode == background.Blur
	}, 5*time.Second, time.Millisecond)
}
