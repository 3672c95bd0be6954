package background

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/afero"
	_ "golang.org/x/image/webp"
)

// maxWallpaperBytes bounds a single wallpaper download
const maxWallpaperBytes = 32 << 20

// Loader fetches and decodes wallpaper images.
// http(s) URLs go through Client, everything else is read from Fs.
type Loader struct {
	Client *http.Client
	Fs     afero.Fs
}

// NewLoader returns a loader using the OS filesystem and the given HTTP timeout
func NewLoader(timeout time.Duration) *Loader {
	return &Loader{
		Client: &http.Client{Timeout: timeout},
		Fs:     afero.NewOsFs(),
	}
}

// Load fetches the image at ref
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	rc, err := l.open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	img, _, err := image.Decode(io.LimitReader(rc, maxWallpaperBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode wallpaper %s: %w", ref, err)
	}
	return img, nil
}

func (l *Loader) open(ctx context.Context, ref string) (io.ReadCloser, error) {
	u, err := url.Parse(ref)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		client := l.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch wallpaper: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to fetch wallpaper: %s", resp.Status)
		}
		return resp.Body, nil
	}

	path := strings.TrimPrefix(ref, "file://")
	fs := l.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallpaper: %w", err)
	}
	return f, nil
}
