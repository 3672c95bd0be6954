package background

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the background-replacement selections
type Kind string

const (
	KindOff       Kind = "off"
	KindBlur      Kind = "blur"
	KindWallpaper Kind = "wallpaper"
)

var (
	ErrInvalidMode      = errors.New("background: invalid mode")
	ErrUnknownWallpaper = errors.New("background: unknown wallpaper")
)

// Mode is the active background selection. WallpaperID is only set for KindWallpaper.
type Mode struct {
	Kind        Kind   `json:"mode"`
	WallpaperID string `json:"wallpaper_id,omitempty"`
}

var (
	Off  = Mode{Kind: KindOff}
	Blur = Mode{Kind: KindBlur}
)

// Wallpaper returns a wallpaper mode for the given catalog id
func Wallpaper(id string) Mode {
	return Mode{Kind: KindWallpaper, WallpaperID: id}
}

// ParseMode builds a Mode from user input
func ParseMode(kind, wallpaperID string) (Mode, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindOff, "":
		return Off, nil
	case KindBlur:
		return Blur, nil
	case KindWallpaper:
		if wallpaperID == "" {
			return Mode{}, fmt.Errorf("%w: wallpaper mode requires an id", ErrInvalidMode)
		}
		return Wallpaper(wallpaperID), nil
	default:
		return Mode{}, fmt.Errorf("%w: %q", ErrInvalidMode, kind)
	}
}

// IsOff reports whether effects are disabled
func (m Mode) IsOff() bool {
	return m.Kind == KindOff || m.Kind == ""
}

func (m Mode) String() string {
	if m.Kind == KindWallpaper {
		return string(m.Kind) + ":" + m.WallpaperID
	}
	if m.Kind == "" {
		return string(KindOff)
	}
	return string(m.Kind)
}
