package background

import (
	"fmt"

	"github.com/bryanchriswhite/backdrop/internal/config"
)

// Catalog is the static, read-only list of selectable wallpapers
type Catalog struct {
	entries []config.Wallpaper
	byID    map[string]int
}

// NewCatalog indexes the given wallpapers. Ids must be unique and non-empty.
func NewCatalog(wallpapers []config.Wallpaper) (*Catalog, error) {
	c := &Catalog{
		entries: make([]config.Wallpaper, 0, len(wallpapers)),
		byID:    make(map[string]int, len(wallpapers)),
	}
	for _, w := range wallpapers {
		if w.ID == "" {
			return nil, fmt.Errorf("wallpaper %q has no id", w.Name)
		}
		if _, dup := c.byID[w.ID]; dup {
			return nil, fmt.Errorf("duplicate wallpaper id: %s", w.ID)
		}
		c.byID[w.ID] = len(c.entries)
		c.entries = append(c.entries, w)
	}
	return c, nil
}

// Lookup returns the wallpaper with the given id
func (c *Catalog) Lookup(id string) (config.Wallpaper, error) {
	i, ok := c.byID[id]
	if !ok {
		return config.Wallpaper{}, fmt.Errorf("%w: %s", ErrUnknownWallpaper, id)
	}
	return c.entries[i], nil
}

// List returns the catalog in declaration order
func (c *Catalog) List() []config.Wallpaper {
	return append([]config.Wallpaper(nil), c.entries...)
}

// Len returns the number of wallpapers
func (c *Catalog) Len() int {
	return len(c.entries)
}
