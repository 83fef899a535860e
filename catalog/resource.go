package catalog

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by stores when no wallpaper matches the id.
var ErrNotFound = errors.New("resource_not_found")

// Resource is a wallpaper with one source location per resolution.
type Resource struct {
	ID            string
	Title         string
	Premium       bool
	Sources       map[Resolution]string
	DownloadCount int64
}

// Source returns the location for r, if the wallpaper has one.
func (res *Resource) Source(r Resolution) (string, bool) {
	if res == nil || res.Sources == nil {
		return "", false
	}
	u := strings.TrimSpace(res.Sources[r])
	return u, u != ""
}

// Store reads wallpapers.
type Store interface {
	GetResource(ctx context.Context, id string) (*Resource, error)
}
