// Package catalog holds the wallpaper resources that downloads are issued for.
package catalog

import (
	"fmt"
	"strings"
)

// Resolution is a quality tier of a wallpaper.
type Resolution string

const (
	Standard Resolution = "standard"
	High     Resolution = "high"
	Ultra    Resolution = "ultra"
)

// Resolutions lists every supported tier, lowest first.
var Resolutions = []Resolution{Standard, High, Ultra}

// ParseResolution accepts a client-supplied resolution. Empty means Standard.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return Standard, nil
	case Standard, High, Ultra:
		return r, nil
	default:
		return "", fmt.Errorf("unknown resolution %q", s)
	}
}

// PremiumGated reports whether the tier needs an active premium plan
// regardless of the wallpaper's own premium flag.
func (r Resolution) PremiumGated() bool {
	return r == High || r == Ultra
}

func (r Resolution) String() string { return string(r) }
