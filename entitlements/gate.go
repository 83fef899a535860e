package entitlements

import (
	"time"

	"github.com/PaulFidika/wallkit/catalog"
)

// Constraint names which premium rule denied a request.
type Constraint string

const (
	ConstraintResource   Constraint = "resource"
	ConstraintResolution Constraint = "resolution"
)

// RequiredError is returned when a premium plan is needed.
type RequiredError struct {
	Constraint Constraint
	Resolution catalog.Resolution
}

func (e *RequiredError) Error() string {
	if e.Constraint == ConstraintResolution {
		return "premium subscription required for " + string(e.Resolution) + " resolution"
	}
	return "premium subscription required for this wallpaper"
}

// Check decides whether ent may download a wallpaper with the given premium
// flag at resolution r. Active premium users pass every check.
func Check(ent Entitlement, premiumResource bool, r catalog.Resolution, now time.Time) error {
	if ent.Active(now) {
		return nil
	}
	if premiumResource {
		return &RequiredError{Constraint: ConstraintResource, Resolution: r}
	}
	if r.PremiumGated() {
		return &RequiredError{Constraint: ConstraintResolution, Resolution: r}
	}
	return nil
}
