package entitlements

import (
	"context"
	"strings"
	"time"
)

// Tier is a subscription plan.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier maps a stored plan name to a Tier. Anything unrecognised is free.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPremium:
		return TierPremium
	default:
		return TierFree
	}
}

// Entitlement represents a user's plan, with optional expiry.
type Entitlement struct {
	UserID    string     `json:"user_id"`
	Tier      Tier       `json:"tier"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Free returns the entitlement assumed for users without a profile row.
func Free(userID string) Entitlement {
	return Entitlement{UserID: userID, Tier: TierFree}
}

// Active reports whether the user holds a premium plan that has not lapsed at now.
func (e Entitlement) Active(now time.Time) bool {
	if e.Tier != TierPremium {
		return false
	}
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// Source looks up a user's current entitlement.
type Source interface {
	GetEntitlement(ctx context.Context, userID string) (Entitlement, error)
}
