// Package ratelimit bounds how many download grants a free-tier user receives
// in a rolling window.
//
// The default EventWindow policy counts recorded download events. It is a
// plain count-then-grant check: two concurrent requests can both observe the
// same count, and a user can take a full quota at either edge of a window.
// The SlidingWindow policy over Redis adds and counts in one transaction and
// does not share that race.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// Bucket is the settings name and limiter bucket for download grants.
	Bucket = "download_grant"

	DefaultLimit  = 10
	DefaultWindow = time.Hour
)

var (
	ErrRateLimitExceeded    = errors.New("rate_limit_exceeded")
	ErrRateLimitUnavailable = errors.New("rate_limit_unavailable")
)

// Settings are the thresholds edited from the admin console.
type Settings struct {
	Limit      int           `json:"limit"`
	Window     time.Duration `json:"-"`
	FailClosed bool          `json:"fail_closed"`
	UpdatedAt  *time.Time    `json:"updated_at,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{Limit: DefaultLimit, Window: DefaultWindow}
}

// Validate bounds admin edits.
func (s Settings) Validate() error {
	if s.Limit < 1 || s.Limit > 10000 {
		return errors.New("limit must be between 1 and 10000")
	}
	if s.Window < time.Minute || s.Window > 24*time.Hour {
		return errors.New("window must be between 1 minute and 24 hours")
	}
	return nil
}

// SettingsStore persists named Settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, name string) (Settings, bool, error)
	PutSettings(ctx context.Context, name string, s Settings) error
}

// Policy decides whether userID may take one more grant under s.
type Policy interface {
	Allow(ctx context.Context, userID string, s Settings, now time.Time) (bool, error)
}

// EventCounter counts a user's download events since a point in time.
type EventCounter interface {
	CountDownloadsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// EventWindow denies once the user has Limit events within Window.
type EventWindow struct {
	Counter EventCounter
}

func (p EventWindow) Allow(ctx context.Context, userID string, s Settings, now time.Time) (bool, error) {
	n, err := p.Counter.CountDownloadsSince(ctx, userID, now.Add(-s.Window))
	if err != nil {
		return false, err
	}
	return n < s.Limit, nil
}

// WindowLimiter is satisfied by the memory and Redis sliding-window limiters.
type WindowLimiter interface {
	AllowLimit(ctx context.Context, bucket, key string, limit int, window time.Duration) (bool, error)
}

// SlidingWindow delegates to a WindowLimiter under Bucket.
type SlidingWindow struct {
	Limiter WindowLimiter
}

func (p SlidingWindow) Allow(ctx context.Context, userID string, s Settings, _ time.Time) (bool, error) {
	return p.Limiter.AllowLimit(ctx, Bucket, userID, s.Limit, s.Window)
}

// GrantLimiter applies a Policy with the current settings.
type GrantLimiter struct {
	policy   Policy
	defaults Settings
	store    SettingsStore
	log      logrus.FieldLogger

	// OnLookupError is called whenever the policy or settings lookup fails.
	OnLookupError func(err error)
}

func NewGrantLimiter(policy Policy, defaults Settings, store SettingsStore, log logrus.FieldLogger) *GrantLimiter {
	if defaults.Limit <= 0 {
		defaults.Limit = DefaultLimit
	}
	if defaults.Window <= 0 {
		defaults.Window = DefaultWindow
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &GrantLimiter{policy: policy, defaults: defaults, store: store, log: log}
}

// Settings returns stored settings, or the configured defaults when none are
// stored or the store cannot be read.
func (g *GrantLimiter) Settings(ctx context.Context) Settings {
	if g.store == nil {
		return g.defaults
	}
	s, ok, err := g.store.GetSettings(ctx, Bucket)
	if err != nil {
		g.lookupFailed(err)
		g.log.WithError(err).Warn("rate limit settings unavailable, using defaults")
		return g.defaults
	}
	if !ok {
		return g.defaults
	}
	return s
}

// Check returns ErrRateLimitExceeded when userID is over quota. If the policy
// itself fails the request is allowed with a warning, unless the settings ask
// to fail closed, in which case ErrRateLimitUnavailable is returned.
func (g *GrantLimiter) Check(ctx context.Context, userID string, now time.Time) error {
	s := g.Settings(ctx)
	ok, err := g.policy.Allow(ctx, userID, s, now)
	if err != nil {
		g.lookupFailed(err)
		if s.FailClosed {
			g.log.WithError(err).WithField("user_id", userID).Error("rate limit check failed, denying")
			return errors.Join(ErrRateLimitUnavailable, err)
		}
		g.log.WithError(err).WithField("user_id", userID).Warn("rate limit check failed, allowing")
		return nil
	}
	if !ok {
		return ErrRateLimitExceeded
	}
	return nil
}

func (g *GrantLimiter) lookupFailed(err error) {
	if g.OnLookupError != nil {
		g.OnLookupError(err)
	}
}
