package core

import (
	"context"
	"strings"
	"time"

	"github.com/PaulFidika/wallkit/ratelimit"
)

// Admin backs the console screens for rate limits and download history.
type Admin struct {
	settings ratelimit.SettingsStore
	defaults ratelimit.Settings
	history  DownloadHistory
	now      func() time.Time
}

func NewAdmin(settings ratelimit.SettingsStore, defaults ratelimit.Settings, history DownloadHistory) *Admin {
	return &Admin{settings: settings, defaults: defaults, history: history, now: time.Now}
}

// RateLimitSettings returns the stored download-grant settings, or the
// configured defaults when none have been saved.
func (a *Admin) RateLimitSettings(ctx context.Context) (ratelimit.Settings, error) {
	if a.settings == nil {
		return a.defaults, nil
	}
	s, ok, err := a.settings.GetSettings(ctx, ratelimit.Bucket)
	if err != nil {
		return ratelimit.Settings{}, errUnexpected(err)
	}
	if !ok {
		return a.defaults, nil
	}
	return s, nil
}

// UpdateRateLimitSettings validates and stores new thresholds.
func (a *Admin) UpdateRateLimitSettings(ctx context.Context, s ratelimit.Settings) (ratelimit.Settings, error) {
	if err := s.Validate(); err != nil {
		return ratelimit.Settings{}, newError(KindInvalidInput, "invalid_request", err.Error(), err)
	}
	if a.settings == nil {
		return ratelimit.Settings{}, errUnexpected(nil)
	}
	now := a.now().UTC()
	s.UpdatedAt = &now
	if err := a.settings.PutSettings(ctx, ratelimit.Bucket, s); err != nil {
		return ratelimit.Settings{}, errUnexpected(err)
	}
	return s, nil
}

// UserDownloads pages through a user's download events, newest first.
func (a *Admin) UserDownloads(ctx context.Context, userID string, page, pageSize int) ([]DownloadEvent, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(KindMissingInput, "missing_user_id", "User ID is required", nil)
	}
	page, pageSize = NormalizePage(page, pageSize)
	if a.history == nil {
		return []DownloadEvent{}, nil
	}
	items, err := a.history.ListDownloads(ctx, userID, page, pageSize)
	if err != nil {
		return nil, errUnexpected(err)
	}
	return items, nil
}

// NormalizePage clamps paging input: page starts at 1 and pageSize outside
// 1..200 becomes 50.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return page, pageSize
}
