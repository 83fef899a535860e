package core

import (
	"context"
	"time"
)

// DownloadEvent is the append-only record of an issued grant.
type DownloadEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ResourceID string    `json:"resource_id"`
	Resolution string    `json:"resolution"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageRecorder records issued grants to an external sink.
// Implementations must not block the caller and must swallow their own failures.
type UsageRecorder interface {
	RecordDownload(ctx context.Context, ev DownloadEvent)
}

// DownloadSink persists usage. IncrementDownloads must be atomic at the
// storage layer.
type DownloadSink interface {
	InsertDownload(ctx context.Context, ev DownloadEvent) error
	IncrementDownloads(ctx context.Context, resourceID string) error
}

// DownloadHistory lists a user's events, newest first.
type DownloadHistory interface {
	ListDownloads(ctx context.Context, userID string, page, pageSize int) ([]DownloadEvent, error)
}
