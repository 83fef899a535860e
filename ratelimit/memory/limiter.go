// Package memorylimiter is a single-process sliding-window limiter. It backs
// the per-IP throttle and the grant limiter when Redis is not configured.
package memorylimiter

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Limit defines window and max count for a bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

type windowKey struct{ bucket, key string }

// Limiter keeps the accepted hit times per (bucket, key), oldest first.
type Limiter struct {
	mu     sync.Mutex
	limits map[string]Limit
	hits   map[windowKey][]time.Time
	now    func() time.Time
}

func New(limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	return &Limiter{limits: limits, hits: make(map[windowKey][]time.Time), now: time.Now}
}

// limitFor falls back to the "default" bucket, then to 100 per minute.
func (l *Limiter) limitFor(bucket string) Limit {
	if v, ok := l.limits[bucket]; ok {
		return v
	}
	if v, ok := l.limits["default"]; ok {
		return v
	}
	return Limit{Limit: 100, Window: time.Minute}
}

// AllowNamed applies the configured limit for bucket to key.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	lim := l.limitFor(bucket)
	return l.AllowLimit(context.Background(), bucket, key, lim.Limit, lim.Window)
}

// AllowLimit accepts and records a hit unless limit hits already fall inside
// window. Denied attempts are not recorded.
func (l *Limiter) AllowLimit(_ context.Context, bucket, key string, limit int, window time.Duration) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, errors.New("bucket and key required")
	}

	now := l.now()
	cutoff := now.Add(-window)
	k := windowKey{bucket, key}

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hits[k]
	live := hits[sort.Search(len(hits), func(i int) bool { return !hits[i].Before(cutoff) }):]
	if len(live) >= limit {
		l.store(k, live)
		return false, nil
	}
	l.store(k, append(live, now))
	return true, nil
}

func (l *Limiter) store(k windowKey, hits []time.Time) {
	if len(hits) == 0 {
		delete(l.hits, k)
		return
	}
	l.hits[k] = hits
}
