package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/PaulFidika/wallkit/entitlements"
)

// EntitlementCache is an in-memory entitlements.Cache with TTL.
type EntitlementCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	data   map[string]item
	now    func() time.Time
	closed chan struct{}
	once   sync.Once
}

type item struct {
	v   entitlements.Entitlement
	exp time.Time
}

// NewEntitlementCache creates a cache holding entries for ttl.
// If ttl <= 0, a default of 30 seconds is used.
// Starts a background goroutine to clean up expired entries every minute.
func NewEntitlementCache(ttl time.Duration) *EntitlementCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	c := &EntitlementCache{ttl: ttl, data: make(map[string]item), now: time.Now, closed: make(chan struct{})}
	go c.cleanupLoop()
	return c
}

func (s *EntitlementCache) Put(_ context.Context, v entitlements.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[v.UserID] = item{v: v, exp: s.now().Add(s.ttl)}
	return nil
}

func (s *EntitlementCache) Get(_ context.Context, userID string) (entitlements.Entitlement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.data[userID]
	if !ok {
		return entitlements.Entitlement{}, false, nil
	}
	if s.now().After(it.exp) {
		delete(s.data, userID)
		return entitlements.Entitlement{}, false, nil
	}
	return it.v, true, nil
}

func (s *EntitlementCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.closed:
			return
		}
	}
}

func (s *EntitlementCache) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.data {
		if now.After(v.exp) {
			delete(s.data, k)
		}
	}
}

// Close stops the background cleanup goroutine.
func (s *EntitlementCache) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
