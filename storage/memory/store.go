package memorystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PaulFidika/wallkit/catalog"
	"github.com/PaulFidika/wallkit/core"
	"github.com/PaulFidika/wallkit/entitlements"
	"github.com/PaulFidika/wallkit/ratelimit"
)

// Store keeps profiles, wallpapers, download events and settings in process.
// It backs tests and the single-node development mode.
type Store struct {
	mu        sync.RWMutex
	profiles  map[string]entitlements.Entitlement
	resources map[string]catalog.Resource
	downloads []core.DownloadEvent
	settings  map[string]ratelimit.Settings

	// Fail*, when set, are returned by the matching operations.
	FailCount     error
	FailInsert    error
	FailIncrement error
}

func NewStore() *Store {
	return &Store{
		profiles:  make(map[string]entitlements.Entitlement),
		resources: make(map[string]catalog.Resource),
		settings:  make(map[string]ratelimit.Settings),
	}
}

func (s *Store) PutProfile(ent entitlements.Entitlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[ent.UserID] = ent
}

func (s *Store) PutResource(r catalog.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sources := make(map[catalog.Resolution]string, len(r.Sources))
	for k, v := range r.Sources {
		sources[k] = v
	}
	r.Sources = sources
	s.resources[r.ID] = r
}

// GetEntitlement returns the free tier for unknown users.
func (s *Store) GetEntitlement(_ context.Context, userID string) (entitlements.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ent, ok := s.profiles[userID]; ok {
		return ent, nil
	}
	return entitlements.Free(userID), nil
}

func (s *Store) GetResource(_ context.Context, id string) (*catalog.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	out := r
	out.Sources = make(map[catalog.Resolution]string, len(r.Sources))
	for k, v := range r.Sources {
		out.Sources[k] = v
	}
	return &out, nil
}

func (s *Store) InsertDownload(_ context.Context, ev core.DownloadEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		return s.FailInsert
	}
	s.downloads = append(s.downloads, ev)
	return nil
}

func (s *Store) IncrementDownloads(_ context.Context, resourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailIncrement != nil {
		return s.FailIncrement
	}
	r, ok := s.resources[resourceID]
	if !ok {
		return catalog.ErrNotFound
	}
	r.DownloadCount++
	s.resources[resourceID] = r
	return nil
}

func (s *Store) CountDownloadsSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailCount != nil {
		return 0, s.FailCount
	}
	n := 0
	for _, ev := range s.downloads {
		if ev.UserID == userID && !ev.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListDownloads(_ context.Context, userID string, page, pageSize int) ([]core.DownloadEvent, error) {
	s.mu.RLock()
	var mine []core.DownloadEvent
	for _, ev := range s.downloads {
		if ev.UserID == userID {
			mine = append(mine, ev)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	start := (page - 1) * pageSize
	if start >= len(mine) {
		return []core.DownloadEvent{}, nil
	}
	end := start + pageSize
	if end > len(mine) {
		end = len(mine)
	}
	return mine[start:end], nil
}

// Downloads returns a copy of every recorded event.
func (s *Store) Downloads() []core.DownloadEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.DownloadEvent(nil), s.downloads...)
}

func (s *Store) GetSettings(_ context.Context, name string) (ratelimit.Settings, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[name]
	return v, ok, nil
}

func (s *Store) PutSettings(_ context.Context, name string, v ratelimit.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[name] = v
	return nil
}

// ReconcileDownloadCounts raises each counter to its event count.
func (s *Store) ReconcileDownloadCounts(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, ev := range s.downloads {
		counts[ev.ResourceID]++
	}
	var changed int64
	for id, n := range counts {
		r, ok := s.resources[id]
		if !ok || r.DownloadCount >= n {
			continue
		}
		r.DownloadCount = n
		s.resources[id] = r
		changed++
	}
	return changed, nil
}
