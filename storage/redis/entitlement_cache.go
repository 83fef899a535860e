package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/PaulFidika/wallkit/entitlements"
	"github.com/redis/go-redis/v9"
)

// EntitlementCache is a Redis-backed entitlements.Cache shared by every node.
type EntitlementCache struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

func NewEntitlementCache(rdb *redis.Client, keyPrefix string, ttl time.Duration) *EntitlementCache {
	if keyPrefix == "" {
		keyPrefix = "wallkit:entitlement:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &EntitlementCache{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (s *EntitlementCache) key(userID string) string { return s.keyNS + userID }

func (s *EntitlementCache) Put(ctx context.Context, ent entitlements.Entitlement) error {
	b, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(ent.UserID), b, s.ttl).Err()
}

func (s *EntitlementCache) Get(ctx context.Context, userID string) (entitlements.Entitlement, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return entitlements.Entitlement{}, false, nil
	}
	if err != nil {
		return entitlements.Entitlement{}, false, err
	}
	var ent entitlements.Entitlement
	if err := json.Unmarshal(val, &ent); err != nil {
		return entitlements.Entitlement{}, false, err
	}
	return ent, true, nil
}

