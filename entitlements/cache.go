package entitlements

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Cache stores recently looked-up entitlements.
type Cache interface {
	Get(ctx context.Context, userID string) (Entitlement, bool, error)
	Put(ctx context.Context, ent Entitlement) error
}

// CachedSource fronts a Source with a Cache. Cache errors are logged and
// fall through to the Source.
type CachedSource struct {
	src   Source
	cache Cache
	log   logrus.FieldLogger
}

func NewCachedSource(src Source, cache Cache, log logrus.FieldLogger) *CachedSource {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedSource{src: src, cache: cache, log: log}
}

func (c *CachedSource) GetEntitlement(ctx context.Context, userID string) (Entitlement, error) {
	if c.cache != nil {
		ent, ok, err := c.cache.Get(ctx, userID)
		if err != nil {
			c.log.WithError(err).WithField("user_id", userID).Warn("entitlement cache read failed")
		} else if ok {
			return ent, nil
		}
	}
	ent, err := c.src.GetEntitlement(ctx, userID)
	if err != nil {
		return Entitlement{}, err
	}
	if c.cache != nil {
		if err := c.cache.Put(ctx, ent); err != nil {
			c.log.WithError(err).WithField("user_id", userID).Warn("entitlement cache write failed")
		}
	}
	return ent, nil
}
