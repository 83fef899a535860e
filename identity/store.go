package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PaulFidika/wallkit/entitlements"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads subscription state from the profiles table. Billing and the
// admin console own the writes.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

func NewStore(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "public"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) profilesTable() string { return s.schema + ".profiles" }

// GetEntitlement returns the user's plan. Users without a profile row, or
// with an id that is not a UUID, are on the free tier.
func (s *Store) GetEntitlement(ctx context.Context, userID string) (entitlements.Entitlement, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil || s.pg == nil {
		return entitlements.Free(userID), nil
	}
	var tier *string
	var expires *time.Time
	err = s.pg.QueryRow(ctx,
		`SELECT subscription_tier, subscription_expires_at FROM `+s.profilesTable()+` WHERE id=$1 LIMIT 1`, id,
	).Scan(&tier, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return entitlements.Free(userID), nil
	}
	if err != nil {
		return entitlements.Entitlement{}, err
	}
	ent := entitlements.Entitlement{UserID: userID, Tier: entitlements.TierFree, ExpiresAt: expires}
	if tier != nil {
		ent.Tier = entitlements.ParseTier(*tier)
	}
	return ent, nil
}
