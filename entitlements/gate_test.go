package entitlements

import (
	"errors"
	"testing"
	"time"

	"github.com/PaulFidika/wallkit/catalog"
)

func TestActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Second)

	cases := []struct {
		name string
		ent  Entitlement
		want bool
	}{
		{"free", Entitlement{Tier: TierFree}, false},
		{"free with future expiry", Entitlement{Tier: TierFree, ExpiresAt: &future}, false},
		{"premium no expiry", Entitlement{Tier: TierPremium}, true},
		{"premium future expiry", Entitlement{Tier: TierPremium, ExpiresAt: &future}, true},
		{"premium expired", Entitlement{Tier: TierPremium, ExpiresAt: &past}, false},
		{"premium expiring exactly now", Entitlement{Tier: TierPremium, ExpiresAt: &now}, false},
	}
	for _, tc := range cases {
		if got := tc.ent.Active(now); got != tc.want {
			t.Errorf("%s: Active = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCheck_NonEntitled(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	callers := []Entitlement{
		{UserID: "u1", Tier: TierFree},
		{UserID: "u2", Tier: TierPremium, ExpiresAt: &past},
	}
	for _, ent := range callers {
		var re *RequiredError

		err := Check(ent, true, catalog.Standard, now)
		if !errors.As(err, &re) || re.Constraint != ConstraintResource {
			t.Fatalf("%s premium resource: got %v, want resource constraint", ent.UserID, err)
		}

		for _, r := range []catalog.Resolution{catalog.High, catalog.Ultra} {
			err = Check(ent, false, r, now)
			if !errors.As(err, &re) || re.Constraint != ConstraintResolution || re.Resolution != r {
				t.Fatalf("%s %s: got %v, want resolution constraint", ent.UserID, r, err)
			}
		}

		if err := Check(ent, false, catalog.Standard, now); err != nil {
			t.Fatalf("%s standard free resource: unexpected %v", ent.UserID, err)
		}
	}
}

func TestCheck_EntitledBypassesEverything(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	ent := Entitlement{UserID: "p", Tier: TierPremium, ExpiresAt: &future}
	for _, premium := range []bool{false, true} {
		for _, r := range catalog.Resolutions {
			if err := Check(ent, premium, r, now); err != nil {
				t.Fatalf("premium=%v res=%s: unexpected %v", premium, r, err)
			}
		}
	}
}

func TestParseTier(t *testing.T) {
	if ParseTier(" Premium ") != TierPremium {
		t.Fatal("expected premium")
	}
	if ParseTier("pro") != TierFree || ParseTier("") != TierFree {
		t.Fatal("unknown tiers should be free")
	}
}
