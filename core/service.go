package core

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/PaulFidika/wallkit/catalog"
	"github.com/PaulFidika/wallkit/entitlements"
	"github.com/PaulFidika/wallkit/metrics"
	"github.com/PaulFidika/wallkit/ratelimit"
	"github.com/PaulFidika/wallkit/urlsign"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RateLimiter bounds grants for users without an active premium plan.
type RateLimiter interface {
	Check(ctx context.Context, userID string, now time.Time) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Entitlements entitlements.Source
	Resources    catalog.Store
	Limiter      RateLimiter
	Signer       *urlsign.Signer
	Recorder     UsageRecorder
	Metrics      *metrics.Downloads
	Log          logrus.FieldLogger
	Now          func() time.Time
}

// Service issues and redeems signed download URLs.
type Service struct {
	ents     entitlements.Source
	res      catalog.Store
	limiter  RateLimiter
	signer   *urlsign.Signer
	recorder UsageRecorder
	metrics  *metrics.Downloads
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(d Deps) (*Service, error) {
	if d.Entitlements == nil || d.Resources == nil || d.Signer == nil {
		return nil, errors.New("core: entitlements, resources and signer are required")
	}
	s := &Service{
		ents:     d.Entitlements,
		res:      d.Resources,
		limiter:  d.Limiter,
		signer:   d.Signer,
		recorder: d.Recorder,
		metrics:  d.Metrics,
		log:      d.Log,
		now:      d.Now,
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Request asks for a download URL. ClientIP and UserAgent are stored with the
// usage event only.
type Request struct {
	ResourceID string
	Resolution string
	ClientIP   string
	UserAgent  string
}

// Grant is the result of a successful issuance.
type Grant struct {
	SignedURL     string             `json:"signed_url"`
	DownloadURL   string             `json:"download_url"`
	ExpiresAt     time.Time          `json:"-"`
	ResourceTitle string             `json:"resource_title"`
	Resolution    catalog.Resolution `json:"resolution"`
}

// IssueDownloadURL authorizes userID to fetch req.ResourceID and returns a
// signed URL. Usage is recorded without waiting; a refused request records
// nothing.
func (s *Service) IssueDownloadURL(ctx context.Context, userID string, req Request) (*Grant, error) {
	g, err := s.issue(ctx, userID, req)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			s.metrics.GrantDenied(e.Code)
		}
		return nil, err
	}
	return g, nil
}

func (s *Service) issue(ctx context.Context, userID string, req Request) (*Grant, error) {
	resourceID := strings.TrimSpace(req.ResourceID)
	if resourceID == "" {
		return nil, errMissingResourceID()
	}
	res, err := catalog.ParseResolution(req.Resolution)
	if err != nil {
		return nil, errInvalidResolution(err)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errUnauthenticated()
	}

	now := s.now()
	log := s.log.WithFields(logrus.Fields{"user_id": userID, "resource_id": resourceID, "resolution": res})

	ent, err := s.ents.GetEntitlement(ctx, userID)
	if err != nil {
		log.WithError(err).Error("entitlement lookup failed")
		return nil, errUnexpected(err)
	}
	resource, err := s.res.GetResource(ctx, resourceID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, errResourceNotFound(err)
		}
		log.WithError(err).Error("resource lookup failed")
		return nil, errUnexpected(err)
	}

	if err := entitlements.Check(ent, resource.Premium, res, now); err != nil {
		return nil, entitlementError(err)
	}

	// Resolve the source before the limiter so a sliding-window policy never
	// spends quota on a request that cannot be served.
	source, ok := resource.Source(res)
	if !ok {
		return nil, errResolutionUnavailable(res.String())
	}

	entitled := ent.Active(now)
	if !entitled && s.limiter != nil {
		if err := s.limiter.Check(ctx, userID, now); err != nil {
			if errors.Is(err, ratelimit.ErrRateLimitExceeded) {
				return nil, errRateLimited(err)
			}
			return nil, errUnexpected(err)
		}
	}

	grant := s.signer.Issue(resource.ID, res.String(), userID, now)

	if s.recorder != nil {
		s.recorder.RecordDownload(ctx, DownloadEvent{
			ID:         uuid.NewString(),
			UserID:     userID,
			ResourceID: resource.ID,
			Resolution: res.String(),
			IPAddress:  req.ClientIP,
			UserAgent:  req.UserAgent,
			CreatedAt:  now.UTC(),
		})
	}

	tier := string(entitlements.TierFree)
	if entitled {
		tier = string(entitlements.TierPremium)
	}
	s.metrics.GrantIssued(res.String(), tier)
	log.WithField("tier", tier).Info("download url issued")

	return &Grant{
		SignedURL:     s.signer.URL(grant),
		DownloadURL:   source,
		ExpiresAt:     grant.ExpiresAt,
		ResourceTitle: resource.Title,
		Resolution:    res,
	}, nil
}

func entitlementError(err error) *Error {
	var re *entitlements.RequiredError
	if errors.As(err, &re) && re.Constraint == entitlements.ConstraintResolution {
		return newError(KindEntitlementRequired, "premium_resolution_required",
			"Premium subscription required for "+string(re.Resolution)+" resolution downloads", err)
	}
	return newError(KindEntitlementRequired, "premium_required", "Premium subscription required for this wallpaper", err)
}

// Redeem verifies a presented grant and returns the source location to
// redirect to. Expired grants are refused even with a valid signature.
func (s *Service) Redeem(ctx context.Context, resourceID string, q url.Values) (string, error) {
	g, err := urlsign.FromQuery(resourceID, q)
	if err != nil {
		s.metrics.Redeemed("invalid")
		return "", errInvalidGrant("invalid_signature", err)
	}
	if err := s.signer.Verify(g, s.now()); err != nil {
		if errors.Is(err, urlsign.ErrGrantExpired) {
			s.metrics.Redeemed("expired")
			return "", errInvalidGrant("grant_expired", err)
		}
		s.metrics.Redeemed("invalid")
		return "", errInvalidGrant("invalid_signature", err)
	}
	res, err := catalog.ParseResolution(g.Resolution)
	if err != nil {
		s.metrics.Redeemed("invalid")
		return "", errInvalidGrant("invalid_signature", err)
	}
	resource, err := s.res.GetResource(ctx, g.ResourceID)
	if err != nil {
		s.metrics.Redeemed("error")
		if errors.Is(err, catalog.ErrNotFound) {
			return "", errResourceNotFound(err)
		}
		return "", errUnexpected(err)
	}
	source, ok := resource.Source(res)
	if !ok {
		s.metrics.Redeemed("error")
		return "", errResolutionUnavailable(res.String())
	}
	s.metrics.Redeemed("ok")
	return source, nil
}
