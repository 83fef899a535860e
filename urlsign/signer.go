// Package urlsign issues and verifies time-bound download grants.
//
// A grant authorizes one user to fetch one wallpaper at one resolution until
// its expiry. Grants are not stored: the signature is recomputed on
// redemption. There is no revocation; the TTL is the only bound on exposure.
package urlsign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTTL             = 10 * time.Minute
	DefaultSignatureLength = 32
	minSignatureLength     = 16
	maxSignatureLength     = sha256.Size * 2
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrGrantExpired     = errors.New("grant_expired")
	ErrMalformedGrant   = errors.New("malformed_grant")
)

// Grant is a signed capability for a single download.
type Grant struct {
	ResourceID string
	Resolution string
	UserID     string
	ExpiresAt  time.Time
	Signature  string
}

// Signer derives and checks grant signatures with a server-side secret.
type Signer struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	sigLen  int
}

type Option func(*Signer)

// WithTTL overrides the grant lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Signer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSignatureLength sets how many hex characters of the digest are kept.
// Shorter signatures mean shorter URLs and a narrower security margin.
func WithSignatureLength(n int) Option {
	return func(s *Signer) { s.sigLen = n }
}

func New(secret []byte, baseURL string, opts ...Option) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("urlsign: empty secret")
	}
	s := &Signer{
		secret:  append([]byte(nil), secret...),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		ttl:     DefaultTTL,
		sigLen:  DefaultSignatureLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sigLen < minSignatureLength || s.sigLen > maxSignatureLength {
		return nil, fmt.Errorf("urlsign: signature length must be between %d and %d", minSignatureLength, maxSignatureLength)
	}
	return s, nil
}

func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue creates a grant expiring TTL after now.
func (s *Signer) Issue(resourceID, resolution, userID string, now time.Time) Grant {
	exp := now.Add(s.ttl).Truncate(time.Second)
	return Grant{
		ResourceID: resourceID,
		Resolution: resolution,
		UserID:     userID,
		ExpiresAt:  exp,
		Signature:  s.Signature(resourceID, resolution, userID, exp.Unix()),
	}
}

// Signature is the truncated HMAC-SHA256 of the grant fields. Each field is
// written as "<len>:<value>" so no two field tuples share a MAC input.
func (s *Signer) Signature(resourceID, resolution, userID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	for _, f := range []string{resourceID, resolution, userID, strconv.FormatInt(expiresUnix, 10)} {
		mac.Write([]byte(strconv.Itoa(len(f))))
		mac.Write([]byte{':'})
		mac.Write([]byte(f))
	}
	return hex.EncodeToString(mac.Sum(nil))[:s.sigLen]
}

// Verify checks g's signature and that it has not expired at now.
// An expired grant is rejected even when its signature is valid.
func (s *Signer) Verify(g Grant, now time.Time) error {
	if g.ResourceID == "" || g.Resolution == "" || g.UserID == "" || g.Signature == "" || g.ExpiresAt.IsZero() {
		return ErrMalformedGrant
	}
	want := s.Signature(g.ResourceID, g.Resolution, g.UserID, g.ExpiresAt.Unix())
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(g.Signature))) {
		return ErrInvalidSignature
	}
	if now.After(g.ExpiresAt) {
		return ErrGrantExpired
	}
	return nil
}

// URL renders g as a redemption link.
func (s *Signer) URL(g Grant) string {
	q := url.Values{}
	q.Set("resolution", g.Resolution)
	q.Set("expires", strconv.FormatInt(g.ExpiresAt.Unix(), 10))
	q.Set("signature", g.Signature)
	q.Set("user", g.UserID)
	return s.baseURL + "/download/" + url.PathEscape(g.ResourceID) + "?" + q.Encode()
}

// FromQuery rebuilds a presented grant from a redemption request.
func FromQuery(resourceID string, q url.Values) (Grant, error) {
	exp, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil || exp <= 0 {
		return Grant{}, ErrMalformedGrant
	}
	g := Grant{
		ResourceID: strings.TrimSpace(resourceID),
		Resolution: q.Get("resolution"),
		UserID:     q.Get("user"),
		ExpiresAt:  time.Unix(exp, 0),
		Signature:  q.Get("signature"),
	}
	if g.ResourceID == "" || g.Resolution == "" || g.UserID == "" || g.Signature == "" {
		return Grant{}, ErrMalformedGrant
	}
	return g, nil
}
