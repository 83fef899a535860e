// Package jwtkit verifies the bearer tokens presented to wallkit: HS256
// tokens from the hosted auth platform and RS256 tokens from JWKS issuers.
package jwtkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
)

// AcceptConfig configures verification of bearer tokens minted elsewhere.
type AcceptConfig struct {
	// HS256Secret accepts platform tokens signed with a shared secret.
	HS256Secret string
	// HS256Audience, when set, must appear in the aud claim of HS256 tokens.
	HS256Audience string
	Issuers       []IssuerAccept
	Skew          time.Duration
}

// IssuerAccept describes how to accept tokens from a specific issuer.
type IssuerAccept struct {
	Issuer   string
	Audience string // Expected audience for this service (single value)
	JWKSURL  string
	CacheTTL time.Duration
}

// Claims is the caller identity carried by a verified token.
type Claims struct {
	UserID string
	Email  string
	Roles  []string
}

// HasRole reports whether role was granted.
func (c Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

var ErrInvalidToken = errors.New("invalid_token")

// Verifier checks bearer tokens against the accepted secret and issuers.
type Verifier struct {
	cfg    AcceptConfig
	jwks   *jwk.Cache
	mu     sync.Mutex
	loaded map[string]bool
}

// NewVerifier registers every JWKS issuer with a refreshing key cache tied to ctx.
func NewVerifier(ctx context.Context, cfg AcceptConfig) (*Verifier, error) {
	if cfg.HS256Secret == "" && len(cfg.Issuers) == 0 {
		return nil, errors.New("jwtkit: no token issuers configured")
	}
	if cfg.Skew <= 0 {
		cfg.Skew = 30 * time.Second
	}
	v := &Verifier{cfg: cfg, loaded: map[string]bool{}}
	if len(cfg.Issuers) > 0 {
		v.jwks = jwk.NewCache(ctx)
		for _, iss := range cfg.Issuers {
			if iss.Issuer == "" || iss.JWKSURL == "" {
				return nil, fmt.Errorf("jwtkit: issuer and jwks url required (%q)", iss.Issuer)
			}
			ttl := iss.CacheTTL
			if ttl <= 0 {
				ttl = 15 * time.Minute
			}
			if err := v.jwks.Register(iss.JWKSURL, jwk.WithMinRefreshInterval(ttl)); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

// Verify validates raw and returns its claims.
func (v *Verifier) Verify(ctx context.Context, raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrInvalidToken
	}
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if unverified.Method.Alg() == jwt.SigningMethodHS256.Alg() {
		return v.verifyHS256(raw)
	}
	iss, _ := unverified.Claims.GetIssuer()
	for _, ia := range v.cfg.Issuers {
		if ia.Issuer == iss {
			return v.verifyJWKS(ctx, raw, ia)
		}
	}
	return Claims{}, fmt.Errorf("%w: unknown issuer %q", ErrInvalidToken, iss)
}

func (v *Verifier) verifyHS256(raw string) (Claims, error) {
	if v.cfg.HS256Secret == "" {
		return Claims{}, fmt.Errorf("%w: hs256 not accepted", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.cfg.Skew),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.HS256Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.HS256Audience))
	}
	mc := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, mc, func(*jwt.Token) (any, error) {
		return []byte(v.cfg.HS256Secret), nil
	}, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claimsFromMap(mc)
}

func (v *Verifier) verifyJWKS(ctx context.Context, raw string, ia IssuerAccept) (Claims, error) {
	set, err := v.keySet(ctx, ia.JWKSURL)
	if err != nil {
		return Claims{}, err
	}
	opts := []jwxjwt.ParseOption{
		jwxjwt.WithKeySet(set),
		jwxjwt.WithValidate(true),
		jwxjwt.WithIssuer(ia.Issuer),
		jwxjwt.WithAcceptableSkew(v.cfg.Skew),
	}
	if ia.Audience != "" {
		opts = append(opts, jwxjwt.WithAudience(ia.Audience))
	}
	tok, err := jwxjwt.ParseString(raw, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mc, err := tok.AsMap(ctx)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claimsFromMap(mc)
}

// keySet returns the cached key set, forcing a fetch the first time a URL is used.
func (v *Verifier) keySet(ctx context.Context, url string) (jwk.Set, error) {
	v.mu.Lock()
	first := !v.loaded[url]
	v.mu.Unlock()
	if first {
		if _, err := v.jwks.Refresh(ctx, url); err != nil {
			return nil, fmt.Errorf("jwks fetch %s: %w", url, err)
		}
		v.mu.Lock()
		v.loaded[url] = true
		v.mu.Unlock()
	}
	return v.jwks.Get(ctx, url)
}

func claimsFromMap(m map[string]any) (Claims, error) {
	sub, _ := m["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return Claims{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	c := Claims{UserID: sub}
	c.Email, _ = m["email"].(string)
	c.Roles = append(c.Roles, stringList(m["roles"])...)
	if meta, ok := m["app_metadata"].(map[string]any); ok {
		if r, ok := meta["role"].(string); ok && r != "" {
			c.Roles = append(c.Roles, r)
		}
		c.Roles = append(c.Roles, stringList(meta["roles"])...)
	}
	return c, nil
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
