// Package testing provides a mock token issuer for exercising wallkit's
// bearer authentication without a real auth provider.
//
// Example usage:
//
//	issuer := testing.NewTestIssuer()
//	defer issuer.Close()
//
//	cfg := jwtkit.AcceptConfig{Issuers: []jwtkit.IssuerAccept{issuer.Accept()}}
//	token := issuer.CreateToken("user-123", "test@example.com")
package testing

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	jwtkit "github.com/PaulFidika/wallkit/jwt"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const testKID = "test-key-1"

// TestIssuer runs an HTTP server that serves JWKS at /.well-known/jwks.json
// and signs RS256 tokens that validate against it.
type TestIssuer struct {
	server   *httptest.Server
	key      *rsa.PrivateKey
	jwks     []byte
	audience string
}

// NewTestIssuer creates a new test issuer with a JWKS endpoint.
// Call Close() when done to shut down the test server.
func NewTestIssuer() *TestIssuer {
	return NewTestIssuerWithAudience("wallkit")
}

// NewTestIssuerWithAudience creates a test issuer with a specific audience claim.
func NewTestIssuerWithAudience(audience string) *TestIssuer {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("failed to generate RSA key: " + err.Error())
	}
	jwks, err := publicSet(&key.PublicKey)
	if err != nil {
		panic("failed to build JWKS: " + err.Error())
	}
	ti := &TestIssuer{key: key, jwks: jwks, audience: audience}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(ti.jwks)
	})
	ti.server = httptest.NewServer(mux)
	return ti
}

func publicSet(pub *rsa.PublicKey) ([]byte, error) {
	k, err := jwk.FromRaw(pub)
	if err != nil {
		return nil, err
	}
	for name, v := range map[string]any{
		jwk.KeyIDKey:     testKID,
		jwk.AlgorithmKey: jwa.RS256,
		jwk.KeyUsageKey:  "sig",
	} {
		if err := k.Set(name, v); err != nil {
			return nil, err
		}
	}
	set := jwk.NewSet()
	if err := set.AddKey(k); err != nil {
		return nil, err
	}
	return json.Marshal(set)
}

// URL returns the base URL of the test issuer server, which is also its iss claim.
func (ti *TestIssuer) URL() string { return ti.server.URL }

// JWKSURL returns where the public key set is served.
func (ti *TestIssuer) JWKSURL() string { return ti.server.URL + "/.well-known/jwks.json" }

// Accept returns the verifier configuration that trusts this issuer.
func (ti *TestIssuer) Accept() jwtkit.IssuerAccept {
	return jwtkit.IssuerAccept{Issuer: ti.URL(), Audience: ti.audience, JWKSURL: ti.JWKSURL()}
}

// Close shuts down the test server.
func (ti *TestIssuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

// CreateToken creates a signed RS256 token for userID.
func (ti *TestIssuer) CreateToken(userID, email string) string {
	return ti.CreateTokenWithClaims(userID, email, nil)
}

// CreateTokenWithClaims merges extraClaims over the standard claims
// (sub, email, iss, aud, exp, iat).
func (ti *TestIssuer) CreateTokenWithClaims(userID, email string, extraClaims map[string]any) string {
	claims := standardClaims(userID, email)
	claims["iss"] = ti.URL()
	claims["aud"] = ti.audience
	for k, v := range extraClaims {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	signed, err := token.SignedString(ti.key)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return signed
}

// CreateTokenWithRoles creates a token carrying role claims.
func (ti *TestIssuer) CreateTokenWithRoles(userID, email string, roles []string) string {
	return ti.CreateTokenWithClaims(userID, email, map[string]any{"roles": roles})
}

// CreateExpiredToken creates a token that expired an hour ago.
func (ti *TestIssuer) CreateExpiredToken(userID, email string) string {
	return ti.CreateTokenWithClaims(userID, email, map[string]any{"exp": time.Now().Add(-time.Hour).Unix()})
}

// CreateHS256Token mints a shared-secret token in the shape the hosted auth
// platform issues, with the role under app_metadata.
func CreateHS256Token(secret, userID, email, role string) string {
	claims := standardClaims(userID, email)
	claims["aud"] = "authenticated"
	if role != "" {
		claims["app_metadata"] = map[string]any{"role": role}
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}

func standardClaims(userID, email string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
	}
}
