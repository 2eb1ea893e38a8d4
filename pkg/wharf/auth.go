package wharf

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wharfhq/wharf/internal/conn"
	"github.com/wharfhq/wharf/internal/oauth2param"
)

// Claims is the subset of a JWT payload Authenticator checks: the
// fields the core validation path (exp/nbf/iss/aud) actually
// inspects. Callers wanting provider-specific claims can unmarshal
// the same token payload themselves.
type Claims struct {
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	Audience  string `json:"aud"`
	Expires   int64  `json:"exp"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

type jwtHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Authenticator validates RS256 JWT bearer tokens against an
// internal/oauth2param.Cache's registered providers, pulling the
// token out of a conn.Connection's Authorization header and scanning
// every registered provider's keys for one matching the token's kid.
type Authenticator struct {
	cache *oauth2param.Cache
}

// NewAuthenticator returns an Authenticator backed by cache.
func NewAuthenticator(cache *oauth2param.Cache) *Authenticator {
	return &Authenticator{cache: cache}
}

// BearerToken extracts the token from a request's "Authorization:
// Bearer <token>" header, or "" if the header is absent or a
// different scheme.
func BearerToken(c *conn.Connection) string {
	auth := c.Request.Headers.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return auth[len(prefix):]
}

// Authenticate checks exp/nbf, then verifies tokenString's RS256
// signature against the provider whose JWKS carries the token's "kid",
// then checks that the token's audience and issuer both appear among
// the cache's registered providers.
func (a *Authenticator) Authenticate(tokenString string) (*Claims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, errors.New("wharf: invalid JWT format")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("wharf: decoding JWT header: %w", err)
	}
	var header jwtHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("wharf: parsing JWT header: %w", err)
	}
	if header.Alg != "RS256" {
		return nil, fmt.Errorf("wharf: unsupported JWT algorithm %q", header.Alg)
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("wharf: decoding JWT payload: %w", err)
	}
	var claims Claims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, fmt.Errorf("wharf: parsing JWT payload: %w", err)
	}

	now := time.Now().Unix()
	if claims.Expires > 0 && now > claims.Expires {
		return nil, errors.New("wharf: token has expired")
	}
	if claims.NotBefore > 0 && now < claims.NotBefore {
		return nil, errors.New("wharf: token not yet valid")
	}

	publicKey, err := a.cache.GetPublicKey(header.Kid)
	if err != nil {
		return nil, err
	}
	if err := verifySignature(parts, publicKey); err != nil {
		return nil, err
	}

	if !contains(a.cache.GetAudiences(), claims.Audience) {
		return nil, fmt.Errorf("wharf: token audience %q not recognized", claims.Audience)
	}
	if !contains(a.cache.GetIssuers(), claims.Issuer) {
		return nil, fmt.Errorf("wharf: token issuer %q not recognized", claims.Issuer)
	}

	return &claims, nil
}

// AuthenticateRequest is a convenience wrapper that pulls the bearer
// token off c's Authorization header before validating it.
func (a *Authenticator) AuthenticateRequest(c *conn.Connection) (*Claims, error) {
	token := BearerToken(c)
	if token == "" {
		return nil, errors.New("wharf: missing bearer token")
	}
	return a.Authenticate(token)
}

func verifySignature(parts []string, publicKey *rsa.PublicKey) error {
	signingInput := parts[0] + "." + parts[1]
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("wharf: decoding JWT signature: %w", err)
	}
	hash := sha256.Sum256([]byte(signingInput))
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, hash[:], signature); err != nil {
		return fmt.Errorf("wharf: signature verification failed: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
