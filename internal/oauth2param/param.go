// Package oauth2param caches per-provider OAuth2/OIDC parameters —
// issuer, audience, signing algorithm, secret, endpoint URIs, and a
// JWKS-shaped key set — and resolves a public key by key-id across
// every registered provider.
package oauth2param

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Status is the lifecycle of a provider's cached parameters.
type Status int

const (
	StatusUnknown Status = iota
	StatusFetching
	StatusSuccess
	StatusError
	StatusSaved
)

// JWK mirrors the fields of a single JSON Web Key used for RSA
// signature verification.
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSet is the JWKS document shape: a flat list of keys.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// AuthParam is one provider's cached OAuth2/OIDC parameters.
type AuthParam struct {
	Provider string

	Algorithm   string
	Audience    string
	Issuer      string
	Issuers     []string
	AuthURI     string
	TokenURI    string
	RedirectURI string
	Secret      string
	CertURL     string

	Keys json.RawMessage

	Status     Status
	StatusTime time.Time

	mu         sync.RWMutex
	parsedKeys []JWK
}

// SetKeys stores the raw JWKS document and pre-parses its key list,
// so GetPublicKey doesn't re-unmarshal on every lookup.
func (a *AuthParam) SetKeys(raw json.RawMessage) error {
	var set JWKSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return fmt.Errorf("oauth2param: parsing keys for %s: %w", a.Provider, err)
	}
	a.mu.Lock()
	a.Keys = raw
	a.parsedKeys = set.Keys
	a.mu.Unlock()
	return nil
}

// publicKey looks up kid among this provider's parsed keys and
// converts the match to an *rsa.PublicKey.
func (a *AuthParam) publicKey(kid string) (*rsa.PublicKey, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, k := range a.parsedKeys {
		if k.Kid != kid || k.Kty != "RSA" {
			continue
		}
		key, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			return nil, false
		}
		return key, true
	}
	return nil, false
}

func rsaPublicKeyFromJWK(jwk JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
