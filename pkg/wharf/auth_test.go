package wharf

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/wharfhq/wharf/internal/conn"
	"github.com/wharfhq/wharf/internal/oauth2param"
)

// signToken builds a real RS256 JWT from header/payload maps, signed
// with key.
func signToken(t *testing.T, key *rsa.PrivateKey, header, payload map[string]any) string {
	t.Helper()
	enc := func(v map[string]any) string {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return base64.RawURLEncoding.EncodeToString(b)
	}
	signingInput := enc(header) + "." + enc(payload)
	hash := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func newTestProvider(t *testing.T, name, issuer, audience string) (*oauth2param.AuthParam, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	jwk := oauth2param.JWK{
		Kid: name + "-key",
		Kty: "RSA",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(bigIntBytes(key.PublicKey.E)),
	}
	raw, err := json.Marshal(oauth2param.JWKSet{Keys: []oauth2param.JWK{jwk}})
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	p := &oauth2param.AuthParam{Provider: name, Issuer: issuer, Audience: audience}
	if err := p.SetKeys(raw); err != nil {
		t.Fatalf("SetKeys: %v", err)
	}
	return p, key
}

func bigIntBytes(e int) []byte {
	return []byte{byte(e >> 16), byte(e >> 8), byte(e)}
}

func TestAuthenticateValidToken(t *testing.T) {
	cache := oauth2param.NewCache()
	p, key := newTestProvider(t, "acme", "https://issuer.example", "wharf-api")
	cache.Register(p)

	token := signToken(t,
		key,
		map[string]any{"alg": "RS256", "typ": "JWT", "kid": "acme-key"},
		map[string]any{
			"iss": "https://issuer.example",
			"sub": "user-1",
			"aud": "wharf-api",
			"exp": time.Now().Add(time.Hour).Unix(),
		},
	)

	auth := NewAuthenticator(cache)
	claims, err := auth.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("Subject = %q, want user-1", claims.Subject)
	}
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	cache := oauth2param.NewCache()
	p, key := newTestProvider(t, "acme", "https://issuer.example", "wharf-api")
	cache.Register(p)

	token := signToken(t,
		key,
		map[string]any{"alg": "RS256", "typ": "JWT", "kid": "acme-key"},
		map[string]any{
			"iss": "https://issuer.example",
			"aud": "wharf-api",
			"exp": time.Now().Add(-time.Hour).Unix(),
		},
	)

	if _, err := NewAuthenticator(cache).Authenticate(token); err == nil {
		t.Fatal("Authenticate succeeded on an expired token")
	}
}

func TestAuthenticateRejectsUnknownKid(t *testing.T) {
	cache := oauth2param.NewCache()
	p, key := newTestProvider(t, "acme", "https://issuer.example", "wharf-api")
	cache.Register(p)

	token := signToken(t,
		key,
		map[string]any{"alg": "RS256", "typ": "JWT", "kid": "someone-elses-key"},
		map[string]any{
			"iss": "https://issuer.example",
			"aud": "wharf-api",
			"exp": time.Now().Add(time.Hour).Unix(),
		},
	)

	_, err := NewAuthenticator(cache).Authenticate(token)
	if err == nil {
		t.Fatal("Authenticate succeeded with an unregistered kid")
	}
	var lookupErr *oauth2param.LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("error = %v, want *oauth2param.LookupError", err)
	}
	if lookupErr.Kid != "someone-elses-key" {
		t.Fatalf("LookupError.Kid = %q, want someone-elses-key", lookupErr.Kid)
	}
}

func TestAuthenticateRejectsForgedSignature(t *testing.T) {
	cache := oauth2param.NewCache()
	p, _ := newTestProvider(t, "acme", "https://issuer.example", "wharf-api")
	cache.Register(p)

	_, otherKey := newTestProvider(t, "impostor", "https://issuer.example", "wharf-api")
	token := signToken(t,
		otherKey,
		map[string]any{"alg": "RS256", "typ": "JWT", "kid": "acme-key"},
		map[string]any{
			"iss": "https://issuer.example",
			"aud": "wharf-api",
			"exp": time.Now().Add(time.Hour).Unix(),
		},
	)

	if _, err := NewAuthenticator(cache).Authenticate(token); err == nil {
		t.Fatal("Authenticate succeeded with a signature from the wrong key")
	}
}

func TestAuthenticateRejectsUnrecognizedAudience(t *testing.T) {
	cache := oauth2param.NewCache()
	p, key := newTestProvider(t, "acme", "https://issuer.example", "wharf-api")
	cache.Register(p)

	token := signToken(t,
		key,
		map[string]any{"alg": "RS256", "typ": "JWT", "kid": "acme-key"},
		map[string]any{
			"iss": "https://issuer.example",
			"aud": "some-other-api",
			"exp": time.Now().Add(time.Hour).Unix(),
		},
	)

	if _, err := NewAuthenticator(cache).Authenticate(token); err == nil {
		t.Fatal("Authenticate succeeded with an audience no provider registers")
	}
}

func TestBearerTokenAndAuthenticateRequest(t *testing.T) {
	cache := oauth2param.NewCache()
	p, key := newTestProvider(t, "acme", "https://issuer.example", "wharf-api")
	cache.Register(p)

	token := signToken(t,
		key,
		map[string]any{"alg": "RS256", "typ": "JWT", "kid": "acme-key"},
		map[string]any{
			"iss": "https://issuer.example",
			"aud": "wharf-api",
			"exp": time.Now().Add(time.Hour).Unix(),
		},
	)

	c := conn.NewConnection(nil, conn.ServerSide)
	c.Request.Headers.Set("Authorization", "Bearer "+token)

	if got := BearerToken(c); got != token {
		t.Fatalf("BearerToken = %q, want %q", got, token)
	}

	if _, err := NewAuthenticator(cache).AuthenticateRequest(c); err != nil {
		t.Fatalf("AuthenticateRequest: %v", err)
	}
}

func TestAuthenticateRequestMissingHeader(t *testing.T) {
	cache := oauth2param.NewCache()
	c := conn.NewConnection(nil, conn.ServerSide)

	if _, err := NewAuthenticator(cache).AuthenticateRequest(c); err == nil {
		t.Fatal("AuthenticateRequest succeeded with no Authorization header")
	}
}
