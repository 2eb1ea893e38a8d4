package oauth2param

import (
	"encoding/json"
	"testing"
)

// testN is a syntactically valid base64url-encoded RSA modulus (not a
// real key) sized like a 2048-bit key, used only to exercise JWK
// decoding.
const testN = "gAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAQ"

func jwkSetJSON(kid string) json.RawMessage {
	set := JWKSet{Keys: []JWK{{Kid: kid, Kty: "RSA", Alg: "RS256", Use: "sig", N: testN, E: "AQAB"}}}
	data, err := json.Marshal(set)
	if err != nil {
		panic(err)
	}
	return data
}

func TestCacheGetPublicKeyHit(t *testing.T) {
	c := NewCache()
	p := &AuthParam{Provider: "auth0", Audience: "api", Issuer: "https://auth0.example/"}
	if err := p.SetKeys(jwkSetJSON("key-1")); err != nil {
		t.Fatalf("SetKeys failed: %v", err)
	}
	c.Register(p)

	key, err := c.GetPublicKey("key-1")
	if err != nil {
		t.Fatalf("GetPublicKey failed: %v", err)
	}
	if key.E != 65537 {
		t.Errorf("E = %d, want 65537", key.E)
	}
	if key.N.BitLen() == 0 {
		t.Errorf("N is zero")
	}
}

func TestCacheGetPublicKeyMissCarriesKid(t *testing.T) {
	c := NewCache()
	p := &AuthParam{Provider: "auth0"}
	if err := p.SetKeys(jwkSetJSON("key-1")); err != nil {
		t.Fatalf("SetKeys failed: %v", err)
	}
	c.Register(p)

	_, err := c.GetPublicKey("key-missing")
	if err == nil {
		t.Fatal("expected a LookupError")
	}
	lookupErr, ok := err.(*LookupError)
	if !ok {
		t.Fatalf("err = %T, want *LookupError", err)
	}
	if lookupErr.Kid != "key-missing" {
		t.Errorf("Kid = %q, want key-missing", lookupErr.Kid)
	}
}

func TestCacheGetPublicKeyScansMultipleProviders(t *testing.T) {
	c := NewCache()
	p1 := &AuthParam{Provider: "first"}
	_ = p1.SetKeys(jwkSetJSON("only-in-first"))
	p2 := &AuthParam{Provider: "second"}
	_ = p2.SetKeys(jwkSetJSON("only-in-second"))
	c.Register(p1)
	c.Register(p2)

	if _, err := c.GetPublicKey("only-in-second"); err != nil {
		t.Fatalf("GetPublicKey failed to find key on second provider: %v", err)
	}
}

func TestCacheGetAudiencesAndIssuersDeduped(t *testing.T) {
	c := NewCache()
	c.Register(&AuthParam{Provider: "a", Audience: "api", Issuer: "https://iss-a/"})
	c.Register(&AuthParam{Provider: "b", Audience: "api", Issuer: "https://iss-b/", Issuers: []string{"https://iss-a/", "https://iss-c/"}})

	aud := c.GetAudiences()
	if len(aud) != 1 || aud[0] != "api" {
		t.Fatalf("GetAudiences = %v, want [api]", aud)
	}

	iss := c.GetIssuers()
	want := map[string]bool{"https://iss-a/": true, "https://iss-b/": true, "https://iss-c/": true}
	if len(iss) != len(want) {
		t.Fatalf("GetIssuers = %v, want 3 distinct entries", iss)
	}
	for _, v := range iss {
		if !want[v] {
			t.Errorf("unexpected issuer %q", v)
		}
	}
}

func TestCacheRegisterReplacesExistingProvider(t *testing.T) {
	c := NewCache()
	c.Register(&AuthParam{Provider: "a", Audience: "old"})
	c.Register(&AuthParam{Provider: "a", Audience: "new"})

	p, ok := c.Get("a")
	if !ok {
		t.Fatal("provider a not found")
	}
	if p.Audience != "new" {
		t.Errorf("Audience = %q, want new", p.Audience)
	}
	if len(c.GetAudiences()) != 1 {
		t.Errorf("GetAudiences = %v, want one entry (re-registration shouldn't duplicate order)", c.GetAudiences())
	}
}
