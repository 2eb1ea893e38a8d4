package oauth2param

import (
	"crypto/rsa"
	"fmt"
	"sync"
)

// LookupError reports a GetPublicKey scan that found no provider
// carrying the requested key-id.
type LookupError struct {
	Kid string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("oauth2param: no provider carries key id %q", e.Kid)
}

// Cache is the provider registry: AuthParam records indexed by
// provider name, with union helpers over their audiences/issuers and
// a first-match public-key lookup across all of them.
type Cache struct {
	mu        sync.RWMutex
	providers map[string]*AuthParam
	order     []string // registration order, so GetPublicKey scans deterministically
}

// NewCache returns an empty provider registry.
func NewCache() *Cache {
	return &Cache{providers: make(map[string]*AuthParam)}
}

// Register adds or replaces the AuthParam for a provider.
func (c *Cache) Register(p *AuthParam) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.providers[p.Provider]; !exists {
		c.order = append(c.order, p.Provider)
	}
	c.providers[p.Provider] = p
}

// Get returns the AuthParam for a provider, if registered.
func (c *Cache) Get(provider string) (*AuthParam, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.providers[provider]
	return p, ok
}

// GetAudiences returns the union of non-empty audiences across all
// registered providers, in registration order.
func (c *Cache) GetAudiences() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, name := range c.order {
		aud := c.providers[name].Audience
		if aud == "" || seen[aud] {
			continue
		}
		seen[aud] = true
		out = append(out, aud)
	}
	return out
}

// GetIssuers returns the union of non-empty issuers (both the
// singular Issuer field and the Issuers slice) across all registered
// providers, in registration order.
func (c *Cache) GetIssuers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	add := func(iss string) {
		if iss == "" || seen[iss] {
			return
		}
		seen[iss] = true
		out = append(out, iss)
	}
	for _, name := range c.order {
		p := c.providers[name]
		add(p.Issuer)
		for _, iss := range p.Issuers {
			add(iss)
		}
	}
	return out
}

// GetPublicKey scans providers in registration order and returns the
// first public key matching kid. A scan that exhausts every provider
// without a match fails with a *LookupError carrying kid.
func (c *Cache) GetPublicKey(kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	order := make([]string, len(c.order))
	copy(order, c.order)
	c.mu.RUnlock()

	for _, name := range order {
		p, ok := c.Get(name)
		if !ok {
			continue
		}
		if key, ok := p.publicKey(kid); ok {
			return key, nil
		}
	}
	return nil, &LookupError{Kid: kid}
}
