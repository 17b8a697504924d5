// Package providers describes how each third-party service authenticates and
// how long its responses may be cached.
package providers

import (
	"sort"
	"time"
)

// DefaultTTL applies to services without their own cache lifetime.
const DefaultTTL = 300 * time.Second

// Request is the mutable part of an outbound call that a provider may
// decorate with credentials.
type Request struct {
	Path    string
	Params  map[string]string
	Headers map[string]string
}

// Provider defines the interface that every upstream service must implement
type Provider interface {
	// Name returns the service name (e.g., "openweather", "github")
	Name() string

	// TTL is how long successful responses stay cached.
	TTL() time.Duration

	// Inject places the plaintext secret into req.
	Inject(secret string, req *Request)
}

// Registry manages the known upstream services
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider, replacing any previous one with the same name
func (r *Registry) Register(provider Provider) {
	r.providers[provider.Name()] = provider
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, bool) {
	provider, exists := r.providers[name]
	return provider, exists
}

// TTL returns the cache lifetime for name, or DefaultTTL when unknown.
func (r *Registry) TTL(name string) time.Duration {
	if p, ok := r.providers[name]; ok && p.TTL() > 0 {
		return p.TTL()
	}
	return DefaultTTL
}

// Inject applies name's credential scheme. Unknown services pass through
// unchanged.
func (r *Registry) Inject(name, secret string, req *Request) {
	if p, ok := r.providers[name]; ok {
		p.Inject(secret, req)
	}
}

// List returns all registered provider names in sorted order
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
