// Package oauth defines the provider capability used for third-party
// identity linking: each provider exchanges an authorization code for an
// external profile. New providers are additive; register them in the
// Registry.
package oauth

import (
	"context"
	"time"
)

// Profile is the external identity a provider asserts after a successful
// code exchange.
type Profile struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
}

// Provider exchanges an authorization code for a Profile.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// Registry holds the configured providers keyed by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
