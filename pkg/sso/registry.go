// Package sso brokers single sign-on into downstream services through an
// OpenID Connect identity provider using the authorization code flow.
package sso

import (
	"net/url"
	"strings"
	"sync"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

// ServiceConfig describes a downstream service reachable through SSO.
type ServiceConfig struct {
	ID            string   `json:"service_id" yaml:"id"`
	URL           string   `json:"service_url" yaml:"url"`
	ClientID      string   `json:"client_id" yaml:"client_id"`
	RequiredRoles []string `json:"required_roles,omitempty" yaml:"required_roles"`
}

// Registry maps service ids to their SSO configuration.
type Registry struct {
	mu       sync.RWMutex
	services map[string]ServiceConfig
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[string]ServiceConfig)}
}

// Register adds or replaces a service.
func (r *Registry) Register(cfg ServiceConfig) error {
	cfg.ID = strings.TrimSpace(cfg.ID)
	if cfg.ID == "" {
		return apperr.Validation("service id is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return apperr.Validation("service %s: url %q must be absolute", cfg.ID, cfg.URL)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return apperr.Validation("service %s: client_id is required", cfg.ID)
	}
	cfg.RequiredRoles = append([]string(nil), cfg.RequiredRoles...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[cfg.ID]; !ok {
		r.order = append(r.order, cfg.ID)
	}
	r.services[cfg.ID] = cfg
	return nil
}

func (r *Registry) Get(id string) (ServiceConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.services[id]
	return cfg, ok
}

// List returns services in registration order.
func (r *Registry) List() []ServiceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.services[id])
	}
	return out
}
