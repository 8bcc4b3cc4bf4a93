// Package tokens issues, lists, revokes and validates the opaque bearer
// tokens agents and CI jobs present to the control plane. Only a digest of
// each secret is ever stored.
package tokens

import (
	"context"
	"slices"
	"time"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeScan  = "scan"
)

// DefaultScopes is applied when an issue request names none.
var DefaultScopes = []string{ScopeRead, ScopeWrite, ScopeScan}

// Record is the stored token metadata. Digest is never serialized.
type Record struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Digest      string     `json:"-"`
	Prefix      string     `json:"token_prefix"`
	Scopes      []string   `json:"scopes"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	LastUsed    *time.Time `json:"last_used"`
	Status      Status     `json:"status"`
}

// HasScope reports whether the token grants scope.
func (r Record) HasScope(scope string) bool {
	return slices.Contains(r.Scopes, scope)
}

// IsValid reports whether the token may authenticate a request at now.
func IsValid(r Record, now time.Time) bool {
	if r.Status != StatusActive {
		return false
	}
	if r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return false
	}
	return true
}

// Store persists token records. Implementations must be safe for concurrent
// use and return apperr.NotFound for unknown ids or digests.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	FindByDigest(ctx context.Context, digest string) (Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Record, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}
