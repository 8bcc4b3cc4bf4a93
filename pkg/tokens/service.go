package tokens

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

const (
	secretTag    = "opt_"
	secretBytes  = 24
	prefixLength = 12
	prefixMarker = "..."
	defaultName  = "API Token"
	hoursInADay  = 24
)

// IssueRequest describes a token to mint. A nil ExpiresInDays means the token
// never expires.
type IssueRequest struct {
	Name          string
	Description   string
	Scopes        []string
	ExpiresInDays *int
}

// Issued carries the secret, which is returned exactly once.
type Issued struct {
	Secret string
	Record Record
}

// Service is the token store: it mints secrets and keeps only their digests.
type Service struct {
	store  Store
	hasher Hasher
	now    func() time.Time
}

func NewService(store Store, hasher Hasher) *Service {
	return &Service{store: store, hasher: hasher, now: time.Now}
}

// Issue mints a new token.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (Issued, error) {
	if req.ExpiresInDays != nil && *req.ExpiresInDays < 0 {
		return Issued{}, apperr.Validation("expires_in_days must not be negative")
	}

	secret, err := generateSecret()
	if err != nil {
		return Issued{}, apperr.Internal("failed to generate token", err)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return Issued{}, apperr.Internal("failed to generate token id", err)
	}

	now := s.now().UTC()
	rec := Record{
		ID:          id.String(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Digest:      s.hasher.Digest(secret),
		Prefix:      secret[:prefixLength] + prefixMarker,
		Scopes:      normalizeScopes(req.Scopes),
		CreatedAt:   now,
		Status:      StatusActive,
	}
	if rec.Name == "" {
		rec.Name = defaultName
	}
	if req.ExpiresInDays != nil {
		exp := now.Add(time.Duration(*req.ExpiresInDays) * hoursInADay * time.Hour)
		rec.ExpiresAt = &exp
	}

	if err := s.store.Put(ctx, rec); err != nil {
		return Issued{}, apperr.Internal("failed to persist token", err)
	}
	return Issued{Secret: secret, Record: rec}, nil
}

// List returns every stored token. Digests never leave the store through
// JSON because Record hides them.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list tokens", err)
	}
	for i := range recs {
		recs[i].Digest = ""
	}
	return recs, nil
}

// Revoke removes a token. A second revoke of the same id reports NotFound.
func (s *Service) Revoke(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation("token id is required")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Internal("failed to revoke token", err)
	}
	return nil
}

// Validate authenticates a presented secret. requiredScope may be empty.
func (s *Service) Validate(ctx context.Context, secret, requiredScope string) (Record, error) {
	if secret == "" {
		return Record{}, apperr.Unauthorized("missing bearer token")
	}
	digest := s.hasher.Digest(secret)
	rec, err := s.store.FindByDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Record{}, apperr.Unauthorized("invalid bearer token")
		}
		return Record{}, apperr.Internal("token lookup failed", err)
	}
	if subtle.ConstantTimeCompare([]byte(rec.Digest), []byte(digest)) != 1 {
		return Record{}, apperr.Unauthorized("invalid bearer token")
	}

	now := s.now().UTC()
	if !IsValid(rec, now) {
		return Record{}, apperr.Unauthorized("token expired or revoked")
	}
	if requiredScope != "" && !rec.HasScope(requiredScope) {
		return Record{}, apperr.Forbidden("token lacks scope %q", requiredScope)
	}

	if err := s.store.TouchLastUsed(ctx, rec.ID, now); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return Record{}, apperr.Internal("failed to record token use", err)
	}
	rec.LastUsed = &now
	rec.Digest = ""
	return rec, nil
}

func generateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return secretTag + hex.EncodeToString(b), nil
}

func normalizeScopes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultScopes...)
	}
	return out
}
