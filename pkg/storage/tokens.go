package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
	"github.com/optimal-cyber/launchpad-sub001/pkg/tokens"
)

type TokenStore struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) Put(ctx context.Context, rec tokens.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := tokenRow(rec)
		var existing APIToken
		err := tx.Where("token_id = ?", rec.ID).First(&existing).Error
		switch {
		case err == nil:
			row.Seq = existing.Seq
			return tx.Save(&row).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&row).Error
		default:
			return err
		}
	})
}

func (s *TokenStore) Get(ctx context.Context, id string) (tokens.Record, error) {
	var row APIToken
	if err := s.db.WithContext(ctx).Where("token_id = ?", id).First(&row).Error; err != nil {
		return tokens.Record{}, notFoundOr(err, "token %s not found", id)
	}
	return row.record(), nil
}

func (s *TokenStore) FindByDigest(ctx context.Context, digest string) (tokens.Record, error) {
	var row APIToken
	if err := s.db.WithContext(ctx).Where("digest = ?", digest).First(&row).Error; err != nil {
		return tokens.Record{}, notFoundOr(err, "token not found")
	}
	return row.record(), nil
}

func (s *TokenStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.db.WithContext(ctx).Where("token_id = ?", id).Delete(&APIToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("token %s not found", id)
	}
	return nil
}

func (s *TokenStore) List(ctx context.Context) ([]tokens.Record, error) {
	var rows []APIToken
	if err := s.db.WithContext(ctx).Order("seq asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]tokens.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func (s *TokenStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&APIToken{}).Where("token_id = ?", id).Update("last_used", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("token %s not found", id)
	}
	return nil
}

func tokenRow(r tokens.Record) APIToken {
	return APIToken{
		TokenID:     r.ID,
		Name:        r.Name,
		Description: r.Description,
		Digest:      r.Digest,
		Prefix:      r.Prefix,
		Scopes:      append([]string(nil), r.Scopes...),
		CreatedAt:   r.CreatedAt.UTC(),
		ExpiresAt:   utcPtr(r.ExpiresAt),
		LastUsed:    utcPtr(r.LastUsed),
		Status:      string(r.Status),
	}
}

func (t APIToken) record() tokens.Record {
	scopes := t.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return tokens.Record{
		ID:          t.TokenID,
		Name:        t.Name,
		Description: t.Description,
		Digest:      t.Digest,
		Prefix:      t.Prefix,
		Scopes:      scopes,
		CreatedAt:   t.CreatedAt.UTC(),
		ExpiresAt:   utcPtr(t.ExpiresAt),
		LastUsed:    utcPtr(t.LastUsed),
		Status:      tokens.Status(t.Status),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

var _ tokens.Store = (*TokenStore)(nil)
