package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

// MemoryStore keeps tokens for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]Record
	byDigest map[string]string
	order    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]Record),
		byDigest: make(map[string]string),
	}
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byID[rec.ID]; ok {
		delete(s.byDigest, prev.Digest)
	} else {
		s.order = append(s.order, rec.ID)
	}
	s.byID[rec.ID] = cloneRecord(rec)
	s.byDigest[rec.Digest] = rec.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return Record{}, apperr.NotFound("token %s not found", id)
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) FindByDigest(_ context.Context, digest string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDigest[digest]
	if !ok {
		return Record{}, apperr.NotFound("token not found")
	}
	return cloneRecord(s.byID[id]), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return apperr.NotFound("token %s not found", id)
	}
	delete(s.byID, id)
	delete(s.byDigest, rec.Digest)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneRecord(s.byID[id]))
	}
	return out, nil
}

func (s *MemoryStore) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return apperr.NotFound("token %s not found", id)
	}
	t := at
	rec.LastUsed = &t
	s.byID[id] = rec
	return nil
}

func cloneRecord(r Record) Record {
	r.Scopes = append([]string(nil), r.Scopes...)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		r.ExpiresAt = &t
	}
	if r.LastUsed != nil {
		t := *r.LastUsed
		r.LastUsed = &t
	}
	return r
}

var _ Store = (*MemoryStore)(nil)
