package agents

import (
	"context"
	"sync"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

// MemoryStore keeps agents for the lifetime of the process, listing them in
// first-registration order.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]Record
	order  []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, agentID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.agents[agentID]
	if !ok {
		return Record{}, apperr.NotFound("agent %s not found", agentID)
	}
	return clone(rec), nil
}

func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[rec.AgentID]; !ok {
		s.order = append(s.order, rec.AgentID)
	}
	s.agents[rec.AgentID] = clone(rec)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(s.agents[id]))
	}
	return out, nil
}

func clone(r Record) Record {
	r.Capabilities = append([]string{}, r.Capabilities...)
	return r
}

var _ Store = (*MemoryStore)(nil)
