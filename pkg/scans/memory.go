package scans

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is a FIFO-bounded in-process history.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec Record, capacity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, clone(rec))
	if capacity <= 0 || len(s.records) <= capacity {
		return 0, nil
	}
	evicted := len(s.records) - capacity
	n := copy(s.records, s.records[evicted:])
	clear(s.records[n:])
	s.records = s.records[:n]
	return evicted, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	for i, rec := range s.records {
		out[i] = clone(rec)
	}
	return out, nil
}

// clone copies everything a caller could mutate through a Record.
func clone(r Record) Record {
	if r.Findings != nil {
		findings := make([]Finding, len(r.Findings))
		for i, f := range r.Findings {
			f.URLs = slices.Clone(f.URLs)
			f.RawData = slices.Clone(f.RawData)
			if f.CVSSScore != nil {
				v := *f.CVSSScore
				f.CVSSScore = &v
			}
			if f.EPSSScore != nil {
				v := *f.EPSSScore
				f.EPSSScore = &v
			}
			findings[i] = f
		}
		r.Findings = findings
	}
	if r.Metadata != nil {
		r.Metadata = cloneValue(r.Metadata).(map[string]any)
	}
	if r.Project.GitLabProjectID != nil {
		v := *r.Project.GitLabProjectID
		r.Project.GitLabProjectID = &v
	}
	return r
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

var _ Store = (*MemoryStore)(nil)
