package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

// Registry upserts agents on registration. Registration and heartbeat are the
// same write; Heartbeat is a shortcut for agents that only want to refresh.
type Registry struct {
	store Store
	mu    sync.Mutex
	now   func() time.Time
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// Register creates or overwrites the agent record and refreshes its heartbeat.
func (r *Registry) Register(ctx context.Context, reg Registration) (Record, error) {
	agentID := strings.TrimSpace(reg.AgentID)
	if agentID == "" {
		return Record{}, apperr.Validation("agent_id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	registeredAt := now
	existing, err := r.store.Get(ctx, agentID)
	switch {
	case err == nil:
		registeredAt = existing.RegisteredAt
	case !errors.Is(err, apperr.ErrNotFound):
		return Record{}, apperr.Internal("agent lookup failed", err)
	}
	if reg.RegisteredAt != nil && !reg.RegisteredAt.IsZero() {
		registeredAt = reg.RegisteredAt.UTC()
	}

	rec := Record{
		AgentID:       agentID,
		Hostname:      orDefault(reg.Hostname, unknown),
		OS:            orDefault(reg.OS, unknown),
		OSVersion:     orDefault(reg.OSVersion, unknown),
		ScannerType:   orDefault(reg.ScannerType, unknown),
		Version:       orDefault(reg.Version, defaultVersion),
		Capabilities:  dedupe(reg.Capabilities),
		RegisteredAt:  registeredAt,
		LastHeartbeat: now,
		Status:        StatusActive,
	}
	if err := r.store.Put(ctx, rec); err != nil {
		return Record{}, apperr.Internal("failed to persist agent", err)
	}
	return rec, nil
}

// Heartbeat refreshes the heartbeat of a known agent.
func (r *Registry) Heartbeat(ctx context.Context, agentID string) (Record, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return Record{}, apperr.Validation("agent_id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.store.Get(ctx, agentID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Record{}, err
		}
		return Record{}, apperr.Internal("agent lookup failed", err)
	}
	rec.LastHeartbeat = r.now().UTC()
	rec.Status = StatusActive
	if err := r.store.Put(ctx, rec); err != nil {
		return Record{}, apperr.Internal("failed to persist agent", err)
	}
	return rec, nil
}

func (r *Registry) Get(ctx context.Context, agentID string) (Record, error) {
	rec, err := r.store.Get(ctx, agentID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return Record{}, apperr.Internal("agent lookup failed", err)
	}
	return rec, err
}

func (r *Registry) List(ctx context.Context) ([]Record, error) {
	recs, err := r.store.List(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list agents", err)
	}
	return recs, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
