package sso

import (
	"context"
	"sync"
	"time"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

// Session is the per-browser SSO state. One access token is held per session
// regardless of which service it was obtained for.
type Session struct {
	ID             string    `json:"id"`
	AccessToken    string    `json:"access_token,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	PendingService string    `json:"pending_service,omitempty"`
}

// Valid reports whether the session holds an unexpired access token.
func (s Session) Valid(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// SessionStore persists sessions. Get returns a NotFound error for unknown or
// expired sessions.
type SessionStore interface {
	Get(ctx context.Context, id string) (Session, error)
	Put(ctx context.Context, s Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	session  Session
	deadline time.Time
}

const (
	// pruneThreshold is the table size at which Put starts sweeping expired entries.
	pruneThreshold = 1024
	pruneInterval  = time.Minute
)

// MemorySessionStore expires entries on read. Once the table holds
// pruneThreshold entries, Put also sweeps expired ones, at most once per
// pruneInterval.
type MemorySessionStore struct {
	mu        sync.Mutex
	sessions  map[string]memoryEntry
	lastPrune time.Time
	now       func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if ok && !e.deadline.IsZero() && !m.now().Before(e.deadline) {
		delete(m.sessions, id)
		ok = false
	}
	if !ok {
		return Session{}, apperr.NotFound("session not found")
	}
	return e.session, nil
}

func (m *MemorySessionStore) Put(_ context.Context, s Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e := memoryEntry{session: s}
	if ttl > 0 {
		e.deadline = now.Add(ttl)
	}
	m.sessions[s.ID] = e
	m.prune(now)
	return nil
}

func (m *MemorySessionStore) prune(now time.Time) {
	if len(m.sessions) < pruneThreshold {
		return
	}
	if !m.lastPrune.IsZero() && now.Sub(m.lastPrune) < pruneInterval {
		return
	}
	m.lastPrune = now
	for id, e := range m.sessions {
		if !e.deadline.IsZero() && !now.Before(e.deadline) {
			delete(m.sessions, id)
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
