// Package agents tracks registered scanning agents and their heartbeats.
package agents

import (
	"context"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

const (
	unknown        = "unknown"
	defaultVersion = "1.0.0"
)

// Record is the registry entry for one agent.
type Record struct {
	AgentID       string    `json:"agent_id"`
	Hostname      string    `json:"hostname"`
	OS            string    `json:"os"`
	OSVersion     string    `json:"os_version"`
	ScannerType   string    `json:"scanner_type"`
	Version       string    `json:"version"`
	Capabilities  []string  `json:"capabilities"`
	RegisteredAt  time.Time `json:"registered_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Status        Status    `json:"status"`
}

// Registration is the caller-supplied part of a record. Only AgentID is required.
type Registration struct {
	AgentID      string
	Hostname     string
	OS           string
	OSVersion    string
	ScannerType  string
	Version      string
	Capabilities []string
	RegisteredAt *time.Time
}

// EffectiveStatus is the liveness of r at now. A non-positive timeout disables
// the staleness check.
func EffectiveStatus(r Record, now time.Time, timeout time.Duration) Status {
	if r.Status != StatusActive {
		return r.Status
	}
	if timeout > 0 && now.Sub(r.LastHeartbeat) > timeout {
		return StatusInactive
	}
	return StatusActive
}

// Store persists agent records keyed by agent id. Get returns apperr.NotFound
// for unknown agents.
type Store interface {
	Get(ctx context.Context, agentID string) (Record, error)
	Put(ctx context.Context, rec Record) error
	List(ctx context.Context) ([]Record, error)
}
