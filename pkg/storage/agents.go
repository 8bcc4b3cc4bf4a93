package storage

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/optimal-cyber/launchpad-sub001/pkg/agents"
)

type AgentStore struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewAgentStore(db *gorm.DB) *AgentStore {
	return &AgentStore{db: db}
}

func (s *AgentStore) Get(ctx context.Context, agentID string) (agents.Record, error) {
	var row AgentState
	if err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&row).Error; err != nil {
		return agents.Record{}, notFoundOr(err, "agent %s not found", agentID)
	}
	return row.record(), nil
}

func (s *AgentStore) Put(ctx context.Context, rec agents.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := agentRow(rec)
		var existing AgentState
		err := tx.Where("agent_id = ?", rec.AgentID).First(&existing).Error
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

func (s *AgentStore) List(ctx context.Context) ([]agents.Record, error) {
	var rows []AgentState
	if err := s.db.WithContext(ctx).Order("seq asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]agents.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func agentRow(r agents.Record) AgentState {
	return AgentState{
		AgentID:       r.AgentID,
		Hostname:      r.Hostname,
		OS:            r.OS,
		OSVersion:     r.OSVersion,
		ScannerType:   r.ScannerType,
		Version:       r.Version,
		Capabilities:  append([]string{}, r.Capabilities...),
		RegisteredAt:  r.RegisteredAt.UTC(),
		LastHeartbeat: r.LastHeartbeat.UTC(),
		Status:        string(r.Status),
	}
}

func (a AgentState) record() agents.Record {
	caps := a.Capabilities
	if caps == nil {
		caps = []string{}
	}
	return agents.Record{
		AgentID:       a.AgentID,
		Hostname:      a.Hostname,
		OS:            a.OS,
		OSVersion:     a.OSVersion,
		ScannerType:   a.ScannerType,
		Version:       a.Version,
		Capabilities:  caps,
		RegisteredAt:  a.RegisteredAt.UTC(),
		LastHeartbeat: a.LastHeartbeat.UTC(),
		Status:        agents.Status(a.Status),
	}
}

var _ agents.Store = (*AgentStore)(nil)
