package storage

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
)

// ScanStore keeps the scan history in insertion order and trims it to
// capacity inside the insert transaction.
type ScanStore struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewScanStore(db *gorm.DB) *ScanStore {
	return &ScanStore{db: db}
}

func (s *ScanStore) Append(ctx context.Context, rec scans.Record, capacity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := scanRow(rec)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if capacity <= 0 {
			return nil
		}
		var count int64
		if err := tx.Model(&ScanResult{}).Count(&count).Error; err != nil {
			return err
		}
		excess := int(count) - capacity
		if excess <= 0 {
			return nil
		}
		var oldest []uint
		if err := tx.Model(&ScanResult{}).Order("seq asc").Limit(excess).Pluck("seq", &oldest).Error; err != nil {
			return err
		}
		if err := tx.Where("seq IN ?", oldest).Delete(&ScanResult{}).Error; err != nil {
			return err
		}
		evicted = len(oldest)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return evicted, nil
}

func (s *ScanStore) List(ctx context.Context) ([]scans.Record, error) {
	var rows []ScanResult
	if err := s.db.WithContext(ctx).Order("seq asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]scans.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func scanRow(r scans.Record) ScanResult {
	return ScanResult{
		ScanID:     r.ScanID,
		AgentID:    r.AgentID,
		Timestamp:  r.Timestamp.UTC(),
		TargetType: r.TargetType,
		Target:     r.Target,
		Findings:   r.Findings,
		Summary:    r.Summary,
		Metadata:   r.Metadata,
		Project:    r.Project,
		Source:     r.Source,
		ReceivedAt: r.ReceivedAt.UTC(),
	}
}

func (s ScanResult) record() scans.Record {
	findings := s.Findings
	if findings == nil {
		findings = []scans.Finding{}
	}
	metadata := s.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return scans.Record{
		ScanID:     s.ScanID,
		AgentID:    s.AgentID,
		Timestamp:  s.Timestamp.UTC(),
		TargetType: s.TargetType,
		Target:     s.Target,
		Findings:   findings,
		Summary:    s.Summary,
		Metadata:   metadata,
		Project:    s.Project,
		Source:     s.Source,
		ReceivedAt: s.ReceivedAt.UTC(),
	}
}

var _ scans.Store = (*ScanStore)(nil)
