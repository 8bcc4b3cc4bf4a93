package storage

import (
	"time"

	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
)

// APIToken stores issued bearer token metadata. Only the digest of the secret is kept.
type APIToken struct {
	Seq         uint   `gorm:"primaryKey;autoIncrement"`
	TokenID     string `gorm:"size:64;uniqueIndex"`
	Name        string
	Description string     `gorm:"type:text"`
	Digest      string     `gorm:"size:128;uniqueIndex"`
	Prefix      string     `gorm:"size:32"`
	Scopes      []string   `gorm:"serializer:json;type:text"`
	CreatedAt   time.Time  `gorm:"autoCreateTime:false"`
	ExpiresAt   *time.Time `gorm:"index"`
	LastUsed    *time.Time
	Status      string `gorm:"size:16"`
}

// AgentState is the registry row for one scanning agent.
type AgentState struct {
	Seq           uint   `gorm:"primaryKey;autoIncrement"`
	AgentID       string `gorm:"size:191;uniqueIndex"`
	Hostname      string `gorm:"size:191;index"`
	OS            string
	OSVersion     string
	ScannerType   string
	Version       string
	Capabilities  []string `gorm:"serializer:json;type:text"`
	RegisteredAt  time.Time
	LastHeartbeat time.Time `gorm:"index"`
	Status        string    `gorm:"size:16"`
}

// ScanResult is one ingested scan. Seq preserves ingestion order for eviction.
type ScanResult struct {
	Seq        uint            `gorm:"primaryKey;autoIncrement"`
	ScanID     string          `gorm:"size:191;index"`
	AgentID    string          `gorm:"size:191;index"`
	Timestamp  time.Time       `gorm:"index"`
	TargetType string          `gorm:"size:64"`
	Target     string          `gorm:"type:text"`
	Findings   []scans.Finding `gorm:"serializer:json;type:longtext"`
	Summary    scans.Summary   `gorm:"serializer:json;type:text"`
	Metadata   map[string]any  `gorm:"serializer:json;type:longtext"`
	Project    scans.Project   `gorm:"serializer:json;type:text"`
	Source     scans.Source    `gorm:"serializer:json;type:text"`
	ReceivedAt time.Time
}
