// Package scans normalizes scan results posted by agents and CI jobs and keeps
// a bounded, queryable history of them.
package scans

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

const (
	FindingOpen       = "OPEN"
	FindingInProgress = "IN_PROGRESS"
	FindingResolved   = "RESOLVED"
	FindingSuppressed = "SUPPRESSED"
)

// Finding is one vulnerability detected by a scan.
type Finding struct {
	VulnID       string          `json:"vuln_id"`
	Severity     string          `json:"severity"`
	Package      string          `json:"package"`
	Version      string          `json:"version"`
	FixedVersion string          `json:"fixed_version"`
	Description  string          `json:"description"`
	CVSSScore    *float64        `json:"cvss_score"`
	EPSSScore    *float64        `json:"epss_score"`
	Status       string          `json:"status"`
	URLs         []string        `json:"urls"`
	RawData      json.RawMessage `json:"raw_data,omitempty"`
}

// Summary counts findings per canonical severity. Unknown holds findings whose
// severity is none of the four.
type Summary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Unknown  int `json:"unknown"`
	Total    int `json:"total"`
}

// Add accumulates o into s.
func (s *Summary) Add(o Summary) {
	s.Critical += o.Critical
	s.High += o.High
	s.Medium += o.Medium
	s.Low += o.Low
	s.Unknown += o.Unknown
	s.Total += o.Total
}

// Project describes what was scanned. GitLabProjectID is accepted from older
// agents and folded into ExternalID.
type Project struct {
	Name            string `json:"name"`
	Environment     string `json:"environment,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
	GitLabProjectID *int64 `json:"gitlab_project_id,omitempty"`
}

// Source is the CI provenance of a scan.
type Source struct {
	PipelineID int64  `json:"pipeline_id"`
	JobID      int64  `json:"job_id"`
	SHA        string `json:"sha"`
}

// Record is a normalized, immutable scan result.
type Record struct {
	ScanID     string         `json:"scan_id"`
	AgentID    string         `json:"agent_id"`
	Timestamp  time.Time      `json:"timestamp"`
	TargetType string         `json:"target_type"`
	Target     string         `json:"target"`
	Findings   []Finding      `json:"findings"`
	Summary    Summary        `json:"summary"`
	Metadata   map[string]any `json:"metadata"`
	Project    Project        `json:"project"`
	Source     Source         `json:"source"`
	ReceivedAt time.Time      `json:"received_at"`
}

// LegacyMatches is the `grype` block older agents send next to, or instead of, findings.
type LegacyMatches struct {
	Matches []Finding `json:"matches"`
}

// Payload is an ingestion request before normalization.
type Payload struct {
	ScanID     string         `json:"scan_id" validate:"required"`
	AgentID    string         `json:"agent_id"`
	Timestamp  string         `json:"timestamp"`
	TargetType string         `json:"target_type"`
	Target     string         `json:"target" validate:"required"`
	Findings   []Finding      `json:"findings"`
	Summary    *Summary       `json:"summary"`
	Metadata   map[string]any `json:"metadata"`
	Grype      *LegacyMatches `json:"grype,omitempty"`
	Project    *Project       `json:"project"`
	Source     *Source        `json:"source"`
}

// Summarize counts findings by severity, case-insensitively.
func Summarize(findings []Finding) Summary {
	s := Summary{Total: len(findings)}
	for _, f := range findings {
		switch strings.ToUpper(strings.TrimSpace(f.Severity)) {
		case SeverityCritical:
			s.Critical++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		default:
			s.Unknown++
		}
	}
	return s
}

// consistentWith reports whether a caller-supplied summary can stand for findings.
func (s Summary) consistentWith(findings []Finding) bool {
	if s.Total != len(findings) {
		return false
	}
	if s.Critical < 0 || s.High < 0 || s.Medium < 0 || s.Low < 0 || s.Unknown < 0 {
		return false
	}
	return s.Critical+s.High+s.Medium+s.Low+s.Unknown <= s.Total
}

// Store holds the ordered scan history. Append must add rec and evict the
// oldest records beyond capacity as a single atomic step. List returns records
// in insertion order.
type Store interface {
	Append(ctx context.Context, rec Record, capacity int) (evicted int, err error)
	List(ctx context.Context) ([]Record, error)
}
