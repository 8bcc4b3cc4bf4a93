package scans

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
)

const (
	defaultAgentID    = "api-upload"
	defaultTargetType = "image"
	manualUploadSHA   = "manual-upload"
)

// Agents running older scanners emit ISO-8601 without a zone; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC3339 and zone-less ISO-8601 times, returning UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, apperr.Validation("timestamp %q is not an ISO-8601 time", raw)
}

func normalizeStatus(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	switch s {
	case "":
		return FindingOpen, true
	case FindingOpen, FindingInProgress, FindingResolved, FindingSuppressed:
		return s, true
	}
	return "", false
}

func normalizeSeverity(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return s
	}
	return strings.TrimSpace(raw)
}

func normalizeFindings(in []Finding) ([]Finding, error) {
	out := make([]Finding, 0, len(in))
	for i, f := range in {
		status, ok := normalizeStatus(f.Status)
		if !ok {
			return nil, apperr.Validation("findings[%d].status %q is not one of OPEN, IN_PROGRESS, RESOLVED, SUPPRESSED", i, f.Status)
		}
		f.Status = status
		f.Severity = normalizeSeverity(f.Severity)
		if f.URLs == nil {
			f.URLs = []string{}
		}
		out = append(out, f)
	}
	return out, nil
}

// projectName derives a name from an image reference: the last path segment
// without its tag.
func projectName(target string) string {
	name := target
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return target
	}
	return name
}

func normalizeProject(p *Project, target string) Project {
	var out Project
	if p != nil {
		out = *p
	}
	out.Name = strings.TrimSpace(out.Name)
	if out.Name == "" {
		out.Name = projectName(target)
	}
	if out.ExternalID == "" && out.GitLabProjectID != nil {
		out.ExternalID = strconv.FormatInt(*out.GitLabProjectID, 10)
	}
	if out.ExternalID == "" {
		out.ExternalID = uuid.NewString()
	}
	out.GitLabProjectID = nil
	return out
}

func normalizeSource(s *Source, now time.Time) Source {
	if s != nil {
		return *s
	}
	ms := now.UnixMilli()
	return Source{PipelineID: ms, JobID: ms + 1, SHA: manualUploadSHA}
}

// normalize turns a payload into a record stamped with receivedAt.
func normalize(p Payload, receivedAt time.Time) (Record, error) {
	scanID := strings.TrimSpace(p.ScanID)
	if scanID == "" {
		return Record{}, apperr.Validation("scan_id is required")
	}
	target := strings.TrimSpace(p.Target)
	if target == "" {
		return Record{}, apperr.Validation("target is required")
	}

	ts := receivedAt
	if strings.TrimSpace(p.Timestamp) != "" {
		parsed, err := ParseTimestamp(p.Timestamp)
		if err != nil {
			return Record{}, err
		}
		ts = parsed
	}

	raw := p.Findings
	if raw == nil && p.Grype != nil {
		raw = p.Grype.Matches
	}
	findings, err := normalizeFindings(raw)
	if err != nil {
		return Record{}, err
	}

	summary := Summarize(findings)
	if p.Summary != nil && p.Summary.consistentWith(findings) {
		summary = *p.Summary
	}

	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	agentID := strings.TrimSpace(p.AgentID)
	if agentID == "" {
		agentID = defaultAgentID
	}
	targetType := strings.TrimSpace(p.TargetType)
	if targetType == "" {
		targetType = defaultTargetType
	}

	return Record{
		ScanID:     scanID,
		AgentID:    agentID,
		Timestamp:  ts,
		TargetType: targetType,
		Target:     target,
		Findings:   findings,
		Summary:    summary,
		Metadata:   metadata,
		Project:    normalizeProject(p.Project, target),
		Source:     normalizeSource(p.Source, receivedAt),
		ReceivedAt: receivedAt,
	}, nil
}
