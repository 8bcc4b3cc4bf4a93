// Package scanner runs grype or trivy against a target and converts their
// JSON reports into scan findings.
package scanner

import (
	"encoding/json"
	"fmt"

	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
)

const unknownValue = "unknown"

type grypeReport struct {
	Matches []json.RawMessage `json:"matches"`
}

type grypeMatch struct {
	Vulnerability struct {
		ID          string   `json:"id"`
		Severity    string   `json:"severity"`
		Description string   `json:"description"`
		URLs        []string `json:"urls"`
		Fix         *struct {
			Versions []string `json:"versions"`
		} `json:"fix"`
		CVSS []struct {
			Metrics struct {
				BaseScore *float64 `json:"baseScore"`
			} `json:"metrics"`
		} `json:"cvss"`
	} `json:"vulnerability"`
	Artifact struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"artifact"`
}

// ParseGrype converts `grype -o json` output. Each match is kept as raw data.
func ParseGrype(data []byte) ([]scans.Finding, error) {
	var report grypeReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode grype report: %w", err)
	}
	findings := make([]scans.Finding, 0, len(report.Matches))
	for i, raw := range report.Matches {
		var m grypeMatch
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode grype match %d: %w", i, err)
		}
		v := m.Vulnerability
		f := scans.Finding{
			VulnID:      orUnknown(v.ID),
			Severity:    orUnknown(v.Severity),
			Package:     orUnknown(m.Artifact.Name),
			Version:     orUnknown(m.Artifact.Version),
			Description: v.Description,
			URLs:        nonNil(v.URLs),
			RawData:     raw,
		}
		if v.Fix != nil && len(v.Fix.Versions) > 0 {
			f.FixedVersion = v.Fix.Versions[0]
		}
		if len(v.CVSS) > 0 {
			f.CVSSScore = v.CVSS[0].Metrics.BaseScore
		}
		findings = append(findings, f)
	}
	return findings, nil
}

type trivyReport struct {
	Results []struct {
		Vulnerabilities []json.RawMessage `json:"Vulnerabilities"`
	} `json:"Results"`
}

type trivyVulnerability struct {
	VulnerabilityID  string   `json:"VulnerabilityID"`
	PkgName          string   `json:"PkgName"`
	InstalledVersion string   `json:"InstalledVersion"`
	FixedVersion     string   `json:"FixedVersion"`
	Severity         string   `json:"Severity"`
	Description      string   `json:"Description"`
	References       []string `json:"References"`
	CVSS             map[string]struct {
		V3Score *float64 `json:"V3Score"`
	} `json:"CVSS"`
}

// ParseTrivy converts `trivy -f json` output.
func ParseTrivy(data []byte) ([]scans.Finding, error) {
	var report trivyReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode trivy report: %w", err)
	}
	findings := []scans.Finding{}
	for _, result := range report.Results {
		for i, raw := range result.Vulnerabilities {
			var v trivyVulnerability
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decode trivy vulnerability %d: %w", i, err)
			}
			f := scans.Finding{
				VulnID:       orUnknown(v.VulnerabilityID),
				Severity:     orUnknown(v.Severity),
				Package:      orUnknown(v.PkgName),
				Version:      orUnknown(v.InstalledVersion),
				FixedVersion: v.FixedVersion,
				Description:  v.Description,
				URLs:         nonNil(v.References),
				RawData:      raw,
			}
			if nvd, ok := v.CVSS["nvd"]; ok {
				f.CVSSScore = nvd.V3Score
			}
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
