package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
)

func TestEvaluate(t *testing.T) {
	gate := &Policy{
		Rules: []Rule{
			{Name: "no-critical", Check: "critical == 0", Action: ActionDeny},
			{Name: "few-high", Check: "high <= 3", Action: ActionDeny},
			{Name: "medium-budget", Check: "medium < 10", Action: ActionWarn},
		},
	}

	tests := []struct {
		name           string
		summary        scans.Summary
		policy         *Policy
		wantPass       bool
		wantViolations []string
		wantWarnings   []string
	}{
		{
			name:           "clean scan",
			summary:        scans.Summary{Low: 4, Total: 4},
			policy:         gate,
			wantPass:       true,
			wantViolations: []string{},
			wantWarnings:   []string{},
		},
		{
			name:           "critical finding denies",
			summary:        scans.Summary{Critical: 1, Total: 1},
			policy:         gate,
			wantPass:       false,
			wantViolations: []string{"no-critical"},
			wantWarnings:   []string{},
		},
		{
			name:           "warn rule does not deny",
			summary:        scans.Summary{Medium: 12, Total: 12},
			policy:         gate,
			wantPass:       true,
			wantViolations: []string{},
			wantWarnings:   []string{"medium-budget"},
		},
		{
			name:    "unknown checks pass",
			summary: scans.Summary{Critical: 5, Total: 5},
			policy: &Policy{Rules: []Rule{
				{Name: "garbled", Check: "critical is zero", Action: ActionDeny},
				{Name: "field", Check: "epss > 1", Action: ActionDeny},
				{Name: "op", Check: "critical ~ 0", Action: ActionDeny},
			}},
			wantPass:       true,
			wantViolations: []string{},
			wantWarnings:   []string{},
		},
		{
			name:           "nil policy",
			summary:        scans.Summary{Critical: 1, Total: 1},
			wantPass:       true,
			wantViolations: []string{},
			wantWarnings:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := Evaluate(tt.summary, tt.policy)
			require.Equal(t, tt.wantPass, eval.Compliant)
			require.Equal(t, tt.wantViolations, eval.Violations)
			require.Equal(t, tt.wantWarnings, eval.Warnings)
		})
	}
}

func TestCheckRuleOperators(t *testing.T) {
	s := scans.Summary{High: 2, Total: 2}
	cases := map[string]bool{
		"high < 2":  false,
		"high <= 2": true,
		"high == 2": true,
		"high != 2": false,
		"high >= 3": false,
		"total > 1": true,
	}
	for check, want := range cases {
		require.Equal(t, want, checkRule(s, Rule{Check: check}), check)
	}
}

func TestLoad(t *testing.T) {
	pol, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Empty(t, pol.Rules)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - name: no-critical
    check: critical == 0
  - name: medium-budget
    check: medium < 10
    action: WARN
`), 0o600))
	pol, err = Load(path)
	require.NoError(t, err)
	require.Len(t, pol.Rules, 2)
	require.Equal(t, ActionDeny, pol.Rules[0].Action)
	require.Equal(t, ActionWarn, pol.Rules[1].Action)

	_, err = Parse([]byte("rules:\n  - name: x\n    check: total > 0\n    action: block\n"))
	require.Error(t, err)
}

func TestExamplePolicy(t *testing.T) {
	pol, err := Load(filepath.Join("..", "..", "configs", "policy.example.yaml"))
	require.NoError(t, err)

	eval := Evaluate(scans.Summary{Critical: 1, High: 7, Total: 8}, pol)
	require.False(t, eval.Compliant)
	require.Equal(t, []string{"no-critical"}, eval.Violations)
	require.Equal(t, []string{"high-budget"}, eval.Warnings)
}
