package policy

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
)

const (
	ActionDeny = "deny"
	ActionWarn = "warn"
)

type Rule struct {
	Name   string `yaml:"name" json:"name"`
	Check  string `yaml:"check" json:"check"`
	Action string `yaml:"action" json:"action"` // "deny" or "warn"
}

type Policy struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

type Evaluation struct {
	Compliant  bool     `json:"compliant"`
	Violations []string `json:"violations"`
	Warnings   []string `json:"warnings"`
}

// Load reads a YAML policy file. A missing file yields an empty policy.
func Load(path string) (*Policy, error) {
	if path == "" {
		return &Policy{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Policy{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Policy, error) {
	var pol Policy
	if err := yaml.Unmarshal(data, &pol); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	for i, r := range pol.Rules {
		switch strings.ToLower(r.Action) {
		case "", ActionDeny:
			pol.Rules[i].Action = ActionDeny
		case ActionWarn:
			pol.Rules[i].Action = ActionWarn
		default:
			return nil, fmt.Errorf("rule %q: unknown action %q", r.Name, r.Action)
		}
	}
	return &pol, nil
}

// Evaluate applies every rule to a scan summary.
func Evaluate(summary scans.Summary, policy *Policy) *Evaluation {
	eval := &Evaluation{
		Compliant:  true,
		Violations: []string{},
		Warnings:   []string{},
	}
	if policy == nil {
		return eval
	}

	for _, rule := range policy.Rules {
		if checkRule(summary, rule) {
			continue
		}
		if rule.Action == ActionWarn {
			eval.Warnings = append(eval.Warnings, rule.Name)
			continue
		}
		eval.Compliant = false
		eval.Violations = append(eval.Violations, rule.Name)
	}

	return eval
}

// checkRule evaluates "<field> <op> <int>". Checks it cannot parse pass.
func checkRule(s scans.Summary, rule Rule) bool {
	parts := strings.Fields(rule.Check)
	if len(parts) != 3 {
		return true
	}
	var value int
	switch strings.ToLower(parts[0]) {
	case "critical":
		value = s.Critical
	case "high":
		value = s.High
	case "medium":
		value = s.Medium
	case "low":
		value = s.Low
	case "unknown":
		value = s.Unknown
	case "total":
		value = s.Total
	default:
		return true
	}
	limit, err := strconv.Atoi(parts[2])
	if err != nil {
		return true
	}

	switch parts[1] {
	case "<":
		return value < limit
	case "<=":
		return value <= limit
	case "==":
		return value == limit
	case "!=":
		return value != limit
	case ">=":
		return value >= limit
	case ">":
		return value > limit
	default:
		return true
	}
}

func (e *Evaluation) String() string {
	if e.Compliant {
		if len(e.Warnings) > 0 {
			return fmt.Sprintf("compliant with warnings: %v", e.Warnings)
		}
		return "compliant"
	}
	return fmt.Sprintf("non-compliant: %v", e.Violations)
}
