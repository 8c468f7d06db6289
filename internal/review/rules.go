package review

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules represents a rules pack loaded from --rules. JSON files are valid
// YAML and load the same way.
type Rules struct {
	Focus []string `yaml:"focus,omitempty" json:"focus,omitempty"`
	// SeverityOverrides maps a rule id or a reviewer name to a severity.
	SeverityOverrides map[string]Severity `yaml:"severityOverrides,omitempty" json:"severityOverrides,omitempty"`
	Required          []RequiredCheck     `yaml:"required,omitempty" json:"required,omitempty"`
}

// RequiredCheck is a policy check that should always be enforced.
type RequiredCheck struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

// LoadRules loads a rules file from disk. Returns nil Rules and nil error if path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	for key, sev := range rules.SeverityOverrides {
		if SeverityRank(sev) == 0 {
			return nil, fmt.Errorf("rules file: override for %q: unknown severity %q", key, sev)
		}
	}
	return &rules, nil
}

// BuildRulesPromptSection returns additional prompt instructions derived from rules.
func BuildRulesPromptSection(rules *Rules) string {
	if rules == nil {
		return ""
	}

	var b strings.Builder

	if len(rules.Focus) > 0 {
		fmt.Fprintf(&b, "\nFocus areas: %s. Prioritize findings in these areas.\n",
			strings.Join(rules.Focus, ", "))
	}

	if len(rules.Required) > 0 {
		b.WriteString("\nRequired checks (always evaluate these):\n")
		for _, req := range rules.Required {
			fmt.Fprintf(&b, "- [%s] %s\n", req.ID, req.Text)
		}
	}

	return b.String()
}

// ApplySeverityOverrides returns findings with severities rewritten by the
// rules. A rule id match wins over a reviewer name match.
func ApplySeverityOverrides(findings []Finding, rules *Rules) []Finding {
	if rules == nil || len(rules.SeverityOverrides) == 0 {
		return findings
	}
	out := make([]Finding, len(findings))
	for i, f := range findings {
		if sev, ok := rules.SeverityOverrides[f.Rule]; ok && f.Rule != "" {
			f.Severity = sev
		} else if sev, ok := rules.SeverityOverrides[f.Reviewer]; ok {
			f.Severity = sev
		}
		out[i] = f
	}
	return out
}
