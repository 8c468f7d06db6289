package review

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRules_Empty(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules != nil {
		t.Error("expected nil rules for empty path")
	}
}

func TestLoadRules_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `focus:
  - locking
  - error paths
severityOverrides:
  LONG_LINE: info
  sparse: error
required:
  - id: fixes-tag
    text: Bug fixes carry a Fixes tag
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules error: %v", err)
	}
	if len(rules.Focus) != 2 || rules.Focus[1] != "error paths" {
		t.Errorf("Focus = %v", rules.Focus)
	}
	if rules.SeverityOverrides["LONG_LINE"] != SeverityInfo {
		t.Errorf("SeverityOverrides[LONG_LINE] = %q, want info", rules.SeverityOverrides["LONG_LINE"])
	}
	if len(rules.Required) != 1 || rules.Required[0].ID != "fixes-tag" {
		t.Errorf("Required = %+v", rules.Required)
	}
}

func TestLoadRules_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	content := `{"focus": ["security"], "severityOverrides": {"checkpatch": "warning"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules error: %v", err)
	}
	if rules.SeverityOverrides["checkpatch"] != SeverityWarning {
		t.Errorf("SeverityOverrides = %v", rules.SeverityOverrides)
	}
}

func TestLoadRules_NotFound(t *testing.T) {
	_, err := LoadRules("/nonexistent/path/rules.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadRules_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("focus: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(bad); err == nil {
		t.Error("expected error for invalid YAML")
	}

	badSev := filepath.Join(dir, "sev.yaml")
	if err := os.WriteFile(badSev, []byte("severityOverrides:\n  LONG_LINE: catastrophic\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(badSev); err == nil {
		t.Error("expected error for unknown severity")
	}
}

func TestBuildRulesPromptSection_Nil(t *testing.T) {
	if s := BuildRulesPromptSection(nil); s != "" {
		t.Errorf("expected empty string for nil rules, got %q", s)
	}
}

func TestBuildRulesPromptSection_Full(t *testing.T) {
	rules := &Rules{
		Focus: []string{"locking", "memory"},
		Required: []RequiredCheck{
			{ID: "fixes", Text: "Bug fixes carry a Fixes tag"},
		},
	}

	s := BuildRulesPromptSection(rules)

	if !strings.Contains(s, "locking") || !strings.Contains(s, "memory") {
		t.Error("Missing focus areas in prompt")
	}
	if !strings.Contains(s, "[fixes] Bug fixes carry a Fixes tag") {
		t.Error("Missing required check in prompt")
	}
}

func TestApplySeverityOverrides_Nil(t *testing.T) {
	findings := []Finding{{Severity: SeverityInfo, Rule: "LONG_LINE"}}
	result := ApplySeverityOverrides(findings, nil)
	if result[0].Severity != SeverityInfo {
		t.Error("Nil rules should not change severity")
	}
}

func TestApplySeverityOverrides_Applied(t *testing.T) {
	rules := &Rules{
		SeverityOverrides: map[string]Severity{
			"LONG_LINE":  SeverityInfo,
			"sparse":     SeverityError,
			"checkpatch": SeverityWarning,
		},
	}
	findings := []Finding{
		{Reviewer: "checkpatch", Severity: SeverityWarning, Rule: "LONG_LINE"},
		{Reviewer: "checkpatch", Severity: SeverityError, Rule: "SPACING"},
		{Reviewer: "sparse", Severity: SeverityWarning},
		{Reviewer: "ai_review", Severity: SeverityWarning},
	}

	result := ApplySeverityOverrides(findings, rules)

	want := []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityWarning}
	for i, w := range want {
		if result[i].Severity != w {
			t.Errorf("finding %d severity = %q, want %q", i, result[i].Severity, w)
		}
	}
	if findings[0].Severity != SeverityWarning {
		t.Error("input findings should not be modified")
	}
}
