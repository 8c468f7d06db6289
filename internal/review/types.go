package review

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity represents the severity level of a finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// MeetsThreshold returns true if severity is at or above the threshold.
func MeetsThreshold(s Severity, threshold string) bool {
	if threshold == "none" || threshold == "" {
		return false
	}
	return SeverityRank(s) >= SeverityRank(Severity(threshold))
}

// ParseSeverity maps free-form severity words, including the low/medium/high
// scale models tend to use, onto a Severity.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "high", "critical", "major":
		return SeverityError, true
	case "warning", "warn", "medium", "minor":
		return SeverityWarning, true
	case "info", "low", "check", "note", "nit":
		return SeverityInfo, true
	}
	return "", false
}

// Kind distinguishes tool-backed from AI-backed reviewers.
type Kind string

const (
	KindTool Kind = "tool"
	KindAI   Kind = "ai"
)

// Payload keys with a defined meaning.
const (
	PayloadSuggestion    = "suggestion"
	PayloadRewrittenText = "rewritten_commit_text"
)

// Anchor points a finding at a file and, when Line > 0, a new-side line.
type Anchor struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// Finding is a single reviewer observation.
type Finding struct {
	Reviewer string            `json:"reviewer"`
	Severity Severity          `json:"severity"`
	Anchor   *Anchor           `json:"anchor,omitempty"`
	Rule     string            `json:"rule,omitempty"`
	Message  string            `json:"message"`
	Payload  map[string]string `json:"payload,omitempty"`
}

// Location formats the anchor as path:line, path, or "".
func (f Finding) Location() string {
	if f.Anchor == nil {
		return ""
	}
	if f.Anchor.Line > 0 {
		return f.Anchor.Path + ":" + strconv.Itoa(f.Anchor.Line)
	}
	return f.Anchor.Path
}

func (f Finding) clone() Finding {
	if f.Anchor != nil {
		a := *f.Anchor
		f.Anchor = &a
	}
	if f.Payload != nil {
		p := make(map[string]string, len(f.Payload))
		for k, v := range f.Payload {
			p[k] = v
		}
		f.Payload = p
	}
	return f
}

// PatchInfo identifies the reviewed commit.
type PatchInfo struct {
	Ref     string `json:"ref"`
	Subject string `json:"subject"`
	Author  string `json:"author"`
}

// Entry is one reviewer's result for one patch. Exactly one of Findings
// (possibly empty) or Error is meaningful.
type Entry struct {
	Reviewer   string         `json:"reviewer"`
	Kind       Kind           `json:"kind"`
	Findings   []Finding      `json:"findings"`
	Error      *ReviewerError `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs"`
}

// SeverityCounts holds counts by severity level.
type SeverityCounts struct {
	Info    int `json:"info"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
}

// Summary provides an overview of findings.
type Summary struct {
	Counts          SeverityCounts `json:"counts"`
	Errors          int            `json:"reviewerErrors"`
	HighestSeverity Severity       `json:"highestSeverity,omitempty"`
}

func (s *Summary) add(o Summary) {
	s.Counts.Info += o.Counts.Info
	s.Counts.Warning += o.Counts.Warning
	s.Counts.Error += o.Counts.Error
	s.Errors += o.Errors
	if SeverityRank(o.HighestSeverity) > SeverityRank(s.HighestSeverity) {
		s.HighestSeverity = o.HighestSeverity
	}
}

// Report is the aggregated result for one patch.
type Report struct {
	Patch      PatchInfo `json:"patch"`
	Entries    []Entry   `json:"entries"`
	Summary    Summary   `json:"summary"`
	DurationMs int64     `json:"durationMs"`
}

// Findings returns every finding of the report in entry order.
func (r Report) Findings() []Finding {
	var out []Finding
	for _, e := range r.Entries {
		out = append(out, e.Findings...)
	}
	return out
}

// SkippedCommit records a ref that could not be loaded.
type SkippedCommit struct {
	Ref   string `json:"ref"`
	Error string `json:"error"`
}

// RunResult is the outcome of a whole run.
type RunResult struct {
	Tool      string          `json:"tool"`
	Version   string          `json:"version"`
	RunID     string          `json:"runId"`
	StartedAt time.Time       `json:"startedAt"`
	Reports   []Report        `json:"reports"`
	Skipped   []SkippedCommit `json:"skipped,omitempty"`
}

// NewRunResult returns an empty result with a fresh run id.
func NewRunResult(version string) *RunResult {
	return &RunResult{
		Tool:      "patchwise",
		Version:   version,
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Reports:   []Report{},
	}
}

// Summary totals every report.
func (r *RunResult) Summary() Summary {
	var s Summary
	for _, rep := range r.Reports {
		s.add(rep.Summary)
	}
	return s
}

// ComputeSummary calculates the summary from findings.
func ComputeSummary(findings []Finding) Summary {
	var s Summary
	for _, f := range findings {
		switch f.Severity {
		case SeverityInfo:
			s.Counts.Info++
		case SeverityWarning:
			s.Counts.Warning++
		case SeverityError:
			s.Counts.Error++
		}
		if SeverityRank(f.Severity) > SeverityRank(s.HighestSeverity) {
			s.HighestSeverity = f.Severity
		}
	}
	return s
}
