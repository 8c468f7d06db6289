package review

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawFinding is the JSON structure models are asked to return.
type rawFinding struct {
	Severity   string `json:"severity"`
	Rule       string `json:"rule"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
	Path       string `json:"path"`
	Line       int    `json:"line"`
	StartLine  int    `json:"startLine"`
}

// ParseJSONFindings decodes a JSON array of findings, optionally wrapped in a
// markdown fence. Text that is not a JSON array yields ErrNoFindings.
func ParseJSONFindings(content string) ([]Finding, error) {
	content = StripFence(content)
	if !strings.HasPrefix(content, "[") {
		return nil, ErrNoFindings
	}

	var raw []rawFinding
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}

	findings := make([]Finding, 0, len(raw))
	for _, r := range raw {
		sev, ok := ParseSeverity(r.Severity)
		if !ok {
			sev = SeverityInfo
		}
		msg := r.Message
		if r.Title != "" && msg != "" {
			msg = r.Title + ": " + msg
		} else if msg == "" {
			msg = r.Title
		}
		f := Finding{Severity: sev, Rule: r.Rule, Message: msg}
		if r.Path != "" {
			line := r.Line
			if line == 0 {
				line = r.StartLine
			}
			f.Anchor = &Anchor{Path: r.Path, Line: line}
		}
		if r.Suggestion != "" {
			f.Payload = map[string]string{PayloadSuggestion: r.Suggestion}
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// StripFence removes one surrounding markdown code fence, if present.
func StripFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}
