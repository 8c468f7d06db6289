package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/patchwise/internal/review"
)

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"

// SARIFWriter outputs findings in SARIF v2.1.0 format.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, result *review.RunResult) error {
	sarif := buildSARIF(result)
	data, err := json.MarshalIndent(sarif, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// SARIF schema types (v2.1.0)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool              sarifTool              `json:"tool"`
	AutomationDetails sarifAutomationDetails `json:"automationDetails"`
	Invocations       []sarifInvocation      `json:"invocations"`
	Results           []sarifResult          `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifAutomationDetails struct {
	ID   string `json:"id"`
	GUID string `json:"guid"`
}

type sarifInvocation struct {
	ExecutionSuccessful bool                `json:"executionSuccessful"`
	Notifications       []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level      string            `json:"level"`
	Message    sarifMessage      `json:"message"`
	Descriptor sarifDescriptor   `json:"descriptor"`
	Properties map[string]string `json:"properties,omitempty"`
}

type sarifDescriptor struct {
	ID string `json:"id"`
}

type sarifResult struct {
	RuleID     string            `json:"ruleId"`
	Level      string            `json:"level"`
	Message    sarifMessage      `json:"message"`
	Locations  []sarifLocation   `json:"locations,omitempty"`
	Fixes      []sarifFix        `json:"fixes,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

type sarifFix struct {
	Description sarifMessage `json:"description"`
}

func buildSARIF(result *review.RunResult) sarifLog {
	var rules []sarifRule
	seen := make(map[string]bool)
	results := []sarifResult{}
	inv := sarifInvocation{ExecutionSuccessful: true}

	for _, rep := range result.Reports {
		for _, e := range rep.Entries {
			if e.Error != nil {
				inv.ExecutionSuccessful = false
				inv.Notifications = append(inv.Notifications, sarifNotification{
					Level:      "error",
					Message:    sarifMessage{Text: e.Error.Message},
					Descriptor: sarifDescriptor{ID: e.Reviewer},
					Properties: map[string]string{"commit": rep.Patch.Ref, "kind": string(e.Error.Kind)},
				})
				continue
			}
			for _, f := range e.Findings {
				ruleID := ruleIDOf(f)
				if !seen[ruleID] {
					seen[ruleID] = true
					rules = append(rules, sarifRule{
						ID:               ruleID,
						Name:             f.Reviewer,
						ShortDescription: sarifMessage{Text: ruleDescription(f)},
						DefaultConfig:    sarifDefaultConfig{Level: severityToLevel(f.Severity)},
					})
				}
				results = append(results, sarifResultOf(f, rep.Patch.Ref))
			}
		}
	}
	for _, s := range result.Skipped {
		inv.ExecutionSuccessful = false
		inv.Notifications = append(inv.Notifications, sarifNotification{
			Level:      "error",
			Message:    sarifMessage{Text: s.Error},
			Descriptor: sarifDescriptor{ID: "load-commit"},
			Properties: map[string]string{"commit": s.Ref},
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  sarifSchema,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:           "patchwise",
						Version:        result.Version,
						InformationURI: "https://github.com/dshills/patchwise",
						Rules:          rules,
					},
				},
				AutomationDetails: sarifAutomationDetails{
					ID:   "patchwise/" + result.RunID,
					GUID: result.RunID,
				},
				Invocations: []sarifInvocation{inv},
				Results:     results,
			},
		},
	}
}

func sarifResultOf(f review.Finding, ref string) sarifResult {
	res := sarifResult{
		RuleID:     ruleIDOf(f),
		Level:      severityToLevel(f.Severity),
		Message:    sarifMessage{Text: f.Message},
		Properties: map[string]string{"commit": ref},
	}
	if f.Anchor != nil {
		loc := sarifLocation{PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: f.Anchor.Path},
		}}
		if f.Anchor.Line > 0 {
			loc.PhysicalLocation.Region = &sarifRegion{StartLine: f.Anchor.Line}
		}
		res.Locations = []sarifLocation{loc}
	}
	for _, key := range []string{review.PayloadSuggestion, review.PayloadRewrittenText} {
		if s := f.Payload[key]; s != "" {
			res.Fixes = append(res.Fixes, sarifFix{Description: sarifMessage{Text: s}})
		}
	}
	return res
}

// severityToLevel maps a finding severity to a SARIF level.
func severityToLevel(s review.Severity) string {
	switch s {
	case review.SeverityError:
		return "error"
	case review.SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}

// ruleIDOf is reviewer/rule, or just the reviewer name for rule-less
// findings.
func ruleIDOf(f review.Finding) string {
	if f.Rule == "" {
		return f.Reviewer
	}
	return f.Reviewer + "/" + f.Rule
}

func ruleDescription(f review.Finding) string {
	if f.Rule == "" {
		return f.Reviewer + " finding"
	}
	return f.Rule
}
