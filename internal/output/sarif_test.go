package output

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestSARIFWriter_Empty(t *testing.T) {
	var buf bytes.Buffer
	w := &SARIFWriter{}
	if err := w.Write(&buf, emptyResult()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var sarif sarifLog
	if err := json.Unmarshal(buf.Bytes(), &sarif); err != nil {
		t.Fatalf("Invalid SARIF JSON: %v", err)
	}
	if sarif.Version != "2.1.0" {
		t.Errorf("Version = %q, want %q", sarif.Version, "2.1.0")
	}
	if len(sarif.Runs) != 1 {
		t.Fatalf("Runs count = %d, want 1", len(sarif.Runs))
	}
	if len(sarif.Runs[0].Results) != 0 {
		t.Errorf("Results count = %d, want 0", len(sarif.Runs[0].Results))
	}
	if !sarif.Runs[0].Invocations[0].ExecutionSuccessful {
		t.Error("empty run should be successful")
	}
}

func TestSARIFWriter_WithFindings(t *testing.T) {
	var buf bytes.Buffer
	w := &SARIFWriter{}
	if err := w.Write(&buf, sampleResult()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var sarif sarifLog
	if err := json.Unmarshal(buf.Bytes(), &sarif); err != nil {
		t.Fatalf("Invalid SARIF JSON: %v", err)
	}
	run := sarif.Runs[0]

	if run.AutomationDetails.GUID != "2b1c3d4e-0000-4000-8000-000000000001" {
		t.Errorf("automationDetails.guid = %q", run.AutomationDetails.GUID)
	}
	if len(run.Results) != 3 {
		t.Fatalf("Results count = %d, want 3", len(run.Results))
	}
	if len(run.Tool.Driver.Rules) != 3 {
		t.Errorf("Rules count = %d, want 3", len(run.Tool.Driver.Rules))
	}

	first := run.Results[0]
	if first.RuleID != "checkpatch/LONG_LINE" {
		t.Errorf("RuleID = %q", first.RuleID)
	}
	if first.Level != "warning" {
		t.Errorf("Level = %q, want warning", first.Level)
	}
	if first.Locations[0].PhysicalLocation.Region == nil || first.Locations[0].PhysicalLocation.Region.StartLine != 42 {
		t.Errorf("Region = %+v, want startLine 42", first.Locations[0].PhysicalLocation.Region)
	}
	if first.Properties["commit"] != "0123456789abcdef0123" {
		t.Errorf("commit property = %q", first.Properties["commit"])
	}

	if len(run.Results[1].Fixes) != 1 {
		t.Errorf("suggestion should become a fix")
	}

	audit := run.Results[2]
	if audit.Level != "note" || len(audit.Locations) != 0 {
		t.Errorf("commit_audit result = %+v, want an unanchored note", audit)
	}

	inv := run.Invocations[0]
	if inv.ExecutionSuccessful {
		t.Error("a failed reviewer should mark the invocation unsuccessful")
	}
	if len(inv.Notifications) != 2 {
		t.Fatalf("Notifications count = %d, want 2", len(inv.Notifications))
	}
	if inv.Notifications[0].Descriptor.ID != "sparse" || inv.Notifications[0].Properties["kind"] != "missing-dependency" {
		t.Errorf("notification = %+v", inv.Notifications[0])
	}
}
