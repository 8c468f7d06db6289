package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/dshills/patchwise/internal/review"
)

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONWriter{}
	if err := w.Write(&buf, sampleResult()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var parsed review.RunResult
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if parsed.Tool != "patchwise" {
		t.Errorf("Tool = %q, want %q", parsed.Tool, "patchwise")
	}
	if len(parsed.Reports) != 1 {
		t.Fatalf("Reports count = %d, want 1", len(parsed.Reports))
	}
	entries := parsed.Reports[0].Entries
	if len(entries) != 4 {
		t.Fatalf("Entries count = %d, want 4", len(entries))
	}
	if entries[1].Error == nil || entries[1].Error.Kind != review.ErrMissingDependency {
		t.Errorf("sparse entry error = %+v, want missing-dependency", entries[1].Error)
	}
	if got := entries[0].Findings[0].Location(); got != "drivers/foo/foo.c:42" {
		t.Errorf("first finding location = %q", got)
	}
	if len(parsed.Skipped) != 1 || parsed.Skipped[0].Ref != "deadbeef" {
		t.Errorf("Skipped = %+v", parsed.Skipped)
	}
}
