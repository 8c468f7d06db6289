package review

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namedReviewers(names ...string) []Reviewer {
	out := make([]Reviewer, len(names))
	for i, n := range names {
		out[i] = NewToolReviewer(Info{Name: n}, ToolFunc(func(context.Context, Invocation) ([]Finding, error) { return nil, nil }))
	}
	return out
}

func TestAggregate_OneEntryPerReviewer(t *testing.T) {
	order := namedReviewers("checkpatch", "sparse", "coccicheck", "dt_check")
	outcomes := []*Outcome{
		{Findings: []Finding{{Reviewer: "checkpatch", Severity: SeverityWarning, Anchor: &Anchor{Path: "a.c", Line: 42}}}, Duration: 1500 * time.Millisecond},
		{Err: &ReviewerError{Reviewer: "sparse", Kind: ErrTimeout, Message: "deadline"}},
		nil,
	}
	rep := Aggregate(testPatch(t), order, outcomes)

	require.Len(t, rep.Entries, 4)
	for i, r := range order {
		assert.Equal(t, r.Name(), rep.Entries[i].Reviewer)
	}
	assert.Equal(t, int64(1500), rep.Entries[0].DurationMs)
	assert.Len(t, rep.Entries[0].Findings, 1)
	assert.Equal(t, ErrTimeout, rep.Entries[1].Error.Kind)
	for _, e := range rep.Entries[2:] {
		require.NotNil(t, e.Error)
		assert.Equal(t, ErrInternal, e.Error.Kind)
		assert.Equal(t, "no outcome recorded", e.Error.Message)
		assert.NotNil(t, e.Findings)
	}
	assert.Equal(t, 3, rep.Summary.Errors)
	assert.Equal(t, 1, rep.Summary.Counts.Warning)
	assert.Equal(t, "0123456789abcdef", rep.Patch.Ref)
	assert.Equal(t, "net: fix leak", rep.Patch.Subject)
}

func TestAggregate_EmptyOutcomeHasNoError(t *testing.T) {
	rep := Aggregate(testPatch(t), namedReviewers("checkpatch"), []*Outcome{{}})
	require.Len(t, rep.Entries, 1)
	assert.Nil(t, rep.Entries[0].Error)
	assert.Empty(t, rep.Entries[0].Findings)
	assert.Equal(t, 0, rep.Summary.Errors)
}

func TestSortFindings(t *testing.T) {
	in := []Finding{
		{Message: "unanchored-1"},
		{Message: "b.c:3", Anchor: &Anchor{Path: "b.c", Line: 3}},
		{Message: "a.c file", Anchor: &Anchor{Path: "a.c"}},
		{Message: "a.c:10", Anchor: &Anchor{Path: "a.c", Line: 10}},
		{Message: "unanchored-2"},
		{Message: "a.c:2", Anchor: &Anchor{Path: "a.c", Line: 2}},
		{Message: "a.c:2 second", Anchor: &Anchor{Path: "a.c", Line: 2}},
	}
	got := SortFindings(in)

	var order []string
	for _, f := range got {
		order = append(order, f.Message)
	}
	want := []string{"a.c:2", "a.c:2 second", "a.c:10", "a.c file", "b.c:3", "unanchored-1", "unanchored-2"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("SortFindings order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "unanchored-1", in[0].Message, "input is not reordered")
}
