package review

import (
	"math"
	"sort"
	"time"

	"github.com/dshills/patchwise/internal/patch"
)

// Outcome is what one invocation produced.
type Outcome struct {
	Findings []Finding
	Err      *ReviewerError
	Duration time.Duration
}

// Aggregate builds the report of p with one entry per reviewer in order.
// outcomes is indexed like order; a nil or missing outcome is recorded as an
// internal error.
func Aggregate(p *patch.Patch, order []Reviewer, outcomes []*Outcome) Report {
	rep := Report{
		Patch:   PatchInfo{Ref: p.Ref(), Subject: p.Subject(), Author: p.Author().String()},
		Entries: make([]Entry, 0, len(order)),
	}
	var all []Finding
	for i, r := range order {
		e := Entry{Reviewer: r.Name(), Kind: r.Kind(), Findings: []Finding{}}
		var o *Outcome
		if i < len(outcomes) {
			o = outcomes[i]
		}
		switch {
		case o == nil:
			e.Error = &ReviewerError{Reviewer: r.Name(), Kind: ErrInternal, Message: "no outcome recorded"}
		case o.Err != nil:
			e.Error = o.Err
			e.DurationMs = o.Duration.Milliseconds()
		default:
			e.Findings = SortFindings(o.Findings)
			e.DurationMs = o.Duration.Milliseconds()
		}
		if e.Error != nil {
			rep.Summary.Errors++
		}
		all = append(all, e.Findings...)
		rep.Entries = append(rep.Entries, e)
	}
	s := ComputeSummary(all)
	s.Errors = rep.Summary.Errors
	rep.Summary = s
	return rep
}

// SortFindings returns a stably sorted copy: by path then line, findings
// without a line after the lined ones of their path, unanchored last.
func SortFindings(findings []Finding) []Finding {
	out := make([]Finding, len(findings))
	copy(out, findings)
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].Anchor, out[j].Anchor
		switch {
		case ai == nil || aj == nil:
			return ai != nil && aj == nil
		case ai.Path != aj.Path:
			return ai.Path < aj.Path
		default:
			return sortLine(ai.Line) < sortLine(aj.Line)
		}
	})
	return out
}

func sortLine(l int) int {
	if l <= 0 {
		return math.MaxInt
	}
	return l
}
