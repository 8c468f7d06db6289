package reviewctx

import (
	"fmt"
	"sort"
	"strings"
)

// MaxGap is the largest run of unneeded lines printed to keep a listing
// contiguous. Longer runs become a skip marker.
const MaxGap = 5

// ReadFunc reads a repository file at the patch revision.
type ReadFunc func(path string) (string, error)

// RenderDefinitions lists, per file, the added lines and the definitions
// they use, with short gaps filled and long gaps elided. Files outside the
// patch are read through read, which may be nil. Files for which skip
// reports true are left out entirely; skip may be nil.
func RenderDefinitions(c *Context, read ReadFunc, skip func(path string) bool) string {
	if c == nil {
		return ""
	}
	essential := make(map[string]map[int]bool)
	var order []string
	mark := func(path string, from, to int) {
		set, ok := essential[path]
		if !ok {
			set = make(map[int]bool)
			essential[path] = set
			order = append(order, path)
		}
		for l := from; l <= to; l++ {
			set[l] = true
		}
	}

	for _, path := range c.Paths() {
		for _, l := range c.Added(path) {
			mark(path, l, l)
		}
	}
	for _, s := range c.Symbols() {
		if s.Range.Count > 0 {
			mark(s.Path, s.Range.Start, s.Range.End())
		}
	}

	var parts []string
	for _, path := range order {
		if skip != nil && skip(path) {
			continue
		}
		content, ok := c.Content(path)
		if !ok {
			if read == nil {
				continue
			}
			var err error
			if content, err = read(path); err != nil {
				continue
			}
		}
		lines := splitLines(content)
		if len(lines) == 0 {
			continue
		}
		body := formatListing(lines, fillGaps(essential[path]))
		if body == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (definition/diff context):\n\n```%s\n%s```\n", path, c.Language(path), body))
	}
	return strings.Join(parts, "\n\n")
}

// fillGaps adds every line of a gap of MaxGap lines or fewer between two
// essential lines.
func fillGaps(essential map[int]bool) map[int]bool {
	sorted := make([]int, 0, len(essential))
	for l := range essential {
		sorted = append(sorted, l)
	}
	sort.Ints(sorted)

	out := make(map[int]bool, len(essential))
	for l := range essential {
		out[l] = true
	}
	for i := 0; i+1 < len(sorted); i++ {
		gap := sorted[i+1] - sorted[i] - 1
		if gap > 0 && gap <= MaxGap {
			for l := sorted[i] + 1; l < sorted[i+1]; l++ {
				out[l] = true
			}
		}
	}
	return out
}

// formatListing prints the selected 1-based lines. Unselected runs longer
// than MaxGap become "// skipping lines a-b"; shorter ones are dropped.
func formatListing(lines []string, selected map[int]bool) string {
	var b strings.Builder
	n := len(lines)
	for i := 1; i <= n; {
		if selected[i] {
			for ; i <= n && selected[i]; i++ {
				b.WriteString(lines[i-1])
				b.WriteByte('\n')
			}
			continue
		}
		start := i
		for i <= n && !selected[i] {
			i++
		}
		if i-start > MaxGap {
			fmt.Fprintf(&b, "// skipping lines %d-%d\n", start, i-1)
		}
	}
	if !containsSelected(selected, n) {
		return ""
	}
	return b.String()
}

func containsSelected(selected map[int]bool, n int) bool {
	for l := range selected {
		if l >= 1 && l <= n {
			return true
		}
	}
	return false
}
