package patch

import "strings"

// SplitSections cuts a unified diff before each "diff --git" header. Text
// ahead of the first header, such as a commit message, is its own section.
// The sections concatenate back to diff.
func SplitSections(diff string) []string {
	var sections []string
	start := 0
	for i := 0; i < len(diff); {
		if strings.HasPrefix(diff[i:], "diff --git ") && i > start {
			sections = append(sections, diff[start:i])
			start = i
		}
		nl := strings.IndexByte(diff[i:], '\n')
		if nl < 0 {
			break
		}
		i += nl + 1
	}
	return append(sections, diff[start:])
}

// SectionPath returns the b/ side path of a diff section, or "" for text
// that is not a file section.
func SectionPath(sec string) string {
	header, _, _ := strings.Cut(sec, "\n")
	if !strings.HasPrefix(header, "diff --git ") {
		return ""
	}
	if i := strings.LastIndex(header, " b/"); i >= 0 {
		return header[i+3:]
	}
	return ""
}
