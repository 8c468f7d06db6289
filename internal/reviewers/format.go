package reviewers

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChatWidth is the column limit for text meant to be pasted into a mail.
const ChatWidth = 75

// Bullets are "*", "+", "-" or ">", "1." "2)" "3-", or "1.2.3".
var bulletRe = regexp.MustCompile(`^\s*([*+\->]|\d+[.)-]|\d+(\.\d+)+)\s*`)

// commitTags start paragraphs that must keep their lines intact.
var commitTags = []string{
	"Acked-by:",
	"Cc:",
	"Closes:",
	"Co-developed-by:",
	"Fixes:",
	"From:",
	"Link:",
	"Reported-by:",
	"Reviewed-by:",
	"Signed-off-by:",
	"Suggested-by:",
	"Tested-by:",
	"(cherry picked from commit",
	"Change-Id",
	"Git-Commit:",
	"Git-repo",
	"Git-Repo:",
}

// FormatChat wraps model output at ChatWidth columns for a mailing list.
// Blank lines, fence lines and bullet lines stand alone; runs of other
// lines are reflowed as one paragraph. Paragraphs that start with a commit
// tag or a quote are left alone, and words longer than a line are never
// broken so links survive.
func FormatChat(text string) string {
	paras := splitParagraphs(text)
	out := make([]string, len(paras))
	for i, p := range paras {
		trimmed := strings.TrimSpace(p)
		if isCommitTag(trimmed) || strings.HasPrefix(trimmed, ">") {
			out[i] = p
			continue
		}
		out[i] = fill(p, ChatWidth)
	}
	return strings.Join(out, "\n")
}

func splitParagraphs(text string) []string {
	var paras, cur []string
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if s == "" || s == "```" || s == "'''" || s == `"""` || bulletRe.MatchString(s) {
			if len(cur) > 0 {
				paras = append(paras, strings.Join(cur, "\n"))
				cur = nil
			}
			paras = append(paras, line)
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		paras = append(paras, strings.Join(cur, "\n"))
	}
	return paras
}

func isCommitTag(s string) bool {
	for _, t := range commitTags {
		if strings.HasPrefix(s, t) {
			return true
		}
	}
	return false
}

// fill reflows p into lines of at most width columns. Leading whitespace of
// the paragraph is kept; whitespace at the start and end of other lines is
// dropped. A paragraph of only whitespace becomes empty.
func fill(p string, width int) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	var lines []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		lines = append(lines, strings.TrimRightFunc(cur.String(), unicode.IsSpace))
		cur.Reset()
		curLen = 0
	}
	for i, chunk := range chunks(expandTabs(p)) {
		n := utf8.RuneCountInString(chunk)
		space := strings.TrimSpace(chunk) == ""
		if space && curLen == 0 && i > 0 {
			continue
		}
		if curLen+n <= width {
			cur.WriteString(chunk)
			curLen += n
			continue
		}
		if space {
			flush()
			continue
		}
		if strings.TrimSpace(cur.String()) != "" {
			flush()
		}
		cur.WriteString(chunk)
		curLen += n
	}
	if curLen > 0 {
		flush()
	}
	return strings.Join(lines, "\n")
}

// chunks splits s into alternating runs of spaces and non-spaces, after
// turning every whitespace character into a space.
func chunks(s string) []string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	var out []string
	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || (s[i] == ' ') != (s[start] == ' ') {
			out = append(out, s[start:i])
			start = i
		}
	}
	return out
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			pad := 8 - col%8
			b.WriteString(strings.Repeat(" ", pad))
			col += pad
		case '\n':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}
