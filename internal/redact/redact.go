package redact

import (
	"path"
	"regexp"
	"strings"

	"github.com/dshills/patchwise/internal/patch"
)

// Options selects which redactions Patch applies.
type Options struct {
	Secrets bool
	// Paths are glob patterns; matching files have their whole diff
	// section replaced.
	Paths []string
}

// Enabled reports whether Patch would change anything.
func (o Options) Enabled() bool {
	return o.Secrets || len(o.Paths) > 0
}

const placeholder = "[REDACTED]"

type rule struct {
	name string
	re   *regexp.Regexp
}

// rules are ordered so that provider-specific key formats are replaced
// before the generic assignment patterns see them.
var rules = []rule{
	{"private-key", regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`)},
	{"anthropic-key", regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`)},
	{"openai-key", regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
	{"github-token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`)},
	{"slack-token", regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`)},
	{"aws-access-key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"aws-secret-key", regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`)},
	{"jwt", regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`)},
	{"bearer", regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`)},
	{"api-key", regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`)},
	{"password", regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`)},
	{"hex-secret", regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`)},
}

// Secrets replaces every detected secret in text with [REDACTED].
func Secrets(text string) string {
	for _, r := range rules {
		text = r.re.ReplaceAllLiteralString(text, placeholder)
	}
	return text
}

// Detect names the kinds of secret found in text, in rule order. It never
// returns the matched text.
func Detect(text string) []string {
	var kinds []string
	for _, r := range rules {
		if r.re.MatchString(text) {
			kinds = append(kinds, r.name)
			text = r.re.ReplaceAllLiteralString(text, placeholder)
		}
	}
	return kinds
}

// MatchPath reports whether name matches one of the glob patterns. A "**"
// segment matches any number of directories, so "**/dist/*" matches at any
// depth and "secrets/**" matches everything below secrets.
func MatchPath(name string, patterns []string) bool {
	parts := strings.Split(name, "/")
	for _, pattern := range patterns {
		if matchSegments(strings.Split(pattern, "/"), parts) {
			return true
		}
	}
	return false
}

func matchSegments(pattern, parts []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			for i := 0; i <= len(parts); i++ {
				if matchSegments(pattern[1:], parts[i:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		if ok, _ := path.Match(pattern[0], parts[0]); !ok {
			return false
		}
		pattern, parts = pattern[1:], parts[1:]
	}
	return len(parts) == 0
}

// Patch redacts a unified diff before it leaves the machine. Each
// "diff --git" section is handled on its own: sections for files matching
// opts.Paths keep only their header line, and the rest are scanned for
// secrets when opts.Secrets is set. Text before the first section, such
// as a commit message, is scanned too.
func Patch(diff string, opts Options) string {
	if !opts.Enabled() || diff == "" {
		return diff
	}
	var b strings.Builder
	for _, sec := range patch.SplitSections(diff) {
		name := patch.SectionPath(sec)
		switch {
		case name != "" && MatchPath(name, opts.Paths):
			header, _, _ := strings.Cut(sec, "\n")
			b.WriteString(header + "\n" + placeholder + " (file diff redacted by path policy)\n")
		case opts.Secrets:
			b.WriteString(Secrets(sec))
		default:
			b.WriteString(sec)
		}
	}
	return b.String()
}
