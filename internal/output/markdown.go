package output

import (
	"io"
	"strings"

	"github.com/dshills/patchwise/internal/review"
	"github.com/dshills/patchwise/internal/reviewctx"
)

// MarkdownWriter outputs a report suitable for a mailing-list reply or a
// merge request comment.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, result *review.RunResult) error {
	ew := &errWriter{w: w}
	sum := result.Summary()

	ew.printf("## patchwise review\n\n")

	ew.printf("| Severity | Count |\n")
	ew.printf("|----------|-------|\n")
	ew.printf("| Error    | %d    |\n", sum.Counts.Error)
	ew.printf("| Warning  | %d    |\n", sum.Counts.Warning)
	ew.printf("| Info     | %d    |\n", sum.Counts.Info)
	ew.printf("| **Reviewer failures** | **%d** |\n\n", sum.Errors)

	for _, rep := range result.Reports {
		ew.printf("### `%s` %s\n\n", shortRef(rep.Patch.Ref), rep.Patch.Subject)

		for _, e := range rep.Entries {
			switch {
			case e.Error != nil:
				ew.printf("<details>\n<summary>%s %s: failed</summary>\n\n", mdEntryIcon(e), e.Reviewer)
				ew.printf("> **%s**: %s\n\n", e.Error.Kind, e.Error.Message)
			case len(e.Findings) == 0:
				ew.printf("<details>\n<summary>%s %s: no findings</summary>\n\n", mdEntryIcon(e), e.Reviewer)
			default:
				ew.printf("<details>\n<summary>%s %s (%d)</summary>\n\n", mdEntryIcon(e), e.Reviewer, len(e.Findings))
				for _, f := range e.Findings {
					writeMarkdownFinding(ew, f)
				}
			}
			ew.printf("</details>\n\n")
		}
	}

	if len(result.Skipped) > 0 {
		ew.printf("### Skipped\n\n")
		for _, s := range result.Skipped {
			ew.printf("- `%s`: %s\n", s.Ref, s.Error)
		}
		ew.printf("\n")
	}

	if sum.Counts.Error+sum.Counts.Warning+sum.Counts.Info == 0 && sum.Errors == 0 {
		ew.println("No issues found. :white_check_mark:")
	}
	return ew.err
}

func writeMarkdownFinding(ew *errWriter, f review.Finding) {
	head := mdSeverityIcon(f.Severity) + " **" + strings.ToUpper(string(f.Severity)) + "**"
	if loc := f.Location(); loc != "" {
		head += " `" + loc + "`"
	}
	if f.Rule != "" {
		head += " " + f.Rule
	}
	ew.printf("%s\n\n", head)

	if strings.Contains(f.Message, "\n") {
		ew.printf("```\n%s\n```\n\n", f.Message)
	} else {
		ew.printf("%s\n\n", f.Message)
	}

	if s := f.Payload[review.PayloadSuggestion]; s != "" {
		lang := ""
		if f.Anchor != nil {
			lang = reviewctx.DetectLanguage(f.Anchor.Path, "")
		}
		ew.printf("**Suggestion:**\n\n```%s\n%s\n```\n\n", lang, s)
	}
	if s := f.Payload[review.PayloadRewrittenText]; s != "" {
		ew.printf("**Suggested commit text:**\n\n```\n%s\n```\n\n", s)
	}
	ew.printf("---\n\n")
}

func mdEntryIcon(e review.Entry) string {
	if e.Error != nil {
		return ":x:"
	}
	if len(e.Findings) == 0 {
		return ":white_check_mark:"
	}
	highest := review.ComputeSummary(e.Findings).HighestSeverity
	return mdSeverityIcon(highest)
}

func mdSeverityIcon(s review.Severity) string {
	switch s {
	case review.SeverityError:
		return ":red_circle:"
	case review.SeverityWarning:
		return ":orange_circle:"
	case review.SeverityInfo:
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}
