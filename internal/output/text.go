package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/patchwise/internal/review"
)

// TextWriter outputs a human-readable report. Colors are used only when w
// is a terminal.
type TextWriter struct{}

type textStyles struct {
	header  lipgloss.Style
	patch   lipgloss.Style
	dim     lipgloss.Style
	failed  lipgloss.Style
	byLevel map[review.Severity]lipgloss.Style
}

func newTextStyles(w io.Writer) textStyles {
	r := lipgloss.NewRenderer(w)
	return textStyles{
		header: r.NewStyle().Bold(true),
		patch:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#8be9fd")),
		dim:    r.NewStyle().Foreground(lipgloss.Color("#6272a4")),
		failed: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5555")),
		byLevel: map[review.Severity]lipgloss.Style{
			review.SeverityError:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5555")),
			review.SeverityWarning: r.NewStyle().Foreground(lipgloss.Color("#ffb86c")),
			review.SeverityInfo:    r.NewStyle().Foreground(lipgloss.Color("#8be9fd")),
		},
	}
}

func (t *TextWriter) Write(w io.Writer, result *review.RunResult) error {
	ew := &errWriter{w: w}
	st := newTextStyles(w)

	ew.println(st.header.Render(fmt.Sprintf("patchwise %s review", result.Version)))
	ew.println(strings.Repeat("─", 60))

	if len(result.Reports) == 0 {
		ew.println("\nNo patches reviewed.")
	}

	for _, rep := range result.Reports {
		ew.printf("\n%s %s\n", st.patch.Render(shortRef(rep.Patch.Ref)), rep.Patch.Subject)
		if rep.Patch.Author != "" {
			ew.println(st.dim.Render("Author: " + rep.Patch.Author))
		}

		for _, e := range rep.Entries {
			ew.printf("\n  %s %s\n", st.header.Render(e.Reviewer), st.dim.Render(fmt.Sprintf("(%s, %dms)", e.Kind, e.DurationMs)))
			if e.Error != nil {
				ew.printf("    %s %s: %s\n", st.failed.Render("FAILED"), e.Error.Kind, e.Error.Message)
				continue
			}
			if len(e.Findings) == 0 {
				ew.println("    " + st.dim.Render("no findings"))
				continue
			}
			for _, f := range e.Findings {
				writeTextFinding(ew, st, f)
			}
		}
	}

	if len(result.Skipped) > 0 {
		ew.printf("\n%s\n", st.failed.Render("Skipped commits"))
		for _, s := range result.Skipped {
			ew.printf("  %s: %s\n", s.Ref, s.Error)
		}
	}

	sum := result.Summary()
	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("%d patch(es): %d error, %d warning, %d info, %d reviewer failure(s)\n",
		len(result.Reports), sum.Counts.Error, sum.Counts.Warning, sum.Counts.Info, sum.Errors)

	return ew.err
}

func writeTextFinding(ew *errWriter, st textStyles, f review.Finding) {
	label := strings.ToUpper(string(f.Severity))
	style, ok := st.byLevel[f.Severity]
	if ok {
		label = style.Render(label)
	}

	head := label
	if loc := f.Location(); loc != "" {
		head += "  " + loc
	}
	if f.Rule != "" {
		head += "  [" + f.Rule + "]"
	}
	ew.println("    " + head)

	for _, line := range strings.Split(f.Message, "\n") {
		for _, wrapped := range wrapText(line, 76) {
			ew.println("      " + wrapped)
		}
	}

	if s := f.Payload[review.PayloadSuggestion]; s != "" {
		ew.println("    Suggestion:")
		for _, line := range strings.Split(s, "\n") {
			ew.println("      " + line)
		}
	}
	if s := f.Payload[review.PayloadRewrittenText]; s != "" {
		ew.println("    Suggested commit text:")
		for _, line := range strings.Split(s, "\n") {
			ew.println("      " + line)
		}
	}
}

func shortRef(ref string) string {
	if len(ref) > 12 {
		return ref[:12]
	}
	return ref
}

// wrapText wraps a single line at width, keeping its leading indent.
func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	indent := text[:len(text)-len(strings.TrimLeft(text, " \t"))]
	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() == 0 {
			current.WriteString(indent)
		} else {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
