package output

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/patchwise/internal/review"
)

// Writer writes a run result in a specific format.
type Writer interface {
	Write(w io.Writer, result *review.RunResult) error
}

// Formats lists the accepted --format values.
var Formats = []string{"text", "json", "markdown", "sarif"}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteResult writes the result to outPath, or to stdout when outPath is
// empty or "-".
func WriteResult(result *review.RunResult, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	if outPath == "" || outPath == "-" {
		return writer.Write(os.Stdout, result)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writer.Write(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func severityOrder() []review.Severity {
	return []review.Severity{review.SeverityError, review.SeverityWarning, review.SeverityInfo}
}
