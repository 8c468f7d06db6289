// Package output formats review results for display or machine consumption.
//
// Four formats are supported:
//   - text: human-readable terminal output (default), styled with lipgloss
//   - json: the full structured RunResult
//   - markdown: one collapsible section per reviewer, per patch
//   - sarif: SARIF v2.1.0 for CI code-scanning uploads
//
// Use [GetWriter] to obtain a [Writer] for a given format string, then call
// [Writer.Write] with an [io.Writer] and a [*review.RunResult]. [WriteResult]
// handles destination selection.
package output
