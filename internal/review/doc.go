// Package review contains the core types of a review run.
//
// It defines Finding, Severity and the ReviewerError taxonomy, the sealed
// Reviewer interface with its tool-backed and AI-backed variants, and the
// aggregation of per-reviewer outcomes into one ordered Report per patch.
//
// Classify is the single conversion point from adapter errors (tool runner,
// LLM transport, context deadlines) to ReviewerError kinds.
//
// Rules packs (rules.go) allow callers to override finding severities by rule
// id or reviewer name, specify focus areas, and declare required checks that
// are appended to every AI prompt.
package review
