// Package patch models one reviewed commit as an immutable, addressable unit.
//
// A [Patch] carries the commit identity, message, author and the ordered list
// of file changes parsed from the commit's unified diff. Each [FileChange]
// holds its hunks with old/new line ranges and per-line numbering, so that
// reviewers can anchor findings to (path, line) pairs without re-parsing the
// diff.
//
// Hunk ranges are validated on construction: within a file they must be
// non-overlapping and increasing on both the old and new side.
package patch
