package patch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrHunkOrder is returned when hunks within a file overlap or are out of order.
var ErrHunkOrder = errors.New("hunks overlap or are not in increasing order")

// ChangeKind describes what happened to a file in a patch.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Deleted  ChangeKind = "deleted"
	Renamed  ChangeKind = "renamed"
)

// LineRange is a hunk side: Count lines starting at Start (1-based).
// An empty side (pure addition or deletion) has Count 0.
type LineRange struct {
	Start int `json:"start"`
	Count int `json:"count"`
}

// End returns the last line covered by the range, or Start-1 when empty.
func (r LineRange) End() int {
	return r.Start + r.Count - 1
}

// Contains reports whether line falls inside the range.
func (r LineRange) Contains(line int) bool {
	return r.Count > 0 && line >= r.Start && line <= r.End()
}

func (r LineRange) String() string {
	if r.Count <= 1 {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End())
}

// LineOp is the operation of a single diff line.
type LineOp int

const (
	OpContext LineOp = iota
	OpAdd
	OpDelete
)

// Line is one line of a hunk. OldLine is zero for additions and NewLine is
// zero for deletions.
type Line struct {
	Op      LineOp
	Text    string
	OldLine int
	NewLine int
}

// Hunk is a contiguous changed region within a file.
type Hunk struct {
	Old    LineRange
	New    LineRange
	Header string
	Lines  []Line
}

// Added returns the text of added lines in order.
func (h Hunk) Added() []string {
	return h.collect(OpAdd)
}

// Removed returns the text of removed lines in order.
func (h Hunk) Removed() []string {
	return h.collect(OpDelete)
}

func (h Hunk) collect(op LineOp) []string {
	var out []string
	for _, l := range h.Lines {
		if l.Op == op {
			out = append(out, l.Text)
		}
	}
	return out
}

// FileChange is one file touched by a patch.
type FileChange struct {
	OldPath string
	NewPath string
	Kind    ChangeKind
	Binary  bool
	Hunks   []Hunk
}

// Path returns the path the change is best addressed by: the new path, or the
// old one for deletions.
func (f FileChange) Path() string {
	if f.Kind == Deleted || f.NewPath == "" {
		return f.OldPath
	}
	return f.NewPath
}

func (f FileChange) clone() FileChange {
	out := f
	out.Hunks = make([]Hunk, len(f.Hunks))
	for i, h := range f.Hunks {
		h.Lines = append([]Line(nil), h.Lines...)
		out.Hunks[i] = h
	}
	return out
}

// Author identifies who wrote a commit.
type Author struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

func (a Author) String() string {
	if a.Email == "" {
		return a.Name
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// Meta is the commit metadata a Patch is built from.
type Meta struct {
	Ref     string
	Parent  string
	Message string
	Author  Author
}

// Patch is one reviewed commit. It is immutable once returned by New.
type Patch struct {
	ref     string
	parent  string
	message string
	author  Author
	files   []FileChange
	diff    string
}

// New parses diff and builds a Patch from it. It fails if the diff cannot be
// parsed or if any file's hunks violate ordering.
func New(meta Meta, diff string) (*Patch, error) {
	files, err := Parse(diff)
	if err != nil {
		return nil, err
	}
	return FromFiles(meta, files, diff)
}

// FromFiles builds a Patch from already parsed file changes.
func FromFiles(meta Meta, files []FileChange, diff string) (*Patch, error) {
	if meta.Ref == "" {
		return nil, errors.New("patch: empty commit reference")
	}
	copied := make([]FileChange, len(files))
	for i, f := range files {
		if err := validateHunks(f); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path(), err)
		}
		copied[i] = f.clone()
	}
	return &Patch{
		ref:     meta.Ref,
		parent:  meta.Parent,
		message: strings.TrimRight(meta.Message, "\n"),
		author:  meta.Author,
		files:   copied,
		diff:    diff,
	}, nil
}

func validateHunks(f FileChange) error {
	for i := 1; i < len(f.Hunks); i++ {
		prev, next := f.Hunks[i-1], f.Hunks[i]
		if !follows(prev.Old, next.Old) || !follows(prev.New, next.New) {
			return fmt.Errorf("hunk %d: %w", i+1, ErrHunkOrder)
		}
	}
	return nil
}

func follows(prev, next LineRange) bool {
	if next.Start < prev.Start {
		return false
	}
	return next.Start >= prev.Start+prev.Count
}

// Ref returns the commit id.
func (p *Patch) Ref() string { return p.ref }

// ShortRef returns the first 12 characters of the commit id.
func (p *Patch) ShortRef() string {
	if len(p.ref) > 12 {
		return p.ref[:12]
	}
	return p.ref
}

// Parent returns the base commit id, empty for a root commit.
func (p *Patch) Parent() string { return p.parent }

// Message returns the full commit message.
func (p *Patch) Message() string { return p.message }

// Subject returns the first line of the commit message.
func (p *Patch) Subject() string {
	subject, _, _ := strings.Cut(p.message, "\n")
	return strings.TrimSpace(subject)
}

// Author returns the commit author.
func (p *Patch) Author() Author { return p.author }

// Diff returns the raw unified diff.
func (p *Patch) Diff() string { return p.diff }

// Files returns a copy of the file changes in diff order.
func (p *Patch) Files() []FileChange {
	out := make([]FileChange, len(p.files))
	for i, f := range p.files {
		out[i] = f.clone()
	}
	return out
}

// Paths returns the addressable path of every changed file.
func (p *Patch) Paths() []string {
	out := make([]string, 0, len(p.files))
	for _, f := range p.files {
		out = append(out, f.Path())
	}
	return out
}

// File returns the change for path, matching either side of a rename.
func (p *Patch) File(path string) (FileChange, bool) {
	for _, f := range p.files {
		if f.NewPath == path || f.OldPath == path {
			return f.clone(), true
		}
	}
	return FileChange{}, false
}

// Touches reports whether the patch changes path.
func (p *Patch) Touches(path string) bool {
	_, ok := p.File(path)
	return ok
}

// AddedLines returns the sorted new-side line numbers added to path.
func (p *Patch) AddedLines(path string) []int {
	f, ok := p.File(path)
	if !ok {
		return nil
	}
	var lines []int
	for _, h := range f.Hunks {
		for _, l := range h.Lines {
			if l.Op == OpAdd {
				lines = append(lines, l.NewLine)
			}
		}
	}
	sort.Ints(lines)
	return lines
}
