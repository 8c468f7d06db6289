package patch

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// Parse reads a unified git diff into file changes, numbering every hunk line
// on the side(s) it belongs to.
func Parse(diff string) ([]FileChange, error) {
	if strings.TrimSpace(diff) == "" {
		return nil, nil
	}
	parsed, _, err := gitdiff.Parse(strings.NewReader(diff))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	files := make([]FileChange, 0, len(parsed))
	for _, f := range parsed {
		fc := FileChange{
			OldPath: f.OldName,
			NewPath: f.NewName,
			Kind:    kindOf(f),
			Binary:  f.IsBinary,
		}
		for _, frag := range f.TextFragments {
			fc.Hunks = append(fc.Hunks, hunkOf(frag))
		}
		files = append(files, fc)
	}
	return files, nil
}

func kindOf(f *gitdiff.File) ChangeKind {
	switch {
	case f.IsNew:
		return Added
	case f.IsDelete:
		return Deleted
	case f.IsRename:
		return Renamed
	default:
		return Modified
	}
}

func hunkOf(frag *gitdiff.TextFragment) Hunk {
	h := Hunk{
		Old:    LineRange{Start: int(frag.OldPosition), Count: int(frag.OldLines)},
		New:    LineRange{Start: int(frag.NewPosition), Count: int(frag.NewLines)},
		Header: strings.TrimSpace(frag.Comment),
		Lines:  make([]Line, 0, len(frag.Lines)),
	}
	oldLine, newLine := h.Old.Start, h.New.Start
	for _, l := range frag.Lines {
		text := strings.TrimSuffix(l.Line, "\n")
		switch l.Op {
		case gitdiff.OpAdd:
			h.Lines = append(h.Lines, Line{Op: OpAdd, Text: text, NewLine: newLine})
			newLine++
		case gitdiff.OpDelete:
			h.Lines = append(h.Lines, Line{Op: OpDelete, Text: text, OldLine: oldLine})
			oldLine++
		default:
			h.Lines = append(h.Lines, Line{Op: OpContext, Text: text, OldLine: oldLine, NewLine: newLine})
			oldLine++
			newLine++
		}
	}
	return h
}
