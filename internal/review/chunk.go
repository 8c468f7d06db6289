package review

import (
	"strings"

	"github.com/dshills/patchwise/internal/patch"
)

// SplitPatch splits p into patches of whole files, each holding at most
// maxBytes of diff unless a single file is larger. The commit metadata is
// shared by every chunk.
func SplitPatch(p *patch.Patch, maxBytes int) ([]*patch.Patch, error) {
	var sections []string
	for _, sec := range patch.SplitSections(p.Diff()) {
		if strings.TrimSpace(sec) != "" {
			sections = append(sections, sec)
		}
	}
	files := p.Files()
	if maxBytes <= 0 || len(sections) != len(files) {
		return []*patch.Patch{p}, nil
	}

	meta := patch.Meta{Ref: p.Ref(), Parent: p.Parent(), Message: p.Message(), Author: p.Author()}
	var (
		chunks   []*patch.Patch
		current  strings.Builder
		curFiles []patch.FileChange
	)
	flush := func() error {
		if current.Len() == 0 {
			return nil
		}
		c, err := patch.FromFiles(meta, curFiles, current.String())
		if err != nil {
			return err
		}
		chunks = append(chunks, c)
		current.Reset()
		curFiles = nil
		return nil
	}

	for i, sec := range sections {
		if current.Len() > 0 && current.Len()+len(sec) > maxBytes {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		current.WriteString(sec)
		curFiles = append(curFiles, files[i])
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return chunks, nil
}
