package reviewctx

import (
	"context"
	"sort"

	"github.com/dshills/patchwise/internal/gitctx"
	"github.com/dshills/patchwise/internal/patch"
)

// File is a source file at a revision, as seen by a SymbolLookup.
type File struct {
	Path    string
	Rev     string
	Content string
	// Added lists the new-side line numbers added by the patch.
	Added []int
}

// Symbol is a definition relevant to a hunk. Path may differ from the hunk's
// file when the definition lives in a header.
type Symbol struct {
	Name  string
	Kind  string
	Path  string
	Range patch.LineRange
}

// SymbolLookup finds the symbols relevant to lines r of f.
type SymbolLookup interface {
	Lookup(ctx context.Context, f File, r patch.LineRange) ([]Symbol, error)
}

// Snippet is unchanged source around a hunk at the patch revision.
type Snippet struct {
	Range patch.LineRange
	Text  string
}

// Entry is everything known about one hunk.
type Entry struct {
	Snippet Snippet
	Symbols []Symbol
}

// Key addresses a hunk by path and new-side range.
type Key struct {
	Path  string
	Range patch.LineRange
}

type fileInfo struct {
	language string
	content  string
	loaded   bool
	added    []int
	history  []gitctx.Commit
}

// Context is the read-only review context of one patch.
type Context struct {
	ref     string
	paths   []string
	files   map[string]*fileInfo
	entries map[Key]Entry
	keys    []Key
}

func newContext(ref string) *Context {
	return &Context{
		ref:     ref,
		files:   make(map[string]*fileInfo),
		entries: make(map[Key]Entry),
	}
}

// Empty returns a context with no entries.
func Empty(ref string) *Context { return newContext(ref) }

// Ref returns the commit the context was built for.
func (c *Context) Ref() string { return c.ref }

// Lookup returns the entry for a hunk. Missing entries are normal.
func (c *Context) Lookup(path string, r patch.LineRange) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries[Key{Path: path, Range: r}]
	if !ok {
		return Entry{}, false
	}
	e.Symbols = append([]Symbol(nil), e.Symbols...)
	return e, true
}

// Keys lists the hunks with entries, in patch order.
func (c *Context) Keys() []Key {
	if c == nil {
		return nil
	}
	return append([]Key(nil), c.keys...)
}

// Paths lists the files of the patch that were considered, in patch order.
func (c *Context) Paths() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.paths...)
}

// Language returns the detected language of path, or "".
func (c *Context) Language(path string) string {
	if c != nil {
		if fi, ok := c.files[path]; ok {
			return fi.language
		}
	}
	return DetectLanguage(path, "")
}

// Content returns path at the patch revision when it was loaded.
func (c *Context) Content(path string) (string, bool) {
	if c == nil {
		return "", false
	}
	fi, ok := c.files[path]
	if !ok || !fi.loaded {
		return "", false
	}
	return fi.content, true
}

// Added returns the added line numbers of path.
func (c *Context) Added(path string) []int {
	if c == nil {
		return nil
	}
	if fi, ok := c.files[path]; ok {
		return append([]int(nil), fi.added...)
	}
	return nil
}

// History returns recent commits that touched path before the patch.
func (c *Context) History(path string) []gitctx.Commit {
	if c == nil {
		return nil
	}
	if fi, ok := c.files[path]; ok {
		return append([]gitctx.Commit(nil), fi.history...)
	}
	return nil
}

// Symbols returns every symbol in the context, deduplicated, ordered by path
// then start line.
func (c *Context) Symbols() []Symbol {
	if c == nil {
		return nil
	}
	seen := make(map[symbolKey]bool)
	var out []Symbol
	for _, k := range c.keys {
		for _, s := range c.entries[k].Symbols {
			sk := keyOf(s)
			if seen[sk] {
				continue
			}
			seen[sk] = true
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Range.Start < out[j].Range.Start
	})
	return out
}

type symbolKey struct {
	name  string
	path  string
	start int
	count int
}

func keyOf(s Symbol) symbolKey {
	return symbolKey{s.Name, s.Path, s.Range.Start, s.Range.Count}
}
