package reviewctx

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/gitctx"
	"github.com/dshills/patchwise/internal/patch"
)

// FileSource reads files and history from the repository.
type FileSource interface {
	ShowFile(ctx context.Context, rev, path string) (string, error)
	History(ctx context.Context, rev, path string, n int) ([]gitctx.Commit, error)
}

const (
	DefaultSurround     = 10
	DefaultHistoryDepth = 5
)

// Builder builds a Context per patch. Lookup results are cached for the
// builder's lifetime, so one builder should serve a whole run.
type Builder struct {
	src          FileSource
	lookup       SymbolLookup
	surround     int
	historyDepth int
	logger       *zap.Logger
	cache        *lookupCache
}

// Option configures a Builder.
type Option func(*Builder)

// WithSurround sets how many lines around each hunk go into its snippet.
func WithSurround(n int) Option {
	return func(b *Builder) {
		if n >= 0 {
			b.surround = n
		}
	}
}

// WithHistoryDepth sets how many prior commits are read per file.
func WithHistoryDepth(n int) Option {
	return func(b *Builder) {
		if n >= 0 {
			b.historyDepth = n
		}
	}
}

// WithSymbolLookup sets the symbol lookup. Without one, contexts carry
// snippets and history only.
func WithSymbolLookup(l SymbolLookup) Option {
	return func(b *Builder) { b.lookup = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder returns a builder reading from src.
func NewBuilder(src FileSource, opts ...Option) *Builder {
	b := &Builder{
		src:          src,
		surround:     DefaultSurround,
		historyDepth: DefaultHistoryDepth,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	if b.lookup != nil {
		b.cache = newLookupCache(b.lookup)
	}
	return b
}

// Build collects the context for p. It never fails; whatever could not be
// read is absent from the result.
func (b *Builder) Build(ctx context.Context, p *patch.Patch) *Context {
	c := newContext(p.Ref())
	for _, f := range p.Files() {
		if ctx.Err() != nil {
			b.logger.Debug("context build interrupted", zap.String("ref", p.ShortRef()), zap.Error(ctx.Err()))
			break
		}
		if f.Binary || f.Kind == patch.Deleted {
			continue
		}
		b.buildFile(ctx, c, p, f)
	}
	return c
}

func (b *Builder) buildFile(ctx context.Context, c *Context, p *patch.Patch, f patch.FileChange) {
	path := f.Path()
	fi := &fileInfo{added: p.AddedLines(path)}
	c.paths = append(c.paths, path)
	c.files[path] = fi

	content, err := b.src.ShowFile(ctx, p.Ref(), path)
	if err != nil {
		b.logger.Warn("cannot read file for context", zap.String("ref", p.ShortRef()), zap.String("path", path), zap.Error(err))
	} else {
		fi.content = content
		fi.loaded = true
	}
	fi.language = DetectLanguage(path, content)

	if fi.loaded {
		lines := splitLines(content)
		for _, h := range f.Hunks {
			key := Key{Path: path, Range: h.New}
			entry := Entry{Snippet: snippet(lines, h.New, b.surround)}
			if b.cache != nil && h.New.Count > 0 {
				file := File{Path: path, Rev: p.Ref(), Content: content, Added: addedIn(fi.added, h.New)}
				syms, err := b.cache.lookup(ctx, file, h.New)
				if err != nil {
					b.logger.Debug("symbol lookup failed", zap.String("path", path), zap.Stringer("range", h.New), zap.Error(err))
				}
				entry.Symbols = syms
			}
			c.entries[key] = entry
			c.keys = append(c.keys, key)
		}
	}

	if b.historyDepth > 0 && p.Parent() != "" {
		hist, err := b.src.History(ctx, p.Parent(), path, b.historyDepth)
		if err != nil {
			b.logger.Debug("cannot read history", zap.String("path", path), zap.Error(err))
		}
		fi.history = hist
	}
}

func splitLines(content string) []string {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// snippet returns lines r.Start-n .. r.End()+n, clamped to the file.
func snippet(lines []string, r patch.LineRange, n int) Snippet {
	if len(lines) == 0 {
		return Snippet{}
	}
	start := max(r.Start-n, 1)
	end := min(max(r.End(), r.Start)+n, len(lines))
	if start > end {
		return Snippet{}
	}
	return Snippet{
		Range: patch.LineRange{Start: start, Count: end - start + 1},
		Text:  strings.Join(lines[start-1:end], "\n") + "\n",
	}
}

func addedIn(added []int, r patch.LineRange) []int {
	var out []int
	for _, l := range added {
		if r.Contains(l) {
			out = append(out, l)
		}
	}
	return out
}
