package reviewctx

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/dshills/patchwise/internal/patch"
)

// grammar describes how to read one tree-sitter language.
type grammar struct {
	language *sitter.Language
	// scopes are enclosing node types worth reporting.
	scopes map[string]string
	// topLevel are definition node types collected for identifier lookup.
	topLevel map[string]string
}

var grammars = map[string]grammar{
	"c": {
		language: c.GetLanguage(),
		scopes: map[string]string{
			"function_definition": "function",
			"struct_specifier":    "struct",
			"union_specifier":     "union",
			"enum_specifier":      "enum",
			"type_definition":     "typedef",
		},
		topLevel: map[string]string{
			"function_definition":  "function",
			"declaration":          "declaration",
			"type_definition":      "typedef",
			"struct_specifier":     "struct",
			"union_specifier":      "union",
			"enum_specifier":       "enum",
			"preproc_def":          "macro",
			"preproc_function_def": "macro",
		},
	},
	"go": {
		language: golang.GetLanguage(),
		scopes: map[string]string{
			"function_declaration": "function",
			"method_declaration":   "method",
			"type_declaration":     "type",
		},
		topLevel: map[string]string{
			"function_declaration": "function",
			"method_declaration":   "method",
			"type_declaration":     "type",
			"const_declaration":    "const",
			"var_declaration":      "var",
		},
	},
}

var identifierRe = regexp.MustCompile(`\b[_a-zA-Z][_a-zA-Z0-9]*\b`)

// ScopeLookup finds the enclosing declaration of a range and the same-file
// definitions of identifiers on its added lines, using tree-sitter.
type ScopeLookup struct{}

// NewScopeLookup returns a tree-sitter lookup for C and Go sources.
func NewScopeLookup() *ScopeLookup { return &ScopeLookup{} }

// Supports reports whether the language tag has a grammar.
func (ScopeLookup) Supports(lang string) bool {
	_, ok := grammars[lang]
	return ok
}

func (s ScopeLookup) Lookup(ctx context.Context, f File, r patch.LineRange) ([]Symbol, error) {
	g, ok := grammars[DetectLanguage(f.Path, f.Content)]
	if !ok {
		return nil, nil
	}
	src := []byte(f.Content)
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.language)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.Path, err)
	}
	defer tree.Close()
	root := tree.RootNode()

	var out []Symbol
	seen := make(map[symbolKey]bool)
	add := func(sym Symbol) {
		if k := keyOf(sym); !seen[k] {
			seen[k] = true
			out = append(out, sym)
		}
	}

	if sym, ok := enclosingScope(root, g, src, f.Path, r); ok {
		add(sym)
	}

	defs := topLevelDefinitions(root, g, src, f.Path)
	lines := splitLines(f.Content)
	for _, ln := range f.Added {
		if ln < 1 || ln > len(lines) {
			continue
		}
		for _, ident := range identifierRe.FindAllString(lines[ln-1], -1) {
			if sym, ok := defs[ident]; ok && !sym.Range.Contains(ln) {
				add(sym)
			}
		}
	}
	return out, nil
}

func enclosingScope(root *sitter.Node, g grammar, src []byte, path string, r patch.LineRange) (Symbol, bool) {
	start := sitter.Point{Row: uint32(r.Start - 1)}
	end := sitter.Point{Row: uint32(max(r.End(), r.Start) - 1)}
	n := root.NamedDescendantForPointRange(start, end)
	for ; n != nil; n = n.Parent() {
		kind, ok := g.scopes[n.Type()]
		if !ok {
			continue
		}
		var name string
		if names := defNames(n, src); len(names) > 0 {
			name = names[0]
		} else if kind != "function" {
			continue
		}
		return Symbol{Name: name, Kind: kind, Path: path, Range: nodeRange(n)}, true
	}
	return Symbol{}, false
}

func topLevelDefinitions(root *sitter.Node, g grammar, src []byte, path string) map[string]Symbol {
	defs := make(map[string]Symbol)
	count := int(root.NamedChildCount())
	for i := 0; i < count; i++ {
		n := root.NamedChild(i)
		kind, ok := g.topLevel[n.Type()]
		if !ok {
			continue
		}
		for _, name := range defNames(n, src) {
			if _, dup := defs[name]; !dup {
				defs[name] = Symbol{Name: name, Kind: kind, Path: path, Range: nodeRange(n)}
			}
		}
	}
	return defs
}

// defNames returns the names a top-level node defines.
func defNames(n *sitter.Node, src []byte) []string {
	switch n.Type() {
	case "type_declaration", "const_declaration", "var_declaration":
		var names []string
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			if name := n.NamedChild(i).ChildByFieldName("name"); name != nil {
				names = append(names, name.Content(src))
			}
		}
		return names
	}
	if name := declName(n, src); name != "" {
		return []string{name}
	}
	return nil
}

// declName follows name and declarator fields down to the declared
// identifier.
func declName(n *sitter.Node, src []byte) string {
	for depth := 0; n != nil && depth < 8; depth++ {
		switch n.Type() {
		case "identifier", "field_identifier", "type_identifier":
			return n.Content(src)
		}
		if name := n.ChildByFieldName("name"); name != nil {
			return strings.TrimSpace(name.Content(src))
		}
		n = n.ChildByFieldName("declarator")
	}
	return ""
}

func nodeRange(n *sitter.Node) patch.LineRange {
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1
	return patch.LineRange{Start: start, Count: end - start + 1}
}
