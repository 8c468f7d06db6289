package reviewctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/patch"
)

// TreeSource provides an on-disk checkout per revision.
type TreeSource interface {
	Path(ctx context.Context, rev string) (string, error)
}

// DefaultClangdArgs starts clangd for one-shot queries.
var DefaultClangdArgs = []string{"--header-insertion=never", "--background-index", "--log=error"}

// maxIdentifiers bounds definition requests per lookup.
const maxIdentifiers = 64

var cKeywords = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true, "continue": true,
	"default": true, "do": true, "double": true, "else": true, "enum": true, "extern": true,
	"float": true, "for": true, "goto": true, "if": true, "inline": true, "int": true,
	"long": true, "register": true, "return": true, "short": true, "signed": true,
	"sizeof": true, "static": true, "struct": true, "switch": true, "typedef": true,
	"union": true, "unsigned": true, "void": true, "volatile": true, "while": true,
	"bool": true, "NULL": true,
}

// LSPLookup resolves identifiers on added lines to their definitions with
// clangd. One server runs per checkout and lives until Close.
type LSPLookup struct {
	trees  TreeSource
	binary string
	args   []string
	// compileCommands returns the directory holding compile_commands.json for
	// a checkout, or "".
	compileCommands func(root string) string
	logger          *zap.Logger
	start           func(ctx context.Context, root string) (*lspSession, error)

	mu       sync.Mutex
	sessions map[string]*lspSession
}

// LSPOption configures an LSPLookup.
type LSPOption func(*LSPLookup)

// WithClangd overrides the clangd binary and arguments.
func WithClangd(binary string, args ...string) LSPOption {
	return func(l *LSPLookup) {
		if binary != "" {
			l.binary = binary
		}
		if len(args) > 0 {
			l.args = args
		}
	}
}

// WithCompileCommands points clangd at a compile_commands.json directory.
func WithCompileCommands(fn func(root string) string) LSPOption {
	return func(l *LSPLookup) { l.compileCommands = fn }
}

// WithLSPLogger sets the logger.
func WithLSPLogger(logger *zap.Logger) LSPOption {
	return func(l *LSPLookup) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLSPLookup returns a clangd-backed lookup over trees.
func NewLSPLookup(trees TreeSource, opts ...LSPOption) *LSPLookup {
	l := &LSPLookup{
		trees:    trees,
		binary:   "clangd",
		args:     DefaultClangdArgs,
		logger:   zap.NewNop(),
		sessions: make(map[string]*lspSession),
	}
	for _, o := range opts {
		o(l)
	}
	l.start = l.startClangd
	return l
}

func (l *LSPLookup) Lookup(ctx context.Context, f File, r patch.LineRange) ([]Symbol, error) {
	if len(f.Added) == 0 {
		return nil, nil
	}
	root, err := l.trees.Path(ctx, f.Rev)
	if err != nil {
		return nil, fmt.Errorf("checkout for %s: %w", f.Rev, err)
	}
	s, err := l.session(ctx, root)
	if err != nil {
		return nil, err
	}
	return s.definitions(ctx, f)
}

// Close stops every language server.
func (l *LSPLookup) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for root, s := range l.sessions {
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
		delete(l.sessions, root)
	}
	return errors.Join(errs...)
}

func (l *LSPLookup) session(ctx context.Context, root string) (*lspSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sessions[root]; ok {
		return s, nil
	}
	s, err := l.start(ctx, root)
	if err != nil {
		return nil, err
	}
	l.sessions[root] = s
	return s, nil
}

func (l *LSPLookup) startClangd(ctx context.Context, root string) (*lspSession, error) {
	args := append([]string(nil), l.args...)
	if l.compileCommands != nil {
		if dir := l.compileCommands(root); dir != "" {
			args = append(args, "--compile-commands-dir="+dir)
		}
	}
	cmd := exec.Command(l.binary, args...)
	cmd.Dir = root
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", l.binary, err)
	}
	l.logger.Debug("started language server", zap.String("root", root), zap.Int("pid", cmd.Process.Pid))

	s := newSession(root, stdin, stdout, l.logger)
	s.wait = cmd.Wait
	s.kill = cmd.Process.Kill
	if err := s.initialize(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// lspSession is one initialized server bound to a checkout.
type lspSession struct {
	root   string
	conn   *rpcConn
	stdin  io.Closer
	logger *zap.Logger
	wait   func() error
	kill   func() error

	mu     sync.Mutex
	opened map[string]bool
}

func newSession(root string, w io.WriteCloser, r io.Reader, logger *zap.Logger) *lspSession {
	return &lspSession{
		root:   root,
		conn:   newRPCConn(w, r, logger),
		stdin:  w,
		logger: logger,
		opened: make(map[string]bool),
	}
}

func (s *lspSession) initialize(ctx context.Context) error {
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   fileURI(s.root),
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"documentSymbol": map[string]any{"hierarchicalDocumentSymbolSupport": true},
			},
			"window": map[string]any{"workDoneProgress": true},
		},
	}
	if err := s.conn.Call(ctx, "initialize", params, nil); err != nil {
		return fmt.Errorf("initializing language server: %w", err)
	}
	return s.conn.Notify("initialized", map[string]any{})
}

func (s *lspSession) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.conn.Call(ctx, "shutdown", nil, nil)
	_ = s.conn.Notify("exit", nil)
	s.stdin.Close()

	if s.wait == nil {
		return nil
	}
	waited := make(chan error, 1)
	go func() { waited <- s.wait() }()
	select {
	case err := <-waited:
		return ignoreExit(err)
	case <-time.After(3 * time.Second):
		if s.kill != nil {
			s.kill()
		}
		return ignoreExit(<-waited)
	}
}

func ignoreExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func (s *lspSession) open(uri, lang, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened[uri] {
		return nil
	}
	s.opened[uri] = true
	return s.conn.Notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": lang,
			"version":    1,
			"text":       text,
		},
	})
}

type lspPosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type lspRange struct {
	Start lspPosition `json:"start"`
	End   lspPosition `json:"end"`
}

type lspLocation struct {
	URI   string   `json:"uri"`
	Range lspRange `json:"range"`
	// LocationLink form
	TargetURI   string    `json:"targetUri"`
	TargetRange *lspRange `json:"targetRange"`
}

func (l lspLocation) normalize() (string, lspRange) {
	if l.TargetURI != "" && l.TargetRange != nil {
		return l.TargetURI, *l.TargetRange
	}
	return l.URI, l.Range
}

// documentSymbol decodes both DocumentSymbol and SymbolInformation.
type documentSymbol struct {
	Name     string           `json:"name"`
	Kind     int              `json:"kind"`
	Range    *lspRange        `json:"range"`
	Location *lspLocation     `json:"location"`
	Children []documentSymbol `json:"children"`
}

func (d documentSymbol) span() (lspRange, bool) {
	if d.Range != nil {
		return *d.Range, true
	}
	if d.Location != nil {
		return d.Location.Range, true
	}
	return lspRange{}, false
}

func decodeLocations(raw json.RawMessage) []lspLocation {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var many []lspLocation
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	var one lspLocation
	if err := json.Unmarshal(raw, &one); err == nil && (one.URI != "" || one.TargetURI != "") {
		return []lspLocation{one}
	}
	return nil
}

// findSymbol returns the symbol named ident whose range covers line, and its
// parent when it is nested.
func findSymbol(syms []documentSymbol, ident string, line int, parent *documentSymbol) (*documentSymbol, *documentSymbol) {
	for i := range syms {
		sym := &syms[i]
		if rng, ok := sym.span(); ok && sym.Name == ident && rng.Start.Line <= line && line <= rng.End.Line {
			return sym, parent
		}
		if found, p := findSymbol(sym.Children, ident, line, sym); found != nil {
			return found, p
		}
	}
	return nil, nil
}

var lspKinds = map[int]string{
	5: "class", 6: "method", 7: "property", 8: "field", 10: "enum", 11: "interface",
	12: "function", 13: "variable", 14: "constant", 22: "enum member", 23: "struct",
	26: "type parameter",
}

func (s *lspSession) definitions(ctx context.Context, f File) ([]Symbol, error) {
	abs := filepath.Join(s.root, f.Path)
	uri := fileURI(abs)
	if err := s.open(uri, lspLanguageID(f.Path), f.Content); err != nil {
		return nil, err
	}

	lines := splitLines(f.Content)
	var out []Symbol
	seen := make(map[symbolKey]bool)
	queried := make(map[string]bool)
	docSymbols := make(map[string][]documentSymbol)

	for _, ln := range f.Added {
		if ln < 1 || ln > len(lines) {
			continue
		}
		for _, m := range identifierRe.FindAllStringIndex(lines[ln-1], -1) {
			ident := lines[ln-1][m[0]:m[1]]
			if cKeywords[ident] || queried[ident] || len(queried) >= maxIdentifiers {
				continue
			}
			queried[ident] = true

			var raw json.RawMessage
			err := s.conn.Call(ctx, "textDocument/definition", map[string]any{
				"textDocument": map[string]any{"uri": uri},
				"position":     lspPosition{Line: ln - 1, Character: m[0]},
			}, &raw)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				s.logger.Debug("definition request failed", zap.String("ident", ident), zap.Error(err))
				continue
			}
			locs := decodeLocations(raw)
			if len(locs) == 0 {
				continue
			}
			defURI, defRange := locs[0].normalize()
			sym, ok := s.resolve(ctx, docSymbols, ident, defURI, defRange)
			if !ok {
				continue
			}
			if k := keyOf(sym); !seen[k] {
				seen[k] = true
				out = append(out, sym)
			}
		}
	}
	return out, nil
}

// resolve widens a definition location to its full symbol, or to the parent
// symbol when the definition is nested (a struct member, for example).
func (s *lspSession) resolve(ctx context.Context, cache map[string][]documentSymbol, ident, uri string, loc lspRange) (Symbol, bool) {
	defPath, err := uriPath(uri)
	if err != nil {
		return Symbol{}, false
	}
	rel, err := filepath.Rel(s.root, defPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Symbol{}, false
	}

	syms, ok := cache[uri]
	if !ok {
		if data, err := os.ReadFile(defPath); err == nil {
			if err := s.open(uri, lspLanguageID(defPath), string(data)); err == nil {
				_ = s.conn.Call(ctx, "textDocument/documentSymbol", map[string]any{
					"textDocument": map[string]any{"uri": uri},
				}, &syms)
			}
		}
		cache[uri] = syms
	}

	name, kind, rng := ident, "definition", loc
	if sym, parent := findSymbol(syms, ident, loc.Start.Line, nil); sym != nil {
		rng, _ = sym.span()
		kind = lspKinds[sym.Kind]
		if parent != nil {
			if prng, ok := parent.span(); ok {
				name, rng, kind = parent.Name, prng, lspKinds[parent.Kind]
			}
		}
	}
	if kind == "" {
		kind = "definition"
	}
	return Symbol{
		Name:  name,
		Kind:  kind,
		Path:  filepath.ToSlash(rel),
		Range: patch.LineRange{Start: rng.Start.Line + 1, Count: rng.End.Line - rng.Start.Line + 1},
	}, true
}

func lspLanguageID(path string) string {
	if lang := DetectLanguage(path, ""); lang == "cpp" {
		return "cpp"
	}
	return "c"
}

func fileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func uriPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}
