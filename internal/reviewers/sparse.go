package reviewers

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/patch"
	"github.com/dshills/patchwise/internal/review"
	"github.com/dshills/patchwise/internal/toolrun"
)

var minLLVM = toolrun.MustVersion("14")

// NewSparse builds the tree with sparse as the checker and keeps the
// warnings on lines the commit introduced.
func NewSparse(env Env) *review.ToolReviewer {
	s := &sparse{env: env}
	return review.NewToolReviewer(review.Info{
		Name:        "sparse",
		Description: "sparse semantic checks on lines introduced by the commit",
		Short:       false,
		Requires: []toolrun.Requirement{
			toolrun.Dependency{Name: "make"},
			toolrun.Dependency{Name: "llvm-config", Min: minLLVM, Package: "llvm"},
			toolrun.Dependency{Name: "clang", Min: minLLVM},
			toolrun.Dependency{Name: "ld.lld", Min: minLLVM, Package: "lld"},
			toolrun.Dependency{
				Name: "sparse",
				Min:  toolrun.MustVersion("0.6.4"),
				Source: &toolrun.SourceBuild{
					Repo: "git://git.kernel.org/pub/scm/devel/sparse/sparse.git",
				},
			},
		},
	}, s)
}

type sparse struct {
	env Env
}

// drivers/a.c:42:9: warning: symbol 'foo' was not declared. Should it be static?
var sparseLineRe = regexp.MustCompile(`^(.+?):(\d+):(\d+): (.+)$`)

func (s *sparse) Run(ctx context.Context, inv review.Invocation) ([]review.Finding, error) {
	p := inv.Patch
	logger := invLogger(inv)
	tree, err := s.env.reviewTree(ctx, "sparse", p.Ref())
	if err != nil {
		return nil, err
	}
	out := s.env.buildDir("sparse", "patch")
	if err := s.env.runConfig(ctx, s.env.makeCommand(tree, out, s.env.arch(), "defconfig")); err != nil {
		return nil, err
	}

	changed := changedFiles(p)
	// Sparse only reports on files that get recompiled.
	now := time.Now()
	for f := range changed {
		if err := os.Chtimes(filepath.Join(tree, f), now, now); err != nil && !os.IsNotExist(err) {
			logger.Debug("touch failed", zap.String("path", f), zap.Error(err))
		}
	}

	output, err := s.env.runMake(ctx, logger, s.env.makeCommand(tree, out, s.env.arch(), "C=1", "CHECK=sparse"))
	if err != nil {
		return nil, err
	}

	var findings []review.Finding
	seen := make(map[string]bool)
	for _, c := range parseSparse(output, tree) {
		if !changed[c.path] || seen[c.key()] {
			continue
		}
		seen[c.key()] = true
		if p.Parent() != "" && s.env.Blame != nil {
			introduced, err := s.env.Blame.BlameIntroduced(ctx, p.Parent(), p.Ref(), c.path, c.line)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.Debug("blame failed", zap.String("path", c.path), zap.Int("line", c.line), zap.Error(err))
				continue
			}
			if !introduced {
				continue
			}
		}
		findings = append(findings, c.finding())
	}
	return findings, nil
}

type sparseDiag struct {
	path    string
	line    int
	message string
}

func (d sparseDiag) key() string {
	return d.path + ":" + strconv.Itoa(d.line) + ":" + d.message
}

func (d sparseDiag) finding() review.Finding {
	sev := review.SeverityWarning
	msg := d.message
	if rest, ok := strings.CutPrefix(msg, "error: "); ok {
		sev = review.SeverityError
		msg = rest
	} else if rest, ok := strings.CutPrefix(msg, "warning: "); ok {
		msg = rest
	}
	return review.Finding{
		Severity: sev,
		Message:  msg,
		Anchor:   &review.Anchor{Path: d.path, Line: d.line},
	}
}

// parseSparse extracts diagnostics from build output, making paths relative
// to tree. Everything that is not a diagnostic is make noise.
func parseSparse(out, tree string) []sparseDiag {
	prefix := strings.TrimSuffix(tree, "/") + "/"
	var diags []sparseDiag
	for _, line := range strings.Split(out, "\n") {
		m := sparseLineRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		diags = append(diags, sparseDiag{
			path:    strings.TrimPrefix(strings.TrimSpace(m[1]), prefix),
			line:    n,
			message: m[4],
		})
	}
	return diags
}

// changedFiles lists the paths that still exist after p.
func changedFiles(p *patch.Patch) map[string]bool {
	out := make(map[string]bool)
	for _, f := range p.Files() {
		if f.Kind == patch.Deleted || f.Binary {
			continue
		}
		out[f.Path()] = true
	}
	return out
}
