package reviewers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/cache"
	"github.com/dshills/patchwise/internal/providers"
	"github.com/dshills/patchwise/internal/redact"
	"github.com/dshills/patchwise/internal/registry"
	"github.com/dshills/patchwise/internal/review"
	"github.com/dshills/patchwise/internal/toolrun"
)

// Trees checks out a revision and returns its directory.
type Trees interface {
	Path(ctx context.Context, rev string) (string, error)
}

// PatchedTrees checks out a revision with a series of mailbox patches
// applied on top. Patches that do not apply are skipped.
type PatchedTrees interface {
	PathWithPatches(ctx context.Context, rev, key string, patches []string) (string, error)
}

// Blamer reports whether a line of path at rev was last changed inside
// base..rev.
type Blamer interface {
	BlameIntroduced(ctx context.Context, base, rev, path string, line int) (bool, error)
}

// BuildOptions are the kernel build knobs shared by the make-based
// reviewers.
type BuildOptions struct {
	Arch string
	LLVM bool
	Jobs int
	// Dir holds one O= output directory per reviewer.
	Dir string
	// PatchDir holds fixup series applied before the tools run:
	// general/*.patch for every reviewer, then <reviewer>/*.patch.
	PatchDir string
}

// DefaultBuildOptions builds arm64 with LLVM on every CPU.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{Arch: "arm64", LLVM: true, Jobs: runtime.NumCPU()}
}

// Env is what the built-in reviewers need from the outside world.
type Env struct {
	Trees  Trees
	Blame  Blamer
	Runner toolrun.Runner
	Build  BuildOptions
	// Baselines caches tool output at base revisions. Nil disables it.
	Baselines *cache.Cache

	// Provider is shared by the AI reviewers. Nil leaves them registered
	// but failing with missing-dependency.
	Provider providers.Provider
	// Credentials are checked before an AI reviewer runs, so a missing
	// key fails fast as an auth failure.
	Credentials []toolrun.Requirement
	Retry       providers.RetryPolicy
	ChunkBytes  int
	Redact      redact.Options

	Logger *zap.Logger
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Env) arch() string {
	if e.Build.Arch == "" {
		return "arm64"
	}
	return e.Build.Arch
}

func (e Env) tree(ctx context.Context, rev string) (string, error) {
	if e.Trees == nil {
		return "", errors.New("no source tree configured")
	}
	return e.Trees.Path(ctx, rev)
}

// fixups lists the patch series for reviewer, general ones first, each
// group in name order. The key is "general" unless the reviewer has its own
// patches, so reviewers without any share a checkout.
func (e Env) fixups(reviewer string) ([]string, string) {
	if e.Build.PatchDir == "" {
		return nil, ""
	}
	general, _ := filepath.Glob(filepath.Join(e.Build.PatchDir, "general", "*.patch"))
	own, _ := filepath.Glob(filepath.Join(e.Build.PatchDir, reviewer, "*.patch"))
	sort.Strings(general)
	sort.Strings(own)
	key := "general"
	if len(own) > 0 {
		key = reviewer
	}
	return append(general, own...), key
}

// reviewTree returns the checkout a tool reviewer runs in: rev with the
// reviewer's fixup series applied, or plain rev when there is none.
func (e Env) reviewTree(ctx context.Context, reviewer, rev string) (string, error) {
	series, key := e.fixups(reviewer)
	if len(series) == 0 {
		return e.tree(ctx, rev)
	}
	pt, ok := e.Trees.(PatchedTrees)
	if !ok {
		e.logger().Debug("source trees cannot apply fixups", zap.String("reviewer", reviewer))
		return e.tree(ctx, rev)
	}
	return pt.PathWithPatches(ctx, rev, key, series)
}

// fixupTag identifies the fixup series in cache keys.
func (e Env) fixupTag(reviewer string) string {
	series, _ := e.fixups(reviewer)
	names := make([]string, len(series))
	for i, f := range series {
		names[i] = filepath.Base(filepath.Dir(f)) + "/" + filepath.Base(f)
	}
	return strings.Join(names, ",")
}

func invLogger(inv review.Invocation) *zap.Logger {
	if inv.Logger == nil {
		return zap.NewNop()
	}
	return inv.Logger
}

func (e Env) buildDir(reviewer, variant string) string {
	base := e.Build.Dir
	if base == "" {
		base = filepath.Join(os.TempDir(), "patchwise-build")
	}
	return filepath.Join(base, reviewer, variant)
}

// Builtins returns every built-in reviewer: the static analyses first, then
// the AI reviews.
func Builtins(env Env) []review.Reviewer {
	return []review.Reviewer{
		NewCheckpatch(env),
		NewCoccicheck(env),
		NewDTCheck(env),
		NewDTBSCheck(env),
		NewSparse(env),
		NewAIReview(env),
		NewCommitAudit(env),
	}
}

// Register adds the built-ins to reg.
func Register(reg *registry.Registry, env Env) error {
	builtins := Builtins(env)
	for _, rv := range builtins {
		if err := reg.Register(rv); err != nil {
			return err
		}
	}
	env.logger().Debug("registered built-in reviewers", zap.Int("count", len(builtins)), zap.Bool("model", env.Provider != nil))
	return nil
}
