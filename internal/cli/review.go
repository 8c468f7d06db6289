package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/cache"
	"github.com/dshills/patchwise/internal/config"
	"github.com/dshills/patchwise/internal/gitctx"
	"github.com/dshills/patchwise/internal/logging"
	"github.com/dshills/patchwise/internal/orchestrator"
	"github.com/dshills/patchwise/internal/output"
	"github.com/dshills/patchwise/internal/providers"
	"github.com/dshills/patchwise/internal/redact"
	"github.com/dshills/patchwise/internal/registry"
	"github.com/dshills/patchwise/internal/review"
	"github.com/dshills/patchwise/internal/reviewctx"
	"github.com/dshills/patchwise/internal/reviewers"
	"github.com/dshills/patchwise/internal/toolrun"
)

// defaultChunkBytes splits very large diffs before they are sent to a model.
const defaultChunkBytes = 200_000

// reviewOptions holds the review flags.
type reviewOptions struct {
	commits  []string
	repoPath string
	reviews  string
	short    bool
	llm      bool
	static   bool
	long     bool
	install  bool
	model    string
	provider string
	apiKey   string
	timeout  int
	jobs     int
	format   string
	out      string
	failOn   string
	logLevel string
	logFile  string
	rules    string
	noRedact bool
}

func addReviewFlags(cmd *cobra.Command, o *reviewOptions) {
	f := cmd.PersistentFlags()
	f.StringSliceVar(&o.commits, "commits", nil, "Commits to review: refs, or a single range a..b (default HEAD)")
	f.StringVar(&o.repoPath, "repo-path", "", "Path to the git repository (default .)")
	f.StringVar(&o.reviews, "reviews", "", "Reviewers to run (comma-separated)")
	f.BoolVar(&o.short, "short-reviews", false, "Run only the fast reviewers")
	f.BoolVar(&o.llm, "llm-reviews", false, "Run the AI reviewers")
	f.BoolVar(&o.static, "static-reviews", false, "Run the tool-backed reviewers")
	f.BoolVar(&o.long, "long-reviews", false, "Run the slow reviewers")
	f.BoolVar(&o.install, "install", false, "Install missing dependencies of the selected reviewers first")
	f.StringVar(&o.model, "model", "", "AI model as <provider>/<model>")
	f.StringVar(&o.provider, "provider", "", "Base URL of the model API")
	f.StringVar(&o.apiKey, "api-key", "", "API key for the model API (default $OPENAI_API_KEY)")
	f.IntVar(&o.timeout, "timeout", 0, "Per-reviewer timeout in seconds")
	f.IntVar(&o.jobs, "jobs", 0, "Reviewers run concurrently per patch")
	f.StringVar(&o.format, "format", "", "Output format (text, json, markdown, sarif)")
	f.StringVar(&o.out, "out", "", "Output file path (default: stdout)")
	f.StringVar(&o.failOn, "fail-on", "", "Exit 1 on findings at or above (none, info, warning, error)")
	f.StringVar(&o.logLevel, "log-level", "", "Console log level (debug, info, warn, error)")
	f.StringVar(&o.logFile, "log-file", "", "JSON log file, or none")
	f.StringVar(&o.rules, "rules", "", "Rules file path")
	f.BoolVar(&o.noRedact, "no-redact", false, "Disable redaction of text sent to the model")
}

func buildOverrides(o *reviewOptions) map[string]string {
	m := make(map[string]string)
	if o.repoPath != "" {
		m["repoPath"] = o.repoPath
	}
	if o.reviews != "" {
		m["reviews"] = o.reviews
	}
	if o.short {
		m["shortOnly"] = "true"
	}
	if o.model != "" {
		m["model"] = o.model
	}
	if o.provider != "" {
		m["providerUrl"] = o.provider
	}
	if o.apiKey != "" {
		m["apiKey"] = o.apiKey
	}
	if o.timeout > 0 {
		m["timeoutSeconds"] = strconv.Itoa(o.timeout)
	}
	if o.jobs > 0 {
		m["maxConcurrency"] = strconv.Itoa(o.jobs)
	}
	if o.format != "" {
		m["format"] = o.format
	}
	if o.failOn != "" {
		m["failOn"] = o.failOn
	}
	if o.logLevel != "" {
		m["logLevel"] = o.logLevel
	}
	if o.logFile != "" {
		m["logFile"] = o.logFile
	}
	if o.rules != "" {
		m["rulesFile"] = o.rules
	}
	return m
}

// loadConfig merges flags into the configuration and applies --no-redact.
func loadConfig(o *reviewOptions, stderr io.Writer) (config.Config, error) {
	cfg, err := config.Load(buildOverrides(o))
	if err != nil {
		return cfg, exitWith(ExitUsageError, err)
	}
	if o.noRedact {
		cfg.Privacy.RedactSecrets = false
		cfg.Privacy.RedactPaths = nil
		fmt.Fprintln(stderr, "WARNING: redaction is disabled")
	}
	return cfg, nil
}

func selectionFrom(o *reviewOptions, cfg config.Config) registry.Selection {
	sel := registry.Selection{Names: cfg.Reviews, ShortOnly: cfg.ShortOnly}
	if o.llm {
		sel.Groups = append(sel.Groups, registry.GroupLLM)
	}
	if o.static {
		sel.Groups = append(sel.Groups, registry.GroupStatic)
	}
	if o.long {
		sel.Groups = append(sel.Groups, registry.GroupLong)
	}
	return sel
}

func commitsFrom(o *reviewOptions, args []string) []string {
	var out []string
	for _, c := range append(append([]string{}, o.commits...), args...) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// pipeline is everything one review run needs, built from the config.
type pipeline struct {
	repo     *gitctx.Repo
	trees    *gitctx.Worktrees
	registry *registry.Registry
	builder  *reviewctx.Builder
	lsp      *reviewctx.LSPLookup
	logger   *zap.Logger
}

func newPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pipeline, error) {
	repo, err := gitctx.Open(ctx, cfg.RepoPath, gitctx.WithLogger(logger.Named("git")))
	if err != nil {
		return nil, exitWith(ExitUsageError, err)
	}
	trees := gitctx.NewWorktrees(repo)

	reg, err := newRegistry(cfg, repo, trees, logger)
	if err != nil {
		return nil, exitWith(ExitRuntimeError, err)
	}

	p := &pipeline{repo: repo, trees: trees, registry: reg, logger: logger}

	var lookup reviewctx.SymbolLookup = reviewctx.NewScopeLookup()
	if cfg.Context.LSP {
		p.lsp = reviewctx.NewLSPLookup(trees,
			reviewctx.WithClangd(cfg.Context.Clangd, reviewctx.DefaultClangdArgs...),
			reviewctx.WithLSPLogger(logger.Named("lsp")))
		lookup = reviewctx.ChainLookup{p.lsp, lookup}
	}
	p.builder = reviewctx.NewBuilder(repo,
		reviewctx.WithSurround(cfg.Context.SurroundLines),
		reviewctx.WithHistoryDepth(cfg.Context.HistoryDepth),
		reviewctx.WithSymbolLookup(lookup),
		reviewctx.WithLogger(logger.Named("context")))
	return p, nil
}

// Close stops language servers and removes worktrees. It uses its own
// context so that cleanup still runs after an interrupt.
func (p *pipeline) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if p.lsp != nil {
		if err := p.lsp.Close(); err != nil {
			p.logger.Debug("stopping language servers", zap.Error(err))
		}
	}
	if err := p.trees.Close(ctx); err != nil {
		p.logger.Warn("removing worktrees", zap.Error(err))
	}
}

// newRegistry registers the built-in reviewers. repo and trees may be nil
// when the registry only serves list or install.
func newRegistry(cfg config.Config, repo *gitctx.Repo, trees *gitctx.Worktrees, logger *zap.Logger) (*registry.Registry, error) {
	runner := toolrun.NewExecRunner(logger.Named("toolrun"))
	reg := registry.New(runner, registry.WithLogger(logger.Named("registry")))

	baselines, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	model := providers.ModelConfig{
		Model:       cfg.Model,
		ProviderURL: cfg.ProviderURL,
		APIKey:      cfg.APIKey,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
	jobs := cfg.Build.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	env := reviewers.Env{
		Runner:      runner,
		Build:       reviewers.BuildOptions{Arch: cfg.Build.Arch, LLVM: cfg.Build.LLVM, Jobs: jobs, PatchDir: cfg.Build.PatchDir},
		Baselines:   baselines,
		Provider:    providers.Lazy(model),
		Credentials: credentials(model),
		Retry: providers.RetryPolicy{
			MaxRetries: cfg.Retries,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
		},
		ChunkBytes: defaultChunkBytes,
		Redact:     redact.Options{Secrets: cfg.Privacy.RedactSecrets, Paths: cfg.Privacy.RedactPaths},
		Logger:     logger.Named("reviewers"),
	}
	if repo != nil {
		env.Blame = repo
		env.Trees = trees
		env.Build.Dir = filepath.Join(baselineRoot(baselines), "build")
	}
	if err := reviewers.Register(reg, env); err != nil {
		return nil, err
	}
	return reg, nil
}

// credentials names the key a hosted backend is missing. Local servers and
// configured keys need nothing.
func credentials(model providers.ModelConfig) []toolrun.Requirement {
	if !providers.Hosted(model) || providers.HasKey(model) {
		return nil
	}
	return []toolrun.Requirement{toolrun.EnvDependency{Name: providers.KeyEnv(model.Model)[0]}}
}

// baselineRoot keeps kernel build output next to the cache so that repeated
// runs reuse object files.
func baselineRoot(c *cache.Cache) string {
	if dir := c.Dir(); dir != "" {
		return filepath.Dir(dir)
	}
	return filepath.Join(os.TempDir(), "patchwise")
}

func newLogger(cfg config.Config, stderr io.Writer) (*zap.Logger, func(), error) {
	logger, cleanup, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: stderr})
	if err != nil {
		return nil, nil, exitWith(ExitUsageError, err)
	}
	return logger, cleanup, nil
}

func runReview(ctx context.Context, o *reviewOptions, args []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(o, stderr)
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	rules, err := review.LoadRules(cfg.RulesFile)
	if err != nil {
		return exitWith(ExitUsageError, fmt.Errorf("loading rules: %w", err))
	}

	p, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	sel := selectionFrom(o, cfg)
	if o.install {
		if err := installSelected(ctx, p.registry, sel, stderr); err != nil {
			return err
		}
	}

	orch := orchestrator.New(p.repo, p.builder, p.registry, orchestrator.WithLogger(logger.Named("orchestrator")))
	result, runErr := orch.Run(ctx, commitsFrom(o, args), sel, orchestrator.Options{
		Timeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxConcurrency: cfg.MaxConcurrency,
		Rules:          rules,
		Version:        version,
	})

	var cfgErr *review.ConfigurationError
	if errors.As(runErr, &cfgErr) {
		return exitWith(ExitUsageError, runErr)
	}

	if result != nil {
		if err := writeResult(result, cfg.Format, o.out, stdout); err != nil {
			return exitWith(ExitRuntimeError, fmt.Errorf("writing output: %w", err))
		}
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return exitWith(ExitRuntimeError, errors.New("interrupted"))
		}
		return exitWith(ExitRuntimeError, runErr)
	}

	if code := exitCodeFor(result, cfg.FailOn); code != ExitSuccess {
		if code == ExitAuthError {
			fmt.Fprintln(stderr, "Error: every AI reviewer failed to authenticate; check --api-key or OPENAI_API_KEY")
		}
		return exitWith(code, nil)
	}
	return nil
}

func writeResult(result *review.RunResult, format, out string, stdout io.Writer) error {
	if out != "" && out != "-" {
		return output.WriteResult(result, format, out)
	}
	w, err := output.GetWriter(format)
	if err != nil {
		return err
	}
	return w.Write(stdout, result)
}

// exitCodeFor maps a finished run onto an exit code. Reviewer errors alone
// never fail a run, except when every AI reviewer failed authentication.
func exitCodeFor(result *review.RunResult, failOn string) int {
	aiRan, aiAuth := 0, 0
	for _, rep := range result.Reports {
		for _, e := range rep.Entries {
			if e.Kind != review.KindAI {
				continue
			}
			aiRan++
			if e.Error != nil && e.Error.Kind == review.ErrAuth {
				aiAuth++
			}
		}
	}
	if aiRan > 0 && aiAuth == aiRan {
		return ExitAuthError
	}

	for _, rep := range result.Reports {
		for _, f := range rep.Findings() {
			if review.MeetsThreshold(f.Severity, failOn) {
				return ExitFindings
			}
		}
	}
	return ExitSuccess
}
