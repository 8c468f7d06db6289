package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/patchwise/internal/patch"
	"github.com/dshills/patchwise/internal/providers"
	"github.com/dshills/patchwise/internal/reviewctx"
	"github.com/dshills/patchwise/internal/toolrun"
)

// Reviewer is a pluggable analysis unit. The set of implementations is
// closed: ToolReviewer and AIReviewer.
type Reviewer interface {
	Name() string
	Kind() Kind
	// Short reports whether the reviewer belongs to the fast subset.
	Short() bool
	Description() string
	Dependencies() []toolrun.Requirement
	Review(ctx context.Context, inv Invocation) ([]Finding, error)

	sealed()
}

// Options carries per-run settings into every invocation.
type Options struct {
	Timeout time.Duration
	Rules   *Rules
}

// Invocation is one reviewer applied to one patch.
type Invocation struct {
	Patch   *patch.Patch
	Context *reviewctx.Context
	Options Options
	Logger  *zap.Logger
}

func (inv Invocation) logger() *zap.Logger {
	if inv.Logger != nil {
		return inv.Logger
	}
	return zap.NewNop()
}

// Info describes a reviewer.
type Info struct {
	Name        string
	Description string
	Short       bool
	Requires    []toolrun.Requirement
}

// ToolCheck runs an external analysis and reports its findings.
type ToolCheck interface {
	Run(ctx context.Context, inv Invocation) ([]Finding, error)
}

// ToolFunc adapts a function to ToolCheck.
type ToolFunc func(ctx context.Context, inv Invocation) ([]Finding, error)

func (f ToolFunc) Run(ctx context.Context, inv Invocation) ([]Finding, error) { return f(ctx, inv) }

// ToolReviewer is the tool-backed reviewer variant.
type ToolReviewer struct {
	Info  Info
	Check ToolCheck
}

// NewToolReviewer returns a tool-backed reviewer.
func NewToolReviewer(info Info, check ToolCheck) *ToolReviewer {
	return &ToolReviewer{Info: info, Check: check}
}

func (t *ToolReviewer) Name() string                        { return t.Info.Name }
func (t *ToolReviewer) Kind() Kind                          { return KindTool }
func (t *ToolReviewer) Short() bool                         { return t.Info.Short }
func (t *ToolReviewer) Description() string                 { return t.Info.Description }
func (t *ToolReviewer) Dependencies() []toolrun.Requirement { return t.Info.Requires }
func (*ToolReviewer) sealed()                               {}

// Review runs the check. Failures come back classified.
func (t *ToolReviewer) Review(ctx context.Context, inv Invocation) ([]Finding, error) {
	if t.Check == nil {
		return nil, &ReviewerError{Reviewer: t.Name(), Kind: ErrInternal, Message: "no check configured"}
	}
	findings, err := t.Check.Run(ctx, inv)
	if err != nil {
		return nil, Classify(t.Name(), err)
	}
	return stamp(t.Name(), findings, SeverityWarning), nil
}

// PromptFunc builds the completion request for an invocation. It may read
// from the source tree, so it shares the invocation's deadline.
type PromptFunc func(ctx context.Context, inv Invocation) (providers.Request, error)

// ParseFunc turns a model reply into findings. Returning ErrNoFindings, or
// no findings at all, makes the reply itself a single free-text finding.
type ParseFunc func(text string, inv Invocation) ([]Finding, error)

// AIReviewer is the AI-backed reviewer variant.
type AIReviewer struct {
	Info     Info
	Prompt   PromptFunc
	Parse    ParseFunc
	Provider providers.Provider
	Retry    providers.RetryPolicy
	// ChunkBytes splits diffs larger than this into per-file chunks reviewed
	// concurrently. Zero disables chunking.
	ChunkBytes int
}

func (a *AIReviewer) Name() string                        { return a.Info.Name }
func (a *AIReviewer) Kind() Kind                          { return KindAI }
func (a *AIReviewer) Short() bool                         { return a.Info.Short }
func (a *AIReviewer) Description() string                 { return a.Info.Description }
func (a *AIReviewer) Dependencies() []toolrun.Requirement { return a.Info.Requires }
func (*AIReviewer) sealed()                               {}

// maxChunkConcurrency limits parallel LLM calls within one invocation.
const maxChunkConcurrency = 4

// Review prompts the provider and parses its reply.
func (a *AIReviewer) Review(ctx context.Context, inv Invocation) ([]Finding, error) {
	if a.Provider == nil {
		return nil, &ReviewerError{Reviewer: a.Name(), Kind: ErrMissingDependency, Message: "no model configured"}
	}
	if a.ChunkBytes <= 0 || inv.Patch == nil || len(inv.Patch.Diff()) <= a.ChunkBytes {
		return a.review(ctx, inv)
	}

	chunks, err := SplitPatch(inv.Patch, a.ChunkBytes)
	if err != nil || len(chunks) < 2 {
		return a.review(ctx, inv)
	}
	inv.logger().Debug("reviewing in chunks", zap.Int("chunks", len(chunks)), zap.Int("bytes", len(inv.Patch.Diff())))

	results := make([][]Finding, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxChunkConcurrency)
	for i, chunk := range chunks {
		sub := inv
		sub.Patch = chunk
		g.Go(func() error {
			findings, err := a.review(gctx, sub)
			if err != nil {
				return err
			}
			results[i] = findings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []Finding
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func (a *AIReviewer) review(ctx context.Context, inv Invocation) ([]Finding, error) {
	req, err := a.Prompt(ctx, inv)
	if err != nil {
		return nil, Classify(a.Name(), fmt.Errorf("building prompt: %w", err))
	}
	if section := BuildRulesPromptSection(inv.Options.Rules); section != "" {
		req.System += "\n" + section
	}

	var resp providers.Response
	err = providers.Retry(ctx, a.Retry, func(ctx context.Context) error {
		r, err := a.Provider.Complete(ctx, req)
		if err != nil {
			inv.logger().Debug("completion failed", zap.String("provider", a.Provider.Name()), zap.Error(err))
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, Classify(a.Name(), err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, &ReviewerError{Reviewer: a.Name(), Kind: ErrMalformedOutput, Message: "empty response", Err: providers.ErrMalformedResponse}
	}
	inv.logger().Debug("completion received", zap.Int("tokens", resp.TokensUsed), zap.Int("bytes", len(text)))

	var findings []Finding
	if a.Parse != nil {
		findings, err = a.Parse(text, inv)
		if err != nil && !errors.Is(err, ErrNoFindings) {
			return nil, NewReviewerError(a.Name(), ErrMalformedOutput, err)
		}
	}
	if len(findings) == 0 {
		findings = []Finding{{Severity: SeverityInfo, Message: text}}
	}
	return stamp(a.Name(), findings, SeverityInfo), nil
}

// stamp sets the reviewer name and a default severity on every finding.
func stamp(name string, findings []Finding, def Severity) []Finding {
	out := make([]Finding, len(findings))
	for i, f := range findings {
		f = f.clone()
		f.Reviewer = name
		if SeverityRank(f.Severity) == 0 {
			f.Severity = def
		}
		out[i] = f
	}
	return out
}
