package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/patchwise/internal/gitctx"
	"github.com/dshills/patchwise/internal/patch"
	"github.com/dshills/patchwise/internal/registry"
	"github.com/dshills/patchwise/internal/review"
	"github.com/dshills/patchwise/internal/reviewctx"
)

const (
	DefaultTimeout        = 10 * time.Minute
	DefaultMaxConcurrency = 4
)

// CommitSource expands user refs and loads commits.
type CommitSource interface {
	Expand(ctx context.Context, refs []string) ([]string, error)
	Load(ctx context.Context, ref string) (*patch.Patch, error)
}

// ContextBuilder builds the review context of a patch.
type ContextBuilder interface {
	Build(ctx context.Context, p *patch.Patch) *reviewctx.Context
}

// Resolver selects reviewers and checks their dependencies.
type Resolver interface {
	Resolve(sel registry.Selection) ([]review.Reviewer, error)
	CheckDependencies(ctx context.Context, r review.Reviewer) error
}

// Options tune a run.
type Options struct {
	// Timeout bounds each reviewer invocation.
	Timeout        time.Duration
	MaxConcurrency int
	Rules          *review.Rules
	Version        string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	return o
}

// Orchestrator runs reviews. One orchestrator runs one review at a time.
type Orchestrator struct {
	src          CommitSource
	builder      ContextBuilder
	resolver     Resolver
	logger       *zap.Logger
	onTransition func(from, to State)

	mu    sync.Mutex
	state State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// OnTransition registers a hook called on every state change, on the
// goroutine running Run.
func OnTransition(fn func(from, to State)) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// New returns an idle orchestrator.
func New(src CommitSource, builder ContextBuilder, resolver Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		src:      src,
		builder:  builder,
		resolver: resolver,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	from := o.state
	o.state = to
	o.mu.Unlock()

	if !canTransition(from, to) {
		o.logger.DPanic("illegal state transition", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	o.logger.Debug("state transition", zap.Stringer("from", from), zap.Stringer("to", to))
	if o.onTransition != nil {
		o.onTransition(from, to)
	}
}

// Run reviews commits with the selected reviewers. Configuration problems
// return a *review.ConfigurationError; reviewer failures are recorded in the
// reports. On cancellation the completed reports are returned with the
// context error.
func (o *Orchestrator) Run(ctx context.Context, commits []string, sel registry.Selection, opts Options) (*review.RunResult, error) {
	opts = opts.withDefaults()
	result := review.NewRunResult(opts.Version)
	log := o.logger.With(zap.String("run", result.RunID))

	o.transition(Resolving)
	reviewers, patches, err := o.resolve(ctx, commits, sel, result, log)
	if err != nil {
		o.transition(Failed)
		return result, err
	}
	log.Info("review started", zap.Int("patches", len(patches)), zap.Int("reviewers", len(reviewers)))

	for _, p := range patches {
		start := time.Now()
		plog := log.With(zap.String("ref", p.ShortRef()))

		o.transition(BuildingContext)
		rctx := o.builder.Build(ctx, p)
		if ctx.Err() != nil {
			break
		}

		o.transition(Reviewing)
		outcomes := o.review(ctx, p, rctx, reviewers, opts, plog)
		if ctx.Err() != nil {
			plog.Info("run cancelled, discarding patch in progress")
			break
		}

		o.transition(Aggregating)
		for _, oc := range outcomes {
			if oc != nil && oc.Err == nil {
				oc.Findings = review.ApplySeverityOverrides(oc.Findings, opts.Rules)
			}
		}
		rep := review.Aggregate(p, reviewers, outcomes)
		rep.DurationMs = time.Since(start).Milliseconds()
		result.Reports = append(result.Reports, rep)
		plog.Info("patch reviewed",
			zap.Int("findings", len(rep.Findings())),
			zap.Int("reviewer_errors", rep.Summary.Errors),
			zap.Duration("elapsed", time.Since(start)))
	}

	o.transition(Done)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (o *Orchestrator) resolve(ctx context.Context, commits []string, sel registry.Selection, result *review.RunResult, log *zap.Logger) ([]review.Reviewer, []*patch.Patch, error) {
	reviewers, err := o.resolver.Resolve(sel)
	if err != nil {
		return nil, nil, err
	}

	refs, err := o.src.Expand(ctx, commits)
	if err != nil {
		var re *gitctx.RangeError
		if errors.As(err, &re) {
			return nil, nil, &review.ConfigurationError{Reason: fmt.Sprintf("invalid commit range %q", re.Range), Err: err}
		}
		return nil, nil, err
	}

	var patches []*patch.Patch
	for _, ref := range refs {
		p, err := o.src.Load(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			log.Warn("skipping commit", zap.String("ref", ref), zap.Error(err))
			result.Skipped = append(result.Skipped, review.SkippedCommit{Ref: ref, Error: err.Error()})
			continue
		}
		patches = append(patches, p)
	}
	if len(patches) == 0 {
		return nil, nil, &review.ConfigurationError{Reason: "no commits to review"}
	}
	return reviewers, patches, nil
}

// review runs every reviewer against p. Outcomes are indexed like reviewers.
func (o *Orchestrator) review(ctx context.Context, p *patch.Patch, rctx *reviewctx.Context, reviewers []review.Reviewer, opts Options, log *zap.Logger) []*review.Outcome {
	outcomes := make([]*review.Outcome, len(reviewers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrency)

	for i, rv := range reviewers {
		if gctx.Err() != nil {
			break
		}
		inv := review.Invocation{
			Patch:   p,
			Context: rctx,
			Options: review.Options{Timeout: opts.Timeout, Rules: opts.Rules},
			Logger:  log.Named("reviewer." + rv.Name()),
		}
		g.Go(func() error {
			outcomes[i] = o.invoke(gctx, rv, inv)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

type reviewResult struct {
	findings []review.Finding
	err      error
}

// invoke runs one reviewer under its timeout. It returns once the deadline
// passes even if the reviewer ignores its context.
func (o *Orchestrator) invoke(ctx context.Context, rv review.Reviewer, inv review.Invocation) *review.Outcome {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, inv.Options.Timeout)
	defer cancel()
	log := inv.Logger

	fail := func(err error) *review.Outcome {
		re := review.Classify(rv.Name(), err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && re.Kind != review.ErrTimeout {
			re = &review.ReviewerError{Reviewer: rv.Name(), Kind: review.ErrTimeout, Message: fmt.Sprintf("exceeded %s", inv.Options.Timeout), Err: err}
		}
		log.Warn("reviewer failed", zap.String("kind", string(re.Kind)), zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return &review.Outcome{Err: re, Duration: time.Since(start)}
	}

	if err := o.resolver.CheckDependencies(ctx, rv); err != nil {
		return fail(err)
	}

	done := make(chan reviewResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("reviewer panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				done <- reviewResult{err: &review.ReviewerError{Reviewer: rv.Name(), Kind: review.ErrInternal, Message: fmt.Sprintf("panic: %v", r)}}
			}
		}()
		findings, err := rv.Review(ctx, inv)
		done <- reviewResult{findings: findings, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return fail(res.err)
		}
		log.Debug("reviewer finished", zap.Int("findings", len(res.findings)), zap.Duration("elapsed", time.Since(start)))
		return &review.Outcome{Findings: res.findings, Duration: time.Since(start)}
	case <-ctx.Done():
		return fail(ctx.Err())
	}
}
