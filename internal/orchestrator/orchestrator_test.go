package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/patchwise/internal/gitctx"
	"github.com/dshills/patchwise/internal/patch"
	"github.com/dshills/patchwise/internal/providers"
	"github.com/dshills/patchwise/internal/registry"
	"github.com/dshills/patchwise/internal/review"
	"github.com/dshills/patchwise/internal/reviewctx"
	"github.com/dshills/patchwise/internal/toolrun"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const diffA = `diff --git a/a.c b/a.c
index 1111111..2222222 100644
--- a/a.c
+++ b/a.c
@@ -41,1 +41,2 @@
 int a;
+int  b;
`

type fakeSource struct {
	patches map[string]*patch.Patch
	order   []string
	expand  error
}

func newFakeSource(t *testing.T, refs ...string) *fakeSource {
	t.Helper()
	s := &fakeSource{patches: make(map[string]*patch.Patch), order: refs}
	for _, ref := range refs {
		p, err := patch.New(patch.Meta{Ref: ref, Parent: ref + "^", Message: "subject " + ref}, diffA)
		require.NoError(t, err)
		s.patches[ref] = p
	}
	return s
}

func (s *fakeSource) Expand(_ context.Context, refs []string) ([]string, error) {
	if s.expand != nil {
		return nil, s.expand
	}
	if len(refs) == 0 {
		return s.order, nil
	}
	return refs, nil
}

func (s *fakeSource) Load(_ context.Context, ref string) (*patch.Patch, error) {
	p, ok := s.patches[ref]
	if !ok {
		return nil, &gitctx.CommitResolutionError{Ref: ref, Err: errors.New("unknown revision")}
	}
	return p, nil
}

type fakeBuilder struct{ builds atomic.Int32 }

func (b *fakeBuilder) Build(_ context.Context, p *patch.Patch) *reviewctx.Context {
	b.builds.Add(1)
	return reviewctx.Empty(p.Ref())
}

func toolReviewer(name string, fn review.ToolFunc, reqs ...toolrun.Requirement) review.Reviewer {
	return review.NewToolReviewer(review.Info{Name: name, Requires: reqs}, fn)
}

func setup(t *testing.T, reviewers ...review.Reviewer) (*registry.Registry, *fakeSource, *fakeBuilder) {
	t.Helper()
	reg := registry.New(nil)
	for _, r := range reviewers {
		require.NoError(t, reg.Register(r))
	}
	return reg, newFakeSource(t, "c1", "c2"), &fakeBuilder{}
}

func TestRun_CheckpatchScenario(t *testing.T) {
	checkpatch := toolReviewer("checkpatch", func(context.Context, review.Invocation) ([]review.Finding, error) {
		return []review.Finding{{Severity: review.SeverityWarning, Anchor: &review.Anchor{Path: "a.c", Line: 42}, Rule: "SPACING", Message: "please, no spaces"}}, nil
	})
	reg, src, builder := setup(t, checkpatch)

	var states []State
	o := New(src, builder, reg, OnTransition(func(_, to State) { states = append(states, to) }))
	res, err := o.Run(context.Background(), []string{"c1"}, registry.Selection{Names: []string{"checkpatch"}}, Options{})
	require.NoError(t, err)

	require.Len(t, res.Reports, 1)
	entries := res.Reports[0].Entries
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Findings, 1)
	f := entries[0].Findings[0]
	assert.Equal(t, review.SeverityWarning, f.Severity)
	assert.Equal(t, "a.c:42", f.Location())
	assert.Equal(t, "checkpatch", f.Reviewer)

	assert.Equal(t, []State{Resolving, BuildingContext, Reviewing, Aggregating, Done}, states)
	assert.Equal(t, Done, o.State())
	assert.Equal(t, int32(1), builder.builds.Load(), "context built once per patch")
}

type rateLimited struct{}

func (rateLimited) Name() string { return "fake" }
func (rateLimited) Complete(context.Context, providers.Request) (providers.Response, error) {
	return providers.Response{}, &providers.RateLimitError{Provider: "fake"}
}

func TestRun_RateLimitedAIReviewer(t *testing.T) {
	aiReview := &review.AIReviewer{
		Info: review.Info{Name: "ai_review"},
		Prompt: func(context.Context, review.Invocation) (providers.Request, error) {
			return providers.Request{Prompt: "x"}, nil
		},
		Provider: rateLimited{},
		Retry:    providers.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond},
	}
	reg, src, builder := setup(t, aiReview)
	res, err := New(src, builder, reg).Run(context.Background(), []string{"c1"}, registry.Selection{Names: []string{"ai_review"}}, Options{})
	require.NoError(t, err)

	e := res.Reports[0].Entries[0]
	require.NotNil(t, e.Error)
	assert.Equal(t, review.ErrRateLimit, e.Error.Kind)
	assert.Empty(t, e.Findings)
}

func TestRun_TimeoutIsolated(t *testing.T) {
	slow := toolReviewer("slow", func(ctx context.Context, _ review.Invocation) ([]review.Finding, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("killed: %w", ctx.Err())
	})
	fast := toolReviewer("fast", func(context.Context, review.Invocation) ([]review.Finding, error) {
		return []review.Finding{{Message: "ok"}}, nil
	})
	reg, src, builder := setup(t, slow, fast)

	start := time.Now()
	res, err := New(src, builder, reg).Run(context.Background(), []string{"c1"}, registry.Selection{}, Options{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	entries := res.Reports[0].Entries
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].Error)
	assert.Equal(t, review.ErrTimeout, entries[0].Error.Kind)
	assert.Nil(t, entries[1].Error)
	assert.Len(t, entries[1].Findings, 1)
}

func TestRun_TimeoutWithUncooperativeReviewer(t *testing.T) {
	release := make(chan struct{})
	stuck := toolReviewer("stuck", func(context.Context, review.Invocation) ([]review.Finding, error) {
		<-release
		return nil, nil
	})
	reg, src, builder := setup(t, stuck)

	start := time.Now()
	res, err := New(src, builder, reg).Run(context.Background(), []string{"c1"}, registry.Selection{}, Options{Timeout: 50 * time.Millisecond})
	close(release)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, review.ErrTimeout, res.Reports[0].Entries[0].Error.Kind)
	time.Sleep(10 * time.Millisecond)
}

func TestRun_PanicRecovered(t *testing.T) {
	bad := toolReviewer("bad", func(context.Context, review.Invocation) ([]review.Finding, error) {
		panic("nil map write")
	})
	good := toolReviewer("good", func(context.Context, review.Invocation) ([]review.Finding, error) { return nil, nil })
	reg, src, builder := setup(t, bad, good)

	res, err := New(src, builder, reg).Run(context.Background(), []string{"c1"}, registry.Selection{}, Options{})
	require.NoError(t, err)
	entries := res.Reports[0].Entries
	require.NotNil(t, entries[0].Error)
	assert.Equal(t, review.ErrInternal, entries[0].Error.Kind)
	assert.Contains(t, entries[0].Error.Message, "nil map write")
	assert.Nil(t, entries[1].Error)
}

func TestRun_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	var reviewers []review.Reviewer
	for i := range 6 {
		reviewers = append(reviewers, toolReviewer(fmt.Sprintf("r%d", i), func(context.Context, review.Invocation) ([]review.Finding, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		}))
	}
	reg, src, builder := setup(t, reviewers...)
	res, err := New(src, builder, reg).Run(context.Background(), []string{"c1"}, registry.Selection{}, Options{MaxConcurrency: 2})
	require.NoError(t, err)
	assert.Len(t, res.Reports[0].Entries, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for i, e := range res.Reports[0].Entries {
		assert.Equal(t, fmt.Sprintf("r%d", i), e.Reviewer, "entries follow selection order")
	}
}

func TestRun_UnknownReviewerFails(t *testing.T) {
	reg, src, builder := setup(t, toolReviewer("checkpatch", nil))
	var states []State
	o := New(src, builder, reg, OnTransition(func(_, to State) { states = append(states, to) }))

	_, err := o.Run(context.Background(), nil, registry.Selection{Names: []string{"nope"}}, Options{})
	var ce *review.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []State{Resolving, Failed}, states)
	assert.Equal(t, int32(0), builder.builds.Load())
}

func TestRun_InvalidRange(t *testing.T) {
	reg, src, builder := setup(t, toolReviewer("checkpatch", nil))
	src.expand = &gitctx.RangeError{Range: "x..y", Err: errors.New("bad revision")}
	_, err := New(src, builder, reg).Run(context.Background(), []string{"x..y"}, registry.Selection{}, Options{})

	var ce *review.ConfigurationError
	require.ErrorAs(t, err, &ce)
	var re *gitctx.RangeError
	assert.ErrorAs(t, err, &re)
}

func TestRun_SkipsUnresolvableCommits(t *testing.T) {
	ok := toolReviewer("ok", func(context.Context, review.Invocation) ([]review.Finding, error) { return nil, nil })
	reg, src, builder := setup(t, ok)

	res, err := New(src, builder, reg).Run(context.Background(), []string{"c1", "ghost", "c2"}, registry.Selection{}, Options{})
	require.NoError(t, err)
	assert.Len(t, res.Reports, 2)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "ghost", res.Skipped[0].Ref)

	_, err = New(src, builder, reg).Run(context.Background(), []string{"ghost"}, registry.Selection{}, Options{})
	var ce *review.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestRun_MissingDependency(t *testing.T) {
	called := false
	sparse := toolReviewer("sparse", func(context.Context, review.Invocation) ([]review.Finding, error) {
		called = true
		return nil, nil
	}, toolrun.Dependency{Name: "patchwise-test-no-such-tool"})
	reg, src, builder := setup(t, sparse)

	res, err := New(src, builder, reg).Run(context.Background(), []string{"c1"}, registry.Selection{}, Options{})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, review.ErrMissingDependency, res.Reports[0].Entries[0].Error.Kind)
}

func TestRun_MissingCredentialIsAuthFailure(t *testing.T) {
	ai := toolReviewer("ai_review", func(context.Context, review.Invocation) ([]review.Finding, error) {
		return nil, nil
	}, toolrun.EnvDependency{Name: "PATCHWISE_TEST_NEVER_SET"})
	t.Setenv("PATCHWISE_TEST_NEVER_SET", "")
	reg, src, builder := setup(t, ai)

	res, err := New(src, builder, reg).Run(context.Background(), []string{"c1"}, registry.Selection{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, review.ErrAuth, res.Reports[0].Entries[0].Error.Kind)
}

func TestRun_SeverityOverrides(t *testing.T) {
	r := toolReviewer("checkpatch", func(context.Context, review.Invocation) ([]review.Finding, error) {
		return []review.Finding{{Severity: review.SeverityWarning, Rule: "LONG_LINE", Message: "long"}}, nil
	})
	reg, src, builder := setup(t, r)
	rules := &review.Rules{SeverityOverrides: map[string]review.Severity{"LONG_LINE": review.SeverityError}}

	res, err := New(src, builder, reg).Run(context.Background(), []string{"c1"}, registry.Selection{}, Options{Rules: rules})
	require.NoError(t, err)
	assert.Equal(t, review.SeverityError, res.Reports[0].Entries[0].Findings[0].Severity)
	assert.Equal(t, 1, res.Reports[0].Summary.Counts.Error)
}

func TestRun_CancellationKeepsCompletedReports(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	r := toolReviewer("r", func(rctx context.Context, inv review.Invocation) ([]review.Finding, error) {
		if inv.Patch.Ref() == "c2" {
			once.Do(cancel)
			<-rctx.Done()
			return nil, rctx.Err()
		}
		return nil, nil
	})
	reg, src, builder := setup(t, r)

	var states []State
	o := New(src, builder, reg, OnTransition(func(_, to State) { states = append(states, to) }))
	res, err := o.Run(ctx, []string{"c1", "c2"}, registry.Selection{}, Options{})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	require.Len(t, res.Reports, 1)
	assert.Equal(t, "c1", res.Reports[0].Patch.Ref)
	assert.Equal(t, Done, states[len(states)-1])
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, canTransition(Resolving, Failed))
	assert.False(t, canTransition(Reviewing, Failed), "failed is reachable only from resolving")
	assert.True(t, canTransition(Aggregating, BuildingContext))
	assert.Equal(t, "building-context", BuildingContext.String())
}
