package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/patchwise/internal/review"
	"github.com/dshills/patchwise/internal/toolrun"
)

// Group is a named family of reviewers.
type Group string

const (
	GroupStatic Group = "static"
	GroupLLM    Group = "llm"
	GroupShort  Group = "short"
	GroupLong   Group = "long"
)

// Groups lists every derived group.
var Groups = []Group{GroupStatic, GroupLLM, GroupShort, GroupLong}

// ParseGroup parses a group name.
func ParseGroup(s string) (Group, error) {
	g := Group(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Groups, g) {
		return g, nil
	}
	return "", &review.ConfigurationError{Reason: fmt.Sprintf("unknown reviewer group %q", s)}
}

// Selection is what the user asked to run. ShortOnly wins over Groups, and
// Groups win over Names. An empty selection means every reviewer.
type Selection struct {
	Names     []string
	ShortOnly bool
	Groups    []Group
}

type entry struct {
	reviewer review.Reviewer
	groups   []Group
}

// Registry is the reviewer catalog. It is safe for concurrent use.
type Registry struct {
	runner toolrun.Runner
	logger *zap.Logger

	mu      sync.RWMutex
	entries []entry
	byName  map[string]int

	depMu sync.Mutex
	deps  map[string]error
	sf    singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns an empty registry whose dependency checks use runner.
func New(runner toolrun.Runner, opts ...Option) *Registry {
	r := &Registry{
		runner: runner,
		logger: zap.NewNop(),
		byName: make(map[string]int),
		deps:   make(map[string]error),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// normalize folds case and treats '-' and '_' alike.
func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

// Register adds a reviewer. Extra groups add to the derived ones.
func (r *Registry) Register(rv review.Reviewer, groups ...Group) error {
	key := normalize(rv.Name())
	if key == "" {
		return errors.New("registry: reviewer has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[key]; dup {
		return fmt.Errorf("registry: reviewer %q already registered", rv.Name())
	}

	derived := []Group{GroupStatic}
	if rv.Kind() == review.KindAI {
		derived[0] = GroupLLM
	}
	if rv.Short() {
		derived = append(derived, GroupShort)
	} else {
		derived = append(derived, GroupLong)
	}
	for _, g := range groups {
		if !slices.Contains(derived, g) {
			derived = append(derived, g)
		}
	}

	r.byName[key] = len(r.entries)
	r.entries = append(r.entries, entry{reviewer: rv, groups: derived})
	return nil
}

// MustRegister is Register for built-in reviewers; it panics on error.
func (r *Registry) MustRegister(rv review.Reviewer, groups ...Group) {
	if err := r.Register(rv, groups...); err != nil {
		panic(err)
	}
}

// Reviewers returns every reviewer in registration order.
func (r *Registry) Reviewers() []review.Reviewer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]review.Reviewer, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.reviewer
	}
	return out
}

// Lookup finds a reviewer by name.
func (r *Registry) Lookup(name string) (review.Reviewer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[normalize(name)]
	if !ok {
		return nil, false
	}
	return r.entries[i].reviewer, true
}

// GroupsOf returns the groups of a registered reviewer.
func (r *Registry) GroupsOf(name string) []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[normalize(name)]
	if !ok {
		return nil
	}
	return slices.Clone(r.entries[i].groups)
}

// Resolve turns a selection into an ordered, duplicate-free reviewer list.
func (r *Registry) Resolve(sel Selection) ([]review.Reviewer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []review.Reviewer
	switch {
	case sel.ShortOnly:
		out = r.filter(func(e entry) bool { return e.reviewer.Short() })
	case len(sel.Groups) > 0:
		out = r.filter(func(e entry) bool {
			for _, g := range sel.Groups {
				if slices.Contains(e.groups, g) {
					return true
				}
			}
			return false
		})
	case len(sel.Names) > 0:
		seen := make(map[int]bool, len(sel.Names))
		for _, name := range sel.Names {
			i, ok := r.byName[normalize(name)]
			if !ok {
				return nil, &review.UnknownReviewerError{Name: name}
			}
			if !seen[i] {
				seen[i] = true
				out = append(out, r.entries[i].reviewer)
			}
		}
	default:
		out = r.filter(func(entry) bool { return true })
	}

	if len(out) == 0 {
		return nil, &review.ConfigurationError{Reason: "empty selection"}
	}
	return out, nil
}

func (r *Registry) filter(keep func(entry) bool) []review.Reviewer {
	var out []review.Reviewer
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, e.reviewer)
		}
	}
	return out
}

// CheckDependencies verifies that everything rv requires is present. The
// result is cached per reviewer; concurrent callers share one check.
func (r *Registry) CheckDependencies(ctx context.Context, rv review.Reviewer) error {
	key := normalize(rv.Name())
	r.depMu.Lock()
	if err, ok := r.deps[key]; ok {
		r.depMu.Unlock()
		return err
	}
	r.depMu.Unlock()

	_, err, _ := r.sf.Do(key, func() (any, error) {
		var errs []error
		for _, req := range rv.Dependencies() {
			if err := req.Check(ctx, r.runner); err != nil {
				errs = append(errs, err)
			}
		}
		err := errors.Join(errs...)
		if ctx.Err() == nil {
			r.depMu.Lock()
			r.deps[key] = err
			r.depMu.Unlock()
		}
		if err != nil {
			r.logger.Debug("dependency check failed", zap.String("reviewer", rv.Name()), zap.Error(err))
		}
		return nil, err
	})
	return err
}

// Install installs every unmet dependency of reviewers, then forgets their
// cached check results.
func (r *Registry) Install(ctx context.Context, reviewers []review.Reviewer) error {
	var errs []error
	for _, rv := range reviewers {
		for _, req := range rv.Dependencies() {
			r.logger.Debug("ensuring dependency", zap.String("reviewer", rv.Name()), zap.String("requirement", req.Describe()))
			if err := toolrun.Install(ctx, r.runner, req, r.logger); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", rv.Name(), err))
			}
		}
		r.depMu.Lock()
		delete(r.deps, normalize(rv.Name()))
		r.depMu.Unlock()
	}
	return errors.Join(errs...)
}
