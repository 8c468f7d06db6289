package gitctx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Worktrees hands out detached checkouts, one per revision and fixup series.
// Creation is serialized; the trees are shared read-only by reviewers
// afterwards.
type Worktrees struct {
	repo *Repo

	mu    sync.Mutex
	base  string
	trees map[string]string
}

// NewWorktrees returns an empty set rooted in a fresh temp directory on first
// use.
func NewWorktrees(repo *Repo) *Worktrees {
	return &Worktrees{repo: repo, trees: make(map[string]string)}
}

// Path returns the checkout of rev, creating it if needed.
func (w *Worktrees) Path(ctx context.Context, rev string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.trees[rev]; ok {
		return p, nil
	}
	p, err := w.add(ctx, rev)
	if err != nil {
		return "", err
	}
	w.trees[rev] = p
	return p, nil
}

// PathWithPatches returns a checkout of rev with the mailbox patches applied
// on top in order, creating it if needed. key names the series; checkouts are
// cached per rev and key. A patch that does not apply is skipped with a
// warning.
func (w *Worktrees) PathWithPatches(ctx context.Context, rev, key string, patches []string) (string, error) {
	if len(patches) == 0 {
		return w.Path(ctx, rev)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	id := rev + "+" + key
	if p, ok := w.trees[id]; ok {
		return p, nil
	}
	p, err := w.add(ctx, rev)
	if err != nil {
		return "", err
	}
	w.trees[id] = p
	for _, file := range patches {
		if _, err := gitOutput(ctx, p, "-c", "user.name=patchwise", "-c", "user.email=patchwise@localhost", "am", "--quiet", file); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			w.repo.logger.Warn("fixup patch does not apply, skipping", zap.String("rev", rev), zap.String("patch", file), zap.Error(err))
			if _, err := gitOutput(ctx, p, "am", "--abort"); err != nil {
				return "", fmt.Errorf("aborting %s: %w", filepath.Base(file), err)
			}
		}
	}
	return p, nil
}

// add creates a new detached checkout of rev. w.mu must be held.
func (w *Worktrees) add(ctx context.Context, rev string) (string, error) {
	if w.base == "" {
		dir, err := os.MkdirTemp("", "patchwise-wt-")
		if err != nil {
			return "", fmt.Errorf("creating worktree dir: %w", err)
		}
		w.base = dir
	}
	p := filepath.Join(w.base, fmt.Sprintf("wt%d", len(w.trees)))
	if _, err := w.repo.git(ctx, "worktree", "add", "--detach", "--quiet", p, rev); err != nil {
		return "", fmt.Errorf("checking out %s: %w", rev, err)
	}
	w.repo.logger.Debug("created worktree", zap.String("rev", rev), zap.String("path", p))
	return p, nil
}

// Close removes every checkout. It is safe to call more than once.
func (w *Worktrees) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for rev, p := range w.trees {
		if _, err := w.repo.git(ctx, "worktree", "remove", "--force", p); err != nil {
			errs = append(errs, err)
		}
		delete(w.trees, rev)
	}
	if w.base != "" {
		if err := os.RemoveAll(w.base); err != nil {
			errs = append(errs, err)
		}
		w.base = ""
	}
	if _, err := w.repo.git(ctx, "worktree", "prune"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
