package gitctx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// RangeError reports a commit range that git could not expand.
type RangeError struct {
	Range string
	Err   error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid commit range %q: %v", e.Range, e.Err)
}

func (e *RangeError) Unwrap() error { return e.Err }

// CommitResolutionError reports a single ref that does not name a commit.
type CommitResolutionError struct {
	Ref string
	Err error
}

func (e *CommitResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve commit %q: %v", e.Ref, e.Err)
}

func (e *CommitResolutionError) Unwrap() error { return e.Err }

// Repo is a git repository on disk.
type Repo struct {
	root   string
	logger *zap.Logger
}

// Option configures a Repo.
type Option func(*Repo)

// WithLogger sets the logger used for git invocations.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repo) {
		if l != nil {
			r.logger = l
		}
	}
}

// Open locates the top level of the repository containing dir.
func Open(ctx context.Context, dir string, opts ...Option) (*Repo, error) {
	r := &Repo{root: dir, logger: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	root, err := r.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	r.root = strings.TrimSpace(root)
	return r, nil
}

// Root returns the repository's top-level directory.
func (r *Repo) Root() string { return r.root }

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	return gitOutput(ctx, r.root, args...)
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("git %s: %s", subcommand(args), strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return string(out), nil
}

// subcommand skips leading -c options.
func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}
