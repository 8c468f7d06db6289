package gitctx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/patch"
)

// DefaultRef is reviewed when no commits are given.
const DefaultRef = "HEAD"

// Commit is a summary line from history.
type Commit struct {
	SHA     string    `json:"sha"`
	Subject string    `json:"subject"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
}

// Expand resolves the commit arguments into refs to load. Exactly one
// argument containing ".." is a range and is listed oldest first; anything
// else is returned as given. No arguments means HEAD.
func (r *Repo) Expand(ctx context.Context, refs []string) ([]string, error) {
	if len(refs) == 0 {
		return []string{DefaultRef}, nil
	}
	if len(refs) == 1 && strings.Contains(refs[0], "..") {
		out, err := r.git(ctx, "rev-list", "--reverse", refs[0], "--")
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, &RangeError{Range: refs[0], Err: err}
		}
		shas := strings.Fields(out)
		r.logger.Debug("expanded range", zap.String("range", refs[0]), zap.Int("commits", len(shas)))
		return shas, nil
	}
	return append([]string(nil), refs...), nil
}

const metaFormat = "%H%x00%P%x00%an%x00%ae%x00%aI%x00%B"

// Load reads the commit's metadata and diff and builds its Patch.
func (r *Repo) Load(ctx context.Context, ref string) (*patch.Patch, error) {
	sha, err := r.git(ctx, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &CommitResolutionError{Ref: ref, Err: err}
	}
	sha = strings.TrimSpace(sha)

	out, err := r.git(ctx, "log", "-1", "--format="+metaFormat, sha, "--")
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", sha, err)
	}
	meta, err := parseMeta(out)
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", sha, err)
	}

	diff, err := r.git(ctx, "diff-tree", "-p", "-M", "--root", "--no-commit-id", "--no-color", sha, "--")
	if err != nil {
		return nil, fmt.Errorf("reading diff of %s: %w", sha, err)
	}
	p, err := patch.New(meta, diff)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", sha, err)
	}
	r.logger.Debug("loaded commit", zap.String("ref", sha), zap.Int("files", len(p.Files())))
	return p, nil
}

func parseMeta(out string) (patch.Meta, error) {
	fields := strings.SplitN(out, "\x00", 6)
	if len(fields) != 6 {
		return patch.Meta{}, fmt.Errorf("unexpected log output (%d fields)", len(fields))
	}
	date, err := time.Parse(time.RFC3339, strings.TrimSpace(fields[4]))
	if err != nil {
		return patch.Meta{}, fmt.Errorf("parsing author date: %w", err)
	}
	var parent string
	if parents := strings.Fields(fields[1]); len(parents) > 0 {
		parent = parents[0]
	}
	return patch.Meta{
		Ref:     strings.TrimSpace(fields[0]),
		Parent:  parent,
		Message: strings.TrimRight(fields[5], "\n"),
		Author: patch.Author{
			Name:  fields[2],
			Email: fields[3],
			Date:  date,
		},
	}, nil
}

// History returns up to n commits that touched path, newest first, starting
// at rev.
func (r *Repo) History(ctx context.Context, rev, path string, n int) ([]Commit, error) {
	if n <= 0 || rev == "" {
		return nil, nil
	}
	out, err := r.git(ctx, "log", fmt.Sprintf("-%d", n), "--format=%H%x00%s%x00%an%x00%aI", rev, "--", path)
	if err != nil {
		return nil, fmt.Errorf("git log %s: %w", path, err)
	}
	var commits []Commit
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, "\x00")
		if len(parts) != 4 {
			continue
		}
		date, _ := time.Parse(time.RFC3339, parts[3])
		commits = append(commits, Commit{SHA: parts[0], Subject: parts[1], Author: parts[2], Date: date})
	}
	return commits, nil
}
