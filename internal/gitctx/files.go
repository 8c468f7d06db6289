package gitctx

import (
	"context"
	"fmt"
	"strings"
)

// ShowFile returns path as of rev.
func (r *Repo) ShowFile(ctx context.Context, rev, path string) (string, error) {
	out, err := r.git(ctx, "show", rev+":"+path)
	if err != nil {
		return "", fmt.Errorf("git show %s:%s: %w", rev, path, err)
	}
	return out, nil
}

// ChangedFiles lists the paths that differ between base and rev.
func (r *Repo) ChangedFiles(ctx context.Context, base, rev string) ([]string, error) {
	out, err := r.git(ctx, "diff", "--name-only", base+".."+rev, "--")
	if err != nil {
		return nil, fmt.Errorf("git diff --name-only: %w", err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// BlameIntroduced reports whether line of path at rev was last changed by a
// commit in base..rev. Lines attributed to base or earlier are boundary lines
// and report false.
func (r *Repo) BlameIntroduced(ctx context.Context, base, rev, path string, line int) (bool, error) {
	out, err := r.git(ctx, "blame", fmt.Sprintf("-L%d,+1", line), "-l", base+".."+rev, "--", path)
	if err != nil {
		return false, fmt.Errorf("git blame %s:%d: %w", path, line, err)
	}
	out = strings.TrimSpace(out)
	return out != "" && !strings.HasPrefix(out, "^"), nil
}
