package reviewers

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/review"
	"github.com/dshills/patchwise/internal/toolrun"
)

// checkpatchIgnored are types that fire on every single-patch review
// because the rest of the series is not applied.
var checkpatchIgnored = []string{
	"UNDOCUMENTED_DT_STRING",
	"FILE_PATH_CHANGES",
	"CONFIG_DESCRIPTION",
}

// NewCheckpatch runs scripts/checkpatch.pl over the commit.
func NewCheckpatch(env Env) *review.ToolReviewer {
	c := &checkpatch{env: env}
	return review.NewToolReviewer(review.Info{
		Name:        "checkpatch",
		Description: "kernel style checks with scripts/checkpatch.pl",
		Short:       true,
		Requires: []toolrun.Requirement{
			toolrun.Dependency{Name: "perl"},
			toolrun.Dependency{Name: "git"},
		},
	}, c)
}

type checkpatch struct {
	env Env
}

func (c *checkpatch) Run(ctx context.Context, inv review.Invocation) ([]review.Finding, error) {
	p := inv.Patch
	tree, err := c.env.reviewTree(ctx, "checkpatch", p.Ref())
	if err != nil {
		return nil, err
	}
	rev := p.Ref()
	if p.Parent() != "" {
		rev = p.Parent() + "..." + p.Ref()
	}
	cmd := toolrun.Command{
		Name: filepath.Join(tree, "scripts", "checkpatch.pl"),
		Args: []string{
			"--quiet", "--subjective", "--strict", "--showfile", "--show-types",
			"--codespell", "--mailback",
			"--ignore", strings.Join(checkpatchIgnored, ","),
			"--git", rev,
		},
		Dir: tree,
	}
	res, err := c.env.Runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	findings := parseCheckpatch(res.Stdout)
	if res.ExitCode != 0 && len(findings) == 0 {
		return nil, review.NewReviewerError("checkpatch", review.ErrInternal,
			fmt.Errorf("checkpatch.pl exited %d without findings: %s", res.ExitCode, tail(res.Combined(), 3)))
	}
	logger := invLogger(inv)
	if res.Truncated {
		logger.Warn("checkpatch output truncated", zap.String("ref", inv.Patch.ShortRef()), zap.Int("findings", len(findings)))
		findings = append(findings, review.Finding{
			Reviewer: "checkpatch",
			Severity: review.SeverityInfo,
			Rule:     "OUTPUT_TRUNCATED",
			Message:  "checkpatch output exceeded the capture limit; later findings are missing",
		})
	}
	logger.Debug("checkpatch done", zap.Int("findings", len(findings)), zap.Int("exit", res.ExitCode))
	return findings, nil
}

var (
	// drivers/a.c:42: WARNING:LONG_LINE: line length of 101 exceeds 100 columns
	checkpatchShowfileRe = regexp.MustCompile(`^(\S+?):(\d+): (ERROR|WARNING|CHECK):([A-Z0-9_]+): (.*)$`)
	// WARNING:LONG_LINE: line length of 101 exceeds 100 columns
	checkpatchLevelRe = regexp.MustCompile(`^(ERROR|WARNING|CHECK):([A-Z0-9_]+): (.*)$`)
	// #12: FILE: drivers/a.c:42:
	checkpatchFileRe = regexp.MustCompile(`^#\d+: FILE: (\S+?):(\d+):`)
)

func checkpatchSeverity(level string) review.Severity {
	switch level {
	case "ERROR":
		return review.SeverityError
	case "CHECK":
		return review.SeverityInfo
	default:
		return review.SeverityWarning
	}
}

// parseCheckpatch reads checkpatch.pl output in either the --showfile form
// or the classic form where a "#N: FILE:" line follows the message.
func parseCheckpatch(out string) []review.Finding {
	var findings []review.Finding
	pending := -1
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if m := checkpatchShowfileRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[2])
			findings = append(findings, review.Finding{
				Severity: checkpatchSeverity(m[3]),
				Rule:     m[4],
				Message:  m[5],
				Anchor:   &review.Anchor{Path: m[1], Line: n},
			})
			pending = -1
			continue
		}
		if m := checkpatchLevelRe.FindStringSubmatch(line); m != nil {
			findings = append(findings, review.Finding{
				Severity: checkpatchSeverity(m[1]),
				Rule:     m[2],
				Message:  m[3],
			})
			pending = len(findings) - 1
			continue
		}
		if pending >= 0 {
			if m := checkpatchFileRe.FindStringSubmatch(line); m != nil {
				n, _ := strconv.Atoi(m[2])
				findings[pending].Anchor = &review.Anchor{Path: m[1], Line: n}
				pending = -1
			} else if strings.TrimSpace(line) == "" {
				pending = -1
			}
		}
	}
	return findings
}
