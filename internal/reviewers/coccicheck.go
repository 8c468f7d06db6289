package reviewers

import (
	"context"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/review"
	"github.com/dshills/patchwise/internal/toolrun"
)

// NewCoccicheck runs the kernel's coccinelle semantic patches in report
// mode over each directory the commit touches.
func NewCoccicheck(env Env) *review.ToolReviewer {
	c := &coccicheck{env: env}
	return review.NewToolReviewer(review.Info{
		Name:        "coccicheck",
		Description: "coccinelle semantic patch reports for touched directories",
		Short:       true,
		Requires: []toolrun.Requirement{
			toolrun.Dependency{Name: "make"},
			toolrun.Dependency{Name: "spatch", Package: "coccinelle"},
		},
	}, c)
}

type coccicheck struct {
	env Env
}

// drivers/a.c:42:9-15: WARNING: ...
var coccicheckLineRe = regexp.MustCompile(`^([^:]+):(\d+):\d+-\d+:\s*(.*)$`)

func (c *coccicheck) Run(ctx context.Context, inv review.Invocation) ([]review.Finding, error) {
	p := inv.Patch
	logger := invLogger(inv)
	tree, err := c.env.reviewTree(ctx, "coccicheck", p.Ref())
	if err != nil {
		return nil, err
	}

	modified := changedFiles(p)
	dirs := make(map[string]bool)
	for f := range modified {
		if d := path.Dir(f); d != "." {
			dirs[d] = true
		}
	}
	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, d)
	}
	sort.Strings(ordered)

	var findings []review.Finding
	for _, dir := range ordered {
		cmd := c.env.makeCommand(tree, c.env.buildDir("coccicheck", "patch"), c.env.arch(),
			"coccicheck", "M="+dir, "MODE=report", "DEBUG_FILE=/dev/null")
		out, err := c.env.runMake(ctx, logger, cmd)
		if err != nil {
			return nil, err
		}
		found := parseCoccicheck(out, dir, modified)
		logger.Debug("coccicheck directory done", zap.String("dir", dir), zap.Int("findings", len(found)))
		findings = append(findings, found...)
	}
	return findings, nil
}

// parseCoccicheck keeps report lines about files in modified. Paths are
// relative to dir, optionally with a leading "./".
func parseCoccicheck(out, dir string, modified map[string]bool) []review.Finding {
	var findings []review.Finding
	for _, line := range strings.Split(out, "\n") {
		m := coccicheckLineRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		file := strings.TrimPrefix(m[1], "./")
		full := file
		if !modified[full] {
			full = path.Join(dir, file)
		}
		if !modified[full] {
			continue
		}
		n, _ := strconv.Atoi(m[2])
		findings = append(findings, review.Finding{
			Severity: review.SeverityWarning,
			Rule:     coccicheckRule(m[3]),
			Message:  strings.TrimSpace(m[3]),
			Anchor:   &review.Anchor{Path: full, Line: n},
		})
	}
	return findings
}

// coccicheckRule pulls the level out of messages such as
// "WARNING: casting value returned by memory allocation function".
func coccicheckRule(msg string) string {
	level, _, ok := strings.Cut(strings.TrimSpace(msg), ":")
	if !ok || level == "" || strings.ToUpper(level) != level || strings.ContainsAny(level, " \t") {
		return ""
	}
	return level
}
