package reviewers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/patch"
	"github.com/dshills/patchwise/internal/providers"
	"github.com/dshills/patchwise/internal/redact"
	"github.com/dshills/patchwise/internal/review"
	"github.com/dshills/patchwise/internal/reviewctx"
)

const codingStylePath = "Documentation/process/coding-style.rst"

// NewAIReview asks the model for inline, mailing-list style review comments
// on the diff.
func NewAIReview(env Env) *review.AIReviewer {
	a := &aiReview{env: env}
	return &review.AIReviewer{
		Info: review.Info{
			Name:        "ai_review",
			Description: "AI code review with inline comments on the quoted diff",
			Requires:    env.Credentials,
		},
		Prompt:     a.request,
		Parse:      parseAIReview,
		Provider:   env.Provider,
		Retry:      env.Retry,
		ChunkBytes: env.ChunkBytes,
	}
}

type aiReview struct {
	env Env
}

func (a *aiReview) request(ctx context.Context, inv review.Invocation) (providers.Request, error) {
	logger := invLogger(inv)
	p := inv.Patch

	var read reviewctx.ReadFunc
	system := aiReviewSystem
	if tree, err := a.env.tree(ctx, p.Ref()); err == nil {
		read = func(path string) (string, error) {
			b, err := os.ReadFile(filepath.Join(tree, filepath.FromSlash(path)))
			return string(b), err
		}
		if style, err := read(codingStylePath); err == nil {
			system += aiReviewStyleHeader + style
		} else {
			logger.Debug("coding style unavailable", zap.Error(err))
		}
	} else if ctx.Err() != nil {
		return providers.Request{}, ctx.Err()
	} else {
		logger.Debug("no source tree for context", zap.Error(err))
	}

	var skip func(string) bool
	if paths := a.env.Redact.Paths; len(paths) > 0 {
		skip = func(path string) bool { return redact.MatchPath(path, paths) }
	}
	defs := reviewctx.RenderDefinitions(inv.Context, read, skip)
	if defs == "" {
		defs = "(none)"
	}
	if a.env.Redact.Secrets {
		if kinds := redact.Detect(p.Message() + p.Diff()); len(kinds) > 0 {
			logger.Info("redacting secrets before upload", zap.Strings("kinds", kinds))
		}
	}
	prompt := fmt.Sprintf(aiReviewPrompt,
		redact.Patch(defs, a.env.Redact),
		redact.Patch(p.Message(), a.env.Redact),
		redact.Patch(p.Diff(), a.env.Redact))
	return providers.Request{System: system, Prompt: prompt}, nil
}

// parseAIReview accepts a JSON findings array or, more usually, the quoted
// diff with comments interleaved.
func parseAIReview(text string, inv review.Invocation) ([]review.Finding, error) {
	findings, err := review.ParseJSONFindings(text)
	if err == nil {
		return findings, nil
	}
	if !errors.Is(err, review.ErrNoFindings) {
		return nil, err
	}
	return parseInterleaved(text, inv.Patch), nil
}

var hunkHeaderRe = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// quoteCursor follows the position in the patch of the quoted lines seen so
// far.
type quoteCursor struct {
	p    *patch.Patch
	file string
	next int // new-side line of the next quoted line, 0 when unknown
	last int // new-side line of the last quoted line
}

func (c *quoteCursor) quoted(q string) {
	switch {
	case strings.HasPrefix(q, "diff --git "):
		if i := strings.LastIndex(q, " b/"); i >= 0 {
			c.setFile(q[i+3:])
		}
	case strings.HasPrefix(q, "+++ "):
		if path, ok := strings.CutPrefix(strings.TrimSpace(q[4:]), "b/"); ok {
			c.setFile(path)
		}
	case strings.HasPrefix(q, "--- "), strings.HasPrefix(q, "index "),
		strings.HasPrefix(q, "new file mode"), strings.HasPrefix(q, "deleted file mode"),
		strings.HasPrefix(q, "similarity index"), strings.HasPrefix(q, "rename "):
	case strings.HasPrefix(q, "@@"):
		if m := hunkHeaderRe.FindStringSubmatch(q); m != nil {
			c.next, _ = strconv.Atoi(m[1])
		}
	case strings.HasPrefix(q, "-"):
	case strings.HasPrefix(q, "+"):
		c.advance(q[1:])
	default:
		c.advance(strings.TrimPrefix(q, " "))
	}
}

func (c *quoteCursor) setFile(path string) {
	if path != c.file {
		c.file = path
		c.last = 0
	}
	c.next = 0
}

// advance moves past one new-side line. The line is looked up in the patch
// first so comments still land correctly when the model elides lines.
func (c *quoteCursor) advance(text string) {
	from := c.next
	if from == 0 {
		from = c.last + 1
	}
	if n := c.find(text, from); n > 0 {
		c.last = n
		c.next = n + 1
		return
	}
	if c.next > 0 {
		c.last = c.next
		c.next++
	}
}

func (c *quoteCursor) find(text string, from int) int {
	if c.p == nil {
		return 0
	}
	fc, ok := c.p.File(c.file)
	if !ok {
		return 0
	}
	for _, h := range fc.Hunks {
		for _, l := range h.Lines {
			if l.Op != patch.OpDelete && l.NewLine >= from && l.Text == text {
				return l.NewLine
			}
		}
	}
	return 0
}

func (c *quoteCursor) anchor() *review.Anchor {
	if c.file == "" {
		return nil
	}
	return &review.Anchor{Path: c.file, Line: c.last}
}

// parseInterleaved turns each run of unquoted text into a warning anchored
// to the last quoted new-side line above it. Text before the first quote
// is an unanchored finding.
func parseInterleaved(text string, p *patch.Patch) []review.Finding {
	var findings []review.Finding
	cur := &quoteCursor{p: p}
	var comment []string
	var at *review.Anchor
	flush := func() {
		msg := strings.TrimSpace(strings.Join(comment, "\n"))
		comment = nil
		if msg == "" {
			return
		}
		findings = append(findings, review.Finding{
			Severity: review.SeverityWarning,
			Message:  FormatChat(msg),
			Anchor:   at,
		})
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		if q, ok := strings.CutPrefix(line, ">"); ok {
			flush()
			cur.quoted(strings.TrimPrefix(q, " "))
			at = cur.anchor()
			continue
		}
		comment = append(comment, line)
	}
	flush()
	return findings
}
