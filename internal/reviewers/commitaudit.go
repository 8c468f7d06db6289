package reviewers

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/patchwise/internal/providers"
	"github.com/dshills/patchwise/internal/redact"
	"github.com/dshills/patchwise/internal/review"
)

// NewCommitAudit asks the model to critique the commit message and propose
// a rewrite.
func NewCommitAudit(env Env) *review.AIReviewer {
	return &review.AIReviewer{
		Info: review.Info{
			Name:        "commit_audit",
			Description: "AI critique and rewrite of the commit message",
			Short:       true,
			Requires:    env.Credentials,
		},
		Prompt: func(_ context.Context, inv review.Invocation) (providers.Request, error) {
			return commitAuditRequest(inv, env.Redact), nil
		},
		Parse:    parseCommitAudit,
		Provider: env.Provider,
		Retry:    env.Retry,
	}
}

func commitAuditRequest(inv review.Invocation, opts redact.Options) providers.Request {
	diff := redact.Patch(inv.Patch.Diff(), opts)
	return providers.Request{
		System: commitAuditSystem,
		Prompt: fmt.Sprintf(commitAuditPrompt, redact.Patch(inv.Patch.Message(), opts), diff),
	}
}

func parseCommitAudit(text string, _ review.Invocation) ([]review.Finding, error) {
	f := review.Finding{
		Severity: review.SeverityInfo,
		Rule:     "commit-message",
		Message:  FormatChat(text),
	}
	if rewritten := firstFence(text); rewritten != "" {
		f.Payload = map[string]string{review.PayloadRewrittenText: rewritten}
	}
	return []review.Finding{f}, nil
}

// firstFence returns the body of the first ``` block in text.
func firstFence(text string) string {
	var body []string
	in := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if in {
				return strings.TrimSpace(strings.Join(body, "\n"))
			}
			in = true
			continue
		}
		if in {
			body = append(body, line)
		}
	}
	return ""
}
