package reviewers

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/cache"
	"github.com/dshills/patchwise/internal/review"
	"github.com/dshills/patchwise/internal/toolrun"
)

// dt_binding_check does not depend on the target architecture; arm has the
// quickest defconfig.
const dtCheckArch = "arm"

// dtbsConfig disables options that need toolchain features LLVM lacks.
var dtbsConfig = []string{
	"CONFIG_ARM64_ERRATUM_843419=n",
	"CONFIG_ARM64_USE_LSE_ATOMICS=n",
	"CONFIG_BROKEN_GAS_INST=n",
}

// NewDTCheck validates changed devicetree binding schemas and the
// documentation references to them.
func NewDTCheck(env Env) *review.ToolReviewer {
	d := &dtCheck{env: env}
	return review.NewToolReviewer(review.Info{
		Name:        "dt_check",
		Description: "dt_binding_check and refcheckdocs on changed binding schemas",
		Requires: []toolrun.Requirement{
			toolrun.Dependency{Name: "make"},
			toolrun.Dependency{Name: "dt-doc-validate", Package: "dtschema"},
			toolrun.Dependency{Name: "yamllint"},
		},
	}, d)
}

// NewDTBSCheck validates the devicetree sources against their schemas.
func NewDTBSCheck(env Env) *review.ToolReviewer {
	d := &dtbsCheck{env: env}
	return review.NewToolReviewer(review.Info{
		Name:        "dtbs_check",
		Description: "dtbs_check of devicetree sources against the binding schemas",
		Requires: []toolrun.Requirement{
			toolrun.Dependency{Name: "make"},
			toolrun.Dependency{Name: "dtc", Package: "device-tree-compiler"},
			toolrun.Dependency{Name: "dt-validate", Package: "dtschema"},
		},
	}, d)
}

type dtCheck struct {
	env Env
}

func (d *dtCheck) Run(ctx context.Context, inv review.Invocation) ([]review.Finding, error) {
	p := inv.Patch
	logger := invLogger(inv)
	var bindings []string
	for f := range changedFiles(p) {
		if strings.HasPrefix(f, "Documentation") && strings.HasSuffix(f, ".yaml") {
			bindings = append(bindings, f)
		}
	}
	if len(bindings) == 0 {
		logger.Debug("no binding schemas changed")
		return nil, nil
	}

	targets := [][]string{
		{"refcheckdocs"},
		{"DT_CHECKER_FLAGS=-m", "dt_binding_check"},
	}
	var findings []review.Finding
	for _, args := range targets {
		base, head, err := d.env.compare(ctx, logger, "dt_check", p.Parent(), p.Ref(), dtCheckArch, []string{"defconfig"}, args)
		if err != nil {
			return nil, err
		}
		rule := args[len(args)-1]
		findings = append(findings, lineFindings(uniqueLines(base, head), rule)...)
	}
	return findings, nil
}

type dtbsCheck struct {
	env Env
}

func (d *dtbsCheck) Run(ctx context.Context, inv review.Invocation) ([]review.Finding, error) {
	p := inv.Patch
	logger := invLogger(inv)
	relevant := false
	for f := range changedFiles(p) {
		if strings.HasSuffix(f, ".yaml") || strings.HasSuffix(f, ".dts") || strings.HasSuffix(f, ".dtsi") {
			relevant = true
			break
		}
	}
	if !relevant {
		logger.Debug("no devicetree files changed")
		return nil, nil
	}

	arch := d.env.arch()
	var extra []string
	if arch == "arm64" {
		extra = dtbsConfig
	}
	config := append([]string{"defconfig"}, extra...)
	target := append([]string{"dtbs_check"}, extra...)
	base, head, err := d.env.compare(ctx, logger, "dtbs_check", p.Parent(), p.Ref(), arch, config, target)
	if err != nil {
		return nil, err
	}
	return lineFindings(uniqueLines(base, head), "dtbs_check"), nil
}

// compare runs a make target at base and at head and returns both outputs
// with tree and build directory prefixes removed. An empty base, as for a
// root commit, compares against nothing.
func (e Env) compare(ctx context.Context, logger *zap.Logger, reviewer, base, head, arch string, config, target []string) (string, string, error) {
	var before string
	if base != "" {
		out, err := e.targetOutput(ctx, logger, reviewer, "base", base, arch, config, target)
		if err != nil {
			return "", "", err
		}
		before = out
	}
	after, err := e.targetOutput(ctx, logger, reviewer, "patch", head, arch, config, target)
	if err != nil {
		return "", "", err
	}
	return before, after, nil
}

// targetOutput returns the normalized output of target at rev, from the
// baseline cache when possible.
func (e Env) targetOutput(ctx context.Context, logger *zap.Logger, reviewer, variant, rev, arch string, config, target []string) (string, error) {
	params := append([]string{"ARCH=" + arch}, target...)
	if tag := e.fixupTag(reviewer); tag != "" {
		params = append(params, "FIXUPS="+tag)
	}
	key := cache.BaselineKey(reviewer, rev, params...)
	if out, ok := e.Baselines.Get(key); ok {
		logger.Debug("using cached output", zap.String("rev", rev), zap.Strings("target", target))
		return out, nil
	}

	tree, err := e.reviewTree(ctx, reviewer, rev)
	if err != nil {
		return "", err
	}
	dir := e.buildDir(reviewer, variant)
	if err := e.runConfig(ctx, e.makeCommand(tree, dir, arch, config...)); err != nil {
		return "", err
	}
	raw, err := e.runMake(ctx, logger, e.makeCommand(tree, dir, arch, target...))
	if err != nil {
		return "", err
	}
	out := normalizePaths(raw, tree, dir)
	if err := e.Baselines.Put(key, reviewer, out); err != nil {
		logger.Warn("caching output failed", zap.Error(err))
	}
	return out, nil
}

// normalizePaths strips absolute checkout and build prefixes so output from
// different worktrees compares line by line.
func normalizePaths(out string, prefixes ...string) string {
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		out = strings.ReplaceAll(out, strings.TrimSuffix(p, "/")+"/", "")
	}
	return strings.TrimSpace(out)
}

// arch/arm64/boot/dts/qcom/x.dtb: pmic@0: 'foo' is a required property
// Documentation/devicetree/bindings/x.yaml:12:5: [error] syntax error
var dtLineRe = regexp.MustCompile(`^([\w.+/-]+\.(?:dts|dtsi|dtb|yaml|rst|txt))(?::(\d+))?(?::\d+)?:\s*(.*)$`)

// lineFindings turns checker lines into warnings. Indented lines continue
// the previous message.
func lineFindings(lines []string, rule string) []review.Finding {
	var findings []review.Finding
	for _, l := range lines {
		if (strings.HasPrefix(l, " ") || strings.HasPrefix(l, "\t")) && len(findings) > 0 {
			last := &findings[len(findings)-1]
			last.Message += "\n" + strings.TrimSpace(l)
			continue
		}
		f := review.Finding{Severity: review.SeverityWarning, Rule: rule, Message: strings.TrimSpace(l)}
		if m := dtLineRe.FindStringSubmatch(l); m != nil {
			n, _ := strconv.Atoi(m[2])
			f.Anchor = &review.Anchor{Path: m[1], Line: n}
			if m[3] != "" {
				f.Message = m[3]
			}
		}
		findings = append(findings, f)
	}
	return findings
}
