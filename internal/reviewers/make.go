package reviewers

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/toolrun"
)

// makeCommand builds "make O=<out> -j<n> ARCH=<arch> [LLVM=1] -s <args>"
// run from the kernel tree.
func (e Env) makeCommand(tree, out, arch string, args ...string) toolrun.Command {
	jobs := e.Build.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	a := []string{"O=" + out, "-j" + strconv.Itoa(jobs), "ARCH=" + arch}
	if e.Build.LLVM {
		a = append(a, "LLVM=1")
	}
	a = append(a, "-s")
	a = append(a, args...)
	return toolrun.Command{Name: "make", Args: a, Dir: tree}
}

// runMake runs a make target whose output is the analysis result. The exit
// status is not an error here: checkers exit non-zero when they report.
func (e Env) runMake(ctx context.Context, logger *zap.Logger, cmd toolrun.Command) (string, error) {
	res, err := e.Runner.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		logger.Debug("make exited non-zero", zap.String("cmd", cmd.String()), zap.Int("exit", res.ExitCode))
	}
	if res.Truncated {
		logger.Warn("make output truncated", zap.String("cmd", cmd.String()))
	}
	return res.Combined(), nil
}

// runConfig runs a configuration step that must succeed.
func (e Env) runConfig(ctx context.Context, cmd toolrun.Command) error {
	res, err := e.Runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited %d: %s", cmd.String(), res.ExitCode, tail(res.Combined(), 5))
	}
	return nil
}

// uniqueLines returns the non-blank lines of after that do not appear in
// before, in the order they first appear in after.
func uniqueLines(before, after string) []string {
	seen := make(map[string]bool)
	for _, l := range strings.Split(before, "\n") {
		seen[strings.TrimRight(l, " \t\r")] = true
	}
	var out []string
	for _, l := range strings.Split(after, "\n") {
		l = strings.TrimRight(l, " \t\r")
		if strings.TrimSpace(l) == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// tail returns the last n non-empty lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
