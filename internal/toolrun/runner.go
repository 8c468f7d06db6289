package toolrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a command's binary cannot be found on PATH.
var ErrNotFound = errors.New("executable not found")

// DefaultMaxOutputBytes caps each of stdout and stderr.
const DefaultMaxOutputBytes = 16 << 20

// Command is one tool invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Stdin string
	Env   []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that started.
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Duration  time.Duration
	Killed    bool
	Truncated bool
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct {
	MaxOutputBytes int64
	// PathPrefix is prepended to PATH for every command, e.g. a sandbox bin dir.
	PathPrefix string
	Logger     *zap.Logger
}

// NewExecRunner returns a runner with default limits.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{MaxOutputBytes: DefaultMaxOutputBytes, Logger: logger}
}

// Run executes cmd. A non-zero exit is reported in Result.ExitCode with a nil
// error. Cancellation or deadline expiry kills the process group and returns
// the context error alongside whatever output was captured.
func (e *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	logger := e.logger()
	if cmd.Name == "" {
		return Result{}, errors.New("toolrun: empty command name")
	}
	if _, err := lookPath(cmd.Name); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%s: %w", cmd.Name, ErrNotFound)
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = e.environ(cmd.Env)
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}
	configureKill(c)

	limit := e.MaxOutputBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}
	var stdout, stderr bytes.Buffer
	outW := &limitedWriter{w: &stdout, max: limit}
	errW := &limitedWriter{w: &stderr, max: limit}
	c.Stdout = outW
	c.Stderr = errW

	logger.Debug("running tool", zap.String("cmd", cmd.String()), zap.String("dir", cmd.Dir))
	start := time.Now()
	err := c.Run()
	res := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: outW.truncated || errW.truncated,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Killed = true
		res.ExitCode = -1
		logger.Warn("tool killed", zap.String("cmd", cmd.Name), zap.Duration("after", res.Duration), zap.Error(ctxErr))
		return res, fmt.Errorf("%s: %w", cmd.Name, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			logger.Debug("tool exited non-zero", zap.String("cmd", cmd.Name), zap.Int("exit", res.ExitCode))
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("running %s: %w", cmd.Name, err)
	}
	logger.Debug("tool finished", zap.String("cmd", cmd.Name), zap.Duration("took", res.Duration))
	return res, nil
}

func (e *ExecRunner) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *ExecRunner) environ(extra []string) []string {
	env := os.Environ()
	if e.PathPrefix != "" {
		for i, kv := range env {
			if strings.HasPrefix(kv, "PATH=") {
				env[i] = "PATH=" + e.PathPrefix + string(os.PathListSeparator) + strings.TrimPrefix(kv, "PATH=")
			}
		}
	}
	return append(env, extra...)
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	remaining := lw.max - lw.written
	if remaining <= 0 {
		lw.truncated = true
		return n, nil
	}
	if int64(n) > remaining {
		lw.truncated = true
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return n, err
}
