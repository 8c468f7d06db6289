package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFindings     = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

// exitError carries the process exit code out of a command. A nil err means
// the command already reported everything it had to say.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// newRootCmd builds the command tree. The root command itself runs a review.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &reviewOptions{}
	root := &cobra.Command{
		Use:   "patchwise [commit...]",
		Short: "Review kernel patches with static checkers and an LLM",
		Long: `Patchwise loads commits from a git repository and runs a configurable set of
reviewers against each one: checkpatch, coccicheck, sparse, the devicetree
checks and two AI reviewers. Findings are reported per patch and per reviewer.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd.Context(), opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	addReviewFlags(root, opts)

	root.AddCommand(newListCmd(opts))
	root.AddCommand(newInstallCmd(opts))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Run executes the root command and returns an exit code.
func Run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	// Flag parsing and argument validation errors from cobra.
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitUsageError
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print patchwise version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "patchwise version %s\n", version)
		},
	}
}
