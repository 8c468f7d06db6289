package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/patchwise/internal/registry"
)

func newListCmd(o *reviewOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available reviewers with their groups and dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(o, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reg, err := newRegistry(cfg, nil, nil, zap.NewNop())
			if err != nil {
				return exitWith(ExitRuntimeError, err)
			}
			return writeList(cmd.OutOrStdout(), reg)
		},
	}
}

func writeList(w io.Writer, reg *registry.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REVIEWER\tGROUPS\tREQUIRES")
	for _, rv := range reg.Reviewers() {
		var groups []string
		for _, g := range reg.GroupsOf(rv.Name()) {
			groups = append(groups, string(g))
		}
		var deps []string
		for _, d := range rv.Dependencies() {
			deps = append(deps, d.Describe())
		}
		requires := strings.Join(deps, ", ")
		if requires == "" {
			requires = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", rv.Name(), strings.Join(groups, ","), requires)
	}
	return tw.Flush()
}

func newInstallCmd(o *reviewOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the dependencies of the selected reviewers",
		Long: `Install uses the system package manager and builds from source where a
reviewer needs a newer tool than the distribution ships. Select reviewers with
the usual flags; without any, every reviewer's dependencies are installed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(o, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			logger, cleanup, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()

			reg, err := newRegistry(cfg, nil, nil, logger)
			if err != nil {
				return exitWith(ExitRuntimeError, err)
			}
			return installSelected(cmd.Context(), reg, selectionFrom(o, cfg), cmd.ErrOrStderr())
		},
	}
}

func installSelected(ctx context.Context, reg *registry.Registry, sel registry.Selection, stderr io.Writer) error {
	selected, err := reg.Resolve(sel)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	names := make([]string, 0, len(selected))
	for _, rv := range selected {
		names = append(names, rv.Name())
	}
	fmt.Fprintf(stderr, "Installing dependencies for: %s\n", strings.Join(names, ", "))
	if err := reg.Install(ctx, selected); err != nil {
		return exitWith(ExitRuntimeError, fmt.Errorf("installing dependencies: %w", err))
	}
	return nil
}
