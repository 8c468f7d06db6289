package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/patchwise/internal/config"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage patchwise configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Init(force)
			if errors.Is(err, config.ErrExists) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Config file already exists at %s (use --force to overwrite)\n", path)
				return nil
			}
			if err != nil {
				return exitWith(ExitRuntimeError, fmt.Errorf("writing config: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file created at %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Known keys:\n  " + strings.Join(config.Keys(), "\n  "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Set(args[0], args[1]); err != nil {
				return exitWith(ExitUsageError, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(nil)
			if err != nil {
				return exitWith(ExitUsageError, err)
			}
			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return exitWith(ExitRuntimeError, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	configCmd.AddCommand(initCmd, setCmd, showCmd)
	return configCmd
}
