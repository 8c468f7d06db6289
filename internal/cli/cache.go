package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/patchwise/internal/cache"
	"github.com/dshills/patchwise/internal/config"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the baseline output cache",
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached baseline output",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(true)
			if err != nil {
				return err
			}
			n, err := c.Clear()
			if err != nil {
				return exitWith(ExitRuntimeError, fmt.Errorf("clearing cache: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared (%d entries).\n", n)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:     "show",
		Aliases: []string{"stats"},
		Short:   "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(false)
			if err != nil {
				return err
			}
			if !c.Enabled() {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache is disabled.")
				return nil
			}
			stats, err := c.GetStats()
			if err != nil {
				return exitWith(ExitRuntimeError, fmt.Errorf("reading cache stats: %w", err))
			}
			data, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return exitWith(ExitRuntimeError, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired baseline output",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(true)
			if err != nil {
				return err
			}
			n, err := c.Prune()
			if err != nil {
				return exitWith(ExitRuntimeError, fmt.Errorf("pruning cache: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired entries.\n", n)
			return nil
		},
	}

	cacheCmd.AddCommand(clearCmd, pruneCmd, showCmd)
	return cacheCmd
}

// openCache opens the configured cache. force ignores cache.enabled so that
// clear and prune still reach entries left by earlier runs.
func openCache(force bool) (*cache.Cache, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, exitWith(ExitUsageError, err)
	}
	c, err := cache.New(force || cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
	if err != nil {
		return nil, exitWith(ExitRuntimeError, fmt.Errorf("opening cache: %w", err))
	}
	return c, nil
}
