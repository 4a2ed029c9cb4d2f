package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/velocitest/velocitest/packages/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the discovery cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all discovery cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(ExitFatal)
		}

		store, err := cache.NewStore(cfg.CacheDir, false)
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cache cleared: %s\n", cfg.CacheDir)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().StringVar(&configFlag, "config", "", "Path to config file")
	cacheCmd.AddCommand(cacheClearCmd)
}
