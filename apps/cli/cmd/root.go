package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "velocitest",
	Short: "Fast Python test runner. Discovery without imports.",
	Long: `velocitest is a test runner for pytest-style Python suites. It
discovers tests by scanning source text instead of importing modules,
resolves fixture graphs ahead of time, and picks an execution strategy
from the size of the suite.`,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitUsageError)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
