package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/velocitest/velocitest/packages/core/runner"
)

var listCmd = &cobra.Command{
	Use:   "list [path...]",
	Short: "List collected tests without running them",
	Long: `Discover and display every test item under the given paths,
applying the same naming conventions, parametrize expansion and marker
filters as a real run.

Examples:
  velocitest list
  velocitest list tests/
  velocitest list -m smoke tests/test_api.py`,
	RunE: listCommand,
}

func init() {
	listCmd.Flags().StringVarP(&markersFlag, "markers", "m", "", "Marker filter expression")
	listCmd.Flags().StringVar(&configFlag, "config", "", "Path to config file")
	listCmd.Flags().BoolVar(&noCacheFlag, "no-cache", false, "Bypass the discovery cache")
}

func listCommand(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFatal)
	}

	r := runner.New(cfg, runner.WithLogger(newLogger(cfg)))
	col, err := r.Collect(args)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStderr(), "Error: %v\n", err)
		os.Exit(ExitFatal)
	}

	printCollection(cmd, col)
	return nil
}
