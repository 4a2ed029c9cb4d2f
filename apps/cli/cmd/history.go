package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/velocitest/velocitest/packages/history"
)

var historyLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs",
	Long: `Show summaries of past runs from the local history database,
newest first.`,
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 10, "Number of runs to show")
	historyCmd.Flags().StringVar(&configFlag, "config", "", "Path to config file")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFatal)
	}

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(historyLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no recorded runs")
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d tests, %d passed, %d failed, %d errors (%dms)\n",
			r.ID[:8], r.StartedAt.Format(time.DateTime),
			r.Counts.Total, r.Counts.Passed, r.Counts.Failed, r.Counts.Errors,
			r.Wall.Milliseconds())
	}
	return nil
}
