package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/velocitest/velocitest/packages/core/config"
	"github.com/velocitest/velocitest/packages/core/runner"
	"github.com/velocitest/velocitest/packages/output"
)

var runCmd = &cobra.Command{
	Use:   "run [path...]",
	Short: "Discover and execute tests",
	Long: `Discover tests under the given paths (default: testpaths from the
config file, falling back to the current directory) and execute them.

Examples:
  velocitest run
  velocitest run tests/
  velocitest run tests/test_api.py
  velocitest run -m "smoke and not slow"
  velocitest run --workers 8 --format junit --output-file report.xml`,
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	markersFlag      string
	pythonFlag       string
	workersFlag      int
	dispatchRateFlag float64
	verboseFlag      int // 0=off, 1=-v, 2=-vv
	noColorFlag      bool
	formatFlag       string
	outputFileFlag   string
	envFileFlag      string
	noCacheFlag      bool
	strictXFailFlag  bool
	watchFlag        bool
	configFlag       string
	collectOnlyFlag  bool
)

func init() {
	runCmd.Flags().StringVarP(&markersFlag, "markers", "m", getEnvString("VELOCITEST_MARKERS", ""), "Marker filter expression, e.g. \"smoke and not slow\" (env: VELOCITEST_MARKERS)")
	runCmd.Flags().StringVar(&pythonFlag, "python", getEnvString("VELOCITEST_PYTHON", ""), "Python interpreter for workers (env: VELOCITEST_PYTHON)")
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("VELOCITEST_CONFIG", ""), "Path to config file (env: VELOCITEST_CONFIG)")
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("VELOCITEST_ENV_FILE", ""), "Path to .env file injected into worker environments (env: VELOCITEST_ENV_FILE)")

	runCmd.Flags().IntVar(&workersFlag, "workers", getEnvInt("VELOCITEST_WORKERS", 0), "Worker count override, 0 = strategy default (env: VELOCITEST_WORKERS)")
	runCmd.Flags().Float64Var(&dispatchRateFlag, "dispatch-rate", 0, "Max test dispatches per second, 0 = unlimited")

	runCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v, -vv for more detail)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("VELOCITEST_NO_COLOR", false), "Disable colored output (env: VELOCITEST_NO_COLOR)")
	runCmd.Flags().StringVar(&formatFlag, "format", getEnvString("VELOCITEST_FORMAT", ""), "Output format: console, json, junit, tap (env: VELOCITEST_FORMAT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("VELOCITEST_OUTPUT_FILE", ""), "Write report to file (default: stdout) (env: VELOCITEST_OUTPUT_FILE)")

	runCmd.Flags().BoolVar(&noCacheFlag, "no-cache", getEnvBool("VELOCITEST_NO_CACHE", false), "Bypass the discovery cache (env: VELOCITEST_NO_CACHE)")
	runCmd.Flags().BoolVar(&strictXFailFlag, "strict-xfail", false, "Treat unexpectedly passing xfail tests as failures")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch source files for changes and re-run tests")
	runCmd.Flags().BoolVar(&collectOnlyFlag, "collect-only", false, "Collect tests without executing them")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// buildConfig loads the file config and applies CLI overrides on top.
func buildConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	overrides := &config.Config{
		Python:       pythonFlag,
		Markers:      markersFlag,
		EnvFile:      envFileFlag,
		Workers:      workersFlag,
		DispatchRate: dispatchRateFlag,
		Format:       formatFlag,
		OutputFile:   outputFileFlag,
	}
	if noCacheFlag {
		overrides.NoCache = config.BoolPtr(true)
	}
	if strictXFailFlag {
		overrides.StrictXFail = config.BoolPtr(true)
	}
	if verboseFlag > 0 {
		overrides.Verbose = config.BoolPtr(true)
	}
	if noColorFlag {
		overrides.NoColor = config.BoolPtr(true)
	}
	return cfg.Merge(overrides), nil
}

func newLogger(cfg *config.Config) *log.Logger {
	logger := log.New(os.Stderr)
	if cfg.GetVerbose() {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	return logger
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFatal)
	}

	var outWriter *os.File
	if cfg.OutputFile != "" {
		outWriter, err = os.Create(cfg.OutputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot create output file: %v\n", err)
			os.Exit(ExitFatal)
		}
		defer outWriter.Close()
	}

	formatter, err := newFormatter(cfg, outWriter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitUsageError)
	}
	formatter.FormatHeader(version)

	logger := newLogger(cfg)

	// Ctrl+C cancels the run; in-flight results are still aggregated.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt, stopping gracefully...")
		cancel()
	}()

	runOnce := func(f output.Formatter) int {
		r := runner.New(cfg,
			runner.WithLogger(logger),
			runner.WithFormatter(f))

		if collectOnlyFlag {
			col, err := r.Collect(args)
			if err != nil {
				f.FormatError(err)
				return ExitFatal
			}
			printCollection(cmd, col)
			return ExitSuccess
		}

		start := time.Now()
		report, err := r.Run(ctx, args)
		if err != nil {
			f.FormatError(err)
			return ExitFatal
		}
		if flushable, ok := f.(output.Flushable); ok {
			if err := flushable.Flush(time.Since(start)); err != nil {
				f.FormatError(fmt.Errorf("writing report: %w", err))
				return ExitFatal
			}
		}
		return report.ExitCode()
	}

	code := runOnce(formatter)

	if !watchFlag {
		if code != ExitSuccess {
			os.Exit(code)
		}
		return nil
	}

	return watchLoop(cmd, ctx, cfg, args, runOnce, outWriter)
}

// watchLoop re-runs the suite whenever a Python source file changes.
func watchLoop(cmd *cobra.Command, ctx context.Context, cfg *config.Config,
	args []string, runOnce func(output.Formatter) int, outWriter *os.File) error {

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	roots := args
	if len(roots) == 0 {
		roots = cfg.Testpaths
	}
	watchedDirs := make(map[string]bool)
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			root = filepath.Dir(root)
		}
		_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() && !watchedDirs[path] && !strings.HasPrefix(filepath.Base(path), ".") {
				_ = watcher.Add(path)
				watchedDirs[path] = true
			}
			return nil
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) && strings.HasSuffix(event.Name, ".py") {
				// Debounce: reset timer on each event
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "\n\nFile changed: %s\nRe-running tests...\n\n", event.Name)

					// Fresh formatter per run so accumulating formats start clean.
					f, err := newFormatter(cfg, outWriter)
					if err != nil {
						fmt.Fprintf(os.Stderr, "Error: %v\n", err)
						return
					}
					runOnce(f)
					fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}
}

func newFormatter(cfg *config.Config, outWriter *os.File) (output.Formatter, error) {
	format := strings.ToLower(cfg.Format)
	switch format {
	case "json":
		opts := []output.JSONOption{}
		if outWriter != nil {
			opts = append(opts, output.JSONWithWriter(outWriter))
		}
		return output.NewJSONFormatter(opts...), nil
	case "junit":
		opts := []output.JUnitOption{}
		if outWriter != nil {
			opts = append(opts, output.JUnitWithWriter(outWriter))
		}
		return output.NewJUnitFormatter(opts...), nil
	case "tap":
		opts := []output.TAPOption{}
		if outWriter != nil {
			opts = append(opts, output.TAPWithWriter(outWriter))
		}
		return output.NewTAPFormatter(opts...), nil
	case "", "console":
		consoleOpts := []output.ConsoleOption{
			output.WithVerbose(cfg.GetVerbose()),
			output.WithNoColor(cfg.GetNoColor()),
		}
		if outWriter != nil {
			consoleOpts = append(consoleOpts, output.WithWriter(outWriter))
		}
		return output.NewConsoleFormatter(consoleOpts...), nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", cfg.Format)
	}
}

func printCollection(cmd *cobra.Command, col *runner.Collection) {
	for _, item := range col.Items {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", item.ID())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d tests collected", len(col.Items))
	if col.Deselected > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), ", %d deselected", col.Deselected)
	}
	fmt.Fprintf(cmd.OutOrStdout(), " from %d files\n", col.Files)
	for _, se := range col.ScanErrors {
		fmt.Fprintf(cmd.OutOrStderr(), "scan error: %s\n", se.Error())
	}
}
