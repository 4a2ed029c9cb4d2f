package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/velocitest/velocitest/packages/cache"
	"github.com/velocitest/velocitest/packages/core/collect"
	"github.com/velocitest/velocitest/packages/core/config"
	"github.com/velocitest/velocitest/packages/core/env"
	"github.com/velocitest/velocitest/packages/core/scanner"
	"github.com/velocitest/velocitest/packages/engine"
	"github.com/velocitest/velocitest/packages/history"
	"github.com/velocitest/velocitest/packages/output"
	"github.com/velocitest/velocitest/packages/plugin"
	"github.com/velocitest/velocitest/packages/result"
	"github.com/velocitest/velocitest/packages/schedule"
)

// Runner drives a full run: discovery, planning, execution, aggregation.
type Runner struct {
	cfg      *config.Config
	logger   *log.Logger
	plugins  *plugin.Registry
	launcher engine.Launcher
	fmtr     output.Formatter
}

type Option func(*Runner)

// WithLogger sets the diagnostic logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithPlugins sets the plugin registry.
func WithPlugins(reg *plugin.Registry) Option {
	return func(r *Runner) { r.plugins = reg }
}

// WithLauncher overrides the worker launcher. Tests use this to execute
// plans without spawning interpreter processes.
func WithLauncher(l engine.Launcher) Option {
	return func(r *Runner) { r.launcher = l }
}

// WithFormatter sets the report formatter.
func WithFormatter(f output.Formatter) Option {
	return func(r *Runner) { r.fmtr = f }
}

func New(cfg *config.Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	r := &Runner{
		cfg:     cfg,
		logger:  log.New(os.Stderr),
		plugins: plugin.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// launcherFor builds the production launcher, injecting the configured
// .env file into worker environments.
func (r *Runner) launcherFor() (engine.Launcher, error) {
	if r.launcher != nil {
		return r.launcher, nil
	}
	var workerEnv []string
	if r.cfg.EnvFile != "" {
		vars, err := env.LoadDotEnv(r.cfg.EnvFile)
		if err != nil {
			return nil, err
		}
		for k, v := range vars {
			workerEnv = append(workerEnv, k+"="+v)
		}
	}
	return &engine.PythonLauncher{Python: r.cfg.Python, Env: workerEnv}, nil
}

// Report is the outcome of one run.
type Report struct {
	Summary    result.Summary
	Results    []*result.TestResult
	Collected  int
	Deselected int
	ScanErrors []*scanner.ScanError
	Strategy   schedule.Strategy
}

// ExitCode maps the report to the process exit code. A run that collected
// nothing because every candidate file failed to scan never ran a single
// test; that exits 2, the same code the CLI uses for fatal setup problems.
func (r *Report) ExitCode() int {
	if r.Collected == 0 && len(r.ScanErrors) > 0 {
		return 2
	}
	return r.Summary.ExitCode()
}

// Collection is the discovery-only view used by list mode.
type Collection struct {
	Items      []*collect.TestItem
	Deselected int
	Files      int
	ScanErrors []*scanner.ScanError
}

// Collect discovers test items under the given roots without executing
// anything. A missing or unreadable root is fatal.
func (r *Runner) Collect(paths []string) (*Collection, error) {
	if len(paths) == 0 {
		paths = r.cfg.Testpaths
	}

	filter, err := collect.CompileMarkerFilter(r.cfg.Markers)
	if err != nil {
		return nil, fmt.Errorf("marker filter: %w", err)
	}

	scan, err := r.cachedScan()
	if err != nil {
		return nil, err
	}

	r.plugins.EmitCollectionStart(paths)

	out := &Collection{}
	for _, path := range paths {
		c := collect.New(collect.Options{MarkerFilter: filter, Scan: scan})
		res, err := c.Collect(path)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, res.Items...)
		out.ScanErrors = append(out.ScanErrors, res.ScanErrors...)
		out.Files += res.Files
		out.Deselected += res.Deselected
	}

	for _, item := range out.Items {
		r.plugins.EmitItemCollected(item)
	}
	return out, nil
}

// Run executes the full pipeline and returns the report. The returned error
// is reserved for fatal setup problems; test failures live in the report.
func (r *Runner) Run(ctx context.Context, paths []string) (*Report, error) {
	machine := schedule.NewMachine()

	col, err := r.Collect(paths)
	if err != nil {
		return nil, err
	}
	for _, se := range col.ScanErrors {
		r.logger.Warn("scan error", "err", se.Error())
	}

	// Nothing collected and at least one file unparsable: there is no suite
	// to run. Abort to a zero-item report instead of reporting a green run.
	if len(col.Items) == 0 && len(col.ScanErrors) > 0 {
		machine.Abort()
		r.logger.Error("no tests collected", "errors", len(col.ScanErrors))
		return &Report{ScanErrors: col.ScanErrors}, nil
	}

	if err := machine.Advance(schedule.StatePlanning); err != nil {
		return nil, err
	}
	plan := schedule.Build(col.Items, r.scheduleConfig())
	r.logger.Info("planned run",
		"items", len(col.Items),
		"deselected", col.Deselected,
		"strategy", plan.Strategy.String(),
		"workers", plan.Workers)

	r.plugins.EmitRunStart(len(col.Items), plan.Strategy.String())
	if r.fmtr != nil {
		r.fmtr.FormatStart(len(col.Items), plan.Strategy.String())
	}

	if err := machine.Advance(schedule.StateExecuting); err != nil {
		return nil, err
	}
	ids := make([]string, len(col.Items))
	for i, item := range col.Items {
		ids[i] = item.ID()
	}
	agg := result.NewAggregator(ids)

	launcher, err := r.launcherFor()
	if err != nil {
		return nil, err
	}
	eng := engine.New(launcher,
		engine.WithLogger(r.logger),
		engine.WithHooks(engine.Hooks{
			OnItemStart: r.plugins.EmitItemStart,
			OnItemFinish: func(res *result.TestResult) {
				if r.cfg.GetStrictXFail() && res.Outcome == result.XPassed {
					res.Outcome = result.Failed
					res.Detail = "unexpectedly passed (strict xfail)"
				}
				r.plugins.EmitItemFinish(res)
			},
		}))
	if err := eng.Execute(ctx, plan, agg); err != nil {
		return nil, err
	}

	if err := machine.Advance(schedule.StateAggregating); err != nil {
		return nil, err
	}
	agg.Stop()
	report := &Report{
		Summary:    agg.Summary(),
		Results:    agg.Results(),
		Collected:  len(col.Items),
		Deselected: col.Deselected,
		ScanErrors: col.ScanErrors,
		Strategy:   plan.Strategy,
	}

	if r.fmtr != nil {
		for _, res := range report.Results {
			r.fmtr.FormatResult(res)
		}
		r.fmtr.FormatSummary(&report.Summary)
	}
	r.plugins.EmitRunFinish(&report.Summary)
	r.recordHistory(report)

	if err := machine.Advance(schedule.StateDone); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *Runner) scheduleConfig() schedule.Config {
	cfg := schedule.DefaultConfig()
	if r.cfg.WarmPoolSize > 0 {
		cfg.WarmPoolSize = r.cfg.WarmPoolSize
	}
	cfg.Workers = r.cfg.Workers
	cfg.DispatchRate = r.cfg.DispatchRate
	return cfg
}

// cachedScan wraps scanner.ScanFile with the discovery cache. Cache
// problems degrade to plain scanning, never to a failed run.
func (r *Runner) cachedScan() (func(string) (*scanner.Module, error), error) {
	store, err := cache.NewStore(r.cfg.CacheDir, r.cfg.GetNoCache())
	if err != nil {
		return nil, err
	}
	return func(path string) (*scanner.Module, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &scanner.ScanError{File: path, Message: err.Error()}
		}
		hash := cache.HashContent(data)
		if mod, ok := store.Lookup(path, hash); ok {
			return mod, nil
		}
		mod, err := scanner.ScanSource(path, data)
		if err != nil {
			return nil, err
		}
		if err := store.Save(path, hash, mod); err != nil {
			r.logger.Debug("cache write failed", "path", path, "err", err)
		}
		return mod, nil
	}, nil
}

// recordHistory persists the run, best effort.
func (r *Runner) recordHistory(report *Report) {
	if r.cfg.HistoryDB == "" {
		return
	}
	store, err := history.Open(r.cfg.HistoryDB)
	if err != nil {
		r.logger.Debug("history unavailable", "err", err)
		return
	}
	defer store.Close()
	if _, err := store.RecordRun(report.Summary, report.Results); err != nil {
		r.logger.Debug("history write failed", "err", err)
	}
}
