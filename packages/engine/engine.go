// Package engine executes an execution plan against Python worker
// subprocesses. All three strategies share one dispatch loop; they differ
// in worker count and pre-warming, which the plan already encodes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/velocitest/velocitest/packages/core/collect"
	"github.com/velocitest/velocitest/packages/core/fixture"
	"github.com/velocitest/velocitest/packages/result"
	"github.com/velocitest/velocitest/packages/schedule"
)

// Hooks are the per-item lifecycle callbacks the runner wires to plugins.
type Hooks struct {
	OnItemStart  func(id string)
	OnItemFinish func(res *result.TestResult)
}

// Engine dispatches planned items to workers and records results.
type Engine struct {
	launcher Launcher
	logger   *log.Logger
	hooks    Hooks
}

type Option func(*Engine)

// WithLogger sets the diagnostic logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithHooks sets the lifecycle callbacks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

func New(launcher Launcher, opts ...Option) *Engine {
	e := &Engine{
		launcher: launcher,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// workUnit is one module group with its not-yet-disposed items.
type workUnit struct {
	group *schedule.Group
	items []*schedule.PlannedItem
}

// Execute runs the plan to completion. Every planned item ends with a
// recorded result: test failures, lost workers and failed launches all
// surface as per-item outcomes, not as a returned error.
func (e *Engine) Execute(ctx context.Context, plan *schedule.Plan, agg *result.Aggregator) error {
	e.logger.Debug("executing plan",
		"strategy", plan.Strategy.String(),
		"workers", plan.Workers,
		"items", len(plan.Items))

	units := e.dispose(plan, agg)
	if len(units) == 0 {
		return nil
	}

	var limiter *rate.Limiter
	if plan.Config.DispatchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(plan.Config.DispatchRate), 1)
	}

	queue := make(chan *workUnit)
	workersDone := make(chan struct{})
	go func() {
		defer close(queue)
		for _, u := range units {
			select {
			case queue <- u:
			case <-workersDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < plan.Workers; i++ {
		id := i
		g.Go(func() error {
			e.worker(gctx, id, plan, queue, limiter, agg)
			return nil
		})
	}
	_ = g.Wait()
	close(workersDone)

	// Anything still unrecorded was stranded: its worker died, every
	// worker failed to launch, or the run was cancelled.
	detail := "worker lost before execution"
	if ctx.Err() != nil {
		detail = "run cancelled before execution"
	}
	for _, pi := range plan.Items {
		if _, ok := agg.Lookup(pi.Item.ID()); !ok {
			e.record(agg, &result.TestResult{
				TestID:  pi.Item.ID(),
				Outcome: result.Error,
				Detail:  detail,
			})
		}
	}
	return nil
}

// dispose records items that never reach a worker (collection errors and
// unconditional skips) and returns the remaining work grouped by module.
func (e *Engine) dispose(plan *schedule.Plan, agg *result.Aggregator) []*workUnit {
	var units []*workUnit
	for _, group := range plan.Groups {
		unit := &workUnit{group: group}
		for _, pi := range group.Items {
			item := pi.Item

			if item.CollectErr != nil {
				e.record(agg, &result.TestResult{
					TestID:  item.ID(),
					Outcome: result.Error,
					Detail:  item.CollectErr.Error(),
				})
				_ = e.releaseScopes(plan, pi, nil, nil)
				continue
			}

			if m, ok := collect.SkipMarker(item.Markers); ok && m.Kind == collect.MarkSkip {
				e.record(agg, &result.TestResult{
					TestID:  item.ID(),
					Outcome: result.Skipped,
					Detail:  m.Reason,
				})
				_ = e.releaseScopes(plan, pi, nil, nil)
				continue
			}

			unit.items = append(unit.items, pi)
		}
		if len(unit.items) > 0 {
			units = append(units, unit)
		}
	}
	return units
}

// worker drains the queue with one session. Session-scoped fixtures are
// activated once per worker process, not once per run: each worker mints
// its own session instance at startup and tears it down at shutdown. A
// lost worker marks only its in-flight and current-group items; queued
// groups stay schedulable for the surviving workers.
func (e *Engine) worker(ctx context.Context, id int, plan *schedule.Plan,
	queue <-chan *workUnit, limiter *rate.Limiter, agg *result.Aggregator) {

	sess, err := e.launcher.Launch(ctx, id)
	if err != nil {
		e.logger.Error("worker launch failed", "worker", id, "err", err)
		return
	}
	defer func() {
		for _, f := range sess.Close() {
			e.logger.Warn("fixture teardown failed at shutdown", "key", f.Key, "detail", firstLine(f.Detail))
		}
	}()

	if err := sess.Warm(ctx); err != nil {
		e.logger.Error("worker warm-up failed", "worker", id, "err", err)
		return
	}

	workerSession := fixture.NewScopeID()

	for unit := range queue {
		if err := e.runUnit(ctx, sess, workerSession, plan, unit, limiter, agg); err != nil {
			if !errors.Is(err, context.Canceled) {
				e.logger.Error("worker lost", "worker", id, "module", unit.group.Module, "err", err)
			}
			return
		}
	}
}

func (e *Engine) runUnit(ctx context.Context, sess Session, workerSession fixture.ScopeID,
	plan *schedule.Plan, unit *workUnit, limiter *rate.Limiter, agg *result.Aggregator) error {

	for i, pi := range unit.items {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		item := pi.Item
		if e.hooks.OnItemStart != nil {
			e.hooks.OnItemStart(item.ID())
		}

		scopes := pi.Scopes
		scopes.Session = workerSession
		req := buildRunRequest(item, scopes)

		resp, err := sess.Run(ctx, req)
		if err != nil {
			detail := "run cancelled"
			if ctx.Err() == nil {
				detail = fmt.Sprintf("worker lost: %v", err)
			}
			// The in-flight item and the rest of this group die with the
			// worker; everything already recorded is preserved.
			for _, rest := range unit.items[i:] {
				e.record(agg, &result.TestResult{
					TestID:  rest.Item.ID(),
					Outcome: result.Error,
					Detail:  detail,
				})
			}
			return err
		}

		for _, key := range resp.FixturesReady {
			if k, ok := parseScopedKey(req, key); ok {
				plan.Ledger.MarkLive(k)
			}
		}

		res := &result.TestResult{
			TestID:   item.ID(),
			Outcome:  outcomeFromStatus(resp.Status),
			Duration: time.Duration(resp.DurationMs * float64(time.Millisecond)),
			Stdout:   resp.Stdout,
			Stderr:   resp.Stderr,
			Detail:   resp.Detail,
		}
		if res.Outcome == result.XPassed {
			if m, ok := collect.XFailMarker(item.Markers); ok && m.Strict {
				res.Outcome = result.Failed
				res.Detail = "unexpectedly passed (strict xfail)"
			}
		}

		if err := e.releaseScopes(plan, pi, sess, res); err != nil {
			e.record(agg, res)
			return err
		}
		e.record(agg, res)
	}
	return nil
}

// releaseScopes drops the item's class and module refcounts and, when an
// instance count hits zero, tears its fixtures down in the owning worker.
// Teardown failures become warnings on the triggering item's result.
func (e *Engine) releaseScopes(plan *schedule.Plan, pi *schedule.PlannedItem,
	sess Session, res *result.TestResult) error {

	var keys []fixture.Key
	if pi.Item.ClassName != "" {
		keys = append(keys, plan.Ledger.Release(pi.Scopes.Class)...)
	}
	keys = append(keys, plan.Ledger.Release(pi.Scopes.Module)...)
	if len(keys) == 0 || sess == nil {
		return nil
	}

	strs := make([]string, len(keys))
	for i, k := range keys {
		strs[i] = k.String()
	}
	failures, err := sess.Teardown(context.Background(), strs)
	for _, f := range failures {
		warning := fmt.Sprintf("teardown of %s failed: %s", f.Key, firstLine(f.Detail))
		if res != nil {
			res.Warnings = append(res.Warnings, warning)
		}
		e.logger.Warn("fixture teardown failed", "key", f.Key)
	}
	return err
}

func (e *Engine) record(agg *result.Aggregator, res *result.TestResult) {
	agg.Record(res)
	if e.hooks.OnItemFinish != nil {
		e.hooks.OnItemFinish(res)
	}
}

// parseScopedKey maps a worker-reported cache key back to the typed key of
// a module- or class-scoped fixture in the request. Function- and
// session-scoped keys are managed worker-side and are not tracked.
func parseScopedKey(req *RunRequest, key string) (fixture.Key, bool) {
	for _, entry := range req.Fixtures {
		if entry.Key != key {
			continue
		}
		if entry.Scope != "module" && entry.Scope != "class" {
			return fixture.Key{}, false
		}
		scope := fixture.ScopeModule
		if entry.Scope == "class" {
			scope = fixture.ScopeClass
		}
		// key format: name@scope:instance
		idx := strings.LastIndex(key, ":")
		if idx < 0 {
			return fixture.Key{}, false
		}
		return fixture.Key{Name: entry.Name, Scope: scope, Instance: fixture.ScopeID(key[idx+1:])}, true
	}
	return fixture.Key{}, false
}

func outcomeFromStatus(status string) result.Outcome {
	switch status {
	case "passed":
		return result.Passed
	case "failed":
		return result.Failed
	case "skipped":
		return result.Skipped
	case "xfailed":
		return result.XFailed
	case "xpassed":
		return result.XPassed
	default:
		return result.Error
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
