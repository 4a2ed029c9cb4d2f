// Package schedule selects an execution strategy from the collected item
// count and arranges items into worker-friendly groups that keep shared
// fixture scope instances together.
package schedule

import (
	"runtime"

	"github.com/velocitest/velocitest/packages/core/collect"
	"github.com/velocitest/velocitest/packages/core/fixture"
)

// Strategy is the execution engine chosen for a run.
type Strategy int

const (
	InProcess Strategy = iota
	WarmWorkers
	FullParallel
)

func (s Strategy) String() string {
	switch s {
	case InProcess:
		return "in-process"
	case WarmWorkers:
		return "warm-workers"
	case FullParallel:
		return "full-parallel"
	default:
		return "unknown"
	}
}

// Config holds the strategy selection constants. The thresholds are design
// defaults, not hard physics; they stay configurable but the boundary
// behavior at the defaults is exact and tested.
type Config struct {
	InProcessMax   int     // inclusive upper bound for InProcess
	WarmWorkersMax int     // inclusive upper bound for WarmWorkers
	WarmPoolSize   int     // fixed pool size for WarmWorkers
	Workers        int     // explicit worker count override, 0 = auto
	DispatchRate   float64 // max dispatches per second, 0 = unlimited
}

// DefaultConfig returns the stock thresholds: up to 20 items run
// in-process, 21-100 on the warm pool, larger suites fully parallel.
func DefaultConfig() Config {
	return Config{
		InProcessMax:   20,
		WarmWorkersMax: 100,
		WarmPoolSize:   4,
	}
}

// SelectStrategy maps a collected item count to a strategy.
func SelectStrategy(count int, cfg Config) Strategy {
	switch {
	case count <= cfg.InProcessMax:
		return InProcess
	case count <= cfg.WarmWorkersMax:
		return WarmWorkers
	default:
		return FullParallel
	}
}

// PlannedItem pairs a test item with the scope instance IDs in effect for
// it. Items in the same module share a module ID; items in the same class
// share a class ID; every item gets its own function ID.
type PlannedItem struct {
	Item   *collect.TestItem
	Scopes fixture.ScopeSet
}

// Group is the unit of distribution to a worker: all items of one module,
// in collection order. Keeping a module on one worker means its module- and
// class-scoped fixture instances are set up once and torn down once.
type Group struct {
	Module string
	Items  []*PlannedItem
}

// Plan is the immutable execution plan for one run.
type Plan struct {
	Strategy  Strategy
	Workers   int
	SessionID fixture.ScopeID
	Items     []*PlannedItem // collection order
	Groups    []*Group       // module order as collected
	Ledger    *fixture.Ledger
	Config    Config
}

// Build constructs the plan: strategy from item count, worker count from
// strategy, grouping by module then class, scope IDs minted per activation
// and registered with the ledger so teardown can follow the last dependent
// item.
func Build(items []*collect.TestItem, cfg Config) *Plan {
	plan := &Plan{
		Strategy:  SelectStrategy(len(items), cfg),
		SessionID: fixture.NewScopeID(),
		Ledger:    fixture.NewLedger(),
		Config:    cfg,
	}
	plan.Workers = workerCount(plan.Strategy, cfg)

	moduleIDs := make(map[string]fixture.ScopeID)
	classIDs := make(map[string]fixture.ScopeID)
	groups := make(map[string]*Group)
	var groupOrder []string

	for _, item := range items {
		modKey := item.ModulePath
		modID, ok := moduleIDs[modKey]
		if !ok {
			modID = fixture.NewScopeID()
			moduleIDs[modKey] = modID
		}

		clsID := modID
		if item.ClassName != "" {
			clsKey := modKey + "::" + item.ClassName
			clsID, ok = classIDs[clsKey]
			if !ok {
				clsID = fixture.NewScopeID()
				classIDs[clsKey] = clsID
			}
		}

		pi := &PlannedItem{
			Item: item,
			Scopes: fixture.ScopeSet{
				Session:  plan.SessionID,
				Module:   modID,
				Class:    clsID,
				Function: fixture.NewScopeID(),
			},
		}
		plan.Items = append(plan.Items, pi)

		// Function-scoped teardown happens inline in the worker right
		// after the test; session-scoped teardown happens at worker
		// shutdown. Only module and class instances need refcounts.
		plan.Ledger.Expect(pi.Scopes.Module)
		if item.ClassName != "" {
			plan.Ledger.Expect(pi.Scopes.Class)
		}

		g, ok := groups[modKey]
		if !ok {
			g = &Group{Module: modKey}
			groups[modKey] = g
			groupOrder = append(groupOrder, modKey)
		}
		g.Items = append(g.Items, pi)
	}

	for _, key := range groupOrder {
		plan.Groups = append(plan.Groups, groups[key])
	}
	return plan
}

func workerCount(s Strategy, cfg Config) int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	switch s {
	case InProcess:
		return 1
	case WarmWorkers:
		if cfg.WarmPoolSize > 0 {
			return cfg.WarmPoolSize
		}
		return 4
	default:
		n := runtime.GOMAXPROCS(0)
		if n < 2 {
			n = 2
		}
		return n
	}
}
