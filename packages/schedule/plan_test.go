package schedule

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velocitest/velocitest/packages/core/collect"
)

func makeItems(n int) []*collect.TestItem {
	items := make([]*collect.TestItem, n)
	for i := range items {
		items[i] = &collect.TestItem{
			ModulePath: fmt.Sprintf("test_mod_%d.py", i/10),
			Name:       fmt.Sprintf("test_%d", i),
			ParamIndex: -1,
		}
	}
	return items
}

func TestStrategyBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		count int
		want  Strategy
	}{
		{0, InProcess},
		{1, InProcess},
		{20, InProcess},
		{21, WarmWorkers},
		{100, WarmWorkers},
		{101, FullParallel},
		{5000, FullParallel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SelectStrategy(tt.count, cfg), "count=%d", tt.count)
	}
}

func TestWorkerCounts(t *testing.T) {
	cfg := DefaultConfig()

	p := Build(makeItems(5), cfg)
	assert.Equal(t, InProcess, p.Strategy)
	assert.Equal(t, 1, p.Workers)

	p = Build(makeItems(50), cfg)
	assert.Equal(t, WarmWorkers, p.Strategy)
	assert.Equal(t, 4, p.Workers)

	p = Build(makeItems(200), cfg)
	assert.Equal(t, FullParallel, p.Strategy)
	assert.GreaterOrEqual(t, p.Workers, 2)
}

func TestWorkerOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 7

	p := Build(makeItems(5), cfg)
	assert.Equal(t, InProcess, p.Strategy, "override changes workers, not strategy")
	assert.Equal(t, 7, p.Workers)
}

func TestGroupsByModuleInCollectionOrder(t *testing.T) {
	items := []*collect.TestItem{
		{ModulePath: "test_b.py", Name: "test_1", ParamIndex: -1},
		{ModulePath: "test_b.py", Name: "test_2", ParamIndex: -1},
		{ModulePath: "test_a.py", Name: "test_3", ParamIndex: -1},
		{ModulePath: "test_b.py", Name: "test_4", ParamIndex: -1},
	}

	p := Build(items, DefaultConfig())
	require.Len(t, p.Groups, 2)
	assert.Equal(t, "test_b.py", p.Groups[0].Module, "first-seen module comes first")
	assert.Len(t, p.Groups[0].Items, 3)
	assert.Equal(t, "test_a.py", p.Groups[1].Module)
	assert.Len(t, p.Groups[1].Items, 1)
}

func TestScopeIDSharing(t *testing.T) {
	items := []*collect.TestItem{
		{ModulePath: "test_a.py", ClassName: "TestX", Name: "test_1", ParamIndex: -1},
		{ModulePath: "test_a.py", ClassName: "TestX", Name: "test_2", ParamIndex: -1},
		{ModulePath: "test_a.py", ClassName: "TestY", Name: "test_3", ParamIndex: -1},
		{ModulePath: "test_a.py", Name: "test_4", ParamIndex: -1},
		{ModulePath: "test_b.py", Name: "test_5", ParamIndex: -1},
	}

	p := Build(items, DefaultConfig())
	require.Len(t, p.Items, 5)

	s := p.Items
	assert.Equal(t, s[0].Scopes.Module, s[1].Scopes.Module)
	assert.Equal(t, s[0].Scopes.Module, s[3].Scopes.Module)
	assert.NotEqual(t, s[0].Scopes.Module, s[4].Scopes.Module)

	assert.Equal(t, s[0].Scopes.Class, s[1].Scopes.Class)
	assert.NotEqual(t, s[0].Scopes.Class, s[2].Scopes.Class)

	assert.NotEqual(t, s[0].Scopes.Function, s[1].Scopes.Function)

	for _, pi := range s {
		assert.Equal(t, p.SessionID, pi.Scopes.Session)
	}

	// Classless items reuse the module ID as their class ID.
	assert.Equal(t, s[3].Scopes.Module, s[3].Scopes.Class)
}

func TestLedgerExpectations(t *testing.T) {
	items := []*collect.TestItem{
		{ModulePath: "test_a.py", ClassName: "TestX", Name: "test_1", ParamIndex: -1},
		{ModulePath: "test_a.py", Name: "test_2", ParamIndex: -1},
	}

	p := Build(items, DefaultConfig())

	// Module instance is expected by both items: one release keeps it.
	mod := p.Items[0].Scopes.Module
	assert.Empty(t, p.Ledger.Release(mod))
	assert.Empty(t, p.Ledger.Release(p.Items[0].Scopes.Class))
}

func TestMachineHappyPath(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, StateCollecting, m.State())

	require.NoError(t, m.Advance(StatePlanning))
	require.NoError(t, m.Advance(StateExecuting))
	require.NoError(t, m.Advance(StateAggregating))
	require.NoError(t, m.Advance(StateDone))
	assert.Equal(t, StateDone, m.State())
}

func TestMachineRejectsSkipsAndBackward(t *testing.T) {
	m := NewMachine()
	assert.Error(t, m.Advance(StateExecuting), "skipping planning")

	require.NoError(t, m.Advance(StatePlanning))
	assert.Error(t, m.Advance(StateCollecting), "moving backward")
	assert.Error(t, m.Advance(StatePlanning), "re-entering the current phase")
}

func TestMachineAbort(t *testing.T) {
	m := NewMachine()
	m.Abort()
	assert.Equal(t, StateAggregating, m.State())
	require.NoError(t, m.Advance(StateDone))

	// Abort after Done stays Done.
	m.Abort()
	assert.Equal(t, StateDone, m.State())
}
