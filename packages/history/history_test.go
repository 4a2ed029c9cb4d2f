package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velocitest/velocitest/packages/result"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListRuns(t *testing.T) {
	store := openStore(t)

	sum := result.Summary{
		Counts: result.Counts{Total: 3, Passed: 2, Failed: 1},
		Wall:   250 * time.Millisecond,
	}
	results := []*result.TestResult{
		{TestID: "test_a.py::test_1", Outcome: result.Passed, Duration: 10 * time.Millisecond},
		{TestID: "test_a.py::test_2", Outcome: result.Passed, Duration: 20 * time.Millisecond},
		{TestID: "test_b.py::test_3", Outcome: result.Failed, Detail: "AssertionError"},
	}

	runID, err := store.RecordRun(sum, results)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, 3, runs[0].Counts.Total)
	assert.Equal(t, 1, runs[0].Counts.Failed)
	assert.Equal(t, 250*time.Millisecond, runs[0].Wall)
	assert.WithinDuration(t, time.Now(), runs[0].StartedAt, time.Minute)
}

func TestFailuresFor(t *testing.T) {
	store := openStore(t)

	runID, err := store.RecordRun(result.Summary{}, []*result.TestResult{
		{TestID: "test_a.py::test_ok", Outcome: result.Passed},
		{TestID: "test_a.py::test_bad", Outcome: result.Failed},
		{TestID: "test_b.py::test_broken", Outcome: result.Error},
		{TestID: "test_b.py::test_meh", Outcome: result.XFailed},
	})
	require.NoError(t, err)

	ids, err := store.FailuresFor(runID)
	require.NoError(t, err)
	assert.Equal(t, []string{"test_a.py::test_bad", "test_b.py::test_broken"}, ids)
}

func TestFailuresForUnknownRun(t *testing.T) {
	store := openStore(t)
	ids, err := store.FailuresFor("no-such-run")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLastRun(t *testing.T) {
	store := openStore(t)

	_, ok, err := store.LastRun()
	require.NoError(t, err)
	assert.False(t, ok, "empty history has no last run")

	_, err = store.RecordRun(result.Summary{Counts: result.Counts{Total: 1}}, nil)
	require.NoError(t, err)

	last, ok, err := store.LastRun()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, last.Counts.Total)
}

func TestListRunsLimit(t *testing.T) {
	store := openStore(t)
	for i := 0; i < 5; i++ {
		_, err := store.RecordRun(result.Summary{Counts: result.Counts{Total: i}}, nil)
		require.NoError(t, err)
	}

	runs, err := store.ListRuns(3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
