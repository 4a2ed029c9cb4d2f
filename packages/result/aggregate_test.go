package result

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorCollectionOrder(t *testing.T) {
	agg := NewAggregator([]string{"a", "b", "c"})

	// Workers finish out of order.
	agg.Record(&TestResult{TestID: "c", Outcome: Passed, Duration: time.Millisecond})
	agg.Record(&TestResult{TestID: "a", Outcome: Failed, Duration: time.Millisecond})
	agg.Record(&TestResult{TestID: "b", Outcome: Passed, Duration: time.Millisecond})

	results := agg.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].TestID)
	assert.Equal(t, "b", results[1].TestID)
	assert.Equal(t, "c", results[2].TestID)
}

func TestAggregatorLaterResultWins(t *testing.T) {
	agg := NewAggregator([]string{"a"})
	agg.Record(&TestResult{TestID: "a", Outcome: Passed})
	agg.Record(&TestResult{TestID: "a", Outcome: Error, Detail: "worker lost"})

	res, ok := agg.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, Error, res.Outcome)
	assert.Equal(t, "worker lost", res.Detail)

	sum := agg.Summary()
	assert.Equal(t, 1, sum.Counts.Total)
	assert.Equal(t, 1, sum.Counts.Errors)
	assert.Equal(t, 0, sum.Counts.Passed)
}

func TestAggregatorUnknownIDAppended(t *testing.T) {
	agg := NewAggregator([]string{"a"})
	agg.Record(&TestResult{TestID: "z", Outcome: Passed})

	results := agg.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "z", results[0].TestID)
}

func TestAggregatorUnrecordedAbsent(t *testing.T) {
	agg := NewAggregator([]string{"a", "b"})
	agg.Record(&TestResult{TestID: "a", Outcome: Passed})

	assert.Len(t, agg.Results(), 1)
	assert.Equal(t, 1, agg.Summary().Counts.Total)
}

func TestSummaryCounts(t *testing.T) {
	agg := NewAggregator([]string{"a", "b", "c", "d", "e", "f"})
	agg.Record(&TestResult{TestID: "a", Outcome: Passed, Duration: time.Millisecond})
	agg.Record(&TestResult{TestID: "b", Outcome: Failed, Duration: time.Millisecond})
	agg.Record(&TestResult{TestID: "c", Outcome: Skipped})
	agg.Record(&TestResult{TestID: "d", Outcome: XFailed, Duration: time.Millisecond})
	agg.Record(&TestResult{TestID: "e", Outcome: XPassed, Duration: time.Millisecond})
	agg.Record(&TestResult{TestID: "f", Outcome: Error})
	agg.Stop()

	sum := agg.Summary()
	assert.Equal(t, Counts{Total: 6, Passed: 1, Failed: 1, Skipped: 1, XFailed: 1, XPassed: 1, Errors: 1}, sum.Counts)
	assert.GreaterOrEqual(t, sum.Wall, time.Duration(0))
}

func TestSummaryPercentiles(t *testing.T) {
	agg := NewAggregator(nil)
	for i := 1; i <= 100; i++ {
		agg.Record(&TestResult{
			TestID:   fmt.Sprintf("test_%d", i),
			Outcome:  Passed,
			Duration: time.Duration(i) * time.Millisecond,
		})
	}
	agg.Stop()

	sum := agg.Summary()
	assert.InDelta(t, 50*time.Millisecond, sum.P50, float64(2*time.Millisecond))
	assert.InDelta(t, 95*time.Millisecond, sum.P95, float64(2*time.Millisecond))
	assert.InDelta(t, 100*time.Millisecond, sum.Slowest, float64(2*time.Millisecond))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, Summary{Counts: Counts{Passed: 3, Skipped: 1, XFailed: 1}}.ExitCode())
	assert.Equal(t, 1, Summary{Counts: Counts{Passed: 3, Failed: 1}}.ExitCode())
	assert.Equal(t, 1, Summary{Counts: Counts{Errors: 1}}.ExitCode())
	assert.Equal(t, 0, Summary{Counts: Counts{XPassed: 1}}.ExitCode())
}

func TestOutcomeIsFailure(t *testing.T) {
	assert.True(t, Failed.IsFailure())
	assert.True(t, Error.IsFailure())
	assert.False(t, Passed.IsFailure())
	assert.False(t, Skipped.IsFailure())
	assert.False(t, XFailed.IsFailure())
	assert.False(t, XPassed.IsFailure())
}
