// Package result defines test outcomes and the aggregator that merges
// worker results into one collection-ordered view.
package result

import "time"

// Outcome is the final disposition of one test item.
type Outcome int

const (
	Passed Outcome = iota
	Failed
	Skipped
	XFailed // expected failure that did fail
	XPassed // expected failure that unexpectedly passed
	Error   // infrastructure failure: collection, fixture setup, worker lost
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case XFailed:
		return "xfailed"
	case XPassed:
		return "xpassed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// IsFailure reports whether the outcome makes the run exit non-zero.
// XPassed under strict xfail is converted to Failed before aggregation.
func (o Outcome) IsFailure() bool {
	return o == Failed || o == Error
}

// TestResult is the outcome of one executed (or poisoned) test item.
type TestResult struct {
	TestID   string
	Outcome  Outcome
	Duration time.Duration
	Stdout   string
	Stderr   string
	Detail   string   // failure message, skip reason, or error cause
	Warnings []string // non-fatal problems, e.g. fixture teardown errors
}
