package result

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Counts holds per-outcome totals.
type Counts struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
	XFailed int
	XPassed int
	Errors  int
}

// Summary is the aggregate view handed to reporting.
type Summary struct {
	Counts   Counts
	Wall     time.Duration
	P50      time.Duration
	P95      time.Duration
	P99      time.Duration
	Slowest  time.Duration
}

// Aggregator merges results from any number of workers. Workers may finish
// in any order; Results always returns collection order, which keeps report
// output deterministic under parallel execution.
type Aggregator struct {
	mu      sync.Mutex
	order   []string
	results map[string]*TestResult
	hist    *hdrhistogram.Histogram
	started time.Time
	stopped time.Time
}

// NewAggregator creates an aggregator for the given collection-ordered IDs.
func NewAggregator(ids []string) *Aggregator {
	return &Aggregator{
		order:   append([]string(nil), ids...),
		results: make(map[string]*TestResult, len(ids)),
		// 1us..10min, 3 significant digits.
		hist:    hdrhistogram.New(1, 600_000_000, 3),
		started: time.Now(),
	}
}

// Record stores one result. A later result for the same ID wins, which is
// how worker-lost markers replace missing in-flight results.
func (a *Aggregator) Record(res *TestResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, seen := a.results[res.TestID]; !seen {
		a.order = appendIfMissing(a.order, res.TestID)
	}
	a.results[res.TestID] = res

	if res.Outcome != Skipped && res.Duration > 0 {
		us := res.Duration.Microseconds()
		if us < 1 {
			us = 1
		}
		if us > 600_000_000 {
			us = 600_000_000
		}
		_ = a.hist.RecordValue(us)
	}
}

func appendIfMissing(order []string, id string) []string {
	for _, o := range order {
		if o == id {
			return order
		}
	}
	return append(order, id)
}

// Stop freezes the wall clock for the summary.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = time.Now()
}

// Results returns recorded results in collection order. Items that were
// never recorded (e.g. run cancelled before dispatch) are absent.
func (a *Aggregator) Results() []*TestResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*TestResult, 0, len(a.results))
	for _, id := range a.order {
		if res, ok := a.results[id]; ok {
			out = append(out, res)
		}
	}
	return out
}

// Lookup returns the recorded result for an ID.
func (a *Aggregator) Lookup(id string) (*TestResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, ok := a.results[id]
	return res, ok
}

// Summary computes totals and latency percentiles.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	var c Counts
	for _, id := range a.order {
		res, ok := a.results[id]
		if !ok {
			continue
		}
		c.Total++
		switch res.Outcome {
		case Passed:
			c.Passed++
		case Failed:
			c.Failed++
		case Skipped:
			c.Skipped++
		case XFailed:
			c.XFailed++
		case XPassed:
			c.XPassed++
		case Error:
			c.Errors++
		}
	}

	end := a.stopped
	if end.IsZero() {
		end = time.Now()
	}
	return Summary{
		Counts:  c,
		Wall:    end.Sub(a.started),
		P50:     time.Duration(a.hist.ValueAtQuantile(50)) * time.Microsecond,
		P95:     time.Duration(a.hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:     time.Duration(a.hist.ValueAtQuantile(99)) * time.Microsecond,
		Slowest: time.Duration(a.hist.Max()) * time.Microsecond,
	}
}

// ExitCode maps the aggregate to the conventional process exit code:
// 0 all green, 1 at least one failure or error.
func (s Summary) ExitCode() int {
	if s.Counts.Failed > 0 || s.Counts.Errors > 0 {
		return 1
	}
	return 0
}
