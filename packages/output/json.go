package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/velocitest/velocitest/packages/result"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary  JSONSummary `json:"summary"`
	Tests    []JSONTest  `json:"tests"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

// JSONSummary represents the test summary
type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	XFailed int `json:"xfailed,omitempty"`
	XPassed int `json:"xpassed,omitempty"`
	Errors  int `json:"errors,omitempty"`
}

// JSONTest represents a single test result
type JSONTest struct {
	TestID   string   `json:"test_id"`
	Outcome  string   `json:"outcome"`
	Passed   bool     `json:"passed"`
	Duration float64  `json:"duration"`
	Output   string   `json:"output,omitempty"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// JSONFormatter formats test results as JSON
type JSONFormatter struct {
	writer  io.Writer
	results []JSONTest
	summary JSONSummary
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:  os.Stdout,
		results: make([]JSONTest, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

func (f *JSONFormatter) FormatStart(total int, strategy string) {}

func (f *JSONFormatter) FormatResult(res *result.TestResult) {
	test := JSONTest{
		TestID:   res.TestID,
		Outcome:  res.Outcome.String(),
		Passed:   !res.Outcome.IsFailure(),
		Duration: float64(res.Duration.Milliseconds()),
		Output:   res.Stdout,
		Warnings: res.Warnings,
	}
	if res.Outcome.IsFailure() {
		test.Error = res.Detail
	}
	f.results = append(f.results, test)
}

func (f *JSONFormatter) FormatSummary(sum *result.Summary) {
	f.summary = JSONSummary{
		Total:   sum.Counts.Total,
		Passed:  sum.Counts.Passed,
		Failed:  sum.Counts.Failed,
		Skipped: sum.Counts.Skipped,
		XFailed: sum.Counts.XFailed,
		XPassed: sum.Counts.XPassed,
		Errors:  sum.Counts.Errors,
	}
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in individual test results
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	output := JSONOutput{
		Summary:  f.summary,
		Tests:    f.results,
		Duration: float64(totalDuration.Milliseconds()),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
