package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/velocitest/velocitest/packages/result"
)

// TAPFormatter formats test results in TAP (Test Anything Protocol) format
type TAPFormatter struct {
	writer    io.Writer
	testCount int
	results   []tapResult
}

type tapResult struct {
	number  int
	name    string
	outcome result.Outcome
	detail  string
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{
		writer:  os.Stdout,
		results: make([]tapResult, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

func (f *TAPFormatter) FormatHeader(version string) {
	// Header is written in Flush
}

func (f *TAPFormatter) FormatStart(total int, strategy string) {}

func (f *TAPFormatter) FormatResult(res *result.TestResult) {
	f.testCount++
	f.results = append(f.results, tapResult{
		number:  f.testCount,
		name:    res.TestID,
		outcome: res.Outcome,
		detail:  res.Detail,
	})
}

func (f *TAPFormatter) FormatSummary(sum *result.Summary) {}

func (f *TAPFormatter) FormatError(err error) {
	// Errors are included in individual test results
}

// Flush writes the accumulated TAP output
func (f *TAPFormatter) Flush(totalDuration time.Duration) error {
	fmt.Fprintf(f.writer, "TAP version 13\n")
	fmt.Fprintf(f.writer, "1..%d\n", f.testCount)

	for _, r := range f.results {
		switch r.outcome {
		case result.Skipped:
			reason := r.detail
			if reason == "" {
				reason = "SKIP"
			}
			fmt.Fprintf(f.writer, "ok %d - %s # SKIP %s\n", r.number, r.name, firstLine(reason))
		case result.XFailed:
			fmt.Fprintf(f.writer, "not ok %d - %s # TODO known failure\n", r.number, r.name)
		case result.XPassed:
			fmt.Fprintf(f.writer, "ok %d - %s # TODO unexpectedly passed\n", r.number, r.name)
		case result.Passed:
			fmt.Fprintf(f.writer, "ok %d - %s\n", r.number, r.name)
		default:
			fmt.Fprintf(f.writer, "not ok %d - %s\n", r.number, r.name)
			if r.detail != "" {
				fmt.Fprintf(f.writer, "  ---\n")
				fmt.Fprintf(f.writer, "  message: %s\n", escapeYAML(firstLine(r.detail)))
				if r.outcome == result.Error {
					fmt.Fprintf(f.writer, "  severity: error\n")
				}
				fmt.Fprintf(f.writer, "  ...\n")
			}
		}
	}

	// Add final newline for proper TAP output
	fmt.Fprintln(f.writer)

	return nil
}

func escapeYAML(s string) string {
	// Simple YAML escaping - wrap in quotes if contains special chars
	if strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`") {
		s = strings.ReplaceAll(s, "\"", "\\\"")
		return "\"" + s + "\""
	}
	return s
}
