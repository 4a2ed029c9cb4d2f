package output

import (
	"fmt"
	"time"

	"github.com/velocitest/velocitest/packages/result"
)

// Formatter receives run events as they happen. Results arrive in
// collection order regardless of execution order.
type Formatter interface {
	FormatHeader(version string)
	FormatStart(total int, strategy string)
	FormatResult(res *result.TestResult)
	FormatSummary(sum *result.Summary)
	FormatError(err error)
}

// Flushable is implemented by formatters that accumulate results and emit
// a single document at the end of the run.
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// New returns the formatter for a --format value.
func New(format string, opts ...ConsoleOption) (Formatter, error) {
	switch format {
	case "", "console":
		return NewConsoleFormatter(opts...), nil
	case "json":
		return NewJSONFormatter(), nil
	case "junit":
		return NewJUnitFormatter(), nil
	case "tap":
		return NewTAPFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}
