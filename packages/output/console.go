package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/velocitest/velocitest/packages/result"
)

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("velocitest"), version)
}

func (f *ConsoleFormatter) FormatStart(total int, strategy string) {
	fmt.Fprintf(f.writer, "collected %d items, strategy: %s\n\n", total, strategy)
}

func (f *ConsoleFormatter) FormatResult(res *result.TestResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	switch res.Outcome {
	case result.Skipped:
		fmt.Fprintf(f.writer, "  %s %s", yellow("-"), res.TestID)
		if res.Detail != "" {
			fmt.Fprintf(f.writer, " (%s)", firstLine(res.Detail))
		}
		fmt.Fprintf(f.writer, "\n")
	case result.Error:
		fmt.Fprintf(f.writer, "  %s %s %s\n", red("E"), res.TestID, red("(error)"))
		if res.Detail != "" {
			f.indented(res.Detail)
		}
	case result.Failed:
		fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), res.TestID,
			cyan(fmt.Sprintf("(%dms)", res.Duration.Milliseconds())))
		if res.Detail != "" {
			f.indented(res.Detail)
		}
		if f.verbose && res.Stdout != "" {
			fmt.Fprintf(f.writer, "    captured stdout:\n")
			f.indented(res.Stdout)
		}
	case result.XFailed:
		fmt.Fprintf(f.writer, "  %s %s", yellow("x"), res.TestID)
		if res.Detail != "" {
			fmt.Fprintf(f.writer, " (%s)", firstLine(res.Detail))
		}
		fmt.Fprintf(f.writer, "\n")
	case result.XPassed:
		fmt.Fprintf(f.writer, "  %s %s %s\n", yellow("X"), res.TestID, yellow("(unexpectedly passed)"))
	default:
		fmt.Fprintf(f.writer, "  %s %s %s\n", green("✓"), res.TestID,
			cyan(fmt.Sprintf("(%dms)", res.Duration.Milliseconds())))
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(f.writer, "    %s %s\n", yellow("warning:"), w)
	}
}

func (f *ConsoleFormatter) FormatSummary(sum *result.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(f.writer, "\nTests: ")
	var parts []string
	if sum.Counts.Passed > 0 {
		parts = append(parts, green(fmt.Sprintf("%d passed", sum.Counts.Passed)))
	}
	if sum.Counts.Failed > 0 {
		parts = append(parts, red(fmt.Sprintf("%d failed", sum.Counts.Failed)))
	}
	if sum.Counts.Errors > 0 {
		parts = append(parts, red(fmt.Sprintf("%d errors", sum.Counts.Errors)))
	}
	if sum.Counts.Skipped > 0 {
		parts = append(parts, yellow(fmt.Sprintf("%d skipped", sum.Counts.Skipped)))
	}
	if sum.Counts.XFailed > 0 {
		parts = append(parts, yellow(fmt.Sprintf("%d xfailed", sum.Counts.XFailed)))
	}
	if sum.Counts.XPassed > 0 {
		parts = append(parts, yellow(fmt.Sprintf("%d xpassed", sum.Counts.XPassed)))
	}
	parts = append(parts, fmt.Sprintf("%d total", sum.Counts.Total))
	fmt.Fprintf(f.writer, "%s\n", strings.Join(parts, ", "))
	fmt.Fprintf(f.writer, "Time:  %dms\n", sum.Wall.Milliseconds())
	if f.verbose {
		fmt.Fprintf(f.writer, "Durations: p50=%dms p95=%dms p99=%dms slowest=%dms\n",
			sum.P50.Milliseconds(), sum.P95.Milliseconds(),
			sum.P99.Milliseconds(), sum.Slowest.Milliseconds())
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) indented(s string) {
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		fmt.Fprintf(f.writer, "      %s\n", line)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
