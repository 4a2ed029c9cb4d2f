package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/velocitest/velocitest/packages/result"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite groups the test cases of one test module
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase represents a single test case
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

// JUnitFailure represents a test failure
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitError represents a test error
type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitSkipped represents a skipped test
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter formats test results as JUnit XML
type JUnitFormatter struct {
	writer     io.Writer
	suites     map[string]*JUnitTestSuite
	suiteOrder []string
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer: os.Stdout,
		suites: make(map[string]*JUnitTestSuite),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) FormatHeader(version string) {
	// No header needed for JUnit XML
}

func (f *JUnitFormatter) FormatStart(total int, strategy string) {}

func (f *JUnitFormatter) FormatResult(res *result.TestResult) {
	module, class, name := splitTestID(res.TestID)

	suite, ok := f.suites[module]
	if !ok {
		suite = &JUnitTestSuite{Name: module}
		f.suites[module] = suite
		f.suiteOrder = append(f.suiteOrder, module)
	}

	className := module
	if class != "" {
		className = module + "." + class
	}
	tc := JUnitTestCase{
		Name:      name,
		ClassName: className,
		Time:      res.Duration.Seconds(),
	}

	switch res.Outcome {
	case result.Skipped, result.XFailed:
		suite.Skipped++
		tc.Skipped = &JUnitSkipped{Message: res.Detail}
	case result.Error:
		suite.Errors++
		tc.Error = &JUnitError{
			Message: firstLine(res.Detail),
			Type:    "Error",
			Content: res.Detail,
		}
	case result.Failed:
		suite.Failures++
		tc.Failure = &JUnitFailure{
			Message: firstLine(res.Detail),
			Type:    "Failure",
			Content: res.Detail,
		}
	}

	suite.Tests++
	suite.Time += res.Duration.Seconds()
	suite.TestCases = append(suite.TestCases, tc)
}

func (f *JUnitFormatter) FormatSummary(sum *result.Summary) {}

func (f *JUnitFormatter) FormatError(err error) {
	// Errors are included in individual test cases
}

// Flush writes the accumulated JUnit XML output
func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	suites := JUnitTestSuites{
		Name:      "velocitest",
		Time:      totalDuration.Seconds(),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	for _, name := range f.suiteOrder {
		suite := f.suites[name]
		suites.Tests += suite.Tests
		suites.Failures += suite.Failures
		suites.Errors += suite.Errors
		suites.Skipped += suite.Skipped
		suites.TestSuites = append(suites.TestSuites, *suite)
	}

	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	return encoder.Encode(suites)
}

// splitTestID unpacks "path::Class::name[params]" into its parts. The class
// segment is optional.
func splitTestID(id string) (module, class, name string) {
	parts := strings.Split(id, "::")
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], "", parts[1]
	default:
		return id, "", id
	}
}
