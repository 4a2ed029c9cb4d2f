package cmd

// Exit codes for the velocitest CLI
const (
	// ExitSuccess indicates all tests passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more tests failed or errored
	ExitTestFailure = 1

	// ExitFatal indicates the run could not start: unreadable root,
	// bad configuration, or an internal failure
	ExitFatal = 2

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
