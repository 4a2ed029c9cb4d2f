// Package runner drives a full test run: discovery, fixture resolution,
// planning, worker execution and aggregation, wired together behind one
// Run call. The CLI is a thin wrapper around this package.
package runner
