// Package cmd implements the velocitest CLI commands using Cobra.
//
// Available commands:
//   - run: Discover and execute tests
//   - list: Display collected tests without running them
//   - cache: Inspect or clear the discovery cache
//   - history: Show recorded runs
//   - version: Show velocitest version information
//
// The CLI supports flags for marker filtering, output formatting, worker
// control, and watch mode for development workflows.
package cmd
