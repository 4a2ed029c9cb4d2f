// Package scanner parses Python source files into a lightweight syntactic
// model for test discovery. It recognizes function and class definitions,
// decorators with literal arguments, async markers and yield statements,
// without ever importing or executing the scanned code.
package scanner
