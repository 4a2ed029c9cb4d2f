// Package collect turns scanned Python modules into concrete test items.
// It applies the pytest-style naming conventions, expands parametrize
// decorators into cartesian products, attaches markers with their
// precedence rules, and merges the hierarchical conftest fixture
// registries so each item carries a resolved fixture plan.
package collect
