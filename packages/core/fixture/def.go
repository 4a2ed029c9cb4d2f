// Package fixture models fixture definitions, scope-aware resolution and
// the instance cache that guarantees one live value per scope activation.
package fixture

import "github.com/velocitest/velocitest/packages/core/scanner"

// Scope is the lifetime of a fixture value.
type Scope int

const (
	ScopeFunction Scope = iota
	ScopeClass
	ScopeModule
	ScopeSession
)

func (s Scope) String() string {
	switch s {
	case ScopeFunction:
		return "function"
	case ScopeClass:
		return "class"
	case ScopeModule:
		return "module"
	case ScopeSession:
		return "session"
	default:
		return "unknown"
	}
}

// ParseScope maps the scope argument of a fixture decorator to a Scope.
// Unrecognized values fall back to function scope.
func ParseScope(s string) Scope {
	switch s {
	case "class":
		return ScopeClass
	case "module":
		return ScopeModule
	case "session", "package":
		return ScopeSession
	default:
		return ScopeFunction
	}
}

// FixtureDef describes one named fixture. Defs are owned by a Registry and
// may be shadowed by same-named defs in nearer registries.
type FixtureDef struct {
	Name        string
	Scope       Scope
	IsGenerator bool // yield-style, has teardown code after the yield
	IsAsync     bool
	Autouse     bool
	Depends     []string        // parameter names of the fixture function
	Params      []scanner.Value // non-nil for parametrized fixtures
	Module      string          // defining file
	Line        int
}
