package collect

import (
	"strings"

	"github.com/velocitest/velocitest/packages/core/fixture"
	"github.com/velocitest/velocitest/packages/core/scanner"
)

// Param is one parameter binding produced by parametrize expansion.
type Param struct {
	Name  string
	Value scanner.Value
}

// FixtureParam records the chosen parameter of a parametrized fixture for
// one item (indirect parametrization). The value is delivered to the
// fixture body through its request context.
type FixtureParam struct {
	Fixture string
	Index   int
	Value   scanner.Value
}

// TestItem is one concrete, executable test case: a function, possibly one
// specific parametrize combination. Items are immutable once collected.
type TestItem struct {
	ModulePath    string
	ClassName     string // empty for module-level functions
	Name          string
	ParamID       string // empty when not parametrized
	ParamIndex    int    // -1 when not parametrized
	Params        []Param
	FixtureParams []FixtureParam
	IsAsync       bool
	Markers       []Marker
	Fixtures      []string // declared fixture names, signature order
	Line          int

	// Plan is the resolved fixture setup order for this item. Nil when
	// resolution failed; CollectErr carries the cause.
	Plan *fixture.Plan

	// CollectErr poisons the item: it is reported as an Error outcome
	// without ever executing, rather than being silently dropped.
	CollectErr error
}

// ID returns the canonical test identifier, e.g.
// "tests/test_user.py::TestLogin::test_ok[admin-1]".
func (it *TestItem) ID() string {
	var b strings.Builder
	b.WriteString(it.ModulePath)
	b.WriteString("::")
	if it.ClassName != "" {
		b.WriteString(it.ClassName)
		b.WriteString("::")
	}
	b.WriteString(it.Name)
	if it.ParamID != "" {
		b.WriteString("[")
		b.WriteString(it.ParamID)
		b.WriteString("]")
	}
	return b.String()
}

// QualifiedName is the ID without the module path component.
func (it *TestItem) QualifiedName() string {
	if it.ClassName != "" {
		return it.ClassName + "::" + it.Name
	}
	return it.Name
}

// CollectionError is a per-item or per-fixture collection failure, e.g. a
// parametrize arity mismatch or a fixture cycle. It is localized: sibling
// items keep collecting.
type CollectionError struct {
	ItemID  string
	File    string
	Line    int
	Message string
}

func (e *CollectionError) Error() string {
	if e.ItemID != "" {
		return e.ItemID + ": " + e.Message
	}
	return e.File + ": " + e.Message
}
