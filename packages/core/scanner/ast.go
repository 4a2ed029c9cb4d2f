package scanner

import "fmt"

// Module is the syntactic model of one Python source file, containing only
// what discovery needs: definitions, decorators and nesting.
type Module struct {
	Path      string
	Functions []*FunctionDef // top-level functions
	Classes   []*ClassDef
}

// FunctionDef describes one function definition without its body.
type FunctionDef struct {
	Name       string
	IsAsync    bool
	HasYield   bool
	Decorators []*Decorator
	Params     []string
	Line       int
	Class      *ClassDef `json:"-"` // nil for top-level functions
}

// ClassDef describes one class definition.
type ClassDef struct {
	Name       string
	Bases      []string
	Decorators []*Decorator
	Methods    []*FunctionDef
	Line       int
}

// HasInit reports whether the class defines its own __init__.
func (c *ClassDef) HasInit() bool {
	for _, m := range c.Methods {
		if m.Name == "__init__" {
			return true
		}
	}
	return false
}

// Decorator is a decorator expression reduced to its dotted name and, when
// it is a call, its literal arguments.
type Decorator struct {
	Name   string // dotted, e.g. "pytest.mark.parametrize"
	IsCall bool
	Args   []Value
	Kwargs map[string]Value
	Line   int
}

// Tail returns the last component of the dotted decorator name.
func (d *Decorator) Tail() string {
	for i := len(d.Name) - 1; i >= 0; i-- {
		if d.Name[i] == '.' {
			return d.Name[i+1:]
		}
	}
	return d.Name
}

// ValueKind discriminates the literal argument kinds the scanner can
// extract from decorator calls.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueInt
	ValueFloat
	ValueBool
	ValueNone
	ValueName // bare identifier or dotted reference, kept as text
	ValueList
	ValueTuple
)

func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueBool:
		return "bool"
	case ValueNone:
		return "none"
	case ValueName:
		return "name"
	case ValueList:
		return "list"
	case ValueTuple:
		return "tuple"
	default:
		return "unknown"
	}
}

// Value is one literal argument extracted from a decorator call. Text holds
// the source form; Items is populated for lists and tuples.
type Value struct {
	Kind  ValueKind
	Text  string
	Bool  bool
	Items []Value
}

// Repr renders the canonical display form used for parametrize IDs: the
// string content for strings, the source text otherwise.
func (v Value) Repr() string {
	return v.Text
}

// ScanError reports a file that could not be parsed. It is localized to one
// file and never aborts scanning of siblings.
type ScanError struct {
	File    string
	Line    int
	Message string
}

func (e *ScanError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}
