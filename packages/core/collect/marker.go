package collect

import (
	"github.com/velocitest/velocitest/packages/core/scanner"
)

// MarkerKind discriminates the closed set of well-known marker variants.
// Anything outside it is carried as MarkCustom with its name and arguments,
// which keeps marker handling exhaustively matchable while still allowing
// arbitrary custom marker names.
type MarkerKind int

const (
	MarkSkip MarkerKind = iota
	MarkSkipIf
	MarkXFail
	MarkCustom
)

func (k MarkerKind) String() string {
	switch k {
	case MarkSkip:
		return "skip"
	case MarkSkipIf:
		return "skipif"
	case MarkXFail:
		return "xfail"
	case MarkCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Marker is one marker attached to a test item at collection time.
type Marker struct {
	Kind      MarkerKind
	Reason    string
	Condition string // SkipIf: source form of the condition expression
	Strict    bool   // XFail: unexpected pass becomes a failure
	Raises    string // XFail: expected exception kind, empty for any
	Name      string // Custom marker name
	Args      []scanner.Value
}

// markerFromDecorator converts a recognized mark decorator. The second
// return is false for decorators that are not markers (fixture,
// parametrize, or unrelated decorators).
func markerFromDecorator(dec *scanner.Decorator) (Marker, bool) {
	if !isMarkDecorator(dec) {
		return Marker{}, false
	}

	switch dec.Tail() {
	case "skip":
		return Marker{Kind: MarkSkip, Reason: stringArg(dec, 0, "reason")}, true
	case "skipif":
		m := Marker{Kind: MarkSkipIf, Reason: kwargString(dec, "reason")}
		if len(dec.Args) > 0 {
			m.Condition = dec.Args[0].Repr()
		}
		return m, true
	case "xfail":
		m := Marker{Kind: MarkXFail, Reason: stringArg(dec, 0, "reason")}
		if v, ok := dec.Kwargs["strict"]; ok {
			m.Strict = v.Bool
		}
		if v, ok := dec.Kwargs["raises"]; ok {
			m.Raises = v.Repr()
		}
		return m, true
	case "parametrize", "fixture", "usefixtures":
		return Marker{}, false
	default:
		return Marker{Kind: MarkCustom, Name: dec.Tail(), Args: dec.Args}, true
	}
}

// isMarkDecorator reports whether the decorator lives in a mark namespace
// (pytest.mark.*, velocitest.mark.*, mark.*) or is a bare well-known mark.
func isMarkDecorator(dec *scanner.Decorator) bool {
	name := dec.Name
	for i := 0; i+5 <= len(name); i++ {
		if name[i:i+5] == "mark." {
			return true
		}
	}
	switch name {
	case "skip", "skipif", "xfail":
		return true
	}
	return false
}

func stringArg(dec *scanner.Decorator, pos int, kw string) string {
	if len(dec.Args) > pos && dec.Args[pos].Kind == scanner.ValueString {
		return dec.Args[pos].Text
	}
	return kwargString(dec, kw)
}

func kwargString(dec *scanner.Decorator, kw string) string {
	if v, ok := dec.Kwargs[kw]; ok {
		return v.Text
	}
	return ""
}

// SkipMarker returns the effective skip marker under the precedence rule
// Skip > SkipIf. A plain Skip wins even when listed after a SkipIf.
func SkipMarker(markers []Marker) (Marker, bool) {
	var cond *Marker
	for i, m := range markers {
		switch m.Kind {
		case MarkSkip:
			return m, true
		case MarkSkipIf:
			if cond == nil {
				cond = &markers[i]
			}
		}
	}
	if cond != nil {
		return *cond, true
	}
	return Marker{}, false
}

// XFailMarker returns the first xfail marker. Skip markers take precedence;
// callers must consult SkipMarker first.
func XFailMarker(markers []Marker) (Marker, bool) {
	for _, m := range markers {
		if m.Kind == MarkXFail {
			return m, true
		}
	}
	return Marker{}, false
}

// MarkerNames returns the names usable in marker filter expressions.
func MarkerNames(markers []Marker) []string {
	names := make([]string, 0, len(markers))
	for _, m := range markers {
		if m.Kind == MarkCustom {
			names = append(names, m.Name)
		} else {
			names = append(names, m.Kind.String())
		}
	}
	return names
}
