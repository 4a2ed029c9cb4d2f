package collect

import (
	"fmt"
	"strings"

	"github.com/velocitest/velocitest/packages/core/scanner"
)

// paramSet is one parametrize decorator in normalized form.
type paramSet struct {
	names []string
	rows  [][]scanner.Value
	ids   []string // caller-supplied IDs, empty for defaults
	line  int
	err   string // set when the decorator itself is malformed
}

// combo is one concrete parameter combination after cartesian expansion.
type combo struct {
	params  []Param
	idParts []string
	err     string // arity mismatch for one row poisons just that combo
}

func isParametrize(dec *scanner.Decorator) bool {
	return dec.Tail() == "parametrize" && dec.IsCall
}

// normalizeParametrize turns a parametrize decorator into a paramSet.
func normalizeParametrize(dec *scanner.Decorator) paramSet {
	set := paramSet{line: dec.Line}

	if len(dec.Args) < 2 {
		set.err = "parametrize requires argument names and a value list"
		return set
	}

	switch arg := dec.Args[0]; arg.Kind {
	case scanner.ValueString:
		for _, n := range strings.Split(arg.Text, ",") {
			if n = strings.TrimSpace(n); n != "" {
				set.names = append(set.names, n)
			}
		}
	case scanner.ValueList, scanner.ValueTuple:
		for _, item := range arg.Items {
			set.names = append(set.names, item.Text)
		}
	default:
		set.err = "parametrize argument names must be a string or sequence of strings"
		return set
	}
	if len(set.names) == 0 {
		set.err = "parametrize argument names are empty"
		return set
	}

	values := dec.Args[1]
	if values.Kind != scanner.ValueList && values.Kind != scanner.ValueTuple {
		set.err = "parametrize values must be a list or tuple"
		return set
	}
	for _, row := range values.Items {
		if len(set.names) == 1 {
			set.rows = append(set.rows, []scanner.Value{row})
			continue
		}
		if row.Kind == scanner.ValueList || row.Kind == scanner.ValueTuple {
			set.rows = append(set.rows, row.Items)
		} else {
			// Scalar row against multiple names; kept so the arity error
			// surfaces on the expanded item, not as a crash here.
			set.rows = append(set.rows, []scanner.Value{row})
		}
	}

	if ids, ok := dec.Kwargs["ids"]; ok && (ids.Kind == scanner.ValueList || ids.Kind == scanner.ValueTuple) {
		for _, id := range ids.Items {
			set.ids = append(set.ids, id.Text)
		}
	}
	return set
}

// rowID returns the display ID of one row: the caller-supplied ID when
// given, otherwise value reprs joined by "-".
func (s *paramSet) rowID(i int) string {
	if i < len(s.ids) {
		return s.ids[i]
	}
	parts := make([]string, len(s.rows[i]))
	for j, v := range s.rows[i] {
		parts[j] = v.Repr()
	}
	return strings.Join(parts, "-")
}

// expandSets computes the cartesian product of stacked parametrize sets.
// Sets are given outermost first, and the outermost set varies slowest. An
// empty row list in any set yields zero combos: the test is deselected,
// which is not an error.
func expandSets(sets []paramSet) []combo {
	combos := []combo{{}}
	for _, set := range sets {
		if set.err != "" {
			for i := range combos {
				if combos[i].err == "" {
					combos[i].err = set.err
				}
			}
			continue
		}

		next := make([]combo, 0, len(combos)*len(set.rows))
		for _, base := range combos {
			for i, row := range set.rows {
				c := combo{
					params:  append(append([]Param(nil), base.params...), bindRow(set.names, row)...),
					idParts: append(append([]string(nil), base.idParts...), set.rowID(i)),
					err:     base.err,
				}
				if c.err == "" && len(row) != len(set.names) {
					c.err = fmt.Sprintf("parametrize arity mismatch: %d names but row has %d values", len(set.names), len(row))
				}
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

func bindRow(names []string, row []scanner.Value) []Param {
	params := make([]Param, 0, len(names))
	for i, name := range names {
		if i < len(row) {
			params = append(params, Param{Name: name, Value: row[i]})
		}
	}
	return params
}
