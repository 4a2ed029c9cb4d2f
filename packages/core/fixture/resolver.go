package fixture

import "fmt"

// Plan is the ordered fixture setup list for one test item: dependencies
// before dependents, autouse fixtures ahead of explicitly requested ones.
// Teardown runs in exact reverse.
type Plan struct {
	Setup []*FixtureDef
}

// Parametrized returns the parametrized fixtures in the plan, setup order.
func (p *Plan) Parametrized() []*FixtureDef {
	var out []*FixtureDef
	for _, def := range p.Setup {
		if len(def.Params) > 0 {
			out = append(out, def)
		}
	}
	return out
}

// ResolveError describes an unresolvable fixture graph: a missing name, a
// dependency cycle, or a scope mismatch. It poisons only the test items
// that need the offending fixture.
type ResolveError struct {
	Fixture string
	Message string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("fixture %q: %s", e.Fixture, e.Message)
}

const (
	colorWhite = iota // unvisited
	colorGray         // on the current DFS path
	colorBlack        // done
)

// Resolve computes the setup plan for the declared fixture names using the
// given registry. The transitive closure is ordered topologically; cycles
// and unresolved names yield a ResolveError, never a panic.
func Resolve(declared []string, reg *Registry) (*Plan, error) {
	plan := &Plan{}
	colors := make(map[string]int)

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch colors[name] {
		case colorBlack:
			return nil
		case colorGray:
			return &ResolveError{Fixture: name, Message: fmt.Sprintf("dependency cycle: %s", cyclePath(path, name))}
		}

		def, ok := reg.Lookup(name)
		if !ok {
			return &ResolveError{Fixture: name, Message: "no fixture with this name is defined"}
		}

		colors[name] = colorGray
		for _, dep := range def.Depends {
			depDef, ok := reg.Lookup(dep)
			if ok && depDef.Scope < def.Scope {
				return &ResolveError{
					Fixture: name,
					Message: fmt.Sprintf("%s-scoped fixture cannot depend on %s-scoped fixture %q", def.Scope, depDef.Scope, dep),
				}
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		colors[name] = colorBlack
		plan.Setup = append(plan.Setup, def)
		return nil
	}

	for _, def := range reg.Autouse() {
		if err := visit(def.Name, nil); err != nil {
			return nil, err
		}
	}
	for _, name := range declared {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func cyclePath(path []string, closing string) string {
	start := 0
	for i, n := range path {
		if n == closing {
			start = i
			break
		}
	}
	s := ""
	for _, n := range path[start:] {
		s += n + " -> "
	}
	return s + closing
}
