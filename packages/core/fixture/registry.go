package fixture

import "sort"

// Registry holds fixture definitions for one level of the conftest
// hierarchy (root conftest, nested conftest, test module, test class).
// Lookup walks from the nearest level outward, so child definitions shadow
// parent ones of the same name.
type Registry struct {
	parent *Registry
	defs   map[string]*FixtureDef
	order  []string
}

// NewRegistry creates a registry layered over parent. A nil parent makes a
// root registry.
func NewRegistry(parent *Registry) *Registry {
	return &Registry{parent: parent, defs: make(map[string]*FixtureDef)}
}

// Add registers a definition at this level, shadowing any parent-level def
// with the same name. Re-adding a name at the same level overwrites it.
func (r *Registry) Add(def *FixtureDef) {
	if _, ok := r.defs[def.Name]; !ok {
		r.order = append(r.order, def.Name)
	}
	r.defs[def.Name] = def
}

// Lookup resolves a name with nearest-enclosing-scope-wins precedence.
func (r *Registry) Lookup(name string) (*FixtureDef, bool) {
	for reg := r; reg != nil; reg = reg.parent {
		if def, ok := reg.defs[name]; ok {
			return def, true
		}
	}
	return nil, false
}

// Autouse returns every effective autouse fixture, outermost level first,
// declaration order within a level. Shadowed defs are not duplicated.
func (r *Registry) Autouse() []*FixtureDef {
	var chain []*Registry
	for reg := r; reg != nil; reg = reg.parent {
		chain = append(chain, reg)
	}

	seen := make(map[string]bool)
	var out []*FixtureDef
	for i := len(chain) - 1; i >= 0; i-- {
		for _, name := range chain[i].order {
			if seen[name] {
				continue
			}
			// The effective def may live in a nearer level.
			def, _ := r.Lookup(name)
			if def != nil && def.Autouse {
				out = append(out, def)
			}
			seen[name] = true
		}
	}
	return out
}

// Names returns all resolvable fixture names, sorted, for diagnostics.
func (r *Registry) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for reg := r; reg != nil; reg = reg.parent {
		for name := range reg.defs {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
