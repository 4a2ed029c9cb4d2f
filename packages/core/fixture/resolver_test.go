package fixture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velocitest/velocitest/packages/core/scanner"
)

func def(name string, scope Scope, depends ...string) *FixtureDef {
	return &FixtureDef{Name: name, Scope: scope, Depends: depends}
}

func setupNames(plan *Plan) []string {
	names := make([]string, len(plan.Setup))
	for i, d := range plan.Setup {
		names[i] = d.Name
	}
	return names
}

func TestResolveDependenciesBeforeDependents(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Add(def("db", ScopeModule))
	reg.Add(def("user", ScopeFunction, "db"))
	reg.Add(def("session", ScopeFunction, "user", "db"))

	plan, err := Resolve([]string{"session"}, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "user", "session"}, setupNames(plan))
}

func TestResolveSharedDependencyOnce(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Add(def("cfg", ScopeSession))
	reg.Add(def("a", ScopeFunction, "cfg"))
	reg.Add(def("b", ScopeFunction, "cfg"))

	plan, err := Resolve([]string{"a", "b"}, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"cfg", "a", "b"}, setupNames(plan))
}

func TestResolveCycle(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Add(def("a", ScopeFunction, "b"))
	reg.Add(def("b", ScopeFunction, "a"))

	_, err := Resolve([]string{"a"}, reg)
	require.Error(t, err)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "cycle")
}

func TestResolveMissingName(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := Resolve([]string{"ghost"}, reg)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ghost", re.Fixture)
}

func TestResolveScopeMismatch(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Add(def("tmpfile", ScopeFunction))
	reg.Add(def("db", ScopeModule, "tmpfile"))

	_, err := Resolve([]string{"db"}, reg)
	require.Error(t, err)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "db", re.Fixture)
	assert.Contains(t, re.Message, "module-scoped")
}

func TestResolveWiderDependencyAllowed(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Add(def("cfg", ScopeSession))
	reg.Add(def("db", ScopeModule, "cfg"))
	reg.Add(def("user", ScopeFunction, "db"))

	plan, err := Resolve([]string{"user"}, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"cfg", "db", "user"}, setupNames(plan))
}

func TestResolveAutouseFirst(t *testing.T) {
	reg := NewRegistry(nil)
	clean := def("clean_env", ScopeFunction)
	clean.Autouse = true
	reg.Add(def("db", ScopeModule))
	reg.Add(clean)

	plan, err := Resolve([]string{"db"}, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"clean_env", "db"}, setupNames(plan))
}

func TestResolveShadowing(t *testing.T) {
	root := NewRegistry(nil)
	root.Add(&FixtureDef{Name: "db", Scope: ScopeModule, Module: "conftest.py"})
	root.Add(def("user", ScopeFunction, "db"))

	nested := NewRegistry(root)
	nested.Add(&FixtureDef{Name: "db", Scope: ScopeModule, Module: "sub/conftest.py"})

	plan, err := Resolve([]string{"user"}, nested)
	require.NoError(t, err)
	require.Equal(t, []string{"db", "user"}, setupNames(plan))
	assert.Equal(t, "sub/conftest.py", plan.Setup[0].Module)
}

func TestRegistryAutouseOutermostFirst(t *testing.T) {
	root := NewRegistry(nil)
	a := def("outer", ScopeSession)
	a.Autouse = true
	root.Add(a)

	nested := NewRegistry(root)
	b := def("inner", ScopeFunction)
	b.Autouse = true
	nested.Add(b)

	names := []string{}
	for _, d := range nested.Autouse() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"outer", "inner"}, names)
}

func TestPlanParametrized(t *testing.T) {
	reg := NewRegistry(nil)
	number := def("number", ScopeFunction)
	number.Params = []scanner.Value{
		{Kind: scanner.ValueInt, Text: "1"},
		{Kind: scanner.ValueInt, Text: "2"},
	}
	reg.Add(number)
	reg.Add(def("plain", ScopeFunction))

	plan, err := Resolve([]string{"plain", "number"}, reg)
	require.NoError(t, err)
	params := plan.Parametrized()
	require.Len(t, params, 1)
	assert.Equal(t, "number", params[0].Name)
}
