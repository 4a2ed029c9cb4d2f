package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velocitest/velocitest/packages/core/collect"
	"github.com/velocitest/velocitest/packages/core/fixture"
	"github.com/velocitest/velocitest/packages/core/scanner"
)

func TestBuildRunRequest(t *testing.T) {
	db := &fixture.FixtureDef{Name: "db", Scope: fixture.ScopeModule, Module: "conftest.py", IsGenerator: true}
	number := &fixture.FixtureDef{
		Name:   "number",
		Scope:  fixture.ScopeFunction,
		Module: "test_a.py",
		Params: []scanner.Value{{Kind: scanner.ValueInt, Text: "1"}, {Kind: scanner.ValueInt, Text: "2"}},
	}

	it := &collect.TestItem{
		ModulePath: "test_a.py",
		ClassName:  "TestX",
		Name:       "test_case",
		ParamID:    "hello-2",
		ParamIndex: 0,
		Params: []collect.Param{
			{Name: "s", Value: scanner.Value{Kind: scanner.ValueString, Text: "hello"}},
			{Name: "n", Value: scanner.Value{Kind: scanner.ValueInt, Text: "2"}},
		},
		FixtureParams: []collect.FixtureParam{
			{Fixture: "number", Index: 1, Value: scanner.Value{Kind: scanner.ValueInt, Text: "2"}},
		},
		Markers: []collect.Marker{
			{Kind: collect.MarkSkipIf, Condition: `sys.platform == "win32"`, Reason: "posix only"},
			{Kind: collect.MarkXFail, Raises: "ValueError"},
		},
		Plan: &fixture.Plan{Setup: []*fixture.FixtureDef{db, number}},
	}

	scopes := fixture.ScopeSet{Session: "s1", Module: "m1", Class: "c1", Function: "f1"}
	req := buildRunRequest(it, scopes)

	assert.Equal(t, "run", req.Cmd)
	assert.Equal(t, "test_a.py::TestX::test_case[hello-2]", req.ID)
	assert.Equal(t, "TestX", req.Class)
	assert.Equal(t, "test_case", req.Func)

	require.Len(t, req.Params, 2)
	assert.Equal(t, `"hello"`, req.Params[0].Expr, "string values become Python string literals")
	assert.Equal(t, "2", req.Params[1].Expr)

	require.Len(t, req.Fixtures, 2)
	assert.Equal(t, "db@module:m1", req.Fixtures[0].Key)
	assert.Equal(t, "module", req.Fixtures[0].Scope)
	assert.True(t, req.Fixtures[0].Generator)
	assert.Equal(t, "number@function:f1", req.Fixtures[1].Key)
	assert.Equal(t, "2", req.Fixtures[1].ParamExpr, "parametrized fixture carries its chosen value")

	require.NotNil(t, req.SkipIf)
	assert.Equal(t, `sys.platform == "win32"`, req.SkipIf.Condition)
	assert.Equal(t, "posix only", req.SkipIf.Reason)

	require.NotNil(t, req.XFail)
	assert.Equal(t, "ValueError", req.XFail.Raises)
}

func TestBuildRunRequestPlainSkipNotForwarded(t *testing.T) {
	it := &collect.TestItem{
		ModulePath: "test_a.py",
		Name:       "test_case",
		ParamIndex: -1,
		Markers:    []collect.Marker{{Kind: collect.MarkSkip, Reason: "handled before dispatch"}},
	}
	req := buildRunRequest(it, fixture.ScopeSet{})
	assert.Nil(t, req.SkipIf)
}

func TestPyExpr(t *testing.T) {
	assert.Equal(t, `"a\"b"`, pyExpr(scanner.Value{Kind: scanner.ValueString, Text: `a"b`}))
	assert.Equal(t, "1.5", pyExpr(scanner.Value{Kind: scanner.ValueFloat, Text: "1.5"}))
	assert.Equal(t, "True", pyExpr(scanner.Value{Kind: scanner.ValueBool, Text: "True"}))
	assert.Equal(t, "None", pyExpr(scanner.Value{Kind: scanner.ValueNone}))
}

func TestOutcomeFromStatus(t *testing.T) {
	tests := map[string]string{
		"passed":  "passed",
		"failed":  "failed",
		"skipped": "skipped",
		"xfailed": "xfailed",
		"xpassed": "xpassed",
		"error":   "error",
		"bogus":   "error",
	}
	for status, want := range tests {
		assert.Equal(t, want, outcomeFromStatus(status).String(), status)
	}
}
