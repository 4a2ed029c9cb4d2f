package engine

import (
	"encoding/json"

	"github.com/velocitest/velocitest/packages/core/collect"
	"github.com/velocitest/velocitest/packages/core/fixture"
	"github.com/velocitest/velocitest/packages/core/scanner"
)

// RunRequest is the "run" command sent to a worker for one test item. The
// fixture list is the Go-resolved setup plan in order; the worker caches
// materialized values by cache key and only runs setup for missing keys.
type RunRequest struct {
	Cmd      string         `json:"cmd"` // always "run"
	ID       string         `json:"id"`
	Module   string         `json:"module"`
	Class    string         `json:"class,omitempty"`
	Func     string         `json:"func"`
	IsAsync  bool           `json:"async,omitempty"`
	Params   []ParamExpr    `json:"params,omitempty"`
	Fixtures []FixtureEntry `json:"fixtures,omitempty"`
	SkipIf   *SkipIfSpec    `json:"skipif,omitempty"`
	XFail    *XFailSpec     `json:"xfail,omitempty"`
}

// ParamExpr is one parametrize binding as a Python expression.
type ParamExpr struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// FixtureEntry is one fixture to materialize, identified by its cache key.
type FixtureEntry struct {
	Name      string `json:"name"`
	Key       string `json:"key"`
	Module    string `json:"module"`
	Scope     string `json:"scope"`
	Generator bool   `json:"generator,omitempty"`
	IsAsync   bool   `json:"async,omitempty"`
	ParamExpr string `json:"param,omitempty"` // chosen value for parametrized fixtures
}

// SkipIfSpec carries a conditional skip for worker-side evaluation.
type SkipIfSpec struct {
	Condition string `json:"condition"`
	Reason    string `json:"reason,omitempty"`
}

// XFailSpec carries expected-failure semantics for worker-side matching.
type XFailSpec struct {
	Reason string `json:"reason,omitempty"`
	Raises string `json:"raises,omitempty"`
}

// TeardownRequest finalizes fixture instances by cache key, reverse setup
// order. Sent when the controller's ledger says the last dependent item of
// a scope instance has finished.
type TeardownRequest struct {
	Cmd  string   `json:"cmd"` // always "teardown"
	Keys []string `json:"keys"`
}

// RunResponse is the worker's terminal event for one run command.
type RunResponse struct {
	Status        string  // passed, failed, skipped, xfailed, xpassed, error
	DurationMs    float64
	Stdout        string
	Stderr        string
	Detail        string
	FixturesReady []string // cache keys materialized during this run
}

// TeardownFailure is one fixture finalizer that raised. It is a warning,
// never a test failure.
type TeardownFailure struct {
	Key    string
	Detail string
}

func encodeCommand(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// buildRunRequest assembles the wire request for one planned item, binding
// fixture cache keys under the worker's active scope set.
func buildRunRequest(item *collect.TestItem, scopes fixture.ScopeSet) *RunRequest {
	req := &RunRequest{
		Cmd:     "run",
		ID:      item.ID(),
		Module:  item.ModulePath,
		Class:   item.ClassName,
		Func:    item.Name,
		IsAsync: item.IsAsync,
	}

	for _, p := range item.Params {
		req.Params = append(req.Params, ParamExpr{Name: p.Name, Expr: pyExpr(p.Value)})
	}

	fixtureParams := make(map[string]string)
	for _, fp := range item.FixtureParams {
		fixtureParams[fp.Fixture] = pyExpr(fp.Value)
	}

	if item.Plan != nil {
		for _, def := range item.Plan.Setup {
			entry := FixtureEntry{
				Name:      def.Name,
				Key:       fixture.KeyFor(def, scopes).String(),
				Module:    def.Module,
				Scope:     def.Scope.String(),
				Generator: def.IsGenerator,
				IsAsync:   def.IsAsync,
			}
			if expr, ok := fixtureParams[def.Name]; ok {
				entry.ParamExpr = expr
			}
			req.Fixtures = append(req.Fixtures, entry)
		}
	}

	if m, ok := collect.SkipMarker(item.Markers); ok && m.Kind == collect.MarkSkipIf {
		req.SkipIf = &SkipIfSpec{Condition: m.Condition, Reason: m.Reason}
	}
	if m, ok := collect.XFailMarker(item.Markers); ok {
		req.XFail = &XFailSpec{Reason: m.Reason, Raises: m.Raises}
	}
	return req
}

// pyExpr renders a scanned literal back into a Python expression.
func pyExpr(v scanner.Value) string {
	if v.Kind == scanner.ValueString {
		// A JSON string literal is a valid Python string literal.
		b, err := json.Marshal(v.Text)
		if err != nil {
			return "None"
		}
		return string(b)
	}
	if v.Text == "" {
		return "None"
	}
	return v.Text
}
