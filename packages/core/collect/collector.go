package collect

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/velocitest/velocitest/packages/core/fixture"
	"github.com/velocitest/velocitest/packages/core/scanner"
)

// Options controls a collection pass.
type Options struct {
	// MarkerFilter deselects items whose marker names do not satisfy the
	// expression. Nil matches everything.
	MarkerFilter *MarkerFilter

	// Scan overrides how source files are scanned. The runner injects a
	// cache-aware scan here; nil means scanner.ScanFile.
	Scan func(path string) (*scanner.Module, error)
}

// Result is the outcome of collecting a source tree. ScanErrors are
// file-level diagnostics; they never abort collection of sibling files.
type Result struct {
	Items      []*TestItem
	ScanErrors []*scanner.ScanError
	Files      int
	Deselected int
}

// Collector turns scanned Python modules into concrete test items,
// applying naming conventions, marker inheritance, parametrize expansion
// and the hierarchical conftest fixture registries.
type Collector struct {
	opts    Options
	root    string
	dirRegs map[string]*fixture.Registry
	result  *Result
}

func New(opts Options) *Collector {
	if opts.Scan == nil {
		opts.Scan = scanner.ScanFile
	}
	return &Collector{opts: opts, dirRegs: make(map[string]*fixture.Registry)}
}

// Collect walks the root path (file or directory) and returns every test
// item in deterministic order: files sorted by path, definitions in source
// order. Only a missing or unreadable root is a fatal error.
func (c *Collector) Collect(root string) (*Result, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("collection root: %w", err)
	}

	c.result = &Result{}
	if !info.IsDir() {
		c.root = filepath.Dir(root)
		c.collectFile(root)
		return c.result, nil
	}

	c.root = root
	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || name == "__pycache__" || name == "venv" || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if isTestFile(name) {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walking %s: %w", root, walkErr)
	}

	sort.Strings(files)
	for _, f := range files {
		c.collectFile(f)
	}
	return c.result, nil
}

// isUnder reports whether path is strictly inside root. A plain prefix
// check would also match siblings sharing a name prefix (root "a/b",
// path "a/bc").
func isUnder(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isTestFile(name string) bool {
	if !strings.HasSuffix(name, ".py") {
		return false
	}
	return strings.HasPrefix(name, "test_") || strings.HasSuffix(name, "_test.py")
}

// registryFor builds (and caches) the effective fixture registry for a
// directory: the union of conftest registries from the collection root down
// to dir, child levels shadowing parents.
func (c *Collector) registryFor(dir string) *fixture.Registry {
	if reg, ok := c.dirRegs[dir]; ok {
		return reg
	}

	var parent *fixture.Registry
	if dir != c.root && isUnder(dir, c.root) {
		parent = c.registryFor(filepath.Dir(dir))
	}

	reg := parent
	conftest := filepath.Join(dir, "conftest.py")
	if _, err := os.Stat(conftest); err == nil {
		mod, scanErr := c.opts.Scan(conftest)
		if scanErr != nil {
			c.recordScanError(scanErr)
		} else {
			reg = fixture.NewRegistry(parent)
			addModuleFixtures(reg, mod)
		}
	}
	if reg == nil {
		reg = fixture.NewRegistry(nil)
	}
	c.dirRegs[dir] = reg
	return reg
}

func (c *Collector) recordScanError(err error) {
	if se, ok := err.(*scanner.ScanError); ok {
		c.result.ScanErrors = append(c.result.ScanErrors, se)
		return
	}
	c.result.ScanErrors = append(c.result.ScanErrors, &scanner.ScanError{Message: err.Error()})
}

func (c *Collector) collectFile(path string) {
	mod, err := c.opts.Scan(path)
	if err != nil {
		c.recordScanError(err)
		return
	}
	c.result.Files++

	modReg := fixture.NewRegistry(c.registryFor(filepath.Dir(path)))
	addModuleFixtures(modReg, mod)

	for _, fn := range mod.Functions {
		if !isTestFunction(fn) {
			continue
		}
		c.buildItems(mod, fn, nil, modReg, nil, nil)
	}

	for _, cls := range mod.Classes {
		if !strings.HasPrefix(cls.Name, "Test") || cls.HasInit() {
			continue
		}

		classReg := fixture.NewRegistry(modReg)
		for _, m := range cls.Methods {
			if def := fixtureDefFromFunction(mod.Path, m); def != nil {
				classReg.Add(def)
			}
		}

		var classSets []paramSet
		var classMarkers []Marker
		var classFixtures []string
		for _, dec := range cls.Decorators {
			switch {
			case isParametrize(dec):
				classSets = append(classSets, normalizeParametrize(dec))
			case dec.Tail() == "usefixtures":
				classFixtures = append(classFixtures, useFixtureNames(dec)...)
			default:
				if m, ok := markerFromDecorator(dec); ok {
					classMarkers = append(classMarkers, m)
				}
			}
		}

		for _, m := range cls.Methods {
			if !isTestFunction(m) {
				continue
			}
			c.buildItems(mod, m, cls, classReg, classSets, &classContext{markers: classMarkers, fixtures: classFixtures})
		}
	}
}

type classContext struct {
	markers  []Marker
	fixtures []string
}

func isTestFunction(fn *scanner.FunctionDef) bool {
	if !strings.HasPrefix(fn.Name, "test_") {
		return false
	}
	for _, dec := range fn.Decorators {
		if dec.Tail() == "fixture" {
			return false
		}
	}
	return true
}

// buildItems expands one test function into concrete items: class-level
// parametrize sets outermost, method-level sets on top, then indirect
// parametrization from parametrized fixtures in the resolved plan.
func (c *Collector) buildItems(mod *scanner.Module, fn *scanner.FunctionDef, cls *scanner.ClassDef,
	reg *fixture.Registry, classSets []paramSet, clsCtx *classContext) {

	var sets []paramSet
	sets = append(sets, classSets...)
	var markers []Marker
	var extraFixtures []string
	if clsCtx != nil {
		markers = append(markers, clsCtx.markers...)
		extraFixtures = append(extraFixtures, clsCtx.fixtures...)
	}

	for _, dec := range fn.Decorators {
		switch {
		case isParametrize(dec):
			sets = append(sets, normalizeParametrize(dec))
		case dec.Tail() == "usefixtures":
			extraFixtures = append(extraFixtures, useFixtureNames(dec)...)
		default:
			if m, ok := markerFromDecorator(dec); ok {
				markers = append(markers, m)
			}
		}
	}

	paramNames := make(map[string]bool)
	for _, set := range sets {
		for _, n := range set.names {
			paramNames[n] = true
		}
	}

	declared := append([]string(nil), extraFixtures...)
	for _, p := range fn.Params {
		if p == "self" || p == "cls" || p == "request" || paramNames[p] {
			continue
		}
		declared = append(declared, p)
	}

	plan, resolveErr := fixture.Resolve(declared, reg)

	combos := expandSets(sets)
	parametrized := len(sets) > 0

	var expanded []*TestItem
	index := 0
	for _, cb := range combos {
		item := &TestItem{
			ModulePath: mod.Path,
			Name:       fn.Name,
			ParamIndex: -1,
			Params:     cb.params,
			IsAsync:    fn.IsAsync,
			Markers:    markers,
			Fixtures:   declared,
			Line:       fn.Line,
		}
		if cls != nil {
			item.ClassName = cls.Name
		}
		if parametrized {
			item.ParamID = strings.Join(cb.idParts, "-")
			item.ParamIndex = index
			index++
		}
		if resolveErr == nil {
			item.Plan = plan
		}
		if cb.err != "" {
			item.CollectErr = &CollectionError{ItemID: item.ID(), File: mod.Path, Line: fn.Line, Message: cb.err}
		}
		expanded = append(expanded, item)
	}

	// Indirect parametrization: each parametrized fixture in the plan is
	// an extra cartesian dimension.
	if resolveErr == nil {
		for _, def := range plan.Parametrized() {
			var next []*TestItem
			for _, base := range expanded {
				for i, v := range def.Params {
					clone := *base
					clone.Params = append([]Param(nil), base.Params...)
					clone.FixtureParams = append(append([]FixtureParam(nil), base.FixtureParams...),
						FixtureParam{Fixture: def.Name, Index: i, Value: v})
					if clone.ParamID != "" {
						clone.ParamID += "-" + v.Repr()
					} else {
						clone.ParamID = v.Repr()
					}
					clone.ParamIndex = len(next)
					next = append(next, &clone)
				}
			}
			expanded = next
		}
	}

	for _, item := range expanded {
		if resolveErr != nil {
			item.CollectErr = &CollectionError{ItemID: item.ID(), File: mod.Path, Line: fn.Line, Message: resolveErr.Error()}
		}
		if !c.opts.MarkerFilter.Match(MarkerNames(item.Markers)) {
			c.result.Deselected++
			continue
		}
		c.result.Items = append(c.result.Items, item)
	}
}

func useFixtureNames(dec *scanner.Decorator) []string {
	var names []string
	for _, a := range dec.Args {
		if a.Kind == scanner.ValueString {
			names = append(names, a.Text)
		}
	}
	return names
}

// addModuleFixtures registers every fixture-decorated top-level function.
func addModuleFixtures(reg *fixture.Registry, mod *scanner.Module) {
	for _, fn := range mod.Functions {
		if def := fixtureDefFromFunction(mod.Path, fn); def != nil {
			reg.Add(def)
		}
	}
}

// fixtureDefFromFunction converts a fixture-decorated function, or returns
// nil when the function is not a fixture.
func fixtureDefFromFunction(path string, fn *scanner.FunctionDef) *fixture.FixtureDef {
	var fixDec *scanner.Decorator
	for _, dec := range fn.Decorators {
		if dec.Tail() == "fixture" {
			fixDec = dec
			break
		}
	}
	if fixDec == nil {
		return nil
	}

	def := &fixture.FixtureDef{
		Name:        fn.Name,
		Scope:       fixture.ScopeFunction,
		IsGenerator: fn.HasYield,
		IsAsync:     fn.IsAsync,
		Module:      path,
		Line:        fn.Line,
	}
	for _, p := range fn.Params {
		if p == "self" || p == "cls" || p == "request" {
			continue
		}
		def.Depends = append(def.Depends, p)
	}
	if v, ok := fixDec.Kwargs["scope"]; ok {
		def.Scope = fixture.ParseScope(v.Text)
	}
	if v, ok := fixDec.Kwargs["autouse"]; ok {
		def.Autouse = v.Bool
	}
	if v, ok := fixDec.Kwargs["params"]; ok && (v.Kind == scanner.ValueList || v.Kind == scanner.ValueTuple) {
		def.Params = v.Items
	}
	if v, ok := fixDec.Kwargs["name"]; ok && v.Kind == scanner.ValueString {
		def.Name = v.Text
	}
	return def
}
