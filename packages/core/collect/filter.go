package collect

import (
	"fmt"
	"strings"
	"unicode"
)

// MarkerFilter is a compiled boolean expression over marker names, e.g.
// "smoke and not slow" or "(db or net) and not flaky".
type MarkerFilter struct {
	expr string
	root filterNode
}

// CompileMarkerFilter parses a marker filter expression. An empty
// expression returns a nil filter, which matches everything.
func CompileMarkerFilter(expr string) (*MarkerFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	p := &filterParser{input: expr}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, fmt.Errorf("marker filter: unexpected %q at offset %d", p.input[p.pos:], p.pos)
	}
	return &MarkerFilter{expr: expr, root: root}, nil
}

// Match evaluates the filter against an item's marker names.
func (f *MarkerFilter) Match(names []string) bool {
	if f == nil {
		return true
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return f.root.eval(set)
}

func (f *MarkerFilter) String() string { return f.expr }

type filterNode interface {
	eval(set map[string]bool) bool
}

type nameNode string

func (n nameNode) eval(set map[string]bool) bool { return set[string(n)] }

type notNode struct{ child filterNode }

func (n notNode) eval(set map[string]bool) bool { return !n.child.eval(set) }

type binNode struct {
	and         bool
	left, right filterNode
}

func (n binNode) eval(set map[string]bool) bool {
	if n.and {
		return n.left.eval(set) && n.right.eval(set)
	}
	return n.left.eval(set) || n.right.eval(set)
}

type filterParser struct {
	input string
	pos   int
}

func (p *filterParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *filterParser) word() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) {
		r := rune(p.input[p.pos])
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || r >= 0x80 {
			p.pos++
			continue
		}
		break
	}
	return p.input[start:p.pos]
}

func (p *filterParser) peekWord() string {
	save := p.pos
	w := p.word()
	p.pos = save
	return w
}

func (p *filterParser) parseOr() (filterNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekWord() == "or" {
		p.word()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binNode{and: false, left: left, right: right}
	}
	return left, nil
}

func (p *filterParser) parseAnd() (filterNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peekWord() == "and" {
		p.word()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = binNode{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *filterParser) parseNot() (filterNode, error) {
	if p.peekWord() == "not" {
		p.word()
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{child: child}, nil
	}

	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '(' {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return nil, fmt.Errorf("marker filter: missing closing paren")
		}
		p.pos++
		return inner, nil
	}

	w := p.word()
	if w == "" {
		return nil, fmt.Errorf("marker filter: expected marker name at offset %d", p.pos)
	}
	return nameNode(w), nil
}
