package scanner

import (
	"os"
	"strings"
	"unicode/utf8"
)

// ScanFile parses one Python source file into its syntactic model. The file
// is never imported or executed; import-time side effects and missing
// runtime dependencies cannot break discovery.
func ScanFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ScanError{File: path, Message: err.Error()}
	}
	return ScanSource(path, data)
}

// ScanSource parses Python source text. On any parse problem it returns a
// ScanError naming the file and line; it never panics.
func ScanSource(path string, src []byte) (*Module, error) {
	if !utf8.Valid(src) {
		return nil, &ScanError{File: path, Message: "source is not valid UTF-8"}
	}

	mod := &Module{Path: path}
	p := &parser{mod: mod, lex: newLexer(string(src))}
	if err := p.run(); err != nil {
		return nil, err
	}
	return mod, nil
}

// openDef tracks a function whose body is still being scanned, so yield
// statements can be attributed to the innermost enclosing def.
type openDef struct {
	def    *FunctionDef
	indent int
}

type parser struct {
	mod     *Module
	lex     *lexer
	pending []*Decorator // decorators awaiting the next def/class

	classes []struct {
		class  *ClassDef
		indent int
	}
	defs []openDef
}

func (p *parser) run() error {
	for {
		ln := p.lex.nextLine()
		if ln == nil {
			return nil
		}
		if err := p.statement(ln); err != nil {
			return err
		}
	}
}

func (p *parser) statement(ln *logicalLine) error {
	toks := lineTokens(ln.text)
	if len(toks) == 0 {
		return nil
	}

	switch {
	case toks[0].typ == tokenPunct && toks[0].value == "@":
		p.closeScopes(ln.indent)
		dec, err := parseDecorator(toks, ln, p.mod.Path)
		if err != nil {
			return err
		}
		p.pending = append(p.pending, dec)
		return nil

	case isDefLine(toks):
		p.closeScopes(ln.indent)
		return p.functionDef(toks, ln)

	case toks[0].typ == tokenIdent && toks[0].value == "class":
		p.closeScopes(ln.indent)
		return p.classDef(toks, ln)

	default:
		// A plain statement at or above a def's indent ends that def's body.
		p.closeDefs(ln.indent)
		if len(p.defs) > 0 && ln.indent > p.defs[len(p.defs)-1].indent {
			for _, t := range toks {
				if t.typ == tokenIdent && t.value == "yield" {
					p.defs[len(p.defs)-1].def.HasYield = true
					break
				}
			}
		}
		p.pending = nil
		return nil
	}
}

// closeScopes pops defs and classes whose bodies end before this indent.
func (p *parser) closeScopes(indent int) {
	p.closeDefs(indent)
	for len(p.classes) > 0 && indent <= p.classes[len(p.classes)-1].indent {
		p.classes = p.classes[:len(p.classes)-1]
	}
}

func (p *parser) closeDefs(indent int) {
	for len(p.defs) > 0 && indent <= p.defs[len(p.defs)-1].indent {
		p.defs = p.defs[:len(p.defs)-1]
	}
}

func isDefLine(toks []token) bool {
	if toks[0].typ != tokenIdent {
		return false
	}
	if toks[0].value == "def" {
		return true
	}
	return toks[0].value == "async" && len(toks) > 1 && toks[1].value == "def"
}

func (p *parser) functionDef(toks []token, ln *logicalLine) error {
	isAsync := toks[0].value == "async"
	i := 1
	if isAsync {
		i = 2
	}
	if i >= len(toks) || toks[i].typ != tokenIdent {
		return &ScanError{File: p.mod.Path, Line: ln.line, Message: "malformed def statement"}
	}

	fn := &FunctionDef{
		Name:       toks[i].value,
		IsAsync:    isAsync,
		Decorators: p.pending,
		Line:       ln.line,
	}
	p.pending = nil
	fn.Params = parseParams(toks[i+1:])

	nested := len(p.defs) > 0 && ln.indent > p.defs[len(p.defs)-1].indent
	if !nested {
		if cls := p.enclosingClass(ln.indent); cls != nil {
			fn.Class = cls
			cls.Methods = append(cls.Methods, fn)
		} else {
			p.mod.Functions = append(p.mod.Functions, fn)
		}
	}
	p.defs = append(p.defs, openDef{def: fn, indent: ln.indent})
	return nil
}

func (p *parser) classDef(toks []token, ln *logicalLine) error {
	if len(toks) < 2 || toks[1].typ != tokenIdent {
		return &ScanError{File: p.mod.Path, Line: ln.line, Message: "malformed class statement"}
	}
	cls := &ClassDef{
		Name:       toks[1].value,
		Decorators: p.pending,
		Line:       ln.line,
	}
	p.pending = nil

	// Base class list, depth-0 identifiers only.
	depth := 0
	for _, t := range toks[2:] {
		if t.typ == tokenPunct {
			switch t.value {
			case "(", "[":
				depth++
			case ")", "]":
				depth--
			}
			continue
		}
		if depth == 1 && t.typ == tokenIdent {
			cls.Bases = append(cls.Bases, t.value)
		}
	}

	if p.enclosingClass(ln.indent) == nil && (len(p.defs) == 0 || ln.indent <= p.defs[len(p.defs)-1].indent) {
		p.mod.Classes = append(p.mod.Classes, cls)
	}
	p.classes = append(p.classes, struct {
		class  *ClassDef
		indent int
	}{cls, ln.indent})
	return nil
}

func (p *parser) enclosingClass(indent int) *ClassDef {
	for i := len(p.classes) - 1; i >= 0; i-- {
		if p.classes[i].indent < indent {
			return p.classes[i].class
		}
	}
	return nil
}

// parseParams extracts parameter names from the token run following a def
// name. Defaults, annotations and star-args markers are skipped.
func parseParams(toks []token) []string {
	var params []string
	depth := 0
	expectName := true
	for _, t := range toks {
		if t.typ == tokenPunct {
			switch t.value {
			case "(", "[", "{":
				depth++
				if depth == 1 {
					expectName = true
				}
				continue
			case ")", "]", "}":
				depth--
				if depth == 0 {
					return params
				}
				continue
			case ",":
				if depth == 1 {
					expectName = true
				}
				continue
			case "*":
				continue
			default:
				if depth == 1 {
					// ':' annotation or '=' default ends the name position.
					expectName = false
				}
				continue
			}
		}
		if depth == 1 && expectName && t.typ == tokenIdent {
			params = append(params, t.value)
			expectName = false
		}
	}
	return params
}

// parseDecorator parses "@dotted.name" or "@dotted.name(args...)".
func parseDecorator(toks []token, ln *logicalLine, file string) (*Decorator, error) {
	dec := &Decorator{Line: ln.line}
	i := 1
	var name strings.Builder
	for i < len(toks) {
		if toks[i].typ == tokenIdent {
			name.WriteString(toks[i].value)
			i++
			if i < len(toks) && toks[i].typ == tokenPunct && toks[i].value == "." {
				name.WriteByte('.')
				i++
				continue
			}
		}
		break
	}
	if name.Len() == 0 {
		return nil, &ScanError{File: file, Line: ln.line, Message: "malformed decorator"}
	}
	dec.Name = name.String()

	if i < len(toks) && toks[i].typ == tokenPunct && toks[i].value == "(" {
		dec.IsCall = true
		args, kwargs, err := parseCallArgs(toks[i+1:], ln, file)
		if err != nil {
			return nil, err
		}
		dec.Args = args
		dec.Kwargs = kwargs
	}
	return dec, nil
}

// parseCallArgs parses the argument list of a decorator call up to the
// matching close paren.
func parseCallArgs(toks []token, ln *logicalLine, file string) ([]Value, map[string]Value, error) {
	var args []Value
	kwargs := map[string]Value{}

	i := 0
	for i < len(toks) {
		if toks[i].typ == tokenPunct && toks[i].value == ")" {
			return args, kwargs, nil
		}
		// Keyword argument: ident '=' not followed by '='.
		if toks[i].typ == tokenIdent && i+1 < len(toks) &&
			toks[i+1].typ == tokenPunct && toks[i+1].value == "=" &&
			(i+2 >= len(toks) || toks[i+2].value != "=") {
			key := toks[i].value
			val, n := parseValue(toks[i+2:])
			kwargs[key] = val
			i += 2 + n
		} else {
			val, n := parseValue(toks[i:])
			args = append(args, val)
			i += n
		}
		if i < len(toks) && toks[i].typ == tokenPunct && toks[i].value == "," {
			i++
		}
	}
	return nil, nil, &ScanError{File: file, Line: ln.line, Message: "unterminated decorator call"}
}

// parseValue parses one argument value and returns it with the number of
// tokens consumed. Anything that is not a recognizable literal is captured
// verbatim as a ValueName, preserving expressions such as skipif conditions.
func parseValue(toks []token) (Value, int) {
	if len(toks) == 0 {
		return Value{Kind: ValueName}, 0
	}

	t := toks[0]
	if t.typ == tokenPunct && (t.value == "[" || t.value == "(") {
		closer := "]"
		kind := ValueList
		if t.value == "(" {
			closer = ")"
			kind = ValueTuple
		}
		var items []Value
		i := 1
		for i < len(toks) {
			if toks[i].typ == tokenPunct && toks[i].value == closer {
				i++
				return Value{Kind: kind, Text: joinTokens(toks[:i]), Items: items}, i
			}
			if toks[i].typ == tokenPunct && toks[i].value == "," {
				i++
				continue
			}
			item, n := parseValue(toks[i:])
			items = append(items, item)
			i += n
		}
		return Value{Kind: kind, Text: joinTokens(toks), Items: items}, len(toks)
	}

	// Single-token literal, valid only if followed by a separator.
	if len(toks) == 1 || isValueEnd(toks[1]) {
		switch {
		case t.typ == tokenString:
			return Value{Kind: ValueString, Text: t.value}, 1
		case t.typ == tokenNumber:
			kind := ValueInt
			if strings.ContainsAny(t.value, ".eE") && !strings.HasPrefix(t.value, "0x") {
				kind = ValueFloat
			}
			return Value{Kind: kind, Text: t.value}, 1
		case t.typ == tokenIdent && (t.value == "True" || t.value == "False"):
			return Value{Kind: ValueBool, Text: t.value, Bool: t.value == "True"}, 1
		case t.typ == tokenIdent && t.value == "None":
			return Value{Kind: ValueNone, Text: "None"}, 1
		case t.typ == tokenIdent:
			return Value{Kind: ValueName, Text: t.value}, 1
		}
	}

	// Expression fallback: consume until a depth-0 comma or closer.
	depth := 0
	for i := 0; i < len(toks); i++ {
		if toks[i].typ == tokenPunct {
			switch toks[i].value {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				if depth == 0 {
					return Value{Kind: ValueName, Text: joinTokens(toks[:i])}, i
				}
				depth--
			case ",":
				if depth == 0 {
					return Value{Kind: ValueName, Text: joinTokens(toks[:i])}, i
				}
			}
		}
	}
	return Value{Kind: ValueName, Text: joinTokens(toks)}, len(toks)
}

func isValueEnd(t token) bool {
	return t.typ == tokenPunct && (t.value == "," || t.value == ")" || t.value == "]" || t.value == "}")
}

// joinTokens reconstructs readable source text from a token run.
func joinTokens(toks []token) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 && needsSpace(toks[i-1], t) {
			b.WriteByte(' ')
		}
		b.WriteString(t.text)
	}
	return b.String()
}

func needsSpace(prev, cur token) bool {
	if prev.typ == tokenPunct {
		switch prev.value {
		case ".", "(", "[", "{", "@":
			return false
		}
	}
	if cur.typ == tokenPunct {
		switch cur.value {
		case ".", ",", ")", "]", "}", "(", "[":
			return false
		}
	}
	return true
}
