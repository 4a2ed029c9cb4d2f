package scanner

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// logicalLine is one Python logical line: physical lines joined across
// bracket continuations, backslash continuations and triple-quoted strings,
// with comments stripped.
type logicalLine struct {
	text   string
	indent int
	line   int // first physical line, 1-based
}

// lexer splits source text into logical lines. It tracks just enough string
// and bracket state to join continuations correctly; it does not interpret
// statements.
type lexer struct {
	input string
	pos   int
	line  int
}

func newLexer(input string) *lexer {
	return &lexer{input: input, line: 1}
}

// nextLine returns the next non-blank logical line, or nil at EOF.
func (l *lexer) nextLine() *logicalLine {
	for l.pos < len(l.input) {
		start := l.pos
		startLine := l.line
		text, ok := l.readLogical()
		if !ok {
			return nil
		}
		indent := measureIndent(l.input[start:])
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		return &logicalLine{text: trimmed, indent: indent, line: startLine}
	}
	return nil
}

// readLogical consumes one logical line from the input.
func (l *lexer) readLogical() (string, bool) {
	var b strings.Builder
	depth := 0
	var quote byte   // active string quote char, 0 when outside strings
	triple := false  // active string is triple-quoted
	escaped := false // previous char was a backslash inside a string

	for l.pos < len(l.input) {
		ch := l.input[l.pos]

		if quote != 0 {
			b.WriteByte(ch)
			l.pos++
			if ch == '\n' {
				l.line++
				if !triple {
					// Unterminated single-quoted string; recover at the
					// newline so the rest of the file still scans.
					quote = 0
				}
				continue
			}
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == quote {
				if triple {
					if strings.HasPrefix(l.input[l.pos:], string([]byte{quote, quote})) {
						b.WriteString(l.input[l.pos : l.pos+2])
						l.pos += 2
						quote = 0
						triple = false
					}
				} else {
					quote = 0
				}
			}
			continue
		}

		switch ch {
		case '#':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
			continue
		case '\'', '"':
			quote = ch
			if strings.HasPrefix(l.input[l.pos:], strings.Repeat(string(ch), 3)) {
				triple = true
				b.WriteString(l.input[l.pos : l.pos+3])
				l.pos += 3
				continue
			}
			b.WriteByte(ch)
			l.pos++
			continue
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case '\\':
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\n' {
				l.pos += 2
				l.line++
				b.WriteByte(' ')
				continue
			}
		case '\n':
			l.pos++
			l.line++
			if depth > 0 {
				b.WriteByte(' ')
				continue
			}
			return b.String(), true
		}
		b.WriteByte(ch)
		l.pos++
	}
	return b.String(), true
}

// measureIndent counts leading whitespace columns, expanding tabs to 8.
func measureIndent(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ':
			n++
		case '\t':
			n += 8 - n%8
		default:
			return n
		}
	}
	return n
}

// Token types for in-line tokenization of defs and decorator expressions.
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenPunct
)

type token struct {
	typ   tokenType
	value string // decoded content for strings, source text otherwise
	text  string // raw source text
}

// lineTokens tokenizes one logical line. String tokens carry their decoded
// content; escape handling covers the common sequences only.
func lineTokens(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == ' ' || r == '\t':
			i += size
		case r == '#':
			return toks
		case isIdentStart(r):
			start := i
			for i < len(s) {
				r2, sz := utf8.DecodeRuneInString(s[i:])
				if !isIdentPart(r2) {
					break
				}
				i += sz
			}
			word := s[start:i]
			// String prefixes like r"...", f'...', rb"..." bind to the
			// following quote.
			if i < len(s) && (s[i] == '"' || s[i] == '\'') && isStringPrefix(word) {
				str, raw, n := readStringToken(s[i:], strings.ContainsAny(strings.ToLower(word), "r"))
				toks = append(toks, token{typ: tokenString, value: str, text: word + raw})
				i += n
				continue
			}
			toks = append(toks, token{typ: tokenIdent, value: word, text: word})
		case r >= '0' && r <= '9' || (r == '.' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9'):
			start := i
			i++
			for i < len(s) && (isDigitLike(s[i])) {
				i++
			}
			toks = append(toks, token{typ: tokenNumber, value: s[start:i], text: s[start:i]})
		case r == '"' || r == '\'':
			str, raw, n := readStringToken(s[i:], false)
			toks = append(toks, token{typ: tokenString, value: str, text: raw})
			i += n
		default:
			toks = append(toks, token{typ: tokenPunct, value: string(r), text: string(r)})
			i += size
		}
	}
	return toks
}

func isStringPrefix(word string) bool {
	if len(word) > 2 {
		return false
	}
	for _, c := range strings.ToLower(word) {
		switch c {
		case 'r', 'b', 'f', 'u':
		default:
			return false
		}
	}
	return true
}

func isDigitLike(c byte) bool {
	return c >= '0' && c <= '9' || c == '.' || c == '_' || c == 'e' || c == 'E' ||
		c == 'x' || c == 'X' || c == 'o' || c == 'O' || c == 'b' || c == 'B' ||
		c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F' || c == 'j' || c == 'J'
}

// readStringToken reads a quoted string starting at s[0] and returns the
// decoded content, the raw source text and the byte length consumed.
func readStringToken(s string, rawMode bool) (decoded, raw string, n int) {
	quote := s[0]
	triple := strings.HasPrefix(s, strings.Repeat(string(quote), 3))
	start := 1
	if triple {
		start = 3
	}
	var b strings.Builder
	i := start
	for i < len(s) {
		ch := s[i]
		if ch == '\\' && !rawMode && i+1 < len(s) {
			next := s[i+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"':
				b.WriteByte(next)
			default:
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			i += 2
			continue
		}
		if ch == quote {
			if triple {
				if strings.HasPrefix(s[i:], strings.Repeat(string(quote), 3)) {
					return b.String(), s[:i+3], i + 3
				}
			} else {
				return b.String(), s[:i+1], i + 1
			}
		}
		b.WriteByte(ch)
		i++
	}
	return b.String(), s, len(s)
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) ||
		unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Nd, r)
}
