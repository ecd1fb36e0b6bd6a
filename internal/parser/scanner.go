package parser

import (
	"strings"

	"github.com/standardbeagle/phptags/internal/types"
)

// ParseExpressionText parses the PHP expression that ends at the end of
// text, usually the buffer contents up to the cursor. The grammar cannot
// parse unfinished member chains, so this is a small tolerant scanner:
// "$a->" yields a chain whose last hop has an empty name and Partial set,
// and "$this->load->vi" yields hops "load" and "vi".
func ParseExpressionText(text string) types.Expression {
	start := expressionStart(text)
	s := &scanner{src: text[start:]}
	return s.parse()
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

func isIdentStart(c byte) bool {
	return isIdentChar(c) && !(c >= '0' && c <= '9')
}

// expressionStart walks backwards from the end of text over identifiers,
// variables, member operators and balanced argument lists.
func expressionStart(text string) int {
	i := len(text)
	for i > 0 {
		c := text[i-1]
		switch {
		case isIdentChar(c) || c == '$' || c == '\\':
			i--
		case c == '>' && i >= 2 && text[i-2] == '-':
			i -= 2
			if i > 0 && text[i-1] == '?' {
				i--
			}
		case c == ':' && i >= 2 && text[i-2] == ':':
			i -= 2
		case c == ')' || c == ']':
			open := matchingOpen(text, i-1)
			if open < 0 {
				return i
			}
			i = open
		default:
			return withNewKeyword(text, i)
		}
	}
	return i
}

// withNewKeyword extends the start over a preceding "new " keyword
func withNewKeyword(text string, i int) int {
	if i >= len(text) || !isIdentStart(text[i]) {
		return i
	}
	j := i
	for j > 0 && (text[j-1] == ' ' || text[j-1] == '\t') {
		j--
	}
	if j == i || j < 3 || !strings.EqualFold(text[j-3:j], "new") {
		return i
	}
	if j > 3 && isIdentChar(text[j-4]) {
		return i
	}
	return j - 3
}

// matchingOpen finds the bracket opening the one that closes at pos
func matchingOpen(text string, pos int) int {
	closeCh := text[pos]
	openCh := byte('(')
	if closeCh == ']' {
		openCh = '['
	}
	depth := 0
	for i := pos; i >= 0; i-- {
		c := text[i]
		switch c {
		case '\'', '"':
			j := strings.LastIndexByte(text[:i], c)
			if j < 0 {
				return -1
			}
			i = j
		case closeCh:
			depth++
		case openCh:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) atEnd() bool {
	return s.pos >= len(s.src)
}

func (s *scanner) peek(c byte) bool {
	return s.pos < len(s.src) && s.src[s.pos] == c
}

func (s *scanner) consume(tok string) bool {
	if strings.HasPrefix(s.src[s.pos:], tok) {
		s.pos += len(tok)
		return true
	}
	return false
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) && strings.IndexByte(" \t\r\n", s.src[s.pos]) >= 0 {
		s.pos++
	}
}

func (s *scanner) ident() string {
	start := s.pos
	for s.pos < len(s.src) && (isIdentChar(s.src[s.pos]) || s.src[s.pos] == '\\') {
		s.pos++
	}
	return s.src[start:s.pos]
}

func (s *scanner) variable() string {
	start := s.pos
	s.pos++ // $
	for s.pos < len(s.src) && isIdentChar(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

// group returns the text between the bracket at pos and its partner.
// ok is false when the group is not closed.
func (s *scanner) group(openCh, closeCh byte) (inner string, ok bool) {
	depth := 0
	start := s.pos
	for i := s.pos; i < len(s.src); i++ {
		c := s.src[i]
		switch c {
		case '\'', '"':
			j := strings.IndexByte(s.src[i+1:], c)
			if j < 0 {
				s.pos = len(s.src)
				return s.src[start+1:], false
			}
			i += j + 1
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				s.pos = i + 1
				return s.src[start+1 : i], true
			}
		}
	}
	s.pos = len(s.src)
	return s.src[start+1:], false
}

func (s *scanner) args() []types.Expression {
	inner, _ := s.group('(', ')')
	var out []types.Expression
	for _, part := range splitTopLevel(inner, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sub := &scanner{src: part}
		out = append(out, sub.parse())
	}
	return out
}

func (s *scanner) arrayLiteral(openCh, closeCh byte) types.Expression {
	inner, _ := s.group(openCh, closeCh)
	e := types.Expression{Kind: types.ExprArray}
	for _, el := range splitTopLevel(inner, ",") {
		kv := splitTopLevel(el, "=>")
		if len(kv) < 2 {
			continue
		}
		sub := &scanner{src: strings.TrimSpace(kv[0])}
		if key := sub.parse(); key.Kind == types.ExprScalar && key.Value != "" {
			e.ArrayKeys = append(e.ArrayKeys, key.Value)
		}
	}
	return e
}

func (s *scanner) parse() types.Expression {
	s.skipSpace()
	if s.atEnd() {
		return types.Expression{}
	}

	var e types.Expression
	c := s.src[s.pos]
	switch {
	case c == '$':
		e = types.Expression{Kind: types.ExprVariable, Variable: s.variable()}
	case c == '\'' || c == '"':
		start := s.pos
		end := strings.IndexByte(s.src[s.pos+1:], c)
		if end < 0 {
			return types.Expression{Kind: types.ExprScalar, Value: s.src[start+1:]}
		}
		s.pos += end + 2
		return types.Expression{Kind: types.ExprScalar, Value: s.src[start+1 : s.pos-1]}
	case c >= '0' && c <= '9' || c == '-':
		start := s.pos
		s.pos++
		for s.pos < len(s.src) && (isIdentChar(s.src[s.pos]) || s.src[s.pos] == '.') {
			s.pos++
		}
		return types.Expression{Kind: types.ExprScalar, Value: s.src[start:s.pos]}
	case c == '[':
		return s.arrayLiteral('[', ']')
	case c == '(':
		inner, _ := s.group('(', ')')
		e = (&scanner{src: inner}).parse()
		if !chainable(e) {
			return e
		}
	case isIdentStart(c) || c == '\\':
		name := s.ident()
		s.skipSpace()
		switch {
		case strings.EqualFold(name, "new") && !s.atEnd() && (isIdentStart(s.src[s.pos]) || s.src[s.pos] == '\\'):
			e = types.Expression{Kind: types.ExprNew, ClassName: s.ident()}
			s.skipSpace()
			if s.peek('(') {
				e.Args = s.args()
			}
		case strings.EqualFold(name, "array") && s.peek('('):
			return s.arrayLiteral('(', ')')
		case strings.HasPrefix(s.src[s.pos:], "::"):
			e = types.Expression{Kind: types.ExprStatic, ClassName: name}
		case s.peek('('):
			e = types.Expression{Kind: types.ExprFunctionCall, Function: name, Args: s.args()}
		default:
			switch strings.ToLower(name) {
			case "true", "false", "null":
				return types.Expression{Kind: types.ExprScalar, Value: name}
			}
			return types.Expression{Kind: types.ExprIdentifier, Value: name}
		}
	default:
		return types.Expression{Kind: types.ExprUnknown, Value: s.src}
	}

	return s.chain(e)
}

func (s *scanner) chain(e types.Expression) types.Expression {
	for {
		s.skipSpace()
		var static bool
		switch {
		case s.consume("?->"), s.consume("->"):
		case s.consume("::"):
			static = true
		default:
			return e
		}

		s.skipSpace()
		var name string
		if s.peek('$') {
			name = s.variable()
		} else {
			name = s.ident()
		}
		if static {
			name = strings.TrimPrefix(name, "$")
		}

		hop := types.ChainItem{Name: name, IsStatic: static}
		if name == "" {
			e.Partial = true
			e.Chain = append(e.Chain, hop)
			return e
		}
		s.skipSpace()
		if s.peek('(') {
			hop.IsMethod = true
			hop.Args = s.args()
		}
		e.Chain = append(e.Chain, hop)
	}
}

// splitTopLevel splits s on sep where sep is not nested in brackets or quotes
func splitTopLevel(s, sep string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\'', '"':
			j := strings.IndexByte(s[i+1:], c)
			if j < 0 {
				i = len(s)
				continue
			}
			i += j + 1
			continue
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
		if depth == 0 && strings.HasPrefix(s[i:], sep) {
			parts = append(parts, s[start:i])
			i += len(sep) - 1
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
