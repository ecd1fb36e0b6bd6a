package types

import "strings"

// ExpressionKind classifies the root of a parsed expression
type ExpressionKind uint8

const (
	ExprUnknown ExpressionKind = iota
	ExprScalar
	ExprArray
	ExprNew
	ExprVariable     // $var, optionally followed by a chain
	ExprStatic       // Class::member, optionally followed by a chain
	ExprFunctionCall // fn(...), optionally followed by a chain
	ExprIdentifier   // bare name with no call: constant, class or function prefix
)

func (k ExpressionKind) String() string {
	switch k {
	case ExprScalar:
		return "scalar"
	case ExprArray:
		return "array"
	case ExprNew:
		return "new"
	case ExprVariable:
		return "variable"
	case ExprStatic:
		return "static"
	case ExprFunctionCall:
		return "function_call"
	case ExprIdentifier:
		return "identifier"
	default:
		return "unknown"
	}
}

// ChainItem is one "->name" or "::name" hop of an expression
type ChainItem struct {
	Name     string
	IsMethod bool
	IsStatic bool
	Args     []Expression
}

// Expression is a parsed PHP expression. Only the fields relevant to Kind
// are populated.
type Expression struct {
	Kind      ExpressionKind
	Value     string       // scalar literal text, unquoted
	Variable  string       // root variable including "$"
	ClassName string       // static root or "new" class, as written
	Function  string       // function name for ExprFunctionCall
	Args      []Expression // constructor or function arguments
	ArrayKeys []string
	Chain     []ChainItem
	// Partial is set by the completion scanner when the text ended
	// with an operator ("$a->"), meaning the last hop name is empty.
	Partial bool
}

// IsBareVariable reports whether the expression is just "$name"
func (e Expression) IsBareVariable() bool {
	return e.Kind == ExprVariable && len(e.Chain) == 0
}

// HasCalls reports whether evaluating the expression invokes any function or method
func (e Expression) HasCalls() bool {
	switch e.Kind {
	case ExprFunctionCall, ExprNew:
		return true
	}
	for _, c := range e.Chain {
		if c.IsMethod {
			return true
		}
	}
	return false
}

// LastHop returns the final chain item, if any
func (e Expression) LastHop() (ChainItem, bool) {
	if len(e.Chain) == 0 {
		return ChainItem{}, false
	}
	return e.Chain[len(e.Chain)-1], true
}

// WithoutLastHop returns a copy of the expression minus its final hop
func (e Expression) WithoutLastHop() Expression {
	if len(e.Chain) == 0 {
		return e
	}
	c := e
	c.Chain = e.Chain[:len(e.Chain)-1]
	c.Partial = false
	return c
}

func (e Expression) String() string {
	var b strings.Builder
	switch e.Kind {
	case ExprScalar:
		b.WriteString("'" + e.Value + "'")
	case ExprArray:
		b.WriteString("array(")
		b.WriteString(strings.Join(e.ArrayKeys, ","))
		b.WriteString(")")
	case ExprNew:
		b.WriteString("new " + e.ClassName + "(" + joinExpressions(e.Args) + ")")
	case ExprVariable:
		b.WriteString(e.Variable)
	case ExprStatic, ExprIdentifier:
		b.WriteString(e.ClassName)
		if e.Kind == ExprIdentifier {
			b.WriteString(e.Value)
		}
	case ExprFunctionCall:
		b.WriteString(e.Function + "(" + joinExpressions(e.Args) + ")")
	default:
		b.WriteString("?")
	}
	for _, c := range e.Chain {
		if c.IsStatic {
			b.WriteString("::")
		} else {
			b.WriteString("->")
		}
		b.WriteString(c.Name)
		if c.IsMethod {
			b.WriteString("(" + joinExpressions(c.Args) + ")")
		}
	}
	return b.String()
}

func joinExpressions(exprs []Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}
