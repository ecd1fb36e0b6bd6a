package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/phptags/internal/types"
)

// expression converts an expression node. Class names are made absolute
// ("\Ns\Foo") so later qualification against the same imports is a no-op.
func (w *walker) expression(n *tree_sitter.Node) types.Expression {
	if n == nil {
		return types.Expression{}
	}

	switch n.Kind() {
	case "parenthesized_expression":
		if inner := firstNamed(n); inner != nil {
			return w.expression(inner)
		}
	case "string", "encapsed_string", "heredoc", "nowdoc":
		return types.Expression{Kind: types.ExprScalar, Value: stringValue(w.text(n))}
	case "integer", "float", "boolean", "null":
		return types.Expression{Kind: types.ExprScalar, Value: w.text(n)}
	case "array_creation_expression":
		return types.Expression{Kind: types.ExprArray, ArrayKeys: w.arrayKeys(n)}
	case "variable_name":
		return types.Expression{Kind: types.ExprVariable, Variable: w.text(n)}
	case "object_creation_expression":
		return w.newExpression(n)
	case "function_call_expression":
		return w.functionCall(n)
	case "member_access_expression", "nullsafe_member_access_expression":
		return w.memberHop(n, false)
	case "member_call_expression", "nullsafe_member_call_expression":
		return w.memberHop(n, true)
	case "scoped_call_expression":
		return w.scopedHop(n, n.ChildByFieldName("scope"), w.text(n.ChildByFieldName("name")), true)
	case "scoped_property_access_expression":
		name := strings.TrimPrefix(w.text(n.ChildByFieldName("name")), "$")
		return w.scopedHop(n, n.ChildByFieldName("scope"), name, false)
	case "class_constant_access_expression":
		parts := namedChildren(n)
		if len(parts) < 2 {
			break
		}
		name := w.text(parts[len(parts)-1])
		if strings.EqualFold(name, "class") && isClassNameNode(parts[0]) {
			return types.Expression{Kind: types.ExprScalar, Value: w.imports.Qualify(w.text(parts[0]))}
		}
		return w.scopedHop(n, parts[0], name, false)
	case "name", "qualified_name":
		return types.Expression{Kind: types.ExprIdentifier, Value: w.text(n)}
	case "assignment_expression", "reference_assignment_expression":
		return w.expression(n.ChildByFieldName("right"))
	case "cast_expression":
		return w.expression(n.ChildByFieldName("value"))
	case "error_suppression_expression":
		return w.expression(firstNamed(n))
	}
	return types.Expression{Kind: types.ExprUnknown, Value: w.text(n)}
}

func isClassNameNode(n *tree_sitter.Node) bool {
	switch n.Kind() {
	case "name", "qualified_name", "relative_scope":
		return true
	}
	return false
}

// absoluteClass returns the absolute form of a class reference
func (w *walker) absoluteClass(name string) string {
	if types.IsRelativeClassName(name) {
		return strings.ToLower(name)
	}
	return "\\" + w.imports.Qualify(name)
}

func (w *walker) newExpression(n *tree_sitter.Node) types.Expression {
	e := types.Expression{Kind: types.ExprNew}
	for _, c := range namedChildren(n) {
		switch c.Kind() {
		case "name", "qualified_name", "relative_scope":
			e.ClassName = w.absoluteClass(w.text(c))
		case "anonymous_class":
			e.ClassName = "class@anonymous"
		case "arguments":
			e.Args = w.arguments(c)
		}
	}
	if e.ClassName == "" {
		// new $className
		return types.Expression{Kind: types.ExprUnknown, Value: w.text(n)}
	}
	return e
}

func (w *walker) functionCall(n *tree_sitter.Node) types.Expression {
	fn := n.ChildByFieldName("function")
	if fn == nil || (fn.Kind() != "name" && fn.Kind() != "qualified_name") {
		return types.Expression{Kind: types.ExprUnknown, Value: w.text(n)}
	}
	return types.Expression{
		Kind:     types.ExprFunctionCall,
		Function: w.text(fn),
		Args:     w.arguments(n.ChildByFieldName("arguments")),
	}
}

func (w *walker) memberHop(n *tree_sitter.Node, isMethod bool) types.Expression {
	base := w.expression(n.ChildByFieldName("object"))
	if !chainable(base) {
		return types.Expression{Kind: types.ExprUnknown, Value: w.text(n)}
	}
	hop := types.ChainItem{Name: w.text(n.ChildByFieldName("name")), IsMethod: isMethod}
	if isMethod {
		hop.Args = w.arguments(n.ChildByFieldName("arguments"))
	}
	base.Chain = append(base.Chain, hop)
	return base
}

func (w *walker) scopedHop(n, scope *tree_sitter.Node, name string, isMethod bool) types.Expression {
	if scope == nil || name == "" {
		return types.Expression{Kind: types.ExprUnknown, Value: w.text(n)}
	}
	var base types.Expression
	if isClassNameNode(scope) {
		base = types.Expression{Kind: types.ExprStatic, ClassName: w.absoluteClass(w.text(scope))}
	} else {
		base = w.expression(scope)
		if !chainable(base) {
			return types.Expression{Kind: types.ExprUnknown, Value: w.text(n)}
		}
	}
	hop := types.ChainItem{Name: name, IsMethod: isMethod, IsStatic: true}
	if isMethod {
		hop.Args = w.arguments(n.ChildByFieldName("arguments"))
	}
	base.Chain = append(base.Chain, hop)
	return base
}

// chainable reports whether hops can be appended to e
func chainable(e types.Expression) bool {
	switch e.Kind {
	case types.ExprVariable, types.ExprStatic, types.ExprFunctionCall, types.ExprNew:
		return true
	}
	return false
}

func (w *walker) argumentNodes(args *tree_sitter.Node) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	for _, arg := range FindChildrenByType(args, "argument") {
		parts := namedChildren(arg)
		if len(parts) == 0 {
			continue
		}
		// named arguments put the name first
		out = append(out, parts[len(parts)-1])
	}
	return out
}

func (w *walker) arguments(args *tree_sitter.Node) []types.Expression {
	nodes := w.argumentNodes(args)
	if len(nodes) == 0 {
		return nil
	}
	out := make([]types.Expression, len(nodes))
	for i, n := range nodes {
		out[i] = w.expression(n)
	}
	return out
}

// arrayKeys lists the literal keys of an array literal in source order
func (w *walker) arrayKeys(n *tree_sitter.Node) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, el := range FindChildrenByType(n, "array_element_initializer") {
		if FindChildByType(el, "=>") == nil {
			continue
		}
		parts := namedChildren(el)
		if len(parts) < 2 {
			continue
		}
		key := w.literalKey(parts[0])
		if key != "" && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

func (w *walker) literalKey(n *tree_sitter.Node) string {
	switch n.Kind() {
	case "string", "encapsed_string":
		return stringValue(w.text(n))
	case "integer":
		return w.text(n)
	}
	return ""
}

// literalType guesses the type of a literal or constructor expression
func (w *walker) literalType(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind() {
	case "string", "encapsed_string", "heredoc", "nowdoc":
		return "string"
	case "integer":
		return "int"
	case "float":
		return "float"
	case "boolean":
		return "bool"
	case "array_creation_expression":
		return "array"
	case "object_creation_expression":
		if e := w.newExpression(n); e.Kind == types.ExprNew && !types.IsRelativeClassName(e.ClassName) {
			return strings.TrimPrefix(e.ClassName, "\\")
		}
	}
	return ""
}

// stringValue strips the quotes of a PHP string literal
func stringValue(s string) string {
	if len(s) > 0 && (s[0] == 'b' || s[0] == 'B') && len(s) > 1 && (s[1] == '\'' || s[1] == '"') {
		s = s[1:]
	}
	if len(s) >= 2 {
		q := s[0]
		if (q == '\'' || q == '"') && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}
	return s
}
