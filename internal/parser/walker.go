package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/phptags/internal/types"
)

// walker performs the single linear pass over a syntax tree, yielding
// events in source order. It stops as soon as the consumer does.
type walker struct {
	path    string
	src     []byte
	yield   func(Event) bool
	stopped bool
	imports types.Imports
	class   *classContext
}

type classContext struct {
	name   string // qualified
	short  string
	parent string // qualified parent class, empty when none
}

func newWalker(path string, src []byte, yield func(Event) bool) *walker {
	return &walker{
		path:    path,
		src:     src,
		yield:   yield,
		imports: types.NewImports(""),
	}
}

func (w *walker) emit(e Event) {
	if w.stopped {
		return
	}
	if !w.yield(e) {
		w.stopped = true
	}
}

func (w *walker) at(e Event, n *tree_sitter.Node) Event {
	e.Line, e.Column = nodePosition(n)
	return e
}

func (w *walker) text(n *tree_sitter.Node) string {
	return GetNodeText(n, w.src)
}

func (w *walker) globalScope() types.Scope {
	return types.Scope{NamespaceName: w.imports.Namespace}
}

func (w *walker) walkProgram(root *tree_sitter.Node) {
	w.walkStatements(root, w.globalScope())
}

func (w *walker) walkStatements(node *tree_sitter.Node, scope types.Scope) {
	for _, child := range namedChildren(node) {
		if w.stopped {
			return
		}
		w.walkStatement(child, scope)
	}
}

func (w *walker) walkStatement(n *tree_sitter.Node, scope types.Scope) {
	switch n.Kind() {
	case "namespace_definition":
		w.walkNamespace(n)
	case "namespace_use_declaration":
		w.walkUse(n, scope)
	case "class_declaration":
		w.walkClass(n, types.FlavorClass)
	case "interface_declaration":
		w.walkClass(n, types.FlavorInterface)
	case "trait_declaration":
		w.walkClass(n, types.FlavorTrait)
	case "enum_declaration":
		w.walkClass(n, types.FlavorClass)
	case "function_definition":
		w.walkFunction(n)
	case "const_declaration":
		w.walkGlobalConst(n, scope)
	case "expression_statement":
		w.walkExpressionStatement(n, scope)
	case "return_statement":
		ev := Event{Kind: EventReturn, Scope: scope}
		if expr := firstNamed(n); expr != nil {
			ev.Expr = w.expression(expr)
		}
		w.emit(w.at(ev, n))
	case "if_statement", "else_if_clause", "while_statement", "do_statement",
		"for_statement", "switch_statement", "case_statement":
		w.walkControl(n, scope)
	case "foreach_statement":
		w.walkForeach(n, scope)
	case "echo_statement", "unset_statement":
		for _, child := range namedChildren(n) {
			w.walkInline(child, scope)
		}
	case "global_declaration":
		for _, v := range namedChildren(n) {
			w.declare(v, scope, types.Expression{}, docBlock{})
		}
	case "function_static_declaration":
		for _, decl := range FindChildrenByType(n, "static_variable_declaration") {
			w.declare(decl.ChildByFieldName("name"), scope, w.expression(decl.ChildByFieldName("value")), docBlock{})
		}
	case "compound_statement", "else_clause", "switch_block", "default_statement",
		"try_statement", "catch_clause", "finally_clause", "colon_block", "declare_statement":
		w.walkStatements(n, scope)
	}
}

// walkControl visits the header expressions and bodies of a control
// statement in source order, so a do-while condition follows its body.
func (w *walker) walkControl(n *tree_sitter.Node, scope types.Scope) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if w.stopped {
			return
		}
		child := n.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		switch n.FieldNameForNamedChild(uint32(i)) {
		case "condition", "initialize", "update", "value":
			w.walkInline(child, scope)
		default:
			w.walkStatement(child, scope)
		}
	}
}

// walkForeach emits the iterated expression, then binds the key and value
// variables. A @var comment above the loop types the value variable.
func (w *walker) walkForeach(n *tree_sitter.Node, scope types.Scope) {
	parts := namedChildren(n)
	if len(parts) < 2 {
		return
	}
	w.walkInline(parts[0], scope)

	doc := parseDocBlock(docComment(n, w.src))
	if binding := parts[1]; binding.Kind() == "pair" {
		if kv := namedChildren(binding); len(kv) == 2 {
			w.declare(kv[0], scope, types.Expression{}, docBlock{})
			w.declare(kv[1], scope, types.Expression{}, doc)
		}
	} else {
		w.declare(binding, scope, types.Expression{}, doc)
	}

	if body := n.ChildByFieldName("body"); body != nil {
		w.walkStatement(body, scope)
	}
}

// walkInline emits the calls and assignments of an expression that is
// not a statement of its own: conditions, loop headers, echo arguments.
func (w *walker) walkInline(n *tree_sitter.Node, scope types.Scope) {
	if n == nil || w.stopped {
		return
	}
	switch n.Kind() {
	case "assignment_expression", "reference_assignment_expression":
		w.walkAssignment(n, scope, docBlock{})
		return
	case "parenthesized_expression", "sequence_expression", "binary_expression",
		"unary_op_expression", "conditional_expression", "subscript_expression":
		for _, child := range namedChildren(n) {
			w.walkInline(child, scope)
		}
		return
	}
	if e := w.expression(n); e.HasCalls() {
		w.emit(w.at(Event{Kind: EventExpression, Scope: scope, Expr: e}, n))
	}
}

// declare binds a variable introduced without a plain assignment:
// foreach targets, global and static declarations
func (w *walker) declare(n *tree_sitter.Node, scope types.Scope, value types.Expression, doc docBlock) {
	if n != nil && n.Kind() == "by_ref" {
		n = FindChildByType(n, "variable_name")
	}
	if n == nil || n.Kind() != "variable_name" {
		return
	}
	name := w.text(n)
	ev := Event{
		Kind:   EventAssignment,
		Scope:  scope,
		Name:   name,
		Target: types.Expression{Kind: types.ExprVariable, Variable: name},
		Expr:   value,
	}
	if doc.VarType != "" && (doc.VarName == "" || doc.VarName == name) {
		ev.DocType = w.qualifyType(doc.VarType)
	}
	w.emit(w.at(ev, n))
}

func (w *walker) walkNamespace(n *tree_sitter.Node) {
	name := strings.Trim(w.text(n.ChildByFieldName("name")), "\\")
	if name != "" {
		w.emit(w.at(Event{
			Kind:  EventNamespace,
			Scope: types.Scope{NamespaceName: name},
			Tag: types.Tag{
				Kind:          types.TagKindNamespace,
				Identifier:    name,
				NamespaceName: name,
				FullPath:      w.path,
			},
		}, n))
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		// "namespace Foo;" applies to the rest of the file
		w.imports = types.NewImports(name)
		return
	}
	saved := w.imports
	w.imports = types.NewImports(name)
	w.walkStatements(body, w.globalScope())
	w.imports = saved
}

func (w *walker) walkUse(n *tree_sitter.Node, scope types.Scope) {
	// use function / use const import no class names
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c != nil && !c.IsNamed() {
			switch strings.ToLower(w.text(c)) {
			case "function", "const":
				return
			}
		}
	}

	prefix := ""
	for _, child := range namedChildren(n) {
		switch child.Kind() {
		case "namespace_name":
			prefix = strings.Trim(w.text(child), "\\")
		case "namespace_use_clause":
			w.useClause(child, "", scope)
		case "namespace_use_group":
			for _, clause := range FindChildrenByType(child, "namespace_use_clause") {
				w.useClause(clause, prefix, scope)
			}
		}
	}
}

func (w *walker) useClause(clause *tree_sitter.Node, prefix string, scope types.Scope) {
	if t := clause.ChildByFieldName("type"); t != nil {
		return
	}
	aliasNode := clause.ChildByFieldName("alias")
	var nameNode *tree_sitter.Node
	for _, c := range namedChildren(clause) {
		if aliasNode != nil && c.StartByte() == aliasNode.StartByte() {
			continue
		}
		if c.Kind() == "name" || c.Kind() == "qualified_name" || c.Kind() == "namespace_name" {
			nameNode = c
			break
		}
	}
	if nameNode == nil {
		return
	}

	qualified := strings.Trim(w.text(nameNode), "\\")
	if prefix != "" {
		qualified = prefix + "\\" + qualified
	}
	alias := w.text(aliasNode)
	if alias == "" {
		alias = types.ShortName(qualified)
	}
	w.imports.Add(qualified, alias)
	w.emit(w.at(Event{Kind: EventUse, Scope: scope, Name: qualified, Alias: alias}, clause))
}

func (w *walker) walkClass(n *tree_sitter.Node, flavor types.ClassFlavor) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	ns := w.imports.Namespace
	qualified := types.QualifyName(ns, name)
	ctx := &classContext{name: qualified, short: name}

	var relations []types.ClassRelation
	if base := FindChildByType(n, "base_clause"); base != nil {
		for _, c := range namedChildren(base) {
			related := w.imports.Qualify(w.text(c))
			relations = append(relations, types.ClassRelation{
				ClassName: qualified, RelatedName: related, Kind: types.RelationExtends, FullPath: w.path,
			})
			if ctx.parent == "" && flavor == types.FlavorClass {
				ctx.parent = related
			}
		}
	}
	if impl := FindChildByType(n, "class_interface_clause"); impl != nil {
		for _, c := range namedChildren(impl) {
			relations = append(relations, types.ClassRelation{
				ClassName: qualified, RelatedName: w.imports.Qualify(w.text(c)), Kind: types.RelationImplements, FullPath: w.path,
			})
		}
	}

	doc := parseDocBlock(docComment(n, w.src))
	scope := types.Scope{NamespaceName: ns, ClassName: qualified}
	w.emit(w.at(Event{
		Kind:  EventClass,
		Scope: scope,
		Tag: types.Tag{
			Kind:            types.TagKindClass,
			Flavor:          flavor,
			Identifier:      name,
			ClassName:       qualified,
			ClassIdentifier: name,
			NamespaceName:   ns,
			Comment:         doc.Text,
			FullPath:        w.path,
		},
		Relations: relations,
	}, n))

	saved := w.class
	w.class = ctx
	for _, member := range namedChildren(n.ChildByFieldName("body")) {
		if w.stopped {
			break
		}
		switch member.Kind() {
		case "const_declaration":
			w.walkClassConst(member, scope)
		case "enum_case":
			w.walkEnumCase(member, scope)
		case "property_declaration":
			w.walkProperty(member, scope)
		case "method_declaration":
			w.walkMethod(member)
		case "use_declaration":
			w.walkTraitUse(member, scope)
		}
	}
	w.class = saved
	w.emit(w.at(Event{Kind: EventScopeEnd, Scope: scope}, n))
}

// modifiers reads the visibility and static keywords of a member
func (w *walker) modifiers(n *tree_sitter.Node) (vis types.Visibility, static bool) {
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "visibility_modifier":
			vis = types.ParseVisibility(w.text(c))
		case "static_modifier":
			static = true
		}
	}
	return vis, static
}

func (w *walker) memberTag(kind types.TagKind, identifier string) types.Tag {
	return types.Tag{
		Kind:            kind,
		Identifier:      identifier,
		ClassName:       w.class.name,
		ClassIdentifier: w.class.short,
		NamespaceName:   w.imports.Namespace,
		FullPath:        w.path,
	}
}

func (w *walker) walkClassConst(n *tree_sitter.Node, scope types.Scope) {
	vis, _ := w.modifiers(n)
	doc := parseDocBlock(docComment(n, w.src))
	for _, el := range FindChildrenByType(n, "const_element") {
		parts := namedChildren(el)
		if len(parts) == 0 {
			continue
		}
		tag := w.memberTag(types.TagKindClassConstant, w.text(parts[0]))
		tag.Visibility = vis
		tag.IsStatic = true
		tag.Comment = doc.Text
		ev := Event{Kind: EventClassConstant, Scope: scope}
		if len(parts) > 1 {
			value := parts[len(parts)-1]
			tag.PhpDocType = w.literalType(value)
			ev.Expr = w.expression(value)
		}
		ev.Tag = tag
		w.emit(w.at(ev, el))
	}
}

func (w *walker) walkEnumCase(n *tree_sitter.Node, scope types.Scope) {
	tag := w.memberTag(types.TagKindClassConstant, w.text(n.ChildByFieldName("name")))
	tag.IsStatic = true
	tag.PhpDocType = w.class.name
	w.emit(w.at(Event{Kind: EventClassConstant, Scope: scope, Tag: tag}, n))
}

func (w *walker) walkProperty(n *tree_sitter.Node, scope types.Scope) {
	vis, static := w.modifiers(n)
	declared := w.qualifyType(w.text(n.ChildByFieldName("type")))
	doc := parseDocBlock(docComment(n, w.src))

	for _, el := range FindChildrenByType(n, "property_element") {
		name := strings.TrimPrefix(w.text(el.ChildByFieldName("name")), "$")
		if name == "" {
			continue
		}
		tag := w.memberTag(types.TagKindMember, name)
		tag.Visibility = vis
		tag.IsStatic = static
		tag.Comment = doc.Text

		ev := Event{Kind: EventProperty, Scope: scope}
		def := el.ChildByFieldName("default_value")
		switch {
		case declared != "":
			tag.PhpDocType = declared
		case doc.VarType != "":
			tag.PhpDocType = w.qualifyType(doc.VarType)
		case def != nil:
			tag.PhpDocType = w.literalType(def)
		}
		if def != nil {
			ev.Expr = w.expression(def)
		}
		ev.Tag = tag
		w.emit(w.at(ev, el))
	}
}

func (w *walker) walkTraitUse(n *tree_sitter.Node, scope types.Scope) {
	var relations []types.ClassRelation
	for _, c := range namedChildren(n) {
		if c.Kind() != "name" && c.Kind() != "qualified_name" {
			continue
		}
		relations = append(relations, types.ClassRelation{
			ClassName:   w.class.name,
			RelatedName: w.imports.Qualify(w.text(c)),
			Kind:        types.RelationUsesTrait,
			FullPath:    w.path,
		})
	}
	if len(relations) > 0 {
		w.emit(w.at(Event{Kind: EventTraitUse, Scope: scope, Relations: relations}, n))
	}
}

func (w *walker) walkMethod(n *tree_sitter.Node) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	vis, static := w.modifiers(n)
	params := n.ChildByFieldName("parameters")
	doc := parseDocBlock(docComment(n, w.src))

	tag := w.memberTag(types.TagKindMethod, name)
	tag.Visibility = vis
	tag.IsStatic = static
	tag.Signature = signatureText(w.text(params))
	tag.ReturnType = w.qualifyType(w.text(n.ChildByFieldName("return_type")))
	tag.PhpDocType = w.qualifyType(doc.ReturnType)
	tag.Comment = doc.Text

	scope := types.Scope{NamespaceName: w.imports.Namespace, ClassName: w.class.name, MethodName: name}
	w.emit(w.at(Event{Kind: EventMethod, Scope: scope, Tag: tag}, n))
	w.walkParameters(params, scope)
	if body := n.ChildByFieldName("body"); body != nil {
		w.walkStatements(body, scope)
	}
	w.emit(w.at(Event{Kind: EventScopeEnd, Scope: scope}, n))
}

func (w *walker) walkFunction(n *tree_sitter.Node) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	params := n.ChildByFieldName("parameters")
	doc := parseDocBlock(docComment(n, w.src))
	ns := w.imports.Namespace

	tag := types.Tag{
		Kind:          types.TagKindFunction,
		Identifier:    name,
		NamespaceName: ns,
		Signature:     signatureText(w.text(params)),
		ReturnType:    w.qualifyType(w.text(n.ChildByFieldName("return_type"))),
		PhpDocType:    w.qualifyType(doc.ReturnType),
		Comment:       doc.Text,
		FullPath:      w.path,
	}

	// a function declared inside a method body is still a free function
	saved := w.class
	w.class = nil
	scope := types.Scope{NamespaceName: ns, MethodName: name}
	w.emit(w.at(Event{Kind: EventFunction, Scope: scope, Tag: tag}, n))
	w.walkParameters(params, scope)
	if body := n.ChildByFieldName("body"); body != nil {
		w.walkStatements(body, scope)
	}
	w.emit(w.at(Event{Kind: EventScopeEnd, Scope: scope}, n))
	w.class = saved
}

func (w *walker) walkParameters(params *tree_sitter.Node, scope types.Scope) {
	for _, p := range namedChildren(params) {
		switch p.Kind() {
		case "simple_parameter", "variadic_parameter", "property_promotion_parameter":
		default:
			continue
		}
		nameNode := p.ChildByFieldName("name")
		if nameNode != nil && nameNode.Kind() == "by_ref" {
			nameNode = FindChildByType(nameNode, "variable_name")
		}
		name := w.text(nameNode)
		if name == "" {
			continue
		}

		hint := w.qualifyType(w.text(p.ChildByFieldName("type")))
		if p.Kind() == "variadic_parameter" {
			hint = "array"
		}
		ev := Event{Kind: EventParameter, Scope: scope, Name: name, TypeHint: hint}
		if def := p.ChildByFieldName("default_value"); def != nil {
			ev.Expr = w.expression(def)
		}
		w.emit(w.at(ev, p))

		if p.Kind() == "property_promotion_parameter" && w.class != nil {
			tag := w.memberTag(types.TagKindMember, strings.TrimPrefix(name, "$"))
			tag.Visibility = types.ParseVisibility(w.text(p.ChildByFieldName("visibility")))
			tag.PhpDocType = hint
			classScope := types.Scope{NamespaceName: scope.NamespaceName, ClassName: scope.ClassName}
			w.emit(w.at(Event{Kind: EventProperty, Scope: classScope, Tag: tag}, p))
		}
	}
}

func (w *walker) walkGlobalConst(n *tree_sitter.Node, scope types.Scope) {
	for _, el := range FindChildrenByType(n, "const_element") {
		parts := namedChildren(el)
		if len(parts) == 0 {
			continue
		}
		tag := types.Tag{
			Kind:          types.TagKindDefine,
			Identifier:    w.text(parts[0]),
			NamespaceName: w.imports.Namespace,
			FullPath:      w.path,
		}
		ev := Event{Kind: EventDefine, Scope: scope}
		if len(parts) > 1 {
			tag.PhpDocType = w.literalType(parts[len(parts)-1])
			ev.Expr = w.expression(parts[len(parts)-1])
		}
		ev.Tag = tag
		w.emit(w.at(ev, el))
	}
}

func (w *walker) walkExpressionStatement(n *tree_sitter.Node, scope types.Scope) {
	expr := firstNamed(n)
	if expr == nil {
		return
	}
	doc := parseDocBlock(docComment(n, w.src))

	switch expr.Kind() {
	case "assignment_expression", "reference_assignment_expression":
		w.walkAssignment(expr, scope, doc)
		return
	case "function_call_expression":
		w.walkDefine(expr, scope)
	}

	e := w.expression(expr)
	if e.Kind != types.ExprUnknown {
		w.emit(w.at(Event{Kind: EventExpression, Scope: scope, Expr: e}, expr))
	}
}

func (w *walker) walkAssignment(n *tree_sitter.Node, scope types.Scope, doc docBlock) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil {
		return
	}

	var value types.Expression
	switch right.Kind() {
	case "assignment_expression", "reference_assignment_expression":
		// $a = $b = expr assigns $b first
		w.walkAssignment(right, scope, docBlock{})
		value = w.expression(right.ChildByFieldName("left"))
	default:
		value = w.expression(right)
	}

	ev := Event{Kind: EventAssignment, Scope: scope, Expr: value}
	switch left.Kind() {
	case "variable_name":
		ev.Name = w.text(left)
		ev.Target = types.Expression{Kind: types.ExprVariable, Variable: ev.Name}
	case "subscript_expression":
		base := left.NamedChild(0)
		ev.ArrayWrite = true
		ev.Target = w.expression(base)
		ev.Name = ev.Target.Variable
		if idx := left.NamedChild(1); idx != nil {
			ev.Key = w.literalKey(idx)
		}
	case "list_literal":
		return
	default:
		ev.Target = w.expression(left)
		ev.Name = ev.Target.Variable
	}
	if ev.Target.Kind == types.ExprUnknown {
		return
	}
	if doc.VarType != "" && (doc.VarName == "" || doc.VarName == ev.Name) {
		ev.DocType = w.qualifyType(doc.VarType)
	}
	w.emit(w.at(ev, n))
}

func (w *walker) walkDefine(call *tree_sitter.Node, scope types.Scope) {
	fn := call.ChildByFieldName("function")
	if fn == nil || !strings.EqualFold(strings.TrimPrefix(w.text(fn), "\\"), "define") {
		return
	}
	args := w.argumentNodes(call.ChildByFieldName("arguments"))
	if len(args) == 0 {
		return
	}
	nameExpr := w.expression(args[0])
	if nameExpr.Kind != types.ExprScalar || nameExpr.Value == "" {
		return
	}
	tag := types.Tag{
		Kind:       types.TagKindDefine,
		Identifier: nameExpr.Value,
		FullPath:   w.path,
	}
	ev := Event{Kind: EventDefine, Scope: scope}
	if len(args) > 1 {
		tag.PhpDocType = w.literalType(args[1])
		ev.Expr = w.expression(args[1])
	}
	ev.Tag = tag
	w.emit(w.at(ev, call))
}

// qualifyType resolves a declared or documented type to its qualified
// form. self and static become the enclosing class, parent its parent.
func (w *walker) qualifyType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if strings.ContainsAny(t, "|&") {
		t = docTypeName(strings.ReplaceAll(t, "&", "|"))
	}
	t = strings.TrimPrefix(t, "?")
	switch strings.ToLower(t) {
	case "self", "static", "$this":
		if w.class != nil {
			return w.class.name
		}
		return ""
	case "parent":
		if w.class != nil {
			return w.class.parent
		}
		return ""
	}
	return w.imports.Qualify(t)
}

// signatureText normalizes whitespace in a parameter list
func signatureText(params string) string {
	return strings.Join(strings.Fields(params), " ")
}

func firstNamed(n *tree_sitter.Node) *tree_sitter.Node {
	children := namedChildren(n)
	if len(children) == 0 {
		return nil
	}
	return children[0]
}
