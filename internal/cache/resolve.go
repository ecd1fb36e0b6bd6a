package cache

import (
	"context"
	"strings"

	"github.com/standardbeagle/phptags/internal/debug"
	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/store"
	"github.com/standardbeagle/phptags/internal/symbols"
	"github.com/standardbeagle/phptags/internal/types"
)

// Completion is the answer to a completion request: local variable names
// for a bare variable prefix, tags for everything else
type Completion struct {
	Variables []string
	Tags      []types.Tag
}

// resolver types expressions of one scope of one file
type resolver struct {
	ctx     context.Context
	c       *Cache
	symbols *symbols.Table
	imports types.Imports
	scope   types.Scope
	policy  types.ResolutionPolicy
	ducked  bool // a hop was answered by searching every class
}

func (c *Cache) newResolver(ctx context.Context, fileID string, scope types.Scope, policy types.ResolutionPolicy) *resolver {
	r := &resolver{ctx: ctx, c: c, scope: scope, policy: policy, imports: types.NewImports(scope.NamespaceName)}
	if ws, ok := c.Working(fileID); ok {
		r.symbols = ws.Symbols()
		r.imports = r.symbols.Imports(scope.NamespaceName)
	}
	return r
}

// ExpressionCompletionMatches completes a partially typed expression:
// local variables for "$pa", members for "$this->load->vi" or "Foo::ba",
// and functions, classes and constants for a bare name. When the receiver
// of the last hop cannot be typed, DuckTyped searches the members of every
// class and reports the guess with a duck_typed error; Strict returns no
// matches and an unknown_receiver error.
func (c *Cache) ExpressionCompletionMatches(ctx context.Context, fileID string, expr types.Expression, scope types.Scope, policy types.ResolutionPolicy) (Completion, error) {
	if len(c.workings)+len(c.globals) == 0 {
		return Completion{}, tagerrors.NewResolutionError(tagerrors.CodeEmptyCache, expr.String(), "")
	}
	r := c.newResolver(ctx, fileID, scope, policy)

	if expr.IsBareVariable() {
		return Completion{Variables: r.variables(expr.Variable)}, nil
	}
	if c.IsResourceCacheEmpty(ctx) {
		return Completion{}, tagerrors.NewResolutionError(tagerrors.CodeEmptyCache, expr.String(), "")
	}

	switch {
	case len(expr.Chain) > 0:
		last, _ := expr.LastHop()
		tags, err := r.hopMatches(expr, last, false)
		return Completion{Tags: c.filterNative(tags)}, err
	case expr.Kind == types.ExprIdentifier || expr.Kind == types.ExprFunctionCall:
		name := expr.Value
		if expr.Kind == types.ExprFunctionCall {
			name = expr.Function
		}
		tags, err := c.NearMatchTags(ctx, name)
		return Completion{Tags: tags}, err
	case expr.Kind == types.ExprNew:
		tags, _, err := c.NearMatchClassesOrFiles(ctx, expr.ClassName)
		return Completion{Tags: c.filterNative(tags)}, err
	}
	return Completion{}, nil
}

// ResourceMatches resolves a complete expression to the declarations it
// refers to, for jump-to-definition and call tracing. With
// fullyQualifiedOnly, class, function and constant names must match their
// namespace-qualified form; otherwise a name that does not resolve in its
// namespace falls back to a match in any namespace.
func (c *Cache) ResourceMatches(ctx context.Context, fileID string, expr types.Expression, scope types.Scope, policy types.ResolutionPolicy, fullyQualifiedOnly bool) ([]types.Tag, error) {
	if c.IsResourceCacheEmpty(ctx) {
		return nil, tagerrors.NewResolutionError(tagerrors.CodeEmptyCache, expr.String(), "")
	}
	r := c.newResolver(ctx, fileID, scope, policy)

	switch {
	case len(expr.Chain) > 0:
		last, _ := expr.LastHop()
		return r.hopMatches(expr, last, true)
	case expr.Kind == types.ExprFunctionCall:
		return r.functionTags(expr, fullyQualifiedOnly)
	case expr.Kind == types.ExprNew:
		class, ok := r.className(expr.ClassName)
		if !ok {
			return nil, tagerrors.NewResolutionError(tagerrors.CodeUnknownResource, expr.String(), "")
		}
		return r.namedTags(expr, class, fullyQualifiedOnly, types.TagKindClass)
	case expr.Kind == types.ExprIdentifier:
		return r.namedTags(expr, r.imports.Qualify(expr.Value), fullyQualifiedOnly,
			types.TagKindClass, types.TagKindDefine, types.TagKindFunction)
	case expr.Kind == types.ExprStatic:
		class, ok := r.className(expr.ClassName)
		if !ok {
			return nil, tagerrors.NewResolutionError(tagerrors.CodeUnknownResource, expr.String(), "")
		}
		return r.namedTags(expr, class, fullyQualifiedOnly, types.TagKindClass)
	}
	return nil, nil
}

// hopMatches resolves the receiver of the last hop of expr and returns the
// members that hop names: the exact member when exact is set, every
// member starting with the hop name otherwise
func (r *resolver) hopMatches(expr types.Expression, last types.ChainItem, exact bool) ([]types.Tag, error) {
	receiver := expr.WithoutLastHop()
	class, rerr := r.classOf(receiver, 0, r.policy == types.ResolutionDuckTyped)

	if class == "" {
		if r.policy != types.ResolutionDuckTyped {
			if rerr == nil {
				rerr = tagerrors.NewResolutionError(tagerrors.CodeUnknownReceiver, expr.String(), last.Name)
			}
			return nil, rerr
		}
		tags, err := r.duckMembers(last.Name, exact)
		if err != nil {
			return nil, err
		}
		tags = filterHop(tags, last, exact)
		if len(tags) == 0 {
			return nil, tagerrors.NewResolutionError(tagerrors.CodeUnknownResource, expr.String(), last.Name)
		}
		debug.LogCache("duck typed %s: %d candidates\n", expr, len(tags))
		return tags, tagerrors.NewResolutionError(tagerrors.CodeDuckTyped, expr.String(), last.Name)
	}

	tags, err := r.c.memberTags(r.ctx, class, last.Name, exact)
	if err != nil {
		return nil, err
	}
	tags = filterHop(tags, last, exact)
	if len(tags) == 0 && exact {
		return nil, tagerrors.NewResolutionError(tagerrors.CodeUnknownResource, expr.String(), last.Name).WithClass(class)
	}
	if r.ducked {
		return tags, tagerrors.NewResolutionError(tagerrors.CodeDuckTyped, expr.String(), last.Name).WithClass(class)
	}
	return tags, nil
}

// filterHop keeps the member kinds reachable through the hop's operator.
// A complete hop also has to agree on call versus property access;
// completion of a partial hop offers both.
func filterHop(tags []types.Tag, hop types.ChainItem, exact bool) []types.Tag {
	out := tags[:0:0]
	for _, t := range tags {
		switch t.Kind {
		case types.TagKindMethod:
			if exact && !hop.IsMethod {
				continue
			}
		case types.TagKindClassConstant:
			if hop.IsMethod || !hop.IsStatic {
				continue
			}
		case types.TagKindMember:
			if hop.IsMethod || hop.IsStatic != t.IsStatic {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// classOf infers the class of the value expr evaluates to. It returns ""
// when the class cannot be inferred, with an error naming the hop that
// failed. duck allows intermediate hops to be answered by searching every
// class.
func (r *resolver) classOf(expr types.Expression, depth int, duck bool) (string, *tagerrors.ResolutionError) {
	if depth > r.c.opts.InferenceDepth {
		return "", tagerrors.NewResolutionError(tagerrors.CodeUnknownReceiver, expr.String(), "")
	}

	var class string
	switch expr.Kind {
	case types.ExprVariable:
		class = r.variableClass(expr.Variable, depth)
	case types.ExprNew, types.ExprStatic:
		class, _ = r.className(expr.ClassName)
	case types.ExprFunctionCall:
		if tags, err := r.functionTags(types.Expression{Kind: types.ExprFunctionCall, Function: expr.Function}, false); err == nil {
			for _, t := range tags {
				if class = r.typeClass(t.Type(), ""); class != "" {
					break
				}
			}
		}
	}

	for _, hop := range expr.Chain {
		if class == "" {
			if !duck {
				return "", tagerrors.NewResolutionError(tagerrors.CodeUnknownReceiver, expr.String(), hop.Name)
			}
			tags, err := r.duckMembers(hop.Name, true)
			if err != nil {
				return "", tagerrors.NewResolutionError(tagerrors.CodeUnknownReceiver, expr.String(), hop.Name)
			}
			for _, t := range filterHop(tags, hop, true) {
				if class = r.typeClass(t.Type(), t.ClassName); class != "" {
					break
				}
			}
			if class == "" {
				return "", tagerrors.NewResolutionError(tagerrors.CodeUnknownReceiver, expr.String(), hop.Name)
			}
			r.ducked = true
			continue
		}

		tags, err := r.c.memberTags(r.ctx, class, hop.Name, true)
		if err != nil {
			return "", tagerrors.NewResolutionError(tagerrors.CodeUnknownReceiver, expr.String(), hop.Name).WithClass(class)
		}
		tags = filterHop(tags, hop, true)
		if len(tags) == 0 {
			return "", tagerrors.NewResolutionError(tagerrors.CodeUnknownResource, expr.String(), hop.Name).WithClass(class)
		}
		class = r.typeClass(tags[0].Type(), tags[0].ClassName)
	}
	if class == "" {
		return "", tagerrors.NewResolutionError(tagerrors.CodeUnknownReceiver, expr.String(), "")
	}
	return class, nil
}

// variableClass infers the class of a local variable from its symbol
// record: the @var doc type, the parameter type hint, then each value it
// was assigned, newest first
func (r *resolver) variableClass(name string, depth int) string {
	if name == "$this" {
		return r.scope.ClassName
	}
	if r.symbols == nil {
		return ""
	}
	sym, ok := r.symbols.Lookup(r.scope, name)
	if !ok {
		return ""
	}
	if class := r.typeClass(sym.DocType, r.scope.ClassName); class != "" {
		return class
	}
	if class := r.typeClass(sym.TypeHint, r.scope.ClassName); class != "" {
		return class
	}
	for _, src := range sym.Sources() {
		if src.IsBareVariable() && src.Variable == name {
			continue
		}
		if class, _ := r.classOf(src, depth+1, false); class != "" {
			return class
		}
	}
	return ""
}

// className resolves a class reference as written in source, including
// self, static and parent
func (r *resolver) className(name string) (string, bool) {
	q := r.imports.Qualify(name)
	switch q {
	case "":
		return "", false
	case "self", "static":
		return r.scope.ClassName, r.scope.ClassName != ""
	case "parent":
		parent := r.parentOf(r.scope.ClassName)
		return parent, parent != ""
	}
	if types.IsPrimitiveType(q) {
		return "", false
	}
	return q, true
}

// typeClass maps a stored type such as "Ns\Foo", "?Foo", "Foo|null" or
// "static" to a class name. owner is the class the type was declared in.
func (r *resolver) typeClass(t, owner string) string {
	for _, part := range strings.Split(t, "|") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "?")
		if part == "" || strings.HasSuffix(part, "[]") {
			continue
		}
		switch strings.ToLower(part) {
		case "self", "static", "$this":
			if owner != "" {
				return owner
			}
			continue
		case "parent":
			if parent := r.parentOf(owner); parent != "" {
				return parent
			}
			continue
		}
		if types.IsPrimitiveType(part) {
			continue
		}
		return strings.TrimPrefix(part, "\\")
	}
	return ""
}

// parentOf returns the class className extends
func (r *resolver) parentOf(className string) string {
	if className == "" {
		return ""
	}
	relations, err := fanIn(r.ctx, r.c, func(q store.Queryable) ([]types.ClassRelation, error) {
		return q.ClassRelations(r.ctx, className)
	}, relationPath)
	if err != nil {
		return ""
	}
	for _, rel := range relations {
		if rel.Kind == types.RelationExtends {
			return rel.RelatedName
		}
	}
	return ""
}

func (r *resolver) duckMembers(name string, exact bool) ([]types.Tag, error) {
	return fanIn(r.ctx, r.c, func(q store.Queryable) ([]types.Tag, error) {
		return q.MembersByName(r.ctx, name, exact)
	}, tagPath)
}

// functionTags resolves a function call the way PHP does: the namespaced
// name first, then the global function of the same name
func (r *resolver) functionTags(expr types.Expression, fullyQualifiedOnly bool) ([]types.Tag, error) {
	name := expr.Function
	qualified := strings.TrimPrefix(name, "\\")
	if !strings.HasPrefix(name, "\\") {
		if strings.Contains(name, "\\") {
			qualified = r.imports.Qualify(name)
		} else {
			qualified = types.QualifyName(r.imports.Namespace, name)
		}
	}

	tags, err := r.namedTags(expr, qualified, true, types.TagKindFunction)
	if err == nil || strings.Contains(name, "\\") {
		return tags, err
	}
	// unqualified calls fall back to the global namespace
	if global, gerr := r.namedTags(expr, name, true, types.TagKindFunction); gerr == nil {
		return global, nil
	}
	if fullyQualifiedOnly {
		return nil, err
	}
	return r.namedTags(expr, name, false, types.TagKindFunction)
}

// namedTags looks up non-member tags called qualified with one of kinds
func (r *resolver) namedTags(expr types.Expression, qualified string, fullyQualifiedOnly bool, kinds ...types.TagKind) ([]types.Tag, error) {
	qualified = strings.TrimPrefix(qualified, "\\")
	tags, err := r.c.ExactTags(r.ctx, "\\"+qualified)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 && !fullyQualifiedOnly && strings.Contains(qualified, "\\") {
		if tags, err = r.c.ExactTags(r.ctx, types.ShortName(qualified)); err != nil {
			return nil, err
		}
	}

	out := tags[:0:0]
	for _, t := range tags {
		if !hasKind(t.Kind, kinds) {
			continue
		}
		if fullyQualifiedOnly && !strings.EqualFold(t.FullyQualified(), qualified) {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, tagerrors.NewResolutionError(tagerrors.CodeUnknownResource, expr.String(), "")
	}
	return out, nil
}

func hasKind(k types.TagKind, kinds []types.TagKind) bool {
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// variables lists the local variables of the resolver's scope starting
// with prefix, plus $this inside a class
func (r *resolver) variables(prefix string) []string {
	var names []string
	if r.scope.ClassName != "" && !r.scope.IsGlobal() && strings.HasPrefix("$this", prefix) {
		names = append(names, "$this")
	}
	if r.symbols != nil {
		names = append(names, r.symbols.Variables(r.scope, prefix)...)
	}
	return names
}
