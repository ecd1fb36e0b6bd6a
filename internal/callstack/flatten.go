package callstack

import (
	"context"
	"strings"

	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/types"
)

// folder flattens the events of one scope into steps. Intermediate values
// get "$@tmpN" names, numbered from 1 per scope.
type folder struct {
	b     *Builder
	item  workItem
	scope types.Scope

	temp      int
	param     int
	thisBound bool
	arrays    map[string]bool
	keys      map[string]bool
}

func newFolder(b *Builder, item workItem, scope types.Scope) *folder {
	return &folder{
		b:      b,
		item:   item,
		scope:  scope,
		arrays: make(map[string]bool),
		keys:   make(map[string]bool),
	}
}

func (f *folder) nextTemp() string {
	f.temp++
	return types.TempVariable(f.temp)
}

func (f *folder) apply(ctx context.Context, ev parser.Event) error {
	switch ev.Kind {
	case parser.EventMethod:
		return f.b.addStep(types.Step{Type: types.StepBeginMethod, ClassName: ev.Tag.ClassName, Name: ev.Tag.Identifier})
	case parser.EventFunction:
		return f.b.addStep(types.Step{Type: types.StepBeginFunction, Name: ev.Tag.Identifier})
	case parser.EventParameter:
		return f.parameter(ctx, ev)
	case parser.EventAssignment:
		return f.assignment(ctx, ev)
	case parser.EventExpression:
		_, err := f.flatten(ctx, ev.Expr)
		return err
	case parser.EventReturn:
		v, err := f.flatten(ctx, ev.Expr)
		if err != nil {
			return err
		}
		return f.b.addStep(types.Step{Type: types.StepReturn, Source: v})
	}
	return nil
}

// parameter binds the caller's argument to the i-th parameter. The traced
// root has no caller, so its parameters stay unbound.
func (f *folder) parameter(ctx context.Context, ev parser.Event) error {
	i := f.param
	f.param++
	if f.item.args == nil {
		return nil
	}
	if i < len(f.item.args) {
		return f.b.addStep(types.Step{Type: types.StepParam, Variable: ev.Name, Source: f.item.args[i]})
	}
	if ev.Expr.Kind == types.ExprUnknown {
		return nil
	}
	v, err := f.flatten(ctx, ev.Expr)
	if err != nil {
		return err
	}
	return f.b.addStep(types.Step{Type: types.StepParam, Variable: ev.Name, Source: v})
}

// bindParameters records PARAM steps at a call site whose callee body is
// already part of the trace
func (f *folder) bindParameters(params, args []string) error {
	for i, p := range params {
		if i >= len(args) {
			break
		}
		if err := f.b.addStep(types.Step{Type: types.StepParam, Variable: p, Source: args[i]}); err != nil {
			return err
		}
	}
	return nil
}

func (f *folder) assignment(ctx context.Context, ev parser.Event) error {
	if ev.ArrayWrite {
		return f.arrayWrite(ctx, ev)
	}
	v, err := f.flatten(ctx, ev.Expr)
	if err != nil {
		return err
	}
	target := ev.Name
	if !ev.Target.IsBareVariable() {
		if err := f.bindThis(ev.Target.Variable); err != nil {
			return err
		}
		target = ev.Target.String()
	}
	if ev.Expr.Kind == types.ExprArray {
		f.arrays[target] = true
		for _, k := range ev.Expr.ArrayKeys {
			f.keys[target+"\x00"+k] = true
		}
	}
	return f.b.addStep(types.Step{Type: types.StepAssign, Variable: target, Source: v})
}

// arrayWrite records "$a[k] = v" once per variable and key
func (f *folder) arrayWrite(ctx context.Context, ev parser.Event) error {
	name := ev.Name
	if !ev.Target.IsBareVariable() && ev.Target.Kind != types.ExprUnknown {
		if err := f.bindThis(ev.Target.Variable); err != nil {
			return err
		}
		name = ev.Target.String()
	}
	if !f.arrays[name] {
		f.arrays[name] = true
		if err := f.b.addStep(types.Step{Type: types.StepArray, Variable: name}); err != nil {
			return err
		}
	}
	if ev.Key != "" && !f.keys[name+"\x00"+ev.Key] {
		f.keys[name+"\x00"+ev.Key] = true
		if err := f.b.addStep(types.Step{Type: types.StepArrayKey, Variable: name, Key: ev.Key}); err != nil {
			return err
		}
	}
	if ev.Expr.HasCalls() {
		_, err := f.flatten(ctx, ev.Expr)
		return err
	}
	return nil
}

// bindThis records "$this" the first time the scope uses it
func (f *folder) bindThis(variable string) error {
	if variable != "$this" || f.thisBound {
		return nil
	}
	f.thisBound = true
	return f.b.addStep(types.Step{Type: types.StepAssign, Variable: "$this"})
}

// flatten records the steps evaluating e and returns the variable holding
// its value
func (f *folder) flatten(ctx context.Context, e types.Expression) (string, error) {
	var recv string
	switch e.Kind {
	case types.ExprUnknown:
		return "", nil
	case types.ExprVariable:
		if err := f.bindThis(e.Variable); err != nil {
			return "", err
		}
		recv = e.Variable
	case types.ExprScalar, types.ExprIdentifier:
		recv = f.nextTemp()
		if err := f.b.addStep(types.Step{Type: types.StepScalar, Variable: recv, Value: e.Value}); err != nil {
			return "", err
		}
	case types.ExprArray:
		recv = f.nextTemp()
		if err := f.b.addStep(types.Step{Type: types.StepArray, Variable: recv}); err != nil {
			return "", err
		}
		for _, k := range e.ArrayKeys {
			if err := f.b.addStep(types.Step{Type: types.StepArrayKey, Variable: recv, Key: k}); err != nil {
				return "", err
			}
		}
	case types.ExprNew:
		args, err := f.flattenAll(ctx, e.Args)
		if err != nil {
			return "", err
		}
		recv = f.nextTemp()
		className := strings.TrimPrefix(e.ClassName, "\\")
		if err := f.b.addStep(types.Step{Type: types.StepNewObject, Variable: recv, ClassName: className}); err != nil {
			return "", err
		}
		ctor := types.Expression{
			Kind:      types.ExprStatic,
			ClassName: e.ClassName,
			Chain:     []types.ChainItem{{Name: "__construct", IsMethod: true, IsStatic: true}},
		}
		if err := f.b.followCall(ctx, f, ctor, args, true); err != nil {
			return "", err
		}
	case types.ExprFunctionCall:
		args, err := f.flattenAll(ctx, e.Args)
		if err != nil {
			return "", err
		}
		recv = f.nextTemp()
		if err := f.b.addStep(types.Step{Type: types.StepFunctionCall, Variable: recv, Name: e.Function, Arguments: args}); err != nil {
			return "", err
		}
		call := e
		call.Chain = nil
		if err := f.b.followCall(ctx, f, call, args, false); err != nil {
			return "", err
		}
	case types.ExprStatic:
		recv = strings.TrimPrefix(e.ClassName, "\\")
	}

	for i, hop := range e.Chain {
		if !hop.IsMethod {
			next := f.nextTemp()
			if err := f.b.addStep(types.Step{Type: types.StepProperty, Variable: next, Source: recv, Name: hop.Name}); err != nil {
				return "", err
			}
			recv = next
			continue
		}
		args, err := f.flattenAll(ctx, hop.Args)
		if err != nil {
			return "", err
		}
		next := f.nextTemp()
		if err := f.b.addStep(types.Step{Type: types.StepMethodCall, Variable: next, Source: recv, Name: hop.Name, Arguments: args}); err != nil {
			return "", err
		}
		call := e
		call.Chain = e.Chain[:i+1]
		if err := f.b.followCall(ctx, f, call, args, false); err != nil {
			return "", err
		}
		recv = next
	}
	return recv, nil
}

func (f *folder) flattenAll(ctx context.Context, exprs []types.Expression) ([]string, error) {
	out := make([]string, 0, len(exprs))
	for _, e := range exprs {
		v, err := f.flatten(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
