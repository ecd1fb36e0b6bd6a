package symbols

import (
	"iter"
	"sort"
	"strings"

	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/types"
)

// Symbol is what one scope knows about one variable
type Symbol struct {
	Name        string
	Source      types.Expression   // most recent value assigned
	History     []types.Expression // earlier values, oldest first
	TypeHint    string             // declared parameter type
	DocType     string             // inline @var type
	ArrayKeys   []string
	IsParameter bool
	Line        int
}

// Sources returns every value assigned to the variable, newest first
func (s Symbol) Sources() []types.Expression {
	out := make([]types.Expression, 0, len(s.History)+1)
	if s.Source.Kind != types.ExprUnknown {
		out = append(out, s.Source)
	}
	for i := len(s.History) - 1; i >= 0; i-- {
		out = append(out, s.History[i])
	}
	return out
}

// HasKey reports whether key was recorded as an array key of the variable
func (s Symbol) HasKey(key string) bool {
	for _, k := range s.ArrayKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ScopeTable holds the variables of one function, method or file scope
type ScopeTable struct {
	Scope   types.Scope
	Returns []types.Expression
	symbols map[string]*Symbol
	order   []string
}

func newScopeTable(scope types.Scope) *ScopeTable {
	return &ScopeTable{Scope: scope, symbols: make(map[string]*Symbol)}
}

// Lookup returns the record for name ("$x")
func (st *ScopeTable) Lookup(name string) (Symbol, bool) {
	if st == nil {
		return Symbol{}, false
	}
	s, ok := st.symbols[name]
	if !ok {
		return Symbol{}, false
	}
	return *s, true
}

// Len returns the number of variables recorded in the scope
func (st *ScopeTable) Len() int {
	if st == nil {
		return 0
	}
	return len(st.order)
}

// Names returns the recorded variable names in first-seen order
func (st *ScopeTable) Names() []string {
	if st == nil {
		return nil
	}
	return append([]string(nil), st.order...)
}

func (st *ScopeTable) symbol(name string, line int) *Symbol {
	s, ok := st.symbols[name]
	if !ok {
		s = &Symbol{Name: name, Line: line}
		st.symbols[name] = s
		st.order = append(st.order, name)
	}
	return s
}

// Table is the symbol table of one file: a ScopeTable per scope plus the
// use aliases of each namespace the file declares.
type Table struct {
	imports map[string]types.Imports
	scopes  map[string]*ScopeTable
	order   []string
}

// New returns an empty table
func New() *Table {
	return &Table{imports: make(map[string]types.Imports), scopes: make(map[string]*ScopeTable)}
}

// Imports returns the name resolution context of namespace. Blocks of the
// same namespace share their aliases.
func (t *Table) Imports(namespace string) types.Imports {
	namespace = strings.Trim(namespace, "\\")
	if t != nil {
		if im, ok := t.imports[strings.ToLower(namespace)]; ok {
			return im
		}
	}
	return types.NewImports(namespace)
}

// Build folds a file's parse events into a symbol table. Each function or
// method scope starts empty when it is entered, so a variable assigned in
// one scope is never visible from another.
func Build(events iter.Seq[parser.Event]) *Table {
	t := New()
	for ev := range events {
		t.apply(ev)
	}
	return t
}

func (t *Table) scope(scope types.Scope) *ScopeTable {
	key := scope.Key()
	st, ok := t.scopes[key]
	if !ok {
		st = newScopeTable(scope)
		t.scopes[key] = st
		t.order = append(t.order, key)
	}
	return st
}

func (t *Table) apply(ev parser.Event) {
	switch ev.Kind {
	case parser.EventNamespace:
		key := strings.ToLower(ev.Tag.Identifier)
		if _, ok := t.imports[key]; !ok {
			t.imports[key] = types.NewImports(ev.Tag.Identifier)
		}
	case parser.EventUse:
		im := t.Imports(ev.Scope.NamespaceName)
		im.Add(ev.Name, ev.Alias)
		t.imports[strings.ToLower(im.Namespace)] = im
	case parser.EventMethod, parser.EventFunction:
		// a redeclared scope (conditional definitions) starts over
		if st, ok := t.scopes[ev.Scope.Key()]; ok {
			*st = *newScopeTable(ev.Scope)
			return
		}
		t.scope(ev.Scope)
	case parser.EventParameter:
		s := t.scope(ev.Scope).symbol(ev.Name, ev.Line)
		s.IsParameter = true
		s.TypeHint = ev.TypeHint
		s.Source = ev.Expr
	case parser.EventAssignment:
		t.assign(ev)
	case parser.EventReturn:
		st := t.scope(ev.Scope)
		st.Returns = append(st.Returns, ev.Expr)
	}
}

func (t *Table) assign(ev parser.Event) {
	if ev.Target.Kind != types.ExprVariable || len(ev.Target.Chain) > 0 || ev.Name == "" {
		// property and static targets are not local variables
		return
	}
	s := t.scope(ev.Scope).symbol(ev.Name, ev.Line)

	if ev.ArrayWrite {
		if s.Source.Kind == types.ExprUnknown {
			s.Source = types.Expression{Kind: types.ExprArray}
		}
		if ev.Key != "" && !s.HasKey(ev.Key) {
			s.ArrayKeys = append(s.ArrayKeys, ev.Key)
		}
		return
	}

	if s.Source.Kind != types.ExprUnknown {
		s.History = append(s.History, s.Source)
	}
	s.Source = ev.Expr
	if ev.DocType != "" {
		s.DocType = ev.DocType
	}
	for _, k := range ev.Expr.ArrayKeys {
		if !s.HasKey(k) {
			s.ArrayKeys = append(s.ArrayKeys, k)
		}
	}
}

// Scope returns the table of one scope
func (t *Table) Scope(scope types.Scope) (*ScopeTable, bool) {
	if t == nil {
		return nil, false
	}
	st, ok := t.scopes[scope.Key()]
	return st, ok
}

// Lookup finds name in scope. A variable never assigned in that scope is
// unknown even when another scope of the file defines it.
func (t *Table) Lookup(scope types.Scope, name string) (Symbol, bool) {
	st, ok := t.Scope(scope)
	if !ok {
		return Symbol{}, false
	}
	return st.Lookup(name)
}

// Variables returns the sorted variable names of scope starting with prefix.
// The prefix may be given with or without the leading "$".
func (t *Table) Variables(scope types.Scope, prefix string) []string {
	st, ok := t.Scope(scope)
	if !ok {
		return nil
	}
	if prefix != "" && !strings.HasPrefix(prefix, "$") {
		prefix = "$" + prefix
	}
	var out []string
	for _, name := range st.order {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Scopes lists the scopes of the file in declaration order
func (t *Table) Scopes() []types.Scope {
	if t == nil {
		return nil
	}
	out := make([]types.Scope, 0, len(t.order))
	for _, key := range t.order {
		if st, ok := t.scopes[key]; ok {
			out = append(out, st.Scope)
		}
	}
	return out
}

// Len returns the number of variable records across all scopes
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, st := range t.scopes {
		n += st.Len()
	}
	return n
}
