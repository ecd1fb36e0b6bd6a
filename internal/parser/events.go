package parser

import (
	"github.com/standardbeagle/phptags/internal/types"
)

// EventKind identifies what a parse event reports
type EventKind uint8

const (
	EventNamespace     EventKind = iota // Tag (NAMESPACE)
	EventUse                            // Name imported as Alias
	EventClass                          // Tag (CLASS), Relations (extends/implements)
	EventTraitUse                       // Relations (uses trait) of Scope.ClassName
	EventClassConstant                  // Tag, Expr is the value
	EventProperty                       // Tag, Expr is the default value
	EventMethod                         // Tag; Scope is the method's own scope
	EventFunction                       // Tag; Scope is the function's own scope
	EventDefine                         // Tag (DEFINE), Expr is the value
	EventParameter                      // Name, TypeHint, Expr is the default
	EventAssignment                     // Target = Expr
	EventExpression                     // Expr evaluated for its effect
	EventReturn                         // Expr returned
	EventScopeEnd                       // Scope closed
)

var eventKindNames = [...]string{
	EventNamespace:     "namespace",
	EventUse:           "use",
	EventClass:         "class",
	EventTraitUse:      "trait_use",
	EventClassConstant: "class_constant",
	EventProperty:      "property",
	EventMethod:        "method",
	EventFunction:      "function",
	EventDefine:        "define",
	EventParameter:     "parameter",
	EventAssignment:    "assignment",
	EventExpression:    "expression",
	EventReturn:        "return",
	EventScopeEnd:      "scope_end",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// IsDeclaration reports whether the event carries a Tag
func (k EventKind) IsDeclaration() bool {
	switch k {
	case EventNamespace, EventClass, EventClassConstant, EventProperty,
		EventMethod, EventFunction, EventDefine:
		return true
	}
	return false
}

// Event is one observation of the linear parse pass. Fields beyond Kind,
// Scope and Line are populated according to Kind.
type Event struct {
	Kind      EventKind
	Scope     types.Scope
	Tag       types.Tag
	Relations []types.ClassRelation

	Name     string // variable ("$x") for parameters and assignments, qualified name for uses
	Alias    string
	TypeHint string // qualified declared type of a parameter
	DocType  string // qualified @var type attached to an assignment

	// Target is the left side of an assignment. ArrayWrite marks "$a[...] =";
	// Key holds the literal key when there is one.
	Target     types.Expression
	ArrayWrite bool
	Key        string

	Expr types.Expression

	Line   int
	Column int
}
