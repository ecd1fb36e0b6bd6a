package types

import (
	"fmt"
	"strings"
)

// StepType is the kind of one call trace step
type StepType uint8

const (
	StepBeginFunction StepType = iota
	StepBeginMethod
	StepAssign
	StepScalar
	StepArray
	StepArrayKey
	StepNewObject
	StepProperty
	StepMethodCall
	StepFunctionCall
	StepReturn
	StepParam
)

var stepTypeNames = [...]string{
	StepBeginFunction: "BEGIN_FUNCTION",
	StepBeginMethod:   "BEGIN_METHOD",
	StepAssign:        "ASSIGN",
	StepScalar:        "SCALAR",
	StepArray:         "ARRAY",
	StepArrayKey:      "ARRAY_KEY",
	StepNewObject:     "NEW_OBJECT",
	StepProperty:      "PROPERTY",
	StepMethodCall:    "METHOD_CALL",
	StepFunctionCall:  "FUNCTION_CALL",
	StepReturn:        "RETURN",
	StepParam:         "PARAM",
}

func (t StepType) String() string {
	if int(t) < len(stepTypeNames) {
		return stepTypeNames[t]
	}
	return "UNKNOWN"
}

// ParseStepType is the inverse of StepType.String
func ParseStepType(s string) (StepType, error) {
	for i, name := range stepTypeNames {
		if name == s {
			return StepType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown step type %q", s)
}

// TempVariablePrefix prefixes synthetic variables naming intermediate values
const TempVariablePrefix = "$@tmp"

// TempVariable returns the n-th synthetic variable name
func TempVariable(n int) string {
	return fmt.Sprintf("%s%d", TempVariablePrefix, n)
}

// Step is one flattened variable operation of a call trace. Which fields
// are set depends on Type:
//
//	BEGIN_METHOD    ClassName, Name
//	BEGIN_FUNCTION  Name
//	ASSIGN          Variable <- Source
//	SCALAR          Variable, Value
//	ARRAY           Variable
//	ARRAY_KEY       Variable, Key
//	NEW_OBJECT      Variable, ClassName
//	PROPERTY        Variable <- Source->Name
//	METHOD_CALL     Variable <- Source->Name(Arguments)
//	FUNCTION_CALL   Variable <- Name(Arguments)
//	RETURN          Source
//	PARAM           Variable (callee parameter) <- Source (caller argument)
type Step struct {
	Number    int
	Type      StepType
	Variable  string
	Source    string
	Name      string
	ClassName string
	Key       string
	Value     string
	Arguments []string
}

// Expression renders the step in its canonical text form, for example
// "METHOD_CALL($@tmp4,$@tmp2,view,[$@tmp3,$data])".
func (s Step) Expression() string {
	var parts []string
	switch s.Type {
	case StepBeginMethod:
		parts = []string{s.ClassName, s.Name}
	case StepBeginFunction:
		parts = []string{s.Name}
	case StepAssign, StepParam:
		parts = []string{s.Variable, s.Source}
	case StepScalar:
		parts = []string{s.Variable, s.Value}
	case StepArray:
		parts = []string{s.Variable}
	case StepArrayKey:
		parts = []string{s.Variable, s.Key}
	case StepNewObject:
		parts = []string{s.Variable, s.ClassName}
	case StepProperty:
		parts = []string{s.Variable, s.Source, s.Name}
	case StepMethodCall:
		parts = []string{s.Variable, s.Source, s.Name, "[" + strings.Join(s.Arguments, ",") + "]"}
	case StepFunctionCall:
		parts = []string{s.Variable, s.Name, "[" + strings.Join(s.Arguments, ",") + "]"}
	case StepReturn:
		parts = []string{s.Source}
	}
	return s.Type.String() + "(" + strings.Join(parts, ",") + ")"
}

func (s Step) String() string {
	return s.Expression()
}
