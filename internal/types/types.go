package types

import (
	"fmt"
	"strings"
)

// PHPVersion selects the syntax dialect the parser accepts
type PHPVersion uint8

const (
	// PHPVersionAuto asks the parser to detect the dialect from an installed interpreter
	PHPVersionAuto PHPVersion = iota
	// PHPVersion53 rejects traits and short array syntax
	PHPVersion53
	// PHPVersion54 accepts 5.4 and later syntax
	PHPVersion54
)

func (v PHPVersion) String() string {
	switch v {
	case PHPVersion53:
		return "5.3"
	case PHPVersion54:
		return "5.4"
	default:
		return "auto"
	}
}

// ParsePHPVersion maps a config string onto a PHPVersion.
// Anything 5.4 or newer ("7.4", "8.2") selects PHPVersion54.
func ParsePHPVersion(s string) (PHPVersion, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch {
	case s == "" || s == "auto":
		return PHPVersionAuto, nil
	case s == "5.3" || strings.HasPrefix(s, "5.3."):
		return PHPVersion53, nil
	case strings.HasPrefix(s, "5.") || strings.HasPrefix(s, "7") || strings.HasPrefix(s, "8"):
		return PHPVersion54, nil
	}
	return PHPVersionAuto, fmt.Errorf("unsupported php version %q", s)
}

// ResolutionPolicy decides what happens when a receiver type cannot be inferred
type ResolutionPolicy uint8

const (
	// ResolutionStrict stops at an unknown receiver and reports it
	ResolutionStrict ResolutionPolicy = iota
	// ResolutionDuckTyped searches members of every known class instead
	ResolutionDuckTyped
)

func (p ResolutionPolicy) String() string {
	if p == ResolutionDuckTyped {
		return "duck-typed"
	}
	return "strict"
}

// Scope identifies a lexical scope inside one file. The zero value is the
// file's default (global) scope.
type Scope struct {
	NamespaceName string
	ClassName     string // qualified class name, empty for free functions
	MethodName    string // method or function name, empty for the default scope
}

// IsGlobal reports whether the scope is the file's default scope
func (s Scope) IsGlobal() bool {
	return s.MethodName == ""
}

// Key returns a stable map key for the scope
func (s Scope) Key() string {
	if s.ClassName == "" {
		return s.NamespaceName + "\\" + s.MethodName
	}
	return s.ClassName + "::" + s.MethodName
}

func (s Scope) String() string {
	switch {
	case s.IsGlobal():
		return "<global>"
	case s.ClassName != "":
		return s.ClassName + "::" + s.MethodName
	default:
		return QualifyName(s.NamespaceName, s.MethodName)
	}
}

// QualifyName joins a namespace and a short name without a leading backslash
func QualifyName(namespace, name string) string {
	name = strings.TrimPrefix(name, "\\")
	namespace = strings.Trim(namespace, "\\")
	if namespace == "" {
		return name
	}
	return namespace + "\\" + name
}

// ShortName returns the last segment of a namespace-qualified name
func ShortName(qualified string) string {
	qualified = strings.TrimPrefix(qualified, "\\")
	if i := strings.LastIndex(qualified, "\\"); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// NamespaceOf returns everything before the last backslash of a qualified name
func NamespaceOf(qualified string) string {
	qualified = strings.TrimPrefix(qualified, "\\")
	if i := strings.LastIndex(qualified, "\\"); i >= 0 {
		return qualified[:i]
	}
	return ""
}
