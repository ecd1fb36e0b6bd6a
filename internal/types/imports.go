package types

import "strings"

var primitiveTypes = map[string]bool{
	"array": true, "bool": true, "boolean": true, "callable": true, "false": true,
	"float": true, "double": true, "int": true, "integer": true, "iterable": true,
	"mixed": true, "never": true, "null": true, "object": true, "resource": true,
	"string": true, "true": true, "void": true, "number": true,
}

// IsPrimitiveType reports whether t names a scalar or pseudo type rather than a class
func IsPrimitiveType(t string) bool {
	return primitiveTypes[strings.ToLower(strings.TrimPrefix(t, "?"))]
}

// IsRelativeClassName reports whether name is self, static or parent
func IsRelativeClassName(name string) bool {
	switch strings.ToLower(name) {
	case "self", "static", "parent":
		return true
	}
	return false
}

// Imports is the name resolution context of one file: the current
// namespace and the class aliases introduced by "use" statements.
type Imports struct {
	Namespace string
	Aliases   map[string]string // lowercased alias -> qualified name
}

// NewImports returns an empty context for the given namespace
func NewImports(namespace string) Imports {
	return Imports{Namespace: strings.Trim(namespace, "\\"), Aliases: make(map[string]string)}
}

// Add records "use qualified as alias". An empty alias uses the last segment.
func (im *Imports) Add(qualified, alias string) {
	if im.Aliases == nil {
		im.Aliases = make(map[string]string)
	}
	qualified = strings.TrimPrefix(qualified, "\\")
	if alias == "" {
		alias = ShortName(qualified)
	}
	im.Aliases[strings.ToLower(alias)] = qualified
}

// Qualify resolves a class name as written in source to its fully
// qualified form without a leading backslash. Primitive and relative names
// (self, static, parent) come back lowercased and unqualified. Names that
// start with a backslash are already absolute, which makes Qualify
// idempotent for its own output when prefixed with "\".
func (im Imports) Qualify(name string) string {
	name = strings.TrimSpace(strings.TrimPrefix(name, "?"))
	if name == "" {
		return ""
	}
	if IsPrimitiveType(name) || IsRelativeClassName(name) {
		return strings.ToLower(name)
	}
	if strings.HasPrefix(name, "\\") {
		return strings.TrimPrefix(name, "\\")
	}
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "namespace\\") {
		return QualifyName(im.Namespace, name[len("namespace\\"):])
	}
	first, rest, hasRest := strings.Cut(name, "\\")
	if q, ok := im.Aliases[strings.ToLower(first)]; ok {
		if hasRest {
			return q + "\\" + rest
		}
		return q
	}
	return QualifyName(im.Namespace, name)
}

// Clone returns a copy whose alias map can be modified independently
func (im Imports) Clone() Imports {
	c := Imports{Namespace: im.Namespace, Aliases: make(map[string]string, len(im.Aliases))}
	for k, v := range im.Aliases {
		c.Aliases[k] = v
	}
	return c
}
