package types

import "strings"

// TagKind is the kind of declaration a Tag records
type TagKind uint8

const (
	TagKindClass TagKind = iota
	TagKindMethod
	TagKindMember // property
	TagKindClassConstant
	TagKindFunction
	TagKindDefine
	TagKindNamespace
)

func (k TagKind) String() string {
	switch k {
	case TagKindClass:
		return "CLASS"
	case TagKindMethod:
		return "METHOD"
	case TagKindMember:
		return "MEMBER"
	case TagKindClassConstant:
		return "CLASS_CONSTANT"
	case TagKindFunction:
		return "FUNCTION"
	case TagKindDefine:
		return "DEFINE"
	case TagKindNamespace:
		return "NAMESPACE"
	default:
		return "UNKNOWN"
	}
}

// IsMember reports whether the kind lives inside a class body
func (k TagKind) IsMember() bool {
	return k == TagKindMethod || k == TagKindMember || k == TagKindClassConstant
}

// ClassFlavor distinguishes classes, interfaces and traits sharing TagKindClass
type ClassFlavor uint8

const (
	FlavorClass ClassFlavor = iota
	FlavorInterface
	FlavorTrait
)

// Visibility of a method or property
type Visibility uint8

const (
	VisibilityPublic Visibility = iota
	VisibilityProtected
	VisibilityPrivate
)

func (v Visibility) String() string {
	switch v {
	case VisibilityProtected:
		return "protected"
	case VisibilityPrivate:
		return "private"
	default:
		return "public"
	}
}

// ParseVisibility maps a PHP modifier keyword onto a Visibility
func ParseVisibility(s string) Visibility {
	switch strings.ToLower(s) {
	case "protected":
		return VisibilityProtected
	case "private":
		return VisibilityPrivate
	default:
		return VisibilityPublic
	}
}

// Tag is a single declaration found in PHP source. Tags deliberately carry
// no byte offsets: the source may have been edited since it was indexed, so
// positions are recovered with parser.Locate against the current text.
type Tag struct {
	ID              int64
	Kind            TagKind
	Flavor          ClassFlavor
	Identifier      string
	ClassName       string // qualified owning class, empty for functions/defines
	ClassIdentifier string // short owning class name
	NamespaceName   string
	Signature       string
	ReturnType      string
	PhpDocType      string
	Comment         string
	Visibility      Visibility
	IsStatic        bool
	IsDynamic       bool
	IsNative        bool
	FullPath        string
	FileItemID      int64
	SourceID        int64
}

// FullyQualified returns the lookup key used by exact matching:
// "Ns\Class", "Ns\Class::member" or "Ns\function".
func (t Tag) FullyQualified() string {
	if t.Kind.IsMember() {
		return t.ClassName + "::" + t.Identifier
	}
	if t.Kind == TagKindNamespace {
		return t.Identifier
	}
	return QualifyName(t.NamespaceName, t.Identifier)
}

// HasFileLocation reports whether the tag can be jumped to
func (t Tag) HasFileLocation() bool {
	return !t.IsDynamic && !t.IsNative && t.FullPath != ""
}

// Type returns the most specific known type of the tag's value: the
// declared return type for callables, the doc or declared type for members.
func (t Tag) Type() string {
	if t.ReturnType != "" {
		return t.ReturnType
	}
	return t.PhpDocType
}

// ClassRelationKind says how two classes are related
type ClassRelationKind uint8

const (
	RelationExtends ClassRelationKind = iota
	RelationImplements
	RelationUsesTrait
)

// ClassRelation records one inheritance edge declared by a class
type ClassRelation struct {
	ClassName   string // qualified declaring class
	RelatedName string // qualified parent, interface or trait
	Kind        ClassRelationKind
	FullPath    string
}

// TagSearch is a parsed lookup string such as "Foo", "\Ns\Foo", "Foo::bar"
// or "::bar" (member of any class).
type TagSearch struct {
	ClassName  string
	Identifier string
	Qualified  bool // the class or identifier carried a namespace
	HasClass   bool // the search used the "::" operator
}

// ParseTagSearch splits a lookup string into class and identifier parts
func ParseTagSearch(s string) TagSearch {
	s = strings.TrimSpace(s)
	var ts TagSearch
	if i := strings.Index(s, "::"); i >= 0 {
		ts.HasClass = true
		ts.ClassName = strings.TrimPrefix(s[:i], "\\")
		ts.Identifier = s[i+2:]
		ts.Qualified = strings.Contains(ts.ClassName, "\\")
		return ts
	}
	s = strings.TrimPrefix(s, "\\")
	ts.Identifier = s
	ts.Qualified = strings.Contains(s, "\\")
	return ts
}
