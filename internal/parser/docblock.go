package parser

import (
	"regexp"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

var (
	docVarTypeFirst = regexp.MustCompile(`@var\s+([^\s$*]+)(?:\s+(\$\w+))?`)
	docVarNameFirst = regexp.MustCompile(`@var\s+(\$\w+)\s+([^\s*]+)`)
	docReturn       = regexp.MustCompile(`@return\s+([^\s*]+)`)
)

type docBlock struct {
	Text       string
	VarType    string
	VarName    string // "$name" when the @var tag names a variable
	ReturnType string
}

// docComment returns the /** */ comment immediately preceding node, if any
func docComment(node *tree_sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	prev := node.PrevSibling()
	if prev == nil || prev.Kind() != "comment" {
		return ""
	}
	text := GetNodeText(prev, src)
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	return text
}

func parseDocBlock(text string) docBlock {
	d := docBlock{Text: strings.TrimSpace(text)}
	if text == "" {
		return d
	}
	if m := docVarNameFirst.FindStringSubmatch(text); m != nil {
		d.VarName = m[1]
		d.VarType = docTypeName(m[2])
	} else if m := docVarTypeFirst.FindStringSubmatch(text); m != nil {
		d.VarType = docTypeName(m[1])
		d.VarName = m[2]
	}
	if m := docReturn.FindStringSubmatch(text); m != nil {
		d.ReturnType = docTypeName(m[1])
	}
	return d
}

// docTypeName picks the most useful member of a doc type expression:
// "Foo|null" is Foo, "Foo[]" is array.
func docTypeName(t string) string {
	for _, part := range strings.Split(t, "|") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "?")
		switch strings.ToLower(part) {
		case "", "null", "false", "void":
			continue
		}
		if strings.HasSuffix(part, "[]") {
			return "array"
		}
		return part
	}
	return ""
}
