package parser

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// GetNodeText extracts text content from an AST node
func GetNodeText(node *tree_sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}

	start := node.StartByte()
	end := node.EndByte()

	if start > uint(len(content)) || end > uint(len(content)) || start > end {
		return ""
	}

	return string(content[start:end])
}

// FindChildByType finds the first child node of the given type
func FindChildByType(node *tree_sitter.Node, nodeType string) *tree_sitter.Node {
	if node == nil {
		return nil
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == nodeType {
			return child
		}
	}

	return nil
}

// FindChildrenByType finds all child nodes of the given type
func FindChildrenByType(node *tree_sitter.Node, nodeType string) []*tree_sitter.Node {
	if node == nil {
		return nil
	}

	var children []*tree_sitter.Node
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == nodeType {
			children = append(children, child)
		}
	}

	return children
}

// namedChildren returns the named children of node, skipping comments
func namedChildren(node *tree_sitter.Node) []*tree_sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*tree_sitter.Node, 0, node.NamedChildCount())
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// nodePosition returns the 1-based line and column of node
func nodePosition(node *tree_sitter.Node) (int, int) {
	if node == nil {
		return 0, 0
	}
	p := node.StartPosition()
	return int(p.Row) + 1, int(p.Column) + 1
}

// traverse visits node and its descendants depth first until visit returns false
func traverse(node *tree_sitter.Node, visit func(*tree_sitter.Node) bool) bool {
	if node == nil {
		return true
	}
	if !visit(node) {
		return false
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if !traverse(node.Child(i), visit) {
			return false
		}
	}
	return true
}
