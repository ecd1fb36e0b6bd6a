package parser

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"

	"github.com/standardbeagle/phptags/internal/debug"
	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/types"
)

// Parser turns PHP source into typed parse events. A Parser serializes
// calls to its tree-sitter instance; Results are independent of it.
type Parser struct {
	mu       sync.Mutex
	ts       *tree_sitter.Parser
	version  types.PHPVersion
	setupErr error
}

// New creates a parser for the given dialect. PHPVersionAuto accepts the
// newest syntax; callers wanting detection use ResolveVersion first.
func New(version types.PHPVersion) *Parser {
	p := &Parser{version: version}
	p.setupPHP()
	return p
}

func (p *Parser) setupPHP() {
	parser := tree_sitter.NewParser()
	languagePtr := tree_sitter_php.LanguagePHP()
	language := tree_sitter.NewLanguage(languagePtr)
	if err := parser.SetLanguage(language); err != nil {
		parser.Close()
		p.setupErr = fmt.Errorf("failed to load PHP grammar: %w", err)
		return
	}
	p.ts = parser
}

// Version returns the dialect the parser enforces
func (p *Parser) Version() types.PHPVersion {
	return p.version
}

// Close releases the tree-sitter parser
func (p *Parser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ts != nil {
		p.ts.Close()
		p.ts = nil
	}
}

// Result is one successfully parsed file. Close it when done with its events.
type Result struct {
	Path   string
	Source []byte
	tree   *tree_sitter.Tree
}

// Close releases the syntax tree
func (r *Result) Close() {
	if r != nil && r.tree != nil {
		r.tree.Close()
		r.tree = nil
	}
}

// Events returns the lazy event sequence of the file. Each call walks the
// tree again from the start.
func (r *Result) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if r.tree == nil {
			return
		}
		w := newWalker(r.Path, r.Source, yield)
		w.walkProgram(r.tree.RootNode())
	}
}

// Tags folds the event sequence into tag records
func (r *Result) Tags() []types.Tag {
	return ExtractTags(r.Events())
}

// Relations folds the event sequence into class relation records
func (r *Result) Relations() []types.ClassRelation {
	return ExtractRelations(r.Events())
}

// Parse parses src. A syntax error or a construct the dialect does not
// allow returns a *errors.ParseError locating the first offending token.
func (p *Parser) Parse(ctx context.Context, path string, src []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.setupErr != nil {
		return nil, p.setupErr
	}

	p.mu.Lock()
	if p.ts == nil {
		p.mu.Unlock()
		return nil, errors.New("parser is closed")
	}
	tree := p.ts.Parse(src, nil)
	p.mu.Unlock()

	if tree == nil {
		return nil, tagerrors.NewParseError(path, 0, 0, "", errors.New("parser produced no tree"))
	}

	root := tree.RootNode()
	if root.HasError() {
		perr := syntaxError(path, root, src)
		tree.Close()
		debug.LogParse("syntax error: %v\n", perr)
		return nil, perr
	}

	if perr := checkDialect(path, root, src, p.version); perr != nil {
		tree.Close()
		debug.LogParse("dialect violation: %v\n", perr)
		return nil, perr
	}

	return &Result{Path: path, Source: src, tree: tree}, nil
}

// ParseTags is a convenience for callers that only need tags and relations
func (p *Parser) ParseTags(ctx context.Context, path string, src []byte) ([]types.Tag, []types.ClassRelation, error) {
	res, err := p.Parse(ctx, path, src)
	if err != nil {
		return nil, nil, err
	}
	defer res.Close()
	return res.Tags(), res.Relations(), nil
}

// syntaxError locates the first ERROR or MISSING node below root
func syntaxError(path string, root *tree_sitter.Node, src []byte) *tagerrors.ParseError {
	var bad *tree_sitter.Node
	traverse(root, func(n *tree_sitter.Node) bool {
		if n.IsError() || n.IsMissing() {
			bad = n
			return false
		}
		return true
	})
	if bad == nil {
		return tagerrors.NewParseError(path, 0, 0, "", errors.New("syntax error"))
	}

	line, col := nodePosition(bad)
	token := GetNodeText(bad, src)
	if bad.IsMissing() {
		return tagerrors.NewParseError(path, line, col, bad.Kind(), fmt.Errorf("missing %s", bad.Kind()))
	}
	if len(token) > 40 {
		token = token[:40]
	}
	return tagerrors.NewParseError(path, line, col, token, errors.New("unexpected input"))
}
