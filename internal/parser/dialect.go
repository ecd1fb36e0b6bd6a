package parser

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/phptags/internal/debug"
	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/types"
)

// checkDialect rejects syntax newer than the selected dialect. The grammar
// accepts the newest PHP, so older dialects are enforced after the fact.
func checkDialect(path string, root *tree_sitter.Node, src []byte, version types.PHPVersion) *tagerrors.ParseError {
	if version != types.PHPVersion53 {
		return nil
	}

	var perr *tagerrors.ParseError
	traverse(root, func(n *tree_sitter.Node) bool {
		var msg string
		switch n.Kind() {
		case "trait_declaration":
			msg = "traits require PHP 5.4"
		case "use_declaration":
			// trait use inside a class body
			msg = "trait use requires PHP 5.4"
		case "array_creation_expression":
			if first := n.Child(0); first != nil && first.Kind() == "[" {
				msg = "short array syntax requires PHP 5.4"
			}
		}
		if msg == "" {
			return true
		}
		line, col := nodePosition(n)
		token := GetNodeText(n, src)
		if i := strings.IndexByte(token, '\n'); i >= 0 {
			token = token[:i]
		}
		perr = tagerrors.NewParseError(path, line, col, token, errors.New(msg))
		return false
	})
	return perr
}

const detectTimeout = 5 * time.Second

// DetectVersion asks the PHP interpreter at binary for its version
func DetectVersion(ctx context.Context, binary string) (types.PHPVersion, error) {
	if binary == "" {
		binary = "php"
	}
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "-r", "echo PHP_VERSION;").Output()
	if err != nil {
		return types.PHPVersionAuto, err
	}
	return types.ParsePHPVersion(strings.TrimSpace(string(out)))
}

// ResolveVersion turns PHPVersionAuto into a concrete dialect, falling back
// to PHPVersion54 when no interpreter answers.
func ResolveVersion(ctx context.Context, version types.PHPVersion, binary string) types.PHPVersion {
	if version != types.PHPVersionAuto {
		return version
	}
	detected, err := DetectVersion(ctx, binary)
	if err != nil || detected == types.PHPVersionAuto {
		debug.LogParse("php version detection failed (%v), assuming 5.4+\n", err)
		return types.PHPVersion54
	}
	return detected
}
