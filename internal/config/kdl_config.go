package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from the .phptags.kdl file in
// projectRoot. It returns nil, nil when no file exists.
func LoadKDL(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, KDLFileName)

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KDLFileName, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	// Relative roots are relative to the directory holding the file
	cfg.Project.Root = resolveRoot(cfg.Project.Root, projectRoot)
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}
	return cfg, nil
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()
	cfg.Project.Root = ""
	cfg.Project.Name = ""

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children { // project { root "." name "foo" }
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "store_path":
					if s, ok := firstStringArg(cn); ok {
						cfg.Index.StorePath = s
					}
				case "include_extensions":
					cfg.Index.IncludeExtensions = collectStringArgs(cn)
				case "misc_extensions":
					cfg.Index.MiscExtensions = collectStringArgs(cn)
				case "buffer_size_hint":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.BufferSizeHint = v
					}
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileSize = int64(v)
					}
				case "php_version":
					// php_version 5.4 arrives as a float, php_version "8.2" as a string
					if s, ok := firstStringArg(cn); ok {
						cfg.Index.PHPVersion = s
					} else if f, ok := firstFloatArg(cn); ok {
						cfg.Index.PHPVersion = fmt.Sprintf("%.1f", f)
					}
				case "php_binary":
					if s, ok := firstStringArg(cn); ok {
						cfg.Index.PHPBinary = s
					}
				case "respect_gitignore":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.RespectGitignore = b
					}
				}
			}
		case "resolution":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "duck_typing":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Resolution.DuckTyping = b
					}
				case "fuzzy_near_match":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Resolution.FuzzyNearMatch = b
					}
				case "fuzzy_threshold":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Resolution.FuzzyThreshold = v
					}
				case "max_results":
					if v, ok := firstIntArg(cn); ok {
						cfg.Resolution.MaxResults = v
					}
				case "inference_depth":
					if v, ok := firstIntArg(cn); ok {
						cfg.Resolution.InferenceDepth = v
					}
				case "include_native":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Resolution.IncludeNative = b
					}
				}
			}
		case "callstack":
			for _, cn := range n.Children {
				if nodeName(cn) == "max_records" {
					if v, ok := firstIntArg(cn); ok {
						cfg.CallStack.MaxRecords = v
					}
				}
			}
		case "working":
			for _, cn := range n.Children {
				if nodeName(cn) == "debounce_ms" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Working.DebounceMs = v
					}
				}
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			// An exclude block replaces the default exclusions
			cfg.Exclude = collectStringArgs(n)
		}
	}

	cfg.Index.IncludeExtensions = normalizeExtensions(cfg.Index.IncludeExtensions)
	cfg.Index.MiscExtensions = normalizeExtensions(cfg.Index.MiscExtensions)
	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		log.Printf("WARNING: invalid float value for '%s' in KDL config, expected number but got %T", nodeName(n), n.Arguments[0].Value)
		return 0, false
	}
}

// collectStringArgs reads inline arguments (exclude "a" "b") or, failing
// that, block children (exclude { "a"; "b" }).
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
