package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/phptags/internal/types"
)

// File names searched in the project root, in order
const (
	KDLFileName  = ".phptags.kdl"
	TOMLFileName = ".phptags.toml"
)

// Defaults shared by Default() and the file loaders
const (
	DefaultStoreFileName    = ".phptags.db"
	DefaultBufferSizeHint   = 64 * 1024
	DefaultMaxRecords       = 3000
	DefaultDebounceMs       = 300
	DefaultFuzzyThreshold   = 0.85
	DefaultMaxResults       = 200
	DefaultPHPBinary        = "php"
	DefaultMaxFileSize      = 4 * 1024 * 1024
	DefaultInferenceDepth   = 16
	DefaultGitignoreRespect = true
)

type Config struct {
	Version    int
	Project    Project
	Index      Index
	Resolution Resolution
	CallStack  CallStack
	Working    Working
	Include    []string // doublestar patterns relative to the project root
	Exclude    []string
}

type Project struct {
	Root string
	Name string
}

type Index struct {
	StorePath         string   // persisted global store; relative paths resolve against Project.Root
	IncludeExtensions []string // parsed for tags
	MiscExtensions    []string // recorded for file lookup only
	BufferSizeHint    int
	MaxFileSize       int64
	PHPVersion        string // "auto", "5.3", "5.4" or any later version string
	PHPBinary         string // interpreter used when PHPVersion is "auto"
	RespectGitignore  bool
}

type Resolution struct {
	DuckTyping     bool    // fall back to searching all classes for unknown receivers
	FuzzyNearMatch bool    // rank near misses with Jaro-Winkler when a prefix finds nothing
	FuzzyThreshold float64 // similarity required for a fuzzy near match
	MaxResults     int
	InferenceDepth int // bound on variable type inference recursion
	IncludeNative  bool
}

type CallStack struct {
	MaxRecords int // hard ceiling on accumulated trace steps
}

type Working struct {
	DebounceMs int // delay before an edited buffer is reparsed
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Version: 1,
		Project: Project{
			Root: cwd,
			Name: filepath.Base(cwd),
		},
		Index: Index{
			StorePath:         DefaultStoreFileName,
			IncludeExtensions: []string{".php"},
			MiscExtensions:    []string{".phtml", ".html", ".js", ".css", ".twig", ".yml"},
			BufferSizeHint:    DefaultBufferSizeHint,
			MaxFileSize:       DefaultMaxFileSize,
			PHPVersion:        "auto",
			PHPBinary:         DefaultPHPBinary,
			RespectGitignore:  DefaultGitignoreRespect,
		},
		Resolution: Resolution{
			DuckTyping:     false,
			FuzzyNearMatch: false,
			FuzzyThreshold: DefaultFuzzyThreshold,
			MaxResults:     DefaultMaxResults,
			InferenceDepth: DefaultInferenceDepth,
			IncludeNative:  false,
		},
		CallStack: CallStack{
			MaxRecords: DefaultMaxRecords,
		},
		Working: Working{
			DebounceMs: DefaultDebounceMs,
		},
		Include: []string{},
		Exclude: []string{
			"**/.git/**",
			"**/.*/**",
			"**/node_modules/**",
			"**/cache/**",
		},
	}
}

// Load reads the project configuration from root, preferring the KDL file
// over the TOML file and falling back to defaults.
func Load(root string) (*Config, error) {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %q: %w", root, err)
	}

	cfg, err := LoadKDL(absRoot)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		if cfg, err = LoadTOML(absRoot); err != nil {
			return nil, err
		}
	}
	if cfg == nil {
		cfg = Default()
		cfg.Project.Root = absRoot
		cfg.Project.Name = filepath.Base(absRoot)
	}

	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvedStorePath returns the absolute path of the global store
func (c *Config) ResolvedStorePath() string {
	if filepath.IsAbs(c.Index.StorePath) {
		return c.Index.StorePath
	}
	return filepath.Join(c.Project.Root, c.Index.StorePath)
}

// PHPVersion parses the configured dialect
func (c *Config) PHPVersion() types.PHPVersion {
	v, err := types.ParsePHPVersion(c.Index.PHPVersion)
	if err != nil {
		return types.PHPVersionAuto
	}
	return v
}

// Policy returns the resolution policy implied by the duck typing switch
func (c *Config) Policy() types.ResolutionPolicy {
	if c.Resolution.DuckTyping {
		return types.ResolutionDuckTyped
	}
	return types.ResolutionStrict
}

// normalizeExtensions lowercases extensions and makes sure they start with a dot
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + strings.TrimPrefix(e, "*.")
		}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// resolveRoot makes a configured root absolute relative to the directory
// holding the config file
func resolveRoot(configured, configDir string) string {
	if configured == "" {
		if abs, err := filepath.Abs(configDir); err == nil {
			return abs
		}
		return configDir
	}
	if filepath.IsAbs(configured) {
		return filepath.Clean(configured)
	}
	return filepath.Clean(filepath.Join(configDir, configured))
}
