// Package testhelpers provides shared utilities for testing phptags
package testhelpers

import (
	"path/filepath"

	"github.com/standardbeagle/phptags/internal/config"
)

// TestConfigBuilder provides a fluent API for building test configs with safe defaults
// Usage:
//
//	cfg := testhelpers.NewTestConfigBuilder(projectPath).
//		WithExclusions("vendor/**").
//		WithDuckTyping().
//		Build()
type TestConfigBuilder struct {
	projectRoot string
	exclusions  []string
	inclusions  []string
	duckTyping  bool
	fuzzy       bool
	maxRecords  int
	phpVersion  string
}

// NewTestConfigBuilder creates a config builder with safe defaults for a project path
func NewTestConfigBuilder(projectRoot string) *TestConfigBuilder {
	return &TestConfigBuilder{
		projectRoot: projectRoot,
		exclusions: []string{
			"**/.git/**",
			"**/node_modules/**",
		},
		maxRecords: config.DefaultMaxRecords,
		phpVersion: "5.4",
	}
}

// WithExclusions adds additional exclusion patterns
func (b *TestConfigBuilder) WithExclusions(patterns ...string) *TestConfigBuilder {
	b.exclusions = append(b.exclusions, patterns...)
	return b
}

// WithIncludePatterns replaces the include patterns
func (b *TestConfigBuilder) WithIncludePatterns(patterns ...string) *TestConfigBuilder {
	b.inclusions = patterns
	return b
}

// WithDuckTyping enables the duck-typed resolution policy
func (b *TestConfigBuilder) WithDuckTyping() *TestConfigBuilder {
	b.duckTyping = true
	return b
}

// WithFuzzyNearMatch enables Jaro-Winkler near matching
func (b *TestConfigBuilder) WithFuzzyNearMatch() *TestConfigBuilder {
	b.fuzzy = true
	return b
}

// WithMaxRecords sets the call stack ceiling
func (b *TestConfigBuilder) WithMaxRecords(n int) *TestConfigBuilder {
	b.maxRecords = n
	return b
}

// WithPHPVersion selects the parser dialect
func (b *TestConfigBuilder) WithPHPVersion(v string) *TestConfigBuilder {
	b.phpVersion = v
	return b
}

// Build creates the final test config with all settings
func (b *TestConfigBuilder) Build() *config.Config {
	return &config.Config{
		Version: 1,
		Project: config.Project{
			Root: b.projectRoot,
			Name: "test-project",
		},
		Index: config.Index{
			StorePath:         filepath.Join(b.projectRoot, config.DefaultStoreFileName),
			IncludeExtensions: []string{".php"},
			MiscExtensions:    []string{".phtml", ".js"},
			BufferSizeHint:    4096,
			MaxFileSize:       1024 * 1024,
			PHPVersion:        b.phpVersion,
			PHPBinary:         config.DefaultPHPBinary,
			RespectGitignore:  false, // Disabled for tests
		},
		Resolution: config.Resolution{
			DuckTyping:     b.duckTyping,
			FuzzyNearMatch: b.fuzzy,
			FuzzyThreshold: config.DefaultFuzzyThreshold,
			MaxResults:     50,
			InferenceDepth: config.DefaultInferenceDepth,
		},
		CallStack: config.CallStack{
			MaxRecords: b.maxRecords,
		},
		Working: config.Working{
			DebounceMs: 10, // Fast debounce for tests
		},
		Include: b.inclusions,
		Exclude: b.exclusions,
	}
}
