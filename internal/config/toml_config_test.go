package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTOML(t *testing.T) {
	content := `
include = ["app/**"]

[index]
include_extensions = ["*.php"]
php_version = "8.2"
respect_gitignore = false

[resolution]
duck_typing = true
max_results = 25

[callstack]
max_records = 500
`
	cfg, err := parseTOML([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, []string{".php"}, cfg.Index.IncludeExtensions)
	assert.Equal(t, "8.2", cfg.Index.PHPVersion)
	assert.False(t, cfg.Index.RespectGitignore)
	assert.True(t, cfg.Resolution.DuckTyping)
	assert.Equal(t, 25, cfg.Resolution.MaxResults)
	assert.Equal(t, 500, cfg.CallStack.MaxRecords)
	assert.Equal(t, []string{"app/**"}, cfg.Include)
	// Untouched sections keep their defaults
	assert.Equal(t, DefaultDebounceMs, cfg.Working.DebounceMs)
	assert.InDelta(t, DefaultFuzzyThreshold, cfg.Resolution.FuzzyThreshold, 0.0001)
}

func TestParseTOML_Invalid(t *testing.T) {
	_, err := parseTOML([]byte("[index\n"))
	assert.Error(t, err)
}

func TestLoadTOML_Missing(t *testing.T) {
	cfg, err := LoadTOML(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadTOML_FromDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TOMLFileName), []byte("[project]\nname = \"blog\"\n"), 0644))

	cfg, err := LoadTOML(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "blog", cfg.Project.Name)
	assert.Equal(t, dir, cfg.Project.Root)
}
