package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/phptags/internal/types"
)

func TestParseKDL_Defaults(t *testing.T) {
	cfg, err := parseKDL("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []string{".php"}, cfg.Index.IncludeExtensions)
	assert.Equal(t, DefaultMaxRecords, cfg.CallStack.MaxRecords)
	assert.Equal(t, "auto", cfg.Index.PHPVersion)
	assert.False(t, cfg.Resolution.DuckTyping)
	assert.Equal(t, DefaultDebounceMs, cfg.Working.DebounceMs)
}

func TestParseKDL_FullConfig(t *testing.T) {
	kdlContent := `
project {
    root "src"
    name "news-site"
}
index {
    store_path "/var/cache/tags.db"
    include_extensions "php" ".inc"
    misc_extensions ".twig"
    buffer_size_hint 1024
    php_version "5.3"
}
resolution {
    duck_typing true
    fuzzy_near_match true
    fuzzy_threshold 0.9
}
callstack {
    max_records 100
}
working {
    debounce_ms 50
}
exclude "**/vendor/**"
`
	cfg, err := parseKDL(kdlContent)
	require.NoError(t, err)

	assert.Equal(t, "src", cfg.Project.Root)
	assert.Equal(t, "news-site", cfg.Project.Name)
	assert.Equal(t, "/var/cache/tags.db", cfg.Index.StorePath)
	assert.Equal(t, []string{".php", ".inc"}, cfg.Index.IncludeExtensions)
	assert.Equal(t, []string{".twig"}, cfg.Index.MiscExtensions)
	assert.Equal(t, 1024, cfg.Index.BufferSizeHint)
	assert.Equal(t, types.PHPVersion53, cfg.PHPVersion())
	assert.True(t, cfg.Resolution.DuckTyping)
	assert.Equal(t, types.ResolutionDuckTyped, cfg.Policy())
	assert.True(t, cfg.Resolution.FuzzyNearMatch)
	assert.InDelta(t, 0.9, cfg.Resolution.FuzzyThreshold, 0.0001)
	assert.Equal(t, 100, cfg.CallStack.MaxRecords)
	assert.Equal(t, 50, cfg.Working.DebounceMs)
	assert.Equal(t, []string{"**/vendor/**"}, cfg.Exclude)
}

func TestParseKDL_NumericVersion(t *testing.T) {
	cfg, err := parseKDL("index {\n    php_version 5.4\n}\n")
	require.NoError(t, err)
	assert.Equal(t, "5.4", cfg.Index.PHPVersion)
	assert.Equal(t, types.PHPVersion54, cfg.PHPVersion())
}

func TestParseKDL_Invalid(t *testing.T) {
	_, err := parseKDL("index {")
	assert.Error(t, err)
}

func TestLoad_ResolvesRelativeRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "app"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, KDLFileName), []byte("project {\n    root \"app\"\n}\n"), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "app"), cfg.Project.Root)
	assert.Equal(t, "app", cfg.Project.Name)
	assert.Equal(t, filepath.Join(dir, "app", DefaultStoreFileName), cfg.ResolvedStorePath())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Project.Root)
	assert.Equal(t, filepath.Base(dir), cfg.Project.Name)
	assert.NotEmpty(t, cfg.Exclude)
}

func TestLoad_PrefersKDLOverTOML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, KDLFileName), []byte("callstack {\n    max_records 7\n}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, TOMLFileName), []byte("[callstack]\nmax_records = 9\n"), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.CallStack.MaxRecords)
}
