package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// tomlFile mirrors the KDL layout for projects that prefer TOML.
// Pointer fields distinguish "absent" from the zero value.
type tomlFile struct {
	Project struct {
		Root string `toml:"root"`
		Name string `toml:"name"`
	} `toml:"project"`
	Index struct {
		StorePath         string   `toml:"store_path"`
		IncludeExtensions []string `toml:"include_extensions"`
		MiscExtensions    []string `toml:"misc_extensions"`
		BufferSizeHint    *int     `toml:"buffer_size_hint"`
		MaxFileSize       *int64   `toml:"max_file_size"`
		PHPVersion        string   `toml:"php_version"`
		PHPBinary         string   `toml:"php_binary"`
		RespectGitignore  *bool    `toml:"respect_gitignore"`
	} `toml:"index"`
	Resolution struct {
		DuckTyping     *bool    `toml:"duck_typing"`
		FuzzyNearMatch *bool    `toml:"fuzzy_near_match"`
		FuzzyThreshold *float64 `toml:"fuzzy_threshold"`
		MaxResults     *int     `toml:"max_results"`
		InferenceDepth *int     `toml:"inference_depth"`
		IncludeNative  *bool    `toml:"include_native"`
	} `toml:"resolution"`
	CallStack struct {
		MaxRecords *int `toml:"max_records"`
	} `toml:"callstack"`
	Working struct {
		DebounceMs *int `toml:"debounce_ms"`
	} `toml:"working"`
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// LoadTOML attempts to load configuration from the .phptags.toml file in
// projectRoot. It returns nil, nil when no file exists.
func LoadTOML(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, TOMLFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", TOMLFileName, err)
	}

	cfg, err := parseTOML(data)
	if err != nil {
		return nil, err
	}
	cfg.Project.Root = resolveRoot(cfg.Project.Root, projectRoot)
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}
	return cfg, nil
}

func parseTOML(data []byte) (*Config, error) {
	var f tomlFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	cfg := Default()
	cfg.Project.Root = f.Project.Root
	cfg.Project.Name = f.Project.Name

	if f.Index.StorePath != "" {
		cfg.Index.StorePath = f.Index.StorePath
	}
	if f.Index.IncludeExtensions != nil {
		cfg.Index.IncludeExtensions = normalizeExtensions(f.Index.IncludeExtensions)
	}
	if f.Index.MiscExtensions != nil {
		cfg.Index.MiscExtensions = normalizeExtensions(f.Index.MiscExtensions)
	}
	setIfPresent(&cfg.Index.BufferSizeHint, f.Index.BufferSizeHint)
	setIfPresent(&cfg.Index.MaxFileSize, f.Index.MaxFileSize)
	if f.Index.PHPVersion != "" {
		cfg.Index.PHPVersion = f.Index.PHPVersion
	}
	if f.Index.PHPBinary != "" {
		cfg.Index.PHPBinary = f.Index.PHPBinary
	}
	setIfPresent(&cfg.Index.RespectGitignore, f.Index.RespectGitignore)

	setIfPresent(&cfg.Resolution.DuckTyping, f.Resolution.DuckTyping)
	setIfPresent(&cfg.Resolution.FuzzyNearMatch, f.Resolution.FuzzyNearMatch)
	setIfPresent(&cfg.Resolution.FuzzyThreshold, f.Resolution.FuzzyThreshold)
	setIfPresent(&cfg.Resolution.MaxResults, f.Resolution.MaxResults)
	setIfPresent(&cfg.Resolution.InferenceDepth, f.Resolution.InferenceDepth)
	setIfPresent(&cfg.Resolution.IncludeNative, f.Resolution.IncludeNative)
	setIfPresent(&cfg.CallStack.MaxRecords, f.CallStack.MaxRecords)
	setIfPresent(&cfg.Working.DebounceMs, f.Working.DebounceMs)

	if f.Include != nil {
		cfg.Include = f.Include
	}
	if f.Exclude != nil {
		cfg.Exclude = f.Exclude
	}
	return cfg, nil
}

func setIfPresent[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
