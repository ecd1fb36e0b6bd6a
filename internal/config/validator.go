package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/types"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults
// Returns an error if validation fails
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	v.setSmartDefaults(cfg)

	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return tagerrors.NewConfigError("project", cfg.Project.Root, err)
	}

	if err := v.validateIndexConfig(&cfg.Index); err != nil {
		return tagerrors.NewConfigError("index", cfg.Index.PHPVersion, err)
	}

	if err := v.validateResolutionConfig(&cfg.Resolution); err != nil {
		return tagerrors.NewConfigError("resolution", "", err)
	}

	if cfg.CallStack.MaxRecords <= 0 {
		return tagerrors.NewConfigError("callstack.max_records", fmt.Sprint(cfg.CallStack.MaxRecords),
			errors.New("max_records must be positive"))
	}

	if cfg.Working.DebounceMs < 0 {
		return tagerrors.NewConfigError("working.debounce_ms", fmt.Sprint(cfg.Working.DebounceMs),
			errors.New("debounce cannot be negative"))
	}

	for _, p := range append(append([]string{}, cfg.Include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return tagerrors.NewConfigError("include/exclude", p, errors.New("invalid glob pattern"))
		}
	}
	return nil
}

func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	if !filepath.IsAbs(project.Root) {
		return fmt.Errorf("project root must be absolute, got %q", project.Root)
	}
	return nil
}

func (v *Validator) validateIndexConfig(index *Index) error {
	if len(index.IncludeExtensions) == 0 {
		return errors.New("at least one include extension is required")
	}
	if index.BufferSizeHint < 0 {
		return fmt.Errorf("BufferSizeHint cannot be negative, got %d", index.BufferSizeHint)
	}
	if index.MaxFileSize <= 0 {
		return fmt.Errorf("MaxFileSize must be positive, got %d", index.MaxFileSize)
	}
	if _, err := types.ParsePHPVersion(index.PHPVersion); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateResolutionConfig(r *Resolution) error {
	if r.FuzzyThreshold < 0 || r.FuzzyThreshold > 1 {
		return fmt.Errorf("FuzzyThreshold must be between 0 and 1, got %v", r.FuzzyThreshold)
	}
	if r.MaxResults < 0 {
		return fmt.Errorf("MaxResults cannot be negative, got %d", r.MaxResults)
	}
	return nil
}

func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Project.Name == "" && cfg.Project.Root != "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}
	if cfg.Index.StorePath == "" {
		cfg.Index.StorePath = DefaultStoreFileName
	}
	if cfg.Index.BufferSizeHint == 0 {
		cfg.Index.BufferSizeHint = DefaultBufferSizeHint
	}
	if cfg.Index.PHPBinary == "" {
		cfg.Index.PHPBinary = DefaultPHPBinary
	}
	if cfg.Resolution.InferenceDepth <= 0 {
		cfg.Resolution.InferenceDepth = DefaultInferenceDepth
	}
	if cfg.Resolution.MaxResults == 0 {
		cfg.Resolution.MaxResults = DefaultMaxResults
	}
	cfg.Index.IncludeExtensions = normalizeExtensions(cfg.Index.IncludeExtensions)
	cfg.Index.MiscExtensions = normalizeExtensions(cfg.Index.MiscExtensions)
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
