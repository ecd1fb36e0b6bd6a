package store

import (
	"github.com/standardbeagle/phptags/internal/config"
	"github.com/standardbeagle/phptags/internal/types"
)

// QueryOptionsFromConfig maps the resolution section of a project config
func QueryOptionsFromConfig(cfg *config.Config) QueryOptions {
	opts := DefaultQueryOptions()
	opts.FuzzyNearMatch = cfg.Resolution.FuzzyNearMatch
	if cfg.Resolution.FuzzyThreshold > 0 {
		opts.FuzzyThreshold = cfg.Resolution.FuzzyThreshold
	}
	if cfg.Resolution.MaxResults > 0 {
		opts.MaxResults = cfg.Resolution.MaxResults
	}
	return opts
}

// OpenOptionsFromConfig maps the index section of a project config. The
// dialect is passed in resolved; config may say "auto".
func OpenOptionsFromConfig(cfg *config.Config, version types.PHPVersion) OpenOptions {
	return OpenOptions{
		Path:              cfg.ResolvedStorePath(),
		IncludeExtensions: cfg.Index.IncludeExtensions,
		MiscExtensions:    cfg.Index.MiscExtensions,
		Version:           version,
		BufferSizeHint:    cfg.Index.BufferSizeHint,
		MaxFileSize:       int64(cfg.Index.MaxFileSize),
		Query:             QueryOptionsFromConfig(cfg),
	}
}
