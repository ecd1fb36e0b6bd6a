package metrics

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/phptags/internal/store"
	"github.com/standardbeagle/phptags/internal/types"
)

// Source is a tag store statistics can be read from
type Source interface {
	Path() string
	Files(ctx context.Context) ([]store.FileItem, error)
	TagCountsByKind(ctx context.Context) (map[types.TagKind]int, error)
	CallStackKeys(ctx context.Context) ([]string, error)
}

// StoreStats describes the contents of one store
type StoreStats struct {
	Path        string
	Files       int
	ParsedFiles int
	MiscFiles   int
	Extensions  map[string]int // extension -> file count
	Tags        int
	ByKind      map[types.TagKind]int
	CallStacks  int
}

// TagStats aggregates the stores of a cache
type TagStats struct {
	Stores     []StoreStats
	TotalFiles int
	TotalTags  int
	ByKind     map[types.TagKind]int
}

// Collect reads the statistics of every source
func Collect(ctx context.Context, sources ...Source) (*TagStats, error) {
	stats := &TagStats{ByKind: make(map[types.TagKind]int)}
	for _, src := range sources {
		s, err := collectStore(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("collecting stats of %s: %w", src.Path(), err)
		}
		stats.Stores = append(stats.Stores, s)
		stats.TotalFiles += s.Files
		stats.TotalTags += s.Tags
		for k, n := range s.ByKind {
			stats.ByKind[k] += n
		}
	}
	return stats, nil
}

func collectStore(ctx context.Context, src Source) (StoreStats, error) {
	s := StoreStats{Path: src.Path(), Extensions: make(map[string]int)}

	files, err := src.Files(ctx)
	if err != nil {
		return s, err
	}
	for _, f := range files {
		s.Files++
		if f.IsParsed {
			s.ParsedFiles++
		} else {
			s.MiscFiles++
		}
		ext := strings.ToLower(filepath.Ext(f.FullPath))
		if ext == "" {
			ext = "(none)"
		}
		s.Extensions[ext]++
	}

	if s.ByKind, err = src.TagCountsByKind(ctx); err != nil {
		return s, err
	}
	for _, n := range s.ByKind {
		s.Tags += n
	}

	keys, err := src.CallStackKeys(ctx)
	if err != nil {
		return s, err
	}
	s.CallStacks = len(keys)
	return s, nil
}

// kinds lists tag kinds in display order
var kinds = []types.TagKind{
	types.TagKindNamespace,
	types.TagKindClass,
	types.TagKindMethod,
	types.TagKindMember,
	types.TagKindClassConstant,
	types.TagKindFunction,
	types.TagKindDefine,
}

// FormatAsJSON returns stats formatted as JSON-serializable map
func (ts *TagStats) FormatAsJSON() map[string]interface{} {
	stores := make([]map[string]interface{}, 0, len(ts.Stores))
	for _, s := range ts.Stores {
		stores = append(stores, map[string]interface{}{
			"path":         s.Path,
			"files":        s.Files,
			"parsed_files": s.ParsedFiles,
			"misc_files":   s.MiscFiles,
			"extensions":   s.Extensions,
			"tags":         s.Tags,
			"by_kind":      kindMap(s.ByKind),
			"call_stacks":  s.CallStacks,
		})
	}
	return map[string]interface{}{
		"summary": map[string]interface{}{
			"stores":      len(ts.Stores),
			"total_files": ts.TotalFiles,
			"total_tags":  ts.TotalTags,
		},
		"tags":   kindMap(ts.ByKind),
		"stores": stores,
	}
}

func kindMap(counts map[types.TagKind]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, n := range counts {
		out[strings.ToLower(k.String())] = n
	}
	return out
}

// FormatAsText returns stats formatted as human-readable text
func (ts *TagStats) FormatAsText() string {
	var sb strings.Builder

	sb.WriteString("╔════════════════════════════════════════════════════════════════╗\n")
	sb.WriteString("║                    PHPTAGS - TAG INDEX REPORT                  ║\n")
	sb.WriteString("╚════════════════════════════════════════════════════════════════╝\n\n")

	sb.WriteString("📊 SUMMARY\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("  Stores:             %d\n", len(ts.Stores)))
	sb.WriteString(fmt.Sprintf("  Total Files:        %d\n", ts.TotalFiles))
	sb.WriteString(fmt.Sprintf("  Total Tags:         %d\n", ts.TotalTags))

	sb.WriteString("\n🔤 TAGS BY KIND\n")
	sb.WriteString("─────────────────────────────────────────────────────────────────\n")
	for _, k := range kinds {
		sb.WriteString(fmt.Sprintf("  %-16s %8d\n", k.String()+":", ts.ByKind[k]))
	}

	for _, s := range ts.Stores {
		sb.WriteString("\n📁 " + s.Path + "\n")
		sb.WriteString("─────────────────────────────────────────────────────────────────\n")
		sb.WriteString(fmt.Sprintf("  Files:              %d (%d parsed, %d misc)\n", s.Files, s.ParsedFiles, s.MiscFiles))
		sb.WriteString(fmt.Sprintf("  Tags:               %d\n", s.Tags))
		sb.WriteString(fmt.Sprintf("  Call Stacks:        %d\n", s.CallStacks))

		exts := make([]string, 0, len(s.Extensions))
		for ext := range s.Extensions {
			exts = append(exts, ext)
		}
		// most common first
		sort.Slice(exts, func(i, j int) bool {
			if s.Extensions[exts[i]] != s.Extensions[exts[j]] {
				return s.Extensions[exts[i]] > s.Extensions[exts[j]]
			}
			return exts[i] < exts[j]
		})
		for _, ext := range exts {
			sb.WriteString(fmt.Sprintf("  %-12s %5d files\n", ext+":", s.Extensions[ext]))
		}
	}
	return sb.String()
}
