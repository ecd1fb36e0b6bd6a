package cache

import (
	"context"
	"sort"
	"strings"

	"github.com/standardbeagle/phptags/internal/debug"
	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/store"
	"github.com/standardbeagle/phptags/internal/types"
)

// stores returns working stores first, then globals
func (c *Cache) stores() []store.Queryable {
	out := make([]store.Queryable, 0, len(c.workings)+len(c.globals))
	for _, w := range c.workings {
		out = append(out, w.store)
	}
	for _, g := range c.globals {
		out = append(out, g)
	}
	return out
}

// shadowed returns the paths that have a working overlay. Global rows
// from these paths are stale by definition.
func (c *Cache) shadowed() map[string]bool {
	paths := make(map[string]bool, len(c.workings))
	for _, w := range c.workings {
		paths[w.store.Path()] = true
	}
	return paths
}

// fanIn runs query against every store and unions the results. A failing
// store is logged and skipped; the error is returned only when no store
// answered.
func fanIn[T any](ctx context.Context, c *Cache, query func(store.Queryable) ([]T, error), path func(T) string) ([]T, error) {
	shadow := c.shadowed()
	var (
		out      []T
		errs     []error
		answered int
	)
	for i, q := range c.stores() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rows, err := query(q)
		if err != nil {
			debug.Warn("query against %s failed: %v\n", q.Path(), err)
			errs = append(errs, tagerrors.NewStoreError("query", q.Path(), err))
			continue
		}
		answered++
		isGlobal := i >= len(c.workings)
		for _, r := range rows {
			if isGlobal && shadow[path(r)] {
				continue
			}
			out = append(out, r)
		}
	}
	if answered == 0 && len(errs) > 0 {
		return nil, tagerrors.NewMultiError(errs)
	}
	return out, nil
}

func tagPath(t types.Tag) string { return t.FullPath }

func filePath(f store.FileItem) string { return f.FullPath }

func relationPath(r types.ClassRelation) string { return r.FullPath }

func (c *Cache) filterNative(tags []types.Tag) []types.Tag {
	if c.opts.IncludeNative {
		return tags
	}
	out := tags[:0:0]
	for _, t := range tags {
		if !t.IsNative {
			out = append(out, t)
		}
	}
	return out
}

// ExactTags returns every tag named name across all stores. Global tags
// of files with a working overlay are replaced by the overlay's.
func (c *Cache) ExactTags(ctx context.Context, name string) ([]types.Tag, error) {
	return fanIn(ctx, c, func(q store.Queryable) ([]types.Tag, error) {
		return q.ExactTags(ctx, name)
	}, tagPath)
}

// NearMatchTags returns tags whose name starts with prefix across all stores
func (c *Cache) NearMatchTags(ctx context.Context, prefix string) ([]types.Tag, error) {
	tags, err := fanIn(ctx, c, func(q store.Queryable) ([]types.Tag, error) {
		return q.NearMatchTags(ctx, prefix, c.opts.MaxResults)
	}, tagPath)
	return c.filterNative(tags), err
}

// ExactClassOrFile returns classes named name and files whose base name is name
func (c *Cache) ExactClassOrFile(ctx context.Context, name string) ([]types.Tag, []store.FileItem, error) {
	var files [][]store.FileItem
	tags, err := fanIn(ctx, c, func(q store.Queryable) ([]types.Tag, error) {
		t, f, err := q.ExactClassOrFile(ctx, name)
		if err == nil {
			files = append(files, f)
		}
		return t, err
	}, tagPath)
	return tags, c.mergeFiles(files), err
}

// NearMatchClassesOrFiles returns classes and files whose names start with prefix
func (c *Cache) NearMatchClassesOrFiles(ctx context.Context, prefix string) ([]types.Tag, []store.FileItem, error) {
	var files [][]store.FileItem
	tags, err := fanIn(ctx, c, func(q store.Queryable) ([]types.Tag, error) {
		t, f, err := q.NearMatchClassesOrFiles(ctx, prefix, c.opts.MaxResults)
		if err == nil {
			files = append(files, f)
		}
		return t, err
	}, tagPath)
	return tags, c.mergeFiles(files), err
}

// mergeFiles unions per-store file lists, listing each path once
func (c *Cache) mergeFiles(perStore [][]store.FileItem) []store.FileItem {
	seen := make(map[string]bool)
	var out []store.FileItem
	for _, files := range perStore {
		for _, f := range files {
			if seen[filePath(f)] {
				continue
			}
			seen[filePath(f)] = true
			out = append(out, f)
		}
	}
	return out
}

// ParentClassesAndTraits returns every class, interface and trait that
// className inherits from, nearest first. Cycles in broken code are cut.
func (c *Cache) ParentClassesAndTraits(ctx context.Context, className string) ([]string, error) {
	className = strings.TrimPrefix(className, "\\")
	if className == "" {
		return nil, nil
	}
	generation := c.currentGeneration()
	if ancestors, ok := c.lookups.Get(className, generation); ok {
		return ancestors, nil
	}

	visited := map[string]bool{strings.ToLower(className): true}
	queue := []string{className}
	var ancestors []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		relations, err := fanIn(ctx, c, func(q store.Queryable) ([]types.ClassRelation, error) {
			return q.ClassRelations(ctx, current)
		}, relationPath)
		if err != nil {
			return ancestors, err
		}
		for _, r := range relations {
			key := strings.ToLower(r.RelatedName)
			if visited[key] {
				continue
			}
			visited[key] = true
			ancestors = append(ancestors, r.RelatedName)
			queue = append(queue, r.RelatedName)
		}
	}

	c.lookups.Put(className, generation, ancestors)
	return ancestors, nil
}

// AllMemberTags returns the members of className including everything it
// inherits. A member overridden by a subclass is listed once, with the
// subclass's declaration.
func (c *Cache) AllMemberTags(ctx context.Context, className string) ([]types.Tag, error) {
	return c.memberTags(ctx, className, "", false)
}

// memberTags returns members of className and its ancestors matching name
// (all when empty), nearest declaration first
func (c *Cache) memberTags(ctx context.Context, className, name string, exact bool) ([]types.Tag, error) {
	className = strings.TrimPrefix(className, "\\")
	ancestors, err := c.ParentClassesAndTraits(ctx, className)
	if err != nil {
		return nil, err
	}
	classes := append([]string{className}, ancestors...)
	rank := make(map[string]int, len(classes))
	for i, cl := range classes {
		rank[strings.ToLower(cl)] = i
	}

	tags, err := fanIn(ctx, c, func(q store.Queryable) ([]types.Tag, error) {
		return q.MemberTags(ctx, classes, name, exact)
	}, tagPath)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tags, func(i, j int) bool {
		return rank[strings.ToLower(tags[i].ClassName)] < rank[strings.ToLower(tags[j].ClassName)]
	})
	return dedupeOverrides(tags), nil
}

type memberKey struct {
	kind types.TagKind
	name string
}

// dedupeOverrides keeps the first tag of each member; methods compare
// without case as PHP does
func dedupeOverrides(tags []types.Tag) []types.Tag {
	seen := make(map[memberKey]bool, len(tags))
	out := tags[:0]
	for _, t := range tags {
		k := memberKey{kind: t.Kind, name: t.Identifier}
		if t.Kind == types.TagKindMethod {
			k.name = strings.ToLower(k.name)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}
