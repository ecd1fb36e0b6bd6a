package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/phptags/internal/types"
)

var memberKinds = []any{int(types.TagKindMethod), int(types.TagKindMember), int(types.TagKindClassConstant)}

const memberKindFilter = "t.type IN (?, ?, ?)"
const nonMemberKindFilter = "t.type NOT IN (?, ?, ?)"

func (s *tagDB) limit(n int) int {
	if n > 0 {
		return n
	}
	if s.opts.MaxResults > 0 {
		return s.opts.MaxResults
	}
	return 200
}

// ExactTags returns the tags whose name equals name. Accepted forms are
// "Foo", "\Ns\Foo", "Ns\func", "Foo::bar" and "::bar". A namespaced name
// must match the fully qualified key; a bare name matches any namespace.
func (s *tagDB) ExactTags(ctx context.Context, name string) ([]types.Tag, error) {
	search := types.ParseTagSearch(name)
	if search.Identifier == "" {
		return nil, nil
	}

	if search.HasClass {
		args := append([]any{}, memberKinds...)
		where := memberKindFilter + " AND (t.identifier = ? OR (t.type = ? AND t.identifier = ? COLLATE NOCASE))"
		args = append(args, search.Identifier, int(types.TagKindMethod), search.Identifier)
		switch {
		case search.ClassName == "":
		case search.Qualified:
			where += " AND t.class_name = ? COLLATE NOCASE"
			args = append(args, search.ClassName)
		default:
			where += " AND t.class_identifier = ? COLLATE NOCASE"
			args = append(args, search.ClassName)
		}
		return s.queryTags(ctx, where+" ORDER BY t.id", args...)
	}

	args := append([]any{}, memberKinds...)
	if search.Qualified {
		args = append(args, search.Identifier)
		return s.queryTags(ctx, nonMemberKindFilter+" AND t.key = ? COLLATE NOCASE ORDER BY t.id", args...)
	}
	args = append(args, search.Identifier)
	return s.queryTags(ctx, nonMemberKindFilter+" AND t.identifier = ? ORDER BY t.id", args...)
}

// NearMatchTags returns tags whose name starts with prefix (case-sensitive).
// "Foo::ba" completes members of Foo. When nothing matches and fuzzy
// matching is enabled, similar names are ranked by Jaro-Winkler instead.
func (s *tagDB) NearMatchTags(ctx context.Context, prefix string, limit int) ([]types.Tag, error) {
	search := types.ParseTagSearch(prefix)
	limit = s.limit(limit)

	var (
		where string
		args  []any
	)
	if search.HasClass {
		where = memberKindFilter + " AND t.identifier GLOB ?"
		args = append(append(args, memberKinds...), globPrefix(search.Identifier))
		if search.ClassName != "" {
			if search.Qualified {
				where += " AND t.class_name = ? COLLATE NOCASE"
			} else {
				where += " AND t.class_identifier = ? COLLATE NOCASE"
			}
			args = append(args, search.ClassName)
		}
	} else if search.Qualified {
		where = nonMemberKindFilter + " AND t.key GLOB ?"
		args = append(append(args, memberKinds...), globPrefix(search.Identifier))
	} else {
		where = nonMemberKindFilter + " AND t.identifier GLOB ?"
		args = append(append(args, memberKinds...), globPrefix(search.Identifier))
	}

	tags, err := s.queryTags(ctx, where+" ORDER BY t.identifier, t.id LIMIT ?", append(args, limit)...)
	if err != nil || len(tags) > 0 || !s.opts.FuzzyNearMatch || search.Identifier == "" {
		return tags, err
	}
	return s.fuzzyTags(ctx, search, limit)
}

// fuzzyTags ranks candidates sharing the first letter of the search by
// Jaro-Winkler similarity of the same-length name prefix
func (s *tagDB) fuzzyTags(ctx context.Context, search types.TagSearch, limit int) ([]types.Tag, error) {
	first, _ := utf8.DecodeRuneInString(search.Identifier)
	filter := nonMemberKindFilter
	if search.HasClass {
		filter = memberKindFilter
	}
	args := append(append([]any{}, memberKinds...), string(first)+"%")
	candidates, err := s.queryTags(ctx, filter+" AND t.identifier LIKE ?", args...)
	if err != nil {
		return nil, err
	}

	type scored struct {
		tag   types.Tag
		score float32
	}
	want := strings.ToLower(search.Identifier)
	var ranked []scored
	for _, tag := range candidates {
		if search.HasClass && search.ClassName != "" &&
			!strings.EqualFold(tag.ClassIdentifier, search.ClassName) && !strings.EqualFold(tag.ClassName, search.ClassName) {
			continue
		}
		name := strings.ToLower(tag.Identifier)
		if n := len([]rune(want)); len([]rune(name)) > n {
			name = string([]rune(name)[:n])
		}
		score, err := edlib.StringsSimilarity(want, name, edlib.JaroWinkler)
		if err != nil || float64(score) < s.opts.FuzzyThreshold {
			continue
		}
		ranked = append(ranked, scored{tag: tag, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].tag.Identifier < ranked[j].tag.Identifier
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	tags := make([]types.Tag, len(ranked))
	for i, r := range ranked {
		tags[i] = r.tag
	}
	return tags, nil
}

// ExactClassOrFile returns CLASS tags named name and files whose base name is name
func (s *tagDB) ExactClassOrFile(ctx context.Context, name string) ([]types.Tag, []FileItem, error) {
	search := types.ParseTagSearch(name)
	if search.Identifier == "" {
		return nil, nil, nil
	}
	column := "t.identifier"
	if search.Qualified {
		column = "t.key"
	}
	tags, err := s.queryTags(ctx, "t.type = ? AND "+column+" = ? COLLATE NOCASE ORDER BY t.id",
		int(types.TagKindClass), search.Identifier)
	if err != nil {
		return nil, nil, err
	}
	files, err := s.queryFiles(ctx, "name = ? ORDER BY full_path", search.Identifier)
	return tags, files, err
}

// NearMatchClassesOrFiles returns CLASS tags and files whose names start with prefix
func (s *tagDB) NearMatchClassesOrFiles(ctx context.Context, prefix string, limit int) ([]types.Tag, []FileItem, error) {
	search := types.ParseTagSearch(prefix)
	limit = s.limit(limit)
	column := "t.identifier"
	if search.Qualified {
		column = "t.key"
	}
	tags, err := s.queryTags(ctx, "t.type = ? AND "+column+" GLOB ? ORDER BY t.identifier LIMIT ?",
		int(types.TagKindClass), globPrefix(search.Identifier), limit)
	if err != nil {
		return nil, nil, err
	}
	files, err := s.queryFiles(ctx, "name GLOB ? ORDER BY name, full_path LIMIT ?", globPrefix(search.Identifier), limit)
	return tags, files, err
}

// MemberTags returns the methods, properties and constants declared by any
// of classNames. An empty name returns every member; otherwise name is a
// prefix, or an exact name when exact is set. Method names compare
// case-insensitively as PHP does.
func (s *tagDB) MemberTags(ctx context.Context, classNames []string, name string, exact bool) ([]types.Tag, error) {
	if len(classNames) == 0 {
		return nil, nil
	}
	args := append([]any{}, memberKinds...)
	where := memberKindFilter + " AND t.class_name COLLATE NOCASE IN (" + placeholders(len(classNames)) + ")"
	for _, c := range classNames {
		args = append(args, strings.TrimPrefix(c, "\\"))
	}
	where, args = memberNameFilter(where, args, name, exact)
	return s.queryTags(ctx, where+" ORDER BY t.class_name, t.identifier", args...)
}

// MembersByName returns members of any class named name (or starting with
// it). Duck-typed resolution uses it when the receiver class is unknown.
func (s *tagDB) MembersByName(ctx context.Context, name string, exact bool) ([]types.Tag, error) {
	args := append([]any{}, memberKinds...)
	where, args := memberNameFilter(memberKindFilter, args, name, exact)
	return s.queryTags(ctx, where+" ORDER BY t.class_name, t.identifier LIMIT ?", append(args, s.limit(0))...)
}

func memberNameFilter(where string, args []any, name string, exact bool) (string, []any) {
	switch {
	case name == "":
	case exact:
		where += " AND (t.identifier = ? OR (t.type = ? AND t.identifier = ? COLLATE NOCASE))"
		args = append(args, name, int(types.TagKindMethod), name)
	default:
		where += " AND t.identifier GLOB ?"
		args = append(args, globPrefix(name))
	}
	return where, args
}

// ClassRelations returns the extends, implements and trait edges declared by className
func (s *tagDB) ClassRelations(ctx context.Context, className string) ([]types.ClassRelation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.class_name, r.related_name, r.kind, COALESCE(f.full_path, '')
		FROM class_relations r LEFT JOIN file_items f ON f.file_item_id = r.file_item_id
		WHERE r.class_name = ? COLLATE NOCASE ORDER BY r.id`, strings.TrimPrefix(className, "\\"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ClassRelation
	for rows.Next() {
		var r types.ClassRelation
		var kind int
		if err := rows.Scan(&r.ClassName, &r.RelatedName, &kind, &r.FullPath); err != nil {
			return nil, err
		}
		r.Kind = types.ClassRelationKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TagCount returns the number of tags in the store
func (s *tagDB) TagCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags").Scan(&n)
	return n, err
}

// FileCount returns the number of files recorded, parsed or not
func (s *tagDB) FileCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM file_items").Scan(&n)
	return n, err
}

// TagCountsByKind returns the number of tags of each kind
func (s *tagDB) TagCountsByKind(ctx context.Context) (map[types.TagKind]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT type, COUNT(*) FROM tags GROUP BY type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[types.TagKind]int)
	for rows.Next() {
		var kind, n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[types.TagKind(kind)] = n
	}
	return counts, rows.Err()
}

// File returns the record of one file
func (s *tagDB) File(ctx context.Context, path string) (FileItem, bool, error) {
	files, err := s.queryFiles(ctx, "full_path = ?", path)
	if err != nil || len(files) == 0 {
		return FileItem{}, false, err
	}
	return files[0], true, nil
}

// Files returns every recorded file ordered by path
func (s *tagDB) Files(ctx context.Context) ([]FileItem, error) {
	return s.queryFiles(ctx, "1 = 1 ORDER BY full_path")
}

func (s *tagDB) queryFiles(ctx context.Context, where string, args ...any) ([]FileItem, error) {
	return queryFiles(ctx, s.db, where, args...)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryFiles(ctx context.Context, q querier, where string, args ...any) ([]FileItem, error) {
	rows, err := q.QueryContext(ctx, `SELECT file_item_id, COALESCE(source_id, 0), full_path, name,
		last_modified, content_hash, is_parsed FROM file_items WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileItem
	for rows.Next() {
		var f FileItem
		var parsed int
		if err := rows.Scan(&f.ID, &f.SourceID, &f.FullPath, &f.Name, &f.LastModified, &f.ContentHash, &parsed); err != nil {
			return nil, err
		}
		f.IsParsed = parsed != 0
		out = append(out, f)
	}
	return out, rows.Err()
}
