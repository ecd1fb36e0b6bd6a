package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/standardbeagle/phptags/internal/debug"
	"github.com/standardbeagle/phptags/internal/types"
	"github.com/standardbeagle/phptags/internal/version"
)

//go:embed schema.sql
var schemaSQL string

const driverName = "sqlite"

// Queryable is the read side shared by global and working stores. The tag
// cache fans its lookups out over every registered Queryable.
type Queryable interface {
	// Path identifies the store: the database file of a global store, the
	// buffer path of a working store.
	Path() string
	ExactTags(ctx context.Context, name string) ([]types.Tag, error)
	NearMatchTags(ctx context.Context, prefix string, limit int) ([]types.Tag, error)
	ExactClassOrFile(ctx context.Context, name string) ([]types.Tag, []FileItem, error)
	NearMatchClassesOrFiles(ctx context.Context, prefix string, limit int) ([]types.Tag, []FileItem, error)
	MemberTags(ctx context.Context, classNames []string, name string, exact bool) ([]types.Tag, error)
	MembersByName(ctx context.Context, name string, exact bool) ([]types.Tag, error)
	ClassRelations(ctx context.Context, className string) ([]types.ClassRelation, error)
	TagCount(ctx context.Context) (int, error)
	FileCount(ctx context.Context) (int, error)
}

// QueryOptions tunes near-match lookups
type QueryOptions struct {
	// FuzzyNearMatch ranks near misses by Jaro-Winkler similarity when a
	// prefix lookup finds nothing.
	FuzzyNearMatch bool
	FuzzyThreshold float64
	MaxResults     int
}

// DefaultQueryOptions returns prefix-only matching with a result cap
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{FuzzyThreshold: 0.85, MaxResults: 200}
}

// FileItem is one file known to a store
type FileItem struct {
	ID           int64
	SourceID     int64
	FullPath     string
	Name         string
	LastModified int64 // UnixNano
	ContentHash  string
	IsParsed     bool
}

// tagDB is the SQLite query engine behind both store kinds
type tagDB struct {
	db   *sql.DB
	path string
	opts QueryOptions
}

// Path implements Queryable
func (s *tagDB) Path() string {
	return s.path
}

// Close releases the database
func (s *tagDB) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// applySchema creates the tables of a fresh database and stamps the
// schema version. A database written by a newer version is left untouched.
func applySchema(ctx context.Context, db *sql.DB) error {
	var existing int
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&existing)
	if err == nil && existing >= version.SchemaVersion {
		if existing > version.SchemaVersion {
			debug.LogStore("store schema %d is newer than %d, reading as is\n", existing, version.SchemaVersion)
		}
		return nil
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if existing == 0 {
		_, err = db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version.SchemaVersion)
	} else {
		_, err = db.ExecContext(ctx, "UPDATE schema_version SET version = ?", version.SchemaVersion)
	}
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

const tagColumns = `t.id, t.type, t.flavor, t.identifier, t.class_name, t.class_identifier,
	t.namespace_name, t.signature, t.return_type, t.phpdoc_type, t.comment, t.visibility,
	t.is_static, t.is_dynamic, t.is_native, COALESCE(f.full_path, ''),
	COALESCE(t.file_item_id, 0), COALESCE(t.source_id, 0)`

const tagFrom = ` FROM tags t LEFT JOIN file_items f ON f.file_item_id = t.file_item_id`

func scanTags(rows *sql.Rows) ([]types.Tag, error) {
	defer rows.Close()
	var tags []types.Tag
	for rows.Next() {
		var (
			tag                           types.Tag
			kind, flavor, visibility      int
			isStatic, isDynamic, isNative int
		)
		if err := rows.Scan(&tag.ID, &kind, &flavor, &tag.Identifier, &tag.ClassName, &tag.ClassIdentifier,
			&tag.NamespaceName, &tag.Signature, &tag.ReturnType, &tag.PhpDocType, &tag.Comment, &visibility,
			&isStatic, &isDynamic, &isNative, &tag.FullPath, &tag.FileItemID, &tag.SourceID); err != nil {
			return nil, err
		}
		tag.Kind = types.TagKind(kind)
		tag.Flavor = types.ClassFlavor(flavor)
		tag.Visibility = types.Visibility(visibility)
		tag.IsStatic = isStatic != 0
		tag.IsDynamic = isDynamic != 0
		tag.IsNative = isNative != 0
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *tagDB) queryTags(ctx context.Context, where string, args ...any) ([]types.Tag, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+tagColumns+tagFrom+" WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	return scanTags(rows)
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// insertTags writes tags owned by fileItemID (0 for tags with no file)
func insertTags(ctx context.Context, tx execer, fileItemID, sourceID int64, tags []types.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tags (file_item_id, source_id, key, identifier,
		class_identifier, class_name, namespace_name, type, flavor, signature, return_type, phpdoc_type,
		comment, visibility, is_static, is_dynamic, is_native)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tags {
		if _, err := stmt.ExecContext(ctx, nullableID(fileItemID), nullableID(sourceID), t.FullyQualified(),
			t.Identifier, t.ClassIdentifier, t.ClassName, t.NamespaceName, int(t.Kind), int(t.Flavor),
			t.Signature, t.ReturnType, t.PhpDocType, t.Comment, int(t.Visibility),
			boolInt(t.IsStatic), boolInt(t.IsDynamic), boolInt(t.IsNative)); err != nil {
			return fmt.Errorf("failed to insert tag %s: %w", t.FullyQualified(), err)
		}
	}
	return nil
}

func insertRelations(ctx context.Context, tx execer, fileItemID int64, relations []types.ClassRelation) error {
	if len(relations) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO class_relations (file_item_id, class_name, related_name, kind)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range relations {
		if _, err := stmt.ExecContext(ctx, nullableID(fileItemID), r.ClassName, r.RelatedName, int(r.Kind)); err != nil {
			return err
		}
	}
	return nil
}

// deleteFileRows removes everything a file contributed
func deleteFileRows(ctx context.Context, tx execer, fileItemID int64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM tags WHERE file_item_id = ?", fileItemID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "DELETE FROM class_relations WHERE file_item_id = ?", fileItemID)
	return err
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// globPrefix builds a case-sensitive GLOB pattern matching names that
// start with prefix
func globPrefix(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('*')
	return b.String()
}
