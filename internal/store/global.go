package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/phptags/internal/debug"
	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/types"
)

// OpenOptions configures a global store
type OpenOptions struct {
	Path              string
	IncludeExtensions []string // parsed for tags
	MiscExtensions    []string // recorded for file lookup, never parsed
	Version           types.PHPVersion
	BufferSizeHint    int
	MaxFileSize       int64 // larger included files are recorded unparsed; 0 means no limit
	// ReadOnly opens an existing store for an additional reader. Walks and
	// writes fail on a read-only store.
	ReadOnly bool
	Query    QueryOptions
}

// GlobalStore is the persisted tag index of one project
type GlobalStore struct {
	tagDB
	opts    OpenOptions
	parser  *parser.Parser
	include map[string]bool
	misc    map[string]bool
	sources map[string]int64
}

// OpenGlobal opens or creates the store at opts.Path. A file that is not a
// usable database is treated as absent and recreated. Any other failure is
// a *errors.StoreError; the store is then unusable.
func OpenGlobal(ctx context.Context, opts OpenOptions) (*GlobalStore, error) {
	if opts.Path == "" {
		return nil, tagerrors.NewStoreError("open", opts.Path, errors.New("store path is empty"))
	}
	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, tagerrors.NewStoreError("open", opts.Path, err)
	}
	opts.Path = filepath.Clean(path)
	if opts.Query.MaxResults == 0 && opts.Query.FuzzyThreshold == 0 {
		opts.Query = DefaultQueryOptions()
	}

	db, err := openDB(ctx, opts.Path, opts.ReadOnly)
	if err != nil && !opts.ReadOnly && fileExists(opts.Path) {
		debug.Warn("tag store %s is corrupt (%v), recreating\n", opts.Path, err)
		removeDatabaseFiles(opts.Path)
		db, err = openDB(ctx, opts.Path, false)
	}
	if err != nil {
		return nil, tagerrors.NewStoreError("open", opts.Path, err)
	}

	if !opts.ReadOnly {
		if err := applySchema(ctx, db); err != nil {
			db.Close()
			return nil, tagerrors.NewStoreError("schema", opts.Path, err)
		}
	}

	g := &GlobalStore{
		tagDB:   tagDB{db: db, path: opts.Path, opts: opts.Query},
		opts:    opts,
		parser:  parser.New(opts.Version),
		include: extensionSet(opts.IncludeExtensions),
		misc:    extensionSet(opts.MiscExtensions),
		sources: make(map[string]int64),
	}
	debug.LogStore("opened global store %s (read-only=%v)\n", opts.Path, opts.ReadOnly)
	return g, nil
}

func openDB(ctx context.Context, path string, readOnly bool) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if readOnly {
		dsn = "file:" + filepath.ToSlash(path) + "?mode=ro&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := checkIntegrity(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func checkIntegrity(ctx context.Context, db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func removeDatabaseFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			debug.LogStore("failed to remove %s: %v\n", p, err)
		}
	}
}

func extensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}

// Close releases the database and the parser
func (g *GlobalStore) Close() error {
	g.parser.Close()
	return g.tagDB.Close()
}

// Options returns the options the store was opened with
func (g *GlobalStore) Options() OpenOptions {
	return g.opts
}

func (g *GlobalStore) writable(op string) error {
	if g.opts.ReadOnly {
		return tagerrors.NewStoreError(op, g.path, errors.New("store is read-only"))
	}
	return nil
}

// DeleteFromFile removes every tag, relation and the file record of path
func (g *GlobalStore) DeleteFromFile(ctx context.Context, path string) error {
	if err := g.writable("delete"); err != nil {
		return err
	}
	path = cleanPath(path)

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return tagerrors.NewStoreError("delete", path, err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, "SELECT file_item_id FROM file_items WHERE full_path = ?", path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return tagerrors.NewStoreError("delete", path, err)
	}
	if err := deleteFileRows(ctx, tx, id); err != nil {
		return tagerrors.NewStoreError("delete", path, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM file_items WHERE file_item_id = ?", id); err != nil {
		return tagerrors.NewStoreError("delete", path, err)
	}
	if err := tx.Commit(); err != nil {
		return tagerrors.NewStoreError("delete", path, err)
	}
	debug.LogStore("deleted tags of %s\n", path)
	return nil
}

// Prune deletes the records of files that no longer exist on disk
func (g *GlobalStore) Prune(ctx context.Context) (int, error) {
	if err := g.writable("prune"); err != nil {
		return 0, err
	}
	files, err := g.Files(ctx)
	if err != nil {
		return 0, tagerrors.NewStoreError("prune", g.path, err)
	}
	removed := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if fileExists(f.FullPath) {
			continue
		}
		if err := g.DeleteFromFile(ctx, f.FullPath); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// InsertDynamicTags records tags reported by an external detector. They
// have no file and replace earlier dynamic tags with the same key.
func (g *GlobalStore) InsertDynamicTags(ctx context.Context, tags []types.Tag) error {
	if err := g.writable("insert"); err != nil {
		return err
	}
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return tagerrors.NewStoreError("insert", g.path, err)
	}
	defer tx.Rollback()

	dynamic := make([]types.Tag, 0, len(tags))
	for _, t := range tags {
		t.IsDynamic = true
		t.FullPath = ""
		if _, err := tx.ExecContext(ctx, "DELETE FROM tags WHERE is_dynamic = 1 AND type = ? AND key = ?",
			int(t.Kind), t.FullyQualified()); err != nil {
			return tagerrors.NewStoreError("insert", g.path, err)
		}
		dynamic = append(dynamic, t)
	}
	if err := insertTags(ctx, tx, 0, 0, dynamic); err != nil {
		return tagerrors.NewStoreError("insert", g.path, err)
	}
	if err := tx.Commit(); err != nil {
		return tagerrors.NewStoreError("insert", g.path, err)
	}
	return nil
}

// Wipe empties the store, keeping its schema
func (g *GlobalStore) Wipe(ctx context.Context) error {
	if err := g.writable("wipe"); err != nil {
		return err
	}
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return tagerrors.NewStoreError("wipe", g.path, err)
	}
	defer tx.Rollback()
	for _, table := range []string{"tags", "class_relations", "file_items", "sources", "call_stacks"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return tagerrors.NewStoreError("wipe", g.path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return tagerrors.NewStoreError("wipe", g.path, err)
	}
	g.sources = make(map[string]int64)
	debug.LogStore("wiped %s\n", g.path)
	return nil
}

// sourceID returns the id of a source directory, creating it on first use
func (g *GlobalStore) sourceID(ctx context.Context, dir string) (int64, error) {
	if dir == "" {
		return 0, nil
	}
	dir = cleanPath(dir)
	if id, ok := g.sources[dir]; ok {
		return id, nil
	}
	if _, err := g.db.ExecContext(ctx, "INSERT OR IGNORE INTO sources (directory) VALUES (?)", dir); err != nil {
		return 0, err
	}
	var id int64
	if err := g.db.QueryRowContext(ctx, "SELECT source_id FROM sources WHERE directory = ?", dir).Scan(&id); err != nil {
		return 0, err
	}
	g.sources[dir] = id
	return id, nil
}

func (g *GlobalStore) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := bytes.NewBuffer(make([]byte, 0, g.opts.BufferSizeHint))
	if _, err := io.Copy(buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func contentHash(content []byte) string {
	return strconv.FormatUint(xxhash.Sum64(content), 16)
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}
