package store

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"

	"github.com/standardbeagle/phptags/internal/debug"
	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/symbols"
)

// WorkingStore is the in-memory overlay of one open buffer: its tags and
// the symbol table of its last successful parse.
type WorkingStore struct {
	tagDB
	fileID  string
	parser  *parser.Parser
	symbols *symbols.Table
	source  []byte
	lastErr error
	updates int
}

// BufferPrefix marks the synthetic path of a buffer that has no file yet
const BufferPrefix = "buffer:"

// NewWorking creates an empty working store for the buffer fileID whose
// contents belong to path. Unsaved buffers pass an empty path or their
// synthetic id and are keyed by it. File paths are made absolute and
// clean, the form global stores record. The parser is shared and not
// closed by the store.
func NewWorking(ctx context.Context, fileID, path string, p *parser.Parser, opts QueryOptions) (*WorkingStore, error) {
	if fileID == "" {
		return nil, tagerrors.NewStoreError("open", path, errors.New("working store needs a file id"))
	}
	switch {
	case path == "":
		path = fileID
	case !strings.HasPrefix(path, BufferPrefix):
		path = cleanPath(path)
	}
	if opts.MaxResults == 0 && opts.FuzzyThreshold == 0 {
		opts = DefaultQueryOptions()
	}

	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, tagerrors.NewStoreError("open", path, err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, tagerrors.NewStoreError("schema", path, err)
	}

	return &WorkingStore{
		tagDB:   tagDB{db: db, path: path, opts: opts},
		fileID:  fileID,
		parser:  p,
		symbols: symbols.New(),
	}, nil
}

// FileID returns the buffer id the store belongs to
func (w *WorkingStore) FileID() string {
	return w.fileID
}

// Symbols returns the symbol table of the last successful parse
func (w *WorkingStore) Symbols() *symbols.Table {
	return w.symbols
}

// Source returns the text of the last successful parse
func (w *WorkingStore) Source() []byte {
	return w.source
}

// LastError returns the error of the most recent Update, nil when it parsed
func (w *WorkingStore) LastError() error {
	return w.lastErr
}

// Updates returns the number of successful parses
func (w *WorkingStore) Updates() int {
	return w.updates
}

// Update reparses the buffer. When text does not parse, the tags and the
// symbol table of the previous good parse stay in place and the
// *errors.ParseError is returned, so completion keeps working mid-edit.
func (w *WorkingStore) Update(ctx context.Context, text []byte) error {
	res, err := w.parser.Parse(ctx, w.path, text)
	if err != nil {
		w.lastErr = err
		debug.LogStore("working %s kept previous tags: %v\n", w.fileID, err)
		return err
	}
	defer res.Close()

	events := slices.Collect(res.Events())
	tags := parser.ExtractTags(slices.Values(events))
	relations := parser.ExtractRelations(slices.Values(events))
	table := symbols.Build(slices.Values(events))

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return tagerrors.NewStoreError("update", w.path, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM tags", "DELETE FROM class_relations", "DELETE FROM file_items"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return tagerrors.NewStoreError("update", w.path, err)
		}
	}
	id, err := upsertFile(ctx, tx, FileItem{FullPath: w.path, ContentHash: contentHash(text), IsParsed: true})
	if err == nil {
		err = insertTags(ctx, tx, id, 0, tags)
	}
	if err == nil {
		err = insertRelations(ctx, tx, id, relations)
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		return tagerrors.NewStoreError("update", w.path, err)
	}

	w.symbols = table
	w.source = text
	w.lastErr = nil
	w.updates++
	debug.LogStore("working %s: %d tags, %d variables\n", w.fileID, len(tags), table.Len())
	return nil
}
