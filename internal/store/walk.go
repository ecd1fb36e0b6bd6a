package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/phptags/internal/debug"
	tagerrors "github.com/standardbeagle/phptags/internal/errors"
)

// Cursor enumerates candidate files one at a time. Root is the directory
// the files belong to; it becomes the files' source.
type Cursor interface {
	Root() string
	Next() (path string, ok bool)
}

// WalkStatus is the outcome of one Walk call
type WalkStatus uint8

const (
	WalkParsed      WalkStatus = iota // tags replaced
	WalkUnchanged                     // watermark matched, nothing written
	WalkMisc                          // recorded without parsing
	WalkIgnored                       // extension not indexed
	WalkParseFailed                   // syntax error; earlier tags of the file kept
	WalkFailed                        // file or store error
	WalkCancelled                     // context done; nothing of this file committed
	WalkDone                          // cursor exhausted
)

func (s WalkStatus) String() string {
	switch s {
	case WalkParsed:
		return "parsed"
	case WalkUnchanged:
		return "unchanged"
	case WalkMisc:
		return "misc"
	case WalkIgnored:
		return "ignored"
	case WalkParseFailed:
		return "parse_failed"
	case WalkFailed:
		return "failed"
	case WalkCancelled:
		return "cancelled"
	default:
		return "done"
	}
}

// WalkResult reports what one Walk call did
type WalkResult struct {
	Path   string
	Status WalkStatus
	Tags   int
	Err    error
}

// Walk processes the next file of cursor and returns. more is false once
// the cursor is exhausted or ctx is done, so a scheduler can interleave
// many small steps with other work. Each file commits in its own
// transaction: an error or cancellation never touches other files' tags.
func (g *GlobalStore) Walk(ctx context.Context, cursor Cursor) (result WalkResult, more bool) {
	if err := ctx.Err(); err != nil {
		return WalkResult{Status: WalkCancelled, Err: err}, false
	}
	if err := g.writable("walk"); err != nil {
		return WalkResult{Status: WalkFailed, Err: err}, false
	}
	path, ok := cursor.Next()
	if !ok {
		return WalkResult{Status: WalkDone}, false
	}

	result = g.walkFile(ctx, cursor.Root(), cleanPath(path))
	debug.LogStore("walk %s: %s (%d tags)\n", result.Path, result.Status, result.Tags)
	return result, result.Status != WalkCancelled
}

func (g *GlobalStore) walkFile(ctx context.Context, root, path string) WalkResult {
	res := WalkResult{Path: path}
	ext := strings.ToLower(filepath.Ext(path))
	included := g.include[ext]
	if !included && !g.misc[ext] {
		res.Status = WalkIgnored
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		res.Status, res.Err = WalkFailed, err
		return res
	}
	if info.IsDir() {
		res.Status = WalkIgnored
		return res
	}
	sourceID, err := g.sourceID(ctx, root)
	if err != nil {
		res.Status, res.Err = WalkFailed, tagerrors.NewStoreError("walk", path, err)
		return res
	}

	mtime := info.ModTime().UnixNano()
	if !included || (g.opts.MaxFileSize > 0 && info.Size() > g.opts.MaxFileSize) {
		if err := g.recordFile(ctx, FileItem{SourceID: sourceID, FullPath: path, LastModified: mtime}); err != nil {
			res.Status, res.Err = WalkFailed, err
			return res
		}
		res.Status = WalkMisc
		return res
	}

	item, found, err := g.File(ctx, path)
	if err != nil {
		res.Status, res.Err = WalkFailed, tagerrors.NewStoreError("walk", path, err)
		return res
	}
	if found && item.IsParsed && item.LastModified == mtime {
		res.Status = WalkUnchanged
		return res
	}

	content, err := g.readFile(path)
	if err != nil {
		res.Status, res.Err = WalkFailed, err
		return res
	}
	hash := contentHash(content)
	if found && item.IsParsed && item.ContentHash == hash {
		// touched but not edited: move the watermark only
		if _, err := g.db.ExecContext(ctx, "UPDATE file_items SET last_modified = ? WHERE file_item_id = ?", mtime, item.ID); err != nil {
			res.Status, res.Err = WalkFailed, tagerrors.NewStoreError("walk", path, err)
			return res
		}
		res.Status = WalkUnchanged
		return res
	}

	tags, relations, err := g.parser.ParseTags(ctx, path, content)
	if err != nil {
		if ctx.Err() != nil {
			res.Status, res.Err = WalkCancelled, ctx.Err()
			return res
		}
		debug.Warn("skipping %s: %v\n", path, err)
		res.Status, res.Err = WalkParseFailed, err
		return res
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		res.Status, res.Err = WalkFailed, tagerrors.NewStoreError("walk", path, err)
		return res
	}
	defer tx.Rollback()

	id, err := upsertFile(ctx, tx, FileItem{
		SourceID: sourceID, FullPath: path, LastModified: mtime, ContentHash: hash, IsParsed: true,
	})
	if err == nil {
		err = deleteFileRows(ctx, tx, id)
	}
	if err == nil {
		err = insertTags(ctx, tx, id, sourceID, tags)
	}
	if err == nil {
		err = insertRelations(ctx, tx, id, relations)
	}
	if err != nil {
		res.Status, res.Err = WalkFailed, tagerrors.NewStoreError("walk", path, err)
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Status, res.Err = WalkCancelled, err
		return res
	}
	if err := tx.Commit(); err != nil {
		res.Status, res.Err = WalkFailed, tagerrors.NewStoreError("walk", path, err)
		return res
	}

	res.Status = WalkParsed
	res.Tags = len(tags)
	return res
}

// recordFile stores a file without tags
func (g *GlobalStore) recordFile(ctx context.Context, item FileItem) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return tagerrors.NewStoreError("walk", item.FullPath, err)
	}
	defer tx.Rollback()

	id, err := upsertFile(ctx, tx, item)
	if err == nil {
		err = deleteFileRows(ctx, tx, id)
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		return tagerrors.NewStoreError("walk", item.FullPath, err)
	}
	return nil
}

// upsertFile inserts or updates a file record and returns its id
func upsertFile(ctx context.Context, tx *sql.Tx, item FileItem) (int64, error) {
	if item.Name == "" {
		item.Name = filepath.Base(item.FullPath)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO file_items (source_id, full_path, name, last_modified, content_hash, is_parsed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(full_path) DO UPDATE SET source_id = excluded.source_id, name = excluded.name,
			last_modified = excluded.last_modified, content_hash = excluded.content_hash,
			is_parsed = excluded.is_parsed`,
		nullableID(item.SourceID), item.FullPath, item.Name, item.LastModified, item.ContentHash, boolInt(item.IsParsed))
	if err != nil {
		return 0, err
	}
	var id int64
	err = tx.QueryRowContext(ctx, "SELECT file_item_id FROM file_items WHERE full_path = ?", item.FullPath).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("file record vanished after upsert")
	}
	return id, err
}
