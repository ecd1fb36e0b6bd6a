package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/types"
)

func newTestWorking(t *testing.T, fileID, path string) *WorkingStore {
	t.Helper()
	p := parser.New(types.PHPVersion54)
	t.Cleanup(p.Close)
	w, err := NewWorking(context.Background(), fileID, path, p, QueryOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWorkingStore_Update(t *testing.T) {
	w := newTestWorking(t, "buffer-1", "/project/src/Cart.php")
	ctx := context.Background()

	require.NoError(t, w.Update(ctx, []byte(`<?php
class Cart {
    public function add($item) {
        $items = array();
        $items['last'] = $item;
    }
}
`)))
	assert.Equal(t, 1, w.Updates())
	assert.NoError(t, w.LastError())
	assert.Equal(t, "/project/src/Cart.php", w.Path())
	assert.Equal(t, "buffer-1", w.FileID())

	tags, err := w.ExactTags(ctx, "Cart::add")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "/project/src/Cart.php", tags[0].FullPath)

	sym, ok := w.Symbols().Lookup(types.Scope{ClassName: "Cart", MethodName: "add"}, "$items")
	require.True(t, ok)
	assert.Equal(t, []string{"last"}, sym.ArrayKeys)

	// a second good parse replaces everything
	require.NoError(t, w.Update(ctx, []byte("<?php\nfunction helper() {}\n")))
	n, err := w.TagCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	files, err := w.FileCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, files)
}

func TestWorkingStore_BrokenEditKeepsPreviousParse(t *testing.T) {
	w := newTestWorking(t, "buffer-2", "")
	ctx := context.Background()

	good := []byte("<?php\nclass Invoice {\n    function total() { $sum = 0; }\n}\n")
	require.NoError(t, w.Update(ctx, good))

	err := w.Update(ctx, []byte("<?php\nclass Invoice {\n    function total() { $sum = ; }\n"))
	require.Error(t, err)
	assert.Equal(t, tagerrors.CodeParse, tagerrors.CodeOf(err))
	assert.Equal(t, err, w.LastError())
	assert.Equal(t, 1, w.Updates())
	assert.Equal(t, good, w.Source())

	tags, err := w.ExactTags(ctx, "Invoice::total")
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	_, ok := w.Symbols().Lookup(types.Scope{ClassName: "Invoice", MethodName: "total"}, "$sum")
	assert.True(t, ok)
	assert.Equal(t, "buffer-2", w.Path(), "unsaved buffers are keyed by their id")
}

func TestNewWorking_RequiresFileID(t *testing.T) {
	_, err := NewWorking(context.Background(), "", "/a.php", nil, QueryOptions{})
	require.Error(t, err)
	assert.Equal(t, tagerrors.CodeStore, tagerrors.CodeOf(err))
}

func TestNewWorking_CleansFilePaths(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)

	w := newTestWorking(t, "open", "./src/../Cart.php")
	assert.Equal(t, filepath.Join(root, "Cart.php"), w.Path())

	require.NoError(t, w.Update(context.Background(), []byte("<?php class Cart {}")))
	tags, err := w.ExactTags(context.Background(), "Cart")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, filepath.Join(root, "Cart.php"), tags[0].FullPath)

	buffer := newTestWorking(t, "buffer:42", "buffer:42")
	assert.Equal(t, "buffer:42", buffer.Path())
}

func TestWorkingStore_CallStacks(t *testing.T) {
	w := newTestWorking(t, "buffer-3", "")
	ctx := context.Background()

	rows := []CallStackRow{{StepNumber: 0, StepType: "BEGIN_FUNCTION", Expression: "BEGIN_FUNCTION(main)"}}
	require.NoError(t, w.SaveCallStack(ctx, "k", rows))
	got, err := w.LoadCallStack(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
