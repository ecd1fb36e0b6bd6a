package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/store"
	"github.com/standardbeagle/phptags/internal/types"
	"github.com/standardbeagle/phptags/testhelpers"
)

// indexProject writes files to a fixture project and indexes them into a
// fresh global store kept outside the project tree
func indexProject(t *testing.T, files map[string]string) (*store.GlobalStore, *testhelpers.PHPProject) {
	t.Helper()
	project := testhelpers.WritePHPProject(t, files)
	g := openStore(t, filepath.Join(t.TempDir(), "tags.db"), false)

	cursor := project.Cursor()
	for {
		res, more := g.Walk(context.Background(), cursor)
		if !more {
			require.Equal(t, store.WalkDone, res.Status)
			break
		}
		require.NoError(t, res.Err, "walking %s", res.Path)
	}
	return g, project
}

func openStore(t *testing.T, path string, readOnly bool) *store.GlobalStore {
	t.Helper()
	g, err := store.OpenGlobal(context.Background(), store.OpenOptions{
		Path:              path,
		IncludeExtensions: []string{".php"},
		Version:           types.PHPVersion54,
		ReadOnly:          readOnly,
	})
	require.NoError(t, err)
	return g
}

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	c := New(opts)
	t.Cleanup(func() { c.Close() })
	return c
}

// newWorking parses text into a working store for fileID
func newWorking(t *testing.T, fileID, path, text string) *store.WorkingStore {
	t.Helper()
	p := parser.New(types.PHPVersion54)
	t.Cleanup(p.Close)
	ws, err := store.NewWorking(context.Background(), fileID, path, p, store.QueryOptions{})
	require.NoError(t, err)
	require.NoError(t, ws.Update(context.Background(), []byte(text)))
	return ws
}

func identifiers(tags []types.Tag) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = tag.Identifier
	}
	return out
}

func TestCache_StatusTransitions(t *testing.T) {
	c := newTestCache(t, DefaultOptions())
	assert.Equal(t, StatusStale, c.Status())
	assert.Equal(t, "STALE", c.Status().String())

	c.MarkIndexed()
	assert.Equal(t, "OK", c.Status().String())

	c.MarkStale()
	assert.Equal(t, StatusStale, c.Status())
}

func TestCache_EmptyCacheGuard(t *testing.T) {
	c := newTestCache(t, DefaultOptions())
	ctx := context.Background()
	assert.True(t, c.IsResourceCacheEmpty(ctx))

	expr := types.Expression{Kind: types.ExprFunctionCall, Function: "main"}
	tags, err := c.ResourceMatches(ctx, "", expr, types.Scope{}, types.ResolutionStrict, true)
	require.Error(t, err)
	assert.Empty(t, tags)
	assert.Equal(t, tagerrors.CodeEmptyCache, tagerrors.CodeOf(err))

	_, err = c.ExpressionCompletionMatches(ctx, "", types.Expression{Kind: types.ExprVariable, Variable: "$a"}, types.Scope{}, types.ResolutionDuckTyped)
	assert.Equal(t, tagerrors.CodeEmptyCache, tagerrors.CodeOf(err))

	// a registered store that never indexed anything is still empty
	g := openStore(t, filepath.Join(t.TempDir(), "tags.db"), false)
	require.True(t, c.RegisterGlobal(g))
	assert.True(t, c.IsResourceCacheEmpty(ctx))
	_, err = c.ResourceMatches(ctx, "", expr, types.Scope{}, types.ResolutionStrict, true)
	assert.Equal(t, tagerrors.CodeEmptyCache, tagerrors.CodeOf(err))
}

func TestCache_RegisterGlobalDedup(t *testing.T) {
	g1, _ := indexProject(t, map[string]string{"a.php": "<?php\nfunction a() {}\n"})
	path := g1.Path()
	c := newTestCache(t, DefaultOptions())

	require.True(t, c.RegisterGlobal(g1))
	assert.True(t, c.IsInitGlobal(path))

	g2 := openStore(t, path, true)
	assert.False(t, c.RegisterGlobal(g2), "same backing path must be rejected")
	require.NoError(t, g2.Close())

	// an unclean spelling of the same path is still the same store
	assert.True(t, c.IsInitGlobal(filepath.Join(filepath.Dir(path), ".", filepath.Base(path))))

	require.True(t, c.RemoveGlobal(path))
	assert.False(t, c.IsInitGlobal(path))
	assert.False(t, c.RemoveGlobal(path))

	g3 := openStore(t, path, true)
	assert.True(t, c.RegisterGlobal(g3), "registration succeeds again after removal")
	assert.Len(t, c.Globals(), 1)
}

func TestCache_RegisterWorkingReturnsOrphan(t *testing.T) {
	c := newTestCache(t, DefaultOptions())
	ws1 := newWorking(t, "buffer-1", "/p/a.php", "<?php\nfunction one() {}\n")
	ws2 := newWorking(t, "buffer-1", "/p/a.php", "<?php\nfunction two() {}\n")

	orphan, ok := c.RegisterWorking("buffer-1", ws1)
	require.True(t, ok)
	assert.Nil(t, orphan)

	orphan, ok = c.RegisterWorking("buffer-1", ws2)
	assert.False(t, ok)
	assert.Same(t, ws2, orphan, "rejected store is handed back")
	require.NoError(t, orphan.Close())

	got, ok := c.Working("buffer-1")
	require.True(t, ok)
	assert.Same(t, ws1, got)

	ws3 := newWorking(t, "buffer-1", "/p/a.php", "<?php\nfunction three() {}\n")
	orphan, ok = c.RegisterWorking("", ws3)
	assert.False(t, ok)
	assert.Same(t, ws3, orphan)

	c.ReplaceWorking("buffer-1", ws3)
	got, _ = c.Working("buffer-1")
	assert.Same(t, ws3, got)
	tags, err := c.ExactTags(context.Background(), "three")
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	id := NewBufferID()
	assert.Contains(t, id, "buffer:")
	c.ReplaceWorking(id, newWorking(t, id, "", "<?php\n"))
	assert.Equal(t, []string{"buffer-1", id}, c.WorkingIDs())

	assert.True(t, c.RemoveWorking("buffer-1"))
	assert.False(t, c.RemoveWorking("buffer-1"))
	assert.Equal(t, []string{id}, c.WorkingIDs())
}

func TestCache_WorkingStoreShadowsGlobal(t *testing.T) {
	g, project := indexProject(t, map[string]string{
		"src/Order.php": "<?php\nclass Order {\n    function total() {}\n}\n",
		"src/Other.php": "<?php\nclass Other {\n    function total() {}\n}\n",
	})
	c := newTestCache(t, DefaultOptions())
	require.True(t, c.RegisterGlobal(g))
	ctx := context.Background()

	tags, err := c.ExactTags(ctx, "Order::total")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.NotContains(t, tags[0].Signature, "$currency")

	ws := newWorking(t, "open-order", project.Path("src/Order.php"),
		"<?php\nclass Order {\n    function total($currency) {}\n    function discount() {}\n}\n")
	_, ok := c.RegisterWorking("open-order", ws)
	require.True(t, ok)

	tags, err = c.ExactTags(ctx, "Order::total")
	require.NoError(t, err)
	require.Len(t, tags, 1, "the global copy of an open file is shadowed")
	assert.Contains(t, tags[0].Signature, "$currency")

	tags, err = c.NearMatchTags(ctx, "Order::")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"discount", "total"}, identifiers(tags))

	expr := types.Expression{Kind: types.ExprStatic, ClassName: "Order",
		Chain: []types.ChainItem{{Name: "total", IsMethod: true, IsStatic: true}}}
	tags, err = c.ResourceMatches(ctx, "open-order", expr, types.Scope{}, types.ResolutionStrict, true)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Contains(t, tags[0].Signature, "$currency")

	// other files of the project still come from the global store
	tags, err = c.ExactTags(ctx, "Other::total")
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	require.True(t, c.RemoveWorking("open-order"))
	tags, err = c.ExactTags(ctx, "Order::total")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.NotContains(t, tags[0].Signature, "$currency")
}

func TestCache_ShadowingMatchesRelativeOverlayPaths(t *testing.T) {
	g, project := indexProject(t, map[string]string{
		"Foo.php": "<?php\nclass Foo {\n    function stale() {}\n}\n",
	})
	c := newTestCache(t, DefaultOptions())
	require.True(t, c.RegisterGlobal(g))
	ctx := context.Background()
	t.Chdir(project.Root)

	for _, path := range []string{"./Foo.php", filepath.Join(project.Root, "sub", "..", "Foo.php")} {
		t.Run(path, func(t *testing.T) {
			ws := newWorking(t, "open-foo", path, "<?php\nclass Foo {\n    function fresh() {}\n}\n")
			assert.Equal(t, project.Path("Foo.php"), ws.Path())
			_, ok := c.RegisterWorking("open-foo", ws)
			require.True(t, ok)
			defer c.RemoveWorking("open-foo")

			tags, err := c.ExactTags(ctx, "Foo")
			require.NoError(t, err)
			require.Len(t, tags, 1)
			assert.Equal(t, project.Path("Foo.php"), tags[0].FullPath)

			members, err := c.AllMemberTags(ctx, "Foo")
			require.NoError(t, err)
			assert.Equal(t, []string{"fresh"}, identifiers(members))
		})
	}
}

const hierarchySource = `<?php
trait Greets {
    public function hello() {}
}
interface Named {
    function name();
}
class Base implements Named {
    use Greets;
    public function baseMethod() {}
    public function shared() {}
    public function name() {}
}
class Child extends Base {
    public $label;
    public function childMethod() {}
    public function shared() {}
}
`

func TestCache_AllMemberTagsIncludesInherited(t *testing.T) {
	g, _ := indexProject(t, map[string]string{"hierarchy.php": hierarchySource})
	c := newTestCache(t, DefaultOptions())
	require.True(t, c.RegisterGlobal(g))
	ctx := context.Background()

	ancestors, err := c.ParentClassesAndTraits(ctx, "Child")
	require.NoError(t, err)
	require.NotEmpty(t, ancestors)
	assert.Equal(t, "Base", ancestors[0], "nearest ancestor first")
	assert.ElementsMatch(t, []string{"Base", "Named", "Greets"}, ancestors)

	members, err := c.AllMemberTags(ctx, "Child")
	require.NoError(t, err)
	names := identifiers(members)
	assert.Contains(t, names, "baseMethod")
	assert.Contains(t, names, "hello", "trait methods are inherited")
	assert.Contains(t, names, "childMethod")
	assert.Contains(t, names, "label")

	var shared []types.Tag
	for _, m := range members {
		if m.Identifier == "shared" {
			shared = append(shared, m)
		}
	}
	require.Len(t, shared, 1, "an override is listed once")
	assert.Equal(t, "Child", shared[0].ClassName)

	names = nil
	for _, m := range members {
		if m.Identifier == "name" {
			names = append(names, m.ClassName)
		}
	}
	assert.Equal(t, []string{"Base"}, names, "the implementation wins over the interface")
}

func TestCache_AncestryIsMemoizedPerGeneration(t *testing.T) {
	g, _ := indexProject(t, map[string]string{"hierarchy.php": hierarchySource})
	c := newTestCache(t, DefaultOptions())
	require.True(t, c.RegisterGlobal(g))
	ctx := context.Background()

	_, err := c.ParentClassesAndTraits(ctx, "Child")
	require.NoError(t, err)
	_, err = c.ParentClassesAndTraits(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.LookupStats().Hits)

	// reparenting Child in an open buffer must not be answered from memory
	ws := newWorking(t, "buf", "/elsewhere/Child.php", "<?php\nclass Child extends Other {}\nclass Other {}\n")
	_, ok := c.RegisterWorking("buf", ws)
	require.True(t, ok)
	ancestors, err := c.ParentClassesAndTraits(ctx, "Child")
	require.NoError(t, err)
	assert.Contains(t, ancestors, "Other")

	require.NoError(t, ws.Update(ctx, []byte("<?php\nclass Child extends Third {}\n")))
	ancestors, err = c.ParentClassesAndTraits(ctx, "Child")
	require.NoError(t, err)
	assert.Contains(t, ancestors, "Third")
	assert.NotContains(t, ancestors, "Other")
}

func TestCache_InheritanceCycleTerminates(t *testing.T) {
	g, _ := indexProject(t, map[string]string{
		"cycle.php": "<?php\nclass A extends B {}\nclass B extends A {}\n",
	})
	c := newTestCache(t, DefaultOptions())
	require.True(t, c.RegisterGlobal(g))

	ancestors, err := c.ParentClassesAndTraits(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ancestors)
}

func TestCache_ClassOrFileLookups(t *testing.T) {
	g, project := indexProject(t, map[string]string{
		"src/Order.php":       "<?php\nclass Order {}\nclass OrderLine {}\n",
		"src/OrderLoader.php": "<?php\n",
	})
	c := newTestCache(t, DefaultOptions())
	require.True(t, c.RegisterGlobal(g))
	ctx := context.Background()

	tags, files, err := c.ExactClassOrFile(ctx, "Order")
	require.NoError(t, err)
	assert.Equal(t, []string{"Order"}, identifiers(tags))
	assert.Empty(t, files)

	tags, files, err = c.ExactClassOrFile(ctx, "Order.php")
	require.NoError(t, err)
	assert.Empty(t, tags)
	require.Len(t, files, 1)
	assert.Equal(t, project.Path("src/Order.php"), files[0].FullPath)

	tags, files, err = c.NearMatchClassesOrFiles(ctx, "Order")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Order", "OrderLine"}, identifiers(tags))
	var paths []string
	for _, f := range files {
		paths = append(paths, f.FullPath)
	}
	assert.Contains(t, paths, project.Path("src/OrderLoader.php"))
}

func TestCache_NativeTagsFilteredFromCompletion(t *testing.T) {
	g, _ := indexProject(t, map[string]string{"a.php": "<?php\nfunction str_user() {}\n"})
	ctx := context.Background()
	require.NoError(t, g.InsertDynamicTags(ctx, []types.Tag{{Kind: types.TagKindFunction, Identifier: "str_pad", IsNative: true}}))

	c := newTestCache(t, DefaultOptions())
	require.True(t, c.RegisterGlobal(g))
	tags, err := c.NearMatchTags(ctx, "str_")
	require.NoError(t, err)
	assert.Equal(t, []string{"str_user"}, identifiers(tags))

	opts := DefaultOptions()
	opts.IncludeNative = true
	c2 := New(opts)
	require.True(t, c2.RegisterGlobal(openStore(t, g.Path(), true)))
	defer c2.Close()
	tags, err = c2.NearMatchTags(ctx, "str_")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"str_pad", "str_user"}, identifiers(tags))
}

func TestCache_WipeSkipsReadOnlyStores(t *testing.T) {
	g, _ := indexProject(t, map[string]string{"a.php": "<?php\nfunction a() {}\n"})
	other, _ := indexProject(t, map[string]string{"b.php": "<?php\nfunction b() {}\n"})
	readOnly := openStore(t, other.Path(), true)
	require.NoError(t, other.Close())

	c := newTestCache(t, DefaultOptions())
	require.True(t, c.RegisterGlobal(g))
	require.True(t, c.RegisterGlobal(readOnly))
	c.MarkIndexed()

	err := c.Wipe(context.Background())
	require.Error(t, err, "the read-only store cannot be wiped")
	assert.Equal(t, StatusStale, c.Status())

	n, err := g.TagCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = readOnly.TagCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_Locate(t *testing.T) {
	c := newTestCache(t, DefaultOptions())
	text := "<?php\nclass Order {\n    function total() {}\n}\n"
	tag := types.Tag{Kind: types.TagKindMethod, Identifier: "total", ClassIdentifier: "Order", ClassName: "Order"}

	loc, ok := c.Locate(tag, text)
	require.True(t, ok)
	assert.Equal(t, 3, loc.Line)
	assert.Equal(t, "total", text[loc.Offset:loc.Offset+loc.Length])

	_, ok = c.Locate(tag, "<?php\nclass Order {}\n")
	assert.False(t, ok, "a declaration removed since indexing cannot be located")
}
