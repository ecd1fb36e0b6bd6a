package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/phptags/internal/types"
	"github.com/standardbeagle/phptags/internal/version"
	"github.com/standardbeagle/phptags/testhelpers"
)

const shopSource = `<?php
namespace Shop;

interface Payable {
    public function pay($amount);
}

class Order implements Payable {
    const STATUS_OPEN = 'open';
    public $total = 0;
    public function pay($amount) {}
    public function getItems() {}
    public function getTotal() {}
}

class SpecialOrder extends Order {
    public function getTotal() {}
}

function place_order() {}
`

func indexedStore(t *testing.T, opts QueryOptions) (*GlobalStore, *testhelpers.PHPProject) {
	t.Helper()
	project := testhelpers.WritePHPProject(t, map[string]string{
		"src/Order.php": shopSource,
		"src/order.js":  "export default {}",
	})
	g, err := OpenGlobal(context.Background(), OpenOptions{
		Path:              filepath.Join(t.TempDir(), "tags.db"),
		IncludeExtensions: []string{"php"},
		MiscExtensions:    []string{"js"},
		Version:           types.PHPVersion54,
		Query:             opts,
	})
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	walkAll(t, g, project.Cursor())
	return g, project
}

func identifiers(tags []types.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Identifier
	}
	return out
}

func TestExactTags(t *testing.T) {
	g, project := indexedStore(t, DefaultQueryOptions())
	ctx := context.Background()

	tests := []struct {
		name   string
		search string
		want   []string
	}{
		{"bare class name", "Order", []string{"Order"}},
		{"qualified class name", `\Shop\Order`, []string{"Order"}},
		{"wrong namespace", `Billing\Order`, []string{}},
		{"function", "place_order", []string{"place_order"}},
		{"qualified function", `Shop\place_order`, []string{"place_order"}},
		{"member of class", "Order::getTotal", []string{"getTotal"}},
		{"method name ignores case", "order::GETTOTAL", []string{"getTotal"}},
		{"member of any class", "::getTotal", []string{"getTotal", "getTotal"}},
		{"class constant", "Order::STATUS_OPEN", []string{"STATUS_OPEN"}},
		{"members are not plain names", "getTotal", []string{}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags, err := g.ExactTags(ctx, tt.search)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, identifiers(tags))
		})
	}

	tags, err := g.ExactTags(ctx, "Order")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, project.Path("src/Order.php"), tags[0].FullPath)
	assert.Equal(t, "Shop", tags[0].NamespaceName)
}

func TestNearMatchTags(t *testing.T) {
	g, _ := indexedStore(t, DefaultQueryOptions())
	ctx := context.Background()

	tags, err := g.NearMatchTags(ctx, "Order::get", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"getItems", "getTotal"}, identifiers(tags))

	// prefix matching is case-sensitive
	tags, err = g.NearMatchTags(ctx, "order::get", 0)
	require.NoError(t, err)
	assert.Len(t, tags, 2, "class part still compares without case")
	tags, err = g.NearMatchTags(ctx, "Order::Get", 0)
	require.NoError(t, err)
	assert.Empty(t, tags)

	tags, err = g.NearMatchTags(ctx, "Spec", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"SpecialOrder"}, identifiers(tags))

	tags, err = g.NearMatchTags(ctx, `Shop\Pay`, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Payable"}, identifiers(tags))

	tags, err = g.NearMatchTags(ctx, "Order::", 2)
	require.NoError(t, err)
	assert.Len(t, tags, 2, "limit caps the result")
}

func TestNearMatchTags_Fuzzy(t *testing.T) {
	opts := DefaultQueryOptions()
	opts.FuzzyNearMatch = true
	opts.FuzzyThreshold = 0.8
	g, _ := indexedStore(t, opts)
	ctx := context.Background()

	tags, err := g.NearMatchTags(ctx, "Ordr", 0)
	require.NoError(t, err)
	require.NotEmpty(t, tags)
	assert.Equal(t, "Order", tags[0].Identifier)

	tags, err = g.NearMatchTags(ctx, "Order::getTotla", 0)
	require.NoError(t, err)
	require.NotEmpty(t, tags)
	assert.Equal(t, "getTotal", tags[0].Identifier)

	plain, _ := indexedStore(t, DefaultQueryOptions())
	tags, err = plain.NearMatchTags(ctx, "Ordr", 0)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestClassOrFile(t *testing.T) {
	g, project := indexedStore(t, DefaultQueryOptions())
	ctx := context.Background()

	tags, files, err := g.ExactClassOrFile(ctx, "Order.php")
	require.NoError(t, err)
	assert.Empty(t, tags)
	require.Len(t, files, 1)
	assert.Equal(t, project.Path("src/Order.php"), files[0].FullPath)
	assert.True(t, files[0].IsParsed)

	tags, files, err = g.ExactClassOrFile(ctx, "payable")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, types.FlavorInterface, tags[0].Flavor)
	assert.Empty(t, files)

	tags, files, err = g.NearMatchClassesOrFiles(ctx, "order", 0)
	require.NoError(t, err)
	assert.Empty(t, tags)
	require.Len(t, files, 1)
	assert.False(t, files[0].IsParsed, "misc files are recorded unparsed")
}

func TestMemberTagsAndRelations(t *testing.T) {
	g, _ := indexedStore(t, DefaultQueryOptions())
	ctx := context.Background()

	tags, err := g.MemberTags(ctx, []string{`Shop\Order`}, "", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"STATUS_OPEN", "total", "pay", "getItems", "getTotal"}, identifiers(tags))

	tags, err = g.MemberTags(ctx, []string{`\shop\specialorder`, `Shop\Order`}, "getT", false)
	require.NoError(t, err)
	require.Len(t, tags, 2)

	tags, err = g.MemberTags(ctx, []string{`Shop\Order`}, "PAY", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"pay"}, identifiers(tags))

	tags, err = g.MemberTags(ctx, nil, "pay", true)
	require.NoError(t, err)
	assert.Empty(t, tags)

	tags, err = g.MembersByName(ctx, "pay", true)
	require.NoError(t, err)
	assert.Len(t, tags, 2, "declared by the interface and the class")

	rels, err := g.ClassRelations(ctx, `shop\specialorder`)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, types.RelationExtends, rels[0].Kind)
	assert.Equal(t, `Shop\Order`, rels[0].RelatedName)

	rels, err = g.ClassRelations(ctx, `Shop\Order`)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, types.RelationImplements, rels[0].Kind)

	counts, err := g.TagCountsByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[types.TagKindClass])
	assert.Equal(t, 1, counts[types.TagKindFunction])
}

func TestOpenGlobal_NewerSchemaIsReadAsIs(t *testing.T) {
	dir := t.TempDir()
	g := openTestStore(t, dir)
	_, err := g.db.Exec("UPDATE schema_version SET version = ?", version.SchemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, g.Close())

	reopened := openTestStore(t, dir)
	var v int
	require.NoError(t, reopened.db.QueryRow("SELECT version FROM schema_version").Scan(&v))
	assert.Equal(t, version.SchemaVersion+1, v)
}
