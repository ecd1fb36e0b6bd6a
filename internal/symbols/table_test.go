package symbols

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/types"
)

func build(t *testing.T, src string) *Table {
	t.Helper()
	p := parser.New(types.PHPVersion54)
	t.Cleanup(p.Close)
	res, err := p.Parse(context.Background(), "/src/test.php", []byte(src))
	require.NoError(t, err)
	t.Cleanup(res.Close)
	return Build(res.Events())
}

func TestBuild_ScopeIsolation(t *testing.T) {
	table := build(t, `<?php
function a() {
    $user = new User();
    $shared = 1;
}

function b() {
    $shared = 'text';
    return $user;
}
`)

	a := types.Scope{MethodName: "a"}
	b := types.Scope{MethodName: "b"}

	user, ok := table.Lookup(a, "$user")
	require.True(t, ok)
	assert.Equal(t, types.ExprNew, user.Source.Kind)
	assert.Equal(t, `\User`, user.Source.ClassName)

	_, ok = table.Lookup(b, "$user")
	assert.False(t, ok, "b never assigns $user")

	sharedA, ok := table.Lookup(a, "$shared")
	require.True(t, ok)
	assert.Equal(t, "1", sharedA.Source.Value)

	sharedB, ok := table.Lookup(b, "$shared")
	require.True(t, ok)
	assert.Equal(t, "text", sharedB.Source.Value)

	st, ok := table.Scope(b)
	require.True(t, ok)
	require.Len(t, st.Returns, 1)
	assert.Equal(t, "$user", st.Returns[0].Variable)

	_, ok = table.Lookup(types.Scope{MethodName: "missing"}, "$user")
	assert.False(t, ok)
}

func TestBuild_ArrayKeysAreRecordedOnce(t *testing.T) {
	table := build(t, `<?php
function collect($rows) {
    $out = array('total' => 0);
    foreach ($rows as $row) {
        $out['name'] = $row;
        $out['name'] = $row;
        $out['total'] = 1;
    }
    $fresh['id'] = 3;
}
`)
	scope := types.Scope{MethodName: "collect"}

	out, ok := table.Lookup(scope, "$out")
	require.True(t, ok)
	assert.Equal(t, []string{"total", "name"}, out.ArrayKeys)
	assert.Equal(t, types.ExprArray, out.Source.Kind)

	fresh, ok := table.Lookup(scope, "$fresh")
	require.True(t, ok)
	assert.Equal(t, types.ExprArray, fresh.Source.Kind)
	assert.Equal(t, []string{"id"}, fresh.ArrayKeys)

	rows, ok := table.Lookup(scope, "$rows")
	require.True(t, ok)
	assert.True(t, rows.IsParameter)
}

func TestBuild_ParametersDocTypesAndImports(t *testing.T) {
	table := build(t, `<?php
namespace Shop;

use Shop\Domain\Cart;

class Checkout {
    public function run(Cart $cart) {
        /** @var Invoice $invoice */
        $invoice = $this->makeInvoice();
        $invoice = null;
        $this->total = 3;
    }
}
`)
	scope := types.Scope{NamespaceName: "Shop", ClassName: `Shop\Checkout`, MethodName: "run"}

	cart, ok := table.Lookup(scope, "$cart")
	require.True(t, ok)
	assert.Equal(t, `Shop\Domain\Cart`, cart.TypeHint)

	invoice, ok := table.Lookup(scope, "$invoice")
	require.True(t, ok)
	assert.Equal(t, `Shop\Invoice`, invoice.DocType)
	assert.Equal(t, "null", invoice.Source.Value)
	require.Len(t, invoice.Sources(), 2)
	assert.Equal(t, "$this", invoice.Sources()[1].Variable)

	_, ok = table.Lookup(scope, "$this")
	assert.False(t, ok, "property writes are not local variables")

	imports := table.Imports("Shop")
	assert.Equal(t, "Shop", imports.Namespace)
	assert.Equal(t, `Shop\Domain\Cart`, imports.Qualify("Cart"))
}

func TestBuild_ImportsPerNamespaceBlock(t *testing.T) {
	table := build(t, `<?php
namespace Shop {
    use Shop\Domain\Cart;
    function a() {}
}
namespace Blog {
    use Blog\Model\Post as Entry;
    function b() {}
}
namespace {
    use Vendor\Logger;
}
`)

	shop := table.Imports("Shop")
	assert.Equal(t, "Shop", shop.Namespace)
	assert.Equal(t, `Shop\Domain\Cart`, shop.Qualify("Cart"))
	assert.Equal(t, `Shop\Entry`, shop.Qualify("Entry"), "aliases stay in their block")

	blog := table.Imports(`\Blog`)
	assert.Equal(t, `Blog\Model\Post`, blog.Qualify("Entry"))
	assert.Equal(t, `Blog\Cart`, blog.Qualify("Cart"))

	assert.Equal(t, `Vendor\Logger`, table.Imports("").Qualify("Logger"))

	other := table.Imports("Admin")
	assert.Equal(t, "Admin", other.Namespace)
	assert.Equal(t, `Admin\Cart`, other.Qualify("Cart"))
}

func TestVariables(t *testing.T) {
	table := build(t, `<?php
$name = 'a';
$number = 2;
$other = 3;
function f() { $nothing = 1; }
`)
	global := types.Scope{}

	assert.Equal(t, []string{"$name", "$number"}, table.Variables(global, "$n"))
	assert.Equal(t, []string{"$name", "$number"}, table.Variables(global, "n"))
	assert.Equal(t, []string{"$name", "$number", "$other"}, table.Variables(global, ""))
	assert.Nil(t, table.Variables(types.Scope{MethodName: "g"}, ""))
	assert.Equal(t, 4, table.Len())
	assert.Len(t, table.Scopes(), 2)
}
