package parser

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/types"
)

const newsSource = `<?php
class CI_Loader { function view() {} }
class News extends CI_Controller {
  private $load;
  function index() {
    $data = array('title' => 'Welcome to the News Page');
    $this->load->view('index', $data);
  }
}
`

const namespacedSource = `<?php
namespace App\Models;

use App\Support\Collection;
use Vendor\Lib\Logger as Log;

/**
 * A user account
 */
class User extends Model implements \JsonSerializable {
    use SoftDeletes;

    const TABLE = 'users';

    /** @var Collection */
    protected $posts;

    public static $count = 0;

    private Log $logger;

    /**
     * @return Collection
     */
    public function posts() {
        return $this->posts;
    }

    public function logger(): Log {
        return $this->logger;
    }

    public static function find(int $id, $withTrashed = false): ?self {
        return new static();
    }
}

function helper($x) {
    return $x;
}

define('APP_VERSION', '1.0');
`

func parse(t *testing.T, version types.PHPVersion, src string) *Result {
	t.Helper()
	p := New(version)
	t.Cleanup(p.Close)
	res, err := p.Parse(context.Background(), "/src/test.php", []byte(src))
	require.NoError(t, err)
	t.Cleanup(res.Close)
	return res
}

func findTag(tags []types.Tag, kind types.TagKind, identifier string) (types.Tag, bool) {
	for _, tag := range tags {
		if tag.Kind == kind && tag.Identifier == identifier {
			return tag, true
		}
	}
	return types.Tag{}, false
}

func TestParse_ExtractsTags(t *testing.T) {
	res := parse(t, types.PHPVersion54, newsSource)
	tags := res.Tags()

	loader, ok := findTag(tags, types.TagKindClass, "CI_Loader")
	require.True(t, ok)
	assert.Equal(t, "CI_Loader", loader.ClassName)
	assert.Equal(t, "/src/test.php", loader.FullPath)

	view, ok := findTag(tags, types.TagKindMethod, "view")
	require.True(t, ok)
	assert.Equal(t, "CI_Loader", view.ClassName)
	assert.Equal(t, "()", view.Signature)
	assert.Equal(t, types.VisibilityPublic, view.Visibility)

	load, ok := findTag(tags, types.TagKindMember, "load")
	require.True(t, ok)
	assert.Equal(t, "News", load.ClassName)
	assert.Equal(t, types.VisibilityPrivate, load.Visibility)
	assert.Empty(t, load.Type())

	rels := res.Relations()
	require.Len(t, rels, 1)
	assert.Equal(t, types.ClassRelation{
		ClassName: "News", RelatedName: "CI_Controller", Kind: types.RelationExtends, FullPath: "/src/test.php",
	}, rels[0])
}

func TestParse_QualifiesNames(t *testing.T) {
	res := parse(t, types.PHPVersion54, namespacedSource)
	tags := res.Tags()

	ns, ok := findTag(tags, types.TagKindNamespace, `App\Models`)
	require.True(t, ok)
	assert.Equal(t, `App\Models`, ns.FullyQualified())

	user, ok := findTag(tags, types.TagKindClass, "User")
	require.True(t, ok)
	assert.Equal(t, `App\Models\User`, user.ClassName)
	assert.Equal(t, `App\Models`, user.NamespaceName)
	assert.Contains(t, user.Comment, "A user account")

	posts, ok := findTag(tags, types.TagKindMember, "posts")
	require.True(t, ok)
	assert.Equal(t, `App\Support\Collection`, posts.PhpDocType)
	assert.Equal(t, types.VisibilityProtected, posts.Visibility)

	count, ok := findTag(tags, types.TagKindMember, "count")
	require.True(t, ok)
	assert.True(t, count.IsStatic)
	assert.Equal(t, "int", count.PhpDocType)

	logger, ok := findTag(tags, types.TagKindMember, "logger")
	require.True(t, ok)
	assert.Equal(t, `Vendor\Lib\Logger`, logger.PhpDocType)

	postsMethod, ok := findTag(tags, types.TagKindMethod, "posts")
	require.True(t, ok)
	assert.Equal(t, `App\Support\Collection`, postsMethod.Type())

	loggerMethod, ok := findTag(tags, types.TagKindMethod, "logger")
	require.True(t, ok)
	assert.Equal(t, `Vendor\Lib\Logger`, loggerMethod.ReturnType)

	find, ok := findTag(tags, types.TagKindMethod, "find")
	require.True(t, ok)
	assert.True(t, find.IsStatic)
	assert.Equal(t, `App\Models\User`, find.ReturnType)
	assert.Equal(t, "(int $id, $withTrashed = false)", find.Signature)
	assert.Equal(t, `App\Models\User::find`, find.FullyQualified())

	table, ok := findTag(tags, types.TagKindClassConstant, "TABLE")
	require.True(t, ok)
	assert.Equal(t, "string", table.PhpDocType)

	helper, ok := findTag(tags, types.TagKindFunction, "helper")
	require.True(t, ok)
	assert.Equal(t, `App\Models\helper`, helper.FullyQualified())

	version, ok := findTag(tags, types.TagKindDefine, "APP_VERSION")
	require.True(t, ok)
	assert.Equal(t, "APP_VERSION", version.FullyQualified())

	var related []string
	for _, r := range res.Relations() {
		related = append(related, r.RelatedName)
	}
	assert.ElementsMatch(t, []string{`App\Models\Model`, "JsonSerializable", `App\Models\SoftDeletes`}, related)
}

func TestParse_SyntaxError(t *testing.T) {
	p := New(types.PHPVersion54)
	defer p.Close()

	src := "<?php\nclass Broken {\n  function a() {\n    $x = ;\n  }\n}\n"
	res, err := p.Parse(context.Background(), "/src/broken.php", []byte(src))
	require.Error(t, err)
	assert.Nil(t, res)

	var perr *tagerrors.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "/src/broken.php", perr.FilePath)
	assert.GreaterOrEqual(t, perr.Line, 3)
	assert.Equal(t, tagerrors.CodeParse, tagerrors.CodeOf(err))
}

func TestParse_Dialects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"trait declaration", "<?php\ntrait Greets { function hi() {} }\n"},
		{"trait use", "<?php\nclass A { use Greets; }\n"},
		{"short array", "<?php\n$a = ['x' => 1];\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p53 := New(types.PHPVersion53)
			defer p53.Close()
			_, err := p53.Parse(context.Background(), "/src/d.php", []byte(tt.src))
			require.Error(t, err)
			assert.Equal(t, tagerrors.CodeParse, tagerrors.CodeOf(err))

			p54 := New(types.PHPVersion54)
			defer p54.Close()
			res, err := p54.Parse(context.Background(), "/src/d.php", []byte(tt.src))
			require.NoError(t, err)
			res.Close()
		})
	}
}

func TestParse_Cancelled(t *testing.T) {
	p := New(types.PHPVersion54)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Parse(ctx, "/src/a.php", []byte("<?php\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvents_NewsIndexScope(t *testing.T) {
	res := parse(t, types.PHPVersion54, newsSource)
	scope := types.Scope{ClassName: "News", MethodName: "index"}

	events := slices.Collect(ScopeEvents(res.Events(), scope))
	require.Len(t, events, 4)

	assert.Equal(t, EventMethod, events[0].Kind)
	assert.Equal(t, "index", events[0].Tag.Identifier)

	assign := events[1]
	assert.Equal(t, EventAssignment, assign.Kind)
	assert.Equal(t, "$data", assign.Name)
	assert.Equal(t, types.ExprArray, assign.Expr.Kind)
	assert.Equal(t, []string{"title"}, assign.Expr.ArrayKeys)

	call := events[2]
	assert.Equal(t, EventExpression, call.Kind)
	assert.Equal(t, types.ExprVariable, call.Expr.Kind)
	assert.Equal(t, "$this", call.Expr.Variable)
	require.Len(t, call.Expr.Chain, 2)
	assert.Equal(t, types.ChainItem{Name: "load"}, call.Expr.Chain[0])
	view := call.Expr.Chain[1]
	assert.Equal(t, "view", view.Name)
	assert.True(t, view.IsMethod)
	require.Len(t, view.Args, 2)
	assert.Equal(t, types.Expression{Kind: types.ExprScalar, Value: "index"}, view.Args[0])
	assert.Equal(t, types.Expression{Kind: types.ExprVariable, Variable: "$data"}, view.Args[1])

	assert.Equal(t, EventScopeEnd, events[3].Kind)
}

func TestEvents_StopEarly(t *testing.T) {
	res := parse(t, types.PHPVersion54, namespacedSource)

	count := 0
	for range res.Events() {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestEvents_AssignmentsAndParameters(t *testing.T) {
	src := `<?php
namespace Shop;

use Shop\Domain\Cart as ShoppingCart;

class Checkout {
    public function run(ShoppingCart $cart, $qty = 1) {
        $order = new Order($cart);
        $items['first'] = $cart->first();
        $items[] = 'x';
        /** @var \Shop\Domain\Price $price */
        $price = $order->total();
        $same = $copy = $price;
        self::log('done');
        return $order;
    }
}
`
	res := parse(t, types.PHPVersion54, src)
	events := slices.Collect(ScopeEvents(res.Events(), types.Scope{NamespaceName: "Shop", ClassName: `Shop\Checkout`, MethodName: "run"}))

	var params, assigns []Event
	var ret *Event
	var exprs []Event
	for i, ev := range events {
		switch ev.Kind {
		case EventParameter:
			params = append(params, ev)
		case EventAssignment:
			assigns = append(assigns, ev)
		case EventReturn:
			ret = &events[i]
		case EventExpression:
			exprs = append(exprs, ev)
		}
	}

	require.Len(t, params, 2)
	assert.Equal(t, "$cart", params[0].Name)
	assert.Equal(t, `Shop\Domain\Cart`, params[0].TypeHint)
	assert.Equal(t, "$qty", params[1].Name)
	assert.Equal(t, types.Expression{Kind: types.ExprScalar, Value: "1"}, params[1].Expr)

	require.Len(t, assigns, 6)
	assert.Equal(t, "$order", assigns[0].Name)
	assert.Equal(t, types.ExprNew, assigns[0].Expr.Kind)
	assert.Equal(t, `\Shop\Order`, assigns[0].Expr.ClassName)

	assert.Equal(t, "$items", assigns[1].Name)
	assert.True(t, assigns[1].ArrayWrite)
	assert.Equal(t, "first", assigns[1].Key)

	assert.True(t, assigns[2].ArrayWrite)
	assert.Empty(t, assigns[2].Key)

	assert.Equal(t, "$price", assigns[3].Name)
	assert.Equal(t, `Shop\Domain\Price`, assigns[3].DocType)

	// $same = $copy = $price assigns $copy first
	assert.Equal(t, "$copy", assigns[4].Name)
	assert.Equal(t, "$same", assigns[5].Name)
	assert.Equal(t, "$copy", assigns[5].Expr.Variable)

	require.Len(t, exprs, 1)
	assert.Equal(t, types.ExprStatic, exprs[0].Expr.Kind)
	assert.Equal(t, "self", exprs[0].Expr.ClassName)
	require.Len(t, exprs[0].Expr.Chain, 1)
	assert.True(t, exprs[0].Expr.Chain[0].IsStatic)
	assert.True(t, exprs[0].Expr.Chain[0].IsMethod)

	require.NotNil(t, ret)
	assert.Equal(t, "$order", ret.Expr.Variable)
}

func TestEvents_ControlFlowHeaders(t *testing.T) {
	src := `<?php
function run($items) {
    if ($user = current_user()) {
        $a = 1;
    } elseif (is_admin()) {
    }
    while (next_row() && !$done) {}
    do {} while (retry());
    for ($i = 0; $i < limit(); $i++) {}
    switch (mode()) {
        case default_mode():
            break;
    }
    /** @var Order $order */
    foreach (load_orders() as $id => $order) {}
    foreach ($items as &$item) {}
    echo label(), $a;
    global $db;
    static $cache = array();
}
`
	res := parse(t, types.PHPVersion54, src)
	events := slices.Collect(ScopeEvents(res.Events(), types.Scope{MethodName: "run"}))

	var calls, assigned []string
	bindings := make(map[string]Event)
	for _, ev := range events {
		switch ev.Kind {
		case EventExpression:
			calls = append(calls, ev.Expr.Function)
		case EventAssignment:
			assigned = append(assigned, ev.Name)
			bindings[ev.Name] = ev
			if ev.Expr.Kind == types.ExprFunctionCall {
				calls = append(calls, ev.Expr.Function)
			}
		}
	}

	assert.Equal(t, []string{"current_user", "is_admin", "next_row", "retry", "limit",
		"mode", "default_mode", "load_orders", "label"}, calls)
	assert.Equal(t, []string{"$user", "$a", "$i", "$id", "$order", "$item", "$db", "$cache"}, assigned)

	assert.Equal(t, "Order", bindings["$order"].DocType)
	assert.Empty(t, bindings["$id"].DocType)
	assert.Equal(t, types.ExprUnknown, bindings["$item"].Expr.Kind)
	assert.Equal(t, types.ExprArray, bindings["$cache"].Expr.Kind)
}

func TestExtractImports(t *testing.T) {
	res := parse(t, types.PHPVersion54, namespacedSource)
	im := ExtractImports(res.Events())

	assert.Equal(t, `App\Models`, im.Namespace)
	assert.Equal(t, `App\Support\Collection`, im.Qualify("Collection"))
	assert.Equal(t, `Vendor\Lib\Logger`, im.Qualify("Log"))
	assert.Equal(t, `App\Models\Post`, im.Qualify("Post"))
}

func TestResolveVersion_Explicit(t *testing.T) {
	assert.Equal(t, types.PHPVersion53, ResolveVersion(context.Background(), types.PHPVersion53, "php"))
	assert.Equal(t, types.PHPVersion54, ResolveVersion(context.Background(), types.PHPVersionAuto, "/nonexistent/php-binary"))
}
