package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/version"
	"github.com/standardbeagle/phptags/testhelpers"
)

func setupTestProject(t *testing.T) *testhelpers.PHPProject {
	t.Helper()
	return testhelpers.WritePHPProject(t, map[string]string{
		"Model.php": "<?php\nclass Model {\n  function save() {}\n}\n",
		"Order.php": "<?php\nclass Order extends Model {\n  private $items;\n  function total() {}\n}\n",
		"News.php":  testhelpers.NewsController,
		"README.md": "# shop",
	})
}

// runCLI runs the app in process and returns everything it printed
func runCLI(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"phptags", "--root", root, "--php", "5.4"}, args...)
	err := newApp(&out).RunContext(context.Background(), full)
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestIndexCommand(t *testing.T) {
	project := setupTestProject(t)

	out, err := runCLI(t, project.Root, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "3 parsed")

	out, err = runCLI(t, project.Root, "--json", "index")
	require.NoError(t, err)
	var reports []ProjectReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Zero(t, reports[0].Parsed)
	assert.Equal(t, 3, reports[0].Unchanged)
	assert.Equal(t, project.Path(".phptags.db"), reports[0].Store)
}

func TestIndexCommand_SeveralRoots(t *testing.T) {
	shop := setupTestProject(t)
	blog := testhelpers.WritePHPProject(t, map[string]string{"Post.php": "<?php class Post {}"})

	var out bytes.Buffer
	err := newApp(&out).Run([]string{"phptags", "--php", "5.4", "--json", "index", "-p", "2", shop.Root, blog.Root})
	require.NoError(t, err)

	var reports []ProjectReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, 3, reports[0].Parsed)
	assert.Equal(t, 1, reports[1].Parsed)
}

func TestFindCommand(t *testing.T) {
	project := setupTestProject(t)

	out, err := runCLI(t, project.Root, "find", "Order")
	require.NoError(t, err)
	assert.Contains(t, out, "Order.php:2")

	out, err = runCLI(t, project.Root, "find", "--prefix", "Mod")
	require.NoError(t, err)
	assert.Contains(t, out, "Model")

	out, err = runCLI(t, project.Root, "find", "Missing")
	require.NoError(t, err)
	assert.Contains(t, out, "No tags found")

	_, err = runCLI(t, project.Root, "find")
	assert.Error(t, err)
}

func TestMembersCommand(t *testing.T) {
	project := setupTestProject(t)

	out, err := runCLI(t, project.Root, "--json", "members", "Order")
	require.NoError(t, err)

	var reports []TagReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	var names []string
	for _, r := range reports {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "Order::total")
	assert.Contains(t, names, "Model::save", "inherited members are listed")
}

func TestCompleteCommand(t *testing.T) {
	project := setupTestProject(t)

	out, err := runCLI(t, project.Root, "complete", "--file", "Order.php", "Ord")
	require.NoError(t, err)
	assert.Contains(t, out, "Order")
}

func TestTraceCommand(t *testing.T) {
	project := setupTestProject(t)

	out, err := runCLI(t, project.Root, "trace", "--save", "News.php", "News::index")
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN_METHOD(News,index)")
	assert.Contains(t, out, "unresolved:")
	assert.Contains(t, out, "saved as ")

	out, err = runCLI(t, project.Root, "trace", "--yaml", "News.php", "News::index")
	require.NoError(t, err)
	assert.Contains(t, out, "method: index")

	out, err = runCLI(t, project.Root, "--json", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"call_stacks": 1`)

	t.Run("missing method", func(t *testing.T) {
		_, err := runCLI(t, project.Root, "trace", "News.php", "News::archive")
		assert.Equal(t, tagerrors.CodeResourceNotFound, tagerrors.CodeOf(err))
	})

	t.Run("step ceiling", func(t *testing.T) {
		_, err := runCLI(t, project.Root, "trace", "--max-records", "2", "News.php", "News::index")
		assert.Equal(t, tagerrors.CodeStackLimit, tagerrors.CodeOf(err))
	})
}

func TestStatsCommand(t *testing.T) {
	project := setupTestProject(t)

	out, err := runCLI(t, project.Root, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "TAG INDEX REPORT")
}

func TestSplitTarget(t *testing.T) {
	class, method := splitTarget("News::index")
	assert.Equal(t, "News", class)
	assert.Equal(t, "index", method)

	class, method = splitTarget("format_total")
	assert.Empty(t, class)
	assert.Equal(t, "format_total", method)
}
