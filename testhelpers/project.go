package testhelpers

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

// NewsController is the CodeIgniter controller used by call trace tests
const NewsController = `<?php
class CI_Loader { function view() {} }
class News extends CI_Controller {
  private $load;
  function index() {
    $data = array('title' => 'Welcome to the News Page');
    $this->load->view('index', $data);
  }
}
`

// PHPProject is a fixture project on disk, removed when the test ends
type PHPProject struct {
	t     testing.TB
	Root  string
	files []string
}

// NewPHPProject creates an empty project under t.TempDir
func NewPHPProject(t testing.TB) *PHPProject {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("failed to resolve temp dir: %v", err)
	}
	return &PHPProject{t: t, Root: root}
}

// WritePHPProject creates a project holding files (relative path -> content)
func WritePHPProject(t testing.TB, files map[string]string) *PHPProject {
	t.Helper()
	p := NewPHPProject(t)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.AddFile(name, files[name])
	}
	return p
}

// AddFile writes content to rel, creating directories, and returns the absolute path
func (p *PHPProject) AddFile(rel, content string) string {
	p.t.Helper()
	path := p.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		p.t.Fatalf("failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		p.t.Fatalf("failed to write %s: %v", rel, err)
	}
	p.files = append(p.files, path)
	return path
}

// Touch sets the modification time of rel without changing its content
func (p *PHPProject) Touch(rel string, mtime time.Time) {
	p.t.Helper()
	if err := os.Chtimes(p.Path(rel), mtime, mtime); err != nil {
		p.t.Fatalf("failed to touch %s: %v", rel, err)
	}
}

// Remove deletes rel from disk
func (p *PHPProject) Remove(rel string) {
	p.t.Helper()
	if err := os.Remove(p.Path(rel)); err != nil {
		p.t.Fatalf("failed to remove %s: %v", rel, err)
	}
}

// Path returns the absolute path of rel
func (p *PHPProject) Path(rel string) string {
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// Files returns the absolute paths written so far, in write order
func (p *PHPProject) Files() []string {
	return append([]string(nil), p.files...)
}

// Cursor returns a cursor over the files written so far
func (p *PHPProject) Cursor() *SliceCursor {
	return NewSliceCursor(p.Root, p.Files()...)
}

// SliceCursor enumerates a fixed list of paths
type SliceCursor struct {
	root  string
	paths []string
	pos   int
}

// NewSliceCursor returns a cursor over paths belonging to root
func NewSliceCursor(root string, paths ...string) *SliceCursor {
	return &SliceCursor{root: root, paths: paths}
}

// Root returns the directory the paths belong to
func (c *SliceCursor) Root() string {
	return c.root
}

// Next returns the next path
func (c *SliceCursor) Next() (string, bool) {
	if c.pos >= len(c.paths) {
		return "", false
	}
	c.pos++
	return c.paths[c.pos-1], true
}

// Reset restarts the enumeration
func (c *SliceCursor) Reset() {
	c.pos = 0
}
