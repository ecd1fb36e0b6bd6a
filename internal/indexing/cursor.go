package indexing

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/standardbeagle/phptags/internal/config"
	"github.com/standardbeagle/phptags/internal/debug"
)

// CursorOptions filters the files a DirectoryCursor yields. Patterns are
// doublestar globs matched against slash-separated paths relative to the
// root.
type CursorOptions struct {
	Include          []string // empty includes everything
	Exclude          []string
	RespectGitignore bool
	MaxFileSize      int64 // 0 means no limit
}

// CursorOptionsFromConfig maps the filters of a project config
func CursorOptionsFromConfig(cfg *config.Config) CursorOptions {
	return CursorOptions{
		Include:          cfg.Include,
		Exclude:          cfg.Exclude,
		RespectGitignore: cfg.Index.RespectGitignore,
		MaxFileSize:      cfg.Index.MaxFileSize,
	}
}

// DirectoryCursor enumerates the files under a root one at a time. A
// directory is read only when the cursor reaches it, so a walk that stops
// early never lists the rest of the tree. Reset restarts from the root.
type DirectoryCursor struct {
	root      string
	opts      CursorOptions
	gitignore *ignore.GitIgnore

	pending []string // directories still to read, popped from the end
	files   []string // files of the current directory, in order
	visited map[string]bool
}

// NewDirectoryCursor creates a cursor over root
func NewDirectoryCursor(root string, opts CursorOptions) *DirectoryCursor {
	c := &DirectoryCursor{root: filepath.Clean(root), opts: opts}
	if opts.RespectGitignore {
		if gi, err := ignore.CompileIgnoreFile(filepath.Join(c.root, ".gitignore")); err == nil {
			c.gitignore = gi
		}
	}
	c.Reset()
	return c
}

// Root returns the directory the cursor enumerates
func (c *DirectoryCursor) Root() string {
	return c.root
}

// Reset restarts the enumeration from the root
func (c *DirectoryCursor) Reset() {
	c.pending = []string{c.root}
	c.files = nil
	c.visited = make(map[string]bool)
}

// Next returns the next file path, or false once the tree is exhausted
func (c *DirectoryCursor) Next() (string, bool) {
	for {
		if len(c.files) > 0 {
			path := c.files[0]
			c.files = c.files[1:]
			return path, true
		}
		if len(c.pending) == 0 {
			return "", false
		}
		dir := c.pending[len(c.pending)-1]
		c.pending = c.pending[:len(c.pending)-1]
		c.readDir(dir)
	}
}

// readDir queues the subdirectories of dir and collects its files
func (c *DirectoryCursor) readDir(dir string) {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		debug.LogIndexing("skipping unresolvable directory %s: %v\n", dir, err)
		return
	}
	if c.visited[real] {
		debug.LogIndexing("cycle detected, skipping %s -> %s\n", dir, real)
		return
	}
	c.visited[real] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		debug.LogIndexing("cannot read %s: %v\n", dir, err)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var subdirs []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)

		isDir := e.IsDir()
		if e.Type()&os.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			isDir = info.IsDir()
		}

		if isDir {
			if c.excluded(rel) || c.excluded(rel+"/") || c.ignored(rel+"/") {
				continue
			}
			subdirs = append(subdirs, path)
			continue
		}
		if c.excluded(rel) || !c.included(rel) || c.ignored(rel) || c.tooLarge(e) {
			continue
		}
		c.files = append(c.files, path)
	}
	// pending is a stack: push in reverse so the first subdirectory is read next
	for i := len(subdirs) - 1; i >= 0; i-- {
		c.pending = append(c.pending, subdirs[i])
	}
}

func (c *DirectoryCursor) excluded(rel string) bool {
	for _, pattern := range c.opts.Exclude {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

func (c *DirectoryCursor) included(rel string) bool {
	if len(c.opts.Include) == 0 {
		return true
	}
	for _, pattern := range c.opts.Include {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

func (c *DirectoryCursor) ignored(rel string) bool {
	return c.gitignore != nil && c.gitignore.MatchesPath(rel)
}

func (c *DirectoryCursor) tooLarge(e os.DirEntry) bool {
	if c.opts.MaxFileSize <= 0 {
		return false
	}
	info, err := e.Info()
	return err == nil && info.Size() > c.opts.MaxFileSize
}
