// Package cache aggregates global and working tag stores into one logical
// index and resolves PHP expressions against it.
package cache

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/standardbeagle/phptags/internal/config"
	"github.com/standardbeagle/phptags/internal/debug"
	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/store"
	"github.com/standardbeagle/phptags/internal/types"
)

// Status is the freshness of the cache
type Status uint8

const (
	// StatusStale means no index has completed since creation or the last wipe
	StatusStale Status = iota
	// StatusOK means at least one index or build completed
	StatusOK
)

func (s Status) String() string {
	if s == StatusOK {
		return "OK"
	}
	return "STALE"
}

// Options tunes resolution
type Options struct {
	// IncludeNative keeps engine-provided tags in completion results
	IncludeNative bool
	// InferenceDepth bounds how many assignments are followed to type a variable
	InferenceDepth int
	// MaxResults caps near-match results per store
	MaxResults int
	// MaxLookupEntries bounds the memoized inheritance walks
	MaxLookupEntries int
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		InferenceDepth:   config.DefaultInferenceDepth,
		MaxResults:       config.DefaultMaxResults,
		MaxLookupEntries: DefaultMaxRelationEntries,
	}
}

// OptionsFromConfig maps the resolution section of a project config
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.IncludeNative = cfg.Resolution.IncludeNative
	if cfg.Resolution.InferenceDepth > 0 {
		opts.InferenceDepth = cfg.Resolution.InferenceDepth
	}
	if cfg.Resolution.MaxResults > 0 {
		opts.MaxResults = cfg.Resolution.MaxResults
	}
	return opts
}

type workingEntry struct {
	id    string
	store *store.WorkingStore
}

// Cache is the fan-in query layer over N global stores and M working
// stores. It is not safe for concurrent use: confine each Cache to one
// owner and open further instances on the same store path (read-only)
// for additional readers.
type Cache struct {
	opts     Options
	status   Status
	globals  []*store.GlobalStore
	workings []workingEntry

	lookups    *relationCache
	generation uint64
	seen       map[string]int // working id -> Updates() at the last generation check
}

// New creates an empty cache in the STALE state
func New(opts Options) *Cache {
	if opts.InferenceDepth <= 0 {
		opts.InferenceDepth = config.DefaultInferenceDepth
	}
	return &Cache{
		opts:    opts,
		lookups: newRelationCache(opts.MaxLookupEntries),
		seen:    make(map[string]int),
	}
}

// Status returns the freshness state
func (c *Cache) Status() Status {
	return c.status
}

// MarkIndexed records a completed index or build
func (c *Cache) MarkIndexed() {
	c.status = StatusOK
	c.invalidate()
}

// MarkStale records that project sources changed since the last index
func (c *Cache) MarkStale() {
	c.status = StatusStale
	c.invalidate()
}

// Wipe empties every writable global store and returns the cache to STALE.
// Read-only stores are skipped and reported in the returned error.
func (c *Cache) Wipe(ctx context.Context) error {
	var errs []error
	for _, g := range c.globals {
		if g.Options().ReadOnly {
			errs = append(errs, tagerrors.NewStoreError("wipe", g.Path(), errors.New("store is read-only")))
			continue
		}
		if err := g.Wipe(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.MarkStale()
	return tagerrors.NewMultiError(errs).ErrorOrNil()
}

// LookupStats reports memoization of inheritance walks
func (c *Cache) LookupStats() LookupStats {
	return c.lookups.Stats()
}

func (c *Cache) invalidate() {
	c.generation++
}

// currentGeneration folds working store reparses into the generation so
// memoized ancestry never outlives the tags it was computed from
func (c *Cache) currentGeneration() uint64 {
	changed := len(c.seen) != len(c.workings)
	for _, w := range c.workings {
		if n, ok := c.seen[w.id]; !ok || n != w.store.Updates() {
			changed = true
			break
		}
	}
	if changed {
		clear(c.seen)
		for _, w := range c.workings {
			c.seen[w.id] = w.store.Updates()
		}
		c.generation++
	}
	return c.generation
}

func storeKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}

// RegisterGlobal adds g to the fan-in set. It returns false, leaving g
// with the caller, when a store with the same backing path is registered.
func (c *Cache) RegisterGlobal(g *store.GlobalStore) bool {
	if g == nil || c.IsInitGlobal(g.Path()) {
		return false
	}
	c.globals = append(c.globals, g)
	c.invalidate()
	debug.LogCache("registered global store %s\n", g.Path())
	return true
}

// IsInitGlobal reports whether a global store backed by path is registered
func (c *Cache) IsInitGlobal(path string) bool {
	return c.globalIndex(path) >= 0
}

func (c *Cache) globalIndex(path string) int {
	key := storeKey(path)
	for i, g := range c.globals {
		if storeKey(g.Path()) == key {
			return i
		}
	}
	return -1
}

// RemoveGlobal closes and removes the store backed by path
func (c *Cache) RemoveGlobal(path string) bool {
	i := c.globalIndex(path)
	if i < 0 {
		return false
	}
	g := c.globals[i]
	c.globals = append(c.globals[:i], c.globals[i+1:]...)
	if err := g.Close(); err != nil {
		debug.Warn("closing global store %s: %v\n", path, err)
	}
	c.invalidate()
	return true
}

// Globals returns the registered global stores in registration order
func (c *Cache) Globals() []*store.GlobalStore {
	return append([]*store.GlobalStore(nil), c.globals...)
}

// RegisterWorking adds ws as the overlay of fileID. When fileID is empty
// or already registered the cache does not take ws: it is handed back as
// orphan and the caller stays responsible for closing it.
func (c *Cache) RegisterWorking(fileID string, ws *store.WorkingStore) (orphan *store.WorkingStore, ok bool) {
	if fileID == "" || ws == nil {
		return ws, false
	}
	if _, exists := c.Working(fileID); exists {
		return ws, false
	}
	c.workings = append(c.workings, workingEntry{id: fileID, store: ws})
	c.invalidate()
	debug.LogCache("registered working store %s (%s)\n", fileID, ws.Path())
	return nil, true
}

// ReplaceWorking takes ownership of ws unconditionally, closing any store
// previously registered for fileID
func (c *Cache) ReplaceWorking(fileID string, ws *store.WorkingStore) {
	if fileID == "" || ws == nil {
		return
	}
	for i, w := range c.workings {
		if w.id != fileID {
			continue
		}
		if w.store != ws {
			w.store.Close()
		}
		c.workings[i].store = ws
		c.invalidate()
		return
	}
	c.workings = append(c.workings, workingEntry{id: fileID, store: ws})
	c.invalidate()
}

// RemoveWorking closes and removes the overlay of fileID
func (c *Cache) RemoveWorking(fileID string) bool {
	for i, w := range c.workings {
		if w.id != fileID {
			continue
		}
		c.workings = append(c.workings[:i], c.workings[i+1:]...)
		w.store.Close()
		delete(c.seen, fileID)
		c.invalidate()
		return true
	}
	return false
}

// Working returns the overlay registered for fileID
func (c *Cache) Working(fileID string) (*store.WorkingStore, bool) {
	for _, w := range c.workings {
		if w.id == fileID {
			return w.store, true
		}
	}
	return nil, false
}

// WorkingIDs returns the registered overlay ids in registration order
func (c *Cache) WorkingIDs() []string {
	ids := make([]string, len(c.workings))
	for i, w := range c.workings {
		ids[i] = w.id
	}
	return ids
}

// NewBufferID mints an id for a buffer that has no file yet
func NewBufferID() string {
	return store.BufferPrefix + uuid.NewString()
}

// Close closes every registered store
func (c *Cache) Close() error {
	var errs []error
	for _, w := range c.workings {
		if err := w.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, g := range c.globals {
		if err := g.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.workings = nil
	c.globals = nil
	return tagerrors.NewMultiError(errs).ErrorOrNil()
}

// IsResourceCacheEmpty reports whether no store is registered or every
// registered store holds zero tags
func (c *Cache) IsResourceCacheEmpty(ctx context.Context) bool {
	for _, q := range c.stores() {
		n, err := q.TagCount(ctx)
		if err != nil {
			debug.Warn("counting tags of %s: %v\n", q.Path(), err)
			continue
		}
		if n > 0 {
			return false
		}
	}
	return true
}

// Locate finds tag's declaration in the current text of its file
func (c *Cache) Locate(tag types.Tag, text string) (parser.Location, bool) {
	return parser.Locate(tag, text)
}
