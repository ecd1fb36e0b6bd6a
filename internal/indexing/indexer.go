package indexing

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/phptags/internal/config"
	"github.com/standardbeagle/phptags/internal/debug"
	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/store"
)

// Stats counts the outcomes of an indexing run
type Stats struct {
	Parsed      int
	Unchanged   int
	Misc        int
	Ignored     int
	ParseFailed int
	Failed      int
	Pruned      int
	Tags        int
	Duration    time.Duration
}

// Files returns how many files the run visited
func (s Stats) Files() int {
	return s.Parsed + s.Unchanged + s.Misc + s.Ignored + s.ParseFailed + s.Failed
}

func (s *Stats) add(r store.WalkResult) {
	switch r.Status {
	case store.WalkParsed:
		s.Parsed++
		s.Tags += r.Tags
	case store.WalkUnchanged:
		s.Unchanged++
	case store.WalkMisc:
		s.Misc++
	case store.WalkIgnored:
		s.Ignored++
	case store.WalkParseFailed:
		s.ParseFailed++
	case store.WalkFailed:
		s.Failed++
	}
}

// ProjectIndexer walks one project into its global store, one file per
// Step, so a scheduler can interleave indexing with other work
type ProjectIndexer struct {
	store  *store.GlobalStore
	cursor store.Cursor
	stats  Stats
	errs   []error

	// OnFile, when set, is called after every walked file
	OnFile func(store.WalkResult)
}

// NewProjectIndexer creates an indexer feeding cursor's files into g
func NewProjectIndexer(g *store.GlobalStore, cursor store.Cursor) *ProjectIndexer {
	return &ProjectIndexer{store: g, cursor: cursor}
}

// Step indexes the next file. more is false once the cursor is exhausted
// or ctx is done.
func (p *ProjectIndexer) Step(ctx context.Context) (store.WalkResult, bool) {
	res, more := p.store.Walk(ctx, p.cursor)
	if res.Status == store.WalkDone || res.Status == store.WalkCancelled {
		return res, more
	}
	p.stats.add(res)
	if res.Err != nil {
		debug.LogIndexing("%s %s: %v\n", res.Status, res.Path, res.Err)
		p.errs = append(p.errs, res.Err)
	}
	if p.OnFile != nil {
		p.OnFile(res)
	}
	return res, more
}

// Stats returns the counts so far
func (p *ProjectIndexer) Stats() Stats {
	return p.stats
}

// Errors returns the per-file failures so far. A failed file never stops
// the walk.
func (p *ProjectIndexer) Errors() []error {
	return append([]error(nil), p.errs...)
}

// Run steps until the cursor is exhausted, then drops records of files
// that disappeared. Cancellation is polled between files; files committed
// before it stay indexed.
func (p *ProjectIndexer) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	for {
		res, more := p.Step(ctx)
		if res.Status == store.WalkCancelled {
			p.stats.Duration = time.Since(start)
			return p.stats, tagerrors.NewStoreError("walk", p.cursor.Root(), res.Err)
		}
		if !more {
			break
		}
	}
	pruned, err := p.store.Prune(ctx)
	p.stats.Pruned = pruned
	p.stats.Duration = time.Since(start)
	if err != nil {
		return p.stats, err
	}
	debug.LogIndexing("indexed %s: %d parsed, %d unchanged, %d failed, %d pruned in %v\n",
		p.cursor.Root(), p.stats.Parsed, p.stats.Unchanged, p.stats.ParseFailed+p.stats.Failed, pruned, p.stats.Duration)
	return p.stats, nil
}

// OpenProjectStore opens the global store a project config points at,
// detecting the dialect when the config asks for "auto"
func OpenProjectStore(ctx context.Context, cfg *config.Config) (*store.GlobalStore, error) {
	version := parser.ResolveVersion(ctx, cfg.PHPVersion(), cfg.Index.PHPBinary)
	return store.OpenGlobal(ctx, store.OpenOptionsFromConfig(cfg, version))
}

// ProjectResult is the outcome of indexing one project
type ProjectResult struct {
	Config *config.Config
	Store  *store.GlobalStore
	Stats  Stats
	Errors []error
}

// IndexProjects indexes independent projects in parallel, each into its
// own store. On success the caller owns the returned stores, typically
// registering them with a cache. On failure every opened store is closed.
func IndexProjects(ctx context.Context, cfgs []*config.Config, parallelism int) ([]ProjectResult, error) {
	results := make([]ProjectResult, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, cfg := range cfgs {
		results[i].Config = cfg
		g.Go(func() error {
			st, err := OpenProjectStore(gctx, cfg)
			if err != nil {
				return err
			}
			results[i].Store = st

			cursor := NewDirectoryCursor(cfg.Project.Root, CursorOptionsFromConfig(cfg))
			indexer := NewProjectIndexer(st, cursor)
			stats, err := indexer.Run(gctx)
			results[i].Stats = stats
			results[i].Errors = indexer.Errors()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		for _, r := range results {
			if r.Store != nil {
				r.Store.Close()
			}
		}
		return nil, err
	}
	return results, nil
}
