package indexing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/phptags/internal/cache"
	"github.com/standardbeagle/phptags/internal/debug"
	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/store"
	"github.com/standardbeagle/phptags/internal/types"
)

// Snapshot is the text of the focused editor buffer at one moment
type Snapshot struct {
	FileID string
	Path   string
	Text   []byte
}

// WorkingResult is a freshly parsed overlay for the cache owner to install.
// On a parse failure Store is nil and Err says why; the overlay already in
// the cache stays valid. Store shares the worker's parser, so newer text
// goes through Submit rather than Store.Update.
type WorkingResult struct {
	FileID string
	Store  *store.WorkingStore
	Err    error
}

// WorkingBuilder reparses the focused buffer in the background. Edits
// arrive through an overwrite mailbox: when the user types faster than a
// parse completes only the latest snapshot is parsed. The builder never
// touches the cache; results go out on a channel.
type WorkingBuilder struct {
	mailbox  *Mailbox[Snapshot]
	results  chan WorkingResult
	parser   *parser.Parser
	opts     store.QueryOptions
	debounce time.Duration

	dropped atomic.Int64
	built   atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewWorkingBuilder creates a builder parsing with the given dialect. A
// snapshot is parsed once no newer one arrived for debounceMs.
func NewWorkingBuilder(version types.PHPVersion, opts store.QueryOptions, debounceMs int) *WorkingBuilder {
	if debounceMs < 0 {
		debounceMs = 0
	}
	return &WorkingBuilder{
		mailbox:  NewMailbox[Snapshot](),
		results:  make(chan WorkingResult, 1),
		parser:   parser.New(version),
		opts:     opts,
		debounce: time.Duration(debounceMs) * time.Millisecond,
	}
}

// Start launches the worker. It stops when ctx is done or on Shutdown.
func (w *WorkingBuilder) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

// Submit hands the worker a new snapshot, replacing any not yet parsed
func (w *WorkingBuilder) Submit(s Snapshot) {
	s.Text = append([]byte(nil), s.Text...)
	if w.mailbox.Put(s) {
		w.dropped.Add(1)
		debug.LogIndexing("dropped stale snapshot, now pending %s\n", s.FileID)
	}
}

// Results delivers built overlays. It is closed by Shutdown.
func (w *WorkingBuilder) Results() <-chan WorkingResult {
	return w.results
}

// Dropped returns how many snapshots were superseded before being parsed
func (w *WorkingBuilder) Dropped() int {
	return int(w.dropped.Load())
}

// Built returns how many snapshots were parsed
func (w *WorkingBuilder) Built() int {
	return int(w.built.Load())
}

// Shutdown stops the worker and waits for it. Results not yet received
// are discarded and their stores closed.
func (w *WorkingBuilder) Shutdown() {
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		close(w.results)
		for r := range w.results {
			if r.Store != nil {
				r.Store.Close()
			}
		}
		w.parser.Close()
	})
}

func (w *WorkingBuilder) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.mailbox.Ready():
		}
		if w.debounce > 0 {
			timer := time.NewTimer(w.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		snap, ok := w.mailbox.Take()
		if !ok {
			continue
		}

		res := w.build(ctx, snap)
		select {
		case w.results <- res:
		case <-ctx.Done():
			if res.Store != nil {
				res.Store.Close()
			}
			return
		}
	}
}

func (w *WorkingBuilder) build(ctx context.Context, snap Snapshot) WorkingResult {
	start := time.Now()
	ws, err := store.NewWorking(ctx, snap.FileID, snap.Path, w.parser, w.opts)
	if err != nil {
		return WorkingResult{FileID: snap.FileID, Err: err}
	}
	if err := ws.Update(ctx, snap.Text); err != nil {
		ws.Close()
		debug.LogIndexing("keeping previous overlay of %s: %v\n", snap.FileID, err)
		return WorkingResult{FileID: snap.FileID, Err: err}
	}
	w.built.Add(1)
	debug.LogIndexing("built overlay of %s in %v\n", snap.FileID, time.Since(start))
	return WorkingResult{FileID: snap.FileID, Store: ws}
}

// ApplyWorking installs a result in c. A failed result leaves the current
// overlay in place and returns the parse error for the owner to report.
func ApplyWorking(c *cache.Cache, r WorkingResult) error {
	if r.Err != nil {
		return r.Err
	}
	c.ReplaceWorking(r.FileID, r.Store)
	return nil
}
