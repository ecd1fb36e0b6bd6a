// Package callstack builds flattened call traces: starting from one method
// or function it records every variable operation of the body as a Step,
// follows each resolvable call into its callee and records that body too.
package callstack

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/standardbeagle/phptags/internal/cache"
	"github.com/standardbeagle/phptags/internal/config"
	"github.com/standardbeagle/phptags/internal/debug"
	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/store"
	"github.com/standardbeagle/phptags/internal/types"
)

// Options tunes a Builder
type Options struct {
	// MaxRecords is the ceiling on accumulated steps. A build that would
	// exceed it stops with a stack_limit error.
	MaxRecords int
	// Policy decides whether calls on receivers of unknown type are
	// matched against every class
	Policy types.ResolutionPolicy
}

// DefaultOptions returns the strict policy and the default ceiling
func DefaultOptions() Options {
	return Options{MaxRecords: config.DefaultMaxRecords, Policy: types.ResolutionStrict}
}

// OptionsFromConfig maps the call stack and resolution sections of a config
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg.CallStack.MaxRecords > 0 {
		opts.MaxRecords = cfg.CallStack.MaxRecords
	}
	opts.Policy = cfg.Policy()
	return opts
}

// workItem is one body waiting to be traced
type workItem struct {
	path       string
	className  string // qualified, empty for functions
	methodName string
	namespace  string   // functions only
	args       []string // caller-side argument variables
}

type calleeKey struct {
	class  string
	method string
}

func keyOf(className, methodName string) calleeKey {
	return calleeKey{
		class:  strings.ToLower(strings.TrimPrefix(className, "\\")),
		method: strings.ToLower(methodName),
	}
}

// Builder produces call traces against a tag cache. A Builder is confined
// to the goroutine owning the cache.
type Builder struct {
	cache  *cache.Cache
	parser *parser.Parser
	opts   Options

	target           workItem
	steps            []types.Step
	resolutionErrors []error
	queue            []workItem
	visited          map[calleeKey]bool
	created          map[string]bool // working registrations this build made
}

// NewBuilder creates a builder resolving calls through c and parsing
// files with p
func NewBuilder(c *cache.Cache, p *parser.Parser, opts Options) *Builder {
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = config.DefaultMaxRecords
	}
	return &Builder{cache: c, parser: p, opts: opts}
}

func (b *Builder) reset() {
	b.steps = nil
	b.resolutionErrors = nil
	b.queue = nil
	b.visited = make(map[calleeKey]bool)
	b.created = make(map[string]bool)
}

// Steps returns the trace of the last Build, numbered from 0
func (b *Builder) Steps() []types.Step {
	return append([]types.Step(nil), b.steps...)
}

// ResolutionErrors returns the calls of the last Build that could not be
// followed. They do not fail the build.
func (b *Builder) ResolutionErrors() []error {
	return append([]error(nil), b.resolutionErrors...)
}

// Build traces methodName of className (a free function when className is
// empty) declared in the file at path. A nil error means the trace is
// complete as far as calls could be resolved. Failures carry one of the
// codes empty_cache, resource_not_found, parse, stack_limit or cancelled;
// the steps collected before a failure stay available.
func (b *Builder) Build(ctx context.Context, path, className, methodName string) error {
	b.reset()
	defer b.releaseAll()
	b.target = workItem{path: path, className: strings.TrimPrefix(className, "\\"), methodName: methodName}
	fail := func(code tagerrors.Code, err error) error {
		return tagerrors.NewTraceError(code, path, className, methodName, err)
	}

	if err := ctx.Err(); err != nil {
		return fail(tagerrors.CodeCancelled, err)
	}
	if b.cache.IsResourceCacheEmpty(ctx) {
		return fail(tagerrors.CodeEmptyCache, nil)
	}

	b.queue = []workItem{b.target}
	b.visited[keyOf(className, methodName)] = true
	for first := true; len(b.queue) > 0; first = false {
		if err := ctx.Err(); err != nil {
			return fail(tagerrors.CodeCancelled, err)
		}
		item := b.queue[0]
		b.queue = b.queue[1:]

		found, err := b.process(ctx, item)
		b.release(item.path)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(tagerrors.CodeCancelled, ctxErr)
		}
		switch {
		case err != nil && (first || tagerrors.CodeOf(err) == tagerrors.CodeStackLimit):
			return fail(tagerrors.CodeOf(err), err)
		case err != nil:
			debug.LogTrace("skipping %s::%s: %v\n", item.className, item.methodName, err)
			b.resolutionErrors = append(b.resolutionErrors, err)
		case !found && first:
			return fail(tagerrors.CodeResourceNotFound, nil)
		case !found:
			b.resolutionErrors = append(b.resolutionErrors,
				tagerrors.NewTraceError(tagerrors.CodeResourceNotFound, item.path, item.className, item.methodName, nil))
		}
	}

	debug.LogTrace("traced %s::%s: %d steps, %d unresolved calls\n", className, methodName, len(b.steps), len(b.resolutionErrors))
	b.cache.MarkIndexed()
	return nil
}

// process traces one queued body. found is false when the file does not
// declare it.
func (b *Builder) process(ctx context.Context, item workItem) (found bool, err error) {
	ws, err := b.workingFor(ctx, item.path)
	if err != nil {
		return false, err
	}
	res, err := b.parser.Parse(ctx, item.path, ws.Source())
	if err != nil {
		return false, err
	}
	defer res.Close()

	scope, ok := findScope(res, item)
	if !ok {
		return false, nil
	}
	f := newFolder(b, item, scope)
	for ev := range parser.ScopeEvents(res.Events(), scope) {
		if err := f.apply(ctx, ev); err != nil {
			return true, err
		}
	}
	return true, nil
}

// findScope locates the declaration item names among the file's events
func findScope(res *parser.Result, item workItem) (types.Scope, bool) {
	for ev := range res.Events() {
		switch ev.Kind {
		case parser.EventMethod:
			if item.className == "" || !strings.EqualFold(ev.Tag.Identifier, item.methodName) {
				continue
			}
			if strings.EqualFold(ev.Tag.ClassName, item.className) || strings.EqualFold(ev.Tag.ClassIdentifier, item.className) {
				return ev.Scope, true
			}
		case parser.EventFunction:
			if item.className != "" || !strings.EqualFold(ev.Tag.Identifier, item.methodName) {
				continue
			}
			if item.namespace == "" || strings.EqualFold(ev.Tag.NamespaceName, item.namespace) {
				return ev.Scope, true
			}
		}
	}
	return types.Scope{}, false
}

// workingFor returns the working store of path, registering a new one when
// the cache has none. Open editor buffers are traced as edited.
func (b *Builder) workingFor(ctx context.Context, path string) (*store.WorkingStore, error) {
	if ws, ok := b.cache.Working(path); ok {
		return ws, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, tagerrors.NewTraceError(tagerrors.CodeResourceNotFound, path, "", "", err)
		}
		return nil, tagerrors.NewStoreError("read", path, err)
	}
	ws, err := store.NewWorking(ctx, path, path, b.parser, store.DefaultQueryOptions())
	if err != nil {
		return nil, err
	}
	if err := ws.Update(ctx, src); err != nil {
		ws.Close()
		return nil, err
	}
	if orphan, ok := b.cache.RegisterWorking(path, ws); !ok {
		orphan.Close()
		return nil, tagerrors.NewStoreError("register", path, errors.New("working store rejected"))
	}
	b.created[path] = true
	return ws, nil
}

// release drops a working registration this build made once no queued
// item needs the file any more
func (b *Builder) release(path string) {
	if !b.created[path] {
		return
	}
	for _, item := range b.queue {
		if item.path == path {
			return
		}
	}
	b.cache.RemoveWorking(path)
	delete(b.created, path)
}

func (b *Builder) releaseAll() {
	for path := range b.created {
		b.cache.RemoveWorking(path)
	}
	clear(b.created)
}

// addStep appends a step, enforcing the record ceiling
func (b *Builder) addStep(s types.Step) error {
	if len(b.steps) >= b.opts.MaxRecords {
		return tagerrors.NewTraceError(tagerrors.CodeStackLimit, b.target.path, b.target.className, b.target.methodName, nil)
	}
	s.Number = len(b.steps)
	b.steps = append(b.steps, s)
	return nil
}

// followCall resolves a call made in scope and queues each callee body
// not traced yet. A callee already traced gets its arguments bound at the
// call site instead. A missing optional callee (an implicit constructor)
// is not reported.
func (b *Builder) followCall(ctx context.Context, f *folder, call types.Expression, args []string, optional bool) error {
	tags, err := b.cache.ResourceMatches(ctx, f.item.path, call, f.scope, b.opts.Policy, true)
	code := tagerrors.CodeOf(err)
	if err != nil && code != tagerrors.CodeDuckTyped {
		if code.Fatal() {
			return err
		}
		if !(optional && code == tagerrors.CodeUnknownResource) {
			b.resolutionErrors = append(b.resolutionErrors, err)
		}
		return nil
	}

	var callees []types.Tag
	for _, t := range tags {
		if (t.Kind == types.TagKindMethod || t.Kind == types.TagKindFunction) && t.HasFileLocation() {
			callees = append(callees, t)
		}
	}
	if code == tagerrors.CodeDuckTyped && len(callees) != 1 {
		// more than one class could answer; guessing would invent a trace
		b.resolutionErrors = append(b.resolutionErrors, err)
		return nil
	}

	for _, t := range callees {
		key := keyOf(t.ClassName, t.Identifier)
		if b.visited[key] {
			if err := f.bindParameters(parameterNames(t.Signature), args); err != nil {
				return err
			}
			continue
		}
		b.visited[key] = true
		item := workItem{path: t.FullPath, className: t.ClassName, methodName: t.Identifier, args: args}
		if t.Kind == types.TagKindFunction {
			item.namespace = t.NamespaceName
		}
		b.queue = append(b.queue, item)
		debug.LogTrace("queued %s for %s\n", t.FullyQualified(), call)
	}
	return nil
}

// parameterNames extracts "$name" parameters from a signature such as
// "(Item $item, $qty = 1)"
func parameterNames(signature string) []string {
	var names []string
	for _, part := range strings.Split(strings.Trim(signature, "()"), ",") {
		i := strings.IndexByte(part, '$')
		if i < 0 {
			continue
		}
		end := i + 1
		for end < len(part) && (part[end] == '_' || part[end] >= 'a' && part[end] <= 'z' ||
			part[end] >= 'A' && part[end] <= 'Z' || part[end] >= '0' && part[end] <= '9' || part[end] >= 0x80) {
			end++
		}
		names = append(names, part[i:end])
	}
	return names
}
