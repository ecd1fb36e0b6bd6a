package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/phptags/internal/callstack"
	"github.com/standardbeagle/phptags/internal/config"
	tagerrors "github.com/standardbeagle/phptags/internal/errors"
	"github.com/standardbeagle/phptags/internal/indexing"
	"github.com/standardbeagle/phptags/internal/metrics"
	"github.com/standardbeagle/phptags/internal/parser"
	"github.com/standardbeagle/phptags/internal/store"
	"github.com/standardbeagle/phptags/internal/types"

	"github.com/urfave/cli/v2"
)

// TagReport is one tag in JSON output
type TagReport struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Signature string `json:"signature,omitempty"`
	Type      string `json:"type,omitempty"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// ProjectReport is the outcome of indexing one root in JSON output
type ProjectReport struct {
	Root        string `json:"root"`
	Store       string `json:"store"`
	Parsed      int    `json:"parsed"`
	Unchanged   int    `json:"unchanged"`
	Misc        int    `json:"misc"`
	Ignored     int    `json:"ignored"`
	ParseFailed int    `json:"parse_failed"`
	Failed      int    `json:"failed"`
	Pruned      int    `json:"pruned"`
	DurationMs  int64  `json:"duration_ms"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// indexCommand indexes every root given as an argument, or the --root project
func indexCommand(c *cli.Context) error {
	roots := c.Args().Slice()
	if len(roots) == 0 {
		roots = []string{c.String("root")}
	}
	cfgs := make([]*config.Config, 0, len(roots))
	for _, root := range roots {
		cfg, err := loadConfigFor(c, root)
		if err != nil {
			return err
		}
		cfgs = append(cfgs, cfg)
	}

	results, err := indexing.IndexProjects(c.Context, cfgs, c.Int("parallel"))
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	defer func() {
		for _, r := range results {
			r.Store.Close()
		}
	}()

	reports := make([]ProjectReport, len(results))
	for i, r := range results {
		reports[i] = ProjectReport{
			Root:        r.Config.Project.Root,
			Store:       r.Store.Path(),
			Parsed:      r.Stats.Parsed,
			Unchanged:   r.Stats.Unchanged,
			Misc:        r.Stats.Misc,
			Ignored:     r.Stats.Ignored,
			ParseFailed: r.Stats.ParseFailed,
			Failed:      r.Stats.Failed,
			Pruned:      r.Stats.Pruned,
			DurationMs:  r.Stats.Duration.Milliseconds(),
		}
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, reports)
	}

	w := c.App.Writer
	for i, r := range reports {
		fmt.Fprintf(w, "Indexed %s in %dms\n", r.Root, r.DurationMs)
		fmt.Fprintf(w, "  %d parsed, %d unchanged, %d misc, %d ignored, %d pruned\n",
			r.Parsed, r.Unchanged, r.Misc, r.Ignored, r.Pruned)
		if r.ParseFailed+r.Failed > 0 {
			fmt.Fprintf(w, "  %d files failed\n", r.ParseFailed+r.Failed)
			for _, err := range results[i].Errors {
				fmt.Fprintf(w, "    %v\n", err)
			}
		}
	}
	return nil
}

// findCommand prints tags matching a name exactly, or by prefix with --prefix
func findCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("find requires a name")
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	name := c.Args().First()
	var tags []types.Tag
	if c.Bool("prefix") {
		tags, err = s.cache.NearMatchTags(c.Context, name)
	} else {
		tags, err = s.cache.ExactTags(c.Context, name)
	}
	if err != nil {
		return err
	}
	return printTags(c, s, tags)
}

// membersCommand prints the members a class declares or inherits
func membersCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("members requires a class name")
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	tags, err := s.cache.AllMemberTags(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return printTags(c, s, tags)
}

func printTags(c *cli.Context, s *session, tags []types.Tag) error {
	locator := newLocator(s)
	reports := make([]TagReport, len(tags))
	for i, tag := range tags {
		reports[i] = TagReport{
			Kind:      tag.Kind.String(),
			Name:      tag.FullyQualified(),
			Signature: tag.Signature,
			Type:      tag.Type(),
		}
		if tag.HasFileLocation() {
			reports[i].File = tag.FullPath
			reports[i].Line = locator.line(tag)
		}
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, reports)
	}

	w := c.App.Writer
	if len(reports) == 0 {
		fmt.Fprintln(w, "No tags found")
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(w, "%-10s %s%s", r.Kind, r.Name, r.Signature)
		if r.File != "" {
			fmt.Fprintf(w, "  %s:%d", displayPath(s.cfg.Project.Root, r.File), r.Line)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// locator reads each file once to place tags on a line
type locator struct {
	s     *session
	texts map[string]string
}

func newLocator(s *session) *locator {
	return &locator{s: s, texts: make(map[string]string)}
}

func (l *locator) line(tag types.Tag) int {
	text, ok := l.texts[tag.FullPath]
	if !ok {
		data, err := os.ReadFile(tag.FullPath)
		if err != nil {
			return 0
		}
		text = string(data)
		l.texts[tag.FullPath] = text
	}
	loc, found := l.s.cache.Locate(tag, text)
	if !found {
		return 0
	}
	return loc.Line
}

func displayPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

// absPath resolves a command line path against the project root
func absPath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// completeCommand completes an expression against the current text of --file
func completeCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("complete requires an expression")
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	path := absPath(s.cfg.Project.Root, c.String("file"))
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	p := parser.New(s.store.Options().Version)
	defer p.Close()
	ws, err := store.NewWorking(c.Context, path, path, p, store.QueryOptionsFromConfig(s.cfg))
	if err != nil {
		return err
	}
	if err := ws.Update(c.Context, src); err != nil {
		ws.Close()
		return err
	}
	if orphan, ok := s.cache.RegisterWorking(path, ws); !ok {
		orphan.Close()
	}

	expr := parser.ParseExpressionText(c.Args().First())
	scope := types.Scope{
		NamespaceName: c.String("namespace"),
		ClassName:     c.String("class"),
		MethodName:    c.String("method"),
	}
	completion, err := s.cache.ExpressionCompletionMatches(c.Context, path, expr, scope, s.cfg.Policy())
	if err != nil && tagerrors.CodeOf(err).Fatal() {
		return err
	}

	if c.Bool("json") {
		doc := map[string]interface{}{"variables": completion.Variables, "tags": tagReports(completion.Tags)}
		if err != nil {
			doc["warning"] = err.Error()
		}
		return writeJSON(c.App.Writer, doc)
	}
	w := c.App.Writer
	if err != nil {
		fmt.Fprintf(w, "warning: %v\n", err)
	}
	for _, v := range completion.Variables {
		fmt.Fprintln(w, v)
	}
	for _, tag := range completion.Tags {
		fmt.Fprintf(w, "%-10s %s%s\n", tag.Kind, tag.FullyQualified(), tag.Signature)
	}
	return nil
}

func tagReports(tags []types.Tag) []TagReport {
	reports := make([]TagReport, len(tags))
	for i, tag := range tags {
		reports[i] = TagReport{Kind: tag.Kind.String(), Name: tag.FullyQualified(), Signature: tag.Signature, Type: tag.Type()}
	}
	return reports
}

// splitTarget splits "Class::method" or "function"
func splitTarget(target string) (className, methodName string) {
	if i := strings.Index(target, "::"); i >= 0 {
		return target[:i], target[i+2:]
	}
	return "", target
}

// traceCommand builds and prints the call trace of one method
func traceCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("trace requires a file and a Class::method or function")
	}
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	path := absPath(s.cfg.Project.Root, c.Args().Get(0))
	className, methodName := splitTarget(c.Args().Get(1))

	opts := callstack.OptionsFromConfig(s.cfg)
	if c.IsSet("max-records") {
		opts.MaxRecords = c.Int("max-records")
	}
	p := parser.New(s.store.Options().Version)
	defer p.Close()

	b := callstack.NewBuilder(s.cache, p, opts)
	if err := b.Build(c.Context, path, className, methodName); err != nil {
		return err
	}

	key := callstack.TraceKey(path, className, methodName)
	if c.Bool("save") {
		if err := b.Persist(c.Context, s.store, key); err != nil {
			return err
		}
	}

	trace := b.Trace()
	switch {
	case c.Bool("yaml"):
		return trace.WriteYAML(c.App.Writer)
	case c.Bool("json"):
		steps := make([]string, len(trace.Steps))
		for i, step := range trace.Steps {
			steps[i] = step.Expression()
		}
		return writeJSON(c.App.Writer, map[string]interface{}{
			"key":               trace.Key,
			"file":              trace.File,
			"class":             trace.ClassName,
			"method":            trace.MethodName,
			"steps":             steps,
			"resolution_errors": trace.ResolutionErrors,
		})
	}

	w := c.App.Writer
	for _, step := range trace.Steps {
		fmt.Fprintf(w, "%4d %s\n", step.Number, step.Expression())
	}
	for _, msg := range trace.ResolutionErrors {
		fmt.Fprintf(w, "unresolved: %s\n", msg)
	}
	if c.Bool("save") {
		fmt.Fprintf(w, "saved as %s\n", key)
	}
	return nil
}

// statsCommand prints tag counts of the project store
func statsCommand(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := metrics.Collect(c.Context, s.store)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, stats.FormatAsJSON())
	}
	fmt.Fprint(c.App.Writer, stats.FormatAsText())
	return nil
}
