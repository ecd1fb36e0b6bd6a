package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/standardbeagle/phptags/internal/cache"
	"github.com/standardbeagle/phptags/internal/config"
	"github.com/standardbeagle/phptags/internal/debug"
	"github.com/standardbeagle/phptags/internal/indexing"
	"github.com/standardbeagle/phptags/internal/store"
	"github.com/standardbeagle/phptags/internal/version"

	"github.com/urfave/cli/v2"
)

var Version = version.Version

// loadConfigWithOverrides loads the project configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	return loadConfigFor(c, c.String("root"))
}

// loadConfigFor loads the configuration of the project at root
func loadConfigFor(c *cli.Context, root string) (*config.Config, error) {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", absRoot, err)
	}

	if includeFlags := c.StringSlice("include"); len(includeFlags) > 0 {
		cfg.Include = includeFlags
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludeFlags...)
	}
	if c.IsSet("duck") {
		cfg.Resolution.DuckTyping = c.Bool("duck")
	}
	if c.IsSet("php") {
		cfg.Index.PHPVersion = c.String("php")
	}
	return cfg, nil
}

// session is an indexed project registered with a fresh cache
type session struct {
	cfg   *config.Config
	cache *cache.Cache
	store *store.GlobalStore
	stats indexing.Stats
	errs  []error
}

// openSession brings the project store up to date and registers it.
// Unchanged files are skipped, so this is cheap after the first index.
func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}
	results, err := indexing.IndexProjects(c.Context, []*config.Config{cfg}, 1)
	if err != nil {
		return nil, err
	}
	res := results[0]

	tc := cache.New(cache.OptionsFromConfig(cfg))
	tc.RegisterGlobal(res.Store)
	tc.MarkIndexed()
	return &session{cfg: cfg, cache: tc, store: res.Store, stats: res.Stats, errs: res.Errors}, nil
}

func (s *session) Close() error {
	return s.cache.Close()
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:                   "phptags",
		Usage:                  "PHP tag index, completion and call trace engine",
		Version:                Version,
		UseShortOptionHandling: true,
		Writer:                 out,
		ErrWriter:              out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Include files matching glob patterns (e.g., --include 'app/**/*.php')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns (e.g., --exclude '**/vendor/**')",
			},
			&cli.StringFlag{
				Name:  "php",
				Usage: "PHP dialect: auto, 5.3, 5.4 or later",
			},
			&cli.BoolFlag{
				Name:  "duck",
				Usage: "Resolve unknown receivers by searching every class",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Print debug logging to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				debug.SetDebugOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:    "index",
				Aliases: []string{"i"},
				Usage:   "Index one or more project roots",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "parallel",
						Aliases: []string{"p"},
						Usage:   "Projects indexed at once (0 = all)",
					},
				},
				ArgsUsage: "[root...]",
				Action:    indexCommand,
			},
			{
				Name:      "find",
				Aliases:   []string{"f"},
				Usage:     "Find tags by name (Class, Class::member, function)",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "prefix",
						Usage: "Match names starting with the argument",
					},
				},
				Action: findCommand,
			},
			{
				Name:      "members",
				Aliases:   []string{"m"},
				Usage:     "List members of a class including inherited ones",
				ArgsUsage: "<class>",
				Action:    membersCommand,
			},
			{
				Name:      "complete",
				Aliases:   []string{"c"},
				Usage:     "Complete an expression typed in a file",
				ArgsUsage: "<expression>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "File the expression is typed in", Required: true},
					&cli.StringFlag{Name: "namespace", Usage: "Enclosing namespace"},
					&cli.StringFlag{Name: "class", Usage: "Enclosing class"},
					&cli.StringFlag{Name: "method", Usage: "Enclosing method or function"},
				},
				Action: completeCommand,
			},
			{
				Name:      "trace",
				Aliases:   []string{"t"},
				Usage:     "Build the flattened call trace of a method",
				ArgsUsage: "<file> <Class::method|function>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "max-records", Usage: "Step ceiling (overrides config)"},
					&cli.BoolFlag{Name: "save", Usage: "Persist the trace in the project store"},
					&cli.BoolFlag{Name: "yaml", Usage: "Output as YAML"},
				},
				Action: traceCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show tag index statistics",
				Action: statsCommand,
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "full", Usage: "Include build details"},
				},
				Action: func(c *cli.Context) error {
					if c.Bool("full") {
						fmt.Fprintln(c.App.Writer, version.FullInfo())
						return nil
					}
					fmt.Fprintln(c.App.Writer, version.Info())
					return nil
				},
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
