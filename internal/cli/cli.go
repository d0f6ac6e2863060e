// Package cli implements the crateindex command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/crateindex/pkg/buildinfo"
	"github.com/matzehuels/crateindex/pkg/cache"
	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/integrations/crates"
	"github.com/matzehuels/crateindex/pkg/pipeline"
	"github.com/matzehuels/crateindex/pkg/registry"
	"github.com/matzehuels/crateindex/pkg/store"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "crateindex"

	// envHome overrides the data directory.
	envHome = "CRATEINDEX_HOME"

	// envRedisURL selects the Redis cache backend.
	envRedisURL = "CRATEINDEX_REDIS_URL"

	// metadataTTL is how long registry metadata stays cached.
	metadataTTL = time.Hour
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	flags globalFlags

	// newResolver builds the registry resolver; tests replace it.
	newResolver func(backend cache.Cache, dir string) registry.Resolver
}

type globalFlags struct {
	dataDir     string
	redisURL    string
	noCache     bool
	refresh     bool
	jsonOut     bool
	workers     int
	maxDepth    int
	maxPackages int
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	c := &CLI{Logger: newLogger(w, level)}
	c.newResolver = c.cratesResolver
	return c
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "crateindex catalogs the declarations of Rust crates",
		Long: `crateindex downloads Rust crates from crates.io, extracts their functions,
types, traits, macros and impls into a local SQLite catalog, and answers
queries about them. Crates a package re-exports are indexed along with it.`,
		Version:      buildinfo.Read().Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			installDebugHooks(c.Logger)
		},
	}
	root.SetVersionTemplate(buildinfo.Template())

	f := root.PersistentFlags()
	f.StringVar(&c.flags.dataDir, "data-dir", "", "data directory (default $"+envHome+" or ~/."+appName+")")
	f.StringVar(&c.flags.redisURL, "redis-url", os.Getenv(envRedisURL), "cache registry metadata in Redis")
	f.BoolVar(&c.flags.noCache, "no-cache", false, "disable the registry metadata cache")
	f.BoolVar(&c.flags.refresh, "refresh", false, "bypass cached registry metadata")
	f.BoolVar(&c.flags.jsonOut, "json", false, "print results as JSON")
	f.IntVar(&c.flags.workers, "workers", 0, "parallel downloads and parses (default: number of CPUs)")
	f.IntVar(&c.flags.maxDepth, "max-depth", pipeline.DefaultMaxDepth, "re-export depth limit (0 = unlimited)")
	f.IntVar(&c.flags.maxPackages, "max-packages", pipeline.DefaultMaxPackages, "package limit per crawl or listing (0 = unlimited)")

	root.AddCommand(c.fetchCommand())
	root.AddCommand(c.showCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.readCommand())
	root.AddCommand(c.readmeCommand())
	root.AddCommand(c.filesCommand())
	root.AddCommand(c.searchCommand())
	root.AddCommand(c.latestCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.packagesCommand())
	root.AddCommand(c.removeCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Environment
// =============================================================================

// env is what a command needs to answer queries. Close releases it.
type env struct {
	store  *store.Store
	cache  cache.Cache
	runner *pipeline.Runner
}

func (e *env) Close() error {
	cerr := e.cache.Close()
	if err := e.store.Close(); err != nil {
		return err
	}
	return cerr
}

// open opens the catalog and builds a runner from the global flags.
func (c *CLI) open(ctx context.Context) (*env, error) {
	dir, err := c.dataDir()
	if err != nil {
		return nil, err
	}
	backend, err := c.newCache(ctx)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, store.DefaultConfig(filepath.Join(dir, store.FileName)))
	if err != nil {
		backend.Close()
		return nil, err
	}
	opts := pipeline.Options{
		Workers: c.flags.workers,
		Limits:  limitsOf(c.flags.maxDepth, c.flags.maxPackages),
	}
	resolver := c.newResolver(backend, filepath.Join(dir, "crates"))
	return &env{
		store:  st,
		cache:  backend,
		runner: pipeline.NewRunner(st, resolver, opts, loggerFromContext(ctx)),
	}, nil
}

func (c *CLI) cratesResolver(backend cache.Cache, dir string) registry.Resolver {
	client := crates.NewClient(backend, metadataTTL)
	return registry.NewCrates(client, dir, registry.CratesOptions{Refresh: c.flags.refresh, Logger: c.Logger})
}

// newCache picks the metadata cache: none, Redis, or files below the XDG
// cache directory.
func (c *CLI) newCache(ctx context.Context) (cache.Cache, error) {
	if c.flags.noCache {
		return cache.NewNullCache(), nil
	}
	if c.flags.redisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{URL: c.flags.redisURL})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "connect to redis")
		}
		return rc, nil
	}
	dir, err := cacheDir()
	if err != nil {
		c.Logger.Debug("no cache directory, caching in memory", "err", err)
		return cache.NewMemoryCache(10 * time.Minute), nil
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create cache %s", dir)
	}
	return fc, nil
}

// =============================================================================
// Paths
// =============================================================================

// dataDir returns --data-dir, else $CRATEINDEX_HOME, else ~/.crateindex.
func (c *CLI) dataDir() (string, error) {
	if c.flags.dataDir != "" {
		return c.flags.dataDir, nil
	}
	return defaultDataDir()
}

func defaultDataDir() (string, error) {
	if home := os.Getenv(envHome); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "locate home directory")
	}
	return filepath.Join(home, "."+appName), nil
}

// cacheDir returns the cache directory using XDG standard (~/.cache/crateindex/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// =============================================================================
// Options Helpers
// =============================================================================

// limitsOf converts flag values; negative values mean unlimited like zero.
func limitsOf(maxDepth, maxPackages int) catalog.Limits {
	return catalog.Limits{MaxDepth: max(maxDepth, 0), MaxPackages: max(maxPackages, 0)}
}

// writeJSON prints v indented, for --json.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
