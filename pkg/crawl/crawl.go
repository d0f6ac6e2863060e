// Package crawl indexes a crate and every crate it publicly re-exports.
//
// A crawl proceeds in waves. Each wave resolves versions for its pending
// names, drops packages already in the catalog, fetches and extracts the
// rest on a bounded worker pool, and then commits the results one at a
// time. Re-exported names that were never queued before form the next
// wave, so a crate reachable over several edges is indexed at most once.
//
// Failures of single packages are logged and recorded in the [Summary];
// only a failed commit or a canceled context aborts the crawl.
package crawl

import (
	"context"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/extract"
	"github.com/matzehuels/crateindex/pkg/observability"
	"github.com/matzehuels/crateindex/pkg/registry"
)

// Store is the part of the catalog the crawler reads and writes.
type Store interface {
	HasKey(ctx context.Context, key string) (bool, error)
	Replace(ctx context.Context, key, path string, cat *catalog.Catalog, reexports []string) error
}

// Extractor turns an unpacked package into a catalog.
type Extractor func(ctx context.Context, root, key string) (*extract.Result, error)

// Options configures a crawl.
type Options struct {
	// Workers bounds parallel resolves and fetches within a wave.
	// 0 means runtime.NumCPU().
	Workers int
	// Limits caps the crawl. The seed is at depth 0.
	Limits catalog.Limits
	// Extract configures the default extractor.
	Extract extract.Options
	// Extractor overrides extraction, mainly in tests.
	Extractor Extractor
	Logger    *log.Logger
}

// WithDefaults returns a copy of opts with zero values replaced.
func (o Options) WithDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Extract.Logger == nil {
		o.Extract.Logger = o.Logger
	}
	if o.Extractor == nil {
		eopts := o.Extract
		o.Extractor = func(ctx context.Context, root, key string) (*extract.Result, error) {
			return extract.Package(ctx, root, key, eopts)
		}
	}
	return o
}

// Outcome is the result of one package in a crawl.
type Outcome struct {
	Name         string   `json:"name"`
	Version      string   `json:"version,omitempty"`
	Key          string   `json:"key,omitempty"`
	Depth        int      `json:"depth"`
	Declarations int      `json:"declarations,omitempty"`
	Files        int      `json:"files,omitempty"`
	SkippedFiles int      `json:"skipped_files,omitempty"`
	Reexports    []string `json:"reexports,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Summary reports what a crawl did.
type Summary struct {
	RunID          string        `json:"run_id"`
	Seed           string        `json:"seed"`
	Indexed        []Outcome     `json:"indexed"`
	Skipped        []Outcome     `json:"skipped"`
	AlreadyIndexed []string      `json:"already_indexed"`
	Waves          int           `json:"waves"`
	Truncated      bool          `json:"truncated"`
	Duration       time.Duration `json:"duration"`
}

// Crawler runs crawls against one resolver and one store. It holds no
// per-crawl state and may run several crawls concurrently; commits of
// concurrent crawls are serialized by the store.
type Crawler struct {
	resolver registry.Resolver
	store    Store
}

// New returns a crawler.
func New(resolver registry.Resolver, store Store) *Crawler {
	return &Crawler{resolver: resolver, store: store}
}

type pending struct {
	name    string
	version string
	depth   int
}

type fetched struct {
	pending
	key  string
	path string
	res  *extract.Result
	err  error
}

// run is the state of one crawl.
type run struct {
	*Crawler
	opts    Options
	logger  *log.Logger
	sum     *Summary
	seen    map[string]bool // by normalized name
	seedErr error
}

// Crawl indexes name (at version, or the latest version when empty) and
// the transitive closure of its re-exports.
//
// When the seed itself cannot be resolved, fetched or extracted, Crawl
// returns the summary together with that error. A failed commit returns
// the summary so far and a STORAGE_FAILURE; packages committed earlier
// stay in the catalog.
func (c *Crawler) Crawl(ctx context.Context, name, version string, opts Options) (sum *Summary, err error) {
	opts = opts.WithDefaults()
	start := time.Now()
	sum = &Summary{
		RunID:          uuid.NewString(),
		Seed:           name,
		Indexed:        []Outcome{},
		Skipped:        []Outcome{},
		AlreadyIndexed: []string{},
	}
	r := &run{
		Crawler: c,
		opts:    opts,
		logger:  opts.Logger.With("run", sum.RunID[:8]),
		sum:     sum,
		seen:    map[string]bool{catalog.NormalizeName(name): true},
	}

	defer func() {
		sum.Duration = time.Since(start)
		observability.Crawl().OnCrawlComplete(ctx, sum.RunID, len(sum.Indexed), len(sum.Skipped), sum.Duration, err)
	}()

	frontier := []pending{{name: name, version: version}}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if frontier, err = r.wave(ctx, frontier); err != nil {
			return sum, err
		}
		if sum.Waves == 1 && r.seedErr != nil {
			return sum, r.seedErr
		}
	}

	r.logger.Info("crawl complete", "indexed", len(sum.Indexed), "skipped", len(sum.Skipped),
		"already_indexed", len(sum.AlreadyIndexed), "waves", sum.Waves, "duration", time.Since(start))
	return sum, nil
}

// wave processes one frontier and returns the next.
func (r *run) wave(ctx context.Context, frontier []pending) ([]pending, error) {
	sum, limits := r.sum, r.opts.Limits
	sum.Waves++
	r.logger.Info("crawl wave", "wave", sum.Waves, "pending", len(frontier))
	observability.Crawl().OnWaveStart(ctx, sum.RunID, sum.Waves, len(frontier))

	todo, err := r.resolve(ctx, frontier)
	if err != nil {
		return nil, err
	}
	if remaining := limits.Remaining(len(sum.Indexed)); remaining >= 0 && len(todo) > remaining {
		r.logger.Warn("package limit reached", "limit", limits.MaxPackages, "dropped", len(todo)-remaining)
		todo = todo[:remaining]
		sum.Truncated = true
	}

	results, err := r.fetch(ctx, todo)
	if err != nil {
		return nil, err
	}

	var next []pending
	for _, f := range results {
		if f.err != nil {
			r.skip(ctx, f.pending, f.key, f.err)
			continue
		}
		if err := r.commit(ctx, f); err != nil {
			return nil, err
		}
		for _, dep := range f.res.Reexports {
			id := catalog.NormalizeName(dep)
			if r.seen[id] {
				continue
			}
			if !limits.DepthAllowed(f.depth + 1) {
				r.logger.Debug("depth limit reached", "package", dep, "depth", f.depth+1)
				sum.Truncated = true
				continue
			}
			r.seen[id] = true
			next = append(next, pending{name: dep, depth: f.depth + 1})
		}
	}

	if limits.Full(len(sum.Indexed)) && len(next) > 0 {
		r.logger.Warn("package limit reached", "limit", limits.MaxPackages, "dropped", len(next))
		sum.Truncated = true
		return nil, nil
	}
	return next, nil
}

// resolve fills in missing versions in parallel and drops packages that
// are already stored or resolve to a key seen earlier in the wave.
func (r *run) resolve(ctx context.Context, frontier []pending) ([]fetched, error) {
	out := make([]fetched, len(frontier))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, p := range frontier {
		g.Go(func() error {
			out[i].pending = p
			if p.version == "" {
				v, err := r.resolver.ResolveLatest(gctx, p.name)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					out[i].err = err
					return nil
				}
				out[i].version = v
			}
			out[i].key = catalog.Key(p.name, out[i].version)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	todo := out[:0]
	keys := make(map[string]bool, len(out))
	for _, f := range out {
		if f.err != nil {
			r.skip(ctx, f.pending, "", f.err)
			continue
		}
		if keys[f.key] {
			continue
		}
		keys[f.key] = true
		stored, err := r.store.HasKey(ctx, f.key)
		if err != nil {
			return nil, err
		}
		if stored {
			r.logger.Debug("already indexed", "package", f.key)
			r.sum.AlreadyIndexed = append(r.sum.AlreadyIndexed, f.key)
			continue
		}
		todo = append(todo, f)
	}
	return todo, nil
}

// fetch downloads and extracts every package of todo in parallel. Results
// keep the order of todo.
func (r *run) fetch(ctx context.Context, todo []fetched) ([]fetched, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i := range todo {
		f := &todo[i]
		g.Go(func() error {
			path, err := r.resolver.Fetch(gctx, f.name, f.version)
			if err == nil {
				f.path = path
				f.res, err = r.opts.Extractor(gctx, path, f.key)
			}
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			f.err = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return todo, nil
}

func (r *run) commit(ctx context.Context, f fetched) error {
	if err := r.store.Replace(ctx, f.key, f.path, f.res.Catalog, f.res.Reexports); err != nil {
		r.logger.Error("commit failed", "package", f.key, "err", err)
		if errors.GetCode(err) == "" {
			err = errors.Wrap(errors.ErrCodeStorage, err, "commit %s", f.key)
		}
		return err
	}
	n := f.res.Catalog.Len()
	r.sum.Indexed = append(r.sum.Indexed, Outcome{
		Name:         f.name,
		Version:      f.version,
		Key:          f.key,
		Depth:        f.depth,
		Declarations: n,
		Files:        f.res.Files,
		SkippedFiles: len(f.res.Skipped),
		Reexports:    f.res.Reexports,
	})
	r.logger.Info("indexed", "package", f.key, "declarations", n, "reexports", len(f.res.Reexports))
	observability.Crawl().OnPackageIndexed(ctx, r.sum.RunID, f.key, n)
	return nil
}

func (r *run) skip(ctx context.Context, p pending, key string, err error) {
	r.logger.Warn("skipping package", "package", p.name, "version", p.version, "err", err)
	r.sum.Skipped = append(r.sum.Skipped, Outcome{
		Name:    p.name,
		Version: p.version,
		Key:     key,
		Depth:   p.depth,
		Error:   err.Error(),
	})
	observability.Crawl().OnPackageSkipped(ctx, r.sum.RunID, p.name, err)
	if p.depth == 0 {
		r.seedErr = err
	}
}
