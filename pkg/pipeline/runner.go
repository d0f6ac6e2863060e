package pipeline

import (
	"context"
	"regexp"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/crawl"
	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/extract"
	"github.com/matzehuels/crateindex/pkg/integrations/crates"
	"github.com/matzehuels/crateindex/pkg/pkgfs"
	"github.com/matzehuels/crateindex/pkg/registry"
	"github.com/matzehuels/crateindex/pkg/store"
)

// Runner answers catalog queries, crawling packages that are not stored
// yet. It holds no per-request state; one Runner serves concurrent
// callers.
type Runner struct {
	Store    *store.Store
	Resolver registry.Resolver
	Options  Options
	Logger   *log.Logger

	crawler *crawl.Crawler
}

// NewRunner creates a runner. A nil logger means log.Default().
func NewRunner(st *store.Store, resolver registry.Resolver, opts Options, logger *log.Logger) *Runner {
	return &Runner{
		Store:    st,
		Resolver: resolver,
		Options:  opts.WithDefaults(),
		Logger:   orDefault(logger),
		crawler:  crawl.New(resolver, st),
	}
}

// Fetch crawls name at version (latest when empty) and its re-exports.
func (r *Runner) Fetch(ctx context.Context, name, version string) (*crawl.Summary, error) {
	return r.FetchWithLimits(ctx, name, version, r.Options.Limits)
}

// FetchWithLimits is Fetch with per-call limits.
func (r *Runner) FetchWithLimits(ctx context.Context, name, version string, limits catalog.Limits) (*crawl.Summary, error) {
	if err := errors.ValidateCrateName(name); err != nil {
		return nil, err
	}
	if version != "" {
		if err := errors.ValidateVersion(version); err != nil {
			return nil, err
		}
	}
	return r.crawler.Crawl(ctx, name, version, crawl.Options{
		Workers: r.Options.Workers,
		Limits:  limits,
		Extract: extract.Options{Workers: r.Options.Workers, Logger: r.Logger},
		Logger:  r.Logger,
	})
}

// EnsureIndexed maps a package reference to a stored key, crawling the
// package first when nothing matches. ref is either a bare crate name or
// an exact "name-version" key. A bare name stored in several versions is
// an AMBIGUOUS_REFERENCE.
func (r *Runner) EnsureIndexed(ctx context.Context, ref string) (string, error) {
	key, err := r.Store.ResolveKey(ctx, ref)
	if err == nil || !errors.Is(err, errors.ErrCodePackageNotFound) {
		return key, err
	}

	name, version := ref, ""
	if n, v, ok := catalog.SplitKey(ref); ok && errors.ValidateVersion(v) == nil {
		name, version = n, v
	}
	r.Logger.Info("package not indexed, fetching", "package", ref)
	if _, err := r.Fetch(ctx, name, version); err != nil {
		return "", err
	}
	if version != "" {
		return catalog.Key(name, version), nil
	}
	return r.Store.ResolveKey(ctx, name)
}

// Release is the registry view of a crate's latest release.
type Release struct {
	Key string `json:"key"`
	*crates.CrateInfo
}

// Latest reports the version a request for name without a version uses,
// with the crate's registry metadata when the resolver provides it.
func (r *Runner) Latest(ctx context.Context, name string) (*Release, error) {
	var info *crates.CrateInfo
	if d, ok := r.Resolver.(registry.Describer); ok {
		var err error
		if info, err = d.Describe(ctx, name); err != nil {
			return nil, err
		}
	} else {
		v, err := r.Resolver.ResolveLatest(ctx, name)
		if err != nil {
			return nil, err
		}
		info = &crates.CrateInfo{Name: name, LatestVersion: v, MaxVersion: v}
	}
	if info.Name == "" {
		info.Name = name
	}
	return &Release{Key: catalog.Key(info.Name, info.LatestVersion), CrateInfo: info}, nil
}

// Packages lists every stored package.
func (r *Runner) Packages(ctx context.Context) ([]*store.Package, error) {
	return r.Store.Packages(ctx)
}

// Package returns the stored package ref refers to, crawling it first if
// needed.
func (r *Runner) Package(ctx context.Context, ref string) (*store.Package, error) {
	key, err := r.EnsureIndexed(ctx, ref)
	if err != nil {
		return nil, err
	}
	return r.Store.Package(ctx, key)
}

type remover interface {
	Remove(key string) error
}

// Remove deletes key from the catalog and, when the resolver keeps
// unpacked sources, removes them too.
func (r *Runner) Remove(ctx context.Context, key string) error {
	if err := r.Store.Delete(ctx, key); err != nil {
		return err
	}
	if rm, ok := r.Resolver.(remover); ok {
		if err := rm.Remove(key); err != nil {
			r.Logger.Warn("could not remove sources", "package", key, "err", err)
		}
	}
	return nil
}

// =============================================================================
// Declarations
// =============================================================================

// Shown is a declaration with its package and source excerpt.
type Shown struct {
	Key         string              `json:"package"`
	Kind        catalog.Kind        `json:"kind"`
	Declaration catalog.Declaration `json:"declaration"`
	Source      *pkgfs.Excerpt      `json:"source,omitempty"`
}

// Show looks up a declaration by identifier. The source excerpt spans the
// declaration, or DefaultContext lines when it has no end line; a source
// file that cannot be read leaves Source nil.
func (r *Runner) Show(ctx context.Context, id string) (*Shown, error) {
	key, decl, err := r.Store.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &Shown{Key: key, Kind: decl.Kind(), Declaration: decl}

	path, err := r.Store.Path(ctx, key)
	if err != nil {
		return nil, err
	}
	h := decl.Header()
	end := h.Line + DefaultContext
	if h.EndLine != nil {
		end = *h.EndLine
	}
	if out.Source, err = pkgfs.ReadLines(path, h.File, h.Line, end); err != nil {
		r.Logger.Warn("source unavailable", "package", key, "file", h.File, "err", err)
		out.Source = nil
	}
	return out, nil
}

// Entry is a listed declaration.
type Entry struct {
	Key         string              `json:"package"`
	Declaration catalog.Declaration `json:"declaration"`
}

// Listing is the result of [Runner.List].
type Listing struct {
	Key      string       `json:"package"`
	Packages []string     `json:"packages"`
	Kind     catalog.Kind `json:"kind"`
	Entries  []Entry      `json:"entries"`
}

// List returns the declarations of one kind in the package ref refers to
// and in the stored packages it transitively re-exports, limited by
// Options.Limits. A non-empty pattern is a regular expression matched
// against names, and also against signatures of functions, target types
// of aliases, and trait paths of impls.
func (r *Runner) List(ctx context.Context, ref string, kind catalog.Kind, pattern string) (*Listing, error) {
	var re *regexp.Regexp
	if pattern != "" {
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid pattern %q", pattern)
		}
	}

	key, err := r.EnsureIndexed(ctx, ref)
	if err != nil {
		return nil, err
	}
	keys, err := r.Store.ReexportClosure(ctx, key, r.Options.Limits)
	if err != nil {
		return nil, err
	}

	out := &Listing{Key: key, Packages: keys, Kind: kind, Entries: []Entry{}}
	for _, k := range keys {
		decls, err := r.Store.Declarations(ctx, k, kind)
		if err != nil {
			return nil, err
		}
		for _, d := range decls {
			if re == nil || matches(re, d) {
				out.Entries = append(out.Entries, Entry{Key: k, Declaration: d})
			}
		}
	}
	return out, nil
}

func matches(re *regexp.Regexp, d catalog.Declaration) bool {
	if re.MatchString(d.Header().Name) {
		return true
	}
	switch v := d.(type) {
	case *catalog.Function:
		return re.MatchString(v.Signature)
	case *catalog.TypeAlias:
		return re.MatchString(v.Type)
	case *catalog.Impl:
		return re.MatchString(v.SelfType) || (v.Trait != nil && re.MatchString(*v.Trait))
	}
	return false
}

// =============================================================================
// Files
// =============================================================================

func (r *Runner) root(ctx context.Context, ref string) (string, string, error) {
	key, err := r.EnsureIndexed(ctx, ref)
	if err != nil {
		return "", "", err
	}
	path, err := r.Store.Path(ctx, key)
	if err != nil {
		return "", "", err
	}
	return key, path, nil
}

// Excerpt is a file excerpt of a package.
type Excerpt struct {
	Key string `json:"package"`
	*pkgfs.Excerpt
}

// Read returns lines start through end of file in the package ref refers
// to; see [pkgfs.ReadLines].
func (r *Runner) Read(ctx context.Context, ref, file string, start, end int) (*Excerpt, error) {
	key, root, err := r.root(ctx, ref)
	if err != nil {
		return nil, err
	}
	ex, err := pkgfs.ReadLines(root, file, start, end)
	if err != nil {
		return nil, err
	}
	return &Excerpt{Key: key, Excerpt: ex}, nil
}

// Readme is a package README.
type Readme struct {
	Key     string `json:"package"`
	File    string `json:"file"`
	Content string `json:"content"`
}

// Readme returns the README of the package ref refers to.
func (r *Runner) Readme(ctx context.Context, ref string) (*Readme, error) {
	key, root, err := r.root(ctx, ref)
	if err != nil {
		return nil, err
	}
	name, content, err := pkgfs.Readme(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "no README in %s", key)
	}
	return &Readme{Key: key, File: name, Content: content}, nil
}

// FileList is the result of [Runner.Files].
type FileList struct {
	Key       string   `json:"package"`
	Files     []string `json:"files"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Files lists up to limit files of the package ref refers to.
func (r *Runner) Files(ctx context.Context, ref string, limit int) (*FileList, error) {
	key, root, err := r.root(ctx, ref)
	if err != nil {
		return nil, err
	}
	files, truncated, err := pkgfs.List(root, limit)
	if err != nil {
		return nil, err
	}
	return &FileList{Key: key, Files: files, Truncated: truncated}, nil
}

// SearchResult is the result of [Runner.Search].
type SearchResult struct {
	Key       string        `json:"package"`
	Matches   []pkgfs.Match `json:"matches"`
	Truncated bool          `json:"truncated,omitempty"`
}

// Search greps the Rust sources of the package ref refers to. limit 0
// means DefaultSearchLimit.
func (r *Runner) Search(ctx context.Context, ref, pattern string, limit int) (*SearchResult, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid pattern %q", pattern)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	key, root, err := r.root(ctx, ref)
	if err != nil {
		return nil, err
	}
	matches, truncated, err := pkgfs.Grep(root, re, limit)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []pkgfs.Match{}
	}
	return &SearchResult{Key: key, Matches: matches, Truncated: truncated}, nil
}

// =============================================================================
// Graph
// =============================================================================

// Graph is the re-export graph of a package with per-package counts.
type Graph struct {
	*store.Graph
	Counts map[string]catalog.Counts `json:"counts"`
}

// Graph returns the re-export graph of the package ref refers to, limited
// by Options.Limits like [Runner.List].
func (r *Runner) Graph(ctx context.Context, ref string) (*Graph, error) {
	key, err := r.EnsureIndexed(ctx, ref)
	if err != nil {
		return nil, err
	}
	g, err := r.Store.ReexportGraph(ctx, key, r.Options.Limits)
	if err != nil {
		return nil, err
	}
	out := &Graph{Graph: g, Counts: make(map[string]catalog.Counts, len(g.Keys))}
	for _, k := range g.Keys {
		p, err := r.Store.Package(ctx, k)
		if err != nil {
			return nil, err
		}
		out.Counts[k] = p.Counts
	}
	return out, nil
}
