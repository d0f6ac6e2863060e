// Package extract turns an unpacked Rust crate into a [catalog.Catalog] and
// the list of crates it publicly re-exports.
//
// Files are parsed in parallel on a bounded worker pool. Each worker owns
// its parser and writes into its own result slot; the slots are merged
// after all workers finish, in file order, so the output is deterministic.
// A file that cannot be read or parsed is logged and skipped; it never
// fails the package.
package extract

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/manifest"
	"github.com/matzehuels/crateindex/pkg/observability"
)

// Options configures package extraction.
type Options struct {
	Workers int         // parallel file parsers; 0 means runtime.NumCPU()
	Logger  *log.Logger // nil means log.Default()
}

// WithDefaults returns a copy of opts with zero values replaced.
func (o Options) WithDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// File is a discovered source file.
type File struct {
	Path string // absolute or root-joined path
	Rel  string // slash-separated path relative to the package root
}

// FileError records a skipped file.
type FileError struct {
	File string
	Err  error
}

// Result is the extraction output for one package.
type Result struct {
	Catalog *catalog.Catalog
	// Reexports are the registry names of re-exported crates that the
	// manifest declares as dependencies, sorted and unique.
	Reexports []string
	// Candidates are all re-exported names before manifest filtering.
	Candidates []string
	Files      int
	Skipped    []FileError
}

// Package extracts every declaration under root. key is the package key
// ("name-version") mixed into declaration identifiers.
func Package(ctx context.Context, root, key string, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	start := time.Now()
	observability.Extract().OnExtractStart(ctx, key)

	files, err := Discover(root)
	if err != nil {
		observability.Extract().OnExtractComplete(ctx, key, 0, 0, time.Since(start), err)
		return nil, err
	}

	results := make([]*FileResult, len(files))
	failures := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src, err := os.ReadFile(f.Path)
			if err != nil {
				failures[i] = errors.Wrap(errors.ErrCodeParse, err, "read %s", f.Rel)
				return nil
			}
			p := newParser()
			defer p.Close()
			r, err := parseSource(gctx, p, src, f.Rel, key)
			if err != nil {
				failures[i] = err
				return nil
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{Catalog: &catalog.Catalog{}, Files: len(files)}
	candidates := make(map[string]struct{})
	for i, r := range results {
		if failures[i] != nil {
			opts.Logger.Warn("skipping file", "package", key, "file", files[i].Rel, "err", failures[i])
			out.Skipped = append(out.Skipped, FileError{File: files[i].Rel, Err: failures[i]})
			observability.Extract().OnFileSkipped(ctx, key, files[i].Rel, failures[i])
			continue
		}
		out.Catalog.Merge(r.Catalog)
		for _, name := range r.Reexports {
			candidates[name] = struct{}{}
		}
	}

	out.Candidates = sortedKeys(candidates)
	out.Reexports = FilterReexports(out.Candidates, manifest.Load(root))

	if collisions := out.Catalog.Collisions(); len(collisions) > 0 {
		opts.Logger.Warn("identifier collisions", "package", key, "count", len(collisions))
	}
	opts.Logger.Debug("extracted package", "package", key, "files", len(files),
		"skipped", len(out.Skipped), "declarations", out.Catalog.Len(), "reexports", out.Reexports)
	observability.Extract().OnExtractComplete(ctx, key, len(files), out.Catalog.Len(), time.Since(start), nil)
	return out, nil
}

// FilterReexports keeps the candidates the manifest declares as
// dependencies, mapped to their registry names.
func FilterReexports(candidates []string, deps manifest.Dependencies) []string {
	kept := make(map[string]struct{})
	for _, c := range candidates {
		if pkg, ok := deps.Resolve(c); ok {
			kept[pkg] = struct{}{}
		}
	}
	return sortedKeys(kept)
}

// Discover lists the .rs files under root in lexical order. Hidden
// directories and target/ build output are skipped, as are symlinks.
func Discover(root string) ([]File, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, err, "package root %s", root)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath, "package root %s is not a directory", root)
	}

	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "target") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || filepath.Ext(path) != ".rs" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, File{Path: path, Rel: filepath.ToSlash(rel)})
		return nil
	})
	return files, err
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
