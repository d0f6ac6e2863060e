package crawl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/store"
)

type fakePkg struct {
	version string
	uses    []string // names re-exported with `pub use`
	deps    []string // names declared in Cargo.toml
}

type fakeRegistry struct {
	dir  string
	pkgs map[string]fakePkg

	mu      sync.Mutex
	fetches map[string]int
}

func newFakeRegistry(t *testing.T, pkgs map[string]fakePkg) *fakeRegistry {
	return &fakeRegistry{dir: t.TempDir(), pkgs: pkgs, fetches: map[string]int{}}
}

func (f *fakeRegistry) ResolveLatest(_ context.Context, name string) (string, error) {
	p, ok := f.pkgs[name]
	if !ok {
		return "", errors.New(errors.ErrCodePackageNotFound, "crate %s not found", name)
	}
	return p.version, nil
}

func (f *fakeRegistry) Fetch(_ context.Context, name, version string) (string, error) {
	key := catalog.Key(name, version)
	f.mu.Lock()
	f.fetches[key]++
	f.mu.Unlock()

	p, ok := f.pkgs[name]
	if !ok {
		return "", errors.New(errors.ErrCodeNetwork, "download %s failed", key)
	}
	dir := filepath.Join(f.dir, key)
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		return "", err
	}

	var src strings.Builder
	for _, u := range p.uses {
		fmt.Fprintf(&src, "pub use %s::Item;\n", strings.ReplaceAll(u, "-", "_"))
	}
	fmt.Fprintf(&src, "\n/// Entry point of %s.\npub fn run() {}\n", name)

	var manifest strings.Builder
	fmt.Fprintf(&manifest, "[package]\nname = %q\nversion = %q\n\n[dependencies]\n", name, version)
	for _, d := range p.deps {
		fmt.Fprintf(&manifest, "%s = \"1\"\n", d)
	}

	if err := os.WriteFile(filepath.Join(dir, "src", "lib.rs"), []byte(src.String()), 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(manifest.String()), 0o644); err != nil {
		return "", err
	}
	return dir, nil
}

func (f *fakeRegistry) fetchCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[key]
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.DefaultConfig(filepath.Join(t.TempDir(), store.FileName)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quiet() *log.Logger { return log.New(io.Discard) }

func opts(limits catalog.Limits) Options {
	return Options{Workers: 4, Limits: limits, Logger: quiet()}
}

func keys(outcomes []Outcome) []string {
	var out []string
	for _, o := range outcomes {
		out = append(out, o.Key)
	}
	return out
}

// diamond: a re-exports b and c, both re-export d.
func diamond() map[string]fakePkg {
	return map[string]fakePkg{
		"a": {version: "1.0.0", uses: []string{"b", "c"}, deps: []string{"b", "c"}},
		"b": {version: "0.2.0", uses: []string{"d"}, deps: []string{"d"}},
		"c": {version: "0.3.0", uses: []string{"d"}, deps: []string{"d"}},
		"d": {version: "4.0.0"},
	}
}

func TestCrawlDiamondIndexesSharedPackageOnce(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry(t, diamond())
	s := openStore(t)

	sum, err := New(reg, s).Crawl(ctx, "a", "", opts(catalog.Limits{}))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a-1.0.0", "b-0.2.0", "c-0.3.0", "d-4.0.0"}, keys(sum.Indexed))
	assert.Equal(t, 3, sum.Waves)
	assert.Equal(t, 1, reg.fetchCount("d-4.0.0"))
	assert.Empty(t, sum.Skipped)
	assert.False(t, sum.Truncated)
	assert.NotEmpty(t, sum.RunID)

	stored, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	re, err := s.Reexports(ctx, "a-1.0.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, re)
}

func TestCrawlTreatsDashAndUnderscoreAsOneName(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry(t, map[string]fakePkg{
		"serde-json": {version: "1.0.0", uses: []string{"helper"}, deps: []string{"helper"}},
		"helper":     {version: "0.1.0", uses: []string{"serde-json"}, deps: []string{"serde_json"}},
	})
	s := openStore(t)

	sum, err := New(reg, s).Crawl(ctx, "serde-json", "", opts(catalog.Limits{}))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"serde-json-1.0.0", "helper-0.1.0"}, keys(sum.Indexed))
	assert.Empty(t, sum.Skipped, "serde_json is the seed under its manifest spelling")
	assert.Equal(t, 1, reg.fetchCount("serde-json-1.0.0"))
}

func TestCrawlFiltersUndeclaredReexports(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry(t, map[string]fakePkg{
		"a":        {version: "1.0.0", uses: []string{"b", "internal"}, deps: []string{"b"}},
		"b":        {version: "1.0.0"},
		"internal": {version: "1.0.0"},
	})
	s := openStore(t)

	sum, err := New(reg, s).Crawl(ctx, "a", "", opts(catalog.Limits{}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a-1.0.0", "b-1.0.0"}, keys(sum.Indexed))
	assert.Zero(t, reg.fetchCount("internal-1.0.0"))

	re, err := s.Reexports(ctx, "a-1.0.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, re)
}

func TestCrawlSkipsFailedPackages(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry(t, map[string]fakePkg{
		"a": {version: "1.0.0", uses: []string{"b", "gone"}, deps: []string{"b", "gone"}},
		"b": {version: "1.0.0"},
	})
	s := openStore(t)

	sum, err := New(reg, s).Crawl(ctx, "a", "", opts(catalog.Limits{}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a-1.0.0", "b-1.0.0"}, keys(sum.Indexed))
	require.Len(t, sum.Skipped, 1)
	assert.Equal(t, "gone", sum.Skipped[0].Name)
	assert.Equal(t, 1, sum.Skipped[0].Depth)
	assert.Contains(t, sum.Skipped[0].Error, "not found")
}

func TestCrawlSeedFailureIsReturned(t *testing.T) {
	reg := newFakeRegistry(t, map[string]fakePkg{})
	sum, err := New(reg, openStore(t)).Crawl(context.Background(), "nope", "", opts(catalog.Limits{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodePackageNotFound))
	require.NotNil(t, sum)
	assert.Len(t, sum.Skipped, 1)
	assert.Empty(t, sum.Indexed)
}

func TestCrawlExplicitVersion(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry(t, map[string]fakePkg{"a": {version: "1.0.0"}})
	s := openStore(t)

	sum, err := New(reg, s).Crawl(ctx, "a", "0.9.0", opts(catalog.Limits{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a-0.9.0"}, keys(sum.Indexed))
	assert.Equal(t, 1, sum.Indexed[0].Declarations)
}

func TestCrawlAlreadyIndexed(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry(t, diamond())
	s := openStore(t)
	c := New(reg, s)

	_, err := c.Crawl(ctx, "a", "", opts(catalog.Limits{}))
	require.NoError(t, err)

	sum, err := c.Crawl(ctx, "a", "", opts(catalog.Limits{}))
	require.NoError(t, err)
	assert.Empty(t, sum.Indexed)
	assert.Equal(t, []string{"a-1.0.0"}, sum.AlreadyIndexed)
	assert.Equal(t, 1, reg.fetchCount("a-1.0.0"))
}

func TestCrawlDepthLimit(t *testing.T) {
	reg := newFakeRegistry(t, diamond())
	sum, err := New(reg, openStore(t)).Crawl(context.Background(), "a", "", opts(catalog.Limits{MaxDepth: 1}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a-1.0.0", "b-0.2.0", "c-0.3.0"}, keys(sum.Indexed))
	assert.True(t, sum.Truncated)
	assert.Zero(t, reg.fetchCount("d-4.0.0"))
}

func TestCrawlPackageLimit(t *testing.T) {
	reg := newFakeRegistry(t, diamond())
	sum, err := New(reg, openStore(t)).Crawl(context.Background(), "a", "", opts(catalog.Limits{MaxPackages: 2}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1.0.0", "b-0.2.0"}, keys(sum.Indexed))
	assert.True(t, sum.Truncated)
	assert.Zero(t, reg.fetchCount("c-0.3.0"))
}

type failingStore struct {
	*store.Store
	failOn string
}

func (f *failingStore) Replace(ctx context.Context, key, path string, cat *catalog.Catalog, reexports []string) error {
	if key == f.failOn {
		return fmt.Errorf("disk full")
	}
	return f.Store.Replace(ctx, key, path, cat, reexports)
}

func TestCrawlCommitFailureAborts(t *testing.T) {
	ctx := context.Background()
	reg := newFakeRegistry(t, diamond())
	s := openStore(t)

	sum, err := New(reg, &failingStore{Store: s, failOn: "b-0.2.0"}).Crawl(ctx, "a", "", opts(catalog.Limits{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeStorage))
	assert.Equal(t, []string{"a-1.0.0"}, keys(sum.Indexed))

	ok, err := s.HasKey(ctx, "a-1.0.0")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCrawlCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reg := newFakeRegistry(t, diamond())
	_, err := New(reg, openStore(t)).Crawl(ctx, "a", "", opts(catalog.Limits{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{}.WithDefaults()
	assert.Positive(t, o.Workers)
	assert.NotNil(t, o.Logger)
	assert.NotNil(t, o.Extractor)
}
