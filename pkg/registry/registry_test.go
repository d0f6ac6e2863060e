package registry

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/crateindex/pkg/cache"
	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/integrations/crates"
)

func crateArchive(t *testing.T, key string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: key + "/" + name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fakeRegistry struct {
	server    *httptest.Server
	downloads atomic.Int32
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	f := &fakeRegistry{}
	archive := crateArchive(t, "foo-1.2.0", map[string]string{
		"Cargo.toml": "[package]\nname = \"foo\"\nversion = \"1.2.0\"\n",
		"src/lib.rs": "pub fn foo() {}\n",
	})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/crates/foo", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"crate": map[string]any{
				"name": "foo", "max_version": "1.3.0-rc.1", "max_stable_version": "1.2.0",
				"description": "Foo things", "repository": "git+https://github.com/example/foo.git", "downloads": 1234,
			},
		})
	})
	mux.HandleFunc("/dl/foo/foo-1.2.0.crate", func(w http.ResponseWriter, r *http.Request) {
		f.downloads.Add(1)
		w.Write(archive)
	})
	mux.HandleFunc("/dl/foo/foo-6.6.6.crate", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a tarball"))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRegistry) resolver(t *testing.T) *Crates {
	client := crates.NewClient(cache.NewNullCache(), time.Hour).
		WithEndpoints(f.server.URL+"/api", f.server.URL+"/dl")
	return NewCrates(client, filepath.Join(t.TempDir(), "crates"), CratesOptions{Logger: log.New(os.Stderr)})
}

func TestCratesResolveLatest(t *testing.T) {
	r := newFakeRegistry(t).resolver(t)

	v, err := r.ResolveLatest(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", v)

	_, err = r.ResolveLatest(context.Background(), "missing")
	assert.True(t, errors.Is(err, errors.ErrCodePackageNotFound))

	_, err = r.ResolveLatest(context.Background(), "../etc")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidPackage))
}

func TestCratesDescribe(t *testing.T) {
	r := newFakeRegistry(t).resolver(t)

	info, err := r.Describe(context.Background(), "foo")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", info.LatestVersion)
	assert.Equal(t, "Foo things", info.Description)
	assert.Equal(t, "https://github.com/example/foo", info.Repository)
	assert.Equal(t, 1234, info.Downloads)

	_, err = r.Describe(context.Background(), "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestCratesFetchIsIdempotent(t *testing.T) {
	reg := newFakeRegistry(t)
	r := reg.resolver(t)
	ctx := context.Background()

	dir, err := r.Fetch(ctx, "foo", "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, r.Path("foo-1.2.0"), dir)
	assert.FileExists(t, filepath.Join(dir, "src", "lib.rs"))
	assert.FileExists(t, filepath.Join(dir, "Cargo.toml"))

	again, err := r.Fetch(ctx, "foo", "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, dir, again)
	assert.Equal(t, int32(1), reg.downloads.Load())

	entries, err := os.ReadDir(r.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files should be left behind")
	assert.Equal(t, "foo-1.2.0", entries[0].Name())
}

func TestCratesFetchErrors(t *testing.T) {
	r := newFakeRegistry(t).resolver(t)
	ctx := context.Background()

	_, err := r.Fetch(ctx, "foo", "9.9.9")
	assert.True(t, errors.Is(err, errors.ErrCodePackageNotFound))

	_, err = r.Fetch(ctx, "foo", "6.6.6")
	assert.True(t, errors.Is(err, errors.ErrCodeArchiveFormat))
	assert.NoDirExists(t, r.Path("foo-6.6.6"))

	_, err = r.Fetch(ctx, "foo", "latest")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestCratesRemove(t *testing.T) {
	r := newFakeRegistry(t).resolver(t)
	dir, err := r.Fetch(context.Background(), "foo", "1.2.0")
	require.NoError(t, err)

	require.NoError(t, r.Remove("foo-1.2.0"))
	assert.NoDirExists(t, dir)
	require.NoError(t, r.Remove("foo-1.2.0"))
	assert.Error(t, r.Remove("foo"))
}
