package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/pipeline"
	"github.com/matzehuels/crateindex/pkg/store"
)

// stubResolver serves a single crate, "tiny" 0.1.0.
type stubResolver struct{ dir string }

func (s stubResolver) ResolveLatest(_ context.Context, name string) (string, error) {
	if name != "tiny" {
		return "", errors.New(errors.ErrCodePackageNotFound, "crate %s not found", name)
	}
	return "0.1.0", nil
}

func (s stubResolver) Fetch(_ context.Context, name, version string) (string, error) {
	if name != "tiny" {
		return "", errors.New(errors.ErrCodeNetwork, "download failed")
	}
	root := filepath.Join(s.dir, catalog.Key(name, version))
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		return "", err
	}
	src := "/// Adds one.\npub fn inc(x: u32) -> u32 {\n    x + 1\n}\n\npub struct Tiny;\n"
	if err := os.WriteFile(filepath.Join(root, "src", "lib.rs"), []byte(src), 0o644); err != nil {
		return "", err
	}
	return root, os.WriteFile(filepath.Join(root, "README.md"), []byte("tiny crate"), 0o644)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.Open(context.Background(), store.DefaultConfig(filepath.Join(t.TempDir(), store.FileName)))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := log.New(io.Discard)
	runner := pipeline.NewRunner(st, stubResolver{dir: t.TempDir()}, pipeline.Options{Workers: 2}, logger)
	srv := httptest.NewServer(New(runner, logger).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestLatest(t *testing.T) {
	srv := newTestServer(t)
	var rel map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/latest/tiny", &rel))
	assert.Equal(t, "tiny-0.1.0", rel["key"])
	assert.Equal(t, "tiny", rel["name"])
	assert.Equal(t, "0.1.0", rel["latest_version"])

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/latest/ghost", nil))
}

func TestFetchAndQuery(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/packages/", "application/json", bytes.NewBufferString(`{"name":"tiny"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum struct {
		Indexed []struct {
			Key string `json:"key"`
		} `json:"indexed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	require.Len(t, sum.Indexed, 1)
	assert.Equal(t, "tiny-0.1.0", sum.Indexed[0].Key)

	var pkgs []map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/packages/", &pkgs))
	assert.Len(t, pkgs, 1)

	var listing struct {
		Entries []struct {
			Package     string         `json:"package"`
			Declaration map[string]any `json:"declaration"`
		} `json:"entries"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/packages/tiny/items?kind=functions&q=inc", &listing))
	require.Len(t, listing.Entries, 1)
	assert.Equal(t, "fn inc(x: u32) -> u32", listing.Entries[0].Declaration["signature"])
	id := listing.Entries[0].Declaration["id"].(string)

	var shown struct {
		Package string `json:"package"`
		Kind    string `json:"kind"`
		Source  struct {
			Lines []string `json:"lines"`
		} `json:"source"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/items/"+id, &shown))
	assert.Equal(t, "tiny-0.1.0", shown.Package)
	assert.Equal(t, "fn", shown.Kind)
	assert.Len(t, shown.Source.Lines, 3)

	var ex struct {
		Lines []string `json:"lines"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/packages/tiny-0.1.0/files/src/lib.rs?start=1&end=1", &ex))
	assert.Equal(t, []string{"/// Adds one."}, ex.Lines)

	var rd map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/packages/tiny/readme", &rd))
	assert.Equal(t, "tiny crate", rd["content"])

	var files map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/packages/tiny/files", &files))
	assert.Len(t, files["files"], 2)

	var found struct {
		Matches []map[string]any `json:"matches"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/packages/tiny/search?q=x%20%2B%201", &found))
	assert.Len(t, found.Matches, 1)
}

func TestErrorResponses(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path   string
		status int
		code   errors.Code
	}{
		{"/items/ffffffff", http.StatusNotFound, errors.ErrCodeItemNotFound},
		{"/items/zz", http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"/packages/ghost", http.StatusNotFound, errors.ErrCodePackageNotFound},
		{"/packages/tiny/items?kind=widgets", http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"/packages/tiny/search", http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"/packages/tiny/files/src/lib.rs?start=x", http.StatusBadRequest, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var body ErrorResponse
			assert.Equal(t, tt.status, getJSON(t, srv.URL+tt.path, &body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestGraph(t *testing.T) {
	srv := newTestServer(t)

	var g struct {
		Root     string   `json:"root"`
		Packages []string `json:"packages"`
		Counts   map[string]struct {
			Functions int `json:"functions"`
		} `json:"counts"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/packages/tiny/graph", &g))
	assert.Equal(t, "tiny-0.1.0", g.Root)
	assert.Equal(t, []string{"tiny-0.1.0"}, g.Packages)
	assert.Equal(t, 1, g.Counts["tiny-0.1.0"].Functions)

	resp, err := http.Get(srv.URL + "/packages/tiny/graph?format=dot")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/vnd.graphviz", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "digraph reexports")
	assert.Contains(t, string(body), `"tiny-0.1.0"`)

	var bad ErrorResponse
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/packages/tiny/graph?format=png", &bad))
	assert.Equal(t, errors.ErrCodeInvalidInput, bad.Code)
}

func TestFetchRejectsBadBody(t *testing.T) {
	srv := newTestServer(t)
	for _, body := range []string{`{`, `{"name":"tiny","bogus":1}`, `{"name":"no spaces"}`} {
		resp, err := http.Post(srv.URL+"/packages/", "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestDeletePackage(t *testing.T) {
	srv := newTestServer(t)
	var pkg map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/packages/tiny", &pkg))

	del := func() int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/packages/tiny-0.1.0", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusNoContent, del())
	assert.Equal(t, http.StatusNotFound, del())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New(errors.ErrCodeFileNotFound, "x"), http.StatusNotFound},
		{errors.New(errors.ErrCodeAmbiguousReference, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeInvalidPath, "x"), http.StatusBadRequest},
		{errors.New(errors.ErrCodeNetwork, "x"), http.StatusBadGateway},
		{errors.New(errors.ErrCodeStorage, "x"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", context.Canceled), http.StatusServiceUnavailable},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}
}
