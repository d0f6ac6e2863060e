package pkgfs

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/crateindex/pkg/errors"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestJoin(t *testing.T) {
	root := t.TempDir()
	write(t, root, "src/lib.rs", "fn a() {}\n")

	path, err := Join(root, "src/lib.rs")
	require.NoError(t, err)
	assert.Equal(t, "lib.rs", filepath.Base(path))

	for _, rel := range []string{"", "../etc/passwd", "src/../../x", "/etc/passwd", `src\lib.rs`} {
		_, err := Join(root, rel)
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidPath), "Join(%q) = %v", rel, err)
	}

	_, err = Join(root, "src/missing.rs")
	assert.True(t, errors.Is(err, errors.ErrCodeFileNotFound))
}

func TestJoinRejectsEscapingSymlink(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	write(t, outside, "secret.txt", "s3cret")
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	_, err := Join(root, "link.txt")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidPath))
}

func TestReadLines(t *testing.T) {
	root := t.TempDir()
	write(t, root, "src/lib.rs", "one\ntwo\nthree\nfour\nfive\n")

	ex, err := ReadLines(root, "src/lib.rs", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three", "four"}, ex.Lines)
	assert.Equal(t, 2, ex.Start)
	assert.Equal(t, 4, ex.End)
	assert.Equal(t, 5, ex.Total)
	assert.False(t, ex.Truncated)

	ex, err = ReadLines(root, "src/lib.rs", 0, 99)
	require.NoError(t, err)
	assert.Len(t, ex.Lines, 5)
	assert.Equal(t, 5, ex.End)

	ex, err = ReadLines(root, "src/lib.rs", 9, 12)
	require.NoError(t, err)
	assert.Empty(t, ex.Lines)

	_, err = ReadLines(root, "src/lib.rs", 4, 2)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestReadLinesDefaultWindow(t *testing.T) {
	root := t.TempDir()
	write(t, root, "big.rs", strings.Repeat("x\n", DefaultWindow+10))

	ex, err := ReadLines(root, "big.rs", 1, 0)
	require.NoError(t, err)
	assert.Len(t, ex.Lines, DefaultWindow)
	assert.True(t, ex.Truncated)

	ex, err = ReadLines(root, "big.rs", 20, 0)
	require.NoError(t, err)
	assert.Len(t, ex.Lines, DefaultWindow-9)
	assert.False(t, ex.Truncated)
}

func TestReadme(t *testing.T) {
	root := t.TempDir()
	_, _, err := Readme(root)
	assert.True(t, errors.Is(err, errors.ErrCodeFileNotFound))

	write(t, root, "readme.txt", "lower")
	name, content, err := Readme(root)
	require.NoError(t, err)
	assert.Equal(t, "readme.txt", name)
	assert.Equal(t, "lower", content)

	write(t, root, "README.markdown", "# Title")
	name, _, err = Readme(root)
	require.NoError(t, err)
	assert.Equal(t, "README.markdown", name)
}

func TestList(t *testing.T) {
	root := t.TempDir()
	write(t, root, "Cargo.toml", "")
	write(t, root, "src/lib.rs", "")
	write(t, root, "src/gen/out.rs", "")
	write(t, root, "target/debug/x", "")
	write(t, root, ".git/HEAD", "")
	write(t, root, ".gitignore", "src/gen/\n")

	files, truncated, err := List(root, 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, []string{"Cargo.toml", "src/lib.rs"}, files)

	files, truncated, err = List(root, 1)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, []string{"Cargo.toml"}, files)

	_, _, err = List(filepath.Join(root, "nope"), 0)
	assert.True(t, errors.IsNotFound(err))
}

func TestGrep(t *testing.T) {
	root := t.TempDir()
	write(t, root, "src/a.rs", "pub fn alpha() {}\nfn beta() {}\n")
	write(t, root, "src/b.rs", "pub fn gamma() {}\n")
	write(t, root, "README.md", "pub fn not_rust() {}\n")

	matches, truncated, err := Grep(root, regexp.MustCompile(`^pub fn`), 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, []Match{
		{File: "src/a.rs", Line: 1, Text: "pub fn alpha() {}"},
		{File: "src/b.rs", Line: 1, Text: "pub fn gamma() {}"},
	}, matches)

	matches, truncated, err = Grep(root, regexp.MustCompile(`fn`), 2)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, matches, 2)
}
