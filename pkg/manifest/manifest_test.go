package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cargoToml = `
[package]
name = "foo"
version = "1.2.3"

[dependencies]
serde = { version = "1", features = ["derive"] }
serde_json = "1"
futures_util = { package = "futures-util", version = "0.3" }

[dev-dependencies]
tokio-test = "0.4"

[build-dependencies]
cc = "1"

[target.'cfg(unix)'.dependencies]
libc = "0.2"
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestRead(t *testing.T) {
	m, err := Read(writeManifest(t, cargoToml))
	require.NoError(t, err)

	assert.Equal(t, "foo", m.Name)
	assert.Equal(t, "1.2.3", m.Version)
	assert.Equal(t,
		[]string{"cc", "futures_util", "libc", "serde", "serde_json", "tokio-test"},
		m.Dependencies.Names())
	assert.Equal(t, "futures-util", m.Dependencies["futures_util"])
}

func TestResolveNormalizesUnderscores(t *testing.T) {
	deps := Load(writeManifest(t, cargoToml))

	pkg, ok := deps.Resolve("serde-json")
	assert.True(t, ok)
	assert.Equal(t, "serde_json", pkg)

	pkg, ok = deps.Resolve("futures-util")
	assert.True(t, ok)
	assert.Equal(t, "futures-util", pkg)

	assert.True(t, deps.Contains("serde"))
	assert.False(t, deps.Contains("rand"))
}

func TestLoadMissingManifest(t *testing.T) {
	deps := Load(t.TempDir())
	assert.NotNil(t, deps)
	assert.Empty(t, deps)
}

func TestLoadMalformedManifest(t *testing.T) {
	deps := Load(writeManifest(t, "[dependencies\nserde = "))
	assert.NotNil(t, deps)
	assert.Empty(t, deps)
}

func TestReadWorkspaceInheritedVersion(t *testing.T) {
	m, err := Read(writeManifest(t, `
[package]
name = "bar"
version.workspace = true

[dependencies]
anyhow = { workspace = true }
`))
	require.NoError(t, err)
	assert.Equal(t, "bar", m.Name)
	assert.Empty(t, m.Version)
	assert.True(t, m.Dependencies.Contains("anyhow"))
}
