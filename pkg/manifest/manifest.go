// Package manifest reads the dependency names a crate declares in its
// Cargo.toml.
package manifest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/crateindex/pkg/catalog"
)

// FileName is the manifest file name at a package root.
const FileName = "Cargo.toml"

// Manifest is the subset of Cargo.toml this tool reads.
type Manifest struct {
	Name         string
	Version      string
	Dependencies Dependencies
}

// Dependencies maps each declared dependency key to the registry package it
// refers to. The two differ for renamed dependencies
// (`foo = { package = "bar" }`).
type Dependencies map[string]string

// Names returns the declared dependency keys, sorted.
func (d Dependencies) Names() []string {
	names := make([]string, 0, len(d))
	for k := range d {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether name is declared as a dependency.
func (d Dependencies) Contains(name string) bool {
	_, ok := d.Resolve(name)
	return ok
}

// Resolve maps a candidate name from a `pub use` path (already normalized to
// dashes) to the registry package it refers to. Declared keys are compared
// with underscores normalized, since Rust paths cannot contain dashes.
func (d Dependencies) Resolve(candidate string) (string, bool) {
	if pkg, ok := d[candidate]; ok {
		return pkg, true
	}
	want := catalog.NormalizeName(candidate)
	for k, pkg := range d {
		if catalog.NormalizeName(k) == want {
			return pkg, true
		}
	}
	return "", false
}

// Read parses the manifest at root. Errors are returned as-is; most callers
// want [Load], which tolerates a missing or malformed manifest.
func Read(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		return nil, err
	}

	var cargo cargoFile
	if err := toml.Unmarshal(data, &cargo); err != nil {
		return nil, err
	}

	deps := make(Dependencies)
	add := func(tables ...map[string]any) {
		for _, table := range tables {
			for key, dep := range table {
				deps[key] = packageName(key, dep)
			}
		}
	}
	add(cargo.Dependencies, cargo.DevDependencies, cargo.BuildDependencies)
	for _, target := range cargo.Target {
		add(target.Dependencies, target.DevDependencies, target.BuildDependencies)
	}

	return &Manifest{
		Name:         stringValue(cargo.Package.Name),
		Version:      stringValue(cargo.Package.Version),
		Dependencies: deps,
	}, nil
}

// Load returns the declared dependencies at root: regular, dev and build
// dependencies combined, including target-specific tables. A missing or
// unparseable manifest yields an empty set.
func Load(root string) Dependencies {
	m, err := Read(root)
	if err != nil {
		return Dependencies{}
	}
	return m.Dependencies
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func packageName(key string, dep any) string {
	if table, ok := dep.(map[string]any); ok {
		if pkg, ok := table["package"].(string); ok && pkg != "" {
			return pkg
		}
	}
	return key
}

type depTables struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

type cargoFile struct {
	Package struct {
		Name    any `toml:"name"`
		Version any `toml:"version"` // a table under workspace inheritance
	} `toml:"package"`
	Dependencies      map[string]any       `toml:"dependencies"`
	DevDependencies   map[string]any       `toml:"dev-dependencies"`
	BuildDependencies map[string]any       `toml:"build-dependencies"`
	Target            map[string]depTables `toml:"target"`
}
