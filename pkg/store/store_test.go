package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DefaultConfig(filepath.Join(t.TempDir(), "db", FileName)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func str(s string) *string { return &s }
func num(n int) *int       { return &n }

func fn(key, name string, line int) *catalog.Function {
	return &catalog.Function{
		Item: catalog.Item{
			ID:      catalog.ID(key, "src/lib.rs", name, line, catalog.KindFunction),
			Name:    name,
			File:    "src/lib.rs",
			Line:    line,
			EndLine: num(line + 2),
		},
		Signature: "pub fn " + name + "()",
	}
}

func catalogOf(key string, names ...string) *catalog.Catalog {
	c := &catalog.Catalog{}
	for i, n := range names {
		c.Add(fn(key, n, i*10+1))
	}
	return c
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig("x.db").Validate())
	assert.True(t, errors.Is(Config{}.Validate(), errors.ErrCodeInvalidInput))
	assert.Error(t, Config{Path: "x.db"}.Validate())
	assert.Error(t, Config{Path: "x.db", MaxOpenConns: 1, BusyTimeout: -time.Second}.Validate())
}

func TestReplaceIsIdempotentAndKeepsPackageID(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	key := "foo-1.0.0"

	require.NoError(t, s.Replace(ctx, key, "/src/foo-1.0.0", catalogOf(key, "a", "b", "c", "d", "e"), []string{"bar"}))
	first, err := s.Package(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Counts.Functions)
	assert.Equal(t, "foo", first.Name)
	assert.Equal(t, "1.0.0", first.Version)
	assert.Equal(t, []string{"bar"}, first.Reexports)

	require.NoError(t, s.Replace(ctx, key, "/src/foo-1.0.0", catalogOf(key, "a", "b", "c"), nil))
	second, err := s.Package(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Counts.Functions)
	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, second.Reexports)

	decls, err := s.Declarations(ctx, key, catalog.KindFunction)
	require.NoError(t, err)
	require.Len(t, decls, 3)
	assert.Equal(t, "a", decls[0].Header().Name)
	assert.Equal(t, "c", decls[2].Header().Name)
}

func TestReplaceRejectsInvalidKey(t *testing.T) {
	s := openTest(t)
	err := s.Replace(context.Background(), "tokio", "/x", nil, nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidPackage))
}

func TestReplaceDuplicateIDFirstWins(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	key := "dup-0.1.0"
	a := fn(key, "same", 1)
	b := fn(key, "same", 1)
	b.Signature = "pub fn other()"

	require.NoError(t, s.Replace(ctx, key, "/x", &catalog.Catalog{Functions: []*catalog.Function{a, b}}, nil))
	decls, err := s.Declarations(ctx, key, catalog.KindFunction)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "pub fn same()", decls[0].(*catalog.Function).Signature)
}

func TestStructAndEnumRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	key := "shapes-0.2.0"
	c := &catalog.Catalog{
		Structs: []*catalog.Struct{{
			Item:       catalog.Item{ID: catalog.ID(key, "src/lib.rs", "Point", 3, catalog.KindStruct), Name: "Point", File: "src/lib.rs", Line: 3, EndLine: num(6), Docs: str("A point.")},
			Visibility: catalog.VisibilityPublic,
			Fields: []catalog.Field{
				{Name: "x", Type: "f64", Visibility: catalog.VisibilityPublic, Docs: str("Abscissa.")},
				{Name: "y", Type: "f64", Visibility: catalog.VisibilityPrivate},
			},
		}},
		Enums: []*catalog.Enum{{
			Item:       catalog.Item{ID: catalog.ID(key, "src/lib.rs", "Shape", 8, catalog.KindEnum), Name: "Shape", File: "src/lib.rs", Line: 8, EndLine: num(12)},
			Visibility: catalog.VisibilityPublic,
			Variants: []catalog.Variant{
				{Name: "Empty", Kind: catalog.VariantUnit},
				{Name: "Circle", Kind: catalog.VariantTuple, Fields: str("f64")},
				{Name: "Rect", Kind: catalog.VariantStruct, Fields: str("w: f64, h: f64"), Docs: str("Box.")},
			},
		}},
		Constants: []*catalog.Constant{
			{Item: catalog.Item{ID: catalog.ID(key, "src/lib.rs", "MAX", 14, catalog.KindConst), Name: "MAX", File: "src/lib.rs", Line: 14}, ConstKind: catalog.KindConst, Type: "u32", Visibility: catalog.VisibilityPublic},
			{Item: catalog.Item{ID: catalog.ID(key, "src/lib.rs", "COUNT", 15, catalog.KindStatic), Name: "COUNT", File: "src/lib.rs", Line: 15}, ConstKind: catalog.KindStatic, Type: "u32", Visibility: catalog.VisibilityPrivate},
		},
		Impls: []*catalog.Impl{
			{Item: catalog.Item{ID: catalog.ID(key, "src/lib.rs", "Point_Default", 17, catalog.KindImpl), Name: "Point_Default", File: "src/lib.rs", Line: 17, EndLine: num(19)}, SelfType: "Point", Trait: str("Default")},
		},
	}
	require.NoError(t, s.Replace(ctx, key, "/x", c, nil))

	got, err := s.Catalog(ctx, key)
	require.NoError(t, err)
	require.Len(t, got.Structs, 1)
	assert.Equal(t, c.Structs[0], got.Structs[0])
	require.Len(t, got.Enums, 1)
	assert.Equal(t, c.Enums[0], got.Enums[0])
	assert.Equal(t, c.Impls[0], got.Impls[0])
	assert.Equal(t, 2, len(got.Constants))

	statics, err := s.Declarations(ctx, key, catalog.KindStatic)
	require.NoError(t, err)
	require.Len(t, statics, 1)
	assert.Equal(t, "COUNT", statics[0].Header().Name)

	_, err = s.Declarations(ctx, key, catalog.Kind("bogus"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestResolveKey(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	for _, key := range []string{"foo-1.0.0", "foo-2.0.0", "foo-2d-0.1.0", "bar-0.3.0"} {
		require.NoError(t, s.Replace(ctx, key, "/x", nil, nil))
	}

	key, err := s.ResolveKey(ctx, "bar")
	require.NoError(t, err)
	assert.Equal(t, "bar-0.3.0", key)

	key, err = s.ResolveKey(ctx, "foo-2.0.0")
	require.NoError(t, err)
	assert.Equal(t, "foo-2.0.0", key)

	_, err = s.ResolveKey(ctx, "foo")
	assert.True(t, errors.Is(err, errors.ErrCodeAmbiguousReference))
	assert.Contains(t, err.Error(), "foo-1.0.0, foo-2.0.0")

	key, err = s.ResolveKey(ctx, "foo-2d")
	require.NoError(t, err)
	assert.Equal(t, "foo-2d-0.1.0", key)

	_, err = s.ResolveKey(ctx, "baz")
	assert.True(t, errors.Is(err, errors.ErrCodePackageNotFound))
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	key := "foo-1.0.0"
	c := catalogOf(key, "hello")
	require.NoError(t, s.Replace(ctx, key, "/x", c, nil))

	gotKey, decl, err := s.Lookup(ctx, c.Functions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, key, gotKey)
	assert.Equal(t, c.Functions[0], decl)

	_, _, err = s.Lookup(ctx, "00000000")
	assert.True(t, errors.Is(err, errors.ErrCodeItemNotFound))

	_, _, err = s.Lookup(ctx, "nothex!!")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestLookupCollisionPrefersLowerKey(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	shared := "0a0b0c0d"
	mk := func(sig string) *catalog.Catalog {
		return &catalog.Catalog{Functions: []*catalog.Function{{
			Item:      catalog.Item{ID: shared, Name: "f", File: "src/lib.rs", Line: 1},
			Signature: sig,
		}}}
	}
	require.NoError(t, s.Replace(ctx, "zeta-1.0.0", "/z", mk("fn z()"), nil))
	require.NoError(t, s.Replace(ctx, "alpha-1.0.0", "/a", mk("fn a()"), nil))

	key, decl, err := s.Lookup(ctx, shared)
	require.NoError(t, err)
	assert.Equal(t, "alpha-1.0.0", key)
	assert.Equal(t, "fn a()", decl.(*catalog.Function).Signature)
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	key := "foo-1.0.0"
	c := catalogOf(key, "a")
	require.NoError(t, s.Replace(ctx, key, "/x", c, []string{"bar"}))

	require.NoError(t, s.Delete(ctx, key))
	ok, err := s.HasKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM functions").Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reexports").Scan(&n))
	assert.Zero(t, n)

	assert.True(t, errors.Is(s.Delete(ctx, key), errors.ErrCodePackageNotFound))
}

func TestPackagesAndKeys(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	require.NoError(t, s.Replace(ctx, "b-1.0.0", "/b", catalogOf("b-1.0.0", "x"), nil))
	require.NoError(t, s.Replace(ctx, "a-1.0.0", "/a", nil, []string{"b"}))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1.0.0", "b-1.0.0"}, keys)

	pkgs, err := s.Packages(ctx)
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, []string{"b"}, pkgs[0].Reexports)
	assert.Equal(t, 1, pkgs[1].Counts.Total())
	assert.False(t, pkgs[1].IndexedAt.IsZero())

	path, err := s.Path(ctx, "a-1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "/a", path)

	_, err = s.Package(ctx, "c-1.0.0")
	assert.True(t, errors.IsNotFound(err))
}

func TestReexportClosure(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	// root -> mid -> leaf, root -> other (two versions), mid -> missing
	require.NoError(t, s.Replace(ctx, "root-1.0.0", "/r", nil, []string{"mid", "other"}))
	require.NoError(t, s.Replace(ctx, "mid-1.0.0", "/m", nil, []string{"leaf", "missing", "root"}))
	require.NoError(t, s.Replace(ctx, "leaf-1.0.0", "/l", nil, nil))
	require.NoError(t, s.Replace(ctx, "other-1.0.0", "/o1", nil, nil))
	require.NoError(t, s.Replace(ctx, "other-1.1.0", "/o2", nil, nil))

	keys, err := s.ReexportClosure(ctx, "root-1.0.0", catalog.Limits{})
	require.NoError(t, err)
	assert.Equal(t, []string{"root-1.0.0", "mid-1.0.0", "other-1.1.0", "leaf-1.0.0"}, keys)

	keys, err = s.ReexportClosure(ctx, "root-1.0.0", catalog.Limits{MaxDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"root-1.0.0", "mid-1.0.0", "other-1.1.0"}, keys)

	keys, err = s.ReexportClosure(ctx, "root-1.0.0", catalog.Limits{MaxPackages: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"root-1.0.0", "mid-1.0.0"}, keys)

	names, err := s.ReexportNames(ctx, []string{"root-1.0.0", "mid-1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, []string{"leaf", "mid", "missing", "other", "root"}, names)

	_, err = s.ReexportClosure(ctx, "nope-1.0.0", catalog.Limits{})
	assert.True(t, errors.Is(err, errors.ErrCodePackageNotFound))
}

func TestReexportGraph(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	require.NoError(t, s.Replace(ctx, "root-1.0.0", "/r", nil, []string{"mid", "other"}))
	require.NoError(t, s.Replace(ctx, "mid-1.0.0", "/m", nil, []string{"leaf", "root"}))
	require.NoError(t, s.Replace(ctx, "leaf-1.0.0", "/l", nil, nil))
	require.NoError(t, s.Replace(ctx, "other-1.0.0", "/o", nil, nil))

	g, err := s.ReexportGraph(ctx, "root-1.0.0", catalog.Limits{})
	require.NoError(t, err)
	assert.Equal(t, "root-1.0.0", g.Root)
	assert.Equal(t, []string{"root-1.0.0", "mid-1.0.0", "other-1.0.0", "leaf-1.0.0"}, g.Keys)
	assert.Equal(t, []Edge{
		{From: "root-1.0.0", To: "mid-1.0.0"},
		{From: "root-1.0.0", To: "other-1.0.0"},
		{From: "mid-1.0.0", To: "leaf-1.0.0"},
		{From: "mid-1.0.0", To: "root-1.0.0"},
	}, g.Edges)

	g, err = s.ReexportGraph(ctx, "root-1.0.0", catalog.Limits{MaxPackages: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"root-1.0.0", "mid-1.0.0"}, g.Keys)
	assert.Equal(t, []Edge{
		{From: "root-1.0.0", To: "mid-1.0.0"},
		{From: "mid-1.0.0", To: "root-1.0.0"},
	}, g.Edges)

	g, err = s.ReexportGraph(ctx, "leaf-1.0.0", catalog.Limits{})
	require.NoError(t, err)
	assert.Equal(t, []string{"leaf-1.0.0"}, g.Keys)
	assert.Empty(t, g.Edges)
}
