package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
)

// Package is a stored package row with per-kind declaration counts.
type Package struct {
	ID        int64          `json:"-"`
	Key       string         `json:"key"`
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	Path      string         `json:"path"`
	IndexedAt time.Time      `json:"indexed_at"`
	Counts    catalog.Counts `json:"counts"`
	Reexports []string       `json:"reexports"`
}

const packageCols = `p.id, p.key, p.name, p.version, p.path, p.indexed_at,
	(SELECT COUNT(*) FROM functions WHERE package_id = p.id),
	(SELECT COUNT(*) FROM structs WHERE package_id = p.id),
	(SELECT COUNT(*) FROM enums WHERE package_id = p.id),
	(SELECT COUNT(*) FROM traits WHERE package_id = p.id),
	(SELECT COUNT(*) FROM macros WHERE package_id = p.id),
	(SELECT COUNT(*) FROM type_aliases WHERE package_id = p.id),
	(SELECT COUNT(*) FROM constants WHERE package_id = p.id),
	(SELECT COUNT(*) FROM impls WHERE package_id = p.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanPackage(row scanner) (*Package, error) {
	var p Package
	var indexedAt string
	c := &p.Counts
	if err := row.Scan(&p.ID, &p.Key, &p.Name, &p.Version, &p.Path, &indexedAt,
		&c.Functions, &c.Structs, &c.Enums, &c.Traits, &c.Macros, &c.TypeAliases, &c.Constants, &c.Impls); err != nil {
		return nil, err
	}
	p.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	return &p, nil
}

// Packages returns every stored package ordered by key.
func (s *Store) Packages(ctx context.Context) ([]*Package, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+packageCols+" FROM packages p ORDER BY p.key")
	if err != nil {
		return nil, storageErr(err, "list packages")
	}
	defer rows.Close()

	var out []*Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, storageErr(err, "scan package")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list packages")
	}
	for _, p := range out {
		if p.Reexports, err = s.Reexports(ctx, p.Key); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Package returns the row of key.
func (s *Store) Package(ctx context.Context, key string) (*Package, error) {
	p, err := scanPackage(s.db.QueryRowContext(ctx, "SELECT "+packageCols+" FROM packages p WHERE p.key = ?", key))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodePackageNotFound, "package %s is not indexed", key)
	}
	if err != nil {
		return nil, storageErr(err, "load package %s", key)
	}
	if p.Reexports, err = s.Reexports(ctx, key); err != nil {
		return nil, err
	}
	return p, nil
}

// HasKey reports whether key is stored.
func (s *Store) HasKey(ctx context.Context, key string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM packages WHERE key = ?", key).Scan(&n); err != nil {
		return false, storageErr(err, "check %s", key)
	}
	return n > 0, nil
}

// Keys returns every stored package key, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return s.strings(ctx, "SELECT key FROM packages ORDER BY key")
}

// Path returns the source directory recorded for key.
func (s *Store) Path(ctx context.Context, key string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, "SELECT path FROM packages WHERE key = ?", key).Scan(&path)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", errors.New(errors.ErrCodePackageNotFound, "package %s is not indexed", key)
	}
	if err != nil {
		return "", storageErr(err, "load path of %s", key)
	}
	return path, nil
}

// Reexports returns the re-exported package names stored for key, sorted.
func (s *Store) Reexports(ctx context.Context, key string) ([]string, error) {
	return s.strings(ctx, `
		SELECT r.name FROM reexports r JOIN packages p ON p.id = r.package_id
		WHERE p.key = ? ORDER BY r.name`, key)
}

// ResolveKey maps a package reference to a stored key. An exact key match
// wins; otherwise ref is treated as a bare name and matched against
// "ref-<digit>..." keys. No match reports PACKAGE_NOT_FOUND and several
// matches AMBIGUOUS_REFERENCE.
func (s *Store) ResolveKey(ctx context.Context, ref string) (string, error) {
	keys, err := s.Candidates(ctx, ref)
	if err != nil {
		return "", err
	}
	switch len(keys) {
	case 0:
		return "", errors.New(errors.ErrCodePackageNotFound, "package %s is not indexed", ref)
	case 1:
		return keys[0], nil
	}
	return "", errors.New(errors.ErrCodeAmbiguousReference,
		"%s matches %d indexed versions (%s); use an exact key", ref, len(keys), strings.Join(keys, ", "))
}

// Candidates returns the stored keys ref may refer to: the exact key when
// stored, else every stored version of the bare name, sorted.
func (s *Store) Candidates(ctx context.Context, ref string) ([]string, error) {
	ok, err := s.HasKey(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ok {
		return []string{ref}, nil
	}
	keys, err := s.strings(ctx, "SELECT key FROM packages WHERE key GLOB ? ORDER BY key", globEscape(ref)+"-[0-9]*")
	if err != nil {
		return nil, err
	}
	// the pattern also matches other crates such as "foo-2d-0.1.0"
	out := keys[:0]
	for _, k := range keys {
		if catalog.NameOf(k) == ref {
			out = append(out, k)
		}
	}
	return out, nil
}

func globEscape(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '*', '?', '[':
			b = append(b, '[', c, ']')
		default:
			b = append(b, c)
		}
	}
	return string(b)
}

func (s *Store) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err, "query")
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, storageErr(err, "scan")
		}
		out = append(out, v)
	}
	return out, storageErr(rows.Err(), "query")
}

// Lookup finds a declaration by identifier across all packages. Tables
// are searched in a fixed order (functions, structs, enums, traits,
// macros, type aliases, constants, impls) and, within a table, by package
// key, so a colliding identifier always resolves to the same record.
func (s *Store) Lookup(ctx context.Context, id string) (string, catalog.Declaration, error) {
	if !catalog.ValidID(id) {
		return "", nil, errors.New(errors.ErrCodeInvalidInput, "invalid identifier %q", id)
	}
	for _, k := range kinds {
		key, pk, err := s.locate(ctx, k.table, id)
		if err != nil {
			return "", nil, err
		}
		if key == "" {
			continue
		}
		decls, err := s.load(ctx, k, "t.pk = ?", pk)
		if err != nil {
			return "", nil, err
		}
		if len(decls) == 1 {
			return key, decls[0], nil
		}
	}
	return "", nil, errors.New(errors.ErrCodeItemNotFound, "no declaration with id %s", id)
}

func (s *Store) locate(ctx context.Context, table, id string) (string, int64, error) {
	var key string
	var pk int64
	err := s.db.QueryRowContext(ctx, `
		SELECT p.key, t.pk FROM `+table+` t JOIN packages p ON p.id = t.package_id
		WHERE t.id = ? ORDER BY p.key LIMIT 1`, id).Scan(&key, &pk)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, storageErr(err, "look up %s in %s", id, table)
	}
	return key, pk, nil
}

// Declarations returns the declarations of one kind stored for key, in
// extraction order.
func (s *Store) Declarations(ctx context.Context, key string, kind catalog.Kind) ([]catalog.Declaration, error) {
	k, ok := kindByTag[kind]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown declaration kind %q", kind)
	}
	if _, err := s.Path(ctx, key); err != nil {
		return nil, err
	}
	decls, err := s.load(ctx, k, "p.key = ?", key)
	if err != nil {
		return nil, err
	}
	if kind == catalog.KindConst || kind == catalog.KindStatic {
		out := decls[:0]
		for _, d := range decls {
			if d.Kind() == kind {
				out = append(out, d)
			}
		}
		decls = out
	}
	return decls, nil
}

// Catalog loads the full stored catalog of key.
func (s *Store) Catalog(ctx context.Context, key string) (*catalog.Catalog, error) {
	if _, err := s.Path(ctx, key); err != nil {
		return nil, err
	}
	cat := &catalog.Catalog{}
	for _, k := range kinds {
		decls, err := s.load(ctx, k, "p.key = ?", key)
		if err != nil {
			return nil, err
		}
		for _, d := range decls {
			cat.Add(d)
		}
	}
	return cat, nil
}

// sortedUnique sorts names and drops duplicates in place.
func sortedUnique(names []string) []string {
	sort.Strings(names)
	out := names[:0]
	for _, n := range names {
		if len(out) == 0 || n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}
