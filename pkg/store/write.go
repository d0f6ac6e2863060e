package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/observability"
)

// childTables lists the declaration tables in lookup order. struct_fields
// and enum_variants are removed through their parents' cascades.
var childTables = []string{
	"functions", "structs", "enums", "traits", "macros", "type_aliases", "constants", "impls", "reexports",
}

// Replace stores cat as the complete catalog of key, discarding whatever
// was stored for key before. The package row keeps its id across
// replacements. Either everything is written or, on error, nothing changes.
//
// Identifiers are unique per package: when two declarations of cat share
// one, the first in catalog order is kept.
func (s *Store) Replace(ctx context.Context, key, path string, cat *catalog.Catalog, reexports []string) (err error) {
	if cat == nil {
		cat = &catalog.Catalog{}
	}
	start := time.Now()
	defer func() {
		observability.Store().OnReplace(ctx, key, cat.Len(), time.Since(start), err)
	}()

	name, version, ok := catalog.SplitKey(key)
	if !ok {
		return errors.New(errors.ErrCodeInvalidPackage, "invalid package key %q", key)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err, "begin replace %s", key)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var pkgID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO packages (key, name, version, path, indexed_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET path = excluded.path, indexed_at = excluded.indexed_at
		RETURNING id`,
		key, name, version, path, time.Now().UTC().Format(time.RFC3339Nano),
	).Scan(&pkgID)
	if err != nil {
		return storageErr(err, "upsert package %s", key)
	}

	for _, table := range childTables {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE package_id = ?", pkgID); err != nil {
			return storageErr(err, "clear %s of %s", table, key)
		}
	}

	w := &writer{ctx: ctx, tx: tx, pkgID: pkgID}
	if err = w.catalog(cat); err != nil {
		return storageErr(err, "write catalog of %s", key)
	}
	if err = w.reexports(reexports); err != nil {
		return storageErr(err, "write reexports of %s", key)
	}

	if err = tx.Commit(); err != nil {
		return storageErr(err, "commit %s", key)
	}
	return nil
}

// Delete removes key and all its declarations. Deleting a key that is not
// stored reports PACKAGE_NOT_FOUND.
func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM packages WHERE key = ?", key)
	if err != nil {
		return storageErr(err, "delete %s", key)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodePackageNotFound, "package %s is not indexed", key)
	}
	return nil
}

type writer struct {
	ctx   context.Context
	tx    *sql.Tx
	pkgID int64
}

// insert runs an INSERT OR IGNORE and returns the new row's pk, or 0 when
// the row was a duplicate and ignored.
func (w *writer) insert(stmt *sql.Stmt, args ...any) (int64, error) {
	res, err := stmt.ExecContext(w.ctx, args...)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, nil
	}
	return res.LastInsertId()
}

func (w *writer) prepare(query string) (*sql.Stmt, error) {
	return w.tx.PrepareContext(w.ctx, query)
}

func (w *writer) header(it *catalog.Item) []any {
	return []any{w.pkgID, it.ID, it.Name, it.File, it.Line, nullInt(it.EndLine), nullString(it.Docs)}
}

const headerCols = "package_id, id, name, file, line, end_line, docs"

func (w *writer) catalog(cat *catalog.Catalog) error {
	steps := []func(*catalog.Catalog) error{
		w.functions, w.structs, w.enums, w.traits, w.macros, w.typeAliases, w.constants, w.impls,
	}
	for _, step := range steps {
		if err := step(cat); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) functions(cat *catalog.Catalog) error {
	stmt, err := w.prepare("INSERT OR IGNORE INTO functions (" + headerCols + ", signature) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, f := range cat.Functions {
		if _, err := w.insert(stmt, append(w.header(&f.Item), f.Signature)...); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) structs(cat *catalog.Catalog) error {
	stmt, err := w.prepare("INSERT OR IGNORE INTO structs (" + headerCols + ", visibility) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	fieldStmt, err := w.prepare("INSERT INTO struct_fields (struct_pk, position, name, type, visibility, docs) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer fieldStmt.Close()

	for _, st := range cat.Structs {
		pk, err := w.insert(stmt, append(w.header(&st.Item), st.Visibility)...)
		if err != nil {
			return err
		}
		if pk == 0 {
			continue
		}
		for i, f := range st.Fields {
			if _, err := fieldStmt.ExecContext(w.ctx, pk, i, f.Name, f.Type, f.Visibility, nullString(f.Docs)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *writer) enums(cat *catalog.Catalog) error {
	stmt, err := w.prepare("INSERT OR IGNORE INTO enums (" + headerCols + ", visibility) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	variantStmt, err := w.prepare("INSERT INTO enum_variants (enum_pk, position, name, kind, fields, docs) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer variantStmt.Close()

	for _, e := range cat.Enums {
		pk, err := w.insert(stmt, append(w.header(&e.Item), e.Visibility)...)
		if err != nil {
			return err
		}
		if pk == 0 {
			continue
		}
		for i, v := range e.Variants {
			if _, err := variantStmt.ExecContext(w.ctx, pk, i, v.Name, v.Kind, nullString(v.Fields), nullString(v.Docs)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *writer) traits(cat *catalog.Catalog) error {
	stmt, err := w.prepare("INSERT OR IGNORE INTO traits (" + headerCols + ", visibility) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range cat.Traits {
		if _, err := w.insert(stmt, append(w.header(&t.Item), t.Visibility)...); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) macros(cat *catalog.Catalog) error {
	stmt, err := w.prepare("INSERT OR IGNORE INTO macros (" + headerCols + ", kind) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, m := range cat.Macros {
		if _, err := w.insert(stmt, append(w.header(&m.Item), m.MacroKind)...); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) typeAliases(cat *catalog.Catalog) error {
	stmt, err := w.prepare("INSERT OR IGNORE INTO type_aliases (" + headerCols + ", type, visibility) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range cat.TypeAliases {
		if _, err := w.insert(stmt, append(w.header(&a.Item), a.Type, a.Visibility)...); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) constants(cat *catalog.Catalog) error {
	stmt, err := w.prepare("INSERT OR IGNORE INTO constants (" + headerCols + ", kind, type, visibility) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range cat.Constants {
		if _, err := w.insert(stmt, append(w.header(&c.Item), string(c.Kind()), c.Type, c.Visibility)...); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) impls(cat *catalog.Catalog) error {
	stmt, err := w.prepare("INSERT OR IGNORE INTO impls (" + headerCols + ", self_type, trait) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, im := range cat.Impls {
		if _, err := w.insert(stmt, append(w.header(&im.Item), im.SelfType, nullString(im.Trait))...); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) reexports(names []string) error {
	stmt, err := w.prepare("INSERT OR IGNORE INTO reexports (package_id, name) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, name := range names {
		if _, err := stmt.ExecContext(w.ctx, w.pkgID, name); err != nil {
			return err
		}
	}
	return nil
}
