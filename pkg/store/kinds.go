package store

import (
	"context"
	"database/sql"

	"github.com/matzehuels/crateindex/pkg/catalog"
)

// kindTable maps a declaration kind onto its table. newRow returns an
// empty record, scan destinations for the kind-specific columns, and an
// optional hook run after Scan.
type kindTable struct {
	tag    catalog.Kind
	table  string
	extra  string
	newRow func() (catalog.Declaration, []any, func())
}

// kinds is in lookup order.
var kinds = []kindTable{
	{catalog.KindFunction, "functions", "t.signature", func() (catalog.Declaration, []any, func()) {
		f := &catalog.Function{}
		return f, []any{&f.Signature}, nil
	}},
	{catalog.KindStruct, "structs", "t.visibility", func() (catalog.Declaration, []any, func()) {
		st := &catalog.Struct{Fields: []catalog.Field{}}
		return st, []any{&st.Visibility}, nil
	}},
	{catalog.KindEnum, "enums", "t.visibility", func() (catalog.Declaration, []any, func()) {
		e := &catalog.Enum{Variants: []catalog.Variant{}}
		return e, []any{&e.Visibility}, nil
	}},
	{catalog.KindTrait, "traits", "t.visibility", func() (catalog.Declaration, []any, func()) {
		t := &catalog.Trait{}
		return t, []any{&t.Visibility}, nil
	}},
	{catalog.KindMacro, "macros", "t.kind", func() (catalog.Declaration, []any, func()) {
		m := &catalog.Macro{}
		return m, []any{&m.MacroKind}, nil
	}},
	{catalog.KindTypeAlias, "type_aliases", "t.type, t.visibility", func() (catalog.Declaration, []any, func()) {
		a := &catalog.TypeAlias{}
		return a, []any{&a.Type, &a.Visibility}, nil
	}},
	{catalog.KindConst, "constants", "t.kind, t.type, t.visibility", func() (catalog.Declaration, []any, func()) {
		c := &catalog.Constant{}
		var kind string
		return c, []any{&kind, &c.Type, &c.Visibility}, func() { c.ConstKind = catalog.Kind(kind) }
	}},
	{catalog.KindImpl, "impls", "t.self_type, t.trait", func() (catalog.Declaration, []any, func()) {
		im := &catalog.Impl{}
		var trait sql.NullString
		return im, []any{&im.SelfType, &trait}, func() { im.Trait = stringPtr(trait) }
	}},
}

var kindByTag = map[catalog.Kind]kindTable{}

func init() {
	for _, k := range kinds {
		kindByTag[k.tag] = k
	}
	kindByTag[catalog.KindStatic] = kindByTag[catalog.KindConst]
}

// load reads the rows of one kind table matching where, ordered by
// insertion, and attaches struct fields and enum variants.
func (s *Store) load(ctx context.Context, k kindTable, where string, arg any) ([]catalog.Declaration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.pk, t.id, t.name, t.file, t.line, t.end_line, t.docs, `+k.extra+`
		FROM `+k.table+` t JOIN packages p ON p.id = t.package_id
		WHERE `+where+` ORDER BY p.key, t.pk`, arg)
	if err != nil {
		return nil, storageErr(err, "read %s", k.table)
	}

	var decls []catalog.Declaration
	var pks []int64
	for rows.Next() {
		var pk int64
		var it catalog.Item
		var end sql.NullInt64
		var docs sql.NullString
		d, extra, after := k.newRow()
		dest := append([]any{&pk, &it.ID, &it.Name, &it.File, &it.Line, &end, &docs}, extra...)
		if err := rows.Scan(dest...); err != nil {
			rows.Close()
			return nil, storageErr(err, "scan %s", k.table)
		}
		it.EndLine = intPtr(end)
		it.Docs = stringPtr(docs)
		*d.Header() = it
		if after != nil {
			after()
		}
		decls = append(decls, d)
		pks = append(pks, pk)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, storageErr(err, "read %s", k.table)
	}

	for i, d := range decls {
		switch v := d.(type) {
		case *catalog.Struct:
			if v.Fields, err = s.structFields(ctx, pks[i]); err != nil {
				return nil, err
			}
		case *catalog.Enum:
			if v.Variants, err = s.enumVariants(ctx, pks[i]); err != nil {
				return nil, err
			}
		}
	}
	return decls, nil
}

func (s *Store) structFields(ctx context.Context, structPK int64) ([]catalog.Field, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, type, visibility, docs FROM struct_fields WHERE struct_pk = ? ORDER BY position", structPK)
	if err != nil {
		return nil, storageErr(err, "read struct fields")
	}
	defer rows.Close()
	fields := []catalog.Field{}
	for rows.Next() {
		var f catalog.Field
		var docs sql.NullString
		if err := rows.Scan(&f.Name, &f.Type, &f.Visibility, &docs); err != nil {
			return nil, storageErr(err, "scan struct field")
		}
		f.Docs = stringPtr(docs)
		fields = append(fields, f)
	}
	return fields, storageErr(rows.Err(), "read struct fields")
}

func (s *Store) enumVariants(ctx context.Context, enumPK int64) ([]catalog.Variant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, kind, fields, docs FROM enum_variants WHERE enum_pk = ? ORDER BY position", enumPK)
	if err != nil {
		return nil, storageErr(err, "read enum variants")
	}
	defer rows.Close()
	variants := []catalog.Variant{}
	for rows.Next() {
		var v catalog.Variant
		var fields, docs sql.NullString
		if err := rows.Scan(&v.Name, &v.Kind, &fields, &docs); err != nil {
			return nil, storageErr(err, "scan enum variant")
		}
		v.Fields = stringPtr(fields)
		v.Docs = stringPtr(docs)
		variants = append(variants, v)
	}
	return variants, storageErr(rows.Err(), "read enum variants")
}
