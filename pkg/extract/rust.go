package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
)

// newParser returns a tree-sitter parser for Rust. Parsers are not safe for
// concurrent use; every worker owns its own.
func newParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(rust.GetLanguage())
	return p
}

// FileResult is what one source file contributes to a package.
type FileResult struct {
	Catalog   *catalog.Catalog
	Reexports []string // unfiltered candidate crate names, in source order
}

// Source parses one Rust file. rel is the path relative to the package root
// and key the package key; both feed the declaration identifiers.
//
// A file fails when it is not valid UTF-8 or when the tree holds any ERROR or
// MISSING node, however deep; nothing from a failed file is recorded.
func Source(ctx context.Context, src []byte, rel, key string) (*FileResult, error) {
	p := newParser()
	defer p.Close()
	return parseSource(ctx, p, src, rel, key)
}

func parseSource(ctx context.Context, p *sitter.Parser, src []byte, rel, key string) (*FileResult, error) {
	if !utf8.Valid(src) {
		return nil, errors.New(errors.ErrCodeParse, "%s: not valid UTF-8", rel)
	}
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "%s", rel)
	}
	defer tree.Close()

	root := tree.RootNode()
	if bad := firstError(root); bad != nil {
		return nil, errors.New(errors.ErrCodeParse, "%s: syntax error at line %d", rel, line(bad.StartPoint()))
	}

	w := &walker{src: src, file: rel, key: key, cat: &catalog.Catalog{}}
	w.items(root)
	return &FileResult{Catalog: w.cat, Reexports: reexports(root, src)}, nil
}

// firstError returns the first ERROR or MISSING node in document order.
func firstError(n *sitter.Node) *sitter.Node {
	if !n.HasError() {
		return nil
	}
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return n
}

// walker turns one syntax tree into declaration records.
type walker struct {
	src  []byte
	file string
	key  string
	cat  *catalog.Catalog
}

// items records every item in a source file, module body or block.
func (w *walker) items(list *sitter.Node) {
	for i := 0; i < int(list.NamedChildCount()); i++ {
		n := list.NamedChild(i)
		switch n.Type() {
		case "function_item":
			w.function(list, i, n)
		case "function_signature_item":
			w.function(list, i, n)
		case "struct_item":
			w.structItem(list, i, n)
		case "enum_item":
			w.enumItem(list, i, n)
		case "trait_item":
			w.traitItem(list, i, n)
		case "impl_item":
			w.implItem(n)
		case "macro_definition":
			w.macro(list, i, n)
		case "type_item":
			w.typeAlias(list, i, n)
		case "const_item":
			w.constant(list, i, n, catalog.KindConst)
		case "static_item":
			w.constant(list, i, n, catalog.KindStatic)
		case "mod_item":
			if body := n.ChildByFieldName("body"); body != nil {
				w.items(body)
			}
		}
	}
}

// methods records the functions of a trait or impl body. Associated types
// and constants are not recorded.
func (w *walker) methods(body *sitter.Node) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		n := body.NamedChild(i)
		switch n.Type() {
		case "function_item", "function_signature_item":
			w.function(body, i, n)
		}
	}
}

func (w *walker) header(list *sitter.Node, idx int, n *sitter.Node, name string, kind catalog.Kind) catalog.Item {
	start := line(n.StartPoint())
	return catalog.Item{
		ID:   catalog.ID(w.key, w.file, name, start, kind),
		Name: name,
		File: w.file,
		Line: start,
		Docs: docsBefore(list, idx, w.src),
	}
}

func (w *walker) name(n *sitter.Node) string {
	if id := n.ChildByFieldName("name"); id != nil {
		return id.Content(w.src)
	}
	return ""
}

func (w *walker) function(list *sitter.Node, idx int, n *sitter.Node) {
	name := w.name(n)
	if name == "" {
		return
	}
	fn := &catalog.Function{
		Item:      w.header(list, idx, n, name, catalog.KindFunction),
		Signature: w.signature(n),
	}
	body := n.ChildByFieldName("body")
	if body != nil {
		fn.EndLine = endLine(body)
	}
	w.cat.Add(fn)
	if body != nil {
		w.items(body)
	}
}

func (w *walker) structItem(list *sitter.Node, idx int, n *sitter.Node) {
	name := w.name(n)
	s := &catalog.Struct{
		Item:       w.header(list, idx, n, name, catalog.KindStruct),
		Visibility: visibility(n, w.src),
		Fields:     []catalog.Field{},
	}
	if body := n.ChildByFieldName("body"); body != nil {
		s.EndLine = endLine(body)
		switch body.Type() {
		case "field_declaration_list":
			s.Fields = w.namedFields(body)
		case "ordered_field_declaration_list":
			s.Fields = w.tupleFields(body)
		}
	}
	w.cat.Add(s)
}

func (w *walker) namedFields(body *sitter.Node) []catalog.Field {
	fields := []catalog.Field{}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		f := body.NamedChild(i)
		if f.Type() != "field_declaration" {
			continue
		}
		fields = append(fields, catalog.Field{
			Name:       w.name(f),
			Type:       w.fieldText(f, "type"),
			Visibility: visibility(f, w.src),
			Docs:       docsBefore(body, i, w.src),
		})
	}
	return fields
}

// tupleFields walks an ordered field list, where visibility, attributes and
// types are siblings rather than grouped per field.
func (w *walker) tupleFields(body *sitter.Node) []catalog.Field {
	fields := []catalog.Field{}
	vis := catalog.VisibilityPrivate
	var docs []string
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		switch c.Type() {
		case "visibility_modifier":
			vis = renderVisibility(c.Content(w.src))
		case "line_comment", "block_comment", "attribute_item":
			docs = append(docs, docLines(c, w.src)...)
		default:
			fields = append(fields, catalog.Field{
				Name:       strconv.Itoa(len(fields)),
				Type:       collapse(c.Content(w.src)),
				Visibility: vis,
				Docs:       joinDocs(docs),
			})
			vis = catalog.VisibilityPrivate
			docs = nil
		}
	}
	return fields
}

func (w *walker) enumItem(list *sitter.Node, idx int, n *sitter.Node) {
	name := w.name(n)
	e := &catalog.Enum{
		Item:       w.header(list, idx, n, name, catalog.KindEnum),
		Visibility: visibility(n, w.src),
		Variants:   []catalog.Variant{},
	}
	if body := n.ChildByFieldName("body"); body != nil {
		e.EndLine = endLine(body)
		e.Variants = w.variants(body)
	}
	w.cat.Add(e)
}

func (w *walker) variants(body *sitter.Node) []catalog.Variant {
	variants := []catalog.Variant{}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		v := body.NamedChild(i)
		if v.Type() != "enum_variant" {
			continue
		}
		variant := catalog.Variant{
			Name: w.name(v),
			Kind: catalog.VariantUnit,
			Docs: docsBefore(body, i, w.src),
		}
		if vb := v.ChildByFieldName("body"); vb != nil {
			var parts []string
			switch vb.Type() {
			case "ordered_field_declaration_list":
				variant.Kind = catalog.VariantTuple
				for _, f := range w.tupleFields(vb) {
					parts = append(parts, f.Type)
				}
			case "field_declaration_list":
				variant.Kind = catalog.VariantStruct
				for _, f := range w.namedFields(vb) {
					parts = append(parts, f.Name+": "+f.Type)
				}
			}
			fields := strings.Join(parts, ", ")
			variant.Fields = &fields
		}
		variants = append(variants, variant)
	}
	return variants
}

func (w *walker) traitItem(list *sitter.Node, idx int, n *sitter.Node) {
	name := w.name(n)
	t := &catalog.Trait{
		Item:       w.header(list, idx, n, name, catalog.KindTrait),
		Visibility: visibility(n, w.src),
	}
	body := n.ChildByFieldName("body")
	if body != nil {
		t.EndLine = endLine(body)
	}
	w.cat.Add(t)
	if body != nil {
		w.methods(body)
	}
}

func (w *walker) implItem(n *sitter.Node) {
	selfType := w.fieldText(n, "type")
	var trait *string
	if tr := n.ChildByFieldName("trait"); tr != nil {
		s := collapse(tr.Content(w.src))
		trait = &s
	}
	name := catalog.ImplName(selfType, trait)
	start := line(n.StartPoint())
	impl := &catalog.Impl{
		Item: catalog.Item{
			ID:   catalog.ID(w.key, w.file, name, start, catalog.KindImpl),
			Name: name,
			File: w.file,
			Line: start,
		},
		SelfType: selfType,
		Trait:    trait,
	}
	body := n.ChildByFieldName("body")
	if body != nil {
		impl.EndLine = endLine(body)
	}
	w.cat.Add(impl)
	if body != nil {
		w.methods(body)
	}
}

func (w *walker) macro(list *sitter.Node, idx int, n *sitter.Node) {
	name := w.name(n)
	if name == "" {
		return
	}
	w.cat.Add(&catalog.Macro{
		Item:      w.header(list, idx, n, name, catalog.KindMacro),
		MacroKind: catalog.MacroDeclarative,
	})
}

func (w *walker) typeAlias(list *sitter.Node, idx int, n *sitter.Node) {
	name := w.name(n)
	w.cat.Add(&catalog.TypeAlias{
		Item:       w.header(list, idx, n, name, catalog.KindTypeAlias),
		Type:       w.fieldText(n, "type"),
		Visibility: visibility(n, w.src),
	})
}

func (w *walker) constant(list *sitter.Node, idx int, n *sitter.Node, kind catalog.Kind) {
	name := w.name(n)
	w.cat.Add(&catalog.Constant{
		Item:       w.header(list, idx, n, name, kind),
		ConstKind:  kind,
		Type:       w.fieldText(n, "type"),
		Visibility: visibility(n, w.src),
	})
}

func (w *walker) fieldText(n *sitter.Node, field string) string {
	if c := n.ChildByFieldName(field); c != nil {
		return collapse(c.Content(w.src))
	}
	return ""
}

// signature renders "[const ][async ][unsafe ][extern "abi" ]fn name<generics>(params)[ -> ret]".
func (w *walker) signature(n *sitter.Node) string {
	var isConst, isAsync, isUnsafe bool
	var abi string
	if mods := childOfType(n, "function_modifiers"); mods != nil {
		for i := 0; i < int(mods.ChildCount()); i++ {
			c := mods.Child(i)
			switch c.Type() {
			case "const":
				isConst = true
			case "async":
				isAsync = true
			case "unsafe":
				isUnsafe = true
			case "extern_modifier":
				abi = collapse(c.Content(w.src))
			}
		}
	}

	var b strings.Builder
	if isConst {
		b.WriteString("const ")
	}
	if isAsync {
		b.WriteString("async ")
	}
	if isUnsafe {
		b.WriteString("unsafe ")
	}
	if abi != "" {
		b.WriteString(abi + " ")
	}
	b.WriteString("fn ")
	b.WriteString(w.name(n))
	if tp := n.ChildByFieldName("type_parameters"); tp != nil {
		b.WriteString("<" + strings.Join(listItems(tp, w.src), ", ") + ">")
	}
	b.WriteString("(")
	if params := n.ChildByFieldName("parameters"); params != nil {
		b.WriteString(strings.Join(listItems(params, w.src), ", "))
	}
	b.WriteString(")")
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		b.WriteString(" -> " + collapse(ret.Content(w.src)))
	}
	return b.String()
}

// listItems renders the named children of a delimited list, skipping
// comments and attributes.
func listItems(list *sitter.Node, src []byte) []string {
	var items []string
	for i := 0; i < int(list.NamedChildCount()); i++ {
		c := list.NamedChild(i)
		switch c.Type() {
		case "line_comment", "block_comment", "attribute_item":
			continue
		}
		items = append(items, collapse(c.Content(src)))
	}
	return items
}

func visibility(n *sitter.Node, src []byte) string {
	if v := childOfType(n, "visibility_modifier"); v != nil {
		return renderVisibility(v.Content(src))
	}
	return catalog.VisibilityPrivate
}

func renderVisibility(s string) string {
	s = collapse(s)
	switch {
	case s == "pub":
		return catalog.VisibilityPublic
	case s == "crate":
		return "pub(crate)"
	case strings.HasPrefix(s, "pub"):
		s = "pub" + strings.TrimSpace(strings.TrimPrefix(s, "pub"))
		s = strings.Replace(s, "( ", "(", 1)
		return strings.Replace(s, " )", ")", 1)
	}
	return s
}

func childOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func line(p sitter.Point) int { return int(p.Row) + 1 }

func endLine(n *sitter.Node) *int {
	l := line(n.EndPoint())
	return &l
}
