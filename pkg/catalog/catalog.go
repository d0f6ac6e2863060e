// Package catalog defines the declaration records extracted from a Rust
// crate and the package keys that identify stored crates.
//
// A [Catalog] holds every declaration of one package, grouped by kind. The
// kinds form a closed set: each concrete type ([Function], [Struct], [Enum],
// [Trait], [Macro], [TypeAlias], [Constant], [Impl]) implements the sealed
// [Declaration] interface, so callers switch on the concrete type instead of
// dispatching through a shared base.
//
// Identifiers are short deterministic hashes; see [ID].
package catalog

// Kind is the tag mixed into a declaration identifier and used to name
// declaration tables and listing filters.
type Kind string

const (
	KindFunction  Kind = "fn"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindTrait     Kind = "trait"
	KindMacro     Kind = "macro"
	KindTypeAlias Kind = "type"
	KindConst     Kind = "const"
	KindStatic    Kind = "static"
	KindImpl      Kind = "impl"
)

// Visibility strings stored for structs, enums, traits, fields, type aliases
// and constants.
const (
	VisibilityPublic  = "pub"
	VisibilityPrivate = "private"
)

// Item is the header every declaration carries.
type Item struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	File    string  `json:"file"`
	Line    int     `json:"line"`
	EndLine *int    `json:"end_line,omitempty"`
	Docs    *string `json:"docs,omitempty"`
}

// Header returns the common declaration header.
func (it *Item) Header() *Item { return it }

// Declaration is implemented by every declaration record type.
type Declaration interface {
	Header() *Item
	Kind() Kind
	declaration()
}

// Function is a free function, an inherent or trait impl method, or a trait
// method (with or without a default body).
type Function struct {
	Item
	Signature string `json:"signature"`
}

// Field is a struct field. Tuple struct fields are named by position.
type Field struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Visibility string  `json:"visibility"`
	Docs       *string `json:"docs,omitempty"`
}

// Struct is a named, tuple or unit struct. Unit structs have no end line.
type Struct struct {
	Item
	Visibility string  `json:"visibility"`
	Fields     []Field `json:"fields"`
}

// Variant kinds.
const (
	VariantUnit   = "unit"
	VariantTuple  = "tuple"
	VariantStruct = "struct"
)

// Variant is an enum variant. Fields holds the rendered payload: tuple
// types joined by ", " or "name: type" pairs joined by ", ".
type Variant struct {
	Name   string  `json:"name"`
	Kind   string  `json:"kind"`
	Fields *string `json:"fields,omitempty"`
	Docs   *string `json:"docs,omitempty"`
}

// Enum is an enum definition.
type Enum struct {
	Item
	Visibility string    `json:"visibility"`
	Variants   []Variant `json:"variants"`
}

// Trait is a trait definition. Its methods are recorded as Functions.
type Trait struct {
	Item
	Visibility string `json:"visibility"`
}

// MacroDeclarative is the only macro kind captured (macro_rules! definitions).
const MacroDeclarative = "declarative"

// Macro is a macro_rules! definition.
type Macro struct {
	Item
	MacroKind string `json:"kind"`
}

// TypeAlias is a type alias. It has no end line.
type TypeAlias struct {
	Item
	Type       string `json:"type"`
	Visibility string `json:"visibility"`
}

// Constant is a const or static item. It has no end line.
type Constant struct {
	Item
	ConstKind  Kind   `json:"kind"` // KindConst or KindStatic
	Type       string `json:"type"`
	Visibility string `json:"visibility"`
}

// Impl is an impl block. Name holds the identifier name used for hashing:
// the self type, or selfType_traitPath for trait impls.
type Impl struct {
	Item
	SelfType string  `json:"self_type"`
	Trait    *string `json:"trait,omitempty"`
}

func (*Function) Kind() Kind  { return KindFunction }
func (*Struct) Kind() Kind    { return KindStruct }
func (*Enum) Kind() Kind      { return KindEnum }
func (*Trait) Kind() Kind     { return KindTrait }
func (*Macro) Kind() Kind     { return KindMacro }
func (*TypeAlias) Kind() Kind { return KindTypeAlias }
func (c *Constant) Kind() Kind {
	if c.ConstKind == KindStatic {
		return KindStatic
	}
	return KindConst
}
func (*Impl) Kind() Kind { return KindImpl }

func (*Function) declaration()  {}
func (*Struct) declaration()    {}
func (*Enum) declaration()      {}
func (*Trait) declaration()     {}
func (*Macro) declaration()     {}
func (*TypeAlias) declaration() {}
func (*Constant) declaration()  {}
func (*Impl) declaration()      {}

// ImplName returns the name an impl block is identified by.
func ImplName(selfType string, trait *string) string {
	if trait == nil {
		return selfType
	}
	return selfType + "_" + *trait
}

// Catalog is every declaration extracted from one package, grouped by kind.
type Catalog struct {
	Functions   []*Function  `json:"functions"`
	Structs     []*Struct    `json:"structs"`
	Enums       []*Enum      `json:"enums"`
	Traits      []*Trait     `json:"traits"`
	Macros      []*Macro     `json:"macros"`
	TypeAliases []*TypeAlias `json:"type_aliases"`
	Constants   []*Constant  `json:"constants"`
	Impls       []*Impl      `json:"impls"`
}

// Add appends d to the slice for its kind.
func (c *Catalog) Add(d Declaration) {
	switch v := d.(type) {
	case *Function:
		c.Functions = append(c.Functions, v)
	case *Struct:
		c.Structs = append(c.Structs, v)
	case *Enum:
		c.Enums = append(c.Enums, v)
	case *Trait:
		c.Traits = append(c.Traits, v)
	case *Macro:
		c.Macros = append(c.Macros, v)
	case *TypeAlias:
		c.TypeAliases = append(c.TypeAliases, v)
	case *Constant:
		c.Constants = append(c.Constants, v)
	case *Impl:
		c.Impls = append(c.Impls, v)
	}
}

// Merge concatenates every record of other onto c.
func (c *Catalog) Merge(other *Catalog) {
	if other == nil {
		return
	}
	c.Functions = append(c.Functions, other.Functions...)
	c.Structs = append(c.Structs, other.Structs...)
	c.Enums = append(c.Enums, other.Enums...)
	c.Traits = append(c.Traits, other.Traits...)
	c.Macros = append(c.Macros, other.Macros...)
	c.TypeAliases = append(c.TypeAliases, other.TypeAliases...)
	c.Constants = append(c.Constants, other.Constants...)
	c.Impls = append(c.Impls, other.Impls...)
}

// Counts reports the number of records per kind.
type Counts struct {
	Functions   int `json:"functions"`
	Structs     int `json:"structs"`
	Enums       int `json:"enums"`
	Traits      int `json:"traits"`
	Macros      int `json:"macros"`
	TypeAliases int `json:"type_aliases"`
	Constants   int `json:"constants"`
	Impls       int `json:"impls"`
}

// Total sums all counts.
func (n Counts) Total() int {
	return n.Functions + n.Structs + n.Enums + n.Traits + n.Macros + n.TypeAliases + n.Constants + n.Impls
}

// Counts returns the number of records per kind.
func (c *Catalog) Counts() Counts {
	return Counts{
		Functions:   len(c.Functions),
		Structs:     len(c.Structs),
		Enums:       len(c.Enums),
		Traits:      len(c.Traits),
		Macros:      len(c.Macros),
		TypeAliases: len(c.TypeAliases),
		Constants:   len(c.Constants),
		Impls:       len(c.Impls),
	}
}

// Len returns the total number of declarations.
func (c *Catalog) Len() int { return c.Counts().Total() }

// Declarations returns every record as a flat sequence, in lookup order
// (functions, structs, enums, traits, macros, type aliases, constants, impls).
func (c *Catalog) Declarations() []Declaration {
	out := make([]Declaration, 0, c.Len())
	for _, d := range c.Functions {
		out = append(out, d)
	}
	for _, d := range c.Structs {
		out = append(out, d)
	}
	for _, d := range c.Enums {
		out = append(out, d)
	}
	for _, d := range c.Traits {
		out = append(out, d)
	}
	for _, d := range c.Macros {
		out = append(out, d)
	}
	for _, d := range c.TypeAliases {
		out = append(out, d)
	}
	for _, d := range c.Constants {
		out = append(out, d)
	}
	for _, d := range c.Impls {
		out = append(out, d)
	}
	return out
}

// Collisions returns identifiers shared by more than one declaration of the
// catalog, mapped to the number of records that carry them.
func (c *Catalog) Collisions() map[string]int {
	seen := make(map[string]int)
	for _, d := range c.Declarations() {
		seen[d.Header().ID]++
	}
	out := make(map[string]int)
	for id, n := range seen {
		if n > 1 {
			out[id] = n
		}
	}
	return out
}
