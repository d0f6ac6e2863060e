package extract

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/matzehuels/crateindex/pkg/catalog"
)

// reexports returns the external crate names referenced by the file's
// top-level `pub use` declarations. Only plain `pub` counts; restricted
// visibility such as `pub(crate)` does not re-export anything. For every
// declaration the first path segment is taken (`pub use foo::bar` yields
// "foo", as do `pub use foo::{a, b}`, `pub use foo::*` and `pub use foo as f`).
// Bare groups and globs contribute nothing, nor do self, super or crate
// relative paths.
func reexports(root *sitter.Node, src []byte) []string {
	var names []string
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n.Type() != "use_declaration" {
			continue
		}
		v := childOfType(n, "visibility_modifier")
		if v == nil || collapse(v.Content(src)) != "pub" {
			continue
		}
		if name := firstSegment(n.ChildByFieldName("argument"), src); name != "" {
			names = append(names, catalog.NormalizeName(name))
		}
	}
	return names
}

func firstSegment(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "identifier":
		return n.Content(src)
	case "scoped_identifier":
		if path := n.ChildByFieldName("path"); path != nil {
			return firstSegment(path, src)
		}
		// `::foo::bar` has no path on the outermost segment
		return firstSegment(n.ChildByFieldName("name"), src)
	case "use_as_clause", "scoped_use_list":
		return firstSegment(n.ChildByFieldName("path"), src)
	case "use_wildcard":
		if n.NamedChildCount() > 0 {
			return firstSegment(n.NamedChild(0), src)
		}
	}
	// self, super, crate, metavariables, bare use lists and globs
	return ""
}
