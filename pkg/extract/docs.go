package extract

import (
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// docsBefore collects the outer documentation attached to the idx-th named
// child of list: `///` lines, `/** */` blocks and `#[doc = "..."]`
// attributes that precede it. Plain comments and other attributes in
// between are skipped.
func docsBefore(list *sitter.Node, idx int, src []byte) *string {
	var chunks [][]string
	for j := idx - 1; j >= 0; j-- {
		sib := list.NamedChild(j)
		if t := sib.Type(); t != "line_comment" && t != "block_comment" && t != "attribute_item" {
			break
		}
		if lines := docLines(sib, src); len(lines) > 0 {
			chunks = append(chunks, lines)
		}
	}

	var lines []string
	for i := len(chunks) - 1; i >= 0; i-- {
		lines = append(lines, chunks[i]...)
	}
	return joinDocs(lines)
}

var docAttrRe = regexp.MustCompile(`(?s)^#\[\s*doc\s*=\s*(.*?)\s*\]$`)

// docLines returns the doc text lines a comment or attribute contributes,
// or nil when it is not outer documentation.
func docLines(n *sitter.Node, src []byte) []string {
	text := strings.TrimRight(n.Content(src), "\r\n")
	switch n.Type() {
	case "line_comment":
		if !strings.HasPrefix(text, "///") || strings.HasPrefix(text, "////") {
			return nil
		}
		return []string{text[3:]}

	case "block_comment":
		if !strings.HasPrefix(text, "/**") || strings.HasPrefix(text, "/***") || text == "/**/" {
			return nil
		}
		body := strings.TrimSuffix(strings.TrimPrefix(text, "/**"), "*/")
		var out []string
		for _, l := range strings.Split(body, "\n") {
			l = strings.TrimLeft(l, " \t")
			l = strings.TrimPrefix(l, "*")
			out = append(out, strings.TrimRight(l, "\r"))
		}
		return out

	case "attribute_item":
		m := docAttrRe.FindStringSubmatch(text)
		if m == nil {
			return nil
		}
		return strings.Split(unquote(m[1]), "\n")
	}
	return nil
}

func unquote(lit string) string {
	if s, err := strconv.Unquote(lit); err == nil {
		return s
	}
	// raw string literal: r"..." or r#"..."#
	if strings.HasPrefix(lit, "r") {
		s := strings.TrimLeft(lit[1:], "#")
		s = strings.TrimRight(s, "#")
		return strings.TrimSuffix(strings.TrimPrefix(s, `"`), `"`)
	}
	return strings.Trim(lit, `"`)
}

// joinDocs strips one leading space from every line, joins the lines with
// newlines and trims the result. Empty documentation is absent.
func joinDocs(lines []string) *string {
	if len(lines) == 0 {
		return nil
	}
	stripped := make([]string, len(lines))
	for i, l := range lines {
		stripped[i] = strings.TrimPrefix(l, " ")
	}
	docs := strings.TrimSpace(strings.Join(stripped, "\n"))
	if docs == "" {
		return nil
	}
	return &docs
}
