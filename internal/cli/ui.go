package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/pkgfs"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - identifiers
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	StyleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleDim     = lipgloss.NewStyle().Foreground(colorDim)
	StyleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	StyleNumber  = lipgloss.NewStyle().Foreground(colorCyan)
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleID      = lipgloss.NewStyle().Foreground(colorBlue)
	styleKind    = lipgloss.NewStyle().Foreground(colorGray).Width(7)
	styleKey     = lipgloss.NewStyle().Foreground(colorGray).Width(12)
	styleLineNum = lipgloss.NewStyle().Foreground(colorDim).Align(lipgloss.Right)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Printer
// =============================================================================

// printer writes styled output to one writer, normally the command's stdout.
type printer struct {
	w io.Writer
}

func newPrinter(w io.Writer) *printer { return &printer{w: w} }

func (p *printer) line(s string) { fmt.Fprintln(p.w, s) }

func (p *printer) success(format string, args ...any) {
	p.line(styleIconSuccess.Render(iconSuccess) + " " + fmt.Sprintf(format, args...))
}

func (p *printer) failure(format string, args ...any) {
	p.line(styleIconError.Render(iconError) + " " + fmt.Sprintf(format, args...))
}

func (p *printer) warning(format string, args ...any) {
	p.line(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) info(format string, args ...any) {
	p.line(styleIconInfo.Render(iconInfo) + " " + fmt.Sprintf(format, args...))
}

// detail prints an indented, muted line.
func (p *printer) detail(format string, args ...any) {
	p.line("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) keyValue(key, value string) {
	p.line(styleKey.Render(key) + " " + StyleValue.Render(value))
}

func (p *printer) title(s string) {
	p.line(StyleTitle.Render(s))
}

// =============================================================================
// Declarations
// =============================================================================

// summary renders the one-line form of a declaration.
func summary(d catalog.Declaration) string {
	h := d.Header()
	switch v := d.(type) {
	case *catalog.Function:
		return v.Signature
	case *catalog.Struct:
		return visPrefix(v.Visibility) + "struct " + h.Name
	case *catalog.Enum:
		return visPrefix(v.Visibility) + "enum " + h.Name
	case *catalog.Trait:
		return visPrefix(v.Visibility) + "trait " + h.Name
	case *catalog.Macro:
		return "macro_rules! " + h.Name
	case *catalog.TypeAlias:
		return visPrefix(v.Visibility) + "type " + h.Name + " = " + v.Type
	case *catalog.Constant:
		return visPrefix(v.Visibility) + string(v.ConstKind) + " " + h.Name + ": " + v.Type
	case *catalog.Impl:
		if v.Trait != nil {
			return "impl " + *v.Trait + " for " + v.SelfType
		}
		return "impl " + v.SelfType
	}
	return h.Name
}

func visPrefix(vis string) string {
	if vis == catalog.VisibilityPublic {
		return "pub "
	}
	return ""
}

// entry prints one listing row: id, kind, summary and location.
func (p *printer) entry(d catalog.Declaration) {
	h := d.Header()
	p.line(fmt.Sprintf("%s %s %s %s",
		styleID.Render(h.ID),
		styleKind.Render(string(d.Kind())),
		StyleValue.Render(summary(d)),
		StyleDim.Render(fmt.Sprintf("%s:%d", h.File, h.Line))))
}

// declaration prints the detailed form used by show.
func (p *printer) declaration(key string, d catalog.Declaration) {
	h := d.Header()
	p.title(summary(d))
	p.keyValue("id", h.ID)
	p.keyValue("package", key)
	loc := fmt.Sprintf("%s:%d", h.File, h.Line)
	if h.EndLine != nil {
		loc += fmt.Sprintf("-%d", *h.EndLine)
	}
	p.keyValue("location", loc)

	switch v := d.(type) {
	case *catalog.Struct:
		for _, f := range v.Fields {
			p.detail("%s%s: %s", visPrefix(f.Visibility), f.Name, f.Type)
		}
	case *catalog.Enum:
		for _, vr := range v.Variants {
			switch {
			case vr.Fields == nil:
				p.detail("%s", vr.Name)
			case vr.Kind == catalog.VariantTuple:
				p.detail("%s(%s)", vr.Name, *vr.Fields)
			default:
				p.detail("%s { %s }", vr.Name, *vr.Fields)
			}
		}
	}
	if h.Docs != nil {
		p.line("")
		for _, l := range strings.Split(*h.Docs, "\n") {
			p.line(StyleDim.Render("/// ") + l)
		}
	}
}

// excerpt prints numbered source lines.
func (p *printer) excerpt(ex *pkgfs.Excerpt) {
	width := len(fmt.Sprint(ex.End))
	num := styleLineNum.Width(width)
	for i, l := range ex.Lines {
		p.line(num.Render(fmt.Sprint(ex.Start+i)) + StyleDim.Render(" │ ") + l)
	}
	if ex.Truncated {
		p.detail("%s lines %d-%d of %d; use --start/--end for more", iconArrow, ex.Start, ex.End, ex.Total)
	}
}

// counts renders per-kind totals, skipping empty kinds.
func counts(c catalog.Counts) string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, humanize.Comma(int64(n))+" "+label)
		}
	}
	add(c.Functions, "fns")
	add(c.Structs, "structs")
	add(c.Enums, "enums")
	add(c.Traits, "traits")
	add(c.Macros, "macros")
	add(c.TypeAliases, "types")
	add(c.Constants, "consts")
	add(c.Impls, "impls")
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, StyleDim.Render(" · "))
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.Time(t)
}
