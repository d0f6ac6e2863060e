package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/crateindex/pkg/pipeline"
)

// Picker styles
var (
	pickerDimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	pickerHeaderStyle = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

const defaultPickerHeight = 15

// DeclListModel is the bubbletea model behind "list --interactive". It pages
// through listing entries and records the one chosen with enter.
type DeclListModel struct {
	Title    string
	Entries  []pipeline.Entry
	Cursor   int
	Offset   int
	Height   int
	Selected *pipeline.Entry
}

// NewDeclListModel creates a picker over the entries of a listing.
func NewDeclListModel(l *pipeline.Listing) DeclListModel {
	return DeclListModel{
		Title:   fmt.Sprintf("%s in %s", l.Kind, l.Key),
		Entries: l.Entries,
		Height:  defaultPickerHeight,
	}
}

func (m DeclListModel) Init() tea.Cmd {
	return nil
}

func (m DeclListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Entries)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "home", "g":
			m.Cursor, m.Offset = 0, 0
		case "end", "G":
			m.Cursor = max(len(m.Entries)-1, 0)
			m.Offset = max(m.Cursor-m.Height+1, 0)
		case "enter":
			if len(m.Entries) == 0 {
				return m, nil
			}
			e := m.Entries[m.Cursor]
			m.Selected = &e
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-8, 5)
		if m.Cursor >= m.Offset+m.Height {
			m.Offset = m.Cursor - m.Height + 1
		}
	}
	return m, nil
}

func (m DeclListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString("\n")
	b.WriteString(pickerDimStyle.Render("↑/↓ navigate  ⏎ show  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Entries))
	rows := make([][]string, 0, end-m.Offset)
	for i := m.Offset; i < end; i++ {
		e := m.Entries[i]
		h := e.Declaration.Header()
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{cursor, h.ID, summary(e.Declaration), e.Key, fmt.Sprintf("%s:%d", h.File, h.Line)})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "ID", "Declaration", "Package", "Location").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return pickerHeaderStyle
			}
			if m.Offset+row == m.Cursor {
				if col == 1 {
					return styleID.Bold(true)
				}
				return lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
			}
			if col >= 3 {
				return pickerDimStyle
			}
			return lipgloss.NewStyle()
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(pickerDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Entries))))

	return b.String()
}
