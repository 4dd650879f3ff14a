package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabkeeper/internal/analyzer"
	"github.com/lotas/tabkeeper/internal/applog"
	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/present"
	"github.com/lotas/tabkeeper/internal/tree"
	"github.com/lotas/tabkeeper/internal/types"
)

// TreeRow is a visible row in the tree: a window header or a tab.
type TreeRow struct {
	Node   *tree.Node
	Window *detail.Window // set for window rows, and for tab rows to their parent
	Tab    *detail.Tab    // nil for window rows
	Count  int            // number of tabs, window rows only
}

// TreeModel renders the presentation tree as a collapsible list. Expansion
// is the widget's own open state.
type TreeModel struct {
	Filter FilterMode
	Cursor int
	Offset int // scroll offset
	Width  int
	Height int

	// Dupes is recomputed on every Rebuild. Dead holds the last link
	// check and is set by the owner.
	Dupes map[types.NodeID][]types.NodeID
	Dead  map[types.NodeID]string

	widget tree.Widget
	rows   []TreeRow
}

func NewTreeModel() TreeModel {
	return TreeModel{}
}

// Rebuild recomputes the visible rows from mgr, keeping the cursor on the
// same node when it is still visible.
func (m *TreeModel) Rebuild(mgr *lifecycle.Manager) {
	var current types.NodeID
	if row := m.SelectedRow(); row != nil {
		current = row.Node.ID
	}

	m.Dupes = analyzer.Duplicates(mgr)
	widget := mgr.Widget()
	m.widget = widget
	m.rows = nil
	for _, w := range mgr.Windows() {
		if !m.Filter.Matches(w) {
			continue
		}
		node, ok := widget.Get(w.NodeID())
		if !ok {
			continue
		}
		tabs := mgr.Tabs(w)
		m.rows = append(m.rows, TreeRow{Node: node, Window: w, Count: len(tabs)})
		if !node.Opened {
			continue
		}
		for _, tab := range tabs {
			if tn, ok := widget.Get(tab.NodeID()); ok {
				m.rows = append(m.rows, TreeRow{Node: tn, Window: w, Tab: tab})
			}
		}
	}

	if current != "" {
		if i := slices.IndexFunc(m.rows, func(r TreeRow) bool { return r.Node.ID == current }); i >= 0 {
			m.Cursor = i
		}
	}
	m.clamp()
}

// setOpen expands or collapses a window node in the widget.
func (m *TreeModel) setOpen(n *tree.Node, open bool) {
	if m.widget == nil {
		return
	}
	var err error
	if open {
		err = m.widget.Open(n.ID)
	} else {
		err = m.widget.Close(n.ID)
	}
	if err != nil {
		applog.Error("tui.tree.toggle", err, "node", n.ID)
	}
}

func (m *TreeModel) clamp() {
	if m.Cursor >= len(m.rows) {
		m.Cursor = len(m.rows) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	m.scrollToCursor()
}

func (m *TreeModel) scrollToCursor() {
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	visibleRows := m.Height - 2 // account for padding
	if visibleRows < 1 {
		visibleRows = 1
	}
	if m.Cursor >= m.Offset+visibleRows {
		m.Offset = m.Cursor - visibleRows + 1
	}
}

// Rows returns the visible rows.
func (m TreeModel) Rows() []TreeRow { return m.rows }

// SelectedRow returns the row under the cursor, or nil.
func (m TreeModel) SelectedRow() *TreeRow {
	if m.Cursor >= 0 && m.Cursor < len(m.rows) {
		return &m.rows[m.Cursor]
	}
	return nil
}

// MoveUp moves the cursor up.
func (m *TreeModel) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
	m.scrollToCursor()
}

// MoveDown moves the cursor down.
func (m *TreeModel) MoveDown() {
	if m.Cursor < len(m.rows)-1 {
		m.Cursor++
	}
	m.scrollToCursor()
}

// Toggle expands or collapses the selected window. Call Rebuild afterwards.
func (m *TreeModel) Toggle() {
	row := m.SelectedRow()
	if row == nil || row.Tab != nil {
		return
	}
	m.setOpen(row.Node, !row.Node.Opened)
}

// CollapseOrParent collapses the selected window, or jumps to the parent
// window header if the cursor is on a tab.
func (m *TreeModel) CollapseOrParent() {
	row := m.SelectedRow()
	if row == nil {
		return
	}
	if row.Tab == nil {
		m.setOpen(row.Node, false)
		return
	}
	for i := m.Cursor - 1; i >= 0; i-- {
		if m.rows[i].Tab == nil {
			m.Cursor = i
			m.scrollToCursor()
			return
		}
	}
}

// ExpandOrEnter expands the selected window, or moves into its first tab
// when already expanded.
func (m *TreeModel) ExpandOrEnter() {
	row := m.SelectedRow()
	if row == nil || row.Tab != nil {
		return
	}
	if !row.Node.Opened {
		m.setOpen(row.Node, true)
		return
	}
	if m.Cursor+1 < len(m.rows) && m.rows[m.Cursor+1].Tab != nil {
		m.Cursor++
		m.scrollToCursor()
	}
}

var iconGlyphs = map[string]string{
	present.IconWindowClosed:     "○",
	present.IconWindowOpenKept:   "●",
	present.IconWindowOpenUnkept: "◌",
	present.IconPDF:              "▤",
	present.IconPage:             "·",
}

// glyph maps a node icon to a terminal glyph. Tab icons that are not one of
// the known names are favicon URLs.
func glyph(icon string) string {
	if g, ok := iconGlyphs[icon]; ok {
		return g
	}
	if icon == "" {
		return " "
	}
	return "◆"
}

func hasClass(n *tree.Node, name string) bool {
	return slices.Contains(n.Classes, "tk-"+name)
}

// View renders the tree.
func (m TreeModel) View() string {
	if len(m.rows) == 0 {
		return "No windows."
	}

	visibleRows := m.Height
	if visibleRows < 1 {
		visibleRows = 20
	}

	var b strings.Builder
	end := m.Offset + visibleRows
	if end > len(m.rows) {
		end = len(m.rows)
	}

	cursorStyle := lipgloss.NewStyle().Bold(true).Reverse(true)
	windowStyle := lipgloss.NewStyle().Bold(true)
	savedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	recoveredStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	closedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dupeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	deadStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	for i := m.Offset; i < end; i++ {
		row := m.rows[i]
		var line string

		if row.Tab == nil {
			arrow := "▶"
			if row.Node.Opened {
				arrow = "▼"
			}
			icon := glyph(row.Node.Icon)
			switch {
			case hasClass(row.Node, "recovered"):
				icon = recoveredStyle.Render(icon)
			case hasClass(row.Node, "saved"):
				icon = savedStyle.Render(icon)
			}
			line = fmt.Sprintf("%s %s %s (%d)", arrow, icon, windowStyle.Render(row.Node.Text), row.Count)
		} else {
			text := row.Node.Text
			maxLen := m.Width - 6
			if maxLen < 10 {
				maxLen = 10
			}
			if r := []rune(text); len(r) > maxLen {
				text = string(r[:maxLen-1]) + "…"
			}
			if !row.Tab.IsOpen {
				text = closedStyle.Render(text)
			}
			line = "   " + glyph(row.Node.Icon) + " " + text
			if _, ok := m.Dupes[row.Node.ID]; ok {
				line += dupeStyle.Render(" ⧉")
			}
			if _, ok := m.Dead[row.Node.ID]; ok {
				line += deadStyle.Render(" ✗")
			}
		}

		if i == m.Cursor {
			if pad := m.Width - lipgloss.Width(line); pad > 0 {
				line += strings.Repeat(" ", pad)
			}
			line = cursorStyle.Render(line)
		}

		b.WriteString(line)
		if i < end-1 {
			b.WriteString("\n")
		}
	}

	return b.String()
}
