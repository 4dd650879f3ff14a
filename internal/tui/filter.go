package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/types"
)

// FilterMode restricts which windows the tree shows.
type FilterMode int

const (
	FilterAll FilterMode = iota
	FilterOpen
	FilterClosed
	FilterSaved
	FilterUnsaved
	FilterRecovered
)

var filterNames = []string{"all", "open", "closed", "saved", "unsaved", "recovered"}

func (f FilterMode) String() string {
	if int(f) < len(filterNames) {
		return filterNames[f]
	}
	return "unknown"
}

// Matches reports whether w passes the filter.
func (f FilterMode) Matches(w *detail.Window) bool {
	switch f {
	case FilterOpen:
		return w.IsOpen
	case FilterClosed:
		return !w.IsOpen
	case FilterSaved:
		return w.Keep == types.KeepKept
	case FilterUnsaved:
		return w.Keep != types.KeepKept
	case FilterRecovered:
		return w.Subtypes.Has(types.SubtypeRecovered)
	default:
		return true
	}
}

type FilterOption struct {
	Label string
	Mode  FilterMode
}

type FilterPicker struct {
	Options []FilterOption
	Cursor  int
	Width   int
	Height  int
}

func NewFilterPicker(current FilterMode) FilterPicker {
	options := []FilterOption{
		{"All windows", FilterAll},
		{"Open in the browser", FilterOpen},
		{"Closed", FilterClosed},
		{"Saved", FilterSaved},
		{"Unsaved", FilterUnsaved},
		{"Recovered from a session file", FilterRecovered},
	}
	cursor := 0
	for i, opt := range options {
		if opt.Mode == current {
			cursor = i
			break
		}
	}
	return FilterPicker{Options: options, Cursor: cursor}
}

func (m *FilterPicker) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
}

func (m *FilterPicker) MoveDown() {
	if m.Cursor < len(m.Options)-1 {
		m.Cursor++
	}
}

func (m FilterPicker) Selected() FilterOption {
	return m.Options[m.Cursor]
}

func (m FilterPicker) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	selectedStyle := lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	normalStyle := lipgloss.NewStyle().Padding(0, 1)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Show windows:") + "\n\n")

	for i, opt := range m.Options {
		label := opt.Label
		if i == m.Cursor {
			label = selectedStyle.Render(label)
		} else {
			label = normalStyle.Render("  " + label)
		}
		b.WriteString(label + "\n")
	}

	b.WriteString("\n" + normalStyle.Render("↑↓ navigate · enter select · esc cancel"))

	return boxStyle.Render(b.String())
}
