package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/export"
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/present"
)

// DetailModel shows information about the selected item.
type DetailModel struct {
	Width      int
	Height     int
	Scroll     int // scroll offset
	ContentLen int // total lines in content
}

// ScrollUp adjusts the scroll offset upward.
func (m *DetailModel) ScrollUp() {
	if m.Scroll > 0 {
		m.Scroll--
	}
}

// ScrollDown adjusts the scroll offset downward.
func (m *DetailModel) ScrollDown() {
	if m.Scroll < m.ContentLen-m.Height {
		m.Scroll++
	}
	if m.Scroll < 0 {
		m.Scroll = 0
	}
}

// ResetScroll resets the scroll offset to 0.
func (m *DetailModel) ResetScroll() {
	m.Scroll = 0
}

// ViewWindow renders the window as markdown through glamour, followed by
// its state.
func (m DetailModel) ViewWindow(mgr *lifecycle.Manager, w *detail.Window) string {
	if w == nil {
		return ""
	}
	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))

	var b strings.Builder
	b.WriteString(renderMarkdown(export.WindowMarkdown(mgr, w), m.Width))

	state := "closed"
	if w.IsOpen {
		state = fmt.Sprintf("open (browser window %d)", w.ExternalID())
	}
	b.WriteString(labelStyle.Render("State") + "\n")
	b.WriteString(state + " · " + w.Keep.String() + "\n")
	if h := w.OrderedHash(); h != "" {
		b.WriteString("\n" + labelStyle.Render("Hash") + "\n")
		b.WriteString(h[:12] + "\n")
	}
	return b.String()
}

func renderMarkdown(md string, width int) string {
	wrap := width - 2
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return md
	}
	rendered, err := r.Render(md)
	if err != nil {
		return md
	}
	return rendered
}

// ViewTab renders a tab. dupes is the number of other tabs with the same
// URL and dead the reason of a failed link check, if any.
func (m DetailModel) ViewTab(view *present.Adapter, tab *detail.Tab, dupes int, dead string) string {
	if tab == nil {
		return ""
	}

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle()
	openStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	deadStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	var b strings.Builder

	b.WriteString(labelStyle.Render("Title") + "\n")
	title := view.TabTitle(tab)
	if r := []rune(title); m.Width > 3 && len(r) > m.Width-2 {
		title = string(r[:m.Width-3]) + "…"
	}
	b.WriteString(valueStyle.Render(title) + "\n\n")

	b.WriteString(labelStyle.Render("URL") + "\n")
	url := tab.RawURL
	// Wrap long URLs
	for m.Width > 2 && len(url) > m.Width-2 {
		b.WriteString(valueStyle.Render(url[:m.Width-2]) + "\n")
		url = url[m.Width-2:]
	}
	b.WriteString(valueStyle.Render(url) + "\n\n")

	if tab.RawBullet != "" {
		b.WriteString(labelStyle.Render("Bullet") + "\n")
		b.WriteString(valueStyle.Render(tab.RawBullet) + "\n\n")
	}

	var statuses []string
	if tab.IsOpen {
		statuses = append(statuses, openStyle.Render(fmt.Sprintf("Open (tab %d, index %d)", tab.ExternalID(), tab.Index)))
	} else {
		statuses = append(statuses, "Closed")
	}
	if tab.Pinned {
		statuses = append(statuses, "Pinned")
	}
	for _, name := range tab.Subtypes.Names() {
		if name != "open" {
			statuses = append(statuses, name)
		}
	}
	if dupes > 0 {
		statuses = append(statuses, warnStyle.Render(fmt.Sprintf("Duplicate of %d other tab(s)", dupes)))
	}
	if dead != "" {
		statuses = append(statuses, deadStyle.Render("Dead link ("+dead+")"))
	}
	b.WriteString(labelStyle.Render("Status") + "\n")
	for _, s := range statuses {
		b.WriteString(s + "\n")
	}

	return b.String()
}

// ViewScrolled applies scroll offset and height truncation to the content string.
func (m *DetailModel) ViewScrolled(content string) string {
	if content == "" {
		return content
	}

	lines := strings.Split(content, "\n")
	m.ContentLen = len(lines)

	// Clamp scroll
	maxScroll := m.ContentLen - m.Height
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.Scroll > maxScroll {
		m.Scroll = maxScroll
	}
	if m.Scroll < 0 {
		m.Scroll = 0
	}

	end := m.Scroll + m.Height
	if end > len(lines) {
		end = len(lines)
	}

	return strings.Join(lines[m.Scroll:end], "\n")
}
