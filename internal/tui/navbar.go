package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabkeeper/internal/analyzer"
)

type ViewType int

const (
	ViewWindows ViewType = iota
	ViewSnapshots
)

func (v ViewType) String() string {
	if v == ViewSnapshots {
		return "Snapshots"
	}
	return "Windows"
}

// TreeWidthPct is the share of the terminal width given to the left pane.
const TreeWidthPct = 55

// connState is the extension link as shown in the top bar.
type connState int

const (
	connOffline connState = iota
	connWaiting
	connUp
)

// navInfo is everything the top bar shows.
type navInfo struct {
	Active    ViewType
	Profile   string
	Conn      connState
	Port      int
	Stats     analyzer.Stats
	Snapshots int
	Filter    FilterMode
}

var (
	navActive   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Underline(true)
	navInactive = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	navMuted    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	navLive     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	navWarn     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func (n navInfo) conn() string {
	switch n.Conn {
	case connUp:
		return navLive.Render("live ● connected")
	case connWaiting:
		return navWarn.Render(fmt.Sprintf("live ○ waiting on :%d", n.Port))
	default:
		return navInactive.Render("offline")
	}
}

func (n navInfo) summary() string {
	parts := []string{
		fmt.Sprintf("%d open", n.Stats.OpenWindows),
		fmt.Sprintf("%d tabs", n.Stats.Tabs),
	}
	if n.Stats.DuplicateTabs > 0 {
		parts = append(parts, fmt.Sprintf("%d dupes", n.Stats.DuplicateTabs))
	}
	if n.Stats.DeadTabs > 0 {
		parts = append(parts, fmt.Sprintf("%d dead", n.Stats.DeadTabs))
	}
	parts = append(parts, fmt.Sprintf("[filter: %s]", n.Filter))
	return navInactive.Render(strings.Join(parts, " · "))
}

func (n navInfo) tabs() string {
	counts := map[ViewType]int{ViewWindows: n.Stats.Windows, ViewSnapshots: n.Snapshots}
	var b strings.Builder
	for _, v := range []ViewType{ViewWindows, ViewSnapshots} {
		if v != ViewWindows {
			b.WriteString(navInactive.Render(" │ "))
		}
		suffix := ""
		if counts[v] > 0 {
			suffix = fmt.Sprintf(" (%d)", counts[v])
		}
		if v == n.Active {
			b.WriteString(navActive.Render(v.String() + suffix))
		} else {
			b.WriteString(navInactive.Render(v.String()) + navMuted.Render(suffix))
		}
	}
	return b.String()
}

// render lays the view tabs and status out on the left and the profile on
// the right of a width-wide line.
func (n navInfo) render(width int) string {
	left := " " + n.tabs() + "   " + n.conn() + navInactive.Render(" · ") + n.summary()
	right := navMuted.Render("Profile: "+n.Profile) + " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
