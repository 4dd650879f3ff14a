package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabkeeper/internal/types"
)

// ProfilePicker chooses the browser profile whose session file is
// imported, optionally with its recently closed windows.
type ProfilePicker struct {
	Profiles      []types.Profile
	IncludeClosed bool
	Cursor        int
	Width         int
	Height        int

	now func() time.Time
}

// NewProfilePicker starts on the default profile.
func NewProfilePicker(profiles []types.Profile) ProfilePicker {
	p := ProfilePicker{Profiles: profiles, now: time.Now}
	for i, prof := range profiles {
		if prof.IsDefault {
			p.Cursor = i
			break
		}
	}
	return p
}

func (m *ProfilePicker) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
}

func (m *ProfilePicker) MoveDown() {
	if m.Cursor < len(m.Profiles)-1 {
		m.Cursor++
	}
}

func (m ProfilePicker) Selected() types.Profile {
	return m.Profiles[m.Cursor]
}

// sessionAge renders how long ago t was, coarsely.
func sessionAge(now, t time.Time) string {
	if t.IsZero() {
		return "no session"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

var (
	pickerTitle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	pickerSelected = lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	pickerRow      = lipgloss.NewStyle().Padding(0, 1)
	pickerNote     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pickerBox      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)
)

func (m ProfilePicker) View() string {
	now := time.Now
	if m.now != nil {
		now = m.now
	}

	nameWidth := 0
	for _, p := range m.Profiles {
		nameWidth = max(nameWidth, lipgloss.Width(p.Name))
	}

	var b strings.Builder
	b.WriteString(pickerTitle.Render("Import session from profile:") + "\n\n")
	for i, p := range m.Profiles {
		marker := " "
		if p.IsDefault {
			marker = "*"
		}
		label := fmt.Sprintf("%s %-*s  %s", marker, nameWidth, p.Name, sessionAge(now(), p.SessionAt))
		if i == m.Cursor {
			b.WriteString(pickerSelected.Render("> "+label) + "\n")
		} else {
			b.WriteString(pickerRow.Render("  "+label) + "\n")
		}
	}

	if len(m.Profiles) > 0 && m.Selected().Session != "" {
		b.WriteString("\n" + pickerRow.Render(pickerNote.Render(filepath.Base(m.Selected().Session))) + "\n")
	}

	closed := "[ ]"
	if m.IncludeClosed {
		closed = "[x]"
	}
	b.WriteString("\n" + pickerRow.Render(closed+" recently closed windows") + "\n")
	b.WriteString("\n" + pickerRow.Render("↑↓ navigate · enter import · c closed windows · esc cancel"))

	return pickerBox.Render(b.String())
}
