package tui

import (
	"database/sql"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabkeeper/internal/i18n"
	"github.com/lotas/tabkeeper/internal/snapshot"
	"github.com/lotas/tabkeeper/internal/storage"
)

type snapshotsLoadedMsg struct {
	snapshots []storage.SnapshotSummary
	err       error
}

type snapshotDetailMsg struct {
	snap *storage.SnapshotFull
	diff *snapshot.DiffResult // against the previous rev, nil for the first
	err  error
}

type snapshotDeletedMsg struct {
	rev int
	err error
}

// Messages returned by SnapshotsView for the root Model to handle, since
// the root owns the window model and the extension connection.
type loadSnapshotMsg struct{ rev int }
type restoreSnapshotMsg struct{ snap *storage.SnapshotFull }

type SnapshotsView struct {
	db        *sql.DB
	strings   *i18n.Strings
	profile   string
	snapshots []storage.SnapshotSummary
	selected  *storage.SnapshotFull
	diff      *snapshot.DiffResult
	cursor    int
	offset    int
	detail    DetailModel
	width     int
	height    int
	loading   bool
	err       error

	focusDetail bool
}

func NewSnapshotsView(db *sql.DB, strs *i18n.Strings, profile string) SnapshotsView {
	return SnapshotsView{db: db, strings: strs, profile: profile, loading: true}
}

// Reload re-reads the snapshot list, e.g. after a save.
func (v *SnapshotsView) Reload() tea.Cmd {
	v.cursor = 0
	v.offset = 0
	v.selected = nil
	v.diff = nil
	v.loading = true
	profile := v.profile
	db := v.db
	return func() tea.Msg {
		snaps, err := storage.ListSnapshotsByProfile(db, profile)
		return snapshotsLoadedMsg{snapshots: snaps, err: err}
	}
}

func (v *SnapshotsView) loadDetail(s storage.SnapshotSummary) tea.Cmd {
	db := v.db
	return func() tea.Msg {
		snap, err := storage.GetSnapshot(db, s.Profile, s.Rev)
		if err != nil {
			return snapshotDetailMsg{err: err}
		}
		var diff *snapshot.DiffResult
		if s.Rev > 1 {
			// The previous rev may have been deleted; the diff is optional.
			diff, _ = snapshot.DiffRevisions(db, s.Profile, s.Rev-1, s.Rev)
		}
		return snapshotDetailMsg{snap: snap, diff: diff}
	}
}

func (v *SnapshotsView) deleteSelected() tea.Cmd {
	if v.cursor >= len(v.snapshots) {
		return nil
	}
	s := v.snapshots[v.cursor]
	db := v.db
	return func() tea.Msg {
		return snapshotDeletedMsg{rev: s.Rev, err: storage.DeleteSnapshot(db, s.Profile, s.Rev)}
	}
}

func (v *SnapshotsView) SetSize(w, h int) {
	v.width = w
	v.height = h
	v.detail.Width = w - (w * TreeWidthPct / 100) - 3
	v.detail.Height = h
}

// Count is the number of snapshots listed.
func (v SnapshotsView) Count() int { return len(v.snapshots) }

func (v SnapshotsView) Update(msg tea.Msg) (SnapshotsView, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotsLoadedMsg:
		v.loading = false
		if msg.err != nil {
			v.err = msg.err
			return v, nil
		}
		v.snapshots = msg.snapshots
		v.err = nil
		if len(v.snapshots) > 0 {
			return v, v.loadDetail(v.snapshots[0])
		}
		return v, nil

	case snapshotDetailMsg:
		if msg.err != nil {
			v.err = msg.err
			return v, nil
		}
		v.selected = msg.snap
		v.diff = msg.diff
		v.detail.Scroll = 0
		return v, nil

	case snapshotDeletedMsg:
		if msg.err != nil {
			v.err = msg.err
			return v, nil
		}
		return v, v.Reload()

	case tea.KeyMsg:
		if v.focusDetail {
			switch msg.String() {
			case "esc":
				v.focusDetail = false
				v.detail.Scroll = 0
			case "j", "down":
				v.detail.ScrollDown()
			case "k", "up":
				v.detail.ScrollUp()
			}
			return v, nil
		}

		switch msg.String() {
		case "j", "down":
			if v.cursor < len(v.snapshots)-1 {
				v.cursor++
				v.adjustOffset()
				return v, v.loadDetail(v.snapshots[v.cursor])
			}
		case "k", "up":
			if v.cursor > 0 {
				v.cursor--
				v.adjustOffset()
				return v, v.loadDetail(v.snapshots[v.cursor])
			}
		case "enter":
			v.focusDetail = true
		case "L":
			if v.selected != nil {
				rev := v.selected.Rev
				return v, func() tea.Msg { return loadSnapshotMsg{rev: rev} }
			}
		case "o":
			if v.selected != nil {
				snap := v.selected
				return v, func() tea.Msg { return restoreSnapshotMsg{snap: snap} }
			}
		case "D":
			return v, v.deleteSelected()
		}
	}
	return v, nil
}

func (v *SnapshotsView) adjustOffset() {
	if v.cursor < v.offset {
		v.offset = v.cursor
	}
	visible := v.height - 2
	if visible < 1 {
		visible = 1
	}
	if v.cursor >= v.offset+visible {
		v.offset = v.cursor - visible + 1
	}
}

func (v SnapshotsView) ViewList() string {
	if v.loading {
		return "Loading snapshots..."
	}
	if v.err != nil {
		return fmt.Sprintf("Error: %v", v.err)
	}
	if len(v.snapshots) == 0 {
		return "No snapshots yet. Press S in the window view to save one."
	}

	cursorStyle := lipgloss.NewStyle().Bold(true).Reverse(true)
	listWidth := v.width * TreeWidthPct / 100

	var b strings.Builder
	end := v.offset + v.height
	if end > len(v.snapshots) {
		end = len(v.snapshots)
	}

	for i := v.offset; i < end; i++ {
		s := v.snapshots[i]
		ts := s.CreatedAt.Local().Format("2006-01-02 15:04")
		label := ""
		if s.Name != "" {
			label = " " + s.Name
		}
		line := fmt.Sprintf("  #%d %s  (%d windows, %d tabs)%s", s.Rev, ts, s.WindowCount, s.TabCount, label)

		if i == v.cursor {
			if pad := listWidth - lipgloss.Width(line); pad > 0 {
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

func (v SnapshotsView) ViewDetail() string {
	if v.selected == nil {
		return ""
	}

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	windowStyle := lipgloss.NewStyle().Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	addStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	delStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	var b strings.Builder

	b.WriteString(labelStyle.Render("Snapshot") + "\n")
	b.WriteString(fmt.Sprintf("Rev %d · %s · %d tabs\n",
		v.selected.Rev,
		v.selected.CreatedAt.Local().Format("2006-01-02 15:04"),
		v.selected.TabCount))
	if v.selected.Name != "" {
		b.WriteString(fmt.Sprintf("Label: %s\n", v.selected.Name))
	}
	if v.diff != nil {
		b.WriteString(addStyle.Render(fmt.Sprintf("+%d", len(v.diff.Added))) + " " +
			delStyle.Render(fmt.Sprintf("-%d", len(v.diff.Removed))) +
			dimStyle.Render(fmt.Sprintf(" since #%d", v.diff.FromRev)) + "\n")
	}
	b.WriteString("\n")

	for _, w := range v.selected.Windows {
		title := v.strings.T(i18n.LabelSavedWindow)
		if w.Title != nil {
			title = *w.Title
		}
		b.WriteString(windowStyle.Render(fmt.Sprintf("▼ %s (%d tabs)", title, len(w.Tabs))) + "\n")
		for _, tab := range w.Tabs {
			text := tab.Title
			if text == "" {
				text = tab.URL
			}
			maxLen := v.detail.Width - 6
			if r := []rune(text); maxLen > 1 && len(r) > maxLen {
				text = string(r[:maxLen-1]) + "…"
			}
			b.WriteString(dimStyle.Render("    "+text) + "\n")
		}
		b.WriteString("\n")
	}

	content := b.String()
	return v.detail.ViewScrolled(content)
}

func (v SnapshotsView) FocusDetail() bool { return v.focusDetail }
