package tui

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabkeeper/internal/analyzer"
	"github.com/lotas/tabkeeper/internal/applog"
	"github.com/lotas/tabkeeper/internal/firefox"
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/locator"
	"github.com/lotas/tabkeeper/internal/server"
	"github.com/lotas/tabkeeper/internal/snapshot"
	"github.com/lotas/tabkeeper/internal/titles"
	"github.com/lotas/tabkeeper/internal/types"
)

// The manager applies extension events directly.
var _ server.Handler = (*lifecycle.Manager)(nil)

// --- Messages ---

// Messages from the WebSocket server
type wsEventMsg struct{ msg server.IncomingMsg }
type wsDisconnectedMsg struct{}

type titlesFetchedMsg struct {
	found map[types.NodeID]string
	err   error
}

type linksCheckedMsg struct {
	dead map[types.NodeID]string
}

type sessionReadMsg struct {
	profile types.Profile
	windows []types.ResourceWindow
	err     error
}

// --- Command helpers ---

var cmdCounter atomic.Int64

func nextCmdID() string {
	return fmt.Sprintf("cmd-%d", cmdCounter.Add(1))
}

func sendCmd(srv *server.Server, msg server.OutgoingMsg) tea.Cmd {
	return func() tea.Msg {
		if err := srv.Send(msg); err != nil {
			applog.Error("tui.send", err, "action", msg.Action)
		}
		return nil
	}
}

// --- Model ---

// Options configures a Model.
type Options struct {
	Manager         *lifecycle.Manager
	DB              *sql.DB
	Server          *server.Server // nil for offline mode
	Profile         string         // snapshot profile
	BrowserProfiles []types.Profile
}

type Model struct {
	// Data
	mgr             *lifecycle.Manager
	db              *sql.DB
	profile         string
	browserProfiles []types.Profile

	// UI state
	view      ViewType
	tree      TreeModel
	detail    DetailModel
	snapshots SnapshotsView
	status    string
	err       error
	width     int
	height    int
	fetching  bool
	checking  bool

	filterPicker      FilterPicker
	showFilterPicker  bool
	profilePicker     ProfilePicker
	showProfilePicker bool

	// Live mode
	server    *server.Server
	connected bool
}

func NewModel(opts Options) Model {
	m := Model{
		mgr:             opts.Manager,
		db:              opts.DB,
		profile:         opts.Profile,
		browserProfiles: opts.BrowserProfiles,
		server:          opts.Server,
		tree:            NewTreeModel(),
		snapshots:       NewSnapshotsView(opts.DB, opts.Manager.Presenter().Strings(), opts.Profile),
	}
	m.tree.Rebuild(m.mgr)
	return m
}

func (m Model) live() bool { return m.server != nil }

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.snapshots.Reload()}
	if m.live() {
		cmds = append(cmds, listenWebSocket(m.server), startWSServer(m.server))
	}
	return tea.Batch(cmds...)
}

func startWSServer(srv *server.Server) tea.Cmd {
	return func() tea.Msg {
		if err := srv.ListenAndServe(context.Background()); err != nil {
			applog.Error("tui.ws.serve", err)
		}
		return wsDisconnectedMsg{}
	}
}

func listenWebSocket(srv *server.Server) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-srv.Messages()
		if !ok {
			return wsDisconnectedMsg{}
		}
		return wsEventMsg{msg: msg}
	}
}

func fetchTitles(targets []titles.Target) tea.Cmd {
	return func() tea.Msg {
		found, err := titles.Lookup(context.Background(), targets, titles.FetchTitle)
		return titlesFetchedMsg{found: found, err: err}
	}
}

func checkLinks(links []analyzer.Link) tea.Cmd {
	return func() tea.Msg {
		return linksCheckedMsg{dead: analyzer.CheckLinks(context.Background(), links)}
	}
}

func readSession(p types.Profile, includeClosed bool) tea.Cmd {
	return func() tea.Msg {
		windows, err := firefox.ReadSessionFile(p.Path, includeClosed)
		return sessionReadMsg{profile: p, windows: windows, err: err}
	}
}

func (m *Model) setStatus(format string, args ...any) {
	m.status = fmt.Sprintf(format, args...)
	m.err = nil
}

func (m *Model) fail(event string, err error) {
	applog.Error(event, err)
	m.err = err
}

func (m *Model) resize() {
	treeWidth := m.width * TreeWidthPct / 100
	detailWidth := m.width - treeWidth - 3 // borders
	paneHeight := m.height - 5             // top bar + bottom bar
	m.tree.Width = treeWidth
	m.tree.Height = paneHeight
	m.detail.Width = detailWidth
	m.detail.Height = paneHeight
	m.snapshots.SetSize(m.width, paneHeight)
	m.filterPicker.Width, m.filterPicker.Height = m.width, m.height
	m.profilePicker.Width, m.profilePicker.Height = m.width, m.height
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.tree.Rebuild(m.mgr)
		return m, nil

	case tea.KeyMsg:
		if m.showFilterPicker {
			return m.updateFilterPicker(msg)
		}
		if m.showProfilePicker {
			return m.updateProfilePicker(msg)
		}

		switch msg.String() {
		case "q", "ctrl+c":
			m.saveSnapshot("")
			return m, tea.Quit
		case "tab":
			if m.view == ViewWindows {
				m.view = ViewSnapshots
			} else {
				m.view = ViewWindows
			}
			return m, nil
		}

		if m.view == ViewSnapshots {
			var cmd tea.Cmd
			m.snapshots, cmd = m.snapshots.Update(msg)
			return m, cmd
		}
		return m.updateWindows(msg)

	case wsEventMsg:
		m.applyEvent(msg.msg)
		return m, listenWebSocket(m.server)

	case wsDisconnectedMsg:
		m.connected = false
		return m, nil

	case titlesFetchedMsg:
		m.fetching = false
		n := titles.Apply(m.mgr, msg.found)
		m.tree.Rebuild(m.mgr)
		if msg.err != nil {
			m.fail("tui.titles", msg.err)
			return m, nil
		}
		m.setStatus("%d titles filled", n)
		return m, nil

	case linksCheckedMsg:
		m.checking = false
		m.tree.Dead = msg.dead
		m.setStatus("%d dead links", len(msg.dead))
		return m, nil

	case sessionReadMsg:
		if msg.err != nil {
			m.fail("tui.import", msg.err)
			return m, nil
		}
		n, err := snapshot.ImportSession(m.mgr, msg.windows)
		m.tree.Rebuild(m.mgr)
		if err != nil {
			m.fail("tui.import", err)
			return m, nil
		}
		m.setStatus("imported %d windows from %s", n, msg.profile.Name)
		return m, nil

	case loadSnapshotMsg:
		n, err := snapshot.Load(m.db, m.mgr, m.profile, msg.rev)
		m.tree.Rebuild(m.mgr)
		if err != nil {
			m.fail("tui.load", err)
			return m, nil
		}
		m.view = ViewWindows
		m.setStatus("loaded %d windows from #%d", n, msg.rev)
		return m, nil

	case restoreSnapshotMsg:
		if !m.connected {
			m.setStatus("not connected to the extension")
			return m, nil
		}
		var cmds []tea.Cmd
		for _, w := range msg.snap.Windows {
			urls := make([]string, 0, len(w.Tabs))
			for _, t := range w.Tabs {
				urls = append(urls, t.URL)
			}
			if len(urls) > 0 {
				cmds = append(cmds, sendCmd(m.server, server.OpenWindowCmd(nextCmdID(), urls)))
			}
		}
		m.setStatus("opening %d windows from #%d", len(cmds), msg.snap.Rev)
		return m, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	m.snapshots, cmd = m.snapshots.Update(msg)
	return m, cmd
}

// applyEvent feeds one extension message into the window model. It runs on
// the event loop, which is the only place the model is mutated.
func (m *Model) applyEvent(msg server.IncomingMsg) {
	if msg.Type == server.MsgSnapshot {
		m.connected = true
	}
	err := server.Dispatch(msg, m.mgr)
	switch {
	case errors.Is(err, server.ErrUnhandled):
		if msg.Failed() {
			m.fail("tui.cmd", fmt.Errorf("%s: %s", msg.ID, msg.Error))
		}
		return
	case err != nil:
		m.fail("tui.event", fmt.Errorf("%s: %w", msg.Type, err))
	}
	m.tree.Rebuild(m.mgr)
}

func (m Model) updateFilterPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.filterPicker.MoveUp()
	case "down", "j":
		m.filterPicker.MoveDown()
	case "enter":
		m.tree.Filter = m.filterPicker.Selected().Mode
		m.tree.Cursor, m.tree.Offset = 0, 0
		m.tree.Rebuild(m.mgr)
		m.showFilterPicker = false
	case "esc":
		m.showFilterPicker = false
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateProfilePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.profilePicker.MoveUp()
	case "down", "j":
		m.profilePicker.MoveDown()
	case "c":
		m.profilePicker.IncludeClosed = !m.profilePicker.IncludeClosed
	case "enter":
		m.showProfilePicker = false
		return m, readSession(m.profilePicker.Selected(), m.profilePicker.IncludeClosed)
	case "esc":
		m.showProfilePicker = false
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateWindows(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	row := m.tree.SelectedRow()

	switch msg.String() {
	case "up", "k":
		m.tree.MoveUp()
		m.detail.ResetScroll()
	case "down", "j":
		m.tree.MoveDown()
		m.detail.ResetScroll()
	case "h":
		m.tree.CollapseOrParent()
		m.tree.Rebuild(m.mgr)
	case "l":
		m.tree.ExpandOrEnter()
		m.tree.Rebuild(m.mgr)
	case "enter":
		if row != nil && row.Window.IsOpen && m.connected {
			return m, sendCmd(m.server, server.FocusWindowCmd(nextCmdID(), row.Window.ExternalID()))
		}
		m.tree.Toggle()
		m.tree.Rebuild(m.mgr)
	case "s":
		if row == nil {
			return m, nil
		}
		if err := m.mgr.ToggleSaved(locator.Record(row.Window)); err != nil {
			m.fail("tui.toggle-saved", err)
		}
		m.tree.Rebuild(m.mgr)
	case "S":
		m.saveSnapshot("manual")
		return m, m.snapshots.Reload()
	case "o":
		return m, m.openInBrowser(row)
	case "x":
		return m, m.erase(row)
	case "t":
		if m.fetching {
			return m, nil
		}
		targets := titles.Pending(m.mgr)
		if len(targets) == 0 {
			m.setStatus("no untitled tabs")
			return m, nil
		}
		m.fetching = true
		m.setStatus("fetching %d titles...", len(targets))
		return m, fetchTitles(targets)
	case "c":
		if m.checking {
			return m, nil
		}
		links := analyzer.Links(m.mgr)
		if len(links) == 0 {
			m.setStatus("no links to check")
			return m, nil
		}
		m.checking = true
		m.setStatus("checking %d links...", len(links))
		return m, checkLinks(links)
	case "f":
		m.showFilterPicker = true
		m.filterPicker = NewFilterPicker(m.tree.Filter)
		m.filterPicker.Width, m.filterPicker.Height = m.width, m.height
	case "i":
		if len(m.browserProfiles) == 0 {
			m.setStatus("no Firefox profiles found")
			return m, nil
		}
		m.showProfilePicker = true
		m.profilePicker = NewProfilePicker(m.browserProfiles)
		m.profilePicker.Width, m.profilePicker.Height = m.width, m.height
	case "esc":
		m.err = nil
		m.status = ""
	}
	return m, nil
}

func (m *Model) saveSnapshot(label string) {
	if m.db == nil {
		return
	}
	rev, created, _, err := snapshot.Save(m.db, m.mgr, m.profile, label)
	if err != nil {
		m.fail("tui.save", err)
		return
	}
	if created {
		m.setStatus("saved snapshot #%d", rev)
	} else {
		m.setStatus("no changes since #%d", rev)
	}
}

// openInBrowser asks the extension to open a closed window. When the
// browser reports the new window, its tab sequence matches and the closed
// window is reattached instead of duplicated.
func (m *Model) openInBrowser(row *TreeRow) tea.Cmd {
	if row == nil || row.Window.IsOpen {
		return nil
	}
	if !m.connected {
		m.setStatus("not connected to the extension")
		return nil
	}
	var urls []string
	for _, t := range m.mgr.Tabs(row.Window) {
		urls = append(urls, t.RawURL)
	}
	if len(urls) == 0 {
		return nil
	}
	return sendCmd(m.server, server.OpenWindowCmd(nextCmdID(), urls))
}

// erase removes the selected item. Open items are closed in the browser and
// the resulting events erase them; closed items are erased directly.
func (m *Model) erase(row *TreeRow) tea.Cmd {
	if row == nil {
		return nil
	}
	if row.Tab != nil {
		if row.Tab.IsOpen {
			if !m.connected {
				return nil
			}
			return sendCmd(m.server, server.CloseTabsCmd(nextCmdID(), []types.ExternalID{row.Tab.ExternalID()}))
		}
		if err := m.mgr.EraseTab(locator.Record(row.Tab), "user"); err != nil {
			m.fail("tui.erase", err)
		}
		m.tree.Rebuild(m.mgr)
		return nil
	}

	if row.Window.IsOpen {
		if !m.connected {
			return nil
		}
		var ids []types.ExternalID
		for _, t := range m.mgr.Tabs(row.Window) {
			if t.IsOpen {
				ids = append(ids, t.ExternalID())
			}
		}
		return sendCmd(m.server, server.CloseTabsCmd(nextCmdID(), ids))
	}
	if err := m.mgr.EraseWindow(locator.Record(row.Window)); err != nil {
		m.fail("tui.erase", err)
	}
	m.tree.Rebuild(m.mgr)
	return nil
}

func (m Model) View() string {
	if m.showFilterPicker {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.filterPicker.View())
	}
	if m.showProfilePicker {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.profilePicker.View())
	}

	// Top bar
	nav := navInfo{
		Active:    m.view,
		Profile:   m.profile,
		Stats:     analyzer.ComputeStats(m.mgr, m.tree.Dead),
		Snapshots: m.snapshots.Count(),
		Filter:    m.tree.Filter,
	}
	switch {
	case !m.live():
		nav.Conn = connOffline
	case m.connected:
		nav.Conn = connUp
	default:
		nav.Conn, nav.Port = connWaiting, m.server.Port()
	}
	topBar := nav.render(m.width)

	// Panes
	treeBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Width(m.tree.Width).
		Height(m.tree.Height)

	detailBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.detail.Width).
		Height(m.detail.Height)

	var left, right string
	if m.view == ViewSnapshots {
		left = treeBorder.Render(m.snapshots.ViewList())
		right = detailBorder.Render(m.snapshots.ViewDetail())
	} else {
		var detailContent string
		if row := m.tree.SelectedRow(); row != nil {
			if row.Tab != nil {
				detailContent = m.detail.ViewTab(m.mgr.Presenter(), row.Tab, len(m.tree.Dupes[row.Node.ID]), m.tree.Dead[row.Node.ID])
			} else {
				detailContent = m.detail.ViewWindow(m.mgr, row.Window)
			}
		}
		left = treeBorder.Render(m.tree.View())
		right = detailBorder.Render(m.detail.ViewScrolled(detailContent))
	}
	panes := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	// Bottom bar
	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1)
	var bottomText string
	if m.view == ViewSnapshots {
		bottomText = "↑↓/jk navigate · enter details · L load · o open in browser · D delete · tab windows · q quit"
	} else {
		bottomText = "↑↓/jk navigate · h/l collapse/expand · s save/unsave · S snapshot · o open · x erase · t titles · c check links · f filter · i import · tab snapshots · q quit"
	}
	bottomBar := bottomBarStyle.Render(bottomText)
	if m.err != nil {
		bottomBar = errStyle.Render("Error: "+m.err.Error()) + "\n" + bottomBar
	} else if m.status != "" {
		bottomBar = bottomBarStyle.Render(m.status) + "\n" + bottomBar
	}

	return lipgloss.JoinVertical(lipgloss.Left, topBar, panes, bottomBar)
}
