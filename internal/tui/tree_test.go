package tui

import (
	"encoding/json"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lotas/tabkeeper/internal/i18n"
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/locator"
	"github.com/lotas/tabkeeper/internal/server"
	"github.com/lotas/tabkeeper/internal/tree"
	"github.com/lotas/tabkeeper/internal/types"
)

// testManager holds one saved closed window with two tabs and one open
// unsaved window with one tab.
func testManager(t *testing.T) *lifecycle.Manager {
	t.Helper()
	mgr := lifecycle.New(tree.New(), i18n.New("en"))

	saved, _ := mgr.CreateWindow(false)
	mgr.CreateTab(locator.Record(saved), lifecycle.TabSpec{URL: "https://a.com", Title: "A"})
	mgr.CreateTab(locator.Record(saved), lifecycle.TabSpec{URL: "https://b.com/doc.pdf"})
	if err := mgr.MarkSaved(locator.Record(saved)); err != nil {
		t.Fatal(err)
	}

	err := mgr.WindowOpened(types.ResourceWindow{ID: 5, Tabs: []types.ResourceTab{
		{ID: 50, WindowID: 5, URL: "https://live.com", Title: "Live"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	return mgr
}

func parseMsg(t *testing.T, raw string) server.IncomingMsg {
	t.Helper()
	var msg server.IncomingMsg
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTreeRebuild(t *testing.T) {
	mgr := testManager(t)
	m := NewTreeModel()
	m.Height = 20
	m.Rebuild(mgr)

	// The closed window starts collapsed, the open one expanded.
	rows := m.Rows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Tab != nil || rows[0].Count != 2 {
		t.Errorf("row 0 should be the saved window with 2 tabs: %+v", rows[0])
	}
	if rows[2].Tab == nil || rows[2].Tab.RawURL != "https://live.com" {
		t.Errorf("row 2 should be the live tab: %+v", rows[2])
	}

	m.Cursor = 0
	m.ExpandOrEnter()
	m.Rebuild(mgr)
	if len(m.Rows()) != 5 {
		t.Fatalf("expected 5 rows after expanding, got %d", len(m.Rows()))
	}

	m.ExpandOrEnter()
	if row := m.SelectedRow(); row == nil || row.Tab == nil || row.Tab.RawTitle != "A" {
		t.Errorf("expected cursor on first tab, got %+v", row)
	}
	m.CollapseOrParent()
	if m.Cursor != 0 {
		t.Errorf("expected cursor back on window, got %d", m.Cursor)
	}
}

func TestTreeCollapseClosesWidgetNode(t *testing.T) {
	mgr := testManager(t)
	m := NewTreeModel()
	m.Height = 20
	m.Rebuild(mgr)

	m.Cursor = 1 // the open window, expanded since it was attached
	live := mgr.Windows()[1].NodeID()
	m.CollapseOrParent()
	if n, _ := mgr.Widget().Get(live); n.Opened {
		t.Error("collapsing should close the widget node")
	}
	m.Rebuild(mgr)
	if len(m.Rows()) != 2 {
		t.Errorf("expected 2 rows with both windows collapsed, got %d", len(m.Rows()))
	}

	m.Toggle()
	if n, _ := mgr.Widget().Get(live); !n.Opened {
		t.Error("toggling should reopen the widget node")
	}
}

func TestTreeFilter(t *testing.T) {
	mgr := testManager(t)
	m := NewTreeModel()

	m.Filter = FilterOpen
	m.Rebuild(mgr)
	if len(m.Rows()) != 2 || !m.Rows()[0].Window.IsOpen {
		t.Errorf("open filter rows = %+v", m.Rows())
	}

	m.Filter = FilterSaved
	m.Rebuild(mgr)
	if len(m.Rows()) != 1 || m.Rows()[0].Window.Keep != types.KeepKept {
		t.Errorf("saved filter rows = %+v", m.Rows())
	}

	m.Filter = FilterRecovered
	m.Rebuild(mgr)
	if len(m.Rows()) != 0 {
		t.Errorf("recovered filter should be empty, got %d rows", len(m.Rows()))
	}
}

func TestTreeKeepsCursorOnRebuild(t *testing.T) {
	mgr := testManager(t)
	m := NewTreeModel()
	m.Height = 20
	m.Rebuild(mgr)
	m.Cursor = 1 // the open window

	// A new window ahead of it shifts the rows.
	w, _ := mgr.CreateWindow(true)
	mgr.CreateTab(locator.Record(w), lifecycle.TabSpec{URL: "https://first.com"})
	m.Rebuild(mgr)

	if row := m.SelectedRow(); row == nil || row.Window.ExternalID() != 5 {
		t.Errorf("cursor moved off the open window: %+v", row)
	}
}

func TestTreeView(t *testing.T) {
	mgr := testManager(t)
	m := NewTreeModel()
	m.Width, m.Height = 60, 20
	if err := mgr.Widget().Open(mgr.Windows()[0].NodeID()); err != nil {
		t.Fatal(err)
	}
	m.Rebuild(mgr)

	out := m.View()
	for _, want := range []string{"Saved tabs (2)", "Unsaved (1)", "A", "https://b.com/doc.pdf", "▤", "Live"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestModelToggleSavedAndErase(t *testing.T) {
	mgr := testManager(t)
	m := NewModel(Options{Manager: mgr, Profile: "default"})
	m.tree.Cursor = 1 // the open unsaved window

	next, _ := m.Update(key("s"))
	m = next.(Model)
	if mgr.Windows()[1].Keep != types.KeepKept {
		t.Error("expected window to be saved")
	}

	m.tree.Cursor = 0 // the closed saved window
	next, _ = m.Update(key("x"))
	m = next.(Model)
	if len(mgr.Windows()) != 1 {
		t.Errorf("expected closed window erased, %d windows left", len(mgr.Windows()))
	}
	if m.err != nil {
		t.Errorf("unexpected error: %v", m.err)
	}
}

func TestModelAppliesEvents(t *testing.T) {
	mgr := testManager(t)
	m := NewModel(Options{Manager: mgr, Profile: "default"})

	m.applyEvent(parseMsg(t, `{"type":"tab.created","tab":{"id":51,"windowId":5,"index":1,"url":"https://new.com"}}`))
	if got := len(mgr.Tabs(mgr.Windows()[1])); got != 2 {
		t.Errorf("expected 2 tabs in the live window, got %d", got)
	}
	if m.err != nil {
		t.Errorf("unexpected error: %v", m.err)
	}

	m.applyEvent(parseMsg(t, `{"id":"cmd-1","ok":false,"error":"nope"}`))
	if m.err == nil || !strings.Contains(m.err.Error(), "nope") {
		t.Errorf("expected command failure to surface, got %v", m.err)
	}
}
