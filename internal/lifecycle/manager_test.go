package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/i18n"
	"github.com/lotas/tabkeeper/internal/locator"
	"github.com/lotas/tabkeeper/internal/present"
	"github.com/lotas/tabkeeper/internal/tree"
	"github.com/lotas/tabkeeper/internal/types"
)

var errInjected = errors.New("injected failure")

// faultyTree wraps a tree.Tree and fails chosen operations.
type faultyTree struct {
	*tree.Tree
	failDelete  map[types.NodeID]bool
	afterCreate func(types.NodeID)
}

func newFaultyTree() *faultyTree {
	return &faultyTree{Tree: tree.New(), failDelete: map[types.NodeID]bool{}}
}

func (f *faultyTree) Create(parent types.NodeID, pos int, text string) (types.NodeID, error) {
	id, err := f.Tree.Create(parent, pos, text)
	if err == nil && f.afterCreate != nil {
		f.afterCreate(id)
	}
	return id, err
}

func (f *faultyTree) Delete(id types.NodeID) error {
	if f.failDelete[id] {
		return errInjected
	}
	return f.Tree.Delete(id)
}

func newTestManager(t *testing.T) (*Manager, *faultyTree) {
	t.Helper()
	ft := newFaultyTree()
	return New(ft, i18n.New("en")), ft
}

func windowWithTabs(t *testing.T, m *Manager, urls ...string) (*detail.Window, []*detail.Tab) {
	t.Helper()
	w, err := m.CreateWindow(false)
	require.NoError(t, err)
	var tabs []*detail.Tab
	for _, u := range urls {
		tab, err := m.CreateTab(locator.Record(w), TabSpec{URL: u})
		require.NoError(t, err)
		tabs = append(tabs, tab)
	}
	return w, tabs
}

func strp(s string) *string { return &s }

func TestCreateWindow(t *testing.T) {
	m, ft := newTestManager(t)

	w, err := m.CreateWindow(false)
	require.NoError(t, err)

	node, ok := ft.Get(w.NodeID())
	require.True(t, ok)
	assert.Equal(t, "Unsaved", node.Text)
	assert.Equal(t, present.IconWindowClosed, node.Icon)
	assert.Equal(t, types.NoExternalID, w.ExternalID())
	assert.False(t, w.IsOpen)

	first, err := m.CreateWindow(true)
	require.NoError(t, err)
	assert.Equal(t, []types.NodeID{first.NodeID(), w.NodeID()}, ft.Children(tree.Root))
}

func TestCreateWindowRollsBackNode(t *testing.T) {
	m, ft := newTestManager(t)
	ft.afterCreate = func(id types.NodeID) {
		// Squat the node id so the window record cannot be created.
		_, err := m.Store().Tabs.Add(detail.TabInit{NodeID: id})
		require.NoError(t, err)
	}

	_, err := m.CreateWindow(false)
	require.ErrorIs(t, err, detail.ErrDuplicateKey)
	assert.Equal(t, 0, ft.Len())
	assert.Equal(t, 0, m.Store().Windows.Len())
}

func TestCreateTab(t *testing.T) {
	m, ft := newTestManager(t)
	w, _ := windowWithTabs(t, m, "https://a.example")

	tab, err := m.CreateTab(locator.Record(w), TabSpec{URL: "https://b.example/doc.pdf", Title: "Doc"})
	require.NoError(t, err)

	node, ok := ft.Get(tab.NodeID())
	require.True(t, ok)
	assert.Equal(t, "Doc", node.Text)
	assert.Equal(t, present.IconPDF, node.Icon)
	assert.Equal(t, "Doc\nhttps://b.example/doc.pdf", node.Tooltip)

	parent, ok := ft.Get(w.NodeID())
	require.True(t, ok)
	assert.Equal(t, "Unsaved\n2 tabs", parent.Tooltip)

	at, err := m.CreateTabAt(locator.Record(w), 0, TabSpec{URL: "https://c.example"})
	require.NoError(t, err)
	assert.Equal(t, at.NodeID(), ft.Children(w.NodeID())[0])
}

func TestCreateTabMissingParent(t *testing.T) {
	m, ft := newTestManager(t)

	_, err := m.CreateTab(locator.Node("nope"), TabSpec{URL: "https://a.example"})
	require.ErrorIs(t, err, ErrNotFound)

	_, tabs := windowWithTabs(t, m, "https://a.example")
	_, err = m.CreateTab(locator.Record(tabs[0]), TabSpec{})
	require.ErrorIs(t, err, ErrNotFound, "a tab is not a valid parent")
	assert.Equal(t, 2, ft.Len())
}

func TestCreateTabRollsBackNode(t *testing.T) {
	m, ft := newTestManager(t)
	w, _ := windowWithTabs(t, m)
	ft.afterCreate = func(id types.NodeID) {
		_, err := m.Store().Windows.Add(detail.WindowInit{NodeID: id})
		require.NoError(t, err)
	}

	_, err := m.CreateTab(locator.Record(w), TabSpec{URL: "https://a.example"})
	require.ErrorIs(t, err, detail.ErrDuplicateKey)
	assert.Empty(t, ft.Children(w.NodeID()))
	assert.Equal(t, 0, m.Store().Tabs.Len())
}

func TestAttachDetachWindow(t *testing.T) {
	m, ft := newTestManager(t)
	w, _ := windowWithTabs(t, m, "https://a.example")
	require.NoError(t, ft.Close(w.NodeID()))

	require.NoError(t, m.AttachWindow(locator.Record(w), 42))
	assert.True(t, w.IsOpen)
	assert.True(t, m.HasSubtype(locator.Record(w), types.SubtypeOpen))
	got, ok := m.Store().Windows.ByExternalID(42)
	require.True(t, ok)
	assert.Same(t, w, got)
	node, _ := ft.Get(w.NodeID())
	assert.True(t, node.Opened)
	assert.Contains(t, node.Classes, "tk-open")

	require.NoError(t, m.DetachWindow(locator.Record(w)))
	assert.False(t, w.IsOpen)
	assert.Equal(t, types.NoExternalID, w.ExternalID())
	assert.False(t, m.HasSubtype(locator.Record(w), types.SubtypeOpen))
	_, ok = m.Store().Windows.ByExternalID(42)
	assert.False(t, ok)

	assert.ErrorIs(t, m.DetachWindow(locator.Record(w)), ErrNotOpen)
}

func TestAttachIsRefusedWhenOpen(t *testing.T) {
	m, _ := newTestManager(t)
	w, tabs := windowWithTabs(t, m, "https://a.example")

	require.NoError(t, m.AttachWindow(locator.Record(w), 1))
	err := m.AttachWindow(locator.Record(w), 2)
	require.ErrorIs(t, err, ErrAlreadyOpen)
	assert.Equal(t, types.ExternalID(1), w.ExternalID())
	_, ok := m.Store().Windows.ByExternalID(2)
	assert.False(t, ok)

	res := types.ResourceTab{ID: 10, WindowID: 1, Index: 0, URL: "https://a.example", Title: "A"}
	require.NoError(t, m.AttachTab(locator.Record(tabs[0]), res))
	res.ID = 11
	require.ErrorIs(t, m.AttachTab(locator.Record(tabs[0]), res), ErrAlreadyOpen)
	assert.Equal(t, types.ExternalID(10), tabs[0].ExternalID())
}

func TestAttachRejectsTakenExternalID(t *testing.T) {
	m, _ := newTestManager(t)
	a, _ := windowWithTabs(t, m)
	b, _ := windowWithTabs(t, m)

	require.NoError(t, m.AttachWindow(locator.Record(a), 5))
	require.ErrorIs(t, m.AttachWindow(locator.Record(b), 5), detail.ErrDuplicateKey)
	assert.False(t, b.IsOpen)
	assert.ErrorIs(t, m.AttachWindow(locator.Record(b), types.NoExternalID), ErrInvalidExternalID)
}

func TestAttachDetachTab(t *testing.T) {
	m, ft := newTestManager(t)
	w, tabs := windowWithTabs(t, m, "https://old.example")
	tab := tabs[0]

	res := types.ResourceTab{ID: 7, WindowID: 3, Index: 0, URL: "https://new.example", Title: "New", FavIconURL: "https://new.example/f.ico", Pinned: true}
	require.NoError(t, m.AttachTab(locator.Record(tab), res))
	assert.True(t, tab.IsOpen)
	assert.Equal(t, "https://new.example", tab.RawURL)
	assert.Equal(t, types.ExternalID(3), tab.WindowExternalID)
	assert.True(t, tab.Pinned)
	node, _ := ft.Get(tab.NodeID())
	assert.Equal(t, "New", node.Text)
	assert.Equal(t, "https://new.example/f.ico", node.Icon)

	before := w.OrderedHash()
	assert.NotEmpty(t, before)

	require.NoError(t, m.DetachTab(locator.Record(tab)))
	assert.False(t, tab.IsOpen)
	assert.Equal(t, types.NoExternalID, tab.ExternalID())
	assert.Equal(t, types.NoExternalID, tab.WindowExternalID)
	assert.Equal(t, -1, tab.Index)
	assert.Equal(t, "https://new.example", tab.RawURL, "detach keeps persisted fields")
	assert.ErrorIs(t, m.DetachTab(locator.Record(tab)), ErrNotOpen)
}

func TestSubtypes(t *testing.T) {
	m, ft := newTestManager(t)
	w, _ := windowWithTabs(t, m)
	ref := locator.Record(w)

	require.NoError(t, m.AddSubtype(ref, types.SubtypeSaved, types.SubtypeRecovered))
	assert.True(t, m.HasSubtype(ref, types.SubtypeSaved, types.SubtypeRecovered))
	node, _ := ft.Get(w.NodeID())
	assert.Equal(t, []string{"tk-window", "tk-saved", "tk-recovered"}, node.Classes)

	require.NoError(t, m.RemoveSubtype(ref, types.SubtypeRecovered))
	assert.True(t, m.HasSubtype(ref, types.SubtypeSaved))
	assert.False(t, m.HasSubtype(ref, types.SubtypeSaved, types.SubtypeRecovered))

	assert.True(t, m.HasSubtype(ref), "no subtypes requested")
	assert.False(t, m.HasSubtype(locator.Node("missing"), types.SubtypeSaved))
}

func TestSubtypesAllOrNothing(t *testing.T) {
	m, _ := newTestManager(t)
	w, _ := windowWithTabs(t, m)
	ref := locator.Record(w)

	err := m.AddSubtype(ref, types.SubtypeRecovered, types.Subtype(0x80))
	require.ErrorIs(t, err, ErrUnknownSubtype)
	assert.False(t, m.HasSubtype(ref, types.SubtypeRecovered))

	require.ErrorIs(t, m.AddSubtype(ref, types.SubtypeOpen), ErrManagedSubtype)
	assert.False(t, w.IsOpen)
	assert.ErrorIs(t, m.AddSubtype(locator.Node("missing"), types.SubtypeSaved), ErrNotFound)
}

func TestEraseTab(t *testing.T) {
	m, ft := newTestManager(t)
	w, tabs := windowWithTabs(t, m, "https://a.example", "https://b.example")
	require.NoError(t, m.AttachTab(locator.Record(tabs[0]), types.ResourceTab{ID: 9, URL: "https://a.example"}))

	require.NoError(t, m.EraseTab(locator.Record(tabs[0]), "test"))
	_, ok := ft.Get(tabs[0].NodeID())
	assert.False(t, ok)
	_, ok = m.Store().Tabs.ByNodeID(tabs[0].NodeID())
	assert.False(t, ok)
	_, ok = m.Store().Tabs.ByExternalID(9)
	assert.False(t, ok)
	assert.Equal(t, []types.NodeID{tabs[1].NodeID()}, ft.Children(w.NodeID()))

	assert.ErrorIs(t, m.EraseTab(locator.Record(tabs[0]), "again"), ErrNotFound)
}

func TestEraseTabKeepsRecordWhenNodeSurvives(t *testing.T) {
	m, ft := newTestManager(t)
	_, tabs := windowWithTabs(t, m, "https://a.example")
	ft.failDelete[tabs[0].NodeID()] = true

	require.ErrorIs(t, m.EraseTab(locator.Record(tabs[0]), "test"), errInjected)
	got, ok := m.Store().Tabs.ByNodeID(tabs[0].NodeID())
	require.True(t, ok)
	assert.Same(t, tabs[0], got)
}

func TestEraseWindow(t *testing.T) {
	m, ft := newTestManager(t)
	w, _ := windowWithTabs(t, m, "https://a.example", "https://b.example", "https://c.example")
	require.NoError(t, m.AttachWindow(locator.Record(w), 4))
	hash := w.OrderedHash()
	require.NotEmpty(t, hash)

	require.NoError(t, m.EraseWindow(locator.Record(w)))
	assert.Equal(t, 0, ft.Len())
	assert.Equal(t, 0, m.Store().Windows.Len())
	assert.Equal(t, 0, m.Store().Tabs.Len())
	_, ok := m.Store().Windows.ByOrderedHash(hash)
	assert.False(t, ok)
	_, ok = m.Store().Windows.ByExternalID(4)
	assert.False(t, ok)
}

func TestEraseWindowStopsAtFailingChild(t *testing.T) {
	m, ft := newTestManager(t)
	w, tabs := windowWithTabs(t, m, "https://a.example", "https://b.example", "https://c.example", "https://d.example")
	ft.failDelete[tabs[2].NodeID()] = true

	err := m.EraseWindow(locator.Record(w))
	require.ErrorIs(t, err, ErrPartialErase)
	require.ErrorIs(t, err, errInjected)

	_, ok := m.Store().Windows.ByNodeID(w.NodeID())
	assert.True(t, ok, "window survives")
	assert.Equal(t, []types.NodeID{tabs[2].NodeID(), tabs[3].NodeID()}, ft.Children(w.NodeID()))
	for _, tab := range tabs[:2] {
		_, ok := m.Store().Tabs.ByNodeID(tab.NodeID())
		assert.False(t, ok)
	}
	for _, tab := range tabs[2:] {
		_, ok := m.Store().Tabs.ByNodeID(tab.NodeID())
		assert.True(t, ok)
	}
}

func TestEraseWindowStopsAtMissingRecord(t *testing.T) {
	m, ft := newTestManager(t)
	w, tabs := windowWithTabs(t, m, "https://a.example", "https://b.example", "https://c.example")
	require.NoError(t, m.Store().Tabs.Remove(tabs[1]))

	err := m.EraseWindow(locator.Record(w))
	require.ErrorIs(t, err, ErrPartialErase)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []types.NodeID{tabs[1].NodeID(), tabs[2].NodeID()}, ft.Children(w.NodeID()))
	assert.Empty(t, w.OrderedHash(), "a child without a record makes the window ineligible")
}

func TestRefreshFacets(t *testing.T) {
	m, ft := newTestManager(t)
	_, tabs := windowWithTabs(t, m, "https://a.example")
	tab := tabs[0]
	node, _ := ft.Get(tab.NodeID())

	tab.RawTitle = "Changed"
	tab.RawFaviconURL = "https://a.example/f.png"
	require.NoError(t, m.Refresh(locator.Record(tab), present.FacetIcon))
	assert.Equal(t, "https://a.example/f.png", node.Icon)
	assert.Equal(t, "https://a.example", node.Text, "label not requested")

	require.NoError(t, m.Refresh(locator.Record(tab), 0))
	assert.Equal(t, "Changed", node.Text)
	assert.ErrorIs(t, m.Refresh(locator.Node("missing"), 0), ErrNotFound)
}

func TestRenameAndBullet(t *testing.T) {
	m, ft := newTestManager(t)
	w, tabs := windowWithTabs(t, m, "https://a.example")

	require.NoError(t, m.Rename(locator.Record(w), strp("Research")))
	node, _ := ft.Get(w.NodeID())
	assert.Equal(t, "Research", node.Text)
	require.NoError(t, m.Rename(locator.Record(w), nil))
	assert.Equal(t, "Unsaved", node.Text)

	require.NoError(t, m.SetBullet(locator.Record(tabs[0]), "*"))
	tnode, _ := ft.Get(tabs[0].NodeID())
	assert.Equal(t, "* https://a.example", tnode.Text)
}

func TestMarkSaved(t *testing.T) {
	tests := []struct {
		name  string
		title *string
		want  *string
	}{
		{name: "default title stays default", title: nil, want: nil},
		{name: "decoration stripped", title: strp("Work (Unsaved)"), want: strp("Work")},
		{name: "plain title kept", title: strp("Work"), want: strp("Work")},
		{name: "explicit default label reverts", title: strp("Unsaved"), want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ft := newTestManager(t)
			w, _ := windowWithTabs(t, m)
			w.RawTitle = tt.title

			require.NoError(t, m.MarkSaved(locator.Record(w)))
			assert.Equal(t, types.KeepKept, w.Keep)
			assert.True(t, m.HasSubtype(locator.Record(w), types.SubtypeSaved))
			assert.Equal(t, tt.want, w.RawTitle)

			node, _ := ft.Get(w.NodeID())
			if tt.want == nil {
				assert.Equal(t, "Saved tabs", node.Text)
			} else {
				assert.Equal(t, *tt.want, node.Text)
			}
		})
	}
}

func TestMarkUnsaved(t *testing.T) {
	m, ft := newTestManager(t)
	w, _ := windowWithTabs(t, m)
	require.NoError(t, m.MarkSaved(locator.Record(w)))

	require.NoError(t, m.MarkUnsaved(locator.Record(w)))
	assert.Nil(t, w.RawTitle, "saved default label is replaced, not decorated")
	assert.Equal(t, types.KeepNotKept, w.Keep)
	assert.False(t, m.HasSubtype(locator.Record(w), types.SubtypeSaved))
	node, _ := ft.Get(w.NodeID())
	assert.Equal(t, "Unsaved", node.Text)

	require.NoError(t, m.Rename(locator.Record(w), strp("Work")))
	require.NoError(t, m.MarkUnsaved(locator.Record(w)))
	assert.Equal(t, "Work (Unsaved)", *w.RawTitle)
	require.NoError(t, m.MarkUnsaved(locator.Record(w)))
	assert.Equal(t, "Work (Unsaved)", *w.RawTitle, "decoration is not doubled")

	require.NoError(t, m.ToggleSaved(locator.Record(w)))
	assert.Equal(t, "Work", *w.RawTitle)
	assert.Equal(t, types.KeepKept, w.Keep)
}

func TestMarkUnsavedFreshWindow(t *testing.T) {
	m, ft := newTestManager(t)
	w, _ := windowWithTabs(t, m)
	node, _ := ft.Get(w.NodeID())
	require.Equal(t, "Unsaved", node.Text)

	require.NoError(t, m.MarkUnsaved(locator.Record(w)))
	assert.Nil(t, w.RawTitle, "default unsaved label is not stored")
	node, _ = ft.Get(w.NodeID())
	assert.Equal(t, "Unsaved", node.Text)
}

func TestWindowsAndTabsInTreeOrder(t *testing.T) {
	m, _ := newTestManager(t)
	a, tabs := windowWithTabs(t, m, "https://a.example", "https://b.example")
	b, err := m.CreateWindow(true)
	require.NoError(t, err)

	assert.Equal(t, []*detail.Window{b, a}, m.Windows())
	assert.Equal(t, tabs, m.Tabs(a))
	got, ok := m.WindowOf(tabs[1])
	require.True(t, ok)
	assert.Same(t, a, got)
}
