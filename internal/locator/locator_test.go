package locator

import (
	"testing"

	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/tree"
	"github.com/lotas/tabkeeper/internal/types"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Locator, *tree.Tree, *detail.Window, *detail.Tab) {
	t.Helper()
	tr := tree.New()
	store := detail.New()

	wn, err := tr.Create(tree.Root, tree.Last, "")
	require.NoError(t, err)
	w, err := store.Windows.Add(detail.WindowInit{NodeID: wn})
	require.NoError(t, err)

	tn, err := tr.Create(wn, tree.Last, "")
	require.NoError(t, err)
	tab, err := store.Tabs.Add(detail.TabInit{NodeID: tn, URL: "https://a"})
	require.NoError(t, err)

	return New(store), tr, w, tab
}

func TestResolveRoundTrip(t *testing.T) {
	loc, tr, w, tab := setup(t)

	for _, rec := range []detail.Record{w, tab} {
		handle, ok := tr.Get(rec.NodeID())
		require.True(t, ok)

		byNode, ok := loc.Resolve(Node(rec.NodeID()), types.KindAny)
		require.True(t, ok)
		byRecord, ok := loc.Resolve(Record(rec), types.KindAny)
		require.True(t, ok)
		byHandle, ok := loc.Resolve(Handle(handle), types.KindAny)
		require.True(t, ok)

		require.Equal(t, byNode, byRecord)
		require.Equal(t, byNode, byHandle)
		require.Equal(t, rec.NodeID(), byNode.NodeID)
		require.Equal(t, rec, byNode.Record)
	}
}

func TestResolveTypeGuard(t *testing.T) {
	loc, _, w, tab := setup(t)

	_, ok := loc.Resolve(Record(w), types.KindTab)
	require.False(t, ok)
	_, ok = loc.Resolve(Node(tab.NodeID()), types.KindWindow)
	require.False(t, ok)

	got, _, ok := loc.Window(Node(w.NodeID()))
	require.True(t, ok)
	require.Same(t, w, got)

	gotTab, _, ok := loc.Tab(Record(tab))
	require.True(t, ok)
	require.Same(t, tab, gotTab)
}

func TestResolveMisses(t *testing.T) {
	loc, _, _, _ := setup(t)

	cases := []struct {
		name string
		ref  Ref
	}{
		{"zero ref", Ref{}},
		{"empty node id", Node("")},
		{"unknown node id", Node("missing")},
		{"nil handle", Handle(nil)},
		{"nil record", Record(nil)},
		{"record without node id", Record(&detail.Tab{})},
		{"nil window pointer", Record((*detail.Window)(nil))},
		{"nil tab pointer", Record((*detail.Tab)(nil))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it, ok := loc.Resolve(tc.ref, types.KindAny)
			require.False(t, ok)
			require.Equal(t, None, it)
		})
	}
}

func TestResolveMissedLookup(t *testing.T) {
	loc, _, _, _ := setup(t)
	store := detail.New()
	w, ok := store.Windows.ByNodeID("missing")
	require.False(t, ok)

	for _, want := range []types.Kind{types.KindAny, types.KindWindow, types.KindTab} {
		require.NotPanics(t, func() {
			_, found := loc.Resolve(Record(w), want)
			require.False(t, found)
		})
	}
	_, _, found := loc.Window(Record(w))
	require.False(t, found)
}

func TestResolveRemovedRecord(t *testing.T) {
	store := detail.New()
	loc := New(store)
	tab, err := store.Tabs.Add(detail.TabInit{NodeID: "t"})
	require.NoError(t, err)
	require.NoError(t, store.Tabs.Remove(tab))

	_, ok := loc.Resolve(Record(tab), types.KindAny)
	require.False(t, ok)
}
