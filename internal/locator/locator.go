// Package locator turns any reference to an item into its detail record and
// node id. Every other component resolves references through here.
package locator

import (
	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/tree"
	"github.com/lotas/tabkeeper/internal/types"
)

// Ref is a reference to an item in one of three forms. Build one with Node,
// Record or Handle.
type Ref struct {
	form   form
	node   types.NodeID
	record detail.Record
	handle *tree.Node
}

type form uint8

const (
	formNone form = iota
	formNode
	formRecord
	formHandle
)

// Node refers to an item by node id.
func Node(id types.NodeID) Ref { return Ref{form: formNode, node: id} }

// Record refers to an item by its detail record.
func Record(r detail.Record) Ref { return Ref{form: formRecord, record: r} }

// Handle refers to an item by its tree node.
func Handle(n *tree.Node) Ref { return Ref{form: formHandle, handle: n} }

// Item is a resolved reference. The zero Item is NONE.
type Item struct {
	Record detail.Record
	NodeID types.NodeID
}

// None is the not-found result.
var None = Item{}

// Window returns the record as a window, or nil.
func (it Item) Window() *detail.Window {
	w, _ := it.Record.(*detail.Window)
	return w
}

// Tab returns the record as a tab, or nil.
func (it Item) Tab() *detail.Tab {
	t, _ := it.Record.(*detail.Tab)
	return t
}

// Locator resolves references against a Store.
type Locator struct {
	store *detail.Store
}

func New(store *detail.Store) *Locator {
	return &Locator{store: store}
}

// Resolve maps ref to its record and node id. want restricts the kind;
// types.KindAny accepts both. A kind mismatch is a miss, not a coercion.
func (l *Locator) Resolve(ref Ref, want types.Kind) (Item, bool) {
	var id types.NodeID
	switch ref.form {
	case formNode:
		id = ref.node
	case formHandle:
		if ref.handle == nil {
			return None, false
		}
		id = ref.handle.ID
	case formRecord:
		if ref.record == nil || ref.record.NodeID() == "" {
			return None, false
		}
		id = ref.record.NodeID()
	default:
		return None, false
	}
	if id == "" {
		return None, false
	}

	var rec detail.Record
	switch want {
	case types.KindWindow:
		if w, ok := l.store.Windows.ByNodeID(id); ok {
			rec = w
		}
	case types.KindTab:
		if t, ok := l.store.Tabs.ByNodeID(id); ok {
			rec = t
		}
	default:
		if r, ok := l.store.Lookup(id); ok {
			rec = r
		}
	}
	if rec == nil {
		return None, false
	}
	// A record passed in by value must still be the live one.
	if ref.form == formRecord && rec != ref.record {
		return None, false
	}
	return Item{Record: rec, NodeID: id}, true
}

// Window resolves ref as a window.
func (l *Locator) Window(ref Ref) (*detail.Window, types.NodeID, bool) {
	it, ok := l.Resolve(ref, types.KindWindow)
	if !ok {
		return nil, "", false
	}
	return it.Window(), it.NodeID, true
}

// Tab resolves ref as a tab.
func (l *Locator) Tab(ref Ref) (*detail.Tab, types.NodeID, bool) {
	it, ok := l.Resolve(ref, types.KindTab)
	if !ok {
		return nil, "", false
	}
	return it.Tab(), it.NodeID, true
}
