// Package detail holds the authoritative attributes of every window and tab.
//
// Records live in per-kind tables keyed by a stable ID. Fields that take part
// in a secondary index (external id, ordered URL hash) are unexported and can
// only be changed through the table's Change* methods, which keep the record
// and the index in step.
package detail

import (
	"fmt"

	"github.com/lotas/tabkeeper/internal/types"
)

// Record is implemented by *Window and *Tab.
type Record interface {
	ID() ID
	NodeID() types.NodeID
	Kind() types.Kind
	ExternalID() types.ExternalID
	SubtypeSet() *types.SubtypeSet
}

// Window is the detail record of a window item.
type Window struct {
	id          ID
	nodeID      types.NodeID
	externalID  types.ExternalID
	orderedHash string

	RawTitle *string // nil means "use the computed default"
	Keep     types.Keep
	IsOpen   bool
	Subtypes types.SubtypeSet
}

func (w *Window) ID() ID { return w.id }

// NodeID is empty for a nil window, so a missed lookup resolves to nothing.
func (w *Window) NodeID() types.NodeID {
	if w == nil {
		return ""
	}
	return w.nodeID
}

func (w *Window) Kind() types.Kind              { return types.KindWindow }
func (w *Window) ExternalID() types.ExternalID  { return w.externalID }
func (w *Window) SubtypeSet() *types.SubtypeSet { return &w.Subtypes }

// OrderedHash returns the window's ordered URL hash, or "" when the window is
// not eligible for merge-matching.
func (w *Window) OrderedHash() string { return w.orderedHash }

func (w *Window) recordID() ID                  { return w.id }
func (w *Window) nodeKey() types.NodeID         { return w.nodeID }
func (w *Window) externalKey() types.ExternalID { return w.externalID }

// Tab is the detail record of a tab item. Its parent window is implied by
// the tree.
type Tab struct {
	id         ID
	nodeID     types.NodeID
	externalID types.ExternalID

	// Valid only while IsOpen.
	WindowExternalID types.ExternalID
	Index            int

	RawURL        string
	RawTitle      string
	RawFaviconURL string
	RawBullet     string
	Pinned        bool
	IsOpen        bool
	Subtypes      types.SubtypeSet
}

func (t *Tab) ID() ID { return t.id }

// NodeID is empty for a nil tab.
func (t *Tab) NodeID() types.NodeID {
	if t == nil {
		return ""
	}
	return t.nodeID
}

func (t *Tab) Kind() types.Kind              { return types.KindTab }
func (t *Tab) ExternalID() types.ExternalID  { return t.externalID }
func (t *Tab) SubtypeSet() *types.SubtypeSet { return &t.Subtypes }

func (t *Tab) recordID() ID                  { return t.id }
func (t *Tab) nodeKey() types.NodeID         { return t.nodeID }
func (t *Tab) externalKey() types.ExternalID { return t.externalID }

// WindowInit carries the initial fields of a new window record.
type WindowInit struct {
	NodeID   types.NodeID
	RawTitle *string
	Keep     types.Keep
}

// TabInit carries the initial fields of a new tab record.
type TabInit struct {
	NodeID     types.NodeID
	URL        string
	Title      string
	FaviconURL string
	Bullet     string
	Pinned     bool
}

// Store owns every record. It is not safe for concurrent use; callers
// serialise access on their event loop.
type Store struct {
	Windows *WindowTable
	Tabs    *TabTable
	lastID  ID
}

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	s.Windows = &WindowTable{table: newTable[*Window](), byHash: make(map[string]ID), store: s}
	s.Tabs = &TabTable{table: newTable[*Tab](), store: s}
	return s
}

func (s *Store) nextID() ID {
	s.lastID++
	return s.lastID
}

// Lookup finds a record of either kind by node id.
func (s *Store) Lookup(n types.NodeID) (Record, bool) {
	if w, ok := s.Windows.ByNodeID(n); ok {
		return w, true
	}
	if t, ok := s.Tabs.ByNodeID(n); ok {
		return t, true
	}
	return nil, false
}

// WindowTable holds window records.
type WindowTable struct {
	table[*Window]
	byHash map[string]ID
	store  *Store
}

// Add creates a window record. It fails if the node id is empty or already
// claimed by any record.
func (t *WindowTable) Add(init WindowInit) (*Window, error) {
	if _, taken := t.store.Tabs.ByNodeID(init.NodeID); taken {
		return nil, fmt.Errorf("node %s: %w", init.NodeID, ErrDuplicateKey)
	}
	w := &Window{
		id:         t.store.nextID(),
		nodeID:     init.NodeID,
		externalID: types.NoExternalID,
		RawTitle:   init.RawTitle,
		Keep:       init.Keep,
	}
	if err := t.checkInsert(w); err != nil {
		return nil, err
	}
	t.insert(w)
	return w, nil
}

// Remove drops w and its index entries.
func (t *WindowTable) Remove(w *Window) error {
	if err := t.remove(w); err != nil {
		return err
	}
	if w.orderedHash != "" && t.byHash[w.orderedHash] == w.id {
		delete(t.byHash, w.orderedHash)
	}
	return nil
}

// Reinsert puts a previously removed record back under its original ID.
func (t *WindowTable) Reinsert(w *Window) error {
	if err := t.checkInsert(w); err != nil {
		return err
	}
	if w.orderedHash != "" {
		if _, ok := t.byHash[w.orderedHash]; ok {
			return fmt.Errorf("hash %s: %w", w.orderedHash, ErrDuplicateKey)
		}
	}
	t.insert(w)
	if w.orderedHash != "" {
		t.byHash[w.orderedHash] = w.id
	}
	return nil
}

func (t *WindowTable) ByNodeID(n types.NodeID) (*Window, bool) { return t.lookupNode(n) }

func (t *WindowTable) ByExternalID(ext types.ExternalID) (*Window, bool) {
	return t.lookupExternal(ext)
}

// ByOrderedHash returns the window currently holding hash.
func (t *WindowTable) ByOrderedHash(hash string) (*Window, bool) {
	if hash == "" {
		return nil, false
	}
	id, ok := t.byHash[hash]
	if !ok {
		return nil, false
	}
	return t.rows[id], true
}

// ChangeExternalID sets w's external id and updates the index.
func (t *WindowTable) ChangeExternalID(w *Window, ext types.ExternalID) error {
	if err := t.moveExternal(w, w.externalID, ext); err != nil {
		return err
	}
	w.externalID = ext
	return nil
}

// ChangeOrderedHash sets w's ordered hash and updates the index. An empty
// hash clears it. At most one window holds a given hash.
func (t *WindowTable) ChangeOrderedHash(w *Window, hash string) error {
	if !t.holds(w) {
		return ErrUnknownRecord
	}
	if hash == w.orderedHash {
		return nil
	}
	if hash != "" {
		if other, ok := t.byHash[hash]; ok && other != w.id {
			return fmt.Errorf("hash %s: %w", hash, ErrDuplicateKey)
		}
	}
	if w.orderedHash != "" {
		delete(t.byHash, w.orderedHash)
	}
	if hash != "" {
		t.byHash[hash] = w.id
	}
	w.orderedHash = hash
	return nil
}

func (t *WindowTable) Len() int { return len(t.rows) }

// All returns every window in creation order.
func (t *WindowTable) All() []*Window { return t.sorted() }

// TabTable holds tab records.
type TabTable struct {
	table[*Tab]
	store *Store
}

// Add creates a tab record.
func (t *TabTable) Add(init TabInit) (*Tab, error) {
	if _, taken := t.store.Windows.ByNodeID(init.NodeID); taken {
		return nil, fmt.Errorf("node %s: %w", init.NodeID, ErrDuplicateKey)
	}
	tab := &Tab{
		id:               t.store.nextID(),
		nodeID:           init.NodeID,
		externalID:       types.NoExternalID,
		WindowExternalID: types.NoExternalID,
		Index:            -1,
		RawURL:           init.URL,
		RawTitle:         init.Title,
		RawFaviconURL:    init.FaviconURL,
		RawBullet:        init.Bullet,
		Pinned:           init.Pinned,
	}
	if err := t.checkInsert(tab); err != nil {
		return nil, err
	}
	t.insert(tab)
	return tab, nil
}

func (t *TabTable) Remove(tab *Tab) error { return t.remove(tab) }

// Reinsert puts a previously removed record back under its original ID.
func (t *TabTable) Reinsert(tab *Tab) error {
	if err := t.checkInsert(tab); err != nil {
		return err
	}
	t.insert(tab)
	return nil
}

func (t *TabTable) ByNodeID(n types.NodeID) (*Tab, bool) { return t.lookupNode(n) }

func (t *TabTable) ByExternalID(ext types.ExternalID) (*Tab, bool) {
	return t.lookupExternal(ext)
}

// ChangeExternalID sets tab's external id and updates the index.
func (t *TabTable) ChangeExternalID(tab *Tab, ext types.ExternalID) error {
	if err := t.moveExternal(tab, tab.externalID, ext); err != nil {
		return err
	}
	tab.externalID = ext
	return nil
}

func (t *TabTable) Len() int { return len(t.rows) }

// All returns every tab in creation order.
func (t *TabTable) All() []*Tab { return t.sorted() }
