// Package lifecycle keeps the presentation tree and the detail store in step
// as items are created, attached to live browser resources, detached,
// retyped and destroyed.
//
// Manager is not safe for concurrent use. All calls are expected to come from
// a single event loop; a call either completes or reports failure, and the
// tree/store pairing holds again when it returns.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/lotas/tabkeeper/internal/applog"
	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/i18n"
	"github.com/lotas/tabkeeper/internal/locator"
	"github.com/lotas/tabkeeper/internal/present"
	"github.com/lotas/tabkeeper/internal/tree"
	"github.com/lotas/tabkeeper/internal/types"
)

var (
	ErrNotFound           = errors.New("item not found")
	ErrAlreadyOpen        = errors.New("already attached to a live resource")
	ErrNotOpen            = errors.New("not attached to a live resource")
	ErrInvalidExternalID  = errors.New("invalid external id")
	ErrUnknownSubtype     = errors.New("unknown subtype")
	ErrManagedSubtype     = errors.New("subtype is managed by attach/detach")
	ErrHashClaimed        = errors.New("ordered hash held by another window")
	ErrIncompleteChildren = errors.New("child tab without url")
	ErrEmptyWindow        = errors.New("window has no tabs")
	ErrPartialErase       = errors.New("window partially erased")
)

// Manager owns the item lifecycle.
type Manager struct {
	store  *detail.Store
	widget tree.Widget
	loc    *locator.Locator
	view   *present.Adapter
}

// New wires a Manager over an empty store.
func New(widget tree.Widget, strs *i18n.Strings) *Manager {
	store := detail.New()
	return &Manager{
		store:  store,
		widget: widget,
		loc:    locator.New(store),
		view:   present.New(widget, strs),
	}
}

func (m *Manager) Store() *detail.Store        { return m.store }
func (m *Manager) Widget() tree.Widget         { return m.widget }
func (m *Manager) Locator() *locator.Locator   { return m.loc }
func (m *Manager) Presenter() *present.Adapter { return m.view }

// TabSpec carries the initial attributes of a new tab.
type TabSpec struct {
	URL        string
	Title      string
	FaviconURL string
	Bullet     string
	Pinned     bool
}

// CreateWindow rezzes a window: tree node first, then the detail record.
// The node is removed again if the record cannot be built.
func (m *Manager) CreateWindow(asFirstChild bool) (*detail.Window, error) {
	pos := tree.Last
	if asFirstChild {
		pos = 0
	}
	node, err := m.widget.Create(tree.Root, pos, "")
	if err != nil {
		return nil, fmt.Errorf("create window node: %w", err)
	}
	w, err := m.store.Windows.Add(detail.WindowInit{NodeID: node})
	if err != nil {
		m.rollbackNode(node)
		return nil, fmt.Errorf("create window record: %w", err)
	}
	m.refresh(w, node, present.FacetAll)
	applog.Info("lifecycle.rez.window", "node", node, "id", w.ID())
	return w, nil
}

// CreateTab rezzes a tab as the last child of parent.
func (m *Manager) CreateTab(parent locator.Ref, spec TabSpec) (*detail.Tab, error) {
	return m.createTab(parent, tree.Last, spec, true)
}

// CreateTabAt rezzes a tab at position pos under parent.
func (m *Manager) CreateTabAt(parent locator.Ref, pos int, spec TabSpec) (*detail.Tab, error) {
	return m.createTab(parent, pos, spec, true)
}

func (m *Manager) createTab(parent locator.Ref, pos int, spec TabSpec, rehash bool) (*detail.Tab, error) {
	pw, pnode, ok := m.loc.Window(parent)
	if !ok {
		return nil, fmt.Errorf("parent window: %w", ErrNotFound)
	}
	if _, ok := m.widget.Get(pnode); !ok {
		return nil, fmt.Errorf("parent node %s: %w", pnode, ErrNotFound)
	}

	node, err := m.widget.Create(pnode, pos, "")
	if err != nil {
		return nil, fmt.Errorf("create tab node: %w", err)
	}
	tab, err := m.store.Tabs.Add(detail.TabInit{
		NodeID:     node,
		URL:        spec.URL,
		Title:      spec.Title,
		FaviconURL: spec.FaviconURL,
		Bullet:     spec.Bullet,
		Pinned:     spec.Pinned,
	})
	if err != nil {
		m.rollbackNode(node)
		return nil, fmt.Errorf("create tab record: %w", err)
	}

	m.refresh(tab, node, present.FacetAll)
	if err := m.view.Reflow(pnode); err != nil {
		applog.Error("lifecycle.reflow", err, "node", pnode)
	}
	if rehash {
		m.childrenChanged(pw, pnode)
	}
	return tab, nil
}

func (m *Manager) rollbackNode(node types.NodeID) {
	if err := m.widget.Delete(node); err != nil {
		applog.Error("lifecycle.rollback", err, "node", node)
	}
}

// AttachWindow binds a closed window to the live window ext and expands its
// node. Attaching an open window is refused without any change.
func (m *Manager) AttachWindow(ref locator.Ref, ext types.ExternalID) error {
	w, node, ok := m.loc.Window(ref)
	if !ok {
		return ErrNotFound
	}
	if w.IsOpen || w.ExternalID() != types.NoExternalID {
		applog.Info("lifecycle.attach.refused", "kind", "window", "node", node, "ext", w.ExternalID())
		return ErrAlreadyOpen
	}
	if ext == types.NoExternalID {
		return ErrInvalidExternalID
	}
	if err := m.store.Windows.ChangeExternalID(w, ext); err != nil {
		return fmt.Errorf("attach window: %w", err)
	}
	w.IsOpen = true
	w.Subtypes.Add(types.SubtypeOpen)
	if err := m.widget.Open(node); err != nil {
		applog.Error("lifecycle.open.node", err, "node", node)
	}
	m.refresh(w, node, present.FacetAll)
	return nil
}

// AttachTab binds a closed tab to the live tab res, copying the resource's
// fields into the record.
func (m *Manager) AttachTab(ref locator.Ref, res types.ResourceTab) error {
	return m.attachTab(ref, res, true)
}

func (m *Manager) attachTab(ref locator.Ref, res types.ResourceTab, rehash bool) error {
	tab, node, ok := m.loc.Tab(ref)
	if !ok {
		return ErrNotFound
	}
	if tab.IsOpen || tab.ExternalID() != types.NoExternalID {
		applog.Info("lifecycle.attach.refused", "kind", "tab", "node", node, "ext", tab.ExternalID())
		return ErrAlreadyOpen
	}
	if res.ID == types.NoExternalID {
		return ErrInvalidExternalID
	}
	if err := m.store.Tabs.ChangeExternalID(tab, res.ID); err != nil {
		return fmt.Errorf("attach tab: %w", err)
	}
	tab.WindowExternalID = res.WindowID
	tab.Index = res.Index
	tab.RawURL = res.URL
	tab.RawTitle = res.Title
	tab.RawFaviconURL = res.FavIconURL
	tab.Pinned = res.Pinned
	tab.IsOpen = true
	tab.Subtypes.Add(types.SubtypeOpen)

	m.refresh(tab, node, present.FacetAll)
	if pnode, ok := m.widget.Parent(node); ok {
		if err := m.widget.Open(pnode); err != nil {
			applog.Error("lifecycle.open.node", err, "node", pnode)
		}
		if pw, ok := m.store.Windows.ByNodeID(pnode); ok && rehash {
			m.childrenChanged(pw, pnode)
		}
	}
	return nil
}

// DetachWindow unbinds w from its live window. Persistence fields are left
// alone; detaching never erases.
func (m *Manager) DetachWindow(ref locator.Ref) error {
	w, node, ok := m.loc.Window(ref)
	if !ok {
		return ErrNotFound
	}
	if !w.IsOpen && w.ExternalID() == types.NoExternalID {
		applog.Info("lifecycle.detach.refused", "kind", "window", "node", node)
		return ErrNotOpen
	}
	if err := m.store.Windows.ChangeExternalID(w, types.NoExternalID); err != nil {
		return fmt.Errorf("detach window: %w", err)
	}
	w.IsOpen = false
	w.Subtypes.Remove(types.SubtypeOpen)
	m.refresh(w, node, present.FacetAll)
	return nil
}

// DetachTab unbinds a tab from its live tab and clears the fields that are
// only meaningful while open.
func (m *Manager) DetachTab(ref locator.Ref) error {
	tab, node, ok := m.loc.Tab(ref)
	if !ok {
		return ErrNotFound
	}
	if !tab.IsOpen && tab.ExternalID() == types.NoExternalID {
		applog.Info("lifecycle.detach.refused", "kind", "tab", "node", node)
		return ErrNotOpen
	}
	if err := m.store.Tabs.ChangeExternalID(tab, types.NoExternalID); err != nil {
		return fmt.Errorf("detach tab: %w", err)
	}
	tab.WindowExternalID = types.NoExternalID
	tab.Index = -1
	tab.IsOpen = false
	tab.Subtypes.Remove(types.SubtypeOpen)
	m.refresh(tab, node, present.FacetAll)
	return nil
}

// AddSubtype tags the item with every given subtype. The whole call fails,
// with nothing applied, if any subtype is unknown or is SubtypeOpen.
func (m *Manager) AddSubtype(ref locator.Ref, subtypes ...types.Subtype) error {
	return m.applySubtypes(ref, subtypes, (*types.SubtypeSet).Add)
}

// RemoveSubtype untags the item. Validation is the same as AddSubtype.
func (m *Manager) RemoveSubtype(ref locator.Ref, subtypes ...types.Subtype) error {
	return m.applySubtypes(ref, subtypes, (*types.SubtypeSet).Remove)
}

func (m *Manager) applySubtypes(ref locator.Ref, subtypes []types.Subtype, apply func(*types.SubtypeSet, types.Subtype)) error {
	it, ok := m.loc.Resolve(ref, types.KindAny)
	if !ok {
		return ErrNotFound
	}
	for _, s := range subtypes {
		if !s.Valid() {
			return fmt.Errorf("subtype %d: %w", s, ErrUnknownSubtype)
		}
		if s == types.SubtypeOpen {
			return ErrManagedSubtype
		}
	}
	set := it.Record.SubtypeSet()
	for _, s := range subtypes {
		apply(set, s)
	}
	m.refresh(it.Record, it.NodeID, present.FacetAll)
	return nil
}

// HasSubtype reports whether the item carries every given subtype.
func (m *Manager) HasSubtype(ref locator.Ref, subtypes ...types.Subtype) bool {
	it, ok := m.loc.Resolve(ref, types.KindAny)
	if !ok {
		return false
	}
	set := *it.Record.SubtypeSet()
	for _, s := range subtypes {
		if !set.Has(s) {
			return false
		}
	}
	return true
}

// EraseTab destroys a tab. The record leaves the store before its node leaves
// the tree so nothing can resolve a half-deleted item.
func (m *Manager) EraseTab(ref locator.Ref, reason string) error {
	return m.eraseTab(ref, reason, true)
}

func (m *Manager) eraseTab(ref locator.Ref, reason string, rehash bool) error {
	tab, node, ok := m.loc.Tab(ref)
	if !ok {
		return ErrNotFound
	}
	pnode, hasParent := m.widget.Parent(node)

	if err := m.store.Tabs.Remove(tab); err != nil {
		return fmt.Errorf("erase tab: %w", err)
	}
	if err := m.widget.Delete(node); err != nil {
		if rerr := m.store.Tabs.Reinsert(tab); rerr != nil {
			applog.Error("lifecycle.erase.reinsert", rerr, "node", node)
		}
		return fmt.Errorf("erase tab node: %w", err)
	}
	applog.Info("lifecycle.erase.tab", "node", node, "reason", reason)

	if hasParent && rehash {
		if pw, ok := m.store.Windows.ByNodeID(pnode); ok {
			m.childrenChanged(pw, pnode)
		}
	}
	return nil
}

// EraseWindow destroys a window after erasing its tabs in tree order. It
// stops at the first tab that cannot be erased: the window and the remaining
// tabs stay, and the returned error wraps ErrPartialErase.
func (m *Manager) EraseWindow(ref locator.Ref) error {
	w, node, ok := m.loc.Window(ref)
	if !ok {
		return ErrNotFound
	}
	children := m.widget.Children(node)
	for i, c := range children {
		if err := m.eraseTab(locator.Node(c), "window erased", false); err != nil {
			applog.Error("lifecycle.erase.partial", err, "node", node, "erased", i, "children", len(children))
			m.childrenChanged(w, node)
			return fmt.Errorf("erase tab %d of %d: %w: %w", i+1, len(children), ErrPartialErase, err)
		}
	}

	if err := m.store.Windows.Remove(w); err != nil {
		return fmt.Errorf("erase window: %w", err)
	}
	if err := m.widget.Delete(node); err != nil {
		if rerr := m.store.Windows.Reinsert(w); rerr != nil {
			applog.Error("lifecycle.erase.reinsert", rerr, "node", node)
		}
		return fmt.Errorf("erase window node: %w", err)
	}
	applog.Info("lifecycle.erase.window", "node", node, "tabs", len(children))
	return nil
}

// Refresh recomputes the given facets of the item (all when facets is 0) and
// pushes them to the tree.
func (m *Manager) Refresh(ref locator.Ref, facets present.Facet) error {
	it, ok := m.loc.Resolve(ref, types.KindAny)
	if !ok {
		return ErrNotFound
	}
	return m.view.Refresh(it.Record, it.NodeID, facets)
}

func (m *Manager) refresh(rec detail.Record, node types.NodeID, facets present.Facet) {
	if err := m.view.Refresh(rec, node, facets); err != nil {
		applog.Error("lifecycle.refresh", err, "node", node)
	}
}

// Rename sets an item's raw title. For windows nil restores the default
// title; for tabs nil clears the title.
func (m *Manager) Rename(ref locator.Ref, title *string) error {
	it, ok := m.loc.Resolve(ref, types.KindAny)
	if !ok {
		return ErrNotFound
	}
	switch r := it.Record.(type) {
	case *detail.Window:
		r.RawTitle = title
	case *detail.Tab:
		r.RawTitle = ""
		if title != nil {
			r.RawTitle = *title
		}
	}
	m.refresh(it.Record, it.NodeID, present.FacetTooltip|present.FacetLabel)
	return nil
}

// SetBullet sets the decoration shown before a tab's title.
func (m *Manager) SetBullet(ref locator.Ref, bullet string) error {
	tab, node, ok := m.loc.Tab(ref)
	if !ok {
		return ErrNotFound
	}
	tab.RawBullet = bullet
	m.refresh(tab, node, present.FacetLabel)
	return nil
}

// Windows returns all windows in tree order.
func (m *Manager) Windows() []*detail.Window {
	var out []*detail.Window
	for _, n := range m.widget.Children(tree.Root) {
		if w, ok := m.store.Windows.ByNodeID(n); ok {
			out = append(out, w)
		}
	}
	return out
}

// Tabs returns the tabs of w in tree order.
func (m *Manager) Tabs(w *detail.Window) []*detail.Tab {
	return m.tabsUnder(w.NodeID())
}

// WindowOf returns the window holding tab.
func (m *Manager) WindowOf(tab *detail.Tab) (*detail.Window, bool) {
	pnode, ok := m.widget.Parent(tab.NodeID())
	if !ok {
		return nil, false
	}
	return m.store.Windows.ByNodeID(pnode)
}
