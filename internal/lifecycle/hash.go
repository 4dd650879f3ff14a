package lifecycle

import (
	"errors"

	"github.com/lotas/tabkeeper/internal/applog"
	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/hasher"
	"github.com/lotas/tabkeeper/internal/locator"
	"github.com/lotas/tabkeeper/internal/present"
	"github.com/lotas/tabkeeper/internal/types"
)

// UpdateOrderedURLHash recomputes the window's fingerprint from its tab URLs
// in tree order.
//
// A window with no tabs, or with a tab lacking a URL, has its hash cleared
// and gets ErrEmptyWindow or ErrIncompleteChildren. If another window already
// holds the digest, that window keeps it: this one is cleared and gets
// ErrHashClaimed. Only one window per distinct tab sequence is ever eligible
// for merging.
func (m *Manager) UpdateOrderedURLHash(ref locator.Ref) error {
	w, node, ok := m.loc.Window(ref)
	if !ok {
		return ErrNotFound
	}

	children := m.widget.Children(node)
	if len(children) == 0 {
		m.clearHash(w)
		return ErrEmptyWindow
	}
	urls := make([]string, 0, len(children))
	for _, c := range children {
		tab, ok := m.store.Tabs.ByNodeID(c)
		if !ok || tab.RawURL == "" {
			m.clearHash(w)
			return ErrIncompleteChildren
		}
		urls = append(urls, tab.RawURL)
	}

	digest := hasher.Ordered(urls)
	if holder, ok := m.store.Windows.ByOrderedHash(digest); ok {
		if holder == w {
			return nil
		}
		m.clearHash(w)
		applog.Info("lifecycle.hash.claimed", "node", node, "holder", holder.NodeID())
		return ErrHashClaimed
	}
	return m.store.Windows.ChangeOrderedHash(w, digest)
}

func (m *Manager) clearHash(w *detail.Window) {
	if err := m.store.Windows.ChangeOrderedHash(w, ""); err != nil {
		applog.Error("lifecycle.hash.clear", err, "node", w.NodeID())
	}
}

// childrenChanged runs merge detection and repaints the window's tooltip
// after its tab set changed. Losing the hash is expected and only logged.
func (m *Manager) childrenChanged(w *detail.Window, node types.NodeID) {
	err := m.UpdateOrderedURLHash(locator.Record(w))
	switch {
	case err == nil:
	case errors.Is(err, ErrHashClaimed), errors.Is(err, ErrEmptyWindow), errors.Is(err, ErrIncompleteChildren):
	default:
		applog.Error("lifecycle.hash.update", err, "node", node)
	}
	m.refresh(w, node, present.FacetTooltip)
}
