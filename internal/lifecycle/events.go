package lifecycle

import (
	"errors"
	"fmt"

	"github.com/lotas/tabkeeper/internal/applog"
	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/hasher"
	"github.com/lotas/tabkeeper/internal/locator"
	"github.com/lotas/tabkeeper/internal/present"
	"github.com/lotas/tabkeeper/internal/tree"
	"github.com/lotas/tabkeeper/internal/types"
)

// WindowOpened handles a live window appearing.
func (m *Manager) WindowOpened(res types.ResourceWindow) error {
	_, _, err := m.OpenWindow(res)
	return err
}

// OpenWindow brings a live window into the model. If a closed window with the
// same ordered tab URLs exists, the live window is merged into it and merged
// is true. Otherwise a new not-kept window is rezzed with one tab per live
// tab.
func (m *Manager) OpenWindow(res types.ResourceWindow) (w *detail.Window, merged bool, err error) {
	if _, ok := m.store.Windows.ByExternalID(res.ID); ok {
		applog.Info("lifecycle.window.duplicate", "ext", res.ID)
		return nil, false, ErrAlreadyOpen
	}

	if w, ok := m.mergeTarget(res); ok {
		if err := m.AttachWindow(locator.Record(w), res.ID); err != nil {
			return nil, false, err
		}
		for i, tab := range m.Tabs(w) {
			if err := m.attachTab(locator.Record(tab), res.Tabs[i], false); err != nil {
				applog.Error("lifecycle.merge.tab", err, "node", tab.NodeID(), "ext", res.Tabs[i].ID)
			}
		}
		m.childrenChanged(w, w.NodeID())
		applog.Info("lifecycle.merge", "node", w.NodeID(), "ext", res.ID, "tabs", len(res.Tabs))
		return w, true, nil
	}

	w, err = m.CreateWindow(false)
	if err != nil {
		return nil, false, err
	}
	w.Keep = types.KeepNotKept
	if err := m.AttachWindow(locator.Record(w), res.ID); err != nil {
		return nil, false, err
	}
	for _, rt := range res.Tabs {
		tab, err := m.createTab(locator.Record(w), tree.Last, TabSpec{}, false)
		if err != nil {
			return w, false, fmt.Errorf("open window %d: %w", res.ID, err)
		}
		if err := m.attachTab(locator.Record(tab), rt, false); err != nil {
			return w, false, fmt.Errorf("open window %d: %w", res.ID, err)
		}
	}
	m.childrenChanged(w, w.NodeID())
	m.refresh(w, w.NodeID(), present.FacetAll)
	return w, false, nil
}

// mergeTarget finds a closed window whose tab sequence matches res.
func (m *Manager) mergeTarget(res types.ResourceWindow) (*detail.Window, bool) {
	if len(res.Tabs) == 0 {
		return nil, false
	}
	for _, t := range res.Tabs {
		if t.URL == "" {
			return nil, false
		}
	}
	w, ok := m.store.Windows.ByOrderedHash(hasher.Ordered(res.URLs()))
	if !ok || w.IsOpen {
		return nil, false
	}
	tabs := m.Tabs(w)
	if len(tabs) != len(res.Tabs) {
		return nil, false
	}
	for _, t := range tabs {
		if t.IsOpen {
			return nil, false
		}
	}
	return w, true
}

// WindowClosed handles a live window going away. Kept windows are detached
// along with their tabs; everything else is erased.
func (m *Manager) WindowClosed(ext types.ExternalID) error {
	w, ok := m.store.Windows.ByExternalID(ext)
	if !ok {
		return fmt.Errorf("window %d: %w", ext, ErrNotFound)
	}
	if w.Keep != types.KeepKept {
		return m.EraseWindow(locator.Record(w))
	}
	for _, tab := range m.Tabs(w) {
		if !tab.IsOpen {
			continue
		}
		if err := m.DetachTab(locator.Record(tab)); err != nil {
			applog.Error("lifecycle.detach.tab", err, "node", tab.NodeID())
		}
	}
	return m.DetachWindow(locator.Record(w))
}

// TabCreated handles a new live tab in a known window.
func (m *Manager) TabCreated(res types.ResourceTab) error {
	if _, ok := m.store.Tabs.ByExternalID(res.ID); ok {
		applog.Info("lifecycle.tab.duplicate", "ext", res.ID)
		return ErrAlreadyOpen
	}
	w, ok := m.store.Windows.ByExternalID(res.WindowID)
	if !ok {
		return fmt.Errorf("window %d: %w", res.WindowID, ErrNotFound)
	}
	tab, err := m.createTab(locator.Record(w), res.Index, TabSpec{}, false)
	if err != nil {
		return err
	}
	if err := m.attachTab(locator.Record(tab), res, false); err != nil {
		return err
	}
	m.syncIndices(w.NodeID())
	m.childrenChanged(w, w.NodeID())
	return nil
}

// TabUpdated copies changed live fields into the tab record.
func (m *Manager) TabUpdated(res types.ResourceTab) error {
	tab, ok := m.store.Tabs.ByExternalID(res.ID)
	if !ok {
		return fmt.Errorf("tab %d: %w", res.ID, ErrNotFound)
	}
	urlChanged := tab.RawURL != res.URL
	tab.RawURL = res.URL
	tab.RawTitle = res.Title
	tab.RawFaviconURL = res.FavIconURL
	tab.Pinned = res.Pinned
	m.refresh(tab, tab.NodeID(), present.FacetAll)

	if w, ok := m.WindowOf(tab); ok {
		if urlChanged {
			m.childrenChanged(w, w.NodeID())
		} else {
			m.refresh(w, w.NodeID(), present.FacetTooltip)
		}
	}
	return nil
}

// TabMoved repositions a live tab, possibly into another window.
func (m *Manager) TabMoved(ext, windowExt types.ExternalID, index int) error {
	tab, ok := m.store.Tabs.ByExternalID(ext)
	if !ok {
		return fmt.Errorf("tab %d: %w", ext, ErrNotFound)
	}
	to, ok := m.store.Windows.ByExternalID(windowExt)
	if !ok {
		return fmt.Errorf("window %d: %w", windowExt, ErrNotFound)
	}
	from, hadParent := m.WindowOf(tab)

	if err := m.widget.Move(tab.NodeID(), to.NodeID(), index); err != nil {
		return fmt.Errorf("move tab: %w", err)
	}
	tab.WindowExternalID = windowExt

	m.syncIndices(to.NodeID())
	if err := m.view.Reflow(to.NodeID()); err != nil {
		applog.Error("lifecycle.reflow", err, "node", to.NodeID())
	}
	m.childrenChanged(to, to.NodeID())
	if hadParent && from != to {
		m.syncIndices(from.NodeID())
		m.childrenChanged(from, from.NodeID())
	}
	return nil
}

// TabRemoved handles a live tab closing. Removals reported while the whole
// window is closing are ignored; WindowClosed deals with those tabs.
func (m *Manager) TabRemoved(ext types.ExternalID, windowClosing bool) error {
	if windowClosing {
		return nil
	}
	tab, ok := m.store.Tabs.ByExternalID(ext)
	if !ok {
		return fmt.Errorf("tab %d: %w", ext, ErrNotFound)
	}
	w, hasWindow := m.WindowOf(tab)
	if err := m.EraseTab(locator.Record(tab), "closed"); err != nil {
		return err
	}
	if hasWindow {
		m.syncIndices(w.NodeID())
	}
	return nil
}

// Sync reconciles the model with the full set of live windows, as sent by
// the extension when it connects. Windows the model believes open but which
// are absent from live are closed first. Windows still attached get their
// tabs reconciled, and the rest are opened.
func (m *Manager) Sync(live []types.ResourceWindow) error {
	seen := make(map[types.ExternalID]bool, len(live))
	tabWindow := make(map[types.ExternalID]types.ExternalID)
	for _, res := range live {
		seen[res.ID] = true
		for _, rt := range res.Tabs {
			tabWindow[rt.ID] = res.ID
		}
	}

	var errs []error
	for _, w := range m.Windows() {
		if w.IsOpen && !seen[w.ExternalID()] {
			if err := m.WindowClosed(w.ExternalID()); err != nil {
				errs = append(errs, err)
			}
		}
	}

	// Tabs that closed, or moved to a window the model has not seen yet,
	// lose their records here. The latter are recreated with their window.
	touched := make(map[*detail.Window]bool)
	for _, w := range m.Windows() {
		if !w.IsOpen {
			continue
		}
		for _, tab := range m.Tabs(w) {
			if !tab.IsOpen {
				continue
			}
			wext, ok := tabWindow[tab.ExternalID()]
			if ok {
				if _, known := m.store.Windows.ByExternalID(wext); known {
					continue
				}
			}
			if err := m.eraseTab(locator.Record(tab), "closed", false); err != nil {
				errs = append(errs, err)
				continue
			}
			touched[w] = true
		}
	}

	for _, res := range live {
		w, ok := m.store.Windows.ByExternalID(res.ID)
		if !ok {
			continue
		}
		if err := m.syncTabs(w, res, touched); err != nil {
			errs = append(errs, err)
		}
		touched[w] = true
	}
	for _, w := range m.Windows() {
		if !touched[w] {
			continue
		}
		m.syncIndices(w.NodeID())
		if err := m.view.Reflow(w.NodeID()); err != nil {
			applog.Error("lifecycle.reflow", err, "node", w.NodeID())
		}
		m.childrenChanged(w, w.NodeID())
	}

	for _, res := range live {
		if _, ok := m.store.Windows.ByExternalID(res.ID); ok {
			continue
		}
		if err := m.WindowOpened(res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// syncTabs puts the live tabs of an attached window into res order, moving
// tabs in from other windows and creating unknown ones. Windows tabs were
// taken from are added to touched.
func (m *Manager) syncTabs(w *detail.Window, res types.ResourceWindow, touched map[*detail.Window]bool) error {
	for i, rt := range res.Tabs {
		rt.WindowID, rt.Index = res.ID, i
		tab, ok := m.store.Tabs.ByExternalID(rt.ID)
		if !ok {
			created, err := m.createTab(locator.Record(w), i, TabSpec{}, false)
			if err != nil {
				return fmt.Errorf("sync window %d: %w", res.ID, err)
			}
			if err := m.attachTab(locator.Record(created), rt, false); err != nil {
				return fmt.Errorf("sync window %d: %w", res.ID, err)
			}
			continue
		}
		if from, ok := m.WindowOf(tab); ok && from != w {
			touched[from] = true
		}
		if err := m.widget.Move(tab.NodeID(), w.NodeID(), i); err != nil {
			return fmt.Errorf("sync window %d: %w", res.ID, err)
		}
		tab.WindowExternalID = res.ID
		tab.RawURL = rt.URL
		tab.RawTitle = rt.Title
		tab.RawFaviconURL = rt.FavIconURL
		tab.Pinned = rt.Pinned
		m.refresh(tab, tab.NodeID(), present.FacetAll)
	}
	applog.Info("lifecycle.sync.window", "node", w.NodeID(), "ext", res.ID, "tabs", len(res.Tabs))
	return nil
}

func (m *Manager) syncIndices(windowNode types.NodeID) {
	for i, tab := range m.tabsUnder(windowNode) {
		if tab.IsOpen {
			tab.Index = i
		}
	}
}

func (m *Manager) tabsUnder(node types.NodeID) []*detail.Tab {
	var out []*detail.Tab
	for _, n := range m.widget.Children(node) {
		if t, ok := m.store.Tabs.ByNodeID(n); ok {
			out = append(out, t)
		}
	}
	return out
}
