package lifecycle

import (
	"strings"

	"github.com/lotas/tabkeeper/internal/i18n"
	"github.com/lotas/tabkeeper/internal/locator"
	"github.com/lotas/tabkeeper/internal/present"
	"github.com/lotas/tabkeeper/internal/types"
)

// MarkSaved moves a window to the kept state. A trailing "(Unsaved)"
// decoration is stripped from its title, and a title that is just one of the
// default labels reverts to "use default" instead of being stored.
func (m *Manager) MarkSaved(ref locator.Ref) error {
	w, node, ok := m.loc.Window(ref)
	if !ok {
		return ErrNotFound
	}
	strs := m.view.Strings()

	title := m.view.WindowTitle(w)
	cleaned := strings.TrimSpace(strings.TrimSuffix(title, strs.T(i18n.DecorUnsaved)))
	switch {
	case cleaned == strs.T(i18n.LabelUnsaved), cleaned == strs.T(i18n.LabelSavedWindow):
		w.RawTitle = nil
	case w.RawTitle != nil || cleaned != title:
		w.RawTitle = &cleaned
	}

	w.Keep = types.KeepKept
	w.Subtypes.Add(types.SubtypeSaved)
	m.refresh(w, node, present.FacetAll)
	return nil
}

// MarkUnsaved moves a window to the not-kept state and decorates its
// displayed title with "(Unsaved)". Default labels are not decorated; the
// window falls back to the default unsaved label instead.
func (m *Manager) MarkUnsaved(ref locator.Ref) error {
	w, node, ok := m.loc.Window(ref)
	if !ok {
		return ErrNotFound
	}
	strs := m.view.Strings()
	decor := strs.T(i18n.DecorUnsaved)

	title := m.view.WindowTitle(w)
	switch {
	case title == strs.T(i18n.LabelSavedWindow), title == strs.T(i18n.LabelUnsaved):
		w.RawTitle = nil
	case strings.HasSuffix(title, decor):
	default:
		decorated := title + decor
		w.RawTitle = &decorated
	}

	w.Keep = types.KeepNotKept
	w.Subtypes.Remove(types.SubtypeSaved)
	m.refresh(w, node, present.FacetAll)
	return nil
}

// ToggleSaved flips a window between kept and not kept.
func (m *Manager) ToggleSaved(ref locator.Ref) error {
	w, _, ok := m.loc.Window(ref)
	if !ok {
		return ErrNotFound
	}
	if w.Keep == types.KeepKept {
		return m.MarkUnsaved(ref)
	}
	return m.MarkSaved(ref)
}
