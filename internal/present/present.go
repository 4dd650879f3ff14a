// Package present projects model state onto the presentation tree: icon,
// tooltip, label and subtype classes.
package present

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/i18n"
	"github.com/lotas/tabkeeper/internal/tree"
	"github.com/lotas/tabkeeper/internal/types"
)

// Facet selects which parts of a node Refresh recomputes.
type Facet uint8

const (
	FacetIcon Facet = 1 << iota
	FacetTooltip
	FacetLabel

	FacetAll = FacetIcon | FacetTooltip | FacetLabel
)

// Icons.
const (
	IconPage             = "icon-page"
	IconPDF              = "icon-pdf"
	IconWindowClosed     = "icon-window-closed"
	IconWindowOpenKept   = "icon-window-open-kept"
	IconWindowOpenUnkept = "icon-window-open-unkept"
)

const classPrefix = "tk-"

var pdfURL = regexp.MustCompile(`(?i)\.pdf(?:[?#].*)?$`)

// Adapter pushes display facets to a tree.Widget.
type Adapter struct {
	widget  tree.Widget
	strings *i18n.Strings
}

func New(w tree.Widget, s *i18n.Strings) *Adapter {
	return &Adapter{widget: w, strings: s}
}

// Strings returns the lookup used for default text.
func (a *Adapter) Strings() *i18n.Strings { return a.strings }

// DefaultWindowTitle is the title shown for a window with no raw title.
func (a *Adapter) DefaultWindowTitle(w *detail.Window) string {
	if w.Keep == types.KeepKept {
		return a.strings.T(i18n.LabelSavedWindow)
	}
	return a.strings.T(i18n.LabelUnsaved)
}

// WindowTitle is the title currently displayed for w.
func (a *Adapter) WindowTitle(w *detail.Window) string {
	if w.RawTitle != nil {
		return *w.RawTitle
	}
	return a.DefaultWindowTitle(w)
}

// TabTitle is the title displayed for t, without its bullet.
func (a *Adapter) TabTitle(t *detail.Tab) string {
	switch {
	case t.RawTitle != "":
		return t.RawTitle
	case t.RawURL != "":
		return t.RawURL
	default:
		return a.strings.T(i18n.LabelNoTitle)
	}
}

// WindowIcon picks the icon for w.
func WindowIcon(w *detail.Window) string {
	switch {
	case !w.IsOpen:
		return IconWindowClosed
	case w.Keep == types.KeepKept:
		return IconWindowOpenKept
	default:
		return IconWindowOpenUnkept
	}
}

// TabIcon picks the icon for t.
func TabIcon(t *detail.Tab) string {
	switch {
	case t.RawFaviconURL != "":
		return t.RawFaviconURL
	case pdfURL.MatchString(t.RawURL):
		return IconPDF
	default:
		return IconPage
	}
}

func (a *Adapter) label(rec detail.Record) string {
	switch r := rec.(type) {
	case *detail.Window:
		return a.WindowTitle(r)
	case *detail.Tab:
		if r.RawBullet != "" {
			return r.RawBullet + " " + a.TabTitle(r)
		}
		return a.TabTitle(r)
	}
	return ""
}

func (a *Adapter) tooltip(rec detail.Record, node types.NodeID) string {
	switch r := rec.(type) {
	case *detail.Window:
		n := len(a.widget.Children(node))
		return a.WindowTitle(r) + "\n" + a.strings.T(i18n.TooltipTabs, n)
	case *detail.Tab:
		title := a.TabTitle(r)
		if r.RawURL == "" || title == r.RawURL {
			return title
		}
		return title + "\n" + r.RawURL
	}
	return ""
}

func (a *Adapter) icon(rec detail.Record) string {
	switch r := rec.(type) {
	case *detail.Window:
		return WindowIcon(r)
	case *detail.Tab:
		return TabIcon(r)
	}
	return ""
}

// Classes projects the record's kind and subtypes to node classes.
func Classes(rec detail.Record) []string {
	classes := []string{classPrefix + rec.Kind().String()}
	for _, name := range rec.SubtypeSet().Names() {
		classes = append(classes, classPrefix+name)
	}
	return classes
}

// Refresh recomputes the requested facets of rec and pushes them to node in
// the order icon, tooltip, label. The tooltip skips its own redraw when a
// label refresh follows. Classes are always re-projected.
func (a *Adapter) Refresh(rec detail.Record, node types.NodeID, facets Facet) error {
	if facets == 0 {
		facets = FacetAll
	}
	if err := a.widget.SetClasses(node, Classes(rec)); err != nil {
		return fmt.Errorf("set classes: %w", err)
	}
	if facets&FacetIcon != 0 {
		if err := a.widget.SetIcon(node, a.icon(rec)); err != nil {
			return fmt.Errorf("set icon: %w", err)
		}
	}
	if facets&FacetTooltip != 0 {
		redraw := facets&FacetLabel == 0
		if err := a.widget.SetTooltip(node, a.tooltip(rec, node), redraw); err != nil {
			return fmt.Errorf("set tooltip: %w", err)
		}
	}
	if facets&FacetLabel != 0 {
		if err := a.widget.Rename(node, a.label(rec)); err != nil {
			return fmt.Errorf("rename: %w", err)
		}
	}
	return nil
}

// Reflow redraws every child of parent. Creating a node can shift its
// siblings, so their decorations are repainted.
func (a *Adapter) Reflow(parent types.NodeID) error {
	var errs []string
	for _, c := range a.widget.Children(parent) {
		if err := a.widget.Redraw(c); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("reflow %s: %s", parent, strings.Join(errs, "; "))
	}
	return nil
}
