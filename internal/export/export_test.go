package export

import (
	"testing"

	"github.com/lotas/tabkeeper/internal/i18n"
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/locator"
	"github.com/lotas/tabkeeper/internal/tree"
)

// sampleManager builds a saved "Research" window with two tabs and an
// unsaved window with one untitled tab.
func sampleManager(t *testing.T) *lifecycle.Manager {
	t.Helper()
	mgr := lifecycle.New(tree.New(), i18n.New("en"))

	research, err := mgr.CreateWindow(false)
	if err != nil {
		t.Fatalf("CreateWindow: %v", err)
	}
	ref := locator.Record(research)
	mgr.CreateTab(ref, lifecycle.TabSpec{URL: "https://go.dev/doc", Title: "Go docs", Bullet: "todo"})
	mgr.CreateTab(ref, lifecycle.TabSpec{URL: "https://github.com/charmbracelet/bubbletea", Title: "Bubble Tea", Pinned: true})
	if err := mgr.MarkSaved(ref); err != nil {
		t.Fatalf("MarkSaved: %v", err)
	}
	title := "Research"
	mgr.Rename(ref, &title)

	scratch, _ := mgr.CreateWindow(false)
	mgr.CreateTab(locator.Record(scratch), lifecycle.TabSpec{URL: "https://notitle.com/page"})
	return mgr
}
