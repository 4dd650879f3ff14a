package analyzer

import (
	"testing"

	"github.com/lotas/tabkeeper/internal/i18n"
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/locator"
	"github.com/lotas/tabkeeper/internal/tree"
	"github.com/lotas/tabkeeper/internal/types"
)

// newManager builds a manager with one closed window per url list.
func newManager(t *testing.T, windows ...[]string) *lifecycle.Manager {
	t.Helper()
	mgr := lifecycle.New(tree.New(), i18n.New("en"))
	for _, urls := range windows {
		w, err := mgr.CreateWindow(false)
		if err != nil {
			t.Fatal(err)
		}
		for _, u := range urls {
			if _, err := mgr.CreateTab(locator.Record(w), lifecycle.TabSpec{URL: u}); err != nil {
				t.Fatal(err)
			}
		}
	}
	return mgr
}

func tabNode(mgr *lifecycle.Manager, window, index int) types.NodeID {
	return mgr.Tabs(mgr.Windows()[window])[index].NodeID()
}
