package analyzer

import (
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/types"
)

// Stats counts windows and tabs by state.
type Stats struct {
	Windows       int
	OpenWindows   int
	SavedWindows  int
	Tabs          int
	DuplicateTabs int
	DeadTabs      int
}

// ComputeStats summarizes mgr. dead is the latest CheckLinks result and may
// be nil.
func ComputeStats(mgr *lifecycle.Manager, dead map[types.NodeID]string) Stats {
	var stats Stats
	for _, w := range mgr.Windows() {
		stats.Windows++
		if w.IsOpen {
			stats.OpenWindows++
		}
		if w.Keep == types.KeepKept {
			stats.SavedWindows++
		}
		for _, tab := range mgr.Tabs(w) {
			stats.Tabs++
			if _, ok := dead[tab.NodeID()]; ok {
				stats.DeadTabs++
			}
		}
	}
	stats.DuplicateTabs = len(Duplicates(mgr))
	return stats
}
