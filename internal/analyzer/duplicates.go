package analyzer

import (
	"net/url"
	"sort"
	"strings"

	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/types"
)

func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	params := u.Query()
	for k := range params {
		sort.Strings(params[k])
	}
	u.RawQuery = params.Encode()
	result := u.String()
	if strings.HasSuffix(result, "/") && result != u.Scheme+"://"+u.Host+"/" {
		result = strings.TrimRight(result, "/")
	}
	return result
}

// Duplicates maps every tab whose normalized URL occurs more than once,
// across all windows open or saved, to the other tabs sharing it.
func Duplicates(mgr *lifecycle.Manager) map[types.NodeID][]types.NodeID {
	groups := make(map[string][]types.NodeID)
	for _, w := range mgr.Windows() {
		for _, tab := range mgr.Tabs(w) {
			normalized := NormalizeURL(tab.RawURL)
			groups[normalized] = append(groups[normalized], tab.NodeID())
		}
	}

	dupes := make(map[types.NodeID][]types.NodeID)
	for _, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		for _, id := range ids {
			var others []types.NodeID
			for _, other := range ids {
				if other != id {
					others = append(others, other)
				}
			}
			dupes[id] = others
		}
	}
	return dupes
}
