package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lotas/tabkeeper/internal/applog"
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/types"
)

var skipPrefixes = []string{"about:", "moz-extension:", "file:", "chrome:", "resource:", "data:"}

func shouldSkip(url string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// Link is a tab URL queued for a liveness check.
type Link struct {
	Node types.NodeID
	URL  string
}

// Links lists the checkable tab URLs of every window.
func Links(mgr *lifecycle.Manager) []Link {
	var out []Link
	for _, w := range mgr.Windows() {
		for _, tab := range mgr.Tabs(w) {
			if shouldSkip(tab.RawURL) {
				continue
			}
			out = append(out, Link{Node: tab.NodeID(), URL: tab.RawURL})
		}
	}
	return out
}

// CheckLinks sends a HEAD request to every link, at most 10 at a time, and
// returns the dead ones with a short reason. Only 404 and 410 count as dead
// among HTTP answers.
func CheckLinks(ctx context.Context, links []Link) map[types.NodeID]string {
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	var (
		mu   sync.Mutex
		dead = make(map[types.NodeID]string)
		wg   sync.WaitGroup
	)
	mark := func(id types.NodeID, reason string) {
		mu.Lock()
		dead[id] = reason
		mu.Unlock()
	}

	sem := make(chan struct{}, 10)
	for _, link := range links {
		wg.Add(1)
		go func(l Link) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			req, err := http.NewRequestWithContext(ctx, http.MethodHead, l.URL, nil)
			if err != nil {
				mark(l.Node, "invalid URL")
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				if ctx.Err() == nil {
					mark(l.Node, "unreachable")
				}
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
				mark(l.Node, fmt.Sprintf("%d", resp.StatusCode))
			}
		}(link)
	}
	wg.Wait()

	applog.Info("links.checked", "links", len(links), "dead", len(dead))
	return dead
}
