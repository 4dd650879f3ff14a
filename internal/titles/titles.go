// Package titles looks up page titles for tabs that have none.
package titles

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/lotas/tabkeeper/internal/applog"
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/locator"
	"github.com/lotas/tabkeeper/internal/types"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var skipPrefixes = []string{"about:", "moz-extension:", "file:", "chrome:", "resource:", "data:"}

// Fetcher returns the title of the page at url.
type Fetcher func(ctx context.Context, url string) (string, error)

// Fetchable reports whether rawURL is an http(s) page worth fetching.
func Fetchable(rawURL string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(rawURL, prefix) {
			return false
		}
	}
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// FetchTitle fetches a page and extracts its article title.
func FetchTitle(ctx context.Context, rawURL string) (string, error) {
	if !Fetchable(rawURL) {
		return "", fmt.Errorf("skipping non-HTTP URL: %s", rawURL)
	}
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", rawURL, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return "", fmt.Errorf("extract title from %s: %w", rawURL, err)
	}
	return strings.TrimSpace(article.Title), nil
}

// Target is an untitled tab waiting for a title.
type Target struct {
	Node types.NodeID
	URL  string
}

// Pending lists the untitled tabs with fetchable URLs, in tree order.
func Pending(mgr *lifecycle.Manager) []Target {
	var out []Target
	for _, w := range mgr.Windows() {
		for _, tab := range mgr.Tabs(w) {
			if tab.RawTitle == "" && Fetchable(tab.RawURL) {
				out = append(out, Target{Node: tab.NodeID(), URL: tab.RawURL})
			}
		}
	}
	return out
}

// Lookup fetches a title for each target. Failed and empty lookups are
// logged and left out of the result. It touches no model state, so it may
// run off the event loop.
func Lookup(ctx context.Context, targets []Target, fetch Fetcher) (map[types.NodeID]string, error) {
	found := make(map[types.NodeID]string, len(targets))
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		title, err := fetch(ctx, t.URL)
		if err != nil {
			applog.Error("titles.fetch", err, "url", t.URL)
			continue
		}
		if title != "" {
			found[t.Node] = title
		}
	}
	return found, nil
}

// Apply renames the tabs in found. Tabs erased or titled since the lookup
// are skipped. It returns the number of tabs renamed.
func Apply(mgr *lifecycle.Manager, found map[types.NodeID]string) int {
	applied := 0
	for node, title := range found {
		tab, ok := mgr.Store().Tabs.ByNodeID(node)
		if !ok || tab.RawTitle != "" {
			continue
		}
		if err := mgr.Rename(locator.Record(tab), &title); err != nil {
			applog.Error("titles.apply", err, "url", tab.RawURL)
			continue
		}
		applied++
	}
	applog.Info("titles.filled", "count", applied)
	return applied
}

// Fill fetches titles for every untitled tab with a fetchable URL and
// renames the tab. It returns the number of tabs that got a title.
func Fill(ctx context.Context, mgr *lifecycle.Manager, fetch Fetcher) (int, error) {
	found, err := Lookup(ctx, Pending(mgr), fetch)
	n := Apply(mgr, found)
	return n, err
}
