package snapshot

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lotas/tabkeeper/internal/storage"
)

// DiffEntry represents a single tab in a diff result.
type DiffEntry struct {
	URL    string
	Title  string
	Window string // window title, or empty for a default-titled window
}

// DiffResult holds the result of comparing two sets of saved windows.
type DiffResult struct {
	FromRev int
	ToRev   int         // 0 = the current model
	Added   []DiffEntry // in new but not in old
	Removed []DiffEntry // in old but not in new
}

func entries(windows []storage.SnapshotWindow) map[string]DiffEntry {
	out := make(map[string]DiffEntry)
	for _, w := range windows {
		title := ""
		if w.Title != nil {
			title = *w.Title
		}
		for _, t := range w.Tabs {
			if _, ok := out[t.URL]; !ok {
				out[t.URL] = DiffEntry{URL: t.URL, Title: t.Title, Window: title}
			}
		}
	}
	return out
}

// Diff compares two window sets by tab URL. Entries are sorted by URL.
func Diff(old, new []storage.SnapshotWindow) *DiffResult {
	oldURLs := entries(old)
	newURLs := entries(new)

	result := &DiffResult{}
	for url, entry := range newURLs {
		if _, ok := oldURLs[url]; !ok {
			result.Added = append(result.Added, entry)
		}
	}
	for url, entry := range oldURLs {
		if _, ok := newURLs[url]; !ok {
			result.Removed = append(result.Removed, entry)
		}
	}
	sort.Slice(result.Added, func(i, j int) bool { return result.Added[i].URL < result.Added[j].URL })
	sort.Slice(result.Removed, func(i, j int) bool { return result.Removed[i].URL < result.Removed[j].URL })
	return result
}

// DiffRevisions compares two stored revs of a profile.
func DiffRevisions(db *sql.DB, profile string, from, to int) (*DiffResult, error) {
	a, err := storage.GetSnapshot(db, profile, from)
	if err != nil {
		return nil, err
	}
	b, err := storage.GetSnapshot(db, profile, to)
	if err != nil {
		return nil, err
	}
	result := Diff(a.Windows, b.Windows)
	result.FromRev, result.ToRev = from, to
	return result, nil
}

// FormatDiff returns a human-readable string representation of a DiffResult.
func FormatDiff(d *DiffResult) string {
	var sb strings.Builder

	if d.ToRev == 0 {
		fmt.Fprintf(&sb, "Diff #%d → current\n", d.FromRev)
	} else {
		fmt.Fprintf(&sb, "Diff #%d → #%d\n", d.FromRev, d.ToRev)
	}
	fmt.Fprintf(&sb, "Added: %d  Removed: %d\n", len(d.Added), len(d.Removed))

	writeEntries := func(header, sign string, list []DiffEntry) {
		if len(list) == 0 {
			return
		}
		fmt.Fprintf(&sb, "\n%s\n", header)
		for _, e := range list {
			if e.Window != "" {
				fmt.Fprintf(&sb, "  %s %s [%s]\n", sign, e.URL, e.Window)
			} else {
				fmt.Fprintf(&sb, "  %s %s\n", sign, e.URL)
			}
		}
	}
	writeEntries("+ Added:", "+", d.Added)
	writeEntries("- Removed:", "-", d.Removed)

	if len(d.Added) == 0 && len(d.Removed) == 0 {
		sb.WriteString("\nNo changes.\n")
	}

	return sb.String()
}
