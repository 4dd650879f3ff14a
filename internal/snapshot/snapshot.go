// Package snapshot persists kept windows to the database and brings them
// back into a lifecycle.Manager.
package snapshot

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lotas/tabkeeper/internal/applog"
	"github.com/lotas/tabkeeper/internal/detail"
	"github.com/lotas/tabkeeper/internal/hasher"
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/locator"
	"github.com/lotas/tabkeeper/internal/storage"
	"github.com/lotas/tabkeeper/internal/types"
)

// Capture converts the manager's kept windows, in tree order, into storage
// types. Open is a live state and is not stored.
func Capture(mgr *lifecycle.Manager) []storage.SnapshotWindow {
	var out []storage.SnapshotWindow
	for _, w := range mgr.Windows() {
		if w.Keep != types.KeepKept {
			continue
		}
		subtypes := w.Subtypes
		subtypes.Remove(types.SubtypeOpen)
		sw := storage.SnapshotWindow{
			Title:       w.RawTitle,
			OrderedHash: w.OrderedHash(),
			Subtypes:    subtypes.String(),
		}
		for _, t := range mgr.Tabs(w) {
			sw.Tabs = append(sw.Tabs, storage.SnapshotTab{
				URL:        t.RawURL,
				Title:      t.RawTitle,
				FaviconURL: t.RawFaviconURL,
				Bullet:     t.RawBullet,
				Pinned:     t.Pinned,
			})
		}
		out = append(out, sw)
	}
	return out
}

// Fingerprint identifies a set of saved windows by their titles and tab URLs
// in order. Two captures with equal fingerprints need not be stored twice.
func Fingerprint(windows []storage.SnapshotWindow) string {
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		fields := make([]string, 0, len(w.Tabs)+1)
		if w.Title != nil {
			fields = append(fields, "t:"+*w.Title)
		} else {
			fields = append(fields, "d")
		}
		for _, t := range w.Tabs {
			fields = append(fields, t.URL)
		}
		parts = append(parts, hasher.Ordered(fields))
	}
	return hasher.Ordered(parts)
}

// Save stores the manager's kept windows as a new rev for profile. It skips
// saving when the latest rev has the same fingerprint. Returns the rev
// number, whether a new snapshot was created, and the diff against the
// previous rev (nil if first).
func Save(db *sql.DB, mgr *lifecycle.Manager, profile, label string) (rev int, created bool, diff *DiffResult, err error) {
	windows := Capture(mgr)
	fp := Fingerprint(windows)

	latest, err := storage.GetLatestSnapshot(db, profile)
	if err != nil {
		return 0, false, nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	if latest != nil && latest.Fingerprint == fp {
		applog.Info("snapshot.skipped", "profile", profile, "rev", latest.Rev)
		return latest.Rev, false, nil, nil
	}

	newRev, err := storage.CreateSnapshot(db, profile, windows, label, fp)
	if err != nil {
		return 0, false, nil, err
	}
	applog.Info("snapshot.created", "rev", newRev, "windows", len(windows), "profile", profile)

	if latest != nil {
		diff = Diff(latest.Windows, windows)
		diff.FromRev, diff.ToRev = latest.Rev, newRev
	}
	return newRev, true, diff, nil
}

// Load re-creates the windows of a stored rev (0 = latest) as closed, kept
// windows. Windows whose tab sequence is already held by a window in the
// manager are skipped. Returns the number of windows created.
func Load(db *sql.DB, mgr *lifecycle.Manager, profile string, rev int) (int, error) {
	var snap *storage.SnapshotFull
	var err error
	if rev == 0 {
		snap, err = storage.GetLatestSnapshot(db, profile)
		if err == nil && snap == nil {
			return 0, fmt.Errorf("profile %q: %w", profile, storage.ErrSnapshotNotFound)
		}
	} else {
		snap, err = storage.GetSnapshot(db, profile, rev)
	}
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, sw := range snap.Windows {
		if claimed(mgr, sw.Tabs) {
			continue
		}
		subtypes := []types.Subtype{types.SubtypeSaved}
		for _, name := range strings.Split(sw.Subtypes, ",") {
			if s, ok := types.ParseSubtype(name); ok && s != types.SubtypeOpen && s != types.SubtypeSaved {
				subtypes = append(subtypes, s)
			}
		}
		if _, err := rezKept(mgr, sw.Title, subtypes, sw.Tabs); err != nil {
			return loaded, fmt.Errorf("load window %d of rev %d: %w", loaded+1, snap.Rev, err)
		}
		loaded++
	}
	applog.Info("snapshot.loaded", "rev", snap.Rev, "windows", loaded, "profile", profile)
	return loaded, nil
}

// ImportSession brings windows read from a browser session file into the
// manager as closed, kept windows tagged Recovered. Windows already present
// (same tab sequence) and windows without tabs are skipped.
func ImportSession(mgr *lifecycle.Manager, windows []types.ResourceWindow) (int, error) {
	imported := 0
	for _, rw := range windows {
		if len(rw.Tabs) == 0 {
			continue
		}
		tabs := make([]storage.SnapshotTab, 0, len(rw.Tabs))
		for _, t := range rw.Tabs {
			tabs = append(tabs, storage.SnapshotTab{
				URL:        t.URL,
				Title:      t.Title,
				FaviconURL: t.FavIconURL,
				Pinned:     t.Pinned,
			})
		}
		if claimed(mgr, tabs) {
			continue
		}
		if _, err := rezKept(mgr, nil, []types.Subtype{types.SubtypeSaved, types.SubtypeRecovered}, tabs); err != nil {
			return imported, fmt.Errorf("import window: %w", err)
		}
		imported++
	}
	applog.Info("snapshot.imported", "windows", imported)
	return imported, nil
}

func claimed(mgr *lifecycle.Manager, tabs []storage.SnapshotTab) bool {
	if len(tabs) == 0 {
		return false
	}
	urls := make([]string, 0, len(tabs))
	for _, t := range tabs {
		if t.URL == "" {
			return false
		}
		urls = append(urls, t.URL)
	}
	_, ok := mgr.Store().Windows.ByOrderedHash(hasher.Ordered(urls))
	return ok
}

func rezKept(mgr *lifecycle.Manager, title *string, subtypes []types.Subtype, tabs []storage.SnapshotTab) (*detail.Window, error) {
	w, err := mgr.CreateWindow(false)
	if err != nil {
		return nil, err
	}
	w.Keep = types.KeepKept
	ref := locator.Record(w)
	if err := mgr.AddSubtype(ref, subtypes...); err != nil {
		return w, err
	}
	if err := mgr.Rename(ref, title); err != nil {
		return w, err
	}
	for _, t := range tabs {
		_, err := mgr.CreateTab(ref, lifecycle.TabSpec{
			URL:        t.URL,
			Title:      t.Title,
			FaviconURL: t.FaviconURL,
			Bullet:     t.Bullet,
			Pinned:     t.Pinned,
		})
		if err != nil {
			return w, err
		}
	}
	return w, nil
}
