package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// testDB creates a temporary database for testing.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string {
	return &s
}

func oneWindow(urls ...string) []SnapshotWindow {
	w := SnapshotWindow{OrderedHash: "h-" + urls[0], Subtypes: "saved"}
	for _, u := range urls {
		w.Tabs = append(w.Tabs, SnapshotTab{URL: u, Title: u})
	}
	return []SnapshotWindow{w}
}

func TestOpenDB(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "tabkeeper.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file not found: %v", err)
	}

	// All migrations should be recorded.
	var count int
	db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if count != len(migrations) {
		t.Errorf("expected %d migrations recorded, got %d", len(migrations), count)
	}
}

func TestOpenDB_IdempotentMigrations(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "idempotent.db")

	// Opening again must not rerun migrations.
	db1, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("first OpenDB: %v", err)
	}
	if _, err := CreateSnapshot(db1, "default", oneWindow("https://example.com"), "", "fp"); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	db1.Close()

	db2, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("second OpenDB: %v", err)
	}
	defer db2.Close()

	snap, err := GetLatestSnapshot(db2, "default")
	if err != nil {
		t.Fatalf("GetLatestSnapshot: %v", err)
	}
	if snap == nil || snap.Rev != 1 {
		t.Error("expected existing snapshot to survive reopening")
	}
}

func TestCreateAndListSnapshots(t *testing.T) {
	db := testDB(t)

	rev, err := CreateSnapshot(db, "default", oneWindow("https://example.com", "https://go.dev"), "", "fp1")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if rev != 1 {
		t.Errorf("expected rev 1, got %d", rev)
	}

	rev2, err := CreateSnapshot(db, "default", oneWindow("https://a.com"), "with label", "fp2")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if rev2 != 2 {
		t.Errorf("expected rev 2, got %d", rev2)
	}

	// Different profile starts at rev 1.
	rev3, err := CreateSnapshot(db, "work", oneWindow("https://b.com"), "", "fp3")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if rev3 != 1 {
		t.Errorf("expected rev 1 for different profile, got %d", rev3)
	}

	list, err := ListSnapshots(db)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(list))
	}
	for _, s := range list {
		switch {
		case s.Rev == 1 && s.Profile == "default":
			if s.Name != "" || s.TabCount != 2 || s.WindowCount != 1 || s.Fingerprint != "fp1" {
				t.Errorf("unexpected rev 1 summary %+v", s)
			}
		case s.Rev == 2 && s.Profile == "default":
			if s.Name != "with label" {
				t.Errorf("expected label 'with label', got %q", s.Name)
			}
		}
	}

	work, err := ListSnapshotsByProfile(db, "work")
	if err != nil {
		t.Fatalf("ListSnapshotsByProfile: %v", err)
	}
	if len(work) != 1 || work[0].Profile != "work" {
		t.Errorf("expected one work snapshot, got %+v", work)
	}
}

func TestGetSnapshot(t *testing.T) {
	db := testDB(t)

	windows := []SnapshotWindow{
		{
			Title:       strPtr("Research"),
			OrderedHash: "abc",
			Subtypes:    "saved,recovered",
			Tabs: []SnapshotTab{
				{URL: "https://example.com", Title: "Example", FaviconURL: "https://example.com/f.ico", Pinned: true},
				{URL: "https://second.com", Title: "Second", Bullet: "*"},
			},
		},
		{
			Tabs: []SnapshotTab{{URL: "https://third.com"}},
		},
	}

	rev, err := CreateSnapshot(db, "default", windows, "my label", "fp")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	snap, err := GetSnapshot(db, "default", rev)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap.Name != "my label" || snap.Profile != "default" {
		t.Errorf("unexpected summary %+v", snap.SnapshotSummary)
	}
	if snap.TabCount != 3 || snap.WindowCount != 2 {
		t.Errorf("counts = %d windows/%d tabs, want 2/3", snap.WindowCount, snap.TabCount)
	}
	if len(snap.Windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(snap.Windows))
	}

	w := snap.Windows[0]
	if w.Title == nil || *w.Title != "Research" {
		t.Errorf("title = %v, want Research", w.Title)
	}
	if w.OrderedHash != "abc" || w.Subtypes != "saved,recovered" {
		t.Errorf("unexpected window %+v", w)
	}
	if len(w.Tabs) != 2 || w.Tabs[0].URL != "https://example.com" || w.Tabs[1].URL != "https://second.com" {
		t.Fatalf("tabs out of order: %+v", w.Tabs)
	}
	if !w.Tabs[0].Pinned || w.Tabs[0].FaviconURL != "https://example.com/f.ico" || w.Tabs[1].Bullet != "*" {
		t.Errorf("tab fields lost: %+v", w.Tabs)
	}
	if snap.Windows[1].Title != nil {
		t.Errorf("expected nil title, got %q", *snap.Windows[1].Title)
	}

	_, err = GetSnapshot(db, "default", 99)
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestGetLatestSnapshot(t *testing.T) {
	db := testDB(t)

	snap, err := GetLatestSnapshot(db, "default")
	if err != nil {
		t.Fatalf("GetLatestSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatal("expected nil for empty DB")
	}

	CreateSnapshot(db, "default", oneWindow("https://a.com"), "", "")
	CreateSnapshot(db, "default", oneWindow("https://b.com"), "", "")

	snap, err = GetLatestSnapshot(db, "default")
	if err != nil {
		t.Fatalf("GetLatestSnapshot: %v", err)
	}
	if snap.Rev != 2 || snap.Windows[0].Tabs[0].URL != "https://b.com" {
		t.Errorf("expected latest rev 2, got %d", snap.Rev)
	}

	snap, err = GetLatestSnapshot(db, "work")
	if err != nil {
		t.Fatalf("GetLatestSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatal("expected nil for profile with no snapshots")
	}
}

func TestDeleteSnapshot(t *testing.T) {
	db := testDB(t)

	rev, err := CreateSnapshot(db, "default", oneWindow("https://a.com", "https://b.com"), "", "")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	if err := DeleteSnapshot(db, "default", rev); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}

	list, _ := ListSnapshots(db)
	if len(list) != 0 {
		t.Fatalf("expected 0 snapshots after delete, got %d", len(list))
	}

	if err := DeleteSnapshot(db, "default", rev); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}

	// Verify cascade.
	var windowCount, tabCount int
	db.QueryRow("SELECT COUNT(*) FROM snapshot_windows").Scan(&windowCount)
	db.QueryRow("SELECT COUNT(*) FROM snapshot_tabs").Scan(&tabCount)
	if windowCount != 0 {
		t.Errorf("expected 0 orphan windows, got %d", windowCount)
	}
	if tabCount != 0 {
		t.Errorf("expected 0 orphan tabs, got %d", tabCount)
	}
}
