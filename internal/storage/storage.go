package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSnapshotNotFound is returned when a profile has no snapshot with the
// requested rev.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotSummary holds the metadata for a snapshot.
type SnapshotSummary struct {
	ID          int64
	Rev         int
	Name        string // optional label
	Profile     string
	CreatedAt   time.Time
	WindowCount int
	TabCount    int
	Fingerprint string
}

// SnapshotTab is a saved tab, stored in window order.
type SnapshotTab struct {
	URL        string
	Title      string
	FaviconURL string
	Bullet     string
	Pinned     bool
}

// SnapshotWindow is a saved window with its tabs.
type SnapshotWindow struct {
	Title       *string // nil = default title
	OrderedHash string
	Subtypes    string // comma-separated subtype names
	Tabs        []SnapshotTab
}

// SnapshotFull is a snapshot with its windows and tabs.
type SnapshotFull struct {
	SnapshotSummary
	Windows []SnapshotWindow
}

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial schema",
		SQL: `
CREATE TABLE snapshots (
    id           INTEGER PRIMARY KEY,
    rev          INTEGER NOT NULL,
    name         TEXT,
    profile      TEXT NOT NULL,
    created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
    window_count INTEGER NOT NULL,
    tab_count    INTEGER NOT NULL,
    UNIQUE(profile, rev)
);
CREATE TABLE snapshot_windows (
    id           INTEGER PRIMARY KEY,
    snapshot_id  INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    position     INTEGER NOT NULL,
    title        TEXT,
    ordered_hash TEXT NOT NULL DEFAULT '',
    subtypes     TEXT NOT NULL DEFAULT ''
);
CREATE TABLE snapshot_tabs (
    id           INTEGER PRIMARY KEY,
    window_id    INTEGER NOT NULL REFERENCES snapshot_windows(id) ON DELETE CASCADE,
    position     INTEGER NOT NULL,
    url          TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    favicon_url  TEXT NOT NULL DEFAULT '',
    bullet       TEXT NOT NULL DEFAULT '',
    pinned       BOOLEAN DEFAULT FALSE
);`,
	},
	{
		Version:     2,
		Description: "snapshot fingerprint for skip-if-unchanged",
		SQL:         `ALTER TABLE snapshots ADD COLUMN fingerprint TEXT NOT NULL DEFAULT '';`,
	},
	{
		Version:     3,
		Description: "index snapshot children",
		SQL: `
CREATE INDEX idx_snapshot_windows_snapshot ON snapshot_windows(snapshot_id, position);
CREATE INDEX idx_snapshot_tabs_window ON snapshot_tabs(window_id, position);`,
	},
}

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, enables foreign keys and WAL mode,
// and runs any pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	// Create parent directory if needed.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// PRAGMAs are per connection; a single connection keeps foreign keys on.
	db.SetMaxOpenConns(1)

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrency.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// runMigrations ensures the schema_migrations table exists and applies any
// pending migrations in order.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// CreateSnapshot inserts a new snapshot with its windows and tabs in a single
// transaction. The rev number is auto-assigned per profile. Label is optional
// (empty string = no label). Returns the assigned rev number.
func CreateSnapshot(db *sql.DB, profile string, windows []SnapshotWindow, label, fingerprint string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rev int
	err = tx.QueryRow("SELECT COALESCE(MAX(rev), 0) + 1 FROM snapshots WHERE profile = ?", profile).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("compute next rev: %w", err)
	}

	var nameVal interface{}
	if label != "" {
		nameVal = label
	}

	tabCount := 0
	for _, w := range windows {
		tabCount += len(w.Tabs)
	}
	res, err := tx.Exec(
		"INSERT INTO snapshots (rev, name, profile, window_count, tab_count, fingerprint) VALUES (?, ?, ?, ?, ?, ?)",
		rev, nameVal, profile, len(windows), tabCount, fingerprint,
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	snapID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get snapshot id: %w", err)
	}

	for i, w := range windows {
		res, err := tx.Exec(
			"INSERT INTO snapshot_windows (snapshot_id, position, title, ordered_hash, subtypes) VALUES (?, ?, ?, ?, ?)",
			snapID, i, w.Title, w.OrderedHash, w.Subtypes,
		)
		if err != nil {
			return 0, fmt.Errorf("insert window %d: %w", i, err)
		}
		winID, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("get window id: %w", err)
		}
		for j, tab := range w.Tabs {
			_, err := tx.Exec(
				"INSERT INTO snapshot_tabs (window_id, position, url, title, favicon_url, bullet, pinned) VALUES (?, ?, ?, ?, ?, ?, ?)",
				winID, j, tab.URL, tab.Title, tab.FaviconURL, tab.Bullet, tab.Pinned,
			)
			if err != nil {
				return 0, fmt.Errorf("insert tab %q: %w", tab.URL, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return rev, nil
}

const summaryColumns = "id, rev, name, profile, created_at, window_count, tab_count, fingerprint"

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (SnapshotSummary, error) {
	var s SnapshotSummary
	var name sql.NullString
	if err := row.Scan(&s.ID, &s.Rev, &name, &s.Profile, &s.CreatedAt, &s.WindowCount, &s.TabCount, &s.Fingerprint); err != nil {
		return s, err
	}
	if name.Valid {
		s.Name = name.String
	}
	return s, nil
}

func querySummaries(db *sql.DB, query string, args ...any) ([]SnapshotSummary, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var result []SnapshotSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return result, nil
}

// ListSnapshots returns all snapshots ordered by creation time descending.
func ListSnapshots(db *sql.DB) ([]SnapshotSummary, error) {
	return querySummaries(db, "SELECT "+summaryColumns+" FROM snapshots ORDER BY created_at DESC, id DESC")
}

// ListSnapshotsByProfile returns snapshots for a specific profile, ordered by
// creation time descending.
func ListSnapshotsByProfile(db *sql.DB, profile string) ([]SnapshotSummary, error) {
	return querySummaries(db,
		"SELECT "+summaryColumns+" FROM snapshots WHERE profile = ? ORDER BY created_at DESC, id DESC",
		profile,
	)
}

// GetSnapshot loads a full snapshot by profile and rev number, with windows
// and tabs in their saved order.
func GetSnapshot(db *sql.DB, profile string, rev int) (*SnapshotFull, error) {
	row := db.QueryRow("SELECT "+summaryColumns+" FROM snapshots WHERE profile = ? AND rev = ?", profile, rev)
	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rev %d for profile %q: %w", rev, profile, ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	snap := &SnapshotFull{SnapshotSummary: summary}

	winRows, err := db.Query(
		"SELECT id, title, ordered_hash, subtypes FROM snapshot_windows WHERE snapshot_id = ? ORDER BY position",
		snap.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("query windows: %w", err)
	}
	defer winRows.Close()

	var winIDs []int64
	for winRows.Next() {
		var id int64
		var title sql.NullString
		var w SnapshotWindow
		if err := winRows.Scan(&id, &title, &w.OrderedHash, &w.Subtypes); err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		if title.Valid {
			t := title.String
			w.Title = &t
		}
		winIDs = append(winIDs, id)
		snap.Windows = append(snap.Windows, w)
	}
	if err := winRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate windows: %w", err)
	}

	for i, id := range winIDs {
		tabs, err := loadTabs(db, id)
		if err != nil {
			return nil, err
		}
		snap.Windows[i].Tabs = tabs
	}
	return snap, nil
}

func loadTabs(db *sql.DB, windowID int64) ([]SnapshotTab, error) {
	rows, err := db.Query(
		"SELECT url, title, favicon_url, bullet, pinned FROM snapshot_tabs WHERE window_id = ? ORDER BY position",
		windowID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tabs: %w", err)
	}
	defer rows.Close()

	var tabs []SnapshotTab
	for rows.Next() {
		var tab SnapshotTab
		if err := rows.Scan(&tab.URL, &tab.Title, &tab.FaviconURL, &tab.Bullet, &tab.Pinned); err != nil {
			return nil, fmt.Errorf("scan tab: %w", err)
		}
		tabs = append(tabs, tab)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tabs: %w", err)
	}
	return tabs, nil
}

// GetLatestSnapshot returns the most recent snapshot for a profile.
// Returns nil, nil if no snapshots exist for the profile.
func GetLatestSnapshot(db *sql.DB, profile string) (*SnapshotFull, error) {
	var rev int
	err := db.QueryRow(
		"SELECT rev FROM snapshots WHERE profile = ? ORDER BY rev DESC LIMIT 1",
		profile,
	).Scan(&rev)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest rev: %w", err)
	}
	return GetSnapshot(db, profile, rev)
}

// DeleteSnapshot removes a snapshot by profile and rev. Windows and tabs are
// cascade-deleted.
func DeleteSnapshot(db *sql.DB, profile string, rev int) error {
	res, err := db.Exec("DELETE FROM snapshots WHERE profile = ? AND rev = ?", profile, rev)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rev %d for profile %q: %w", rev, profile, ErrSnapshotNotFound)
	}
	return nil
}
