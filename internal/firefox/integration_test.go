package firefox

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lotas/tabkeeper/internal/i18n"
	"github.com/lotas/tabkeeper/internal/lifecycle"
	"github.com/lotas/tabkeeper/internal/snapshot"
	"github.com/lotas/tabkeeper/internal/tree"
	"github.com/lotas/tabkeeper/internal/types"
	"github.com/pierrec/lz4/v4"
)

func writeSession(t *testing.T, profileDir, name, sessionJSON string) {
	t.Helper()
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	os.MkdirAll(backupDir, 0755)

	jsonBytes := []byte(sessionJSON)
	compressed := make([]byte, lz4.CompressBlockBound(len(jsonBytes)))
	n, err := lz4.CompressBlock(jsonBytes, compressed, nil)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	mozlz4 := make([]byte, 0, 12+n)
	mozlz4 = append(mozlz4, []byte("mozLz40\x00")...)
	sizeBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBuf, uint32(len(jsonBytes)))
	mozlz4 = append(mozlz4, sizeBuf...)
	mozlz4 = append(mozlz4, compressed[:n]...)

	if err := os.WriteFile(filepath.Join(backupDir, name), mozlz4, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIntegration_ImportPipeline(t *testing.T) {
	profileDir := t.TempDir()
	writeSession(t, profileDir, "previous.jsonlz4", `{
		"version": ["sessionrestore", 1],
		"windows": [
			{"tabs": [
				{"entries": [{"url": "https://example.com", "title": "Example"}], "index": 1},
				{"entries": [{"url": "https://other.com/page", "title": "Other"}], "index": 1}
			]},
			{"tabs": [
				{"entries": [{"url": "https://example.com", "title": "Example"}], "index": 1},
				{"entries": [{"url": "https://other.com/page", "title": "Other"}], "index": 1}
			]},
			{"tabs": [
				{"entries": [{"url": "https://third.com"}], "index": 1}
			]}
		]
	}`)

	windows, err := ReadSessionFile(profileDir, false)
	if err != nil {
		t.Fatalf("read session: %v", err)
	}

	mgr := lifecycle.New(tree.New(), i18n.New("en"))
	n, err := snapshot.ImportSession(mgr, windows)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	// The second window repeats the first and is skipped.
	if n != 2 {
		t.Errorf("expected 2 imported windows, got %d", n)
	}
	for _, w := range mgr.Windows() {
		if w.Keep != types.KeepKept || !w.Subtypes.Has(types.SubtypeRecovered) {
			t.Errorf("imported window should be kept and recovered: %+v", w)
		}
	}
}

func TestReadSessionFileMissing(t *testing.T) {
	_, err := ReadSessionFile(t.TempDir(), false)
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}
