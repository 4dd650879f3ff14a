package firefox

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/lotas/tabkeeper/internal/types"
	"github.com/pierrec/lz4/v4"
)

// mozlz4 header: 8-byte magic "mozLz40\x00"
var mozLz4Magic = []byte("mozLz40\x00")

// sessionFiles are tried in order: the running session, then the last
// closed one.
var sessionFiles = []string{"recovery.jsonlz4", "previous.jsonlz4"}

// ErrNoSession is returned when a profile has no session file.
var ErrNoSession = errors.New("no session file")

// DecompressMozLz4 decompresses data in Mozilla's mozlz4 format.
// The format is: 8-byte magic "mozLz40\x00" + 4-byte LE uint32 uncompressed size + lz4 block data.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = 12 // 8 magic + 4 size

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:len(mozLz4Magic)], mozLz4Magic) {
		return nil, fmt.Errorf("mozlz4: invalid header magic")
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[8:12])

	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}

	return dst[:n], nil
}

// Raw JSON types for Firefox session file parsing.
type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawTab struct {
	Entries []rawEntry `json:"entries"`
	Index   int        `json:"index"`
	Image   string     `json:"image"`
	Pinned  bool       `json:"pinned"`
	Hidden  bool       `json:"hidden"`
}

type rawWindow struct {
	Tabs []rawTab `json:"tabs"`
}

type rawSession struct {
	Windows       []rawWindow `json:"windows"`
	ClosedWindows []rawWindow `json:"_closedWindows"`
}

// ParseSession parses raw session JSON into windows with their tabs in
// order. A session file carries no browser ids, so windows and tabs are
// numbered from 1 in file order. With includeClosed, recently closed
// windows follow the open ones.
func ParseSession(data []byte, includeClosed bool) ([]types.ResourceWindow, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	source := raw.Windows
	if includeClosed {
		source = append(source, raw.ClosedWindows...)
	}

	var windows []types.ResourceWindow
	nextTab := types.ExternalID(1)
	for winIdx, rw := range source {
		w := types.ResourceWindow{ID: types.ExternalID(winIdx + 1)}
		for _, rt := range rw.Tabs {
			if len(rt.Entries) == 0 || rt.Hidden {
				continue
			}

			// index is 1-based; current page is entries[index-1].
			entryIdx := rt.Index - 1
			if entryIdx < 0 || entryIdx >= len(rt.Entries) {
				entryIdx = len(rt.Entries) - 1
			}
			entry := rt.Entries[entryIdx]

			w.Tabs = append(w.Tabs, types.ResourceTab{
				ID:         nextTab,
				WindowID:   w.ID,
				Index:      len(w.Tabs),
				URL:        entry.URL,
				Title:      entry.Title,
				FavIconURL: rt.Image,
				Pinned:     rt.Pinned,
			})
			nextTab++
		}
		windows = append(windows, w)
	}

	return windows, nil
}

// ReadSessionFile reads and parses a Firefox session file from the given
// profile directory.
func ReadSessionFile(profileDir string, includeClosed bool) ([]types.ResourceWindow, error) {
	path, _, err := FindSession(profileDir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress session file: %w", err)
	}

	return ParseSession(decompressed, includeClosed)
}
