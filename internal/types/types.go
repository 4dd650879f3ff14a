package types

import (
	"strings"
	"time"
)

// Kind is the primary type of an item.
type Kind int

const (
	KindAny Kind = iota // matches either kind when used as a filter
	KindWindow
	KindTab
)

func (k Kind) String() string {
	switch k {
	case KindWindow:
		return "window"
	case KindTab:
		return "tab"
	default:
		return "any"
	}
}

// NodeID identifies a presentation-tree node. It is the join key between a
// tree node and its detail record and never changes for the life of an item.
type NodeID string

// ExternalID identifies a live browser window or tab.
type ExternalID int

// NoExternalID marks a record with no live resource attached.
const NoExternalID ExternalID = -1

// Subtype is an independent tag on an item, orthogonal to its Kind.
type Subtype uint8

const (
	SubtypeOpen Subtype = 1 << iota
	SubtypeSaved
	SubtypeRecovered

	subtypeMask = SubtypeOpen | SubtypeSaved | SubtypeRecovered
)

var subtypeNames = []struct {
	s    Subtype
	name string
}{
	{SubtypeOpen, "open"},
	{SubtypeSaved, "saved"},
	{SubtypeRecovered, "recovered"},
}

// Valid reports whether s is exactly one known subtype.
func (s Subtype) Valid() bool {
	return s != 0 && s&^subtypeMask == 0 && s&(s-1) == 0
}

func (s Subtype) String() string {
	for _, n := range subtypeNames {
		if n.s == s {
			return n.name
		}
	}
	return "unknown"
}

// ParseSubtype maps a name such as "saved" back to its Subtype.
func ParseSubtype(name string) (Subtype, bool) {
	for _, n := range subtypeNames {
		if n.name == name {
			return n.s, true
		}
	}
	return 0, false
}

// SubtypeSet is a set of subtypes stored as a bitmask.
type SubtypeSet uint8

func (s SubtypeSet) Has(t Subtype) bool { return s&SubtypeSet(t) != 0 }

func (s *SubtypeSet) Add(t Subtype) { *s |= SubtypeSet(t) }

func (s *SubtypeSet) Remove(t Subtype) { *s &^= SubtypeSet(t) }

// Names returns the set members in declaration order.
func (s SubtypeSet) Names() []string {
	var out []string
	for _, n := range subtypeNames {
		if s.Has(n.s) {
			out = append(out, n.name)
		}
	}
	return out
}

func (s SubtypeSet) String() string {
	return strings.Join(s.Names(), ",")
}

// Keep is the persistence axis of a window.
type Keep int8

const (
	KeepUnset Keep = iota
	KeepKept
	KeepNotKept
)

func (k Keep) String() string {
	switch k {
	case KeepKept:
		return "kept"
	case KeepNotKept:
		return "not-kept"
	default:
		return "unset"
	}
}

// ResourceTab is a live browser tab as reported by the extension.
type ResourceTab struct {
	ID         ExternalID
	WindowID   ExternalID
	Index      int
	URL        string
	Title      string
	FavIconURL string
	Pinned     bool
}

// ResourceWindow is a live browser window with its tabs in display order.
type ResourceWindow struct {
	ID   ExternalID
	Tabs []ResourceTab
}

// URLs returns the tab URLs of w in order.
func (w ResourceWindow) URLs() []string {
	urls := make([]string, 0, len(w.Tabs))
	for _, t := range w.Tabs {
		urls = append(urls, t.URL)
	}
	return urls
}

// Profile is a browser profile whose session file can be imported.
type Profile struct {
	Name      string
	Path      string // absolute path to profile directory
	IsDefault bool

	Session   string    // session file that would be imported
	SessionAt time.Time // its modification time
}
