package detail

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lotas/tabkeeper/internal/types"
)

var (
	// ErrDuplicateKey is returned when a record would share an indexed key
	// with another live record.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnknownRecord is returned for records that are not (or no longer)
	// held by the table.
	ErrUnknownRecord = errors.New("unknown record")

	// ErrMissingNodeID is returned when a record is added without a node id.
	ErrMissingNodeID = errors.New("missing node id")
)

// ID is the stable internal identifier of a record. IDs are never reused
// within a Store.
type ID uint64

// keyed is implemented by the row types a table can hold.
type keyed interface {
	comparable
	recordID() ID
	nodeKey() types.NodeID
	externalKey() types.ExternalID
}

// table holds rows by ID. Secondary indices store the ID, never a copy.
type table[R keyed] struct {
	rows       map[ID]R
	byNode     map[types.NodeID]ID
	byExternal map[types.ExternalID]ID
}

func newTable[R keyed]() table[R] {
	return table[R]{
		rows:       make(map[ID]R),
		byNode:     make(map[types.NodeID]ID),
		byExternal: make(map[types.ExternalID]ID),
	}
}

func (t *table[R]) checkInsert(r R) error {
	if r.nodeKey() == "" {
		return ErrMissingNodeID
	}
	if _, ok := t.rows[r.recordID()]; ok {
		return fmt.Errorf("record %d: %w", r.recordID(), ErrDuplicateKey)
	}
	if _, ok := t.byNode[r.nodeKey()]; ok {
		return fmt.Errorf("node %s: %w", r.nodeKey(), ErrDuplicateKey)
	}
	if ext := r.externalKey(); ext != types.NoExternalID {
		if _, ok := t.byExternal[ext]; ok {
			return fmt.Errorf("external id %d: %w", ext, ErrDuplicateKey)
		}
	}
	return nil
}

func (t *table[R]) insert(r R) {
	id := r.recordID()
	t.rows[id] = r
	t.byNode[r.nodeKey()] = id
	if ext := r.externalKey(); ext != types.NoExternalID {
		t.byExternal[ext] = id
	}
}

// holds reports whether r is the live row for its ID. A stale pointer to a
// removed record does not count.
func (t *table[R]) holds(r R) bool {
	cur, ok := t.rows[r.recordID()]
	return ok && cur == r
}

func (t *table[R]) remove(r R) error {
	if !t.holds(r) {
		return ErrUnknownRecord
	}
	delete(t.rows, r.recordID())
	delete(t.byNode, r.nodeKey())
	if ext := r.externalKey(); ext != types.NoExternalID {
		delete(t.byExternal, ext)
	}
	return nil
}

func (t *table[R]) lookupNode(n types.NodeID) (R, bool) {
	var zero R
	id, ok := t.byNode[n]
	if !ok {
		return zero, false
	}
	return t.rows[id], true
}

func (t *table[R]) lookupExternal(ext types.ExternalID) (R, bool) {
	var zero R
	if ext == types.NoExternalID {
		return zero, false
	}
	id, ok := t.byExternal[ext]
	if !ok {
		return zero, false
	}
	return t.rows[id], true
}

// moveExternal re-points the external index from old to next for r. The
// caller writes the field itself once this succeeds.
func (t *table[R]) moveExternal(r R, old, next types.ExternalID) error {
	if !t.holds(r) {
		return ErrUnknownRecord
	}
	if old == next {
		return nil
	}
	if next != types.NoExternalID {
		if other, ok := t.byExternal[next]; ok && other != r.recordID() {
			return fmt.Errorf("external id %d: %w", next, ErrDuplicateKey)
		}
	}
	if old != types.NoExternalID {
		delete(t.byExternal, old)
	}
	if next != types.NoExternalID {
		t.byExternal[next] = r.recordID()
	}
	return nil
}

func (t *table[R]) sorted() []R {
	ids := make([]ID, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]R, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.rows[id])
	}
	return out
}
