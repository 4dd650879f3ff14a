// Package tree is the presentation tree: ordered nodes with display facets.
// The model drives it through the Widget interface; Tree is the in-memory
// implementation used by the TUI and the tests.
package tree

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lotas/tabkeeper/internal/types"
)

// Root is the id of the invisible root node. Windows are its children.
const Root types.NodeID = "#"

// Last appends a node after its existing siblings.
const Last = -1

var ErrNoNode = errors.New("no such node")

// Widget is the tree surface the model depends on.
type Widget interface {
	Create(parent types.NodeID, pos int, text string) (types.NodeID, error)
	Delete(id types.NodeID) error
	Get(id types.NodeID) (*Node, bool)
	Rename(id types.NodeID, text string) error
	SetIcon(id types.NodeID, icon string) error
	SetTooltip(id types.NodeID, tooltip string, redraw bool) error
	SetClasses(id types.NodeID, classes []string) error
	Open(id types.NodeID) error
	Close(id types.NodeID) error
	Move(id, parent types.NodeID, pos int) error
	Parent(id types.NodeID) (types.NodeID, bool)
	Children(id types.NodeID) []types.NodeID
	Redraw(id types.NodeID) error
}

// Node is a handle on a tree node. It carries its own id so the model can
// resolve it back to a detail record.
type Node struct {
	ID      types.NodeID
	Text    string
	Icon    string
	Tooltip string
	Classes []string
	Opened  bool

	parent   types.NodeID
	children []types.NodeID
	redraws  int
}

// Redraws counts how many times the node was redrawn.
func (n *Node) Redraws() int { return n.redraws }

// Tree is an in-memory Widget.
type Tree struct {
	nodes map[types.NodeID]*Node
}

// New returns a tree holding only the root.
func New() *Tree {
	return &Tree{nodes: map[types.NodeID]*Node{
		Root: {ID: Root, Opened: true},
	}}
}

func (t *Tree) node(id types.NodeID) (*Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, ErrNoNode)
	}
	return n, nil
}

// Create adds a node under parent at pos (Last appends).
func (t *Tree) Create(parent types.NodeID, pos int, text string) (types.NodeID, error) {
	p, err := t.node(parent)
	if err != nil {
		return "", err
	}
	id := types.NodeID(uuid.NewString())
	t.nodes[id] = &Node{ID: id, Text: text, parent: parent}
	p.children = insertAt(p.children, pos, id)
	return id, nil
}

// Delete removes a node and its whole subtree.
func (t *Tree) Delete(id types.NodeID) error {
	if id == Root {
		return fmt.Errorf("delete root: %w", ErrNoNode)
	}
	n, err := t.node(id)
	if err != nil {
		return err
	}
	for _, c := range slices.Clone(n.children) {
		t.Delete(c)
	}
	if p, ok := t.nodes[n.parent]; ok {
		p.children = slices.DeleteFunc(p.children, func(c types.NodeID) bool { return c == id })
	}
	delete(t.nodes, id)
	return nil
}

func (t *Tree) Get(id types.NodeID) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

func (t *Tree) Rename(id types.NodeID, text string) error {
	n, err := t.node(id)
	if err != nil {
		return err
	}
	n.Text = text
	n.redraws++
	return nil
}

func (t *Tree) SetIcon(id types.NodeID, icon string) error {
	n, err := t.node(id)
	if err != nil {
		return err
	}
	n.Icon = icon
	return nil
}

// SetTooltip sets the hover text. With redraw false the node is left for a
// following Rename to repaint.
func (t *Tree) SetTooltip(id types.NodeID, tooltip string, redraw bool) error {
	n, err := t.node(id)
	if err != nil {
		return err
	}
	n.Tooltip = tooltip
	if redraw {
		n.redraws++
	}
	return nil
}

func (t *Tree) SetClasses(id types.NodeID, classes []string) error {
	n, err := t.node(id)
	if err != nil {
		return err
	}
	n.Classes = slices.Clone(classes)
	return nil
}

// Open expands a node.
func (t *Tree) Open(id types.NodeID) error {
	n, err := t.node(id)
	if err != nil {
		return err
	}
	n.Opened = true
	return nil
}

// Close collapses a node.
func (t *Tree) Close(id types.NodeID) error {
	n, err := t.node(id)
	if err != nil {
		return err
	}
	n.Opened = false
	return nil
}

// Move reparents id under parent at pos.
func (t *Tree) Move(id, parent types.NodeID, pos int) error {
	n, err := t.node(id)
	if err != nil {
		return err
	}
	p, err := t.node(parent)
	if err != nil {
		return err
	}
	if old, ok := t.nodes[n.parent]; ok {
		old.children = slices.DeleteFunc(old.children, func(c types.NodeID) bool { return c == id })
	}
	n.parent = parent
	p.children = insertAt(p.children, pos, id)
	return nil
}

func (t *Tree) Parent(id types.NodeID) (types.NodeID, bool) {
	n, ok := t.nodes[id]
	if !ok || id == Root {
		return "", false
	}
	return n.parent, true
}

// Children returns a copy of id's children in order.
func (t *Tree) Children(id types.NodeID) []types.NodeID {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return slices.Clone(n.children)
}

func (t *Tree) Redraw(id types.NodeID) error {
	n, err := t.node(id)
	if err != nil {
		return err
	}
	n.redraws++
	return nil
}

// Len returns the number of nodes, excluding the root.
func (t *Tree) Len() int { return len(t.nodes) - 1 }

func insertAt(ids []types.NodeID, pos int, id types.NodeID) []types.NodeID {
	if pos < 0 || pos > len(ids) {
		return append(ids, id)
	}
	return slices.Insert(ids, pos, id)
}
