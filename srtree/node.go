package srtree

import "github.com/spatialtext/srtree/geo"

// NodeID indexes into a Tree's arena. The tree never frees nodes (no
// delete operation), so ids are stable for the tree's whole lifetime.
// This replaces the raw upward/child pointers a naive port would use,
// avoiding aliasing during reinsertion and split.
type NodeID int32

const NilNode NodeID = -1

// entry is a child slot shared by every node kind. An entry with
// child == NilNode is an item entry (a leaf pointing at a dataset
// record); otherwise it points at a child node one level down.
type entry[S any] struct {
	rect   geo.Rect
	sig    S
	child  NodeID
	itemID uint64
}

func (e entry[S]) isItem() bool { return e.child == NilNode }

// Rect, Sig, Child, ItemID and IsItem expose an entry's fields to
// callers outside the package (the serializer's breadth-first walk).
func (e entry[S]) Rect() geo.Rect  { return e.rect }
func (e entry[S]) Sig() S         { return e.sig }
func (e entry[S]) Child() NodeID  { return e.child }
func (e entry[S]) ItemID() uint64 { return e.itemID }
func (e entry[S]) IsItem() bool   { return e.isItem() }

// node is one page of the arena. level 0 means every entry is an item
// entry; level > 0 means every entry points at a child node at
// level-1.
type node[S any] struct {
	entries []entry[S]
	level   int
	parent  NodeID
}

// mbr returns the union of every entry's rectangle.
func (n *node[S]) mbr() geo.Rect {
	r := geo.Empty()
	for _, e := range n.entries {
		r = geo.Union(r, e.rect)
	}
	return r
}

// Level returns the node's level (0 = leaf, entries are items).
func (n *node[S]) Level() int { return n.level }

// Entries exposes the node's child slots for the serializer.
func (n *node[S]) Entries() []entry[S] { return n.entries }
