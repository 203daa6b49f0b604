package srtree

import (
	"fmt"

	"github.com/spatialtext/srtree/geo"
)

// Check walks the whole tree and verifies the invariants of spec §4.4's
// consistency check: uniform child type per level, cached MBR equal to
// the freshly recomputed union, and parent back-links pointing to the
// node that holds them. It is meant for tests, not the hot path.
func (t *Tree[S]) Check() error {
	return t.checkNode(t.root, NilNode)
}

func (t *Tree[S]) checkNode(id, expectParent NodeID) error {
	n := &t.arena[id]
	if n.parent != expectParent {
		return fmt.Errorf("srtree: node %d has parent %d, want %d", id, n.parent, expectParent)
	}
	if id != t.root {
		if len(n.entries) < t.m || len(n.entries) > t.M {
			return fmt.Errorf("srtree: node %d has %d children, want [%d,%d]", id, len(n.entries), t.m, t.M)
		}
	}

	want := n.mbr()
	parentEntryRect, ok := t.findEntryRect(expectParent, id)
	if ok && !rectsEqual(parentEntryRect, want) {
		return fmt.Errorf("srtree: node %d cached rect %v does not match recomputed union %v", id, parentEntryRect, want)
	}

	if n.level == 0 {
		for _, e := range n.entries {
			if !e.isItem() {
				return fmt.Errorf("srtree: leaf node %d has a non-item entry", id)
			}
		}
		return nil
	}
	for _, e := range n.entries {
		if e.isItem() {
			return fmt.Errorf("srtree: internal node %d has an item entry", id)
		}
		if t.arena[e.child].level != n.level-1 {
			return fmt.Errorf("srtree: node %d child %d at wrong level", id, e.child)
		}
		if err := t.checkNode(e.child, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree[S]) findEntryRect(parentID, childID NodeID) (geo.Rect, bool) {
	if parentID == NilNode {
		return geo.Rect{}, false
	}
	for _, e := range t.arena[parentID].entries {
		if e.child == childID {
			return e.rect, true
		}
	}
	return geo.Rect{}, false
}

func rectsEqual(a, b geo.Rect) bool {
	const eps = 1e-9
	return absf(a.MinLat-b.MinLat) < eps &&
		absf(a.MaxLat-b.MaxLat) < eps &&
		absf(a.MinLon-b.MinLon) < eps &&
		absf(a.MaxLon-b.MaxLon) < eps
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
