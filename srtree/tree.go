// Package srtree implements the mutable, single-writer R*-tree: an
// R*-tree (Beckmann et al., forced-reinsert variant) where every page
// also carries a textual signature, combined the same way its MBR is
// unioned, so a query can prune on geometry and text together.
//
// The tree is modelled as an arena of node records addressed by index
// rather than raw pointers (spec design note "parent/child cycles"):
// this sidesteps pointer aliasing during reinsertion and split, the
// two operations that relocate entries between pages mid-insert.
package srtree

import (
	"errors"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/spatialtext/srtree/geo"
	"github.com/spatialtext/srtree/signature"
)

// ErrInvalidFanout is returned by NewTree when 2 <= m <= M/2 fails.
var ErrInvalidFanout = errors.New("srtree: fan-out bounds must satisfy 2 <= m <= M/2")

// Tree is a mutable R*-tree over signatures of type S. It is
// single-writer: Insert takes an internal mutex, and the tree must not
// be read concurrently with a write.
type Tree[S any] struct {
	scheme signature.Scheme[S]
	arena  []node[S]
	root   NodeID
	m, M   int
	p      int

	mu sync.Mutex
}

// NewTree builds an empty tree with fan-out bounds (m, M) over scheme.
func NewTree[S any](scheme signature.Scheme[S], m, M int) (*Tree[S], error) {
	if m < 2 || m > M/2 {
		return nil, ErrInvalidFanout
	}
	t := &Tree[S]{scheme: scheme, m: m, M: M, p: M / 3}
	t.root = t.allocNode(node[S]{level: 0, parent: NilNode})
	return t, nil
}

func (t *Tree[S]) allocNode(n node[S]) NodeID {
	id := NodeID(len(t.arena))
	t.arena = append(t.arena, n)
	return id
}

// Depth returns the level of the root (0 when the tree has at most one
// leaf page).
func (t *Tree[S]) Depth() int { return t.arena[t.root].level }

// Root returns the arena id of the root node, for the serializer.
func (t *Tree[S]) Root() NodeID { return t.root }

// Node exposes an arena entry for the serializer's breadth-first walk.
func (t *Tree[S]) Node(id NodeID) *node[S] { return &t.arena[id] }

// CombineSigs runs the tree's scheme's tree-reducing Combine over sigs,
// for callers (the serializer) that need to recompute an aggregate
// signature outside the tree's own insertion/refresh paths.
func (t *Tree[S]) CombineSigs(sigs []S) S { return t.scheme.CombineAll(sigs) }

// Insert places a new item into the tree, running the forced-reinsert
// insertion algorithm of spec §4.4.
func (t *Tree[S]) Insert(itemID uint64, rect geo.Rect, sig S) {
	t.mu.Lock()
	defer t.mu.Unlock()

	touched := make(map[int]bool)
	e := entry[S]{rect: rect, sig: sig, child: NilNode, itemID: itemID}
	t.insertEntry(e, 0, touched)
}

// insertEntry descends to the target level via chooseSubtree and either
// appends e directly or triggers overflow treatment.
func (t *Tree[S]) insertEntry(e entry[S], level int, touched map[int]bool) {
	path := t.chooseSubtree(e.rect, level)
	targetID := path[len(path)-1]
	target := &t.arena[targetID]

	if len(target.entries) < t.M {
		target.entries = append(target.entries, e)
		if !e.isItem() {
			t.arena[e.child].parent = targetID
		}
		t.adjustAncestors(path)
		return
	}
	t.overflowTreatment(path, e, level, touched)
}

// chooseSubtree walks from the root to the node at level, following the
// two selection rules of spec §4.4 step 1.
func (t *Tree[S]) chooseSubtree(rect geo.Rect, level int) []NodeID {
	path := []NodeID{t.root}
	cur := t.root

	for t.arena[cur].level > level {
		n := &t.arena[cur]
		var chosen NodeID
		if level == 0 && n.level == 1 {
			chosen = t.chooseByOverlap(n, rect)
		} else {
			chosen = t.chooseByEnlargement(n, rect)
		}
		path = append(path, chosen)
		cur = chosen
	}
	return path
}

func (t *Tree[S]) chooseByOverlap(n *node[S], box geo.Rect) NodeID {
	best := NilNode
	bestOverlap := -1.0
	bestEnlarge := 0.0
	for _, c := range n.entries {
		total := 0.0
		for _, item := range t.arena[c.child].entries {
			total += geo.OverlapArea(item.rect, box)
		}
		enlarge := c.rect.Enlarged(box)
		if best == NilNode || total < bestOverlap || (total == bestOverlap && enlarge < bestEnlarge) {
			best, bestOverlap, bestEnlarge = c.child, total, enlarge
		}
	}
	return best
}

func (t *Tree[S]) chooseByEnlargement(n *node[S], box geo.Rect) NodeID {
	best := NilNode
	bestEnlarge := 0.0
	bestArea := 0.0
	for _, c := range n.entries {
		enlarge := c.rect.Enlarged(box)
		area := c.rect.Area()
		if best == NilNode || enlarge < bestEnlarge || (enlarge == bestEnlarge && area < bestArea) {
			best, bestEnlarge, bestArea = c.child, enlarge, area
		}
	}
	return best
}

// adjustAncestors recomputes rect/sig for every node on path, from the
// target outward to (but not including) the root's own parent entry
// (the root has none).
func (t *Tree[S]) adjustAncestors(path []NodeID) {
	for i := len(path) - 1; i > 0; i-- {
		childID := path[i]
		parentID := path[i-1]
		t.updateChildEntry(parentID, childID)
	}
}

// updateChildEntry recomputes the rect/sig of the entry in parent that
// points at child, from child's own current contents.
func (t *Tree[S]) updateChildEntry(parentID, childID NodeID) {
	child := &t.arena[childID]
	rect := child.mbr()
	sig := t.combineEntrySigs(child.entries)
	parent := &t.arena[parentID]
	for i := range parent.entries {
		if parent.entries[i].child == childID {
			parent.entries[i].rect = rect
			parent.entries[i].sig = sig
			return
		}
	}
}

func (t *Tree[S]) combineEntrySigs(entries []entry[S]) S {
	sigs := make([]S, len(entries))
	for i, e := range entries {
		sigs[i] = e.sig
	}
	return t.scheme.CombineAll(sigs)
}

// overflowTreatment implements spec §4.4 step 3: forced reinsertion once
// per level per top-level insert, split otherwise.
func (t *Tree[S]) overflowTreatment(path []NodeID, e entry[S], level int, touched map[int]bool) {
	if !touched[level] && level < t.Depth() {
		touched[level] = true
		t.forcedReinsert(path, e, level, touched)
		return
	}
	t.split(path, e, touched)
}

// forcedReinsert sorts the M+1 candidates by descending distance from
// the page's own centre, keeps the farthest M+1-p in place (replacing
// the page's contents), and reinserts the remaining p at the same
// level.
func (t *Tree[S]) forcedReinsert(path []NodeID, e entry[S], level int, touched map[int]bool) {
	targetID := path[len(path)-1]
	target := &t.arena[targetID]

	centerLat, centerLon := target.mbr().Center()
	all := make([]entry[S], len(target.entries)+1)
	copy(all, target.entries)
	all[len(target.entries)] = e

	slices.SortFunc(all, func(a, b entry[S]) bool {
		return distSq(a.rect, centerLat, centerLon) > distSq(b.rect, centerLat, centerLon)
	})

	keep := len(all) - t.p
	target.entries = append([]entry[S]{}, all[:keep]...)
	toReinsert := append([]entry[S]{}, all[keep:]...)

	t.adjustAncestors(path)

	for _, re := range toReinsert {
		t.insertEntry(re, level, touched)
	}
}

func distSq(r geo.Rect, lat, lon float64) float64 {
	cLat, cLon := r.Center()
	dLat := cLat - lat
	dLon := cLon - lon
	return dLat*dLat + dLon*dLon
}

// split implements spec §4.4.1: choose an axis by minimal summed
// perimeter across candidate distributions, then an index within that
// axis minimising overlap (tiebreak: area).
func (t *Tree[S]) split(path []NodeID, e entry[S], touched map[int]bool) {
	targetID := path[len(path)-1]
	targetLevel := t.arena[targetID].level
	targetParent := t.arena[targetID].parent

	all := make([]entry[S], len(t.arena[targetID].entries)+1)
	copy(all, t.arena[targetID].entries)
	all[len(t.arena[targetID].entries)] = e

	groupA, groupB := chooseSplit(all, t.m, t.M)

	// Assign groupA before any alloc that might grow (and so relocate)
	// the arena slice; every access below goes through a fresh index
	// lookup rather than a pointer held across allocNode.
	t.arena[targetID].entries = groupA
	t.reparentChildren(targetID)
	nodeBID := t.allocNode(node[S]{entries: groupB, level: targetLevel, parent: targetParent})
	t.reparentChildren(nodeBID)

	groupARect := unionRects(groupA)
	groupASig := t.combineEntrySigs(groupA)
	groupBRect := unionRects(groupB)
	groupBSig := t.combineEntrySigs(groupB)

	if len(path) == 1 {
		// target was the root: allocate a new root over both halves.
		newRootID := t.allocNode(node[S]{level: targetLevel + 1, parent: NilNode})
		t.arena[targetID].parent = newRootID
		t.arena[nodeBID].parent = newRootID
		t.arena[newRootID].entries = []entry[S]{
			{rect: groupARect, sig: groupASig, child: targetID},
			{rect: groupBRect, sig: groupBSig, child: nodeBID},
		}
		t.root = newRootID
		return
	}

	parentID := path[len(path)-2]
	t.updateChildEntry(parentID, targetID)
	newEntry := entry[S]{rect: groupBRect, sig: groupBSig, child: nodeBID}

	if len(t.arena[parentID].entries) < t.M {
		t.arena[parentID].entries = append(t.arena[parentID].entries, newEntry)
		t.adjustAncestors(path[:len(path)-1])
		return
	}
	t.overflowTreatment(path[:len(path)-1], newEntry, targetLevel+1, touched)
}

// reparentChildren fixes the parent back-link of every child the node
// at id now owns (only meaningful for internal nodes).
func (t *Tree[S]) reparentChildren(id NodeID) {
	n := &t.arena[id]
	if n.level == 0 {
		return
	}
	for _, e := range n.entries {
		t.arena[e.child].parent = id
	}
}

// chooseSplit picks the axis and index per spec §4.4.1 and returns the
// two resulting groups.
func chooseSplit[S any](all []entry[S], m, M int) (groupA, groupB []entry[S]) {
	type axisSort struct {
		less func(a, b entry[S]) bool
	}
	axes := []axisSort{
		{less: func(a, b entry[S]) bool { return a.rect.MinLat < b.rect.MinLat }},
		{less: func(a, b entry[S]) bool { return a.rect.MaxLat < b.rect.MaxLat }},
		{less: func(a, b entry[S]) bool { return a.rect.MinLon < b.rect.MinLon }},
		{less: func(a, b entry[S]) bool { return a.rect.MaxLon < b.rect.MaxLon }},
	}

	haveBest := false
	bestScore := 0.0
	var bestOrder []entry[S]

	for _, ax := range axes {
		ordered := append([]entry[S]{}, all...)
		slices.SortFunc(ordered, ax.less)

		score := 0.0
		for i := m; i <= len(ordered)-m; i++ {
			ra := unionRects(ordered[:i])
			rb := unionRects(ordered[i:])
			score += ra.Perimeter() + rb.Perimeter()
		}
		if !haveBest || score < bestScore {
			haveBest = true
			bestScore = score
			bestOrder = ordered
		}
	}

	bestIndex := m
	bestOverlap := -1.0
	bestArea := 0.0
	for i := m; i <= len(bestOrder)-m; i++ {
		ra := unionRects(bestOrder[:i])
		rb := unionRects(bestOrder[i:])
		overlap := geo.OverlapArea(ra, rb)
		area := ra.Area() + rb.Area()
		if bestOverlap < 0 || overlap < bestOverlap || (overlap == bestOverlap && area < bestArea) {
			bestIndex, bestOverlap, bestArea = i, overlap, area
		}
	}

	groupA = append([]entry[S]{}, bestOrder[:bestIndex]...)
	groupB = append([]entry[S]{}, bestOrder[bestIndex:]...)
	return groupA, groupB
}

func unionRects[S any](entries []entry[S]) geo.Rect {
	r := geo.Empty()
	for _, e := range entries {
		r = geo.Union(r, e.rect)
	}
	return r
}

// RefreshSignatures performs the post-order batch signature refresh of
// spec §4.4: every non-item node's signature is recomputed as Combine
// over its children's (already-refreshed) signatures.
func (t *Tree[S]) RefreshSignatures() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refresh(t.root)
}

func (t *Tree[S]) refresh(id NodeID) S {
	n := &t.arena[id]
	if n.level == 0 {
		return t.combineEntrySigs(n.entries)
	}
	sigs := make([]S, len(n.entries))
	for i := range n.entries {
		sigs[i] = t.refresh(n.entries[i].child)
		n.entries[i].sig = sigs[i]
		n.entries[i].rect = t.arena[n.entries[i].child].mbr()
	}
	return t.scheme.CombineAll(sigs)
}

// Find recurses from the root, evaluating both predicates at every
// child before descending, and appends matching item ids to out in the
// order encountered (spec §4.5's find, run directly against the
// mutable tree rather than a serialised blob).
func (t *Tree[S]) Find(geomPred func(geo.Rect) bool, sigPred signature.Predicate[S], out []uint64) []uint64 {
	return t.find(t.root, geomPred, sigPred, out)
}

func (t *Tree[S]) find(id NodeID, geomPred func(geo.Rect) bool, sigPred signature.Predicate[S], out []uint64) []uint64 {
	n := &t.arena[id]
	for _, e := range n.entries {
		if !geomPred(e.rect) || !sigPred.Eval(e.sig) {
			continue
		}
		if e.isItem() {
			out = append(out, e.itemID)
		} else {
			out = t.find(e.child, geomPred, sigPred, out)
		}
	}
	return out
}
