package static

import (
	"bytes"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/spatialtext/srtree/geo"
	"github.com/spatialtext/srtree/signature"
)

func newByteReader(m mmap.MMap) *bytes.Reader {
	return bytes.NewReader([]byte(m))
}

// StaticTree is the read-only, immutable-after-load counterpart of
// srtree.Tree. Recursive descent is reentrant: multiple goroutines may
// call Find concurrently without synchronisation (spec §5).
type StaticTree[S any] struct {
	blob   *Blob
	decode func([]byte) S

	// mmapped holds the backing mapping when the tree was opened via
	// Open, so Close can unmap it. nil when built directly from a Blob.
	mmapped mmap.MMap
	file    *os.File
}

// NewStaticTree wraps an already-decoded Blob for querying.
func NewStaticTree[S any](blob *Blob, decode func([]byte) S) *StaticTree[S] {
	return &StaticTree[S]{blob: blob, decode: decode}
}

// Open mmaps path read-only and decodes its header eagerly; MBRs and
// node records are materialised on load, while signatures are decoded
// lazily per spec's "lazy signature decoding" design note — Signature
// re-parses the stored bytes on every call rather than caching a
// decoded S for every node up front.
func Open[S any](path string, decode func([]byte) S) (*StaticTree[S], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "static: open")
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "static: mmap")
	}
	blob, err := Decode(newByteReader(m))
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}
	return &StaticTree[S]{blob: blob, decode: decode, mmapped: m, file: f}, nil
}

// Close unmaps and closes the backing file, if this tree was opened via
// Open. It is a no-op for trees built directly from a Blob.
func (t *StaticTree[S]) Close() error {
	if t.mmapped == nil {
		return nil
	}
	if err := t.mmapped.Unmap(); err != nil {
		return err
	}
	return t.file.Close()
}

// Depth returns the tree's depth (root level).
func (t *StaticTree[S]) Depth() int { return int(t.blob.Header.Depth) }

// MBR returns the cached rectangle at id.
func (t *StaticTree[S]) MBR(id int) geo.Rect { return t.blob.MBRs[id] }

// Signature decodes the signature handle stored at id.
func (t *StaticTree[S]) Signature(id int) S { return t.decode(t.blob.Sigs[id]) }

// node returns (firstChildId, numChildren) for the internal/leaf node
// at id.
func (t *StaticTree[S]) node(id int) (int, int) {
	rec := t.blob.Nodes[id]
	return int(rec.FirstChild), int(rec.NumChildren)
}

// item resolves an item-node id (id >= numInternal+numLeaf) to its
// dataset item id.
func (t *StaticTree[S]) item(id int) uint64 {
	return t.blob.Items[id-t.blob.Header.numNonItem()]
}

const rootID = 0

// Find recurses from the root, evaluating geomPred and sigPred on
// every child before descending, appending matching item ids to out in
// the order encountered (spec §4.5).
func (t *StaticTree[S]) Find(geomPred func(geo.Rect) bool, sigPred signature.Predicate[S], out []uint64) []uint64 {
	return t.find(rootID, t.Depth(), geomPred, sigPred, out)
}

func (t *StaticTree[S]) find(id, level int, geomPred func(geo.Rect) bool, sigPred signature.Predicate[S], out []uint64) []uint64 {
	if level == 0 {
		// id's children are items; id itself is an internal/leaf node
		// record (the leaf page), so read it through node().
		first, n := t.node(id)
		for i := 0; i < n; i++ {
			childID := first + i
			if !geomPred(t.MBR(childID)) || !sigPred.Eval(t.Signature(childID)) {
				continue
			}
			out = append(out, t.item(childID))
		}
		return out
	}
	first, n := t.node(id)
	for i := 0; i < n; i++ {
		childID := first + i
		if !geomPred(t.MBR(childID)) || !sigPred.Eval(t.Signature(childID)) {
			continue
		}
		out = t.find(childID, level-1, geomPred, sigPred, out)
	}
	return out
}

// Visit additionally emits every interior node id it descends through,
// before its items (spec §4.5).
func (t *StaticTree[S]) Visit(geomPred func(geo.Rect) bool, sigPred signature.Predicate[S], onNode func(id int), out []uint64) []uint64 {
	return t.visit(rootID, t.Depth(), geomPred, sigPred, onNode, out)
}

func (t *StaticTree[S]) visit(id, level int, geomPred func(geo.Rect) bool, sigPred signature.Predicate[S], onNode func(id int), out []uint64) []uint64 {
	onNode(id)
	if level == 0 {
		first, n := t.node(id)
		for i := 0; i < n; i++ {
			childID := first + i
			if !geomPred(t.MBR(childID)) || !sigPred.Eval(t.Signature(childID)) {
				continue
			}
			out = append(out, t.item(childID))
		}
		return out
	}
	first, n := t.node(id)
	for i := 0; i < n; i++ {
		childID := first + i
		if !geomPred(t.MBR(childID)) || !sigPred.Eval(t.Signature(childID)) {
			continue
		}
		out = t.visit(childID, level-1, geomPred, sigPred, onNode, out)
	}
	return out
}
