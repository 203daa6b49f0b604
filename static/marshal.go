package static

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/spatialtext/srtree/geo"
	"github.com/spatialtext/srtree/srtree"
)

// nodeRecord is one (firstChildId, numChildren) pair for an internal or
// leaf node.
type nodeRecord struct {
	FirstChild  uint32
	NumChildren uint8
}

// Blob is the in-memory form of a marshalled tree: breadth-first
// numbered parallel arrays, ready to Encode to bytes or already
// Decoded from them.
type Blob struct {
	Header TOC
	Nodes  []nodeRecord
	MBRs   []geo.Rect
	Sigs   [][]byte
	Items  []uint64
}

// Marshal walks tree breadth-first, assigning ids as nodes are emitted
// (spec §4.5): an item entry gets an MBR/Sig slot but no Nodes entry.
// encode turns a scheme signature into its on-disk handle bytes.
func Marshal[S any](tree *srtree.Tree[S], encode func(S) []byte) *Blob {
	assigned := map[srtree.NodeID]uint32{tree.Root(): 0}
	order := []srtree.NodeID{tree.Root()}
	isLeaf := map[srtree.NodeID]bool{}

	var internalCount, leafCount uint32
	for i := 0; i < len(order); i++ {
		id := order[i]
		n := tree.Node(id)
		leaf := n.Level() == 0
		isLeaf[id] = leaf
		if leaf {
			leafCount++
		} else {
			internalCount++
			for _, e := range n.Entries() {
				child := e.Child()
				if _, ok := assigned[child]; !ok {
					assigned[child] = uint32(len(order))
					order = append(order, child)
				}
			}
		}
	}

	b := &Blob{
		Nodes: make([]nodeRecord, len(order)),
		MBRs:  make([]geo.Rect, len(order)),
		Sigs:  make([][]byte, len(order)),
	}

	type itemSlot struct {
		rect geo.Rect
		sig  []byte
		item uint64
	}
	var items []itemSlot

	for _, id := range order {
		n := tree.Node(id)
		ownID := assigned[id]

		rect := geo.Empty()
		sigs := make([]S, len(n.Entries()))
		for i, e := range n.Entries() {
			rect = geo.Union(rect, e.Rect())
			sigs[i] = e.Sig()
		}
		b.MBRs[ownID] = rect
		b.Sigs[ownID] = encode(tree.CombineSigs(sigs))

		var firstChild uint32
		numChildren := 0
		if isLeaf[id] {
			firstChild = uint32(len(order) + len(items))
			for _, e := range n.Entries() {
				items = append(items, itemSlot{rect: e.Rect(), sig: encode(e.Sig()), item: e.ItemID()})
				numChildren++
			}
		} else {
			for _, e := range n.Entries() {
				if numChildren == 0 {
					firstChild = assigned[e.Child()]
				}
				numChildren++
			}
		}
		b.Nodes[ownID] = nodeRecord{FirstChild: firstChild, NumChildren: uint8(numChildren)}
	}

	b.Items = make([]uint64, len(items))
	for i, it := range items {
		b.MBRs = append(b.MBRs, it.rect)
		b.Sigs = append(b.Sigs, it.sig)
		b.Items[i] = it.item
	}

	b.Header = TOC{
		Depth:            uint32(tree.Depth()),
		NumInternalNodes: internalCount,
		NumLeafNodes:     leafCount,
		NumItemNodes:     uint32(len(items)),
	}
	return b
}

// Encode serialises the blob to the wire format of spec §6.
func (b *Blob) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.Header.writeTo(&buf); err != nil {
		return nil, err
	}
	if err := writeArray(&buf, len(b.Nodes), 5, func(i int) []byte {
		var rec [5]byte
		binary.LittleEndian.PutUint32(rec[:4], b.Nodes[i].FirstChild)
		rec[4] = b.Nodes[i].NumChildren
		return rec[:]
	}); err != nil {
		return nil, err
	}
	if err := writeArray(&buf, len(b.MBRs), 32, func(i int) []byte {
		return encodeRect(b.MBRs[i])
	}); err != nil {
		return nil, err
	}
	if err := writeVarArray(&buf, b.Sigs); err != nil {
		return nil, err
	}
	if err := writeArray(&buf, len(b.Items), 8, func(i int) []byte {
		var rec [8]byte
		binary.LittleEndian.PutUint64(rec[:], b.Items[i])
		return rec[:]
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses the wire format of spec §6 back into a Blob.
func Decode(r io.Reader) (*Blob, error) {
	header, err := readTOC(r)
	if err != nil {
		return nil, err
	}
	numNonItem := header.numNonItem()

	_, nodeCount, err := readArrayHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "static: read nodes array")
	}
	if nodeCount != numNonItem {
		return nil, errors.Errorf("static: nodes array has %d elements, want %d", nodeCount, numNonItem)
	}
	nodes := make([]nodeRecord, nodeCount)
	for i := range nodes {
		var rec [5]byte
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, errors.Wrap(err, "static: read node record")
		}
		nodes[i] = nodeRecord{FirstChild: binary.LittleEndian.Uint32(rec[:4]), NumChildren: rec[4]}
	}

	_, mbrCount, err := readArrayHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "static: read mbrs array")
	}
	if mbrCount != header.numAll() {
		return nil, errors.Errorf("static: mbrs array has %d elements, want %d", mbrCount, header.numAll())
	}
	mbrs := make([]geo.Rect, mbrCount)
	for i := range mbrs {
		var rec [32]byte
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, errors.Wrap(err, "static: read mbr record")
		}
		mbrs[i] = decodeRect(rec[:])
	}

	sigs, err := readVarArray(r)
	if err != nil {
		return nil, errors.Wrap(err, "static: read signatures array")
	}
	if len(sigs) != header.numAll() {
		return nil, errors.Errorf("static: signatures array has %d elements, want %d", len(sigs), header.numAll())
	}

	_, itemCount, err := readArrayHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "static: read items array")
	}
	if itemCount != int(header.NumItemNodes) {
		return nil, errors.Errorf("static: items array has %d elements, want %d", itemCount, header.NumItemNodes)
	}
	items := make([]uint64, itemCount)
	for i := range items {
		var rec [8]byte
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, errors.Wrap(err, "static: read item id")
		}
		items[i] = binary.LittleEndian.Uint64(rec[:])
	}

	return &Blob{Header: header, Nodes: nodes, MBRs: mbrs, Sigs: sigs, Items: items}, nil
}

func encodeRect(r geo.Rect) []byte {
	var rec [32]byte
	binary.LittleEndian.PutUint64(rec[0:8], math.Float64bits(r.MinLat))
	binary.LittleEndian.PutUint64(rec[8:16], math.Float64bits(r.MaxLat))
	binary.LittleEndian.PutUint64(rec[16:24], math.Float64bits(r.MinLon))
	binary.LittleEndian.PutUint64(rec[24:32], math.Float64bits(r.MaxLon))
	return rec[:]
}

func decodeRect(b []byte) geo.Rect {
	return geo.NewRect(
		math.Float64frombits(binary.LittleEndian.Uint64(b[0:8])),
		math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
		math.Float64frombits(binary.LittleEndian.Uint64(b[16:24])),
		math.Float64frombits(binary.LittleEndian.Uint64(b[24:32])),
	)
}

func writeVarArray(w io.Writer, elems [][]byte) error {
	total := 0
	for _, e := range elems {
		total += 4 + len(e)
	}
	var lenBuf [12]byte
	binary.LittleEndian.PutUint64(lenBuf[:8], uint64(total))
	binary.LittleEndian.PutUint32(lenBuf[8:], uint32(len(elems)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	for _, e := range elems {
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(e)))
		if _, err := w.Write(l[:]); err != nil {
			return err
		}
		if _, err := w.Write(e); err != nil {
			return err
		}
	}
	return nil
}

func readVarArray(r io.Reader) ([][]byte, error) {
	_, count, err := readArrayHeader(r)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, count)
	for i := 0; i < count; i++ {
		var l [4]byte
		if _, err := io.ReadFull(r, l[:]); err != nil {
			return nil, errors.Wrap(err, "static: read sig length")
		}
		n := binary.LittleEndian.Uint32(l[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(err, "static: read sig bytes")
		}
		out[i] = buf
	}
	return out, nil
}
