// Package static implements the serialised, read-only counterpart of
// srtree.Tree: a breadth-first-numbered blob of parallel arrays, following
// the layout of spec §4.5/§6. Open mmaps the blob and decodes every array
// into memory at once; only the conversion of stored signature bytes into
// scheme values is deferred until a query inspects them.
package static

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Version is the blob format version this package reads and writes.
const Version uint8 = 2

// ErrVersionMismatch is returned by Decode when the blob's leading
// version byte does not match Version.
var ErrVersionMismatch = errors.New("static: blob version mismatch")

// TOC is the blob header: depth and the three population counts that
// size every parallel array.
type TOC struct {
	Depth            uint32
	NumInternalNodes uint32
	NumLeafNodes     uint32
	NumItemNodes     uint32
}

func (h TOC) numNonItem() int { return int(h.NumInternalNodes + h.NumLeafNodes) }
func (h TOC) numAll() int     { return int(h.NumInternalNodes+h.NumLeafNodes) + int(h.NumItemNodes) }

func (h TOC) writeTo(w io.Writer) error {
	var buf [1 + 4*4]byte
	buf[0] = Version
	binary.LittleEndian.PutUint32(buf[1:], h.Depth)
	binary.LittleEndian.PutUint32(buf[5:], h.NumInternalNodes)
	binary.LittleEndian.PutUint32(buf[9:], h.NumLeafNodes)
	binary.LittleEndian.PutUint32(buf[13:], h.NumItemNodes)
	_, err := w.Write(buf[:])
	return err
}

func readTOC(r io.Reader) (TOC, error) {
	var buf [1 + 4*4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return TOC{}, errors.Wrap(err, "static: read header")
	}
	if buf[0] != Version {
		return TOC{}, errors.Wrapf(ErrVersionMismatch, "got version %d, want %d", buf[0], Version)
	}
	return TOC{
		Depth:            binary.LittleEndian.Uint32(buf[1:]),
		NumInternalNodes: binary.LittleEndian.Uint32(buf[5:]),
		NumLeafNodes:     binary.LittleEndian.Uint32(buf[9:]),
		NumItemNodes:     binary.LittleEndian.Uint32(buf[13:]),
	}, nil
}

// writeArray writes a length-prefixed (byte length, element count)
// array of fixed-width records, each produced by encode.
func writeArray(w io.Writer, n int, width int, encode func(i int) []byte) error {
	var lenBuf [12]byte
	binary.LittleEndian.PutUint64(lenBuf[:8], uint64(n*width))
	binary.LittleEndian.PutUint32(lenBuf[8:], uint32(n))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if _, err := w.Write(encode(i)); err != nil {
			return fmt.Errorf("static: write array element %d: %w", i, err)
		}
	}
	return nil
}

func readArrayHeader(r io.Reader) (byteLen int, count int, err error) {
	var lenBuf [12]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, 0, errors.Wrap(err, "static: read array header")
	}
	return int(binary.LittleEndian.Uint64(lenBuf[:8])), int(binary.LittleEndian.Uint32(lenBuf[8:])), nil
}
