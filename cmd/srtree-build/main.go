// Command srtree-build reads a newline-delimited JSON dataset and
// serialises it into a spatial-textual index blob (SPEC_FULL.md §6, §4.8).
package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/peterbourgon/ff/v3"
	"github.com/pkg/errors"
	sglog "github.com/sourcegraph/log"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/spatialtext/srtree/dataset"
	"github.com/spatialtext/srtree/geo"
	"github.com/spatialtext/srtree/signature"
	"github.com/spatialtext/srtree/srtree"
	"github.com/spatialtext/srtree/static"
)

const cellSize = 4096

func encodeMinHashSig(s signature.MinHashSig) []byte {
	entries := s.Entries()
	out := make([]byte, 8*len(entries))
	for i, v := range entries {
		binary.LittleEndian.PutUint64(out[i*8:], v)
	}
	return out
}

func encodePQGramSig(s signature.PQGramSig) []byte {
	entries := s.Entries()
	out := make([]byte, 8+5*len(entries))
	binary.LittleEndian.PutUint32(out[0:4], uint32(s.MinLen()))
	binary.LittleEndian.PutUint32(out[4:8], uint32(s.MaxLen()))
	for i, e := range entries {
		off := 8 + i*5
		binary.LittleEndian.PutUint32(out[off:off+4], e.ID)
		out[off+4] = e.Pos
	}
	return out
}

func main() {
	// Tune GOMAXPROCS to the container's CPU quota before the worker
	// pool picks a default -threads value.
	_, _ = maxprocs.Set()

	fs := flag.NewFlagSet("srtree-build", flag.ExitOnError)
	var (
		inputDir = fs.String("i", "", "input dataset directory (one or more .ndjson files)")
		outDir   = fs.String("o", "", "output directory for the serialised blob")
		typ      = fs.String("t", "stringset", "tree type: minwise-lcg, minwise-sha, pqgram, stringset")
		threads  = fs.Int("threads", 1, "number of worker goroutines building cells in parallel")
		q        = fs.Int("q", 3, "q-gram size for pqgram/minwise types")
		n        = fs.Int("n", 64, "number of permutations for minwise types")
		hashSize = fs.Int("hashSize", 32, "number of coefficients in each lcg permutation's polynomial")
		check    = fs.Bool("check", false, "verify tree consistency after each build stage")
	)
	if err := ff.Parse(fs, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := sglog.Scoped("srtree-build", "")
	if err := run(*inputDir, *outDir, *typ, *threads, *q, *n, *hashSize, *check, logger); err != nil {
		logger.Error("build failed", sglog.Error(err))
		os.Exit(1)
	}
}

func run(inputDir, outDir, typ string, threads, q, n, hashSize int, check bool, logger sglog.Logger) error {
	if inputDir == "" || outDir == "" {
		return errors.New("srtree-build: -i and -o are required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "srtree-build: create output dir")
	}

	triples, skipped, err := loadDataset(inputDir, logger)
	if err != nil {
		return err
	}
	logger.Info("dataset loaded", sglog.Int("items", len(triples)), sglog.Int("skipped", skipped))

	start := time.Now()
	blobBytes, depth, err := buildAndEncode(typ, triples, threads, q, n, hashSize, check, logger)
	if err != nil {
		return err
	}

	outPath := filepath.Join(outDir, typ+".srtree")
	if err := os.WriteFile(outPath, blobBytes, 0o644); err != nil {
		return errors.Wrap(err, "srtree-build: write blob")
	}

	logger.Info("build complete",
		sglog.String("type", typ),
		sglog.Int("depth", depth),
		sglog.String("blobSize", humanize.Bytes(uint64(len(blobBytes)))),
		sglog.String("duration", time.Since(start).String()),
	)
	return nil
}

func loadDataset(inputDir string, logger sglog.Logger) ([]dataset.Triple, int, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, 0, errors.Wrap(err, "srtree-build: read input dir")
	}
	var all []dataset.Triple
	skipped := 0
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		path := filepath.Join(inputDir, ent.Name())
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "srtree-build: open %s", path)
		}
		r := dataset.NewReader(f, logger)
		triples, err := dataset.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, 0, err
		}
		all = append(all, triples...)
		skipped += r.Skipped()
	}
	return all, skipped, nil
}

// buildAndEncode dispatches on typ to pick the concrete signature
// scheme, builds the tree with insertCells' worker pool, optionally
// checks consistency, then marshals and encodes it to bytes.
func buildAndEncode(typ string, triples []dataset.Triple, threads, q, n, hashSize int, check bool, logger sglog.Logger) ([]byte, int, error) {
	switch typ {
	case "stringset":
		dict := signature.NewStringDict()
		scheme := signature.NewStringSet(dict)
		return buildGeneric(scheme, scheme.Signature, triples, threads, check, logger,
			func(sig signature.StringSetSig) []byte { b, _ := sig.Bitmap().ToBytes(); return b })
	case "pqgram":
		dict := signature.NewDictionary()
		scheme := signature.NewPQGram(q, dict)
		return buildGeneric(scheme, scheme.Signature, triples, threads, check, logger, encodePQGramSig)
	case "minwise-lcg":
		mh, err := signature.NewMinHash(rand.Reader, signature.FamilyLCG, q, n, hashSize)
		if err != nil {
			return nil, 0, err
		}
		return buildGeneric(mh, mh.Signature, triples, threads, check, logger, encodeMinHashSig)
	case "minwise-sha":
		mh, err := signature.NewMinHash(rand.Reader, signature.FamilySHA3, q, n, hashSize)
		if err != nil {
			return nil, 0, err
		}
		return buildGeneric(mh, mh.Signature, triples, threads, check, logger, encodeMinHashSig)
	default:
		return nil, 0, errors.Errorf("srtree-build: unknown tree type %q", typ)
	}
}

// buildGeneric runs the insertion worker pool, optional consistency
// checks, and marshal/encode for a single concrete signature type S.
func buildGeneric[S any](
	sch signature.Scheme[S],
	signatureOf func(string) (S, error),
	triples []dataset.Triple,
	threads int,
	check bool,
	logger sglog.Logger,
	encodeSig func(S) []byte,
) ([]byte, int, error) {
	tr, err := srtree.NewTree[S](sch, 4, 10)
	if err != nil {
		return nil, 0, err
	}

	logger.Debug("inserting items", sglog.Int("count", len(triples)), sglog.Int("threads", threads))
	if err := insertCells(tr, triples, threads, func(strs []string) (S, error) {
		var zero S
		sigs := make([]S, 0, len(strs))
		for _, s := range strs {
			sig, err := signatureOf(s)
			if err != nil {
				return zero, err
			}
			sigs = append(sigs, sig)
		}
		if len(sigs) == 0 {
			return sch.Identity(), nil
		}
		return sch.CombineAll(sigs), nil
	}); err != nil {
		return nil, 0, err
	}

	if check {
		if err := tr.Check(); err != nil {
			return nil, 0, errors.Wrap(err, "srtree-build: insertion consistency check")
		}
	}

	tr.RefreshSignatures()
	if check {
		if err := tr.Check(); err != nil {
			return nil, 0, errors.Wrap(err, "srtree-build: signature refresh consistency check")
		}
	}

	blob := static.Marshal[S](tr, encodeSig)
	encoded, err := blob.Encode()
	if err != nil {
		return nil, 0, err
	}

	if check {
		decoded, err := static.Decode(bytes.NewReader(encoded))
		if err != nil {
			return nil, 0, errors.Wrap(err, "srtree-build: serialise round-trip")
		}
		if decoded.Header != blob.Header {
			return nil, 0, errors.New("srtree-build: serialise round-trip header mismatch")
		}
	}

	return encoded, tr.Depth(), nil
}

// insertCells chunks triples into fixed-size cells and processes cells
// concurrently via an errgroup with a worker limit; an item whose id was
// already claimed by any cell is skipped, each item's signature is
// computed off the tree lock, and insertion into the shared tree is
// serialised by Tree's own mutex (SPEC_FULL.md §4.8).
func insertCells[S any](tr *srtree.Tree[S], triples []dataset.Triple, threads int, combine func([]string) (S, error)) error {
	if threads < 1 {
		threads = 1
	}
	var next int64
	numCells := (len(triples) + cellSize - 1) / cellSize
	if numCells == 0 {
		return nil
	}

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(threads)

	var mu sync.Mutex
	var firstErr error
	seen := make(map[uint64]struct{}, len(triples))

	for i := 0; i < numCells; i++ {
		g.Go(func() error {
			cell := int(atomic.AddInt64(&next, 1)) - 1
			start := cell * cellSize
			end := start + cellSize
			if end > len(triples) {
				end = len(triples)
			}
			for _, t := range triples[start:end] {
				mu.Lock()
				_, dup := seen[t.ID]
				seen[t.ID] = struct{}{}
				mu.Unlock()
				if dup {
					continue
				}
				sig, err := combine(t.Strings)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return err
				}
				rect := t.MBR
				if rect.IsEmpty() {
					rect = geo.Point(0, 0)
				}
				tr.Insert(t.ID, rect, sig)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return firstErr
}
