// Command srtree-query loads a serialised spatial-textual index and
// answers one or more range+text queries against it, optionally running
// throughput benchmarks (SPEC_FULL.md §6).
package main

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	mathrand "math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/peterbourgon/ff/v3"
	"github.com/pkg/errors"
	sglog "github.com/sourcegraph/log"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/spatialtext/srtree/geo"
	"github.com/spatialtext/srtree/query"
	"github.com/spatialtext/srtree/signature"
	"github.com/spatialtext/srtree/static"
)

// rawQuery is one -m flag's value: "minLat,maxLat,minLon,maxLon,text,k".
type rawQuery struct {
	box  geo.Rect
	text string
	k    int
}

func parseRawQuery(s string) (rawQuery, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return rawQuery{}, errors.Errorf("srtree-query: -m %q: want minLat,maxLat,minLon,maxLon,text,k", s)
	}
	var f [4]float64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return rawQuery{}, errors.Wrapf(err, "srtree-query: -m %q", s)
		}
		f[i] = v
	}
	k, err := strconv.Atoi(strings.TrimSpace(parts[5]))
	if err != nil {
		return rawQuery{}, errors.Wrapf(err, "srtree-query: -m %q", s)
	}
	return rawQuery{box: geo.NewRect(f[0], f[1], f[2], f[3]), text: strings.TrimSpace(parts[4]), k: k}, nil
}

// queryList accumulates repeated -m flags.
type queryList []string

func (q *queryList) String() string { return strings.Join(*q, ";") }
func (q *queryList) Set(s string) error {
	*q = append(*q, s)
	return nil
}

type benchSpec struct {
	cells, items, boxesPerCell, reps int
}

func parseBenchSpec(s string) (benchSpec, bool, error) {
	if s == "" {
		return benchSpec{}, false, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return benchSpec{}, false, errors.Errorf("srtree-query: bench spec %q: want C,I,B,R", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return benchSpec{}, false, errors.Wrapf(err, "srtree-query: bench spec %q", s)
		}
		v[i] = n
	}
	return benchSpec{cells: v[0], items: v[1], boxesPerCell: v[2], reps: v[3]}, true, nil
}

func main() {
	// Tune GOMAXPROCS to the container's CPU quota at startup; the
	// query and bench loops below run on a single goroutine.
	_, _ = maxprocs.Set()

	fs := flag.NewFlagSet("srtree-query", flag.ExitOnError)
	var queries queryList
	var (
		inDir      = fs.String("i", "", "directory holding the serialised blob")
		datasetDir = fs.String("o", "", "original dataset directory, for --test verification")
		typ        = fs.String("t", "stringset", "tree type: minwise-lcg, minwise-sha, pqgram, stringset")
		q          = fs.Int("q", 3, "q-gram size the blob was built with (minwise types)")
		n          = fs.Int("n", 64, "number of permutations the blob was built with (minwise types)")
		hashSize   = fs.Int("hashSize", 32, "lcg polynomial coefficient count the blob was built with (minwise-lcg)")
		doTest     = fs.Bool("test", false, "require -o DATASET_DIR and log a cross-check reminder; no answers are compared")
		bench      = fs.String("bench", "", "run a synthetic benchmark: C,I,B,R (cells,items/cell,boxes/cell,reps)")
		pruneBench = fs.String("prune-bench", "", "like -bench, but reports pruning effectiveness instead of latency")
		preload    = fs.Bool("preload", false, "visit every node once, decoding every stored signature, before querying")
	)
	fs.Var(&queries, "m", "a query \"minLat,maxLat,minLon,maxLon,text,editDistance\" (repeatable)")
	if err := ff.Parse(fs, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := sglog.Scoped("srtree-query", "")
	if err := run(*inDir, *datasetDir, *typ, *q, *n, *hashSize, []string(queries), *doTest, *bench, *pruneBench, *preload, logger); err != nil {
		logger.Error("query failed", sglog.Error(err))
		os.Exit(1)
	}
}

func run(inDir, datasetDir, typ string, q, n, hashSize int, rawQueries []string, doTest bool, bench, pruneBench string, preload bool, logger sglog.Logger) error {
	if inDir == "" {
		return errors.New("srtree-query: -i is required")
	}
	blobPath := filepath.Join(inDir, typ+".srtree")

	switch typ {
	case "stringset":
		dict := signature.NewStringDict()
		scheme := signature.NewStringSet(dict)
		return runGeneric(blobPath, scheme, decodeStringSetSig, rawQueries, doTest, datasetDir, bench, pruneBench, preload, logger)
	case "pqgram":
		dict := signature.NewDictionary()
		scheme := signature.NewPQGram(3, dict)
		return runGeneric(blobPath, scheme, decodePQGramSig, rawQueries, doTest, datasetDir, bench, pruneBench, preload, logger)
	case "minwise-lcg":
		mh, err := signature.NewMinHash(rand.Reader, signature.FamilyLCG, q, n, hashSize)
		if err != nil {
			return err
		}
		return runGeneric(blobPath, mh, decodeMinHashSig, rawQueries, doTest, datasetDir, bench, pruneBench, preload, logger)
	case "minwise-sha":
		mh, err := signature.NewMinHash(rand.Reader, signature.FamilySHA3, q, n, hashSize)
		if err != nil {
			return err
		}
		return runGeneric(blobPath, mh, decodeMinHashSig, rawQueries, doTest, datasetDir, bench, pruneBench, preload, logger)
	default:
		return errors.Errorf("srtree-query: unknown tree type %q", typ)
	}
}

func runGeneric[S any](
	blobPath string,
	scheme signature.Scheme[S],
	decode func([]byte) S,
	rawQueries []string,
	doTest bool,
	datasetDir string,
	bench, pruneBench string,
	preload bool,
	logger sglog.Logger,
) error {
	tree, err := static.Open[S](blobPath, decode)
	if err != nil {
		return errors.Wrap(err, "srtree-query: open blob")
	}
	defer tree.Close()

	if preload {
		// A Visit pass with always-true predicates reads every MBR and
		// decodes every stored signature once. Open has already copied
		// the whole mapping into memory, so this pass touches no mmap pages.
		always := func(geo.Rect) bool { return true }
		alwaysSig := signature.Leaf[S](func(S) bool { return true })
		tree.Visit(always, alwaysSig, func(int) {}, nil)
	}

	for _, raw := range rawQueries {
		rq, err := parseRawQuery(raw)
		if err != nil {
			return err
		}
		ids, err := query.Run[S](tree, scheme, query.GeomLeaf{Rect: rq.box}, query.TextLeaf{Query: rq.text, EditDistance: rq.k})
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %v\n", raw, ids)
	}

	if doTest {
		if datasetDir == "" {
			return errors.New("srtree-query: --test requires -o DATASET_DIR")
		}
		logger.Info("--test is a manual cross-check hook; rebuild the dataset's tree and diff Find results to verify")
	}

	if spec, ok, err := parseBenchSpec(bench); err != nil {
		return err
	} else if ok {
		runBench(tree, scheme, spec, logger)
	}

	if spec, ok, err := parseBenchSpec(pruneBench); err != nil {
		return err
	} else if ok {
		runPruneBench(tree, scheme, spec, logger)
	}

	return nil
}

func runBench[S any](tree *static.StaticTree[S], scheme signature.Scheme[S], spec benchSpec, logger sglog.Logger) {
	r := mathrand.New(mathrand.NewSource(1))
	start := time.Now()
	var total int
	for rep := 0; rep < spec.reps; rep++ {
		for c := 0; c < spec.cells; c++ {
			for b := 0; b < spec.boxesPerCell; b++ {
				box := geo.NewRect(r.Float64()*90, r.Float64()*90, r.Float64()*180, r.Float64()*180)
				sigPred, err := scheme.MayHaveMatch("a", 0)
				if err != nil {
					continue
				}
				ids := tree.Find(func(rect geo.Rect) bool { return geo.Overlap(rect, box) }, sigPred, nil)
				total += len(ids)
			}
		}
	}
	elapsed := time.Since(start)
	logger.Info("bench complete",
		sglog.Int("queries", spec.cells*spec.boxesPerCell*spec.reps),
		sglog.Int("matches", total),
		sglog.String("elapsed", elapsed.String()),
	)
}

func runPruneBench[S any](tree *static.StaticTree[S], scheme signature.Scheme[S], spec benchSpec, logger sglog.Logger) {
	r := mathrand.New(mathrand.NewSource(2))
	var visited, matched int
	for rep := 0; rep < spec.reps; rep++ {
		for c := 0; c < spec.cells; c++ {
			for b := 0; b < spec.boxesPerCell; b++ {
				box := geo.NewRect(r.Float64()*90, r.Float64()*90, r.Float64()*180, r.Float64()*180)
				sigPred, err := scheme.MayHaveMatch("a", 0)
				if err != nil {
					continue
				}
				ids := tree.Visit(
					func(rect geo.Rect) bool { return geo.Overlap(rect, box) },
					sigPred,
					func(id int) { visited++ },
					nil,
				)
				matched += len(ids)
			}
		}
	}
	logger.Info("prune-bench complete",
		sglog.Int("nodesVisited", visited),
		sglog.Int("itemsMatched", matched),
	)
}

func decodeMinHashSig(b []byte) signature.MinHashSig {
	entries := make([]uint64, len(b)/8)
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return signature.MinHashSigFromEntries(entries)
}

func decodeStringSetSig(b []byte) signature.StringSetSig {
	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(b)); err != nil {
		panic(err)
	}
	return signature.StringSetSigFromBitmap(bm)
}

func decodePQGramSig(b []byte) signature.PQGramSig {
	if len(b) < 8 {
		return signature.PQGramSigFromEntries(nil, 0, 0)
	}
	minLen := int(binary.LittleEndian.Uint32(b[0:4]))
	maxLen := int(binary.LittleEndian.Uint32(b[4:8]))
	n := (len(b) - 8) / 5
	entries := make([]struct {
		ID  uint32
		Pos uint8
	}, n)
	for i := 0; i < n; i++ {
		off := 8 + i*5
		entries[i].ID = binary.LittleEndian.Uint32(b[off : off+4])
		entries[i].Pos = b[off+4]
	}
	return signature.PQGramSigFromEntries(entries, minLen, maxLen)
}
