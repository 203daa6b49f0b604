// Package dataset adapts newline-delimited JSON item descriptions into
// the (id, mbr, strings) triples the build driver feeds into a tree
// (SPEC_FULL.md §4.7).
package dataset

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	sglog "github.com/sourcegraph/log"

	"github.com/spatialtext/srtree/geo"
)

// Triple is one dataset item: its id, its bounding rectangle, and the
// set of strings its text signature is built from.
type Triple struct {
	ID      uint64
	MBR     geo.Rect
	Strings []string
}

// record is the on-the-wire JSON shape of one dataset line.
type record struct {
	ID     uint64            `json:"id"`
	MinLat float64           `json:"min_lat"`
	MaxLat float64           `json:"max_lat"`
	MinLon float64           `json:"min_lon"`
	MaxLon float64           `json:"max_lon"`
	Tags   map[string]string `json:"tags"`
}

// Reader scans an io.Reader for newline-delimited JSON records, yielding
// one Triple per well-formed line. Malformed lines are logged and
// skipped rather than failing the whole read.
type Reader struct {
	scanner *bufio.Scanner
	logger  sglog.Logger
	closer  io.Closer

	lineNo  int
	skipped int
}

// NewReader wraps r. If r also implements io.Closer, Close releases it.
func NewReader(r io.Reader, logger sglog.Logger) *Reader {
	closer, _ := r.(io.Closer)
	return &Reader{scanner: bufio.NewScanner(r), logger: logger, closer: closer}
}

// Close releases the underlying reader, if it is closeable.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Skipped returns the number of malformed lines skipped so far.
func (r *Reader) Skipped() int { return r.skipped }

// Next returns the next well-formed Triple. ok is false once the
// underlying reader is exhausted; malformed lines are skipped
// internally rather than returned as errors.
func (r *Reader) Next() (Triple, bool, error) {
	for r.scanner.Scan() {
		r.lineNo++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			r.skipped++
			r.logger.Warn("dataset: skipping malformed line", sglog.Int("line", r.lineNo), sglog.Error(err))
			continue
		}
		return Triple{
			ID:      rec.ID,
			MBR:     geo.NewRect(rec.MinLat, rec.MaxLat, rec.MinLon, rec.MaxLon),
			Strings: expandTags(rec.Tags),
		}, true, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Triple{}, false, errors.Wrap(err, "dataset: scan")
	}
	return Triple{}, false, nil
}

// expandTags lowercases every key/value and emits "key", "value", and
// "key:value" for each non-empty tag (SPEC_FULL.md §3 "Dataset triple").
func expandTags(tags map[string]string) []string {
	out := make([]string, 0, len(tags)*3)
	for k, v := range tags {
		if k == "" && v == "" {
			continue
		}
		k = strings.ToLower(k)
		v = strings.ToLower(v)
		if k != "" {
			out = append(out, k)
		}
		if v != "" {
			out = append(out, v)
		}
		if k != "" && v != "" {
			out = append(out, k+":"+v)
		}
	}
	return out
}

// ReadAll drains r, returning every well-formed Triple. The build
// driver's loadDataset reads each input file this way, holding all of
// its triples in memory.
func ReadAll(r *Reader) ([]Triple, error) {
	var out []Triple
	for {
		t, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, t)
	}
}
