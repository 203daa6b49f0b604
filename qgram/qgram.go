// Package qgram produces the q-gram sequence of a string: a sliding window
// that grows from a single character at the start and shrinks back down
// at the end, used by the signature schemes to summarise strings.
package qgram

import "errors"

// ErrEmptyString is returned when QGram is asked to cover a zero-length
// string; this is a precondition violation per the error taxonomy, not a
// recoverable condition.
var ErrEmptyString = errors.New("qgram: empty string")

// ErrInvalidQ is returned when q < 1.
var ErrInvalidQ = errors.New("qgram: q must be >= 1")

// QGram is the ordered sequence of q-grams of a string: q-1 growing
// prefixes, then full-length windows, then q-1 shrinking suffixes. It is
// a value type: New is cheap and At/Size are pure functions of (base, q).
type QGram struct {
	base string
	q    int
}

// New builds a QGram view over s with gram length q. s must be non-empty
// and q must be >= 1.
func New(s string, q int) (QGram, error) {
	if q < 1 {
		return QGram{}, ErrInvalidQ
	}
	if len(s) == 0 {
		return QGram{}, ErrEmptyString
	}
	return QGram{base: s, q: q}, nil
}

// Base returns the underlying string.
func (g QGram) Base() string { return g.base }

// Q returns the gram length.
func (g QGram) Q() int { return g.q }

// Size returns |s| + q - 1, the number of grams in the sequence.
func (g QGram) Size() int {
	return len(g.base) + g.q - 1
}

// At returns the gram at position i. Grams at i < q-1 are the growing
// prefix g.base[0:i+1]; grams at i >= q-1 are windows starting at
// i-(q-1), clamped to the end of the string, so the final q-1 positions
// yield shrinking suffixes rather than running off the end.
func (g QGram) At(i int) string {
	if i+1 < g.q {
		return g.base[:i+1]
	}
	start := i - (g.q - 1)
	end := i + 1
	if end > len(g.base) {
		end = len(g.base)
	}
	return g.base[start:end]
}

// Iterator is a forward, non-restartable cursor over a QGram's sequence.
// Obtain a fresh one with QGram.Iterator to start over.
type Iterator struct {
	g   QGram
	pos int
}

// Iterator returns a new forward iterator positioned before the first gram.
func (g QGram) Iterator() *Iterator {
	return &Iterator{g: g}
}

// Next returns the next gram and true, or ("", false) once exhausted.
func (it *Iterator) Next() (string, bool) {
	if it.pos >= it.g.Size() {
		return "", false
	}
	gram := it.g.At(it.pos)
	it.pos++
	return gram, true
}

// All materialises the full gram sequence in order. Useful for tests and
// for schemes that need random access.
func (g QGram) All() []string {
	out := make([]string, 0, g.Size())
	it := g.Iterator()
	for {
		gram, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, gram)
	}
	return out
}

// IntersectionSize treats both q-gram sequences as multisets and returns
// Σ min(count(g in a), count(g in b)). Test-only helper per spec (§4.2).
func IntersectionSize(a, b QGram) int {
	fs := make(map[string]int, a.Size())
	for _, g := range a.All() {
		fs[g]++
	}
	ss := make(map[string]int, b.Size())
	for _, g := range b.All() {
		ss[g]++
	}
	total := 0
	for g, fc := range fs {
		if sc, ok := ss[g]; ok {
			if fc < sc {
				total += fc
			} else {
				total += sc
			}
		}
	}
	return total
}
