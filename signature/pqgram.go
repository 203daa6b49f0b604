package signature

import (
	"sort"
	"sync"

	"github.com/spatialtext/srtree/qgram"
)

// pqgramNotFound is the id MayHaveMatch gives a query gram that is absent
// from the Dictionary. Dictionary ids are assigned from 0 upward, so
// 0xFFFFFFFF is never assigned to a real gram.
const pqgramNotFound uint32 = 0xFFFFFFFF

// Dictionary is the process-wide table mapping distinct q-gram text to a
// compact uint32 id, shared by every PQGramSet produced by a PQGram
// scheme. Build time uses Insert (grows the table); query time uses Find
// (read-only, a gram absent from the table can never have been indexed).
type Dictionary struct {
	mu      sync.RWMutex
	byGram  map[string]uint32
	byID    []string
}

// NewDictionary returns an empty gram dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{byGram: make(map[string]uint32)}
}

// Insert returns the id for gram, assigning a new one if this is the
// first time gram has been seen.
func (d *Dictionary) Insert(gram string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byGram[gram]; ok {
		return id
	}
	id := uint32(len(d.byID))
	d.byGram[gram] = id
	d.byID = append(d.byID, gram)
	return id
}

// Find looks up gram without mutating the table. ok is false if gram was
// never inserted.
func (d *Dictionary) Find(gram string) (id uint32, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok = d.byGram[gram]
	return id, ok
}

// Len returns the number of distinct grams known to the dictionary.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// Gram reverses an id back to its text, for debugging and serialization.
func (d *Dictionary) Gram(id uint32) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if int(id) >= len(d.byID) {
		return "", false
	}
	return d.byID[id], true
}

// pqgramEntry is one occurrence of a dictionary gram within a signature's
// underlying string(s), at a clamped byte position.
type pqgramEntry struct {
	ID  uint32
	Pos uint8
}

// PQGramSig is the positional q-gram signature: a sorted multiset of
// (dictionary id, clamped position) entries plus the min/max length of
// every string folded into it via Combine. The length range lets
// MayHaveMatch keep the same conservative-overestimate bound the
// aggregated signature would give for any one of its constituent
// strings (spec §4.3.2).
type PQGramSig struct {
	entries      []pqgramEntry
	minLen       int
	maxLen       int
}

// Entries exposes the raw occurrence list for serialization.
func (s PQGramSig) Entries() []struct {
	ID  uint32
	Pos uint8
} {
	out := make([]struct {
		ID  uint32
		Pos uint8
	}, len(s.entries))
	for i, e := range s.entries {
		out[i] = struct {
			ID  uint32
			Pos uint8
		}{e.ID, e.Pos}
	}
	return out
}

// MinLen and MaxLen report the length range folded into this signature.
func (s PQGramSig) MinLen() int { return s.minLen }
func (s PQGramSig) MaxLen() int { return s.maxLen }

// PQGramSigFromEntries rebuilds a signature from its serialized
// occurrence list and length range, for decoding a stored sig_handle.
func PQGramSigFromEntries(entries []struct {
	ID  uint32
	Pos uint8
}, minLen, maxLen int) PQGramSig {
	es := make([]pqgramEntry, len(entries))
	for i, e := range entries {
		es[i] = pqgramEntry{ID: e.ID, Pos: e.Pos}
	}
	sortEntries(es)
	return PQGramSig{entries: es, minLen: minLen, maxLen: maxLen}
}

func clampPos(i int) uint8 {
	if i > 255 {
		return 255
	}
	return uint8(i)
}

func sortEntries(e []pqgramEntry) {
	sort.Slice(e, func(i, j int) bool {
		if e[i].ID != e[j].ID {
			return e[i].ID < e[j].ID
		}
		return e[i].Pos < e[j].Pos
	})
}

// PQGram is the positional-qgram signature scheme. Every scheme instance
// shares one Dictionary, so signatures produced by different calls are
// directly comparable.
type PQGram struct {
	q    int
	dict *Dictionary
}

// NewPQGram builds a PQGram scheme over q-grams of size q, backed by
// dict. Pass a fresh Dictionary for a new index; pass an existing one to
// query against signatures built earlier.
func NewPQGram(q int, dict *Dictionary) *PQGram {
	return &PQGram{q: q, dict: dict}
}

// Dictionary returns the scheme's backing gram table.
func (p *PQGram) Dictionary() *Dictionary { return p.dict }

// Identity returns the empty signature.
func (p *PQGram) Identity() PQGramSig {
	return PQGramSig{}
}

// Signature computes Sig over a single string's q-grams, inserting any
// gram not yet in the dictionary.
func (p *PQGram) Signature(s string) (PQGramSig, error) {
	if len(s) == 0 {
		return PQGramSig{}, ErrEmptyString
	}
	qg, err := qgram.New(s, p.q)
	if err != nil {
		return PQGramSig{}, err
	}
	entries := make([]pqgramEntry, 0, qg.Size())
	it := qg.Iterator()
	pos := 0
	for {
		gram, ok := it.Next()
		if !ok {
			break
		}
		id := p.dict.Insert(gram)
		entries = append(entries, pqgramEntry{ID: id, Pos: clampPos(pos)})
		pos++
	}
	sortEntries(entries)
	return PQGramSig{entries: entries, minLen: len(s), maxLen: len(s)}, nil
}

// SignatureOfSet computes Sig over the union of q-gram sets of strs.
func (p *PQGram) SignatureOfSet(strs []string) (PQGramSig, error) {
	if len(strs) == 0 {
		return PQGramSig{}, ErrEmptyStringSet
	}
	sigs := make([]PQGramSig, len(strs))
	for i, s := range strs {
		sig, err := p.Signature(s)
		if err != nil {
			return PQGramSig{}, err
		}
		sigs[i] = sig
	}
	return p.CombineAll(sigs), nil
}

// Combine merges the entry multisets (duplicates kept, so repeated
// occurrences of the same gram across the combined strings are not
// collapsed) and widens the length range.
func (p *PQGram) Combine(a, b PQGramSig) PQGramSig {
	if len(a.entries) == 0 {
		return widenLen(b, a)
	}
	if len(b.entries) == 0 {
		return widenLen(a, b)
	}
	merged := make([]pqgramEntry, 0, len(a.entries)+len(b.entries))
	merged = append(merged, a.entries...)
	merged = append(merged, b.entries...)
	sortEntries(merged)
	return PQGramSig{
		entries: merged,
		minLen:  minInt(a.minLen, b.minLen),
		maxLen:  maxInt(a.maxLen, b.maxLen),
	}
}

func widenLen(keep, other PQGramSig) PQGramSig {
	if other.minLen == 0 && other.maxLen == 0 {
		return keep
	}
	return PQGramSig{entries: keep.entries, minLen: minInt(keep.minLen, other.minLen), maxLen: maxInt(keep.maxLen, other.maxLen)}
}

// CombineAll tree-reduces sigs in balanced-binary order.
func (p *PQGram) CombineAll(sigs []PQGramSig) PQGramSig {
	return TreeReduce(sigs, p.Identity(), p.Combine)
}

// commonCount returns the multiset intersection size of the dictionary
// ids in a and b, ignoring position (position only disambiguates
// occurrences; matching by id alone is the conservative, never-too-low
// direction a pruning bound needs).
func commonCount(a, b []pqgramEntry) int {
	// a and b are both sorted by (ID, Pos); merge and count id overlaps.
	i, j, total := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].ID < b[j].ID:
			i++
		case a[i].ID > b[j].ID:
			j++
		default:
			// count occurrences of this id on both sides, take the min.
			id := a[i].ID
			ai := i
			for ai < len(a) && a[ai].ID == id {
				ai++
			}
			bj := j
			for bj < len(b) && b[bj].ID == id {
				bj++
			}
			ac, bc := ai-i, bj-j
			if ac < bc {
				total += ac
			} else {
				total += bc
			}
			i, j = ai, bj
		}
	}
	return total
}

// MayHaveMatch builds the nomatch predicate of spec §4.3.2. A candidate
// is rejected outright if its length range cannot possibly hold a
// q-gram count compatible with query at edit distance k; otherwise it
// survives unless its shared-id count with the query's signature falls
// at or below |query| - k*q - 1.
func (p *PQGram) MayHaveMatch(query string, editDistance int) (Predicate[PQGramSig], error) {
	qg, err := qgram.New(query, p.q)
	if err != nil {
		return Predicate[PQGramSig]{}, err
	}
	refEntries := make([]pqgramEntry, 0, qg.Size())
	it := qg.Iterator()
	for pos := 0; ; pos++ {
		gram, ok := it.Next()
		if !ok {
			break
		}
		id, found := p.dict.Find(gram)
		if !found {
			id = pqgramNotFound
		}
		refEntries = append(refEntries, pqgramEntry{ID: id, Pos: clampPos(pos)})
	}
	sortEntries(refEntries)
	k := editDistance
	queryGramCount := len(query) - p.q + 1

	eval := func(sig PQGramSig) bool {
		if len(sig.entries) == 0 {
			return false
		}
		if queryGramCount > sig.maxLen-p.q+1+k {
			return false
		}
		if queryGramCount+k < sig.minLen-p.q+1 {
			return false
		}
		count := commonCount(sig.entries, refEntries)
		return count > len(query)-k*p.q-1
	}
	return Leaf(eval), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
