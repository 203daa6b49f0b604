package signature

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// StringDict is the process-wide table mapping whole strings (not
// q-grams) to a compact uint32 id, the flat equivalent of the reference
// implementation's trie-based strId lookup. Ids are assigned in insertion
// order and Find is a read-only map lookup; a separate sorted copy of the
// strings backs HasPrefix's binary search.
type StringDict struct {
	mu     sync.RWMutex
	byID   []string // sorted
	ids    map[string]uint32
}

// NewStringDict returns an empty string table.
func NewStringDict() *StringDict {
	return &StringDict{ids: make(map[string]uint32)}
}

// Insert returns the id for s, assigning one and keeping byID sorted if
// this is the first time s has been seen.
func (d *StringDict) Insert(s string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.ids[s]; ok {
		return id
	}
	pos := sort.SearchStrings(d.byID, s)
	d.byID = append(d.byID, "")
	copy(d.byID[pos+1:], d.byID[pos:])
	d.byID[pos] = s

	// existing ids above pos must not shift: ids are stable identifiers
	// assigned at insertion time, not positions in byID.
	id := uint32(len(d.ids))
	d.ids[s] = id
	return id
}

// Find looks up s without mutating the table.
func (d *StringDict) Find(s string) (id uint32, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok = d.ids[s]
	return id, ok
}

// Len returns the number of distinct strings known to the dictionary.
func (d *StringDict) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.ids)
}

// HasPrefix reports whether any indexed string starts with prefix,
// using the sorted byID slice for a binary-search range test.
func (d *StringDict) HasPrefix(prefix string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pos := sort.SearchStrings(d.byID, prefix)
	return pos < len(d.byID) && len(d.byID[pos]) >= len(prefix) && d.byID[pos][:len(prefix)] == prefix
}

// StringSetSig is the StringSet signature: a roaring bitmap of the
// string-dictionary ids contained in the indexed item. It supports only
// exact (edit distance 0) membership queries (spec §4.3.3).
type StringSetSig struct {
	ids *roaring.Bitmap
}

// Bitmap exposes the underlying roaring bitmap for serialization.
func (s StringSetSig) Bitmap() *roaring.Bitmap {
	if s.ids == nil {
		return roaring.New()
	}
	return s.ids
}

// StringSetSigFromBitmap rebuilds a signature from a deserialized bitmap.
func StringSetSigFromBitmap(b *roaring.Bitmap) StringSetSig {
	return StringSetSig{ids: b}
}

// StringSet is the exact-match string-set signature scheme.
type StringSet struct {
	dict *Dict
}

// Dict aliases StringDict; kept distinct from the gram Dictionary type so
// callers can't accidentally share one table between schemes.
type Dict = StringDict

// NewStringSet builds a StringSet scheme backed by dict.
func NewStringSet(dict *StringDict) *StringSet {
	return &StringSet{dict: dict}
}

// Dictionary returns the scheme's backing string table.
func (s *StringSet) Dictionary() *StringDict { return s.dict }

// Identity returns the empty bitmap signature.
func (s *StringSet) Identity() StringSetSig {
	return StringSetSig{ids: roaring.New()}
}

// Signature computes Sig for a single string: its own dictionary id,
// inserting it if not yet known.
func (s *StringSet) Signature(str string) (StringSetSig, error) {
	if len(str) == 0 {
		return StringSetSig{}, ErrEmptyString
	}
	id := s.dict.Insert(str)
	bm := roaring.New()
	bm.Add(id)
	return StringSetSig{ids: bm}, nil
}

// SignatureOfSet computes Sig over the union of the per-string ids.
func (s *StringSet) SignatureOfSet(strs []string) (StringSetSig, error) {
	if len(strs) == 0 {
		return StringSetSig{}, ErrEmptyStringSet
	}
	sigs := make([]StringSetSig, len(strs))
	for i, str := range strs {
		sig, err := s.Signature(str)
		if err != nil {
			return StringSetSig{}, err
		}
		sigs[i] = sig
	}
	return s.CombineAll(sigs), nil
}

// Combine unions the two bitmaps.
func (s *StringSet) Combine(a, b StringSetSig) StringSetSig {
	return StringSetSig{ids: roaring.Or(a.Bitmap(), b.Bitmap())}
}

// CombineAll tree-reduces sigs in balanced-binary order.
func (s *StringSet) CombineAll(sigs []StringSetSig) StringSetSig {
	return TreeReduce(sigs, s.Identity(), s.Combine)
}

// MayHaveMatch builds the membership predicate for an exact query. Only
// editDistance == 0 is supported; any other value returns
// ErrUnsupportedEditDistance, matching the original trait's scope.
func (s *StringSet) MayHaveMatch(query string, editDistance int) (Predicate[StringSetSig], error) {
	if editDistance != 0 {
		return Predicate[StringSetSig]{}, ErrUnsupportedEditDistance
	}
	if len(query) == 0 {
		return Predicate[StringSetSig]{}, ErrEmptyString
	}
	id, ok := s.dict.Find(query)
	if !ok {
		// never indexed; no signature can contain it.
		return Leaf(func(StringSetSig) bool { return false }), nil
	}
	eval := func(sig StringSetSig) bool {
		return sig.Bitmap().Contains(id)
	}
	return Leaf(eval), nil
}
