package signature

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"math"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/spatialtext/srtree/qgram"
)

// MinHashSig is a fixed-length vector of 64-bit minhash entries. The zero
// value is not the identity signature — use (*MinHash).Identity().
type MinHashSig struct {
	entries []uint64
}

// Entries exposes the raw entry vector for serialization.
func (s MinHashSig) Entries() []uint64 { return s.entries }

// MinHashSigFromEntries rebuilds a signature from its serialized entries
// (used by the static tree's deserializer).
func MinHashSigFromEntries(entries []uint64) MinHashSig {
	out := make([]uint64, len(entries))
	copy(out, entries)
	return MinHashSig{entries: out}
}

// permutation is one of the two hash-family parametrisations a MinHash
// scheme can draw: a linear-congruential composition or a salted SHA3-64
// digest. Both map an arbitrary string to a uint64.
type permutation interface {
	hash(s string) uint64
}

// lcgPermutation composes hashSize random 64-bit coefficients modulo a
// random ~63-bit prime, following the reference "LinearCongruentialHash".
type lcgPermutation struct {
	coeffs []uint64 // polynomial coefficients, highest degree first: c[0] leads, the last entry is the constant term
	prime  uint64
}

func newLCGPermutation(r io.Reader, hashSize int) (lcgPermutation, error) {
	coeffs := make([]uint64, hashSize)
	for i := range coeffs {
		v, err := randUint64(r)
		if err != nil {
			return lcgPermutation{}, err
		}
		coeffs[i] = v
	}
	prime, err := randPrimeBits(r, 63)
	if err != nil {
		return lcgPermutation{}, err
	}
	return lcgPermutation{coeffs: coeffs, prime: prime}, nil
}

// hash folds the string into a residue x mod p, then evaluates the
// polynomial in x by Horner's rule: starting from c[0], each step computes
// acc -> acc*x + c[i] (mod p) for i = 1..len(c)-1, the way the reference
// LinearCongruentialHash composes coefficients over a converted input.
func (p lcgPermutation) hash(s string) uint64 {
	x := foldStringMod(s, p.prime)
	result := new(big.Int).SetUint64(p.coeffs[0])
	mod := new(big.Int).SetUint64(p.prime)
	xb := new(big.Int).SetUint64(x)
	for _, c := range p.coeffs[1:] {
		result.Mul(result, xb)
		result.Mod(result, mod)
		result.Add(result, new(big.Int).SetUint64(c))
		result.Mod(result, mod)
	}
	return result.Uint64()
}

// foldStringMod reduces s (read back to front, byte by byte) mod p,
// mirroring the reference Converter<std::string> specialisation.
func foldStringMod(s string, p uint64) uint64 {
	mod := new(big.Int).SetUint64(p)
	acc := new(big.Int)
	for i := len(s) - 1; i >= 0; i-- {
		acc.Lsh(acc, 8)
		acc.Add(acc, big.NewInt(int64(s[i])))
		acc.Mod(acc, mod)
	}
	return acc.Uint64()
}

// sha3Permutation salts a SHA3-64 digest (truncated SHA3-256) with a fixed
// random prefix drawn at construction.
type sha3Permutation struct {
	salt uint64
}

func newSHA3Permutation(r io.Reader) (sha3Permutation, error) {
	v, err := randUint64(r)
	if err != nil {
		return sha3Permutation{}, err
	}
	return sha3Permutation{salt: v}, nil
}

func (p sha3Permutation) hash(s string) uint64 {
	h := sha3.New256()
	var saltBuf [8]byte
	binary.BigEndian.PutUint64(saltBuf[:], p.salt)
	h.Write(saltBuf[:])
	h.Write([]byte(s))
	digest := h.Sum(nil)
	return binary.BigEndian.Uint64(digest[:8])
}

func randUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// randPrimeBits draws a probable prime of the given bit length from r.
func randPrimeBits(r io.Reader, bits int) (uint64, error) {
	p, err := rand.Prime(r, bits)
	if err != nil {
		return 0, err
	}
	return p.Uint64(), nil
}

// MinHashFamily selects the permutation parametrisation a MinHash scheme
// draws at construction.
type MinHashFamily int

const (
	// FamilyLCG composes linear-congruential coefficients mod a random
	// ~63-bit prime.
	FamilyLCG MinHashFamily = iota
	// FamilySHA3 salts a truncated SHA3-64 digest.
	FamilySHA3
)

// MinHash is the MinHash signature scheme (LCG or SHA3 parametrisation).
// N permutations are drawn once, at construction, from a CSPRNG and are
// then immutable and shared read-only by every Sig it produces.
type MinHash struct {
	q      int
	n      int
	family MinHashFamily
	perms  []permutation
}

// NewMinHash builds a MinHash scheme with n permutations over q-grams of
// size q, drawing randomness from r (pass crypto/rand.Reader in
// production; a seeded deterministic reader is useful for tests).
// hashSize parametrises the LCG coefficient-chain length; it is ignored
// for FamilySHA3.
func NewMinHash(r io.Reader, family MinHashFamily, q, n, hashSize int) (*MinHash, error) {
	if q < 1 {
		return nil, qgram.ErrInvalidQ
	}
	if n < 1 {
		n = 56 // reference default
	}
	if hashSize < 1 {
		hashSize = 2
	}
	perms := make([]permutation, n)
	for i := 0; i < n; i++ {
		switch family {
		case FamilySHA3:
			p, err := newSHA3Permutation(r)
			if err != nil {
				return nil, err
			}
			perms[i] = p
		default:
			p, err := newLCGPermutation(r, hashSize)
			if err != nil {
				return nil, err
			}
			perms[i] = p
		}
	}
	return &MinHash{q: q, n: n, family: family, perms: perms}, nil
}

// N returns the signature width.
func (m *MinHash) N() int { return m.n }

// Q returns the configured q-gram size.
func (m *MinHash) Q() int { return m.q }

// Identity returns the all-max-uint64 signature (Combine's identity).
func (m *MinHash) Identity() MinHashSig {
	e := make([]uint64, m.n)
	for i := range e {
		e[i] = math.MaxUint64
	}
	return MinHashSig{entries: e}
}

func (m *MinHash) signatureOfGrams(it *qgram.Iterator) MinHashSig {
	sig := m.Identity()
	for {
		gram, ok := it.Next()
		if !ok {
			break
		}
		for i, p := range m.perms {
			if h := p.hash(gram); h < sig.entries[i] {
				sig.entries[i] = h
			}
		}
	}
	return sig
}

// Signature computes Sig over a single string's q-grams (spec §4.3).
func (m *MinHash) Signature(s string) (MinHashSig, error) {
	if len(s) == 0 {
		return MinHashSig{}, ErrEmptyString
	}
	qg, err := qgram.New(s, m.q)
	if err != nil {
		return MinHashSig{}, err
	}
	return m.signatureOfGrams(qg.Iterator()), nil
}

// SignatureOfSet computes Sig over the union of q-gram sets of strs.
func (m *MinHash) SignatureOfSet(strs []string) (MinHashSig, error) {
	if len(strs) == 0 {
		return MinHashSig{}, ErrEmptyStringSet
	}
	sigs := make([]MinHashSig, len(strs))
	for i, s := range strs {
		sig, err := m.Signature(s)
		if err != nil {
			return MinHashSig{}, err
		}
		sigs[i] = sig
	}
	return m.CombineAll(sigs), nil
}

// Combine takes the entrywise minimum of a and b.
func (m *MinHash) Combine(a, b MinHashSig) MinHashSig {
	out := make([]uint64, m.n)
	for i := range out {
		if a.entries[i] < b.entries[i] {
			out[i] = a.entries[i]
		} else {
			out[i] = b.entries[i]
		}
	}
	return MinHashSig{entries: out}
}

// CombineAll tree-reduces sigs in balanced-binary order.
func (m *MinHash) CombineAll(sigs []MinHashSig) MinHashSig {
	return TreeReduce(sigs, m.Identity(), m.Combine)
}

// resemblance returns |{i : a[i] = b[i]}| / N.
func (m *MinHash) resemblance(a, b MinHashSig) float64 {
	matches := 0
	for i := range a.entries {
		if a.entries[i] == b.entries[i] {
			matches++
		}
	}
	return float64(matches) / float64(m.n)
}

// MayHaveMatch implements the estimator of spec §4.3.1. The divide-by-zero
// branch (every permutation disagrees between g and sref) is a conservative
// accept: it is a must-visit safeguard, not an observed production case.
func (m *MinHash) MayHaveMatch(query string, editDistance int) (Predicate[MinHashSig], error) {
	qg, err := qgram.New(query, m.q)
	if err != nil {
		return Predicate[MinHashSig]{}, err
	}
	sref, err := m.Signature(query)
	if err != nil {
		return Predicate[MinHashSig]{}, err
	}
	qrefSize := qg.Size()
	threshold := float64(len(query) + m.q - 1 - editDistance*m.q)

	eval := func(sig MinHashSig) bool {
		g := m.Combine(sig, sref)
		rGRef := m.resemblance(g, sref)
		if rGRef == 0 {
			return true
		}
		rSigRef := m.resemblance(sig, sref)
		est := rSigRef / rGRef * float64(qrefSize)
		return est >= threshold
	}
	return Leaf(eval), nil
}
