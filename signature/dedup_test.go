package signature

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeMinHashSig(s MinHashSig) []byte {
	b := make([]byte, 8*len(s.Entries()))
	for i, v := range s.Entries() {
		binary.LittleEndian.PutUint64(b[i*8:], v)
	}
	return b
}

func decodeMinHashSig(b []byte) MinHashSig {
	entries := make([]uint64, len(b)/8)
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return MinHashSigFromEntries(entries)
}

func TestVariantStoreDeduplicatesIdenticalBytes(t *testing.T) {
	store := NewVariantStore()
	a := store.Intern([]byte("same"))
	b := store.Intern([]byte("same"))
	c := store.Intern([]byte("different"))

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, 2, store.Len())
}

func TestVariantStoreGetReturnsInternedBytes(t *testing.T) {
	store := NewVariantStore()
	id := store.Intern([]byte("payload"))
	require.Equal(t, []byte("payload"), store.Get(id))
}

func TestDedupEncoderRoundTripsSchemeSignatures(t *testing.T) {
	m, err := NewMinHash(newDeterministicReader(42), FamilyLCG, 3, 16, 2)
	require.NoError(t, err)

	sigA, err := m.Signature("repeated string")
	require.NoError(t, err)
	sigB, err := m.Signature("repeated string")
	require.NoError(t, err)
	sigC, err := m.Signature("a different string entirely")
	require.NoError(t, err)

	enc := NewDedupEncoder(NewVariantStore(), encodeMinHashSig, decodeMinHashSig)
	idA := enc.Intern(sigA)
	idB := enc.Intern(sigB)
	idC := enc.Intern(sigC)

	require.Equal(t, idA, idB, "identical signatures must dedup to the same variant id")
	require.NotEqual(t, idA, idC)
	require.Equal(t, 2, enc.Len())

	require.Equal(t, sigA.Entries(), enc.Resolve(idA).Entries())
	require.Equal(t, sigC.Entries(), enc.Resolve(idC).Entries())
}
