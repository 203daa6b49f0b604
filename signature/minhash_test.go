package signature

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// deterministicReader feeds math/rand bytes so tests are reproducible
// without touching crypto/rand.
type deterministicReader struct {
	src *rand.Rand
}

func newDeterministicReader(seed int64) *deterministicReader {
	return &deterministicReader{src: rand.New(rand.NewSource(seed))}
}

func (d *deterministicReader) Read(p []byte) (int, error) {
	return d.src.Read(p)
}

func TestMinHashIdenticalStringsCombineToSelf(t *testing.T) {
	m, err := NewMinHash(newDeterministicReader(1), FamilyLCG, 3, 32, 2)
	require.NoError(t, err)

	sig, err := m.Signature("hello world")
	require.NoError(t, err)

	combined := m.Combine(sig, sig)
	require.Equal(t, sig.Entries(), combined.Entries())
}

func TestMinHashCombineAllMatchesPairwiseFold(t *testing.T) {
	m, err := NewMinHash(newDeterministicReader(2), FamilySHA3, 2, 24, 0)
	require.NoError(t, err)

	strs := []string{"alpha", "beta", "gamma", "delta"}
	set, err := m.SignatureOfSet(strs)
	require.NoError(t, err)

	var manual MinHashSig = m.Identity()
	for _, s := range strs {
		sig, err := m.Signature(s)
		require.NoError(t, err)
		manual = m.Combine(manual, sig)
	}
	require.Equal(t, manual.Entries(), set.Entries())
}

func TestMinHashMayHaveMatchAcceptsExactString(t *testing.T) {
	m, err := NewMinHash(newDeterministicReader(3), FamilyLCG, 3, 48, 2)
	require.NoError(t, err)

	sig, err := m.Signature("gardening")
	require.NoError(t, err)

	pred, err := m.MayHaveMatch("gardening", 0)
	require.NoError(t, err)
	require.True(t, pred.Eval(sig))
}

func TestMinHashMayHaveMatchRejectsUnrelatedString(t *testing.T) {
	m, err := NewMinHash(newDeterministicReader(4), FamilyLCG, 3, 64, 2)
	require.NoError(t, err)

	sig, err := m.Signature("zzzzzzzzzzzzzzzzzzzz")
	require.NoError(t, err)

	pred, err := m.MayHaveMatch("completely different phrase", 0)
	require.NoError(t, err)
	require.False(t, pred.Eval(sig))
}

func TestMinHashSignatureOfSetRejectsEmpty(t *testing.T) {
	m, err := NewMinHash(newDeterministicReader(5), FamilyLCG, 2, 8, 2)
	require.NoError(t, err)

	_, err = m.SignatureOfSet(nil)
	require.ErrorIs(t, err, ErrEmptyStringSet)
}
