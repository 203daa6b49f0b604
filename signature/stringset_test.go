package signature

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringSetDictionaryInsertIsIdempotent(t *testing.T) {
	d := NewStringDict()
	a := d.Insert("hello")
	b := d.Insert("hello")
	require.Equal(t, a, b)
	require.Equal(t, 1, d.Len())
}

func TestStringSetDictionaryHasPrefix(t *testing.T) {
	d := NewStringDict()
	d.Insert("garden")
	d.Insert("gardener")
	d.Insert("forest")

	require.True(t, d.HasPrefix("gard"))
	require.True(t, d.HasPrefix("fore"))
	require.False(t, d.HasPrefix("zz"))
}

func TestStringSetMayHaveMatchExact(t *testing.T) {
	dict := NewStringDict()
	scheme := NewStringSet(dict)

	sig, err := scheme.SignatureOfSet([]string{"alpha", "beta"})
	require.NoError(t, err)

	pred, err := scheme.MayHaveMatch("alpha", 0)
	require.NoError(t, err)
	require.True(t, pred.Eval(sig))

	predMiss, err := scheme.MayHaveMatch("gamma", 0)
	require.NoError(t, err)
	require.False(t, predMiss.Eval(sig))
}

func TestStringSetRejectsNonZeroEditDistance(t *testing.T) {
	scheme := NewStringSet(NewStringDict())
	_, err := scheme.MayHaveMatch("alpha", 1)
	require.ErrorIs(t, err, ErrUnsupportedEditDistance)
}

func TestStringSetCombineUnionsMembership(t *testing.T) {
	dict := NewStringDict()
	scheme := NewStringSet(dict)

	a, err := scheme.Signature("alpha")
	require.NoError(t, err)
	b, err := scheme.Signature("beta")
	require.NoError(t, err)

	combined := scheme.Combine(a, b)
	require.Equal(t, uint64(2), combined.Bitmap().GetCardinality())
}
