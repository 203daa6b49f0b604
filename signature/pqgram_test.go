package signature

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPQGramDictionaryInsertIsIdempotent(t *testing.T) {
	d := NewDictionary()
	a := d.Insert("abc")
	b := d.Insert("abc")
	require.Equal(t, a, b)
	require.Equal(t, 1, d.Len())

	c := d.Insert("xyz")
	require.NotEqual(t, a, c)
	require.Equal(t, 2, d.Len())
}

func TestPQGramDictionaryFindDoesNotInsert(t *testing.T) {
	d := NewDictionary()
	_, ok := d.Find("never-seen")
	require.False(t, ok)
	require.Equal(t, 0, d.Len())
}

func TestPQGramSignatureExactStringMatches(t *testing.T) {
	dict := NewDictionary()
	scheme := NewPQGram(3, dict)

	sig, err := scheme.Signature("gardening")
	require.NoError(t, err)

	pred, err := scheme.MayHaveMatch("gardening", 0)
	require.NoError(t, err)
	require.True(t, pred.Eval(sig))
}

func TestPQGramMayHaveMatchToleratesSmallEdit(t *testing.T) {
	dict := NewDictionary()
	scheme := NewPQGram(3, dict)

	// "garden" and "gardn" differ by one deletion.
	sig, err := scheme.Signature("garden")
	require.NoError(t, err)

	pred, err := scheme.MayHaveMatch("gardn", 1)
	require.NoError(t, err)
	require.True(t, pred.Eval(sig))
}

func TestPQGramMayHaveMatchRejectsUnrelatedString(t *testing.T) {
	dict := NewDictionary()
	scheme := NewPQGram(3, dict)

	sig, err := scheme.Signature("forest")
	require.NoError(t, err)

	pred, err := scheme.MayHaveMatch("gardening", 0)
	require.NoError(t, err)
	require.False(t, pred.Eval(sig))
}

func TestPQGramCombinePreservesBothOccurrenceSets(t *testing.T) {
	dict := NewDictionary()
	scheme := NewPQGram(2, dict)

	a, err := scheme.Signature("aa")
	require.NoError(t, err)
	b, err := scheme.Signature("bb")
	require.NoError(t, err)

	combined := scheme.Combine(a, b)
	require.Len(t, combined.entries, len(a.entries)+len(b.entries))
	require.Equal(t, 2, combined.MinLen())
	require.Equal(t, 2, combined.MaxLen())

	// a query matching only the "aa" branch still survives against the
	// combined (union) signature: combine must never lose candidates.
	predA, err := scheme.MayHaveMatch("aa", 0)
	require.NoError(t, err)
	require.True(t, predA.Eval(combined))
}

func TestPQGramCombineWidensLengthRange(t *testing.T) {
	dict := NewDictionary()
	scheme := NewPQGram(2, dict)

	short, err := scheme.Signature("ab")
	require.NoError(t, err)
	long, err := scheme.Signature("abcdef")
	require.NoError(t, err)

	combined := scheme.Combine(short, long)
	require.Equal(t, 2, combined.MinLen())
	require.Equal(t, 6, combined.MaxLen())
}

func TestPQGramSignatureOfSetRejectsEmpty(t *testing.T) {
	scheme := NewPQGram(3, NewDictionary())
	_, err := scheme.SignatureOfSet(nil)
	require.ErrorIs(t, err, ErrEmptyStringSet)
}
