package srtree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spatialtext/srtree/geo"
	"github.com/spatialtext/srtree/signature"
)

func TestTreeRejectsInvalidFanout(t *testing.T) {
	scheme := signature.NewStringSet(signature.NewStringDict())
	_, err := NewTree[signature.StringSetSig](scheme, 1, 4)
	require.ErrorIs(t, err, ErrInvalidFanout)

	_, err = NewTree[signature.StringSetSig](scheme, 3, 4)
	require.ErrorIs(t, err, ErrInvalidFanout)
}

func TestTreeInsertStaysConsistentAcrossSplitsAndReinsertion(t *testing.T) {
	scheme := signature.NewStringSet(signature.NewStringDict())
	tr, err := NewTree[signature.StringSetSig](scheme, 2, 4)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		lat := float64(i % 10)
		lon := float64(i / 10)
		rect := geo.NewRect(lat, lat+0.5, lon, lon+0.5)
		sig, err := scheme.Signature(fmt.Sprintf("tag:%d", i))
		require.NoError(t, err)
		tr.Insert(uint64(i), rect, sig)
		require.NoError(t, tr.Check())
	}

	tr.RefreshSignatures()
	require.NoError(t, tr.Check())
}

func TestTreeFindReturnsInsertedItemsMatchingBothPredicates(t *testing.T) {
	scheme := signature.NewStringSet(signature.NewStringDict())
	tr, err := NewTree[signature.StringSetSig](scheme, 2, 4)
	require.NoError(t, err)

	inside, err := scheme.Signature("bench")
	require.NoError(t, err)
	tr.Insert(1, geo.NewRect(0, 1, 0, 1), inside)

	outside, err := scheme.Signature("tree")
	require.NoError(t, err)
	tr.Insert(2, geo.NewRect(10, 11, 10, 11), outside)

	tr.RefreshSignatures()

	geomPred := func(r geo.Rect) bool {
		return geo.Overlap(r, geo.NewRect(-1, 2, -1, 2))
	}
	sigPred, err := scheme.MayHaveMatch("bench", 0)
	require.NoError(t, err)

	got := tr.Find(geomPred, sigPred, nil)
	require.Equal(t, []uint64{1}, got)
}

func TestTreeFindCombinesGeometryAndTextWithOr(t *testing.T) {
	scheme := signature.NewStringSet(signature.NewStringDict())
	tr, err := NewTree[signature.StringSetSig](scheme, 2, 4)
	require.NoError(t, err)

	benchSig, err := scheme.Signature("bench")
	require.NoError(t, err)
	tr.Insert(1, geo.NewRect(0, 1, 0, 1), benchSig)

	treeSig, err := scheme.Signature("tree")
	require.NoError(t, err)
	tr.Insert(2, geo.NewRect(5, 6, 5, 6), treeSig)

	tr.RefreshSignatures()

	alwaysTrue := func(geo.Rect) bool { return true }
	p1, err := scheme.MayHaveMatch("bench", 0)
	require.NoError(t, err)
	p2, err := scheme.MayHaveMatch("tree", 0)
	require.NoError(t, err)

	got := tr.Find(alwaysTrue, p1.Or(p2), nil)
	require.ElementsMatch(t, []uint64{1, 2}, got)
}
