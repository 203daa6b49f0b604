package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spatialtext/srtree/geo"
	"github.com/spatialtext/srtree/signature"
	"github.com/spatialtext/srtree/srtree"
)

func buildTree(t *testing.T, scheme *signature.StringSet) *srtree.Tree[signature.StringSetSig] {
	t.Helper()
	tr, err := srtree.NewTree[signature.StringSetSig](scheme, 2, 4)
	require.NoError(t, err)

	put := func(id uint64, lat, lon float64, tag string) {
		sig, err := scheme.Signature(tag)
		require.NoError(t, err)
		tr.Insert(id, geo.Point(lat, lon), sig)
	}
	put(1, 0, 0, "park")
	put(2, 10, 10, "garden")
	put(3, 20, 20, "parking")
	put(4, 0, 10, "lake")
	tr.RefreshSignatures()
	return tr
}

func TestBuildConstraintOrUnionsLeafRects(t *testing.T) {
	e := GeomOr{Children: []GeomExpr{
		GeomLeaf{Rect: geo.NewRect(0, 1, 0, 1)},
		GeomLeaf{Rect: geo.NewRect(5, 6, 5, 6)},
	}}
	c := BuildConstraint(e)
	require.True(t, geo.Intersects(geo.Point(0.5, 0.5), c))
	require.True(t, geo.Intersects(geo.Point(5.5, 5.5), c))
	require.False(t, geo.Intersects(geo.Point(3, 3), c))
}

func TestBuildConstraintAndIntersectsLeafRects(t *testing.T) {
	e := GeomAnd{Children: []GeomExpr{
		GeomLeaf{Rect: geo.NewRect(0, 10, 0, 10)},
		GeomLeaf{Rect: geo.NewRect(5, 15, 5, 15)},
	}}
	c := BuildConstraint(e)
	require.True(t, geo.Intersects(geo.NewRect(6, 7, 6, 7), c))
	require.False(t, geo.Intersects(geo.NewRect(0, 1, 0, 1), c))
}

func TestRunCombinesGeometryAndTextWithAnd(t *testing.T) {
	dict := signature.NewStringDict()
	scheme := signature.NewStringSet(dict)
	tr := buildTree(t, scheme)

	ids, err := Run[signature.StringSetSig](
		tr,
		scheme,
		GeomLeaf{Rect: geo.NewRect(-1, 1, -1, 1)},
		TextLeaf{Query: "park", EditDistance: 0},
	)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)
}

func TestRunCombinesTextWithOr(t *testing.T) {
	dict := signature.NewStringDict()
	scheme := signature.NewStringSet(dict)
	tr := buildTree(t, scheme)

	ids, err := Run[signature.StringSetSig](
		tr,
		scheme,
		GeomLeaf{Rect: geo.NewRect(-100, 100, -100, 100)},
		TextOr{Children: []TextExpr{
			TextLeaf{Query: "park", EditDistance: 0},
			TextLeaf{Query: "lake", EditDistance: 0},
		}},
	)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 4}, ids)
}

func TestRunSortsAndDedupsResults(t *testing.T) {
	dict := signature.NewStringDict()
	scheme := signature.NewStringSet(dict)
	tr := buildTree(t, scheme)

	ids, err := Run[signature.StringSetSig](
		tr,
		scheme,
		GeomLeaf{Rect: geo.NewRect(-100, 100, -100, 100)},
		TextOr{Children: []TextExpr{
			TextLeaf{Query: "lake", EditDistance: 0},
			TextLeaf{Query: "lake", EditDistance: 0},
		}},
	)
	require.NoError(t, err)
	require.Equal(t, []uint64{4}, ids)
}

func TestBuildSigPredicateRejectsEmptyAnd(t *testing.T) {
	scheme := signature.NewStringSet(signature.NewStringDict())
	_, err := BuildSigPredicate[signature.StringSetSig](scheme, TextAnd{})
	require.ErrorIs(t, err, ErrEmptyExpr)
}
