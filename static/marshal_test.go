package static

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/spatialtext/srtree/geo"
	"github.com/spatialtext/srtree/signature"
	"github.com/spatialtext/srtree/srtree"
)

func encodeStringSetSig(s signature.StringSetSig) []byte {
	b, err := s.Bitmap().ToBytes()
	if err != nil {
		panic(err)
	}
	return b
}

func decodeStringSetSig(b []byte) signature.StringSetSig {
	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(b)); err != nil {
		panic(err)
	}
	return signature.StringSetSigFromBitmap(bm)
}

func TestMarshalEncodeDecodeRoundTripsBlobLayout(t *testing.T) {
	scheme := signature.NewStringSet(signature.NewStringDict())
	tr, err := srtree.NewTree[signature.StringSetSig](scheme, 2, 4)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(7))
	const gridSize = 10
	for i := 0; i < 1000; i++ {
		lat := float64(i % gridSize)
		lon := float64((i / gridSize) % gridSize)
		rect := geo.NewRect(lat, lat+0.5, lon, lon+0.5)
		tag := fmt.Sprintf("%c%c", 'a'+r.Intn(26), 'a'+r.Intn(26))
		sig, err := scheme.Signature(tag)
		require.NoError(t, err)
		tr.Insert(uint64(i), rect, sig)
	}
	tr.RefreshSignatures()
	require.NoError(t, tr.Check())

	blob := Marshal[signature.StringSetSig](tr, encodeStringSetSig)
	encoded, err := blob.Encode()
	require.NoError(t, err)

	decoded, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	if diff := cmp.Diff(blob.Header, decoded.Header); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(blob.MBRs, decoded.MBRs, cmp.AllowUnexported(geo.Rect{})); diff != "" {
		t.Fatalf("mbrs mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, len(blob.Nodes), len(decoded.Nodes))
	require.Equal(t, blob.Items, decoded.Items)

	static := NewStaticTree[signature.StringSetSig](decoded, decodeStringSetSig)

	mutableFind := func(lat0, lat1, lon0, lon1 float64, query string) []uint64 {
		box := geo.NewRect(lat0, lat1, lon0, lon1)
		geomPred := func(r geo.Rect) bool { return geo.Overlap(r, box) }
		sigPred, err := scheme.MayHaveMatch(query, 0)
		require.NoError(t, err)
		return tr.Find(geomPred, sigPred, nil)
	}
	staticFind := func(lat0, lat1, lon0, lon1 float64, query string) []uint64 {
		box := geo.NewRect(lat0, lat1, lon0, lon1)
		geomPred := func(r geo.Rect) bool { return geo.Overlap(r, box) }
		sigPred, err := scheme.MayHaveMatch(query, 0)
		require.NoError(t, err)
		return static.Find(geomPred, sigPred, nil)
	}

	for q := 0; q < 50; q++ {
		lat0 := r.Float64() * gridSize
		lon0 := r.Float64() * gridSize
		lat1 := lat0 + r.Float64()*3
		lon1 := lon0 + r.Float64()*3
		query := fmt.Sprintf("%c%c", 'a'+r.Intn(26), 'a'+r.Intn(26))

		want := mutableFind(lat0, lat1, lon0, lon1, query)
		got := staticFind(lat0, lat1, lon0, lon1, query)
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		require.Equal(t, want, got, "query %d mismatched", q)
	}
}
