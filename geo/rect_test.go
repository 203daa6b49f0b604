package geo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnionWithEmpty(t *testing.T) {
	r := NewRect(0, 1, 0, 1)
	require.Equal(t, r, Union(Empty(), r))
	require.Equal(t, r, Union(r, Empty()))
}

func TestOverlapTouchingCounts(t *testing.T) {
	a := NewRect(0, 1, 0, 1)
	b := NewRect(1, 2, 1, 2)
	require.True(t, Overlap(a, b))
}

func TestOverlapDisjoint(t *testing.T) {
	a := NewRect(0, 1, 0, 1)
	b := NewRect(2, 3, 2, 3)
	require.False(t, Overlap(a, b))
}

func TestIntersectionArea(t *testing.T) {
	a := NewRect(0, 2, 0, 2)
	b := NewRect(1, 3, 1, 3)
	inter, ok := Intersection(a, b)
	require.True(t, ok)
	require.Equal(t, NewRect(1, 2, 1, 2), inter)
	require.Equal(t, 1.0, inter.Area())
}

func TestEnlarged(t *testing.T) {
	a := NewRect(0, 1, 0, 1)
	b := NewRect(0, 2, 0, 1)
	require.Equal(t, 1.0, a.Enlarged(b))
}

func TestEmptyArea(t *testing.T) {
	require.Equal(t, 0.0, Empty().Area())
	require.True(t, Empty().IsEmpty())
}
