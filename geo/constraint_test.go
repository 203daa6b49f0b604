package geo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstraintOrIsUnion(t *testing.T) {
	a := NewConstraint(NewRect(0, 1, 0, 1))
	b := NewConstraint(NewRect(5, 6, 5, 6))
	u := a.Or(b)
	require.Len(t, u.Rects(), 2)

	probe := NewRect(0.5, 0.5, 0.5, 0.5)
	require.Equal(t, Intersects(probe, a) || Intersects(probe, b), Intersects(probe, u))
}

func TestConstraintAndMayShrinkToEmpty(t *testing.T) {
	a := NewConstraint(NewRect(0, 1, 0, 1))
	b := NewConstraint(NewRect(5, 6, 5, 6))
	require.True(t, a.And(b).IsEmpty())
}

func TestConstraintAndOverlapping(t *testing.T) {
	a := NewConstraint(NewRect(0, 2, 0, 2))
	b := NewConstraint(NewRect(1, 3, 1, 3))
	and := a.And(b)
	require.False(t, and.IsEmpty())
	require.Equal(t, NewRect(1, 2, 1, 2), and.Rects()[0])
}

func TestEmptyConstraintNeverIntersects(t *testing.T) {
	var c Constraint
	require.True(t, c.IsEmpty())
	require.False(t, Intersects(NewRect(0, 1, 0, 1), c))
}

func TestIntersectsImpliesBothSides(t *testing.T) {
	a := NewConstraint(NewRect(0, 2, 0, 2))
	b := NewConstraint(NewRect(1, 3, 1, 3))
	r := NewRect(1, 1, 1, 1)
	if Intersects(r, a.And(b)) {
		require.True(t, Intersects(r, a))
		require.True(t, Intersects(r, b))
	}
}
