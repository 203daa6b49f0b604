// Package geo implements the axis-aligned rectangle primitive and the
// disjunction-of-rectangles constraint that the R*-tree prunes on.
package geo

import "math"

// Rect is an axis-aligned rectangle over latitude/longitude, min <= max on
// each axis. The zero value is the degenerate rectangle at (0, 0), not the
// empty rectangle; use Empty for that.
type Rect struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64

	empty bool
}

// Empty returns the sentinel empty rectangle. Union(Empty(), r) == r.
func Empty() Rect {
	return Rect{empty: true}
}

// NewRect builds a rectangle, swapping bounds if given out of order.
func NewRect(minLat, maxLat, minLon, maxLon float64) Rect {
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	if minLon > maxLon {
		minLon, maxLon = maxLon, minLon
	}
	return Rect{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
}

// Point is a degenerate rectangle covering a single coordinate.
func Point(lat, lon float64) Rect {
	return Rect{MinLat: lat, MaxLat: lat, MinLon: lon, MaxLon: lon}
}

// IsEmpty reports whether r is the sentinel empty rectangle.
func (r Rect) IsEmpty() bool { return r.empty }

// Area returns the rectangle's area; 0 for the empty rectangle.
func (r Rect) Area() float64 {
	if r.empty {
		return 0
	}
	return (r.MaxLat - r.MinLat) * (r.MaxLon - r.MinLon)
}

// Perimeter returns the rectangle's width plus its height, i.e. half its
// perimeter (the margin used by the R*-tree split heuristic, halved).
func (r Rect) Perimeter() float64 {
	if r.empty {
		return 0
	}
	return (r.MaxLat - r.MinLat) + (r.MaxLon - r.MinLon)
}

// Center returns the latitude and longitude of the rectangle's centre.
func (r Rect) Center() (lat, lon float64) {
	return r.MinLat + (r.MaxLat-r.MinLat)/2, r.MinLon + (r.MaxLon-r.MinLon)/2
}

// Overlap reports whether r and o overlap on both axes. Touching
// rectangles (shared boundary) count as overlapping.
func Overlap(r, o Rect) bool {
	if r.empty || o.empty {
		return false
	}
	return r.MinLat <= o.MaxLat && o.MinLat <= r.MaxLat &&
		r.MinLon <= o.MaxLon && o.MinLon <= r.MaxLon
}

// Union returns the smallest rectangle containing both r and o.
func Union(r, o Rect) Rect {
	if r.empty {
		return o
	}
	if o.empty {
		return r
	}
	return Rect{
		MinLat: math.Min(r.MinLat, o.MinLat),
		MaxLat: math.Max(r.MaxLat, o.MaxLat),
		MinLon: math.Min(r.MinLon, o.MinLon),
		MaxLon: math.Max(r.MaxLon, o.MaxLon),
	}
}

// Intersection returns the overlapping region of r and o, and whether one
// exists (Overlap(r,o) must hold for ok to be true).
func Intersection(r, o Rect) (out Rect, ok bool) {
	if !Overlap(r, o) {
		return Empty(), false
	}
	return Rect{
		MinLat: math.Max(r.MinLat, o.MinLat),
		MaxLat: math.Min(r.MaxLat, o.MaxLat),
		MinLon: math.Max(r.MinLon, o.MinLon),
		MaxLon: math.Min(r.MaxLon, o.MaxLon),
	}, true
}

// OverlapArea returns the area of the intersection of r and o, 0 if they
// don't overlap.
func OverlapArea(r, o Rect) float64 {
	inter, ok := Intersection(r, o)
	if !ok {
		return 0
	}
	return inter.Area()
}

// Enlarged returns the area the rectangle would gain by being unioned
// with o; used to pick the subtree that enlarges least during insertion.
func (r Rect) Enlarged(o Rect) float64 {
	return Union(r, o).Area() - r.Area()
}
