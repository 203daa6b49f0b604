// Package query builds the combined geometry+text predicate a caller's
// expression tree describes and runs it against a tree, sorting and
// deduplicating the resulting item ids (spec §4.6).
package query

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/spatialtext/srtree/geo"
	"github.com/spatialtext/srtree/signature"
)

// ErrUnknownExpr is returned when a TextExpr node is neither a TextLeaf,
// TextAnd, nor TextOr.
var ErrUnknownExpr = errors.New("query: unknown expression node type")

// ErrEmptyExpr is returned when a TextAnd or TextOr has no children.
var ErrEmptyExpr = errors.New("query: and/or expression has no children")

// TextExpr is a query driver's view of a textual match expression: a
// leaf carries (query string, edit distance); internals are AND/OR.
// Mirrors GeomExpr so both sides of a query are built the same way.
type TextExpr interface{ isTextExpr() }

// TextLeaf matches items whose signature survives
// scheme.MayHaveMatch(Query, EditDistance).
type TextLeaf struct {
	Query        string
	EditDistance int
}

// TextAnd requires every child to survive.
type TextAnd struct{ Children []TextExpr }

// TextOr requires at least one child to survive.
type TextOr struct{ Children []TextExpr }

func (TextLeaf) isTextExpr() {}
func (TextAnd) isTextExpr()  {}
func (TextOr) isTextExpr()   {}

// GeomExpr is the geometry-side counterpart: a leaf carries a query
// rectangle; internals are AND/OR over the rectangle sets they bound.
type GeomExpr interface{ isGeomExpr() }

// GeomLeaf matches items whose MBR overlaps Rect.
type GeomLeaf struct{ Rect geo.Rect }

// GeomAnd requires a candidate to be compatible with every child.
type GeomAnd struct{ Children []GeomExpr }

// GeomOr requires a candidate to be compatible with at least one child.
type GeomOr struct{ Children []GeomExpr }

func (GeomLeaf) isGeomExpr() {}
func (GeomAnd) isGeomExpr()  {}
func (GeomOr) isGeomExpr()   {}

// BuildConstraint reduces a GeomExpr to a geo.Constraint: leaves become
// singleton rectangle sets, And intersects, Or unions.
func BuildConstraint(e GeomExpr) geo.Constraint {
	switch v := e.(type) {
	case GeomLeaf:
		return geo.NewConstraint(v.Rect)
	case GeomAnd:
		return foldConstraint(v.Children, geo.Constraint.And)
	case GeomOr:
		return foldConstraint(v.Children, geo.Constraint.Or)
	default:
		return geo.NewConstraint()
	}
}

func foldConstraint(children []GeomExpr, op func(geo.Constraint, geo.Constraint) geo.Constraint) geo.Constraint {
	if len(children) == 0 {
		return geo.NewConstraint()
	}
	acc := BuildConstraint(children[0])
	for _, c := range children[1:] {
		acc = op(acc, BuildConstraint(c))
	}
	return acc
}

// BuildSigPredicate replaces TextExpr leaves with
// scheme.mayHaveMatch(str, k) and internals with the predicate
// algebra's / and + (spec §4.6).
func BuildSigPredicate[S any](scheme signature.Scheme[S], e TextExpr) (signature.Predicate[S], error) {
	switch v := e.(type) {
	case TextLeaf:
		return scheme.MayHaveMatch(v.Query, v.EditDistance)
	case TextAnd:
		return foldPredicate(scheme, v.Children, signature.Predicate[S].And)
	case TextOr:
		return foldPredicate(scheme, v.Children, signature.Predicate[S].Or)
	default:
		return signature.Predicate[S]{}, ErrUnknownExpr
	}
}

func foldPredicate[S any](scheme signature.Scheme[S], children []TextExpr, op func(signature.Predicate[S], signature.Predicate[S]) signature.Predicate[S]) (signature.Predicate[S], error) {
	if len(children) == 0 {
		return signature.Predicate[S]{}, ErrEmptyExpr
	}
	acc, err := BuildSigPredicate(scheme, children[0])
	if err != nil {
		return signature.Predicate[S]{}, err
	}
	for _, c := range children[1:] {
		next, err := BuildSigPredicate(scheme, c)
		if err != nil {
			return signature.Predicate[S]{}, err
		}
		acc = op(acc, next)
	}
	return acc, nil
}

// Finder is satisfied by both srtree.Tree and static.StaticTree: the
// driver doesn't care which one it runs against.
type Finder[S any] interface {
	Find(geomPred func(geo.Rect) bool, sigPred signature.Predicate[S], out []uint64) []uint64
}

// Run builds the combined predicate from geomExpr/textExpr, calls
// finder.Find, and returns the candidate item ids sorted and
// deduplicated (spec §4.6).
func Run[S any](finder Finder[S], scheme signature.Scheme[S], geomExpr GeomExpr, textExpr TextExpr) ([]uint64, error) {
	constraint := BuildConstraint(geomExpr)
	geomPred := func(r geo.Rect) bool { return geo.Intersects(r, constraint) }

	sigPred, err := BuildSigPredicate(scheme, textExpr)
	if err != nil {
		return nil, err
	}

	raw := finder.Find(geomPred, sigPred, nil)
	return sortDedup(raw), nil
}

func sortDedup(ids []uint64) []uint64 {
	if len(ids) == 0 {
		return ids
	}
	slices.Sort(ids)
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
