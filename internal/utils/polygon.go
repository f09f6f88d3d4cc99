package utils

import (
	"math"
	"slices"

	"github.com/MeKo-Tech/regionseg/internal/segment"
)

// PolygonArea returns the unsigned shoelace area of a closed polygon.
func PolygonArea(pts []segment.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	s := 0.0
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		s += p.X*q.Y - q.X*p.Y
	}
	return math.Abs(s) / 2
}

// PolygonPerimeter returns the length of the closed outline.
func PolygonPerimeter(pts []segment.Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	l := 0.0
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		l += math.Hypot(q.X-p.X, q.Y-p.Y)
	}
	return l
}

// Solidity is the ratio of the polygon area to the area of its convex hull,
// 1 for convex outlines.
func Solidity(pts []segment.Point) float64 {
	hull := PolygonArea(ConvexHull(pts))
	if hull == 0 {
		return 0
	}
	return PolygonArea(pts) / hull
}

// SimplifyPolygon reduces the number of points in a closed outline with the
// Douglas-Peucker algorithm. The first point is always kept.
func SimplifyPolygon(pts []segment.Point, epsilon float64) []segment.Point {
	if len(pts) <= 3 || epsilon <= 0 {
		return slices.Clone(pts)
	}
	// Close the ring so the last edge is simplified too.
	ring := append(slices.Clone(pts), pts[0])
	keep := make([]bool, len(ring))
	keep[0] = true
	dpSimplify(ring, 0, len(ring)-1, epsilon, keep)

	out := make([]segment.Point, 0, len(pts))
	for i := range pts {
		if keep[i] {
			out = append(out, pts[i])
		}
	}
	return out
}

func dpSimplify(pts []segment.Point, start, end int, eps float64, keep []bool) {
	if end <= start+1 {
		return
	}
	maxDist, index := -1.0, -1
	for i := start + 1; i < end; i++ {
		if d := perpendicularDistance(pts[i], pts[start], pts[end]); d > maxDist {
			maxDist, index = d, i
		}
	}
	if maxDist > eps {
		keep[index] = true
		dpSimplify(pts, start, index, eps, keep)
		dpSimplify(pts, index, end, eps, keep)
	}
}

// perpendicularDistance returns the distance from p to the line through a
// and b, or to a when the two coincide.
func perpendicularDistance(p, a, b segment.Point) float64 {
	vx, vy := b.X-a.X, b.Y-a.Y
	if vx == 0 && vy == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	return math.Abs((p.X-a.X)*vy-(p.Y-a.Y)*vx) / math.Hypot(vx, vy)
}

// ConvexHull computes the convex hull with the monotone chain algorithm.
// The hull is returned counter-clockwise in a y-up frame without repeating
// the first point.
func ConvexHull(pts []segment.Point) []segment.Point {
	p := slices.Clone(pts)
	slices.SortFunc(p, func(a, b segment.Point) int {
		if a.X != b.X {
			return cmpFloat(a.X, b.X)
		}
		return cmpFloat(a.Y, b.Y)
	})
	p = slices.Compact(p)
	if len(p) <= 2 {
		return p
	}

	hull := make([]segment.Point, 0, 2*len(p))
	for _, pt := range p {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	lower := len(hull) + 1
	for i := len(p) - 2; i >= 0; i-- {
		pt := p[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	return hull[:len(hull)-1]
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cross(o, a, b segment.Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
