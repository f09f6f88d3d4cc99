package segment

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Shape summarises a segment's outline by its principal axes.
type Shape struct {
	// Orientation of the major axis in radians, in [0, pi), measured from
	// the column axis towards increasing rows.
	Orientation float64 `json:"orientation" yaml:"orientation"`
	// Elongation is 1 - sqrt(minor variance / major variance); 0 for
	// isotropic outlines.
	Elongation  float64 `json:"elongation" yaml:"elongation"`
	MajorLength float64 `json:"major_length" yaml:"major_length"`
	MinorLength float64 `json:"minor_length" yaml:"minor_length"`
}

// shapeOf measures the outside polygon of s, falling back to its boundary
// pixel centres when the polygon has fewer than three points.
func shapeOf(s *Segment) (Shape, bool) {
	var xs, ys []float64
	if len(s.Outside) >= 3 {
		for _, p := range s.Outside {
			xs, ys = append(xs, p.X), append(ys, p.Y)
		}
	} else {
		for _, p := range s.Boundary {
			xs, ys = append(xs, float64(p.J)), append(ys, float64(p.I))
		}
	}
	n := len(xs)
	if n < 2 {
		return Shape{}, false
	}

	// Centred point matrix, one point per row.
	pts := mat.NewDense(n, 2, nil)
	for k := range n {
		pts.Set(k, 0, xs[k]-s.JCM)
		pts.Set(k, 1, ys[k]-s.ICM)
	}
	var cov mat.SymDense
	cov.SymOuterK(1/float64(n), pts.T())

	var eig mat.EigenSym
	if !eig.Factorize(&cov, true) {
		return Shape{}, false
	}
	vals := eig.Values(nil)
	var axes mat.Dense
	eig.VectorsTo(&axes)

	// Points in the principal frame; column 1 is the major axis.
	var rot mat.Dense
	rot.Mul(pts, &axes)
	major := extent(mat.Col(nil, 1, &rot))
	minor := extent(mat.Col(nil, 0, &rot))

	theta := math.Atan2(axes.At(1, 1), axes.At(0, 1))
	if theta < 0 {
		theta += math.Pi
	}
	if theta >= math.Pi {
		theta -= math.Pi
	}

	elong := 0.0
	if vals[1] > 0 {
		elong = 1 - math.Sqrt(math.Max(vals[0], 0)/vals[1])
	}
	return Shape{Orientation: theta, Elongation: elong, MajorLength: major, MinorLength: minor}, true
}

func extent(v []float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	return hi - lo
}
