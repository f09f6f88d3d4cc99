package segment

import (
	"fmt"

	"github.com/MeKo-Tech/regionseg/internal/mempool"
)

// Point is a sub-pixel position: X along columns, Y along rows. Pixel (i, j)
// covers [j-0.5, j+0.5] x [i-0.5, i+0.5].
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// heading is the travel direction of the outside-boundary tracer. The values
// are in clockwise order.
type heading uint8

const (
	headingRight heading = iota
	headingDown
	headingLeft
	headingUp
)

func (h heading) String() string {
	switch h {
	case headingRight:
		return "right"
	case headingDown:
		return "down"
	case headingLeft:
		return "left"
	case headingUp:
		return "up"
	default:
		return fmt.Sprintf("heading(%d)", uint8(h))
	}
}

func (h heading) vec() (dr, dc int) {
	switch h {
	case headingRight:
		return 0, 1
	case headingDown:
		return 1, 0
	case headingLeft:
		return 0, -1
	default:
		return -1, 0
	}
}

func (h heading) turnLeft() heading  { return (h + 3) % 4 }
func (h heading) turnRight() heading { return (h + 1) % 4 }

// markerGrid is a segment's bounding box plus a one-pixel margin, magnified
// 2x. Pixel centres sit on odd/odd cells and pixel corners on even/even
// cells; every pixel edge separating the segment from anything else is
// marked with the segment id.
type markerGrid struct {
	rows, cols int
	cells      []int32
	id         int32
	origin     Coord
}

// traceState is a corner of the marker grid and the heading the tracer
// arrived with.
type traceState struct {
	r, c int
	h    heading
}

func newMarkerGrid(cells []int32, id int32, box Box) *markerGrid {
	return &markerGrid{
		rows:   2*box.Height() + 5,
		cols:   2*box.Width() + 5,
		cells:  cells,
		id:     id,
		origin: Coord{I: box.MinI - 1, J: box.MinJ - 1},
	}
}

func gridSize(box Box) int {
	return (2*box.Height() + 5) * (2*box.Width() + 5)
}

func (g *markerGrid) marked(r, c int) bool {
	if r < 0 || r >= g.rows || c < 0 || c >= g.cols {
		return false
	}
	return g.cells[r*g.cols+c] == g.id
}

// markPixel marks the sides of pixel p that face a pixel outside the segment
// according to member.
func (g *markerGrid) markPixel(p Coord, member func(i, j int) bool) {
	cr := 2*(p.I-g.origin.I) + 1
	cc := 2*(p.J-g.origin.J) + 1
	for _, d := range offsets4 {
		if !member(p.I+d.di, p.J+d.dj) {
			g.cells[(cr+d.di)*g.cols+cc+d.dj] = g.id
		}
	}
}

// transition probes the left arc, the straight edge and the right arc from
// s, in that order, and moves to the corner behind the first marked edge.
// Probing left first keeps diagonally touching pixels on one contour.
func (g *markerGrid) transition(s traceState) (traceState, bool) {
	for _, h := range [3]heading{s.h.turnLeft(), s.h, s.h.turnRight()} {
		dr, dc := h.vec()
		if g.marked(s.r+dr, s.c+dc) {
			return traceState{r: s.r + 2*dr, c: s.c + 2*dc, h: h}, true
		}
	}
	return s, false
}

// point converts a corner cell to image coordinates.
func (g *markerGrid) point(r, c int) Point {
	return Point{
		X: float64(c/2+g.origin.J) - 0.5,
		Y: float64(r/2+g.origin.I) - 0.5,
	}
}

// trace follows the contour from start until it is back at the start corner
// and about to repeat its first move. It returns the deduplicated turning
// corners and the number of steps, or ok=false when maxSteps is exceeded or
// the contour is broken.
func (g *markerGrid) trace(start traceState, maxSteps int) (pts []Point, steps int, ok bool) {
	lookahead, ok := g.transition(start)
	if !ok {
		return nil, 0, false
	}
	seen := make(map[[2]int]struct{})
	st, next := start, lookahead
	for {
		if next.h != st.h {
			key := [2]int{st.r, st.c}
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				pts = append(pts, g.point(st.r, st.c))
			}
		}
		steps++
		if steps > maxSteps {
			return nil, steps, false
		}
		st = next
		if next, ok = g.transition(st); !ok {
			return nil, steps, false
		}
		if st.r == start.r && st.c == start.c && next == lookahead {
			return pts, steps, true
		}
	}
}

// startState finds the top edge of the first segment pixel met scanning
// down the centroid column (then neighbouring columns outward). The state
// stands on that edge's right corner, heading right, with the segment below.
func (g *markerGrid) startState(s *Segment, member func(i, j int) bool) (traceState, bool) {
	jc := int(s.JCM + 0.5)
	jc = min(max(jc, s.Box.MinJ), s.Box.MaxJ)
	for off := 0; off <= s.Box.Width(); off++ {
		cols := []int{jc - off, jc + off}
		if off == 0 {
			cols = cols[:1]
		}
		for _, j := range cols {
			if j < s.Box.MinJ || j > s.Box.MaxJ {
				continue
			}
			for i := s.Box.MinI; i <= s.Box.MaxI; i++ {
				if member(i, j) {
					return traceState{
						r: 2 * (i - g.origin.I),
						c: 2 * (j - g.origin.J + 1),
						h: headingRight,
					}, true
				}
			}
		}
	}
	return traceState{}, false
}

// traceOutside computes the outside polygon of every segment. Failures are
// counted and logged; the segment keeps an empty polygon.
func (c *segContext) traceOutside(m []int32, segs []Segment) error {
	for idx := range segs {
		s := &segs[idx]
		id := int32(s.ID)
		cells, err := mempool.Get[int32](c.pool, "marker", gridSize(s.Box))
		if err != nil {
			return allocError(err)
		}
		g := newMarkerGrid(cells, id, s.Box)
		member := func(i, j int) bool {
			return c.inside(i, j) && m[i*c.cols+j] == id
		}
		for _, p := range s.Boundary {
			g.markPixel(p, member)
		}
		start, ok := g.startState(s, member)
		if !ok {
			bug("trace outside", "segment %d has no start pixel", s.ID)
		}
		pts, steps, ok := g.trace(start, 4*len(s.Boundary))
		if !ok {
			c.stats.TraceFailures++
			c.log.Warn("outside boundary trace failed", "segment", s.ID, "steps", steps, "boundary", len(s.Boundary))
			continue
		}
		s.Outside = pts
	}
	return nil
}
