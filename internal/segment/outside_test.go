package segment

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// maskSegment builds segment 1 from the '#' cells of art, with its box,
// centroid and 8-neighbour boundary.
func maskSegment(art []string) ([]int32, int, *Segment) {
	rows, cols := len(art), len(art[0])
	m := make([]int32, rows*cols)
	s := &Segment{ID: 1, Box: Box{MinI: math.MaxInt, MinJ: math.MaxInt, MaxI: -1, MaxJ: -1}}
	for i, row := range art {
		for j, ch := range row {
			if ch != '#' {
				continue
			}
			m[i*cols+j] = 1
			s.Pixels = append(s.Pixels, Coord{I: i, J: j})
			s.Box.MinI, s.Box.MaxI = min(s.Box.MinI, i), max(s.Box.MaxI, i)
			s.Box.MinJ, s.Box.MaxJ = min(s.Box.MinJ, j), max(s.Box.MaxJ, j)
			s.ICM += float64(i)
			s.JCM += float64(j)
		}
	}
	s.NumPixels = len(s.Pixels)
	if s.NumPixels == 0 {
		return m, cols, s
	}
	s.ICM /= float64(s.NumPixels)
	s.JCM /= float64(s.NumPixels)
	for _, p := range s.Pixels {
		for _, d := range offsets8 {
			i, j := p.I+d.di, p.J+d.dj
			if i < 0 || i >= rows || j < 0 || j >= cols || m[i*cols+j] != 1 {
				s.Boundary = append(s.Boundary, p)
				break
			}
		}
	}
	return m, cols, s
}

func traceMask(art []string) ([]Point, int, bool, *Segment) {
	m, cols, s := maskSegment(art)
	rows := len(art)
	member := func(i, j int) bool {
		return i >= 0 && i < rows && j >= 0 && j < cols && m[i*cols+j] == 1
	}
	g := newMarkerGrid(make([]int32, gridSize(s.Box)), 1, s.Box)
	for _, p := range s.Boundary {
		g.markPixel(p, member)
	}
	start, ok := g.startState(s, member)
	if !ok {
		return nil, 0, false, s
	}
	pts, steps, ok := g.trace(start, 4*len(s.Boundary))
	return pts, steps, ok, s
}

func TestHeadingTurns(t *testing.T) {
	for _, h := range []heading{headingRight, headingDown, headingLeft, headingUp} {
		assert.Equal(t, h, h.turnLeft().turnRight())
		assert.Equal(t, h, h.turnRight().turnRight().turnRight().turnRight())
		dr, dc := h.vec()
		lr, lc := h.turnLeft().vec()
		// Screen coordinates: a left turn rotates (dr, dc) to (-dc, dr).
		assert.Equal(t, [2]int{-dc, dr}, [2]int{lr, lc}, h.String())
	}
}

func TestTransition_ProbeOrder(t *testing.T) {
	g := &markerGrid{rows: 5, cols: 5, cells: make([]int32, 25), id: 7}
	at := traceState{r: 2, c: 2, h: headingRight}

	_, ok := g.transition(at)
	assert.False(t, ok, "no marked edge")

	g.cells[3*5+2] = 7 // below: right arc
	next, ok := g.transition(at)
	require.True(t, ok)
	assert.Equal(t, traceState{r: 4, c: 2, h: headingDown}, next)

	g.cells[2*5+3] = 7 // ahead: straight beats right arc
	next, _ = g.transition(at)
	assert.Equal(t, traceState{r: 2, c: 4, h: headingRight}, next)

	g.cells[1*5+2] = 7 // above: left arc beats both
	next, _ = g.transition(at)
	assert.Equal(t, traceState{r: 0, c: 2, h: headingUp}, next)

	g.cells[2*5+1] = 7 // behind is never probed
	next, _ = g.transition(at)
	assert.Equal(t, headingUp, next.h)
}

func TestTrace_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		art       []string
		wantSteps int
		wantPts   []Point
	}{
		{
			name:      "single pixel",
			art:       []string{"...", ".#.", "..."},
			wantSteps: 4,
			wantPts:   []Point{{1.5, 0.5}, {1.5, 1.5}, {0.5, 1.5}, {0.5, 0.5}},
		},
		{
			name:      "rectangle",
			art:       []string{"####", "####", "####"},
			wantSteps: 14,
			wantPts:   []Point{{3.5, -0.5}, {3.5, 2.5}, {-0.5, 2.5}, {-0.5, -0.5}},
		},
		{
			name:      "L shape",
			art:       []string{"#..", "#..", "###"},
			wantSteps: 12,
			wantPts: []Point{
				{0.5, -0.5}, {0.5, 1.5}, {2.5, 1.5}, {2.5, 2.5}, {-0.5, 2.5}, {-0.5, -0.5},
			},
		},
		{
			name:      "diagonal touch stays one contour",
			art:       []string{"#.", ".#"},
			wantSteps: 8,
			wantPts: []Point{
				{0.5, -0.5}, {0.5, 0.5}, {1.5, 0.5}, {1.5, 1.5}, {0.5, 1.5}, {-0.5, 0.5}, {-0.5, -0.5},
			},
		},
		{
			name:      "hole is not traced",
			art:       []string{"#####", "#...#", "#...#", "#####"},
			wantSteps: 18,
			wantPts:   []Point{{4.5, -0.5}, {4.5, 3.5}, {-0.5, 3.5}, {-0.5, -0.5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pts, steps, ok, s := traceMask(tt.art)
			require.True(t, ok)
			assert.Equal(t, tt.wantSteps, steps)
			assert.LessOrEqual(t, steps, 4*len(s.Boundary))
			assert.ElementsMatch(t, tt.wantPts, pts)
		})
	}
}

func TestTrace_StepCapReportsFailure(t *testing.T) {
	_, cols, s := maskSegment([]string{"####", "####"})
	member := func(i, j int) bool { return i >= 0 && i < 2 && j >= 0 && j < cols }
	g := newMarkerGrid(make([]int32, gridSize(s.Box)), 1, s.Box)
	for _, p := range s.Boundary {
		g.markPixel(p, member)
	}
	start, ok := g.startState(s, member)
	require.True(t, ok)

	_, steps, ok := g.trace(start, 5)
	assert.False(t, ok)
	assert.Equal(t, 6, steps)
}

// TestTrace_TerminatesProperty checks that tracing any mask returns to its
// start within 4N steps, where N is the number of boundary pixels, and that
// the polygon stays on pixel corners around the box.
func TestTrace_TerminatesProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("trace closes within 4N steps", prop.ForAll(
		func(cells []bool) bool {
			const side = 6
			art := make([]string, side)
			filled := false
			for i := range side {
				row := make([]byte, side)
				for j := range side {
					row[j] = '.'
					if cells[i*side+j] {
						row[j] = '#'
						filled = true
					}
				}
				art[i] = string(row)
			}
			if !filled {
				return true
			}

			pts, steps, ok, s := traceMask(art)
			if !ok || steps > 4*len(s.Boundary) || len(pts) < 4 {
				return false
			}
			for _, p := range pts {
				if p.X < float64(s.Box.MinJ)-0.5 || p.X > float64(s.Box.MaxJ)+0.5 {
					return false
				}
				if p.Y < float64(s.Box.MinI)-0.5 || p.Y > float64(s.Box.MaxI)+0.5 {
					return false
				}
				if math.Abs(p.X-math.Floor(p.X)-0.5) > 1e-9 || math.Abs(p.Y-math.Floor(p.Y)-0.5) > 1e-9 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(36, gen.Bool()),
	))

	properties.TestingRun(t)
}
