package segment

import (
	"math"

	"github.com/MeKo-Tech/regionseg/internal/mempool"
)

// collect resolves the map into dst, drops stray pixels and undersized
// segments, compacts the surviving ids to 1..K in order of first raster
// appearance and builds the segment records.
func (c *segContext) collect(dst []int32) ([]Segment, error) {
	c.flatten()
	sizes, err := mempool.Get[int32](c.pool, "sizes", c.ids.size())
	if err != nil {
		return nil, allocError(err)
	}
	final, err := mempool.Get[int32](c.pool, "final", c.ids.size())
	if err != nil {
		return nil, allocError(err)
	}
	for _, v := range c.labels {
		if v > 0 {
			sizes[v]++
		}
	}

	// A pixel without a same-segment 8-neighbour cannot carry a boundary;
	// only one-pixel segments keep it.
	for k, v := range c.labels {
		if v > 0 && sizes[v] > 1 && c.support(k, v) == 1 {
			c.labels[k] = Unassigned
			sizes[v]--
			c.stats.StrayPixels++
		}
	}

	next := int32(0)
	minSize := int32(c.opts.MinSegmentSize)
	for k, v := range c.labels {
		if v <= 0 {
			dst[k] = v
			continue
		}
		if final[v] == 0 {
			if sizes[v] < minSize {
				final[v] = -1
				c.stats.SegmentsDropped++
			} else {
				next++
				final[v] = next
			}
		}
		if final[v] < 0 {
			c.labels[k] = Unassigned
			dst[k] = Unassigned
			continue
		}
		dst[k] = final[v]
	}

	segs := make([]Segment, next)
	sums := make([]regionAcc, next)
	for id := range segs {
		segs[id].ID = id + 1
		segs[id].Box = Box{MinI: math.MaxInt, MinJ: math.MaxInt, MaxI: -1, MaxJ: -1}
	}
	for k, v := range dst {
		if v <= 0 {
			continue
		}
		s := &segs[v-1]
		i, j := k/c.cols, k%c.cols
		s.Pixels = append(s.Pixels, Coord{I: i, J: j})
		s.Box.MinI, s.Box.MaxI = min(s.Box.MinI, i), max(s.Box.MaxI, i)
		s.Box.MinJ, s.Box.MaxJ = min(s.Box.MinJ, j), max(s.Box.MaxJ, j)
		s.ICM += float64(i)
		s.JCM += float64(j)
		sums[v-1].addSample(c.img.Pix[k])
	}
	for id := range segs {
		s := &segs[id]
		s.NumPixels = len(s.Pixels)
		s.ICM /= float64(s.NumPixels)
		s.JCM /= float64(s.NumPixels)
		s.Mean = sums[id].mean()
	}

	onEdge, err := mempool.Get[bool](c.pool, "boundary", len(dst))
	if err != nil {
		return nil, allocError(err)
	}
	for k, v := range dst {
		if v <= 0 || !c.isBoundary(dst, k, v) {
			continue
		}
		onEdge[k] = true
		segs[v-1].Boundary = append(segs[v-1].Boundary, Coord{I: k / c.cols, J: k % c.cols})
	}
	for id := range segs {
		segs[id].Interior = c.interiorPoint(dst, onEdge, &segs[id])
	}
	return segs, nil
}

// isBoundary reports whether pixel k of segment id touches the image edge or
// a pixel of another label.
func (c *segContext) isBoundary(m []int32, k int, id int32) bool {
	i, j := k/c.cols, k%c.cols
	for _, d := range offsets8 {
		ni, nj := i+d.di, j+d.dj
		if !c.inside(ni, nj) || m[ni*c.cols+nj] != id {
			return true
		}
	}
	return false
}

// interiorPoint returns the non-boundary pixel closest to the centroid, or
// the closest pixel of all when every pixel lies on the boundary.
func (c *segContext) interiorPoint(m []int32, onEdge []bool, s *Segment) Coord {
	best, bestD := Coord{}, math.Inf(1)
	for pass := 0; pass < 2 && math.IsInf(bestD, 1); pass++ {
		for _, p := range s.Pixels {
			k := p.I*c.cols + p.J
			if pass == 0 && onEdge[k] {
				continue
			}
			di, dj := float64(p.I)-s.ICM, float64(p.J)-s.JCM
			if d := di*di + dj*dj; d < bestD {
				best, bestD = p, d
			}
		}
	}
	if m[best.I*c.cols+best.J] != int32(s.ID) {
		bug("interior point", "segment %d: (%d,%d) is not inside", s.ID, best.I, best.J)
	}
	return best
}
