package segment

import (
	"math"
	"slices"
)

func pairKey(a, b int32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(uint32(a))<<32 | uint64(uint32(b))
}

// findNeighbors counts, for every boundary pixel, the distinct other
// segments inside its (2*connection_max_step+1)^2 window. Pairs whose
// symmetric count exceeds neighbor_connection_factor*min_num_connections
// become neighbours.
func (c *segContext) findNeighbors(m []int32, segs []Segment) {
	step := c.opts.ConnectionMaxStep
	counts := make(map[uint64]int)
	var seen []int32
	for idx := range segs {
		s := &segs[idx]
		id := int32(s.ID)
		for _, p := range s.Boundary {
			seen = seen[:0]
			for i := p.I - step; i <= p.I+step; i++ {
				for j := p.J - step; j <= p.J+step; j++ {
					if !c.inside(i, j) {
						continue
					}
					v := m[i*c.cols+j]
					if v <= 0 || v == id || slices.Contains(seen, v) {
						continue
					}
					seen = append(seen, v)
					counts[pairKey(id, v)]++
				}
			}
		}
	}

	threshold := c.opts.NeighborConnectionFactor * float64(c.opts.MinNumConnections)
	for key, n := range counts {
		if float64(n) <= threshold {
			continue
		}
		a, b := int32(key>>32), int32(key&math.MaxUint32)
		sa, sb := &segs[a-1], &segs[b-1]
		sa.Neighbors = append(sa.Neighbors, int(b))
		sa.Connections = append(sa.Connections, n)
		sb.Neighbors = append(sb.Neighbors, int(a))
		sb.Connections = append(sb.Connections, n)
	}
	for idx := range segs {
		sortNeighbors(&segs[idx])
	}
}

// sortNeighbors orders the neighbour list ascending, keeping the counts
// aligned.
func sortNeighbors(s *Segment) {
	if len(s.Neighbors) < 2 {
		return
	}
	order := make([]int, len(s.Neighbors))
	for k := range order {
		order[k] = k
	}
	slices.SortFunc(order, func(x, y int) int { return s.Neighbors[x] - s.Neighbors[y] })
	ids := make([]int, len(order))
	conns := make([]int, len(order))
	for k, o := range order {
		ids[k], conns[k] = s.Neighbors[o], s.Connections[o]
	}
	s.Neighbors, s.Connections = ids, conns
}

// Connection returns the connection count to neighbour id, or 0.
func (s *Segment) Connection(id int) int {
	if k, ok := slices.BinarySearch(s.Neighbors, id); ok {
		return s.Connections[k]
	}
	return 0
}
