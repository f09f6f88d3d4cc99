package segment

import "math"

// expandGrowth relaxes the expansion thresholds between levels.
const expandGrowth = 1.5

// expandEdges lets segments absorb adjacent open pixels whose colour is close
// to the segment mean. Thresholds grow geometrically over the levels; each
// level runs up to iterations passes. It returns the number of absorbed
// pixels.
func (c *segContext) expandEdges(iterations int) int {
	rgTol, sumTol := c.opts.ExpandRGDiff, c.opts.ExpandSumRelDiff
	total := 0
	for range c.opts.ExpandEdgeLevel {
		for range iterations {
			n := c.expandPass(rgTol, sumTol)
			total += n
			if n == 0 {
				break
			}
		}
		if enabled(rgTol) {
			rgTol *= expandGrowth
		}
		if enabled(sumTol) {
			sumTol *= expandGrowth
		}
	}
	c.stats.PixelsExpanded += total
	return total
}

func (c *segContext) expandPass(rgTol, sumTol float64) int {
	c.fills = c.fills[:0]
	for k, v := range c.labels {
		if !open(v) {
			continue
		}
		if id, ok := c.bestExpansion(k, rgTol, sumTol); ok {
			c.fills = append(c.fills, pixelFill{k: k, id: id})
		}
	}
	for _, f := range c.fills {
		c.assign(f.k, f.id)
	}
	return len(c.fills)
}

// bestExpansion picks the adjacent segment with the lowest normalised colour
// difference to pixel k, if any passes both thresholds.
func (c *segContext) bestExpansion(k int, rgTol, sumTol float64) (int32, bool) {
	i, j := k/c.cols, k%c.cols
	s := c.img.Pix[k]
	best, bestScore := int32(0), math.Inf(1)
	for _, d := range offsets8 {
		ni, nj := i+d.di, j+d.dj
		if !c.inside(ni, nj) {
			continue
		}
		v := c.labels[ni*c.cols+nj]
		if v <= 0 {
			continue
		}
		id := c.ids.resolve(v)
		if id == best {
			continue
		}
		m := c.acc[id].mean()
		if m.Sum <= 0 {
			continue
		}
		drg := math.Max(math.Abs(s.RChrom-m.RChrom), math.Abs(s.GChrom-m.GChrom))
		dsum := math.Abs(s.Sum-m.Sum) / m.Sum
		if !within(drg, rgTol) || !within(dsum, sumTol) {
			continue
		}
		score := ratio(drg, rgTol) + ratio(dsum, sumTol)
		if score < bestScore || (score == bestScore && id < best) {
			best, bestScore = id, score
		}
	}
	return best, best > 0
}

// ratio normalises d by tolerance tol; a disabled tolerance contributes 0.
func ratio(d, tol float64) float64 {
	switch {
	case !enabled(tol):
		return 0
	case tol == 0:
		if d == 0 {
			return 0
		}
		return math.Inf(1)
	default:
		return d / tol
	}
}

// dissolveSmall returns the pixels of segments below min_segment_size to
// the unassigned pool so neighbouring segments can re-expand into them.
func (c *segContext) dissolveSmall() int {
	minSize := float64(c.opts.MinSegmentSize)
	if minSize <= 0 {
		return 0
	}
	n := 0
	for k, v := range c.labels {
		if v <= 0 {
			continue
		}
		if c.acc[c.ids.resolve(v)].n < minSize {
			c.labels[k] = Unassigned
			n++
		}
	}
	if n == 0 {
		return 0
	}
	for id := int32(1); int(id) < c.ids.size(); id++ {
		if c.ids.resolve(id) == id && c.acc[id].n < minSize {
			c.acc[id] = regionAcc{}
		}
	}
	c.stats.PixelsDissolved += n
	return n
}
