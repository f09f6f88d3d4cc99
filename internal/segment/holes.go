package segment

// fillHoles closes small gaps enclosed by a single segment. It returns the
// number of filled pixels.
func (c *segContext) fillHoles() int {
	total := 0
	for range c.opts.HoleFillIterations {
		c.fills = c.fills[:0]
		for k, v := range c.labels {
			if !open(v) {
				continue
			}
			if id, ok := c.holeOwner(k); ok {
				c.fills = append(c.fills, pixelFill{k: k, id: id})
			}
		}
		if len(c.fills) == 0 {
			break
		}
		for _, f := range c.fills {
			c.assign(f.k, f.id)
		}
		total += len(c.fills)
	}
	c.stats.HolesFilled += total
	return total
}

// holeOwner decides whether the open pixel k is enclosed by one segment.
// The 3x3 ring is read clockwise from the top-left corner.
func (c *segContext) holeOwner(k int) (int32, bool) {
	i, j := k/c.cols, k%c.cols
	var ring [8]int32
	ringOffsets := [8]offset{{-1, -1}, {-1, 0}, {-1, 1}, {0, 1}, {1, 1}, {1, 0}, {1, -1}, {0, -1}}
	for n, d := range ringOffsets {
		ni, nj := i+d.di, j+d.dj
		if !c.inside(ni, nj) {
			continue
		}
		if v := c.labels[ni*c.cols+nj]; v > 0 {
			ring[n] = c.ids.resolve(v)
		}
	}

	owner, count := int32(0), 0
	mixed := false
	for _, v := range ring {
		switch {
		case v <= 0:
		case owner == 0:
			owner, count = v, 1
		case v == owner:
			count++
		default:
			mixed = true
		}
	}
	if owner == 0 {
		return 0, false
	}
	if !mixed && count >= c.opts.HoleMinNeighbors {
		return owner, true
	}

	// Opposite sides: top row with bottom row, left column with right column.
	all := func(idx ...int) bool {
		for _, n := range idx {
			if ring[n] != owner {
				return false
			}
		}
		return true
	}
	if all(0, 1, 2, 4, 5, 6) || all(0, 7, 6, 2, 3, 4) {
		return owner, true
	}
	if mixed {
		// A different owner may still enclose the pixel from opposite sides.
		for _, v := range ring {
			if v > 0 && v != owner {
				owner = v
				if all(0, 1, 2, 4, 5, 6) || all(0, 7, 6, 2, 3, 4) {
					return owner, true
				}
			}
		}
	}
	return 0, false
}
