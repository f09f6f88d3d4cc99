package segment

// erodeMaxSupport is the largest same-segment count in a 3x3 window (the
// pixel itself included) at which a pixel is stripped.
const erodeMaxSupport = 2

// erode strips weakly connected pixels from segment edges. It returns the
// number of stripped pixels.
func (c *segContext) erode() int {
	total := 0
	for range c.opts.ErodeIterations {
		c.fills = c.fills[:0]
		for k, v := range c.labels {
			if v <= 0 {
				continue
			}
			id := c.ids.resolve(v)
			if c.support(k, id) <= erodeMaxSupport {
				c.fills = append(c.fills, pixelFill{k: k, id: Unassigned})
			}
		}
		if len(c.fills) == 0 {
			break
		}
		for _, f := range c.fills {
			c.unassign(f.k)
		}
		total += len(c.fills)
	}
	c.stats.PixelsEroded += total
	return total
}

// support counts the pixels of segment id in the 3x3 window around k.
func (c *segContext) support(k int, id int32) int {
	i, j := k/c.cols, k%c.cols
	n := 0
	for ni := i - 1; ni <= i+1; ni++ {
		for nj := j - 1; nj <= j+1; nj++ {
			if !c.inside(ni, nj) {
				continue
			}
			if v := c.labels[ni*c.cols+nj]; v > 0 && c.ids.resolve(v) == id {
				n++
			}
		}
	}
	return n
}
