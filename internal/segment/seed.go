package segment

import (
	"math"
	"math/rand/v2"
)

// seedDarkFloor keeps the relative seed test meaningful for near-black
// channels.
const seedDarkFloor = 8.0

// initialSegmentation grows segments from smooth seeds, scale by scale.
func (c *segContext) initialSegmentation() {
	scales := c.opts.SmoothScales
	if len(scales) == 0 {
		scales = []int{0}
	}
	var rng *rand.Rand
	if c.opts.RandomSeeding {
		seed := c.opts.RandomSeed
		rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}

	for _, scale := range scales {
		c.clearRejected()
		c.smooth(scale)
		for _, w := range c.opts.SeedWindows {
			w = c.fitWindow(w)
			if rng != nil {
				c.seedRandom(rng, w)
			} else {
				c.seedRaster(w)
			}
		}
	}
}

// fitWindow shrinks a seed window half-width so that the full window fits
// the image. Thin images would otherwise never seed.
func (c *segContext) fitWindow(w int) int {
	return max(0, min(w, (c.rows-1)/2, (c.cols-1)/2))
}

// clearRejected makes pixels of rejected regions available to seeding again.
func (c *segContext) clearRejected() {
	for k, v := range c.labels {
		if v < 0 && v != InvalidPixel {
			c.labels[k] = Unassigned
		}
	}
}

// smooth box-filters the working samples of unassigned valid pixels with a
// (2*scale+1)^2 window, averaging only over unassigned valid pixels.
// Scale 0 restores the original samples.
func (c *segContext) smooth(scale int) {
	for k, v := range c.labels {
		if v != Unassigned {
			continue
		}
		if scale == 0 {
			c.work[k] = c.img.Pix[k]
			continue
		}
		i, j := k/c.cols, k%c.cols
		var r, g, b, n float64
		for di := -scale; di <= scale; di++ {
			for dj := -scale; dj <= scale; dj++ {
				ni, nj := i+di, j+dj
				if !c.inside(ni, nj) {
					continue
				}
				nk := ni*c.cols + nj
				if c.labels[nk] != Unassigned {
					continue
				}
				p := c.img.Pix[nk]
				r, g, b, n = r+p.R, g+p.G, b+p.B, n+1
			}
		}
		c.work[k] = NewSample(r/n, g/n, b/n)
	}
}

// smoothSeed reports whether the (2w+1)^2 window around k lies inside the
// image, is entirely unassigned and close to the centre sample.
func (c *segContext) smoothSeed(k, w int) bool {
	if c.labels[k] != Unassigned {
		return false
	}
	i, j := k/c.cols, k%c.cols
	if !c.inside(i-w, j-w) || !c.inside(i+w, j+w) {
		return false
	}
	ref := c.work[k]
	maxRel := c.opts.SeedMaxRelDiff
	for ni := i - w; ni <= i+w; ni++ {
		for nj := j - w; nj <= j+w; nj++ {
			nk := ni*c.cols + nj
			if c.labels[nk] != Unassigned {
				return false
			}
			if relDiff(ref, c.work[nk]) >= maxRel {
				return false
			}
		}
	}
	return true
}

func relDiff(a, b Sample) float64 {
	d := 0.0
	for _, p := range [][2]float64{{a.R, b.R}, {a.G, b.G}, {a.B, b.B}} {
		den := math.Max(p[0], seedDarkFloor)
		d = math.Max(d, math.Abs(p[0]-p[1])/den)
	}
	return d
}

func (c *segContext) seedRaster(w int) {
	for k := range c.labels {
		c.trySeed(k, w)
	}
}

// seedRandom samples density*area seed candidates.
func (c *segContext) seedRandom(rng *rand.Rand, w int) {
	n := len(c.labels)
	tries := int(c.opts.RandomSeedDensity * float64(n))
	for range tries {
		c.trySeed(rng.IntN(n), w)
	}
}

func (c *segContext) trySeed(k, w int) {
	c.stats.SeedsTried++
	if !c.smoothSeed(k, w) {
		return
	}
	c.growFromSeed(k)
}

// growFromSeed grows a new segment from k, optionally re-centres the
// tolerance band on the grown mean, and rejects the result if it is too
// small.
func (c *segContext) growFromSeed(k int) {
	id := c.newID()
	b := c.admit.band(c.opts, c.work[k])
	n := c.grow(k, id, &b)

	for range c.opts.ResegmentCount {
		mean := c.grownMean()
		c.prev = append(c.prev[:0], c.grown...)
		c.ungrow()
		b = c.admit.band(c.opts, mean)
		n = c.grow(k, id, &b)
		if n >= c.opts.MinResegmentSize {
			continue
		}
		// Too small after re-centring: restore the previous region.
		c.ungrow()
		for _, pk := range c.prev {
			c.assign(pk, id)
		}
		c.grown = append(c.grown[:0], c.prev...)
		n = len(c.grown)
		break
	}

	if n >= c.opts.MinInitialSegmentSize {
		c.stats.SeedsAccepted++
		return
	}
	c.reject(id, n)
}

// reject rewrites the last growth with the negative region size and rolls
// the id counter back.
func (c *segContext) reject(id int32, n int) {
	mark := -int32(min(n, math.MaxInt32))
	for _, k := range c.grown {
		c.labels[k] = mark
	}
	c.grown = c.grown[:0]
	c.acc[id] = regionAcc{}
	c.ids.truncate(int(id))
	c.stats.RejectedRegions++
}
