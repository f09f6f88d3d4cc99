package segment

import "math"

type admissionKind int

const (
	admitGeneral admissionKind = iota
	admitRGLum
)

var admissionByName = map[string]admissionKind{
	AdmissionGeneral: admitGeneral,
	AdmissionRGLum:   admitRGLum,
}

// band is the closed tolerance window a candidate must fall into. It is
// computed once per seed (or per re-centring) and then only compared.
type band struct {
	lo, hi [6]float64
}

const (
	chR = iota
	chG
	chB
	chRChrom
	chGChrom
	chSum
)

func channels(s Sample) [6]float64 {
	return [6]float64{s.R, s.G, s.B, s.RChrom, s.GChrom, s.Sum}
}

func (b *band) admits(s Sample) bool {
	v := channels(s)
	for c := range v {
		if v[c] < b.lo[c] || v[c] > b.hi[c] {
			return false
		}
	}
	return true
}

func (b *band) set(c int, ref, tol float64) {
	b.lo[c], b.hi[c] = ref-tol, ref+tol
}

// admission builds the tolerance band around a reference sample.
type admission struct {
	name string
	band func(o *Options, ref Sample) band
}

var admissionTable = [...]admission{
	admitGeneral: {name: AdmissionGeneral, band: generalBand},
	admitRGLum:   {name: AdmissionRGLum, band: rgLumBand},
}

// tightest returns the smallest enabled tolerance, or +Inf.
func tightest(tols ...float64) float64 {
	t := math.Inf(1)
	for _, v := range tols {
		if enabled(v) && v < t {
			t = v
		}
	}
	return t
}

func relTol(rel, ref float64) float64 {
	if !enabled(rel) {
		return Off
	}
	return rel * ref
}

// generalBand bounds each channel, the chrominance and the sum by absolute
// and relative differences to the reference.
func generalBand(o *Options, ref Sample) band {
	var b band
	r := channels(ref)
	for _, c := range []int{chR, chG, chB} {
		b.set(c, r[c], tightest(o.RGBAbsDiff, relTol(o.RGBRelDiff, r[c])))
	}
	b.set(chRChrom, ref.RChrom, tightest(o.RGAbsDiff))
	b.set(chGChrom, ref.GChrom, tightest(o.RGAbsDiff))
	b.set(chSum, ref.Sum, tightest(o.SumRGBAbsDiff, relTol(o.SumRGBRelDiff, ref.Sum)))
	return b
}

// rgLumBand only constrains chrominance and luminance.
func rgLumBand(o *Options, ref Sample) band {
	var b band
	inf := math.Inf(1)
	for _, c := range []int{chR, chG, chB} {
		b.set(c, 0, inf)
	}
	b.set(chRChrom, ref.RChrom, tightest(o.RGVar))
	b.set(chGChrom, ref.GChrom, tightest(o.RGVar))
	b.set(chSum, ref.Sum, tightest(relTol(o.LumVar, ref.Sum)))
	return b
}

// grow floods from seed, assigning id to every connected unassigned pixel
// whose working sample lies in b. The seed is taken unconditionally. The
// grown pixels are left in c.grown; their count is returned.
func (c *segContext) grow(seed int, id int32, b *band) int {
	limit := c.opts.MaxSegmentSize
	c.grown = c.grown[:0]
	c.stack = c.stack[:0]

	c.assign(seed, id)
	c.grown = append(c.grown, seed)
	c.stack = append(c.stack, seed)

	for len(c.stack) > 0 {
		k := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		i, j := k/c.cols, k%c.cols
		for _, d := range c.conn {
			ni, nj := i+d.di, j+d.dj
			if !c.inside(ni, nj) {
				continue
			}
			nk := ni*c.cols + nj
			if c.labels[nk] != Unassigned || !b.admits(c.work[nk]) {
				continue
			}
			if limit > 0 && len(c.grown) >= limit {
				return len(c.grown)
			}
			c.assign(nk, id)
			c.grown = append(c.grown, nk)
			c.stack = append(c.stack, nk)
		}
	}
	return len(c.grown)
}

// ungrow returns the pixels of the last growth to unassigned.
func (c *segContext) ungrow() {
	for _, k := range c.grown {
		c.unassign(k)
	}
	c.grown = c.grown[:0]
}

// grownMean averages the working samples of the last growth.
func (c *segContext) grownMean() Sample {
	var a regionAcc
	for _, k := range c.grown {
		a.addSample(c.work[k])
	}
	return a.mean()
}
