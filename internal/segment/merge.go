package segment

import "math"

// mergeStrategy picks at most one pair to merge from the current graph.
type mergeStrategy struct {
	name string
	pick func(c *segContext, g *adjacency) (a, b int32, ok bool)
}

var (
	smallPairMerge     = mergeStrategy{name: "small_pair", pick: (*segContext).pickSmallPair}
	boundaryDriftMerge = mergeStrategy{name: "boundary_drift", pick: (*segContext).pickBoundaryDrift}
	regionDriftMerge   = mergeStrategy{name: "region_drift", pick: (*segContext).pickRegionDrift}
)

// mergeSegmentPair merges the segments of i and j. Both ids are resolved
// first; the lower resolved id survives and receives the summed statistics.
// Merging a segment with itself is a no-op.
func (c *segContext) mergeSegmentPair(i, j int32) (winner, loser int32, merged bool) {
	ri, rj := c.ids.resolve(i), c.ids.resolve(j)
	if ri <= 0 || rj <= 0 {
		bug("merge segment pair", "cannot merge %d and %d", i, j)
	}
	if ri == rj {
		return ri, ri, false
	}
	winner, loser, merged = c.ids.union(ri, rj)
	c.acc[winner].add(c.acc[loser])
	c.acc[loser] = regionAcc{}
	return winner, loser, merged
}

// mergeRounds runs the merge strategies until a round merges nothing or the
// iteration cap is reached. After every round small segments are dissolved
// and re-absorbed by edge expansion.
func (c *segContext) mergeRounds() {
	var strategies []mergeStrategy
	if c.opts.SmallMerge {
		strategies = append(strategies, smallPairMerge)
	}
	if c.opts.BoundaryMerge {
		strategies = append(strategies, boundaryDriftMerge)
	}
	if c.opts.RegionMerge {
		strategies = append(strategies, regionDriftMerge)
	}

	for round := 0; round < c.opts.MergeIterations; round++ {
		g := c.buildAdjacency()
		merged := 0
		for _, s := range strategies {
			n := c.mergeLoop(g, s)
			merged += n
			c.stats.Merges[s.name] += n
		}
		c.flatten()
		c.dissolveSmall()
		c.expandEdges(c.opts.PostMergeExpandIterations)
		c.log.Debug("merge round", "round", round, "merges", merged, "segments", c.liveSegments())
		if merged == 0 {
			break
		}
	}
}

// mergeLoop applies strategy s until it finds no candidate or the per-pass
// cap is reached.
func (c *segContext) mergeLoop(g *adjacency, s mergeStrategy) int {
	n := 0
	for c.opts.MaxMergesPerPass <= 0 || n < c.opts.MaxMergesPerPass {
		a, b, ok := s.pick(c, g)
		if !ok {
			break
		}
		w, l, merged := c.mergeSegmentPair(a, b)
		if !merged {
			bug("merge loop", "%s picked already merged pair %d/%d", s.name, a, b)
		}
		g.merge(w, l)
		n++
	}
	return n
}

// pairLess orders candidate pairs by score, then by ids.
func pairLess(score float64, a, b int32, bestScore float64, bestA, bestB int32) bool {
	if score != bestScore {
		return score < bestScore
	}
	if a != bestA {
		return a < bestA
	}
	return b < bestB
}

// pickSmallPair returns the lowest adjacent pair whose segments are both
// below merge_small_region_size.
func (c *segContext) pickSmallPair(g *adjacency) (int32, int32, bool) {
	limit := float64(c.opts.MergeSmallRegionSize)
	var bestA, bestB int32
	found := false
	g.each(func(a, b int32, _, _ *contact) {
		if c.acc[a].n >= limit || c.acc[b].n >= limit {
			return
		}
		if !found || pairLess(0, a, b, 0, bestA, bestB) {
			bestA, bestB, found = a, b, true
		}
	})
	return bestA, bestB, found
}

// pickBoundaryDrift scores pairs by the means of the pixels along their
// shared boundary, seen from each side.
func (c *segContext) pickBoundaryDrift(g *adjacency) (int32, int32, bool) {
	return c.pickDrift(g, func(_, _ int32, ab, ba *contact) (Sample, Sample) {
		return ab.side.mean(), ba.side.mean()
	})
}

// pickRegionDrift scores pairs by their whole-region means.
func (c *segContext) pickRegionDrift(g *adjacency) (int32, int32, bool) {
	return c.pickDrift(g, func(a, b int32, _, _ *contact) (Sample, Sample) {
		return c.acc[a].mean(), c.acc[b].mean()
	})
}

func (c *segContext) pickDrift(g *adjacency, means func(a, b int32, ab, ba *contact) (Sample, Sample)) (int32, int32, bool) {
	var bestA, bestB int32
	bestScore := math.Inf(1)
	found := false
	g.each(func(a, b int32, ab, ba *contact) {
		if ab.conn <= c.opts.MergeMinNumConnections {
			return
		}
		ma, mb := means(a, b, ab, ba)
		score := c.driftScore(ma, mb)
		if score > 1 {
			return
		}
		if !found || pairLess(score, a, b, bestScore, bestA, bestB) {
			bestA, bestB, bestScore, found = a, b, score, true
		}
	})
	return bestA, bestB, found
}

// driftScore normalises the colour difference of two means so that a pair
// within every merge threshold scores at most 1. The chrominance difference
// of dark pairs is damped because it is unreliable at low sums.
func (c *segContext) driftScore(a, b Sample) float64 {
	o := c.opts
	drg := math.Max(math.Abs(a.RChrom-b.RChrom), math.Abs(a.GChrom-b.GChrom))
	minSum := math.Min(a.Sum, b.Sum)
	if o.MergeDarkSum > 0 && minSum < o.MergeDarkSum {
		drg *= math.Max(minSum, 0) / o.MergeDarkSum
	}

	ds := math.Abs(a.Sum - b.Sum)
	sumScore := 0.0
	switch abs, rel := enabled(o.MergeSumRGBDrift), enabled(o.MergeSumRGBRelDrift); {
	case abs && rel:
		sumScore = math.Min(ratio(ds, o.MergeSumRGBDrift), ratio(ds/meanSum(a, b), o.MergeSumRGBRelDrift))
	case abs:
		sumScore = ratio(ds, o.MergeSumRGBDrift)
	case rel:
		sumScore = ratio(ds/meanSum(a, b), o.MergeSumRGBRelDrift)
	}
	return math.Max(ratio(drg, o.MergeRGDrift), sumScore)
}

func meanSum(a, b Sample) float64 {
	return math.Max((a.Sum+b.Sum)/2, sumEpsilon)
}
