package segment

// contact describes one side of a segment pair: the connection count and the
// sums of the pixels of the owning segment that touch the other one.
type contact struct {
	conn int
	side regionAcc
}

// adjacency is the segment contact graph of one merge round. edges[a][b]
// holds a's side of the (a, b) boundary; edges[b][a] mirrors it with the same
// connection count.
type adjacency struct {
	edges map[int32]map[int32]*contact
}

// forward neighbour offsets; each unordered pixel pair is visited once.
var (
	forward4 = []offset{{0, 1}, {1, 0}}
	forward8 = []offset{{0, 1}, {1, -1}, {1, 0}, {1, 1}}
)

// buildAdjacency scans the map once and records every contact between
// different resolved segments.
func (c *segContext) buildAdjacency() *adjacency {
	g := &adjacency{edges: make(map[int32]map[int32]*contact)}
	fwd := forward4
	if c.opts.ConnectCorners {
		fwd = forward8
	}
	for k, v := range c.labels {
		if v <= 0 {
			continue
		}
		a := c.ids.resolve(v)
		i, j := k/c.cols, k%c.cols
		for _, d := range fwd {
			ni, nj := i+d.di, j+d.dj
			if !c.inside(ni, nj) {
				continue
			}
			nk := ni*c.cols + nj
			w := c.labels[nk]
			if w <= 0 {
				continue
			}
			b := c.ids.resolve(w)
			if a == b {
				continue
			}
			ab, ba := g.pair(a, b)
			ab.conn++
			ba.conn++
			ab.side.addSample(c.img.Pix[k])
			ba.side.addSample(c.img.Pix[nk])
		}
	}
	return g
}

func (g *adjacency) half(a, b int32) *contact {
	m, ok := g.edges[a]
	if !ok {
		m = make(map[int32]*contact)
		g.edges[a] = m
	}
	h, ok := m[b]
	if !ok {
		h = &contact{}
		m[b] = h
	}
	return h
}

func (g *adjacency) pair(a, b int32) (ab, ba *contact) {
	return g.half(a, b), g.half(b, a)
}

// connections returns the contact count between a and b.
func (g *adjacency) connections(a, b int32) int {
	if h, ok := g.edges[a][b]; ok {
		return h.conn
	}
	return 0
}

// merge folds every contact of loser into winner.
func (g *adjacency) merge(winner, loser int32) {
	for b, lb := range g.edges[loser] {
		bl := g.edges[b][loser]
		delete(g.edges[b], loser)
		if b == winner {
			continue
		}
		wb, bw := g.pair(winner, b)
		wb.conn += lb.conn
		wb.side.add(lb.side)
		bw.conn += bl.conn
		bw.side.add(bl.side)
	}
	delete(g.edges, loser)
	if m, ok := g.edges[winner]; ok && len(m) == 0 {
		delete(g.edges, winner)
	}
}

// each calls fn once per unordered pair with a < b.
func (g *adjacency) each(fn func(a, b int32, ab, ba *contact)) {
	for a, m := range g.edges {
		for b, ab := range m {
			if a < b {
				fn(a, b, ab, g.edges[b][a])
			}
		}
	}
}
