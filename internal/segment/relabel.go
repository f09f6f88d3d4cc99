package segment

// relabelTable maps provisional segment ids to their merged ids. It is a
// union-find with path compression and union by rank; each set additionally
// remembers its lowest member so the lower id always survives a merge.
// Id 0 is reserved for "unassigned" and never joins a set.
type relabelTable struct {
	parent []int32
	rank   []uint8
	low    []int32
}

func (t *relabelTable) reset() {
	t.parent = append(t.parent[:0], 0)
	t.rank = append(t.rank[:0], 0)
	t.low = append(t.low[:0], 0)
}

// add creates the next id as its own singleton set and returns it.
func (t *relabelTable) add() int32 {
	id := int32(len(t.parent))
	t.parent = append(t.parent, id)
	t.rank = append(t.rank, 0)
	t.low = append(t.low, id)
	return id
}

// size returns one past the highest issued id.
func (t *relabelTable) size() int { return len(t.parent) }

// truncate drops every id >= n. Only ids that never took part in a union
// may be dropped.
func (t *relabelTable) truncate(n int) {
	if n < 1 || n > len(t.parent) {
		bug("relabel truncate", "truncate to %d with %d ids", n, len(t.parent))
	}
	for id := n; id < len(t.parent); id++ {
		if t.parent[id] != int32(id) || t.low[id] != int32(id) {
			bug("relabel truncate", "id %d was already merged", id)
		}
	}
	t.parent = t.parent[:n]
	t.rank = t.rank[:n]
	t.low = t.low[:n]
}

func (t *relabelTable) root(id int32) int32 {
	if id <= 0 || int(id) >= len(t.parent) {
		bug("relabel resolve", "id %d outside table of %d", id, len(t.parent))
	}
	r := id
	for t.parent[r] != r {
		r = t.parent[r]
	}
	for t.parent[id] != r {
		next := t.parent[id]
		t.parent[id] = r
		id = next
	}
	return r
}

// resolve returns the surviving id for id. Non-positive values pass through.
func (t *relabelTable) resolve(id int32) int32 {
	if id <= 0 {
		return id
	}
	return t.low[t.root(id)]
}

// union joins the sets of a and b and returns the surviving (lower) id and
// the absorbed one. ok is false when both already share a set.
func (t *relabelTable) union(a, b int32) (winner, loser int32, ok bool) {
	ra, rb := t.root(a), t.root(b)
	if ra == rb {
		w := t.low[ra]
		return w, w, false
	}
	winner, loser = t.low[ra], t.low[rb]
	if loser < winner {
		winner, loser = loser, winner
	}
	switch {
	case t.rank[ra] < t.rank[rb]:
		ra, rb = rb, ra
	case t.rank[ra] == t.rank[rb]:
		t.rank[ra]++
	}
	t.parent[rb] = ra
	t.low[ra] = winner
	return winner, loser, true
}
