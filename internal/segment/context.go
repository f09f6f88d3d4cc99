package segment

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/regionseg/internal/mempool"
)

// regionAcc holds running sums for one segment.
type regionAcc struct {
	n, r, g, b, rc, gc, sum float64
}

func (a *regionAcc) addSample(s Sample) {
	a.n++
	a.r += s.R
	a.g += s.G
	a.b += s.B
	a.rc += s.RChrom
	a.gc += s.GChrom
	a.sum += s.Sum
}

func (a *regionAcc) subSample(s Sample) {
	a.n--
	a.r -= s.R
	a.g -= s.G
	a.b -= s.B
	a.rc -= s.RChrom
	a.gc -= s.GChrom
	a.sum -= s.Sum
}

func (a *regionAcc) add(o regionAcc) {
	a.n += o.n
	a.r += o.r
	a.g += o.g
	a.b += o.b
	a.rc += o.rc
	a.gc += o.gc
	a.sum += o.sum
}

// mean returns the averaged sample. Chrominance and sum are the means of the
// per-pixel values, not recomputed from the mean channels.
func (a *regionAcc) mean() Sample {
	if a.n <= 0 {
		return Sample{}
	}
	return Sample{
		R:      a.r / a.n,
		G:      a.g / a.n,
		B:      a.b / a.n,
		Sum:    a.sum / a.n,
		RChrom: a.rc / a.n,
		GChrom: a.gc / a.n,
	}
}

type offset struct{ di, dj int }

var (
	offsets4 = []offset{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}
	offsets8 = []offset{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
)

// pixelFill is a pending assignment of pixel k to segment id.
type pixelFill struct {
	k  int
	id int32
}

// segContext is the state of one segmentation call. Every phase receives it
// explicitly; buffers come from the engine's pool and outlive the call.
type segContext struct {
	opts *Options
	log  *slog.Logger
	pool *mempool.Pool

	rows, cols int
	img        *Image

	labels []int32
	work   []Sample
	acc    []regionAcc
	stack  []int
	grown  []int
	prev   []int
	fills  []pixelFill

	ids   *relabelTable
	conn  []offset
	admit admission
	stats Stats
}

func newContext(e *Engine, img *Image) (*segContext, error) {
	n := img.Rows * img.Cols
	if e.opts.MaxPixels > 0 && n > e.opts.MaxPixels {
		return nil, fmt.Errorf("%w: %w: %d pixels exceed max_pixels %d",
			ErrAllocation, mempool.ErrCapacity, n, e.opts.MaxPixels)
	}

	c := &segContext{
		opts:  &e.opts,
		log:   e.log,
		pool:  e.pool,
		rows:  img.Rows,
		cols:  img.Cols,
		img:   img,
		ids:   &e.ids,
		conn:  offsets4,
		admit: admissionTable[admissionByName[e.opts.Admission]],
	}
	if e.opts.ConnectCorners {
		c.conn = offsets8
	}

	var err error
	if c.labels, err = mempool.Get[int32](c.pool, "labels", n); err != nil {
		return nil, allocError(err)
	}
	if c.work, err = mempool.Get[Sample](c.pool, "work", n); err != nil {
		return nil, allocError(err)
	}
	if c.acc, err = mempool.Get[regionAcc](c.pool, "acc", n+1); err != nil {
		return nil, allocError(err)
	}
	if c.stack, err = mempool.Get[int](c.pool, "stack", n); err != nil {
		return nil, allocError(err)
	}
	if c.grown, err = mempool.Get[int](c.pool, "grown", n); err != nil {
		return nil, allocError(err)
	}
	if c.prev, err = mempool.Get[int](c.pool, "prev", n); err != nil {
		return nil, allocError(err)
	}
	if c.fills, err = mempool.Get[pixelFill](c.pool, "fills", n); err != nil {
		return nil, allocError(err)
	}
	c.stack, c.grown, c.prev, c.fills = c.stack[:0], c.grown[:0], c.prev[:0], c.fills[:0]

	copy(c.work, img.Pix)
	for k, ok := range img.Valid {
		if !ok {
			c.labels[k] = InvalidPixel
		}
	}
	c.ids.reset()
	return c, nil
}

func allocError(err error) error {
	return fmt.Errorf("%w: %w", ErrAllocation, err)
}

func (c *segContext) inside(i, j int) bool {
	return i >= 0 && i < c.rows && j >= 0 && j < c.cols
}

// open reports whether a map value may still be claimed by a segment:
// unassigned pixels and pixels of rejected regions.
func open(v int32) bool {
	return v <= 0 && v != InvalidPixel
}

// assign moves pixel k into segment id and keeps the running sums current.
func (c *segContext) assign(k int, id int32) {
	if old := c.labels[k]; old > 0 {
		c.acc[c.ids.resolve(old)].subSample(c.img.Pix[k])
	}
	c.labels[k] = id
	c.acc[c.ids.resolve(id)].addSample(c.img.Pix[k])
}

// unassign returns pixel k to the unassigned state.
func (c *segContext) unassign(k int) {
	if old := c.labels[k]; old > 0 {
		c.acc[c.ids.resolve(old)].subSample(c.img.Pix[k])
	}
	c.labels[k] = Unassigned
}

// newID issues the next provisional id with empty statistics.
func (c *segContext) newID() int32 {
	id := c.ids.add()
	if int(id) >= len(c.acc) {
		bug("new id", "id %d exceeds statistics capacity %d", id, len(c.acc))
	}
	c.acc[id] = regionAcc{}
	return id
}

// liveSegments counts ids that are their own root and own pixels.
func (c *segContext) liveSegments() int {
	live := 0
	for id := int32(1); int(id) < c.ids.size(); id++ {
		if c.ids.resolve(id) == id && c.acc[id].n > 0 {
			live++
		}
	}
	return live
}

// flatten rewrites every positive map value with its resolved id.
func (c *segContext) flatten() {
	for k, v := range c.labels {
		if v > 0 {
			c.labels[k] = c.ids.resolve(v)
		}
	}
}
