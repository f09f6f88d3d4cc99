package segment

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/regionseg/internal/mempool"
)

// Phase names a stage of the segmentation pipeline.
type Phase string

const (
	PhaseSeed      Phase = "seed"
	PhaseLabels    Phase = "labels"
	PhaseExpand    Phase = "expand"
	PhaseHoles     Phase = "holes"
	PhaseMerge     Phase = "merge"
	PhaseErode     Phase = "erode"
	PhaseCollect   Phase = "collect"
	PhaseTrace     Phase = "trace"
	PhaseNeighbors Phase = "neighbors"
)

// Observer is notified after every completed phase. segments is the number of
// live segments at that point.
type Observer interface {
	PhaseDone(phase Phase, elapsed time.Duration, segments int)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(phase Phase, elapsed time.Duration, segments int)

func (f ObserverFunc) PhaseDone(phase Phase, elapsed time.Duration, segments int) {
	f(phase, elapsed, segments)
}

// Segment is one final region. Records are built by the collector and are
// read-only afterwards.
type Segment struct {
	ID        int
	NumPixels int
	Pixels    []Coord
	Boundary  []Coord
	// Outside is the traced outer contour; empty when tracing failed or was
	// disabled.
	Outside  []Point
	ICM, JCM float64
	Interior Coord
	Box      Box
	// Mean holds the mean channels, chrominance and sum of the original
	// samples.
	Mean        Sample
	Neighbors   []int
	Connections []int
	Shape       Shape
}

// Stats counts what the engine did during the last run.
type Stats struct {
	SeedsTried      int            `json:"seeds_tried" yaml:"seeds_tried"`
	SeedsAccepted   int            `json:"seeds_accepted" yaml:"seeds_accepted"`
	RejectedRegions int            `json:"rejected_regions" yaml:"rejected_regions"`
	HolesFilled     int            `json:"holes_filled" yaml:"holes_filled"`
	PixelsExpanded  int            `json:"pixels_expanded" yaml:"pixels_expanded"`
	PixelsDissolved int            `json:"pixels_dissolved" yaml:"pixels_dissolved"`
	PixelsEroded    int            `json:"pixels_eroded" yaml:"pixels_eroded"`
	StrayPixels     int            `json:"stray_pixels" yaml:"stray_pixels"`
	SegmentsDropped int            `json:"segments_dropped" yaml:"segments_dropped"`
	TraceFailures   int            `json:"trace_failures" yaml:"trace_failures"`
	Merges          map[string]int `json:"merges" yaml:"merges"`
}

// TotalMerges sums the merges of every strategy.
func (s Stats) TotalMerges() int {
	n := 0
	for _, v := range s.Merges {
		n += v
	}
	return n
}

// Segmentation owns the segment map and the segment records of one image.
// Its dimensions are fixed at creation.
type Segmentation struct {
	Rows, Cols int
	// Map holds, row-major, the final segment id of every pixel (1-based,
	// Segments[id-1].ID == id), Unassigned, InvalidPixel or the negative
	// size of a rejected seed region.
	Map      []int32
	Segments []Segment
	Stats    Stats
}

// NewSegmentation creates an empty segmentation for rows x cols images.
func NewSegmentation(rows, cols int) *Segmentation {
	return &Segmentation{Rows: rows, Cols: cols}
}

// At returns the map value at (i, j).
func (s *Segmentation) At(i, j int) int32 {
	return s.Map[i*s.Cols+j]
}

// Segment returns the record of final id, or nil.
func (s *Segmentation) Segment(id int) *Segment {
	if id < 1 || id > len(s.Segments) {
		return nil
	}
	return &s.Segments[id-1]
}

// Engine runs segmentations. It keeps grow-only buffers between runs, so
// one Engine must not be used by several goroutines at once.
type Engine struct {
	opts     Options
	pool     *mempool.Pool
	ids      relabelTable
	log      *slog.Logger
	observer Observer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for phase progress and trace failures.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithObserver registers an observer for phase completions.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// NewEngine validates opts and creates an engine.
func NewEngine(opts Options, options ...EngineOption) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, &InputError{Op: "new engine", Err: err}
	}
	opts.SmoothScales = append([]int(nil), opts.SmoothScales...)
	opts.SeedWindows = append([]int(nil), opts.SeedWindows...)
	e := &Engine{
		opts: opts,
		pool: mempool.New(bufferLimit(opts.MaxPixels)),
		log:  slog.Default(),
	}
	for _, o := range options {
		o(e)
	}
	return e, nil
}

// bufferLimit bounds single buffers. The tracer grid of an n-pixel segment
// needs at most about 14n cells.
func bufferLimit(maxPixels int) int {
	if maxPixels <= 0 {
		return 0
	}
	return 14*maxPixels + 64
}

// Options returns a copy of the engine options.
func (e *Engine) Options() Options {
	o := e.opts
	o.SmoothScales = append([]int(nil), o.SmoothScales...)
	o.SeedWindows = append([]int(nil), o.SeedWindows...)
	return o
}

// BufferHighWater reports the largest buffer the engine has requested.
func (e *Engine) BufferHighWater() int {
	return e.pool.HighWater()
}

// BufferRetained reports the capacity, in elements, of every buffer the
// engine keeps between runs.
func (e *Engine) BufferRetained() int {
	return e.pool.Retained()
}

// Segment runs a full automatic segmentation of img.
func (e *Engine) Segment(img *Image) (*Segmentation, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}
	seg := NewSegmentation(img.Rows, img.Cols)
	if err := e.Run(img, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

// Run segments img into seg using automatic seeding. On error seg is left
// unchanged.
func (e *Engine) Run(img *Image, seg *Segmentation) error {
	return e.run(img, nil, seg)
}

// RunWithLabels segments img starting from the caller's provisional regions
// instead of automatic seeding. labels must match the image dimensions and
// hold at least one positive id. On error seg is left unchanged.
func (e *Engine) RunWithLabels(img *Image, labels *LabelMap, seg *Segmentation) error {
	if labels == nil {
		return &InputError{Op: "run with labels", Err: fmt.Errorf("%w: nil label map", ErrNoLabels)}
	}
	return e.run(img, labels, seg)
}

func (e *Engine) checkInput(img *Image, labels *LabelMap, seg *Segmentation) error {
	if err := img.validate(); err != nil {
		return err
	}
	if seg == nil || seg.Rows != img.Rows || seg.Cols != img.Cols {
		got := "nil"
		if seg != nil {
			got = fmt.Sprintf("%dx%d", seg.Rows, seg.Cols)
		}
		return &InputError{
			Op:  "check segmentation",
			Err: fmt.Errorf("%w: segmentation %s, image %dx%d", ErrDimensionMismatch, got, img.Rows, img.Cols),
		}
	}
	if labels == nil {
		return nil
	}
	if labels.Rows != img.Rows || labels.Cols != img.Cols || len(labels.Labels) != img.Rows*img.Cols {
		return &InputError{
			Op: "check labels",
			Err: fmt.Errorf("%w: labels %dx%d, image %dx%d",
				ErrDimensionMismatch, labels.Rows, labels.Cols, img.Rows, img.Cols),
		}
	}
	for _, v := range labels.Labels {
		if v > 0 {
			return nil
		}
	}
	return &InputError{Op: "check labels", Err: ErrNoLabels}
}

func (e *Engine) run(img *Image, labels *LabelMap, seg *Segmentation) (err error) {
	if err := e.checkInput(img, labels, seg); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*InternalError)
			if !ok {
				panic(r)
			}
			e.log.Error("segmentation aborted", "op", ie.Op, "error", ie.Detail)
			err = ie
		}
	}()

	c, err := newContext(e, img)
	if err != nil {
		return err
	}
	c.stats.Merges = make(map[string]int)
	started := time.Now()

	if labels != nil {
		e.phase(c, PhaseLabels, func() { c.applyLabels(labels) })
	} else {
		e.phase(c, PhaseSeed, c.initialSegmentation)
	}
	e.phase(c, PhaseExpand, func() { c.expandEdges(c.opts.ExpandIterations) })
	e.phase(c, PhaseHoles, func() { c.fillHoles() })
	e.phase(c, PhaseMerge, c.mergeRounds)
	e.phase(c, PhaseErode, func() {
		c.erode()
		c.fillHoles()
	})

	out := make([]int32, len(c.labels))
	var segs []Segment
	t := time.Now()
	if segs, err = c.collect(out); err != nil {
		return err
	}
	e.done(PhaseCollect, time.Since(t), len(segs))

	if e.opts.TraceOutside {
		t = time.Now()
		if err := c.traceOutside(out, segs); err != nil {
			return err
		}
		for k := range segs {
			segs[k].Shape, _ = shapeOf(&segs[k])
		}
		e.done(PhaseTrace, time.Since(t), len(segs))
	}
	if e.opts.FindNeighbors {
		t = time.Now()
		c.findNeighbors(out, segs)
		e.done(PhaseNeighbors, time.Since(t), len(segs))
	}

	seg.Map = out
	seg.Segments = segs
	seg.Stats = c.stats
	e.log.Debug("segmentation complete",
		"rows", img.Rows, "cols", img.Cols,
		"segments", len(segs),
		"merges", c.stats.TotalMerges(),
		"duration", time.Since(started))
	return nil
}

func (e *Engine) phase(c *segContext, p Phase, fn func()) {
	t := time.Now()
	fn()
	e.done(p, time.Since(t), c.liveSegments())
}

func (e *Engine) done(p Phase, elapsed time.Duration, segments int) {
	e.log.Debug("phase complete", "phase", string(p), "segments", segments, "duration", elapsed)
	if e.observer != nil {
		e.observer.PhaseDone(p, elapsed, segments)
	}
}

// applyLabels seeds the map from caller-provided regions. Distinct positive
// labels become provisional ids in order of first raster appearance.
func (c *segContext) applyLabels(lm *LabelMap) {
	ids := make(map[int32]int32)
	for k, v := range lm.Labels {
		if v <= 0 || c.labels[k] == InvalidPixel {
			continue
		}
		id, ok := ids[v]
		if !ok {
			id = c.newID()
			ids[v] = id
		}
		c.assign(k, id)
	}
}
