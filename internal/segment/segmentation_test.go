package segment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/regionseg/internal/mempool"
)

// patchwork draws four coloured quadrants with a small square in the middle.
func patchwork(rows, cols int) *Image {
	img := NewImage(rows, cols)
	colours := [4][3]float64{{200, 40, 40}, {40, 180, 40}, {40, 40, 200}, {210, 210, 60}}
	for i := range rows {
		for j := range cols {
			q := 0
			if i >= rows/2 {
				q += 2
			}
			if j >= cols/2 {
				q++
			}
			c := colours[q]
			img.Set(i, j, c[0], c[1], c[2])
		}
	}
	for i := rows/2 - 3; i < rows/2+3; i++ {
		for j := cols/2 - 3; j < cols/2+3; j++ {
			img.Set(i, j, 250, 250, 250)
		}
	}
	return img
}

func assertInvariants(t *testing.T, seg *Segmentation) {
	t.Helper()
	for idx, s := range seg.Segments {
		require.Equal(t, idx+1, s.ID)
		assert.Equal(t, s.NumPixels, len(s.Pixels))
		for _, p := range s.Pixels {
			require.Equal(t, int32(s.ID), seg.At(p.I, p.J), "segment %d pixel %v", s.ID, p)
		}
		assert.Equal(t, int32(s.ID), seg.At(s.Interior.I, s.Interior.J), "interior of %d", s.ID)
		for _, p := range s.Boundary {
			outside, same := false, false
			for _, d := range offsets8 {
				i, j := p.I+d.di, p.J+d.dj
				if i < 0 || i >= seg.Rows || j < 0 || j >= seg.Cols || seg.At(i, j) != int32(s.ID) {
					outside = true
				} else {
					same = true
				}
			}
			assert.True(t, outside, "boundary pixel %v of %d is interior", p, s.ID)
			if s.NumPixels > 1 {
				assert.True(t, same, "boundary pixel %v of %d is isolated", p, s.ID)
			}
		}
		for k, n := range s.Neighbors {
			other := seg.Segment(n)
			require.NotNil(t, other)
			assert.Equal(t, s.Connections[k], other.Connection(s.ID))
		}
	}
	for _, v := range seg.Map {
		assert.True(t, v <= 0 || int(v) <= len(seg.Segments), "dangling id %d", v)
	}
}

func TestEngine_UniformImage(t *testing.T) {
	opts := DefaultOptions()
	opts.MinSegmentSize = 50
	opts.ConnectCorners = false
	e := newTestEngine(t, opts)

	seg, err := e.Segment(uniformImage(50, 50, 120, 80, 60))
	require.NoError(t, err)
	require.NotEmpty(t, seg.Segments)
	assert.LessOrEqual(t, len(seg.Segments), 3)

	covered := 0
	for _, s := range seg.Segments {
		covered += s.NumPixels
	}
	assert.GreaterOrEqual(t, float64(covered), 0.95*50*50)
	assertInvariants(t, seg)

	s := seg.Segments[0]
	assert.NotEmpty(t, s.Outside)
	assert.InDelta(t, 120, s.Mean.R, 1e-6)
}

func TestEngine_Patchwork(t *testing.T) {
	opts := DefaultOptions()
	opts.SmoothScales = []int{0}
	e := newTestEngine(t, opts)

	seg, err := e.Segment(patchwork(40, 40))
	require.NoError(t, err)
	require.Len(t, seg.Segments, 5)
	assertInvariants(t, seg)
	assert.Zero(t, seg.Stats.TraceFailures)

	centre := seg.Segment(int(seg.At(20, 20)))
	require.NotNil(t, centre)
	assert.Equal(t, 36, centre.NumPixels)
	assert.Len(t, centre.Neighbors, 4, "the centre square touches every quadrant")
	assert.ElementsMatch(t,
		[]Point{{16.5, 16.5}, {22.5, 16.5}, {22.5, 22.5}, {16.5, 22.5}},
		centre.Outside)
	assert.InDelta(t, 0, centre.Shape.Elongation, 1e-9)

	topLeft := seg.Segment(int(seg.At(0, 0)))
	require.NotNil(t, topLeft)
	assert.Equal(t, 1, topLeft.ID, "ids follow first raster appearance")
	assert.Equal(t, Box{MinI: 0, MinJ: 0, MaxI: 19, MaxJ: 19}, topLeft.Box)
	assert.Contains(t, topLeft.Neighbors, int(seg.At(0, 39)))
	assert.NotContains(t, topLeft.Neighbors, int(seg.At(39, 39)), "diagonal quadrant is too far")
}

func TestEngine_InvalidPixelsStayOut(t *testing.T) {
	img := uniformImage(20, 20, 90, 90, 150)
	for i := range 20 {
		img.SetInvalid(i, 10)
	}
	e := newTestEngine(t, DefaultOptions())

	seg, err := e.Segment(img)
	require.NoError(t, err)
	require.Len(t, seg.Segments, 2)
	for i := range 20 {
		assert.Equal(t, InvalidPixel, seg.At(i, 10))
	}
	assertInvariants(t, seg)
}

func TestEngine_RegionDriftMergesCloseHalves(t *testing.T) {
	img := NewImage(20, 20)
	labels := NewLabelMap(20, 20)
	for i := range 20 {
		for j := range 20 {
			if j < 10 {
				img.Set(i, j, 100, 100, 100)
				labels.Set(i, j, 1)
			} else {
				img.Set(i, j, 104, 100, 100)
				labels.Set(i, j, 2)
			}
		}
	}
	opts := DefaultOptions()
	opts.SmallMerge, opts.BoundaryMerge = false, false
	e := newTestEngine(t, opts)
	seg := NewSegmentation(20, 20)

	require.NoError(t, e.RunWithLabels(img, labels, seg))
	require.Len(t, seg.Segments, 1)
	assert.Equal(t, 400, seg.Segments[0].NumPixels)
	assert.Equal(t, 1, seg.Stats.Merges["region_drift"])
	assert.InDelta(t, 102, seg.Segments[0].Mean.R, 1e-9)
}

func TestEngine_RegionDriftKeepsDistinctHalves(t *testing.T) {
	img := NewImage(20, 20)
	labels := NewLabelMap(20, 20)
	for i := range 20 {
		for j := range 20 {
			if j < 10 {
				img.Set(i, j, 100, 100, 100)
				labels.Set(i, j, 5)
			} else {
				img.Set(i, j, 160, 100, 60)
				labels.Set(i, j, 9)
			}
		}
	}
	e := newTestEngine(t, DefaultOptions())
	seg := NewSegmentation(20, 20)

	require.NoError(t, e.RunWithLabels(img, labels, seg))
	require.Len(t, seg.Segments, 2)
	assert.Zero(t, seg.Stats.TotalMerges())
	assert.Equal(t, []int{2}, seg.Segments[0].Neighbors)
	assert.Equal(t, []int{1}, seg.Segments[1].Neighbors)
	assert.Equal(t, 40, seg.Segments[0].Connections[0])
}

func TestEngine_DimensionMismatchLeavesOutputUntouched(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	img := patchwork(30, 30)
	seg := NewSegmentation(30, 30)
	require.NoError(t, e.Run(img, seg))

	mapBefore := append([]int32(nil), seg.Map...)
	segsBefore := len(seg.Segments)

	err := e.RunWithLabels(img, NewLabelMap(29, 30), seg)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.False(t, IsInternal(err))

	assert.Equal(t, mapBefore, seg.Map)
	assert.Len(t, seg.Segments, segsBefore)

	err = e.Run(patchwork(31, 30), seg)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, mapBefore, seg.Map)
}

func TestEngine_LabelErrors(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	img := uniformImage(5, 5, 10, 10, 10)
	seg := NewSegmentation(5, 5)

	require.ErrorIs(t, e.RunWithLabels(img, NewLabelMap(5, 5), seg), ErrNoLabels)
	require.ErrorIs(t, e.RunWithLabels(img, nil, seg), ErrNoLabels)
	assert.Nil(t, seg.Map)

	_, err := e.Segment(&Image{Rows: 2, Cols: 2})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = e.Segment(&Image{})
	require.ErrorIs(t, err, ErrEmptyImage)
}

func TestEngine_AllocationLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPixels = 100
	e := newTestEngine(t, opts)

	_, err := e.Segment(uniformImage(20, 20, 10, 10, 10))
	require.ErrorIs(t, err, ErrAllocation)
	require.True(t, errors.Is(err, mempool.ErrCapacity))

	seg, err := e.Segment(uniformImage(10, 10, 10, 10, 10))
	require.NoError(t, err)
	assert.Len(t, seg.Map, 100)
}

func TestEngine_ReusesBuffersAcrossRuns(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())

	_, err := e.Segment(patchwork(40, 40))
	require.NoError(t, err)
	high := e.BufferHighWater()
	retained := e.BufferRetained()
	assert.GreaterOrEqual(t, retained, high)

	seg, err := e.Segment(patchwork(20, 20))
	require.NoError(t, err)
	assert.Equal(t, high, e.BufferHighWater())
	assert.Equal(t, retained, e.BufferRetained())
	assertInvariants(t, seg)
}

func TestEngine_ObserverSeesPhases(t *testing.T) {
	var phases []Phase
	e, err := NewEngine(DefaultOptions(),
		WithLogger(quietLogger()),
		WithObserver(ObserverFunc(func(p Phase, _ time.Duration, _ int) {
			phases = append(phases, p)
		})))
	require.NoError(t, err)

	_, err = e.Segment(patchwork(20, 20))
	require.NoError(t, err)
	assert.Equal(t, []Phase{
		PhaseSeed, PhaseExpand, PhaseHoles, PhaseMerge, PhaseErode,
		PhaseCollect, PhaseTrace, PhaseNeighbors,
	}, phases)
}

func TestEngine_OptionalStagesOff(t *testing.T) {
	opts := DefaultOptions()
	opts.TraceOutside = false
	opts.FindNeighbors = false
	e := newTestEngine(t, opts)

	seg, err := e.Segment(patchwork(20, 20))
	require.NoError(t, err)
	for _, s := range seg.Segments {
		assert.Empty(t, s.Outside)
		assert.Empty(t, s.Neighbors)
	}
}

func TestNewEngine_RejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Admission = "nope"
	_, err := NewEngine(opts)
	require.ErrorIs(t, err, ErrInvalidValue)
}
