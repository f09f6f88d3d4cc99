package pipeline

import (
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/regionseg/internal/segment"
)

var (
	red  = color.NRGBA{R: 200, G: 40, B: 40, A: 255}
	blue = color.NRGBA{R: 40, G: 40, B: 200, A: 255}
)

// halves paints the left half red and the right half blue.
func halves(w, h int) *image.NRGBA {
	img := imaging.New(w, h, red)
	for y := range h {
		for x := w / 2; x < w; x++ {
			img.SetNRGBA(x, y, blue)
		}
	}
	return img
}

func newTestPipeline(t *testing.T, b *Builder) *Pipeline {
	t.Helper()
	if b == nil {
		b = NewBuilder()
	}
	// Unsmoothed seeding keeps the hard colour edges of the test images
	// from forming thin transition segments.
	p, err := b.WithOption("smooth_scales", "0").
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestToSegmentImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(2, 3, 5, 4))
	img.SetNRGBA(2, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetNRGBA(3, 3, color.NRGBA{R: 100, G: 50, B: 25, A: 128})
	// (4,3) stays fully transparent

	s := ToSegmentImage(img)
	require.Equal(t, 1, s.Rows)
	require.Equal(t, 3, s.Cols)

	assert.True(t, s.IsValid(0, 0))
	assert.InDelta(t, 10, s.At(0, 0).R, 1e-9)
	assert.InDelta(t, 60, s.At(0, 0).Sum, 1e-3)

	assert.True(t, s.IsValid(0, 1))
	assert.InDelta(t, 100, s.At(0, 1).R, 1)
	assert.InDelta(t, 25, s.At(0, 1).B, 1)

	assert.False(t, s.IsValid(0, 2), "transparent pixels are invalid")
}

func TestProcessImage_TwoHalves(t *testing.T) {
	p := newTestPipeline(t, nil)

	res, err := p.ProcessImage(halves(40, 20))
	require.NoError(t, err)
	require.NoError(t, ValidateResult(res))
	require.Len(t, res.Segments, 2)
	assert.Equal(t, 40, res.Width)
	assert.Equal(t, 20, res.Height)
	assert.InDelta(t, 1.0, res.Scale, 1e-9)
	assert.GreaterOrEqual(t, res.Coverage, 0.95)

	left, right := res.Segments[0], res.Segments[1]
	assert.Equal(t, "#c82828", left.Color)
	assert.Equal(t, "#2828c8", right.Color)
	assert.Equal(t, 0, left.Box.X)
	assert.Less(t, left.Centroid.X, right.Centroid.X)
	assert.NotEmpty(t, left.Outline)
	assert.Positive(t, left.Area)

	require.Len(t, left.Neighbors, 1)
	require.Len(t, right.Neighbors, 1)
	assert.Equal(t, 2, left.Neighbors[0].ID)
	assert.Equal(t, left.Neighbors[0].Connections, right.Neighbors[0].Connections)
	assert.Greater(t, left.Neighbors[0].DeltaE, 0.3)
	assert.InDelta(t, left.Neighbors[0].DeltaE, right.Neighbors[0].DeltaE, 1e-12)
	assert.NotNil(t, res.Map)
}

func TestProcessImage_WithLabelsAndObserver(t *testing.T) {
	p := newTestPipeline(t, nil)
	labels := segment.NewLabelMap(10, 20)
	for i := range 10 {
		for j := range 20 {
			labels.Set(i, j, int32(1+j/10))
		}
	}
	var phases []segment.Phase
	obs := segment.ObserverFunc(func(ph segment.Phase, _ time.Duration, _ int) {
		phases = append(phases, ph)
	})

	res, err := p.ProcessImageContext(context.Background(), halves(20, 10), ProcessOptions{Labels: labels, Observer: obs})
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)
	assert.InDelta(t, 100, res.Segments[0].NumPixels, 10)
	require.NotEmpty(t, phases)
	assert.Equal(t, segment.PhaseLabels, phases[0])
}

func TestBuilder_ObserverAndBufferUsage(t *testing.T) {
	var phases []segment.Phase
	obs := segment.ObserverFunc(func(p segment.Phase, _ time.Duration, _ int) {
		phases = append(phases, p)
	})
	p := newTestPipeline(t, NewBuilder().WithObserver(obs))

	high, retained := p.BufferUsage()
	assert.Zero(t, high)
	assert.Zero(t, retained)

	_, err := p.ProcessImage(halves(40, 20))
	require.NoError(t, err)
	assert.NotEmpty(t, phases)

	high, retained = p.BufferUsage()
	assert.GreaterOrEqual(t, high, 40*20)
	assert.GreaterOrEqual(t, retained, high)

	_, err = p.ProcessImage(halves(20, 10))
	require.NoError(t, err)
	high2, retained2 := p.BufferUsage()
	assert.Equal(t, high, high2)
	assert.Equal(t, retained, retained2)
}

func TestProcessImage_Errors(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.ProcessImage(nil)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.ProcessImageContext(ctx, halves(4, 4), ProcessOptions{})
	require.ErrorIs(t, err, context.Canceled)

	_, err = p.ProcessImageContext(context.Background(), halves(4, 4),
		ProcessOptions{Labels: segment.NewLabelMap(3, 3)})
	require.ErrorIs(t, err, segment.ErrDimensionMismatch)

	var nilPipeline *Pipeline
	_, err = nilPipeline.ProcessImage(halves(4, 4))
	require.Error(t, err)
}

func TestBuilder_OptionOverrides(t *testing.T) {
	p := newTestPipeline(t, NewBuilder().WithOption("min_seg", "7").WithOption("connect_c", "true"))
	opts := p.Options()
	assert.Equal(t, 7, opts.MinSegmentSize)
	assert.True(t, opts.ConnectCorners)

	_, err := NewBuilder().WithOption("nonsense", "1").Build()
	require.ErrorIs(t, err, segment.ErrUnknownOption)

	bad := segment.DefaultOptions()
	bad.Admission = "nope"
	_, err = NewBuilder().WithOptions(bad).Build()
	require.ErrorIs(t, err, segment.ErrInvalidValue)
}

func TestProcessImage_Downscales(t *testing.T) {
	b := NewBuilder()
	cfg := b.Config()
	cfg.Constraints.MaxWidth, cfg.Constraints.MaxHeight = 20, 20
	p := newTestPipeline(t, b.WithConfig(cfg))

	res, err := p.ProcessImage(halves(80, 40))
	require.NoError(t, err)
	assert.Equal(t, 20, res.Width)
	assert.Equal(t, 10, res.Height)
	assert.InDelta(t, 4.0, res.Scale, 1e-9)
}

func TestResultFormats(t *testing.T) {
	p := newTestPipeline(t, nil)
	res, err := p.ProcessImage(halves(40, 20))
	require.NoError(t, err)

	js, err := ToJSONImage(res)
	require.NoError(t, err)
	assert.Contains(t, js, `"segments"`)
	assert.Contains(t, js, `"color": "#c82828"`)
	assert.NotContains(t, js, `"Map"`)

	ym, err := ToYAMLImage(res)
	require.NoError(t, err)
	assert.Contains(t, ym, "segments:")
	assert.Contains(t, ym, "num_pixels:")

	csvOut, err := ToCSVImage(res)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(csvOut), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id,pixels,"))

	txt, err := ToPlainTextImage(res)
	require.NoError(t, err)
	assert.Contains(t, txt, "2 segments")

	for _, f := range []func(*SegmentationResult) (string, error){ToJSONImage, ToYAMLImage, ToCSVImage, ToPlainTextImage} {
		_, err := f(nil)
		require.Error(t, err)
	}
}

func TestValidateResult(t *testing.T) {
	require.Error(t, ValidateResult(nil))
	require.Error(t, ValidateResult(&SegmentationResult{}))

	res := &SegmentationResult{Width: 4, Height: 4, Segments: []SegmentResult{
		{ID: 1, NumPixels: 4, Box: BoxResult{W: 2, H: 2}, Neighbors: []NeighborResult{{ID: 1}}},
	}}
	require.Error(t, ValidateResult(res), "self neighbour")

	res.Segments[0].Neighbors = nil
	res.Segments[0].Box.X = 3
	require.Error(t, ValidateResult(res), "box outside")

	res.Segments[0].Box.X = 0
	require.NoError(t, ValidateResult(res))
}

func TestRenderOverlay(t *testing.T) {
	p := newTestPipeline(t, nil)
	img := halves(40, 20)
	res, err := p.ProcessImage(img)
	require.NoError(t, err)

	out := RenderOverlay(img, res, DefaultOverlayOptions())
	require.NotNil(t, out)
	assert.Equal(t, img.Bounds(), out.Bounds())

	plain := RenderOverlay(img, res, OverlayOptions{})
	assert.Equal(t, color.RGBA{R: 200, G: 40, B: 40, A: 255}, plain.RGBAAt(5, 5))

	assert.Nil(t, RenderOverlay(nil, res, DefaultOverlayOptions()))
	assert.NotEqual(t, SegmentColor(1), SegmentColor(2))
}

type recordingProgress struct {
	total    int
	progress int
	segments int
	errs     []int
	done     bool
}

func (r *recordingProgress) OnStart(total int) { r.total = total }

func (r *recordingProgress) OnItem(ev ItemEvent) {
	r.progress++
	r.segments += ev.Segments
	if ev.Err != nil {
		r.errs = append(r.errs, ev.Index)
	}
}

func (r *recordingProgress) OnComplete() { r.done = true }

func TestProcessImagesParallel(t *testing.T) {
	p := newTestPipeline(t, nil)
	images := []image.Image{halves(40, 20), nil, halves(20, 20)}

	rec := &recordingProgress{}
	var handled []int
	cfg := ParallelConfig{
		MaxWorkers:       2,
		ProgressCallback: rec,
		ErrorHandler:     func(i int, _ error) { handled = append(handled, i) },
	}
	start := time.Now()
	results, err := p.ProcessImagesParallel(context.Background(), images, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1")
	require.Len(t, results, 3)

	assert.Nil(t, results[1])
	require.NotNil(t, results[0])
	require.NotNil(t, results[2])
	assert.Equal(t, 40, results[0].Width)
	assert.Equal(t, 20, results[2].Width)

	assert.Equal(t, 3, rec.total)
	assert.Equal(t, 3, rec.progress)
	assert.Equal(t, 4, rec.segments)
	assert.Equal(t, []int{1}, rec.errs)
	assert.True(t, rec.done)
	assert.Equal(t, []int{1}, handled)

	st := CalculateParallelStats(results, time.Since(start), cfg.MaxWorkers)
	assert.Equal(t, 3, st.TotalItems)
	assert.Equal(t, 2, st.ProcessedItems)
	assert.Equal(t, 1, st.FailedItems)
	assert.Equal(t, 4, st.TotalSegments)

	_, err = p.ProcessImagesParallel(context.Background(), nil, cfg)
	require.Error(t, err)
}

func TestProcessImagesParallel_Cancelled(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ProcessImagesParallel(ctx, []image.Image{halves(8, 8)}, ParallelConfig{MaxWorkers: 1})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCalculateParallelStats_Empty(t *testing.T) {
	st := CalculateParallelStats(nil, 0, 4)
	assert.Equal(t, 4, st.WorkerCount)
	assert.Zero(t, st.AveragePerItem)
	assert.Zero(t, st.ThroughputPerSec)
}
