package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/regionseg/internal/segment"
	"github.com/MeKo-Tech/regionseg/internal/utils"
)

// ParallelConfig holds configuration for parallel processing.
type ParallelConfig struct {
	MaxWorkers       int              // Number of parallel workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback // Optional progress reporting
	ErrorHandler     func(int, error) // Optional per-item error handler
}

// DefaultParallelConfig returns sensible defaults for parallel processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MaxWorkers: runtime.NumCPU(),
	}
}

// job is one unit of parallel work. load produces the image (and an
// optional label map) inside the worker so decoding is parallel too.
type job struct {
	index int
	load  func() (image.Image, *segment.LabelMap, *utils.ImageMetadata, error)
}

type jobResult struct {
	index  int
	result *SegmentationResult
	err    error
}

// ProcessImagesParallel segments images in parallel. Results keep the input
// order; a failed image leaves a nil entry and the first error is returned.
func (p *Pipeline) ProcessImagesParallel(ctx context.Context, images []image.Image, config ParallelConfig) ([]*SegmentationResult, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	jobs := make([]job, len(images))
	for i, img := range images {
		jobs[i] = job{index: i, load: func() (image.Image, *segment.LabelMap, *utils.ImageMetadata, error) {
			return img, nil, nil, nil
		}}
	}
	return p.runParallel(ctx, jobs, config)
}

// FileInput names an image file and an optional label image for it.
type FileInput struct {
	Path       string
	LabelsPath string
}

// ProcessInputsParallel loads and segments files, each optionally seeded by
// its label image, in parallel.
func (p *Pipeline) ProcessInputsParallel(ctx context.Context, inputs []FileInput, config ParallelConfig) ([]*SegmentationResult, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no files provided")
	}
	jobs := make([]job, len(inputs))
	for i, in := range inputs {
		jobs[i] = job{index: i, load: func() (image.Image, *segment.LabelMap, *utils.ImageMetadata, error) {
			img, meta, err := utils.LoadImage(in.Path)
			if err != nil {
				return nil, nil, nil, err
			}
			var labels *segment.LabelMap
			if in.LabelsPath != "" {
				if labels, err = utils.LoadLabelMap(in.LabelsPath); err != nil {
					return nil, nil, nil, err
				}
			}
			return img, labels, &meta, nil
		}}
	}
	return p.runParallel(ctx, jobs, config)
}

func (p *Pipeline) runParallel(ctx context.Context, jobs []job, config ParallelConfig) ([]*SegmentationResult, error) {
	if p == nil || p.engine == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	workers := min(config.MaxWorkers, len(jobs))

	if config.ProgressCallback != nil {
		config.ProgressCallback.OnStart(len(jobs))
		defer config.ProgressCallback.OnComplete()
	}

	// Engines keep grow-only buffers and are not shared between goroutines.
	engines := make([]*segment.Engine, workers)
	for w := range engines {
		eng, err := p.newEngine()
		if err != nil {
			return nil, err
		}
		engines[w] = eng
	}

	queue := make(chan job, len(jobs))
	results := make(chan jobResult, len(jobs))

	var wg sync.WaitGroup
	for _, eng := range engines {
		wg.Add(1)
		go p.worker(ctx, eng, queue, results, &wg)
	}

	go func() {
		defer close(queue)
		for _, j := range jobs {
			select {
			case queue <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*SegmentationResult, len(jobs))
	errs := make([]error, len(jobs))
	processed := 0
	for r := range results {
		ordered[r.index] = r.result
		errs[r.index] = r.err
		processed++
		if config.ProgressCallback != nil {
			ev := ItemEvent{Index: r.index, Done: processed, Total: len(jobs), Err: r.err}
			if r.result != nil {
				ev.Segments = len(r.result.Segments)
			}
			config.ProgressCallback.OnItem(ev)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstError error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if firstError == nil {
			firstError = fmt.Errorf("item %d: %w", i, err)
		}
		if config.ErrorHandler != nil {
			config.ErrorHandler(i, err)
		}
	}
	return ordered, firstError
}

// worker segments jobs with its own engine.
func (p *Pipeline) worker(ctx context.Context, eng *segment.Engine, queue <-chan job, results chan<- jobResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case j, ok := <-queue:
			if !ok {
				return
			}
			res, err := p.processJob(ctx, eng, j)
			select {
			case results <- jobResult{index: j.index, result: res, err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) processJob(ctx context.Context, eng *segment.Engine, j job) (*SegmentationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	img, labels, meta, err := j.load()
	if err != nil {
		return nil, err
	}
	fitted, scale, err := utils.FitImage(img, p.cfg.Constraints)
	if err != nil {
		return nil, err
	}
	simg := ToSegmentImage(fitted)
	convertNs := time.Since(start).Nanoseconds()

	seg := segment.NewSegmentation(simg.Rows, simg.Cols)
	segStart := time.Now()
	if err := runEngine(eng, simg, labels, seg); err != nil {
		return nil, err
	}

	res := buildResult(seg, simg, p.cfg.SimplifyEpsilon)
	res.Scale = scale
	res.Source = meta
	res.Processing.ConvertNs = convertNs
	res.Processing.SegmentNs = time.Since(segStart).Nanoseconds()
	res.Processing.TotalNs = time.Since(start).Nanoseconds()
	observeResult(res)
	return res, nil
}

// ParallelStats holds statistics about parallel processing performance.
type ParallelStats struct {
	TotalItems       int           `json:"total_items"         yaml:"total_items"`
	ProcessedItems   int           `json:"processed_items"     yaml:"processed_items"`
	FailedItems      int           `json:"failed_items"        yaml:"failed_items"`
	WorkerCount      int           `json:"worker_count"        yaml:"worker_count"`
	TotalSegments    int           `json:"total_segments"      yaml:"total_segments"`
	TotalDuration    time.Duration `json:"total_duration_ns"   yaml:"total_duration_ns"`
	AveragePerItem   time.Duration `json:"average_per_item_ns" yaml:"average_per_item_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"  yaml:"throughput_per_sec"`
}

// CalculateParallelStats summarises a parallel run.
func CalculateParallelStats(results []*SegmentationResult, duration time.Duration, workerCount int) ParallelStats {
	st := ParallelStats{TotalItems: len(results), WorkerCount: workerCount, TotalDuration: duration}
	for _, r := range results {
		if r == nil {
			st.FailedItems++
			continue
		}
		st.ProcessedItems++
		st.TotalSegments += len(r.Segments)
	}
	if st.ProcessedItems > 0 && duration > 0 {
		st.AveragePerItem = duration / time.Duration(st.ProcessedItems)
		st.ThroughputPerSec = float64(st.ProcessedItems) / duration.Seconds()
	}
	return st
}
