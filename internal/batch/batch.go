// Package batch segments many image files in one run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
)

// ProcessBatch discovers images under imagePaths and segments them with the
// given configuration. Unless ContinueOnError is set the first failing image
// aborts the batch.
func ProcessBatch(ctx context.Context, imagePaths []string, config *Config) (*Result, error) {
	filter, err := newFileFilter(config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	files, err := discoverImageFiles(imagePaths, config.Recursive, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}
	inputs := matchLabels(files, config.LabelsDir)
	if !config.Quiet {
		_, _ = fmt.Fprintf(config.stderr(), "Processing %d input(s)...\n", len(files))
	}

	var progressCallback pipeline.ProgressCallback
	if config.ShowProgress && !config.Quiet {
		progressCallback = pipeline.NewConsoleProgress(
			config.stderr(),
			"Segmenting: ",
		).WithUpdateInterval(config.ProgressInterval)
	} else if !config.Quiet {
		progressCallback = pipeline.NewLogProgress(slog.Default(), slog.LevelDebug, 10)
	}

	pl, err := buildPipeline(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build segmentation pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			slog.Warn("error closing pipeline", "error", err)
		}
	}()

	startTime := time.Now()
	results, errs := segmentFiles(ctx, pl, inputs, config.Workers, progressCallback)
	duration := time.Since(startTime)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !config.ContinueOnError {
		for i, e := range errs {
			if e != nil {
				return nil, fmt.Errorf("batch processing failed: %s: %w", files[i], e)
			}
		}
	}

	res := &Result{
		Results:     results,
		ImagePaths:  files,
		Errors:      errs,
		Duration:    duration,
		WorkerCount: config.Workers,
	}
	if err := writeArtifacts(config, res); err != nil {
		return res, err
	}
	return res, nil
}
