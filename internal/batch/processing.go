package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
	"github.com/MeKo-Tech/regionseg/internal/utils"
)

// segmentFiles runs the inputs through the pipeline's worker pool and
// returns per-file results and errors in input order.
func segmentFiles(ctx context.Context, pl *pipeline.Pipeline, inputs []pipeline.FileInput,
	workers int, progress pipeline.ProgressCallback) ([]*pipeline.SegmentationResult, []error) {
	errs := make([]error, len(inputs))
	cfg := pipeline.ParallelConfig{
		MaxWorkers:       workers,
		ProgressCallback: progress,
		ErrorHandler: func(i int, err error) {
			errs[i] = err
			slog.Debug("segmentation failed", "file", inputs[i].Path, "error", err)
		},
	}
	results, err := pl.ProcessInputsParallel(ctx, inputs, cfg)
	if results == nil {
		// Setup failures hit every input alike.
		results = make([]*pipeline.SegmentationResult, len(inputs))
		for i := range errs {
			errs[i] = err
		}
	}
	return results, errs
}

// writeArtifacts saves segment maps and overlays for every successful
// result when the corresponding directories are configured.
func writeArtifacts(config *Config, res *Result) error {
	if config.MapDir == "" && config.OverlayDir == "" {
		return nil
	}
	for _, dir := range []string{config.MapDir, config.OverlayDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var errs []error
	for i, r := range res.Results {
		if r == nil {
			continue
		}
		path := res.ImagePaths[i]
		if config.MapDir != "" {
			if err := utils.SaveSegmentMap(artifactPath(config.MapDir, path, "segments"), r.Map); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
			}
		}
		if config.OverlayDir != "" {
			if err := saveOverlay(config, path, r); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
			}
		}
	}
	return errors.Join(errs...)
}

// saveOverlay reloads the source image at the segmented size and paints the
// result over it.
func saveOverlay(config *Config, path string, r *pipeline.SegmentationResult) error {
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return err
	}
	fitted, _, err := utils.FitImage(img, config.Pipeline.Constraints)
	if err != nil {
		return err
	}
	opts := pipeline.DefaultOverlayOptions()
	opts.FillAlpha = config.OverlayAlpha
	ov := pipeline.RenderOverlay(fitted, r, opts)
	if ov == nil {
		return errors.New("overlay rendering failed")
	}
	return imaging.Save(ov, artifactPath(config.OverlayDir, path, "overlay"))
}

// artifactPath names an output file after the source image.
func artifactPath(dir, source, kind string) string {
	base := filepath.Base(source)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_"+kind+".png")
}
