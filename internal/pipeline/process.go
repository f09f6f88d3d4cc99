package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/regionseg/internal/segment"
	"github.com/MeKo-Tech/regionseg/internal/utils"
)

// ProcessOptions carries per-call inputs.
type ProcessOptions struct {
	// Labels replaces automatic seeding with provisional regions. It must
	// match the (possibly downscaled) image size.
	Labels *segment.LabelMap
	// Observer receives phase completions of this call only.
	Observer segment.Observer
}

// ToSegmentImage converts a decoded image into engine samples. Fully
// transparent pixels become invalid.
func ToSegmentImage(img image.Image) *segment.Image {
	b := img.Bounds()
	out := segment.NewImage(b.Dy(), b.Dx())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			i, j := y-b.Min.Y, x-b.Min.X
			if a == 0 {
				out.SetInvalid(i, j)
				continue
			}
			// Un-premultiply, then scale to 0..255.
			out.Set(i, j,
				float64(r)*255/float64(a),
				float64(g)*255/float64(a),
				float64(bl)*255/float64(a))
		}
	}
	return out
}

// ProcessImage segments a single image.
func (p *Pipeline) ProcessImage(img image.Image) (*SegmentationResult, error) {
	return p.ProcessImageContext(context.Background(), img, ProcessOptions{})
}

// ProcessImageContext segments a single image with cancellation support.
// The engine itself is not interruptible, so ctx is checked before and
// after the run.
func (p *Pipeline) ProcessImageContext(ctx context.Context, img image.Image, po ProcessOptions) (*SegmentationResult, error) {
	if p == nil || p.engine == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	j := job{load: func() (image.Image, *segment.LabelMap, *utils.ImageMetadata, error) {
		return img, po.Labels, nil, nil
	}}

	var (
		res *SegmentationResult
		err error
	)
	if po.Observer != nil {
		// A dedicated engine keeps the observer scoped to this call.
		eng, engErr := p.newEngine(po.Observer)
		if engErr != nil {
			return nil, engErr
		}
		res, err = p.processJob(ctx, eng, j)
	} else {
		p.mu.Lock()
		res, err = p.processJob(ctx, p.engine, j)
		p.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Debug("image segmented",
		"width", res.Width, "height", res.Height,
		"segments", len(res.Segments),
		"merges", res.Stats.TotalMerges(),
		"total_ms", res.Processing.TotalNs/1_000_000)
	return res, nil
}

// ProcessFile loads path, optionally with a label image, and segments it.
func (p *Pipeline) ProcessFile(ctx context.Context, path, labelsPath string) (*SegmentationResult, error) {
	img, meta, err := utils.LoadImage(path)
	if err != nil {
		return nil, err
	}
	var po ProcessOptions
	if labelsPath != "" {
		if po.Labels, err = utils.LoadLabelMap(labelsPath); err != nil {
			return nil, err
		}
	}
	res, err := p.ProcessImageContext(ctx, img, po)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res.Source = &meta
	return res, nil
}

func runEngine(eng *segment.Engine, img *segment.Image, labels *segment.LabelMap, seg *segment.Segmentation) error {
	if labels != nil {
		return eng.RunWithLabels(img, labels, seg)
	}
	return eng.Run(img, seg)
}
