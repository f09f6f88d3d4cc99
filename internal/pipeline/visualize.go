package pipeline

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/MeKo-Tech/regionseg/internal/utils"
)

// OverlayOptions controls RenderOverlay.
type OverlayOptions struct {
	// FillAlpha blends each segment's mean colour over the image (0..1).
	FillAlpha float64
	Outlines  bool
	Interior  bool
}

// DefaultOverlayOptions returns a mean-colour fill with outlines.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{FillAlpha: 0.6, Outlines: true, Interior: true}
}

// SegmentColor returns a distinct outline colour for segment id, spacing
// hues by the golden angle.
func SegmentColor(id int) colorful.Color {
	h := math.Mod(float64(id)*137.508, 360)
	return colorful.Hcl(h, 0.7, 0.6).Clamped()
}

// RenderOverlay paints the segmentation over img and returns an RGBA copy.
// img must have the result's dimensions.
func RenderOverlay(img image.Image, res *SegmentationResult, opts OverlayOptions) *image.RGBA {
	if img == nil {
		return nil
	}
	dst := utils.ToRGBA(img)
	if res == nil || res.Map == nil {
		return dst
	}
	m := res.Map
	if dst.Bounds().Dx() != m.Cols || dst.Bounds().Dy() != m.Rows {
		return dst
	}

	alpha := math.Max(0, math.Min(1, opts.FillAlpha))
	if alpha > 0 {
		fills := make([]colorful.Color, len(res.Segments))
		for k, s := range res.Segments {
			fills[k] = colorful.Color{R: s.Mean[0] / 255, G: s.Mean[1] / 255, B: s.Mean[2] / 255}.Clamped()
		}
		for i := range m.Rows {
			for j := range m.Cols {
				id := m.At(i, j)
				if id <= 0 {
					continue
				}
				under, _ := colorful.MakeColor(dst.RGBAAt(j, i))
				c := under.BlendRgb(fills[id-1], alpha)
				r, g, b := c.RGB255()
				dst.SetRGBA(j, i, color.RGBA{R: r, G: g, B: b, A: 255})
			}
		}
	}

	for _, s := range res.Segments {
		col := SegmentColor(s.ID)
		if opts.Outlines {
			utils.DrawPolygon(dst, s.Outline, col, 1)
		}
		if opts.Interior {
			utils.DrawCross(dst, image.Pt(int(s.Interior.X), int(s.Interior.Y)), col, 2)
		}
	}
	return dst
}
