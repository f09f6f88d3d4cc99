package utils

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/MeKo-Tech/regionseg/internal/segment"
)

// ToRGBA copies img into a fresh RGBA canvas anchored at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// DrawPolygon draws connected line segments and closes the polygon. Points
// use pixel-centre coordinates, so corners at x.5 are rounded outward.
func DrawPolygon(dst *image.RGBA, pts []segment.Point, col color.Color, thickness int) {
	if len(pts) < 2 {
		return
	}
	ip := make([]image.Point, len(pts))
	for i, p := range pts {
		ip[i] = image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
	}
	for i := range ip {
		drawLine(dst, ip[i], ip[(i+1)%len(ip)], col, thickness)
	}
}

// DrawCross marks p with a small plus sign.
func DrawCross(dst *image.RGBA, p image.Point, col color.Color, size int) {
	drawLine(dst, image.Pt(p.X-size, p.Y), image.Pt(p.X+size, p.Y), col, 1)
	drawLine(dst, image.Pt(p.X, p.Y-size), image.Pt(p.X, p.Y+size), col, 1)
}

// drawLine steps from a to b one pixel along the major axis at a time,
// stamping a square brush of the given thickness at each step.
func drawLine(dst *image.RGBA, a, b image.Point, col color.Color, thickness int) {
	src := image.NewUniform(col)
	r := max(thickness, 1) - 1
	half := r / 2

	d := b.Sub(a)
	steps := max(abs(d.X), abs(d.Y))
	for i := 0; i <= steps; i++ {
		p := a
		if steps > 0 {
			p.X += int(math.Round(float64(d.X*i) / float64(steps)))
			p.Y += int(math.Round(float64(d.Y*i) / float64(steps)))
		}
		brush := image.Rect(p.X-half, p.Y-half, p.X-half+r+1, p.Y-half+r+1).Intersect(dst.Bounds())
		if !brush.Empty() {
			draw.Draw(dst, brush, src, image.Point{}, draw.Src)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
