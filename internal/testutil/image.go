package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int `json:"width"  yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

var (
	// Common test image sizes.
	TinySize   = ImageSize{40, 20}
	SmallSize  = ImageSize{160, 120}
	MediumSize = ImageSize{320, 240}
)

// Common scene colours.
var (
	Red    = color.NRGBA{R: 200, G: 40, B: 40, A: 255}
	Green  = color.NRGBA{R: 40, G: 180, B: 60, A: 255}
	Blue   = color.NRGBA{R: 40, G: 40, B: 200, A: 255}
	Yellow = color.NRGBA{R: 220, G: 200, B: 40, A: 255}
	White  = color.NRGBA{R: 250, G: 250, B: 250, A: 255}
	Black  = color.NRGBA{R: 10, G: 10, B: 10, A: 255}
)

// Rect is a filled rectangle in a scene.
type Rect struct {
	Bounds image.Rectangle `json:"bounds" yaml:"bounds"`
	Color  color.NRGBA     `json:"color"  yaml:"color"`
}

// Circle is a filled disc in a scene.
type Circle struct {
	Center image.Point `json:"center" yaml:"center"`
	Radius int         `json:"radius" yaml:"radius"`
	Color  color.NRGBA `json:"color"  yaml:"color"`
}

// SceneConfig describes a synthetic colour scene. Shapes are painted in
// order over the background.
type SceneConfig struct {
	Size       ImageSize   `json:"size"              yaml:"size"`
	Background color.NRGBA `json:"background"        yaml:"background"`
	Rects      []Rect      `json:"rects,omitempty"   yaml:"rects,omitempty"`
	Circles    []Circle    `json:"circles,omitempty" yaml:"circles,omitempty"`
	Caption    string      `json:"caption,omitempty" yaml:"caption,omitempty"`
	// Noise adds uniform per-channel noise of +/- Noise levels.
	Noise float64 `json:"noise,omitempty" yaml:"noise,omitempty"`
	// Blur applies a Gaussian blur with this sigma.
	Blur float64 `json:"blur,omitempty" yaml:"blur,omitempty"`
	Seed uint64  `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultSceneConfig returns a white canvas with no shapes.
func DefaultSceneConfig() SceneConfig {
	return SceneConfig{Size: SmallSize, Background: White, Seed: 1}
}

// GenerateScene renders cfg. The result is deterministic for a given seed.
func GenerateScene(cfg SceneConfig) *image.NRGBA {
	img := imaging.New(cfg.Size.Width, cfg.Size.Height, cfg.Background)

	for _, r := range cfg.Rects {
		draw.Draw(img, r.Bounds.Intersect(img.Bounds()), &image.Uniform{r.Color}, image.Point{}, draw.Src)
	}
	for _, c := range cfg.Circles {
		fillCircle(img, c)
	}

	if cfg.Caption != "" {
		face := basicfont.Face7x13
		drawer := &font.Drawer{Dst: img, Src: &image.Uniform{Black}, Face: face}
		width := font.MeasureString(face, cfg.Caption).Ceil()
		x := (cfg.Size.Width - width) / 2
		y := cfg.Size.Height - face.Metrics().Descent.Ceil() - 2
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(cfg.Caption)
	}

	if cfg.Blur > 0 {
		img = imaging.Blur(img, cfg.Blur)
	}
	if cfg.Noise > 0 {
		addNoise(img, cfg.Noise, cfg.Seed)
	}
	return img
}

func fillCircle(img *image.NRGBA, c Circle) {
	r2 := c.Radius * c.Radius
	b := img.Bounds()
	for y := c.Center.Y - c.Radius; y <= c.Center.Y+c.Radius; y++ {
		for x := c.Center.X - c.Radius; x <= c.Center.X+c.Radius; x++ {
			dx, dy := x-c.Center.X, y-c.Center.Y
			if dx*dx+dy*dy <= r2 && image.Pt(x, y).In(b) {
				img.SetNRGBA(x, y, c.Color)
			}
		}
	}
}

// addNoise perturbs every channel by a uniform offset in [-level, level].
func addNoise(img *image.NRGBA, level float64, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	jitter := func(v uint8) uint8 {
		n := float64(v) + (rng.Float64()*2-1)*level
		return uint8(math.Max(0, math.Min(255, math.Round(n))))
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			img.SetNRGBA(x, y, color.NRGBA{R: jitter(c.R), G: jitter(c.G), B: jitter(c.B), A: c.A})
		}
	}
}

// Halves paints the left half of a w x h image left and the right half right.
func Halves(w, h int, left, right color.NRGBA) *image.NRGBA {
	return GenerateScene(SceneConfig{
		Size:       ImageSize{w, h},
		Background: left,
		Rects:      []Rect{{Bounds: image.Rect(w/2, 0, w, h), Color: right}},
	})
}

// Quadrants paints four coloured quadrants with a white square of side
// w/4 in the middle.
func Quadrants(w, h int) *image.NRGBA {
	s := w / 4
	return GenerateScene(SceneConfig{
		Size:       ImageSize{w, h},
		Background: Red,
		Rects: []Rect{
			{Bounds: image.Rect(w/2, 0, w, h/2), Color: Green},
			{Bounds: image.Rect(0, h/2, w/2, h), Color: Blue},
			{Bounds: image.Rect(w/2, h/2, w, h), Color: Yellow},
			{Bounds: image.Rect(w/2-s/2, h/2-s/2, w/2-s/2+s, h/2-s/2+s), Color: White},
		},
	})
}

// LabelImage builds a 16-bit grey label image from label(x, y).
func LabelImage(w, h int, label func(x, y int) uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray16(x, y, color.Gray16{Y: label(x, y)})
		}
	}
	return img
}

// SaveImage saves an image to path; the format follows the extension.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, imaging.Save(img, path), "Failed to save image %s", path)
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()
	img, err := imaging.Open(path)
	require.NoError(t, err, "Failed to open image file %s", path)
	return img
}

// CompareImages compares two images and returns true if they are similar.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	bounds1 := img1.Bounds()
	bounds2 := img2.Bounds()

	if bounds1.Size() != bounds2.Size() {
		return false
	}

	var totalDiff float64
	var pixelCount float64

	for y := 0; y < bounds1.Dy(); y++ {
		for x := 0; x < bounds1.Dx(); x++ {
			r1, g1, b1, a1 := img1.At(bounds1.Min.X+x, bounds1.Min.Y+y).RGBA()
			r2, g2, b2, a2 := img2.At(bounds2.Min.X+x, bounds2.Min.Y+y).RGBA()

			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)

			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return true
	}

	avgDiff := totalDiff / pixelCount
	maxDiff := math.Sqrt(4 * 65535 * 65535) // Maximum possible difference

	return (avgDiff / maxDiff) <= tolerance
}
