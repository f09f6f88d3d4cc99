package pipeline

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/MeKo-Tech/regionseg/internal/segment"
	"github.com/MeKo-Tech/regionseg/internal/utils"
)

// BoxResult is an inclusive pixel box in x/y order.
type BoxResult struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

// NeighborResult describes one adjacent segment. DeltaE is the CIE76
// colour distance between the two segment means.
type NeighborResult struct {
	ID          int     `json:"id"          yaml:"id"`
	Connections int     `json:"connections" yaml:"connections"`
	DeltaE      float64 `json:"delta_e"     yaml:"delta_e"`
}

// SegmentResult is the serialisable view of one segment.
type SegmentResult struct {
	ID        int              `json:"id"                  yaml:"id"`
	NumPixels int              `json:"num_pixels"          yaml:"num_pixels"`
	Box       BoxResult        `json:"box"                 yaml:"box"`
	Centroid  segment.Point    `json:"centroid"            yaml:"centroid"`
	Interior  segment.Point    `json:"interior"            yaml:"interior"`
	Mean      [3]float64       `json:"mean_rgb"            yaml:"mean_rgb"`
	Color     string           `json:"color"               yaml:"color"`
	Outline   []segment.Point  `json:"outline,omitempty"   yaml:"outline,omitempty"`
	Area      float64          `json:"area"                yaml:"area"`
	Perimeter float64          `json:"perimeter"           yaml:"perimeter"`
	Solidity  float64          `json:"solidity"            yaml:"solidity"`
	Shape     segment.Shape    `json:"shape"               yaml:"shape"`
	Neighbors []NeighborResult `json:"neighbors,omitempty" yaml:"neighbors,omitempty"`
}

// SegmentationResult is the per-image aggregated output.
type SegmentationResult struct {
	Width    int                  `json:"width"            yaml:"width"`
	Height   int                  `json:"height"           yaml:"height"`
	Scale    float64              `json:"scale"            yaml:"scale"`
	Source   *utils.ImageMetadata `json:"source,omitempty" yaml:"source,omitempty"`
	Coverage float64              `json:"coverage"         yaml:"coverage"`
	Segments []SegmentResult      `json:"segments"         yaml:"segments"`
	Stats    segment.Stats        `json:"stats"            yaml:"stats"`

	Processing struct {
		ConvertNs int64 `json:"convert_ns" yaml:"convert_ns"`
		SegmentNs int64 `json:"segment_ns" yaml:"segment_ns"`
		TotalNs   int64 `json:"total_ns"   yaml:"total_ns"`
	} `json:"processing" yaml:"processing"`

	// Map is the raw segmentation, kept for rendering and map export.
	Map *segment.Segmentation `json:"-" yaml:"-"`
}

// meanColor converts a segment mean to a colour, clamped into gamut.
func meanColor(m segment.Sample) colorful.Color {
	return colorful.Color{R: m.R / 255, G: m.G / 255, B: m.B / 255}.Clamped()
}

func buildResult(seg *segment.Segmentation, img *segment.Image, epsilon float64) *SegmentationResult {
	res := &SegmentationResult{
		Width:    seg.Cols,
		Height:   seg.Rows,
		Scale:    1,
		Segments: make([]SegmentResult, len(seg.Segments)),
		Stats:    seg.Stats,
		Map:      seg,
	}

	valid, covered := 0, 0
	for _, ok := range img.Valid {
		if ok {
			valid++
		}
	}

	colors := make([]colorful.Color, len(seg.Segments))
	for k := range seg.Segments {
		colors[k] = meanColor(seg.Segments[k].Mean)
	}

	for k := range seg.Segments {
		s := &seg.Segments[k]
		covered += s.NumPixels
		outline := s.Outside
		if epsilon > 0 {
			outline = utils.SimplifyPolygon(outline, epsilon)
		}
		r := SegmentResult{
			ID:        s.ID,
			NumPixels: s.NumPixels,
			Box: BoxResult{
				X: s.Box.MinJ, Y: s.Box.MinI,
				W: s.Box.Width(), H: s.Box.Height(),
			},
			Centroid:  segment.Point{X: s.JCM, Y: s.ICM},
			Interior:  segment.Point{X: float64(s.Interior.J), Y: float64(s.Interior.I)},
			Mean:      [3]float64{s.Mean.R, s.Mean.G, s.Mean.B},
			Color:     colors[k].Hex(),
			Outline:   outline,
			Area:      utils.PolygonArea(s.Outside),
			Perimeter: utils.PolygonPerimeter(s.Outside),
			Solidity:  utils.Solidity(s.Outside),
			Shape:     s.Shape,
		}
		for n, id := range s.Neighbors {
			r.Neighbors = append(r.Neighbors, NeighborResult{
				ID:          id,
				Connections: s.Connections[n],
				DeltaE:      colors[k].DistanceCIE76(colors[id-1]),
			})
		}
		res.Segments[k] = r
	}
	if valid > 0 {
		res.Coverage = float64(covered) / float64(valid)
	}
	return res
}
